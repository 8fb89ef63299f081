// Package pg is the Postgres persistence layer. Store is the connection
// hub; each domain gets a sub-store view over the same pool so interface
// method sets stay separate.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrSerializationFail   = "40001"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Content() *ContentStore { return &ContentStore{db: s.db} }

func (s *Store) Ads() *AdsStore { return &AdsStore{db: s.db} }

func (s *Store) Agency() *AgencyStore { return &AgencyStore{db: s.db} }

func (s *Store) Audit() *AuditStore { return &AuditStore{db: s.db} }

func (s *Store) Payments() *PaymentStore { return &PaymentStore{db: s.db} }

func (s *Store) RateLimiter() *RateLimitStore { return &RateLimitStore{db: s.db} }

// OpsRoster scopes roster rows to the empty org, AgencyRoster spans agency
// orgs; both run over the same staff table.
func (s *Store) OpsRoster() *RosterStore { return &RosterStore{db: s.db, kind: "ops"} }

func (s *Store) AgencyRoster() *RosterStore { return &RosterStore{db: s.db, kind: "agency"} }

// execer covers *sql.DB and *sql.Tx for helpers that run inside or outside
// a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrUniqueViolation
}
