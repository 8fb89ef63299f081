package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fanstage/backoffice/internal/ids"
	"github.com/fanstage/backoffice/internal/payment"
)

var _ payment.Store = (*PaymentStore)(nil)

type PaymentStore struct {
	db *sql.DB
}

const orderColumns = `id, user_id, package_id, credits, bonus_credits, price_krw, supply_krw,
	vat_krw, payment_method, platform, status, coalesce(provider_tx_id, ''),
	refund_eligible_until, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (payment.Order, error) {
	var o payment.Order
	err := row.Scan(&o.ID, &o.UserID, &o.PackageID, &o.Credits, &o.BonusCredits,
		&o.PriceKRW, &o.SupplyKRW, &o.VATKRW, &o.Method, &o.Platform, &o.Status,
		&o.ProviderTxID, &o.RefundEligible, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (s *PaymentStore) CreateOrder(ctx context.Context, o payment.Order) (payment.Order, error) {
	if o.ID == "" {
		o.ID = ids.NewEntityID()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into purchase_orders (id, user_id, package_id, credits, bonus_credits,
			price_krw, supply_krw, vat_krw, payment_method, platform, status,
			refund_eligible_until)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		returning `+orderColumns+`
	`, o.ID, o.UserID, o.PackageID, o.Credits, o.BonusCredits, o.PriceKRW,
		o.SupplyKRW, o.VATKRW, o.Method, o.Platform, o.Status, o.RefundEligible)
	return scanOrder(row)
}

func (s *PaymentStore) GetOrder(ctx context.Context, id string) (payment.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+orderColumns+` from purchase_orders where id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Order{}, payment.ErrOrderNotFound
	}
	return o, err
}

func (s *PaymentStore) MarkOrder(ctx context.Context, id string, status payment.OrderStatus, providerTxID string) error {
	res, err := s.db.ExecContext(ctx, `
		update purchase_orders
		set status = $2,
		    provider_tx_id = coalesce(nullif($3, ''), provider_tx_id),
		    updated_at = now()
		where id = $1
	`, id, status, providerTxID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return payment.ErrOrderNotFound
	}
	return err
}

func (s *PaymentStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]payment.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+orderColumns+`
		from purchase_orders
		where status = 'pending' and created_at < $1
		order by created_at asc
		limit $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payment.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const walletColumns = `id, user_id, balance, lifetime_purchased, lifetime_spent,
	lifetime_earned, lifetime_refunded, created_at, updated_at`

func scanWallet(row interface{ Scan(...any) error }) (payment.Wallet, error) {
	var w payment.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.LifetimePurchased,
		&w.LifetimeSpent, &w.LifetimeEarned, &w.LifetimeRefunded,
		&w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *PaymentStore) GetOrCreateWallet(ctx context.Context, userID string) (payment.Wallet, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into wallets (id, user_id)
		values ($1, $2)
		on conflict (user_id) do update set user_id = excluded.user_id
		returning `+walletColumns+`
	`, ids.NewEntityID(), userID)
	return scanWallet(row)
}

// Settle marks the order paid and credits the wallet in one serializable
// transaction. The settlement key has a unique index; a second settle for
// the same order hits it and reports ErrAlreadyProcessed with nothing
// written.
func (s *PaymentStore) Settle(ctx context.Context, p payment.SettleParams) (payment.Wallet, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return payment.Wallet{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into settlement_keys (key, order_id) values ($1, $2)
	`, p.Key.String(), p.OrderID); err != nil {
		if isUniqueViolation(err) {
			return payment.Wallet{}, payment.ErrAlreadyProcessed
		}
		return payment.Wallet{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		update purchase_orders
		set status = 'paid',
		    provider_tx_id = coalesce(nullif($2, ''), provider_tx_id),
		    updated_at = now()
		where id = $1
	`, p.OrderID, p.ProviderTxID); err != nil {
		return payment.Wallet{}, err
	}

	row := tx.QueryRowContext(ctx, `
		update wallets
		set balance = balance + $2 + $3,
		    lifetime_purchased = lifetime_purchased + $2,
		    lifetime_earned = lifetime_earned + $3,
		    updated_at = now()
		where user_id = $1
		returning `+walletColumns+`
	`, p.UserID, p.Credits, p.Bonus)
	w, err := scanWallet(row)
	if err != nil {
		return payment.Wallet{}, err
	}

	if err := tx.Commit(); err != nil {
		return payment.Wallet{}, err
	}
	return w, nil
}

// Chargeback reverses a settled order in the same transactional shape as
// Settle: burn the dispute key, flip the order to refunded, record the
// dispute, debit the wallet. A replayed dispute hits the key's unique index
// and reports ErrAlreadyProcessed.
func (s *PaymentStore) Chargeback(ctx context.Context, p payment.ChargebackParams) (payment.Wallet, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return payment.Wallet{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into settlement_keys (key, order_id) values ($1, $2)
	`, p.Key.String(), p.OrderID); err != nil {
		if isUniqueViolation(err) {
			return payment.Wallet{}, payment.ErrAlreadyProcessed
		}
		return payment.Wallet{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		update purchase_orders
		set status = 'refunded',
		    provider_tx_id = coalesce(nullif($2, ''), provider_tx_id),
		    updated_at = now()
		where id = $1
	`, p.OrderID, p.ProviderTxID); err != nil {
		return payment.Wallet{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into payment_disputes (id, order_id, provider_tx_id, credits, reason)
		values ($1, $2, nullif($3, ''), $4, $5)
	`, ids.NewEntityID(), p.OrderID, p.ProviderTxID, p.Credits, p.Reason); err != nil {
		return payment.Wallet{}, err
	}

	row := tx.QueryRowContext(ctx, `
		update wallets
		set balance = greatest(balance - $2, 0),
		    lifetime_refunded = lifetime_refunded + $2,
		    updated_at = now()
		where user_id = $1
		returning `+walletColumns+`
	`, p.UserID, p.Credits)
	w, err := scanWallet(row)
	if err != nil {
		return payment.Wallet{}, err
	}

	if err := tx.Commit(); err != nil {
		return payment.Wallet{}, err
	}
	return w, nil
}

func (s *PaymentStore) SeenWebhook(ctx context.Context, webhookID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		insert into webhook_ids (webhook_id) values ($1)
		on conflict (webhook_id) do nothing
	`, webhookID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *PaymentStore) LogWebhook(ctx context.Context, entry payment.WebhookLog) error {
	if entry.ID == "" {
		entry.ID = ids.NewEntityID()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into webhook_logs (id, event_type, provider, order_id, webhook_id,
			signature_valid, processed_status, error)
		values ($1,$2,$3,nullif($4,''),nullif($5,''),$6,$7,nullif($8,''))
	`, entry.ID, entry.EventType, entry.Provider, entry.OrderID, entry.WebhookID,
		entry.SignatureValid, entry.ProcessedStatus, entry.Error)
	return err
}
