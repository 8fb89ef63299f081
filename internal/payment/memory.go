package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fanstage/backoffice/internal/ids"
)

// InMemoryStore implements Store for tests and the dev server.
type InMemoryStore struct {
	mu       sync.Mutex
	orders   map[string]*Order
	wallets  map[string]*Wallet // userID -> wallet
	settled  map[string]struct{}
	webhooks map[string]struct{}
	logs     []WebhookLog
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		orders:   make(map[string]*Order),
		wallets:  make(map[string]*Wallet),
		settled:  make(map[string]struct{}),
		webhooks: make(map[string]struct{}),
	}
}

func (s *InMemoryStore) CreateOrder(_ context.Context, o Order) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = ids.NewEntityID()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	cp := o
	s.orders[o.ID] = &cp
	return o, nil
}

func (s *InMemoryStore) GetOrder(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return *o, nil
}

func (s *InMemoryStore) MarkOrder(_ context.Context, id string, status OrderStatus, providerTxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	if providerTxID != "" {
		o.ProviderTxID = providerTxID
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Order
	for _, o := range s.orders {
		if o.Status == OrderPending && o.CreatedAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) GetOrCreateWallet(_ context.Context, userID string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.walletLocked(userID), nil
}

func (s *InMemoryStore) walletLocked(userID string) *Wallet {
	if w, ok := s.wallets[userID]; ok {
		return w
	}
	now := time.Now().UTC()
	w := &Wallet{
		ID:        ids.NewEntityID(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[userID] = w
	return w
}

func (s *InMemoryStore) Settle(_ context.Context, p SettleParams) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key.String()
	if _, dup := s.settled[key]; dup {
		return Wallet{}, ErrAlreadyProcessed
	}
	o, ok := s.orders[p.OrderID]
	if !ok {
		return Wallet{}, ErrOrderNotFound
	}

	total := p.Credits + p.Bonus
	w := s.walletLocked(p.UserID)
	now := time.Now().UTC()

	s.settled[key] = struct{}{}
	o.Status = OrderPaid
	if p.ProviderTxID != "" {
		o.ProviderTxID = p.ProviderTxID
	}
	o.UpdatedAt = now
	w.Balance += total
	w.LifetimePurchased += p.Credits
	w.LifetimeEarned += p.Bonus
	w.UpdatedAt = now
	return *w, nil
}

func (s *InMemoryStore) Chargeback(_ context.Context, p ChargebackParams) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key.String()
	if _, dup := s.settled[key]; dup {
		return Wallet{}, ErrAlreadyProcessed
	}
	o, ok := s.orders[p.OrderID]
	if !ok {
		return Wallet{}, ErrOrderNotFound
	}

	w := s.walletLocked(p.UserID)
	now := time.Now().UTC()

	s.settled[key] = struct{}{}
	o.Status = OrderRefunded
	if p.ProviderTxID != "" {
		o.ProviderTxID = p.ProviderTxID
	}
	o.UpdatedAt = now
	w.Balance -= p.Credits
	if w.Balance < 0 {
		w.Balance = 0
	}
	w.LifetimeRefunded += p.Credits
	w.UpdatedAt = now
	return *w, nil
}

func (s *InMemoryStore) SeenWebhook(_ context.Context, webhookID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[webhookID]; ok {
		return true, nil
	}
	s.webhooks[webhookID] = struct{}{}
	return false, nil
}

func (s *InMemoryStore) LogWebhook(_ context.Context, entry WebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.logs = append(s.logs, entry)
	return nil
}

// WebhookLogs returns a copy of the received-event log, oldest first.
func (s *InMemoryStore) WebhookLogs() []WebhookLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WebhookLog, len(s.logs))
	copy(out, s.logs)
	return out
}
