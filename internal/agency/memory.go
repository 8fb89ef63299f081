package agency

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/ids"
)

// InMemory implements Service for tests and the dev server.
type InMemory struct {
	mu          sync.Mutex
	creators    map[string]*Creator
	settlements map[string]*Settlement
	order       []string
	recorder    audit.Recorder
}

func NewInMemory(rec audit.Recorder) *InMemory {
	if rec == nil {
		rec = audit.NewInMemory()
	}
	return &InMemory{
		creators:    make(map[string]*Creator),
		settlements: make(map[string]*Settlement),
		recorder:    rec,
	}
}

// SeedSettlement inserts a statement as the settlement batch job would.
func (s *InMemory) SeedSettlement(st Settlement) Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = ids.NewEntityID()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	cp := st
	s.settlements[st.ID] = &cp
	return st
}

func (s *InMemory) Summary(_ context.Context, agencyID string, _, _ time.Time) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Summary
	for _, c := range s.creators {
		if c.AgencyID != agencyID {
			continue
		}
		out.CreatorCount++
		if c.Status == CreatorActive {
			out.ActiveCreators++
		}
	}
	for _, st := range s.settlements {
		if st.AgencyID != agencyID {
			continue
		}
		switch st.Status {
		case SettlementPaid:
			out.PaidPayoutKRW += st.ShareKRW
		case SettlementCancelled:
		default:
			out.PendingPayoutKRW += st.ShareKRW
			out.SettlementsInPlay++
		}
	}
	return out, nil
}

func (s *InMemory) ListCreators(_ context.Context, agencyID string, f CreatorFilter) ([]Creator, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]Creator, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.creators[s.order[i]]
		if c.AgencyID != agencyID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		matched = append(matched, *c)
	}
	total := len(matched)

	offset := f.Offset
	if offset > total {
		offset = total
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *InMemory) AddCreator(ctx context.Context, actor Actor, p AddCreatorParams) (Creator, error) {
	if p.RevenueShareRate < 0 || p.RevenueShareRate > 1 {
		return Creator{}, ErrInvalidShareRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.creators {
		if c.AgencyID == actor.AgencyID && c.CreatorProfileID == p.CreatorProfileID && c.Status != CreatorTerminated {
			return Creator{}, ErrDuplicateCreator
		}
	}

	basis := p.SettlementBasis
	if basis == "" {
		basis = "monthly"
	}
	now := time.Now().UTC()
	c := &Creator{
		ID:               ids.NewEntityID(),
		AgencyID:         actor.AgencyID,
		CreatorProfileID: p.CreatorProfileID,
		Status:           CreatorActive,
		ContractStart:    p.ContractStart,
		ContractEnd:      p.ContractEnd,
		RevenueShareRate: p.RevenueShareRate,
		SettlementBasis:  basis,
		ContractNotes:    p.ContractNotes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.creators[c.ID] = c
	s.order = append(s.order, c.ID)

	if err := s.record(ctx, actor, "creator.add", c.ID, nil, creatorImage(c)); err != nil {
		return Creator{}, err
	}
	return *c, nil
}

func (s *InMemory) UpdateCreator(ctx context.Context, actor Actor, id string, p UpdateCreatorParams) (Creator, error) {
	if p.RevenueShareRate != nil && (*p.RevenueShareRate < 0 || *p.RevenueShareRate > 1) {
		return Creator{}, ErrInvalidShareRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.scoped(actor.AgencyID, id)
	if err != nil {
		return Creator{}, err
	}

	before := creatorImage(c)
	if p.RevenueShareRate != nil {
		c.RevenueShareRate = *p.RevenueShareRate
	}
	if p.SettlementBasis != "" {
		c.SettlementBasis = p.SettlementBasis
	}
	if p.ContractEnd != nil {
		c.ContractEnd = p.ContractEnd
	}
	if p.ContractNotes != "" {
		c.ContractNotes = p.ContractNotes
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.record(ctx, actor, "creator.update", c.ID, before, creatorImage(c)); err != nil {
		return Creator{}, err
	}
	return *c, nil
}

func (s *InMemory) RemoveCreator(ctx context.Context, actor Actor, id string) (Creator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.scoped(actor.AgencyID, id)
	if err != nil {
		return Creator{}, err
	}

	before := creatorImage(c)
	c.Status = CreatorTerminated
	c.UpdatedAt = time.Now().UTC()

	if err := s.record(ctx, actor, "creator.remove", c.ID, before, creatorImage(c)); err != nil {
		return Creator{}, err
	}
	return *c, nil
}

func (s *InMemory) ListSettlements(_ context.Context, agencyID string, f SettlementFilter) ([]Settlement, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Settlement
	for _, st := range s.settlements {
		if st.AgencyID != agencyID {
			continue
		}
		if f.Status != "" && st.Status != f.Status {
			continue
		}
		matched = append(matched, *st)
	}
	// newest period first
	sort.Slice(matched, func(i, j int) bool { return matched[i].PeriodEnd.After(matched[j].PeriodEnd) })
	total := len(matched)

	offset := f.Offset
	if offset > total {
		offset = total
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *InMemory) GetSettlement(_ context.Context, agencyID, id string) (Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settlements[id]
	if !ok || st.AgencyID != agencyID {
		return Settlement{}, ErrSettlementNotFound
	}
	return *st, nil
}

// scoped fetches a creator and enforces the agency boundary. A creator in
// another agency reads as not found, never as forbidden, so ids cannot be
// probed across agencies.
func (s *InMemory) scoped(agencyID, id string) (*Creator, error) {
	c, ok := s.creators[id]
	if !ok || c.AgencyID != agencyID {
		return nil, ErrCreatorNotFound
	}
	return c, nil
}

func (s *InMemory) record(ctx context.Context, actor Actor, action, entityID string, before, after map[string]any) error {
	e, err := audit.NewEntry(actor.ID, actor.Role, action, "agency_creator", entityID,
		before, after, map[string]any{"agency_id": actor.AgencyID})
	if err != nil {
		return err
	}
	return s.recorder.Record(ctx, e)
}

func creatorImage(c *Creator) map[string]any {
	img := map[string]any{
		"status":             string(c.Status),
		"revenue_share_rate": c.RevenueShareRate,
		"settlement_basis":   c.SettlementBasis,
		"contract_notes":     c.ContractNotes,
	}
	if c.ContractEnd != nil {
		img["contract_end"] = c.ContractEnd.Format("2006-01-02")
	}
	return img
}
