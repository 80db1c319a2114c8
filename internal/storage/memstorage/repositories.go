package memstorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makkenzo/username-check-api/internal/domain/auditlog"
	"github.com/makkenzo/username-check-api/internal/domain/ban"
	"github.com/makkenzo/username-check-api/internal/domain/checktoken"
	"github.com/makkenzo/username-check-api/internal/domain/subscription"
	"github.com/makkenzo/username-check-api/internal/domain/usage"
	"github.com/makkenzo/username-check-api/internal/ierr"
)

type BanRepository struct {
	mu   sync.RWMutex
	bans []*ban.Ban
}

func NewBanRepository() *BanRepository {
	return &BanRepository{}
}

var _ ban.Repository = (*BanRepository)(nil)

func (r *BanRepository) Add(b *ban.Ban) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *b
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.bans = append(r.bans, &c)
}

func (r *BanRepository) FindActive(ctx context.Context, userID uuid.UUID, now time.Time) (*ban.Ban, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *ban.Ban
	for _, b := range r.bans {
		if b.UserID != userID || !b.ActiveAt(now) {
			continue
		}
		switch {
		case found == nil:
			found = b
		case found.IsPermanent():
		case b.IsPermanent() || b.ExpiresAt.After(*found.ExpiresAt):
			found = b
		}
	}
	if found == nil {
		return nil, ban.ErrNotBanned
	}
	c := *found
	return &c, nil
}

type SubscriptionRepository struct {
	mu    sync.RWMutex
	plans map[uuid.UUID]subscription.Plan
}

func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{plans: make(map[uuid.UUID]subscription.Plan)}
}

var _ subscription.Repository = (*SubscriptionRepository)(nil)

func (r *SubscriptionRepository) SetPlan(userID uuid.UUID, plan subscription.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[userID] = plan
}

func (r *SubscriptionRepository) PlanFor(ctx context.Context, userID uuid.UUID) (subscription.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.plans[userID]; ok {
		return p, nil
	}
	return subscription.PlanFree, nil
}

// CheckTokenRepository keeps values in plaintext.
type CheckTokenRepository struct {
	mu     sync.RWMutex
	tokens map[uuid.UUID]*checktoken.Token
}

func NewCheckTokenRepository() *CheckTokenRepository {
	return &CheckTokenRepository{tokens: make(map[uuid.UUID]*checktoken.Token)}
}

var _ checktoken.Repository = (*CheckTokenRepository)(nil)

func (r *CheckTokenRepository) Get(id uuid.UUID) *checktoken.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[id]
	if !ok {
		return nil
	}
	c := *t
	return &c
}

func (r *CheckTokenRepository) FindByName(ctx context.Context, userID uuid.UUID, name string) (*checktoken.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tokens {
		if t.UserID == userID && t.Name == name {
			c := *t
			return &c, nil
		}
	}
	return nil, checktoken.ErrNotFound
}

func (r *CheckTokenRepository) RecordUsage(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[id]
	if !ok {
		return checktoken.ErrNotFound
	}
	t.UsageCount++
	t.LastUsedAt = &at
	return nil
}

func (r *CheckTokenRepository) Create(ctx context.Context, token *checktoken.Token) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens {
		if t.UserID == token.UserID && t.Name == token.Name {
			return uuid.Nil, ierr.ErrConflict
		}
	}
	c := *token
	c.ID = uuid.New()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.tokens[c.ID] = &c
	return c.ID, nil
}

func (r *CheckTokenRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*checktoken.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]*checktoken.Token, 0)
	for _, t := range r.tokens {
		if t.UserID == userID {
			c := *t
			c.Value = ""
			tokens = append(tokens, &c)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.After(tokens[j].CreatedAt) })
	return tokens, nil
}

func (r *CheckTokenRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[id]
	if !ok || t.UserID != userID {
		return checktoken.ErrNotFound
	}
	delete(r.tokens, id)
	return nil
}

type UsageRepository struct {
	mu      sync.RWMutex
	history []*usage.HistoryEntry
	stats   map[uuid.UUID]*usage.Stats
	saved   []*usage.SavedUsername
}

func NewUsageRepository() *UsageRepository {
	return &UsageRepository{stats: make(map[uuid.UUID]*usage.Stats)}
}

var _ usage.Repository = (*UsageRepository)(nil)

func (r *UsageRepository) AddSaved(s *usage.SavedUsername) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *s
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.saved = append(r.saved, &c)
}

// History returns the user's check history in insertion order.
func (r *UsageRepository) History(userID uuid.UUID) []usage.HistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []usage.HistoryEntry
	for _, h := range r.history {
		if h.UserID == userID {
			out = append(out, *h)
		}
	}
	return out
}

func (r *UsageRepository) AppendHistory(ctx context.Context, entry *usage.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *entry
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.history = append(r.history, &c)
	return nil
}

func (r *UsageRepository) IncrementStats(ctx context.Context, userID uuid.UUID, available bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[userID]
	if !ok {
		s = &usage.Stats{UserID: userID}
		r.stats[userID] = s
	}
	s.TotalChecks++
	if available {
		s.AvailableFound++
	}
	if s.LastActive == nil || at.After(*s.LastActive) {
		s.LastActive = &at
	}
	return nil
}

func (r *UsageRepository) GetStats(ctx context.Context, userID uuid.UUID) (*usage.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.stats[userID]; ok {
		c := *s
		return &c, nil
	}
	return &usage.Stats{UserID: userID}, nil
}

func (r *UsageRepository) CountHistory(ctx context.Context, userID uuid.UUID) (*usage.HistoryCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var counts usage.HistoryCounts
	for _, h := range r.history {
		if h.UserID != userID {
			continue
		}
		counts.Total++
		if h.IsAvailable {
			counts.Available++
		}
	}
	return &counts, nil
}

func (r *UsageRepository) ListSaved(ctx context.Context, userID uuid.UUID) ([]*usage.SavedUsername, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	saved := make([]*usage.SavedUsername, 0)
	for _, s := range r.saved {
		if s.UserID == userID {
			c := *s
			saved = append(saved, &c)
		}
	}
	sort.SliceStable(saved, func(i, j int) bool { return saved[i].SavedAt.After(saved[j].SavedAt) })
	return saved, nil
}

type AuditLogRepository struct {
	mu      sync.RWMutex
	entries []*auditlog.Entry
}

func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{}
}

var _ auditlog.Repository = (*AuditLogRepository)(nil)

// Entries returns a snapshot of everything appended so far.
func (r *AuditLogRepository) Entries() []auditlog.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]auditlog.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

func (r *AuditLogRepository) Append(ctx context.Context, entry *auditlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *entry
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.entries = append(r.entries, &c)
	return nil
}

func (r *AuditLogRepository) LastForUser(ctx context.Context, userID uuid.UUID) (*auditlog.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID == userID {
			c := *r.entries[i]
			return &c, nil
		}
	}
	return nil, auditlog.ErrNotFound
}
