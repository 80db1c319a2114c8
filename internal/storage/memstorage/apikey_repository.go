package memstorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/ierr"
)

// APIKeyRepository is an in-memory apikey.Repository. The mutex makes the
// processing flag a real compare-and-set.
type APIKeyRepository struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*apikey.APIKey
}

func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{keys: make(map[uuid.UUID]*apikey.APIKey)}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

// Put stores a copy of key, assigning an ID when missing.
func (r *APIKeyRepository) Put(key *apikey.APIKey) *apikey.APIKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	k := *key
	r.keys[k.ID] = &k
	return key
}

// Get returns a snapshot of the stored key or nil.
func (r *APIKeyRepository) Get(id uuid.UUID) *apikey.APIKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[id]
	if !ok {
		return nil
	}
	c := *k
	return &c
}

func (r *APIKeyRepository) FindByPrefix(ctx context.Context, prefix string) (*apikey.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.keys {
		if k.Prefix == prefix {
			c := *k
			return &c, nil
		}
	}
	return nil, apikey.ErrAPIKeyNotFound
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	if k := r.Get(id); k != nil {
		return k, nil
	}
	return nil, apikey.ErrAPIKeyNotFound
}

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.keys {
		if k.Prefix == key.Prefix || k.KeyHash == key.KeyHash {
			return uuid.Nil, ierr.ErrConflict
		}
	}

	k := *key
	k.ID = uuid.New()
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	if k.LastResetAt.IsZero() {
		k.LastResetAt = k.CreatedAt
	}
	r.keys[k.ID] = &k
	return k.ID, nil
}

func (r *APIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*apikey.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]*apikey.APIKey, 0)
	for _, k := range r.keys {
		if k.UserID == userID {
			c := *k
			keys = append(keys, &c)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id, userID uuid.UUID) error {
	return r.update(id, func(k *apikey.APIKey) error {
		if k.UserID != userID {
			return apikey.ErrAPIKeyNotFound
		}
		k.Status = apikey.StatusRevoked
		return nil
	})
}

func (r *APIKeyRepository) UpdateLabel(ctx context.Context, id, userID uuid.UUID, label string) error {
	return r.update(id, func(k *apikey.APIKey) error {
		if k.UserID != userID {
			return apikey.ErrAPIKeyNotFound
		}
		k.Label = label
		return nil
	})
}

func (r *APIKeyRepository) TryAcquireProcessing(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.update(id, func(k *apikey.APIKey) error {
		if k.IsProcessing {
			return apikey.ErrAlreadyLocked
		}
		k.IsProcessing = true
		k.ProcessingStartedAt = &now
		return nil
	})
}

func (r *APIKeyRepository) ReleaseProcessing(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(k *apikey.APIKey) error {
		k.IsProcessing = false
		k.ProcessingStartedAt = nil
		return nil
	})
}

func (r *APIKeyRepository) ResetDailyUsageIfStale(ctx context.Context, id uuid.UUID, dayStart, now time.Time) (int, error) {
	var count int
	err := r.update(id, func(k *apikey.APIKey) error {
		if k.LastResetAt.Before(dayStart) {
			k.RequestsToday = 0
			k.LastResetAt = now
		}
		count = k.RequestsToday
		return nil
	})
	return count, err
}

func (r *APIKeyRepository) CompleteRequest(ctx context.Context, id uuid.UUID, now time.Time) (int, error) {
	var count int
	err := r.update(id, func(k *apikey.APIKey) error {
		k.LastRequestAt = &now
		k.LastUsedAt = &now
		k.RequestsToday++
		k.IsProcessing = false
		k.ProcessingStartedAt = nil
		count = k.RequestsToday
		return nil
	})
	return count, err
}

func (r *APIKeyRepository) ResetStaleCounters(ctx context.Context, dayStart, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, k := range r.keys {
		if k.LastResetAt.Before(dayStart) {
			k.RequestsToday = 0
			k.LastResetAt = now
			n++
		}
	}
	return n, nil
}

func (r *APIKeyRepository) ReleaseStaleLocks(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, k := range r.keys {
		if k.IsProcessing && (k.ProcessingStartedAt == nil || k.ProcessingStartedAt.Before(olderThan)) {
			k.IsProcessing = false
			k.ProcessingStartedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *APIKeyRepository) update(id uuid.UUID, fn func(k *apikey.APIKey) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[id]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}
	return fn(k)
}
