package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/config"
	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/domain/ban"
	"github.com/makkenzo/username-check-api/internal/domain/checktoken"
	"github.com/makkenzo/username-check-api/internal/domain/subscription"
	"github.com/makkenzo/username-check-api/internal/domain/usage"
	"github.com/makkenzo/username-check-api/internal/ierr"
	"github.com/makkenzo/username-check-api/internal/storage/memstorage"
	"github.com/makkenzo/username-check-api/internal/upstream/discord"
	"github.com/makkenzo/username-check-api/internal/util"
)

type fakeChecker struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, token, username string) (*discord.Result, error)
}

func (f *fakeChecker) CheckUsername(ctx context.Context, token, username string) (*discord.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, username)
	f.mu.Unlock()
	return f.fn(ctx, token, username)
}

func (f *fakeChecker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func answer(taken bool) *discord.Result {
	return &discord.Result{Taken: taken, Raw: json.RawMessage(fmt.Sprintf(`{"taken":%t}`, taken))}
}

type gatewayFixture struct {
	t       *testing.T
	now     time.Time
	keys    *memstorage.APIKeyRepository
	bans    *memstorage.BanRepository
	plans   *memstorage.SubscriptionRepository
	tokens  *memstorage.CheckTokenRepository
	usage   *memstorage.UsageRepository
	audit   *memstorage.AuditLogRepository
	sink    *AsyncAuditSink
	checker *fakeChecker
	cfg     config.GatewayConfig

	userID  uuid.UUID
	key     *apikey.APIKey
	fullKey string
	tokenID uuid.UUID
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	f := &gatewayFixture{
		t:      t,
		now:    time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC),
		keys:   memstorage.NewAPIKeyRepository(),
		bans:   memstorage.NewBanRepository(),
		plans:  memstorage.NewSubscriptionRepository(),
		tokens: memstorage.NewCheckTokenRepository(),
		usage:  memstorage.NewUsageRepository(),
		audit:  memstorage.NewAuditLogRepository(),
		checker: &fakeChecker{fn: func(ctx context.Context, token, username string) (*discord.Result, error) {
			return answer(false), nil
		}},
		cfg: config.GatewayConfig{
			DailyLimitFree:          50,
			DailyLimitPremium:       100,
			MaxBatchSize:            10,
			DefaultRateLimitSeconds: 60,
			UpstreamConcurrency:     1,
		},
		userID: uuid.New(),
	}
	f.sink = NewAsyncAuditSink(f.audit, zap.NewNop())

	fullKey, prefix, keyHash, err := util.GenerateAPIKey()
	require.NoError(t, err)
	f.fullKey = fullKey
	f.key = f.keys.Put(&apikey.APIKey{
		UserID:           f.userID,
		KeyHash:          keyHash,
		Prefix:           prefix,
		Label:            "default",
		Status:           apikey.StatusActive,
		RateLimitSeconds: 60,
		LastResetAt:      f.now.Add(-time.Hour),
		CreatedAt:        f.now.Add(-24 * time.Hour),
	})

	f.tokenID, err = f.tokens.Create(context.Background(), &checktoken.Token{
		UserID:   f.userID,
		Name:     "main",
		Value:    "discord-secret",
		IsActive: true,
	})
	require.NoError(t, err)

	return f
}

func (f *gatewayFixture) service() *GatewayService {
	logger := zap.NewNop()
	return NewGatewayService(GatewayDeps{
		Auth:    NewAPIKeyService(f.keys, f.cfg.DefaultRateLimitSeconds, logger),
		Keys:    f.keys,
		Bans:    f.bans,
		Quota:   NewQuotaPolicy(f.plans, f.cfg, logger),
		Tokens:  f.tokens,
		Usage:   f.usage,
		Audit:   f.sink,
		Checker: f.checker,
	}, f.cfg, logger, WithClock(func() time.Time { return f.now }))
}

func (f *gatewayFixture) request(usernames ...string) CheckRequest {
	return CheckRequest{
		APIKey:    f.fullKey,
		TokenName: "main",
		Usernames: usernames,
		IPAddress: "203.0.113.7",
		UserAgent: "go-test",
	}
}

func (f *gatewayFixture) setKey(mutate func(k *apikey.APIKey)) {
	k := f.keys.Get(f.key.ID)
	mutate(k)
	f.keys.Put(k)
}

func (f *gatewayFixture) storedKey() *apikey.APIKey {
	return f.keys.Get(f.key.ID)
}

func (f *gatewayFixture) auditStatuses() []int {
	f.sink.Wait()
	var statuses []int
	for _, e := range f.audit.Entries() {
		statuses = append(statuses, e.StatusCode)
	}
	return statuses
}

func requireGatewayError(t *testing.T, err error, kind error) *ierr.GatewayError {
	t.Helper()
	require.Error(t, err)
	var ge *ierr.GatewayError
	require.True(t, errors.As(err, &ge), "expected *ierr.GatewayError, got %T", err)
	require.ErrorIs(t, ge, kind)
	return ge
}

func TestGateway_ExampleScenario(t *testing.T) {
	f := newGatewayFixture(t)
	f.setKey(func(k *apikey.APIKey) { k.RequestsToday = 49 })
	f.checker.fn = func(ctx context.Context, token, username string) (*discord.Result, error) {
		assert.Equal(t, "discord-secret", token)
		return answer(username == "alice"), nil
	}
	svc := f.service()

	res, err := svc.Check(context.Background(), f.request("alice", "bob"))
	require.NoError(t, err)

	assert.Equal(t, 50, res.DailyLimit)
	assert.Equal(t, 50, res.RequestsToday)
	assert.Equal(t, 0, res.RequestsRemaining())
	require.Len(t, res.Results, 2)
	assert.Equal(t, "alice", res.Results[0].Username)
	assert.False(t, res.Results[0].Available)
	assert.Equal(t, "bob", res.Results[1].Username)
	assert.True(t, res.Results[1].Available)
	assert.Empty(t, res.Results[1].Error)

	stored := f.storedKey()
	assert.Equal(t, 50, stored.RequestsToday)
	assert.False(t, stored.IsProcessing)
	require.NotNil(t, stored.LastRequestAt)
	assert.Equal(t, f.now, *stored.LastRequestAt)

	f.now = f.now.Add(61 * time.Second)
	_, err = svc.Check(context.Background(), f.request("carol"))
	ge := requireGatewayError(t, err, ierr.ErrRateLimited)
	assert.Equal(t, "Daily limit reached", ge.Message)
	require.NotNil(t, ge.Limit)
	require.NotNil(t, ge.Used)
	assert.Equal(t, 50, *ge.Limit)
	assert.Equal(t, 50, *ge.Used)

	assert.Equal(t, []string{"alice", "bob"}, f.checker.Calls())
	assert.Equal(t, []int{200, 429}, f.auditStatuses())
}

func TestGateway_BookkeepingOnSuccess(t *testing.T) {
	f := newGatewayFixture(t)
	f.checker.fn = func(ctx context.Context, token, username string) (*discord.Result, error) {
		return answer(username == "taken"), nil
	}

	_, err := f.service().Check(context.Background(), f.request("free", "taken"))
	require.NoError(t, err)

	token := f.tokens.Get(f.tokenID)
	assert.Equal(t, int64(2), token.UsageCount)
	require.NotNil(t, token.LastUsedAt)

	history := f.usage.History(f.userID)
	require.Len(t, history, 2)
	assert.Equal(t, "free", history[0].UsernameChecked)
	assert.True(t, history[0].IsAvailable)
	assert.Equal(t, f.tokenID, history[0].TokenUsed)
	assert.JSONEq(t, `{"taken":false}`, string(history[0].APIResponse))

	stats, err := f.usage.GetStats(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalChecks)
	assert.Equal(t, int64(1), stats.AvailableFound)

	f.sink.Wait()
	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, CheckEndpoint, entries[0].Endpoint)
	assert.Equal(t, "main", entries[0].TokenName)
	assert.Equal(t, []string{"free", "taken"}, entries[0].UsernamesChecked)
	assert.Len(t, entries[0].Results, 2)
	assert.Equal(t, "203.0.113.7", entries[0].IPAddress)
	assert.Equal(t, "go-test", entries[0].UserAgent)
	assert.Empty(t, entries[0].ErrorMessage)
}

func TestGateway_QuotaMonotonicWithDayRollover(t *testing.T) {
	f := newGatewayFixture(t)
	svc := f.service()

	previous := f.storedKey().RequestsToday
	for i := 0; i < 3; i++ {
		res, err := svc.Check(context.Background(), f.request("alice"))
		require.NoError(t, err)
		assert.Equal(t, previous+1, res.RequestsToday)
		previous = res.RequestsToday
		f.now = f.now.Add(61 * time.Second)
	}
	lastReset := f.storedKey().LastResetAt

	f.now = time.Date(2025, 3, 3, 0, 0, 30, 0, time.UTC)
	res, err := svc.Check(context.Background(), f.request("alice"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RequestsToday)

	stored := f.storedKey()
	assert.Equal(t, 1, stored.RequestsToday)
	assert.True(t, stored.LastResetAt.After(lastReset))
	assert.Equal(t, f.now, stored.LastResetAt)
}

func TestGateway_ExhaustedQuotaResetsNextDay(t *testing.T) {
	f := newGatewayFixture(t)
	f.setKey(func(k *apikey.APIKey) {
		k.RequestsToday = 50
		k.LastResetAt = f.now.Add(-36 * time.Hour)
	})

	res, err := f.service().Check(context.Background(), f.request("alice"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RequestsToday)
	assert.Equal(t, 49, res.RequestsRemaining())
}

func TestGateway_LockExclusivity(t *testing.T) {
	f := newGatewayFixture(t)
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	f.checker.fn = func(ctx context.Context, token, username string) (*discord.Result, error) {
		once.Do(func() { close(entered) })
		<-proceed
		return answer(false), nil
	}
	svc := f.service()

	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, firstErr = svc.Check(context.Background(), f.request("alice"))
	}()

	<-entered
	assert.True(t, f.storedKey().IsProcessing)

	_, err := svc.Check(context.Background(), f.request("bob"))
	ge := requireGatewayError(t, err, ierr.ErrRateLimited)
	assert.Contains(t, ge.Message, "already processing")

	close(proceed)
	<-done
	require.NoError(t, firstErr)

	assert.False(t, f.storedKey().IsProcessing)
	assert.Equal(t, 1, f.storedKey().RequestsToday)
	assert.ElementsMatch(t, []int{200, 429}, f.auditStatuses())
}

func TestGateway_StaleFlagRejected(t *testing.T) {
	f := newGatewayFixture(t)
	f.setKey(func(k *apikey.APIKey) { k.IsProcessing = true })

	_, err := f.service().Check(context.Background(), f.request("alice"))
	requireGatewayError(t, err, ierr.ErrRateLimited)
	assert.Empty(t, f.checker.Calls())
	assert.Equal(t, []int{429}, f.auditStatuses())
}

func TestGateway_LockReleasedOnErrorPaths(t *testing.T) {
	t.Run("token missing", func(t *testing.T) {
		f := newGatewayFixture(t)
		req := f.request("alice")
		req.TokenName = "nope"

		_, err := f.service().Check(context.Background(), req)
		ge := requireGatewayError(t, err, ierr.ErrNotFound)
		assert.Equal(t, "Token not found or inactive", ge.Message)

		stored := f.storedKey()
		assert.False(t, stored.IsProcessing)
		assert.Equal(t, 0, stored.RequestsToday)
		assert.Nil(t, stored.LastRequestAt)
		assert.Equal(t, []int{404}, f.auditStatuses())
	})

	t.Run("token inactive", func(t *testing.T) {
		f := newGatewayFixture(t)
		_, err := f.tokens.Create(context.Background(), &checktoken.Token{UserID: f.userID, Name: "old", Value: "x"})
		require.NoError(t, err)
		req := f.request("alice")
		req.TokenName = "old"

		_, err = f.service().Check(context.Background(), req)
		requireGatewayError(t, err, ierr.ErrNotFound)
		assert.False(t, f.storedKey().IsProcessing)
		assert.Empty(t, f.checker.Calls())
	})

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("upstream panics at concurrency %d", concurrency), func(t *testing.T) {
			f := newGatewayFixture(t)
			f.cfg.UpstreamConcurrency = concurrency
			f.checker.fn = func(ctx context.Context, token, username string) (*discord.Result, error) {
				if username == "bob" {
					panic("boom")
				}
				return answer(false), nil
			}

			var (
				res *BatchResult
				err error
			)
			require.NotPanics(t, func() {
				res, err = f.service().Check(context.Background(), f.request("alice", "bob", "carol"))
			})
			assert.Nil(t, res)
			ge := requireGatewayError(t, err, ierr.ErrInternalServer)
			assert.Equal(t, "Internal server error", ge.Message)

			stored := f.storedKey()
			assert.False(t, stored.IsProcessing)
			assert.Equal(t, 0, stored.RequestsToday)
			assert.Nil(t, stored.LastRequestAt)

			assert.Equal(t, []int{500}, f.auditStatuses())
			assert.Contains(t, f.audit.Entries()[0].ErrorMessage, "boom")
		})
	}
}

func TestUpstreamFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"throttled by discord", &discord.APIError{StatusCode: 429, Message: "You are being rate limited."}, "throttled"},
		{"wrapped throttling", fmt.Errorf("attempt: %w", &discord.APIError{StatusCode: 429}), "throttled"},
		{"other api error", &discord.APIError{StatusCode: 401, Message: "401: Unauthorized"}, "error"},
		{"network error", errors.New("connection reset"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, upstreamFailure(tt.err))
		})
	}
}

func TestGateway_BatchCompletenessWithPartialFailure(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			f := newGatewayFixture(t)
			f.cfg.UpstreamConcurrency = concurrency
			f.checker.fn = func(ctx context.Context, token, username string) (*discord.Result, error) {
				switch username {
				case "broken":
					return nil, errors.New("connection reset by peer")
				case "slow":
					time.Sleep(20 * time.Millisecond)
				}
				return answer(username == "taken"), nil
			}

			usernames := []string{"slow", "broken", "taken", "free", "broken"}
			res, err := f.service().Check(context.Background(), f.request(usernames...))
			require.NoError(t, err)
			require.Len(t, res.Results, len(usernames))

			for i, r := range res.Results {
				assert.Equal(t, usernames[i], r.Username)
			}
			assert.True(t, res.Results[0].Available)
			assert.False(t, res.Results[1].Available)
			assert.Equal(t, "connection reset by peer", res.Results[1].Error)
			assert.Nil(t, res.Results[1].Response)
			assert.False(t, res.Results[2].Available)
			assert.True(t, res.Results[3].Available)
			assert.NotEmpty(t, res.Results[4].Error)

			stats, err := f.usage.GetStats(context.Background(), f.userID)
			require.NoError(t, err)
			assert.Equal(t, int64(3), stats.TotalChecks)
			assert.Equal(t, int64(2), stats.AvailableFound)
			assert.Equal(t, 1, f.storedKey().RequestsToday)
		})
	}
}

type failingUsage struct {
	*memstorage.UsageRepository
}

func (failingUsage) AppendHistory(ctx context.Context, entry *usage.HistoryEntry) error {
	return errors.New("history table unavailable")
}

func (failingUsage) IncrementStats(ctx context.Context, userID uuid.UUID, available bool, at time.Time) error {
	return errors.New("stats table unavailable")
}

func TestGateway_BookkeepingFailureDoesNotAlterResult(t *testing.T) {
	f := newGatewayFixture(t)
	svc := f.service()
	svc.deps.Usage = failingUsage{f.usage}

	res, err := svc.Check(context.Background(), f.request("alice"))
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].Available)
	assert.Empty(t, res.Results[0].Error)
	assert.Equal(t, 1, res.RequestsToday)
}

func TestGateway_RevokedKeyShortCircuits(t *testing.T) {
	f := newGatewayFixture(t)
	f.setKey(func(k *apikey.APIKey) {
		k.Status = apikey.StatusRevoked
		k.RequestsToday = 7
	})

	_, err := f.service().Check(context.Background(), f.request("alice"))
	ge := requireGatewayError(t, err, ierr.ErrUnauthorized)
	assert.Equal(t, "Invalid or revoked API key", ge.Message)

	stored := f.storedKey()
	assert.Equal(t, 7, stored.RequestsToday)
	assert.False(t, stored.IsProcessing)
	assert.Empty(t, f.checker.Calls())
	assert.Empty(t, f.auditStatuses())
}

func TestGateway_UnknownAndTamperedKeys(t *testing.T) {
	f := newGatewayFixture(t)
	svc := f.service()

	for _, key := range []string{"garbage", "uc_zzzzzzzz_" + "x", f.fullKey + "tampered"} {
		req := f.request("alice")
		req.APIKey = key
		_, err := svc.Check(context.Background(), req)
		requireGatewayError(t, err, ierr.ErrUnauthorized)
	}
	assert.Empty(t, f.auditStatuses())
}

func TestGateway_BannedUser(t *testing.T) {
	t.Run("temporary ban", func(t *testing.T) {
		f := newGatewayFixture(t)
		until := f.now.Add(48 * time.Hour)
		f.bans.Add(&ban.Ban{UserID: f.userID, Reason: "abuse", ExpiresAt: &until})

		_, err := f.service().Check(context.Background(), f.request("alice"))
		ge := requireGatewayError(t, err, ierr.ErrForbidden)
		assert.Equal(t, "API access banned", ge.Message)
		assert.Equal(t, "abuse", ge.Reason)
		require.NotNil(t, ge.BannedUntil)
		assert.Equal(t, until, *ge.BannedUntil)

		assert.Empty(t, f.checker.Calls())
		assert.Equal(t, 0, f.storedKey().RequestsToday)

		f.sink.Wait()
		entries := f.audit.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, 403, entries[0].StatusCode)
		assert.Contains(t, entries[0].ErrorMessage, "abuse")
	})

	t.Run("permanent ban", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.bans.Add(&ban.Ban{UserID: f.userID, Reason: "fraud"})

		_, err := f.service().Check(context.Background(), f.request("alice"))
		ge := requireGatewayError(t, err, ierr.ErrForbidden)
		assert.Nil(t, ge.BannedUntil)
		assert.Equal(t, []int{403}, f.auditStatuses())
	})

	t.Run("expired ban", func(t *testing.T) {
		f := newGatewayFixture(t)
		past := f.now.Add(-time.Minute)
		f.bans.Add(&ban.Ban{UserID: f.userID, Reason: "old", ExpiresAt: &past})

		_, err := f.service().Check(context.Background(), f.request("alice"))
		require.NoError(t, err)
	})
}

func TestGateway_CooldownWindow(t *testing.T) {
	t.Run("within window", func(t *testing.T) {
		f := newGatewayFixture(t)
		last := f.now.Add(-30 * time.Second)
		f.setKey(func(k *apikey.APIKey) { k.LastRequestAt = &last })

		_, err := f.service().Check(context.Background(), f.request("alice"))
		ge := requireGatewayError(t, err, ierr.ErrRateLimited)
		require.NotNil(t, ge.RetryAfter)
		assert.Greater(t, *ge.RetryAfter, 0)
		assert.LessOrEqual(t, *ge.RetryAfter, 30)
		assert.Empty(t, f.checker.Calls())
		assert.Equal(t, []int{429}, f.auditStatuses())
	})

	t.Run("fractional elapsed rounds up", func(t *testing.T) {
		f := newGatewayFixture(t)
		last := f.now.Add(-59*time.Second - 500*time.Millisecond)
		f.setKey(func(k *apikey.APIKey) { k.LastRequestAt = &last })

		_, err := f.service().Check(context.Background(), f.request("alice"))
		ge := requireGatewayError(t, err, ierr.ErrRateLimited)
		assert.Equal(t, 1, *ge.RetryAfter)
	})

	t.Run("window passed", func(t *testing.T) {
		f := newGatewayFixture(t)
		last := f.now.Add(-61 * time.Second)
		f.setKey(func(k *apikey.APIKey) { k.LastRequestAt = &last })

		_, err := f.service().Check(context.Background(), f.request("alice"))
		require.NoError(t, err)
	})
}

func TestGateway_InvalidBatches(t *testing.T) {
	for _, usernames := range [][]string{nil, {}, make([]string, 11)} {
		t.Run(fmt.Sprintf("%d usernames", len(usernames)), func(t *testing.T) {
			f := newGatewayFixture(t)
			req := f.request()
			req.Usernames = usernames

			_, err := f.service().Check(context.Background(), req)
			ge := requireGatewayError(t, err, ierr.ErrValidation)
			assert.Equal(t, "Invalid usernames array (must be 1-10 usernames)", ge.Message)

			assert.Empty(t, f.checker.Calls())
			assert.Empty(t, f.auditStatuses())
			stored := f.storedKey()
			assert.Equal(t, 0, stored.RequestsToday)
			assert.Nil(t, stored.LastRequestAt)
			assert.False(t, stored.IsProcessing)
		})
	}
}

func TestGateway_HeadersCheckedBeforeBody(t *testing.T) {
	f := newGatewayFixture(t)
	svc := f.service()

	_, err := svc.Check(context.Background(), CheckRequest{Usernames: nil})
	ge := requireGatewayError(t, err, ierr.ErrUnauthorized)
	assert.Equal(t, "Missing API key or token name", ge.Message)

	req := f.request("alice")
	req.TokenName = ""
	_, err = svc.Check(context.Background(), req)
	requireGatewayError(t, err, ierr.ErrUnauthorized)
}

func TestGateway_PremiumLimits(t *testing.T) {
	t.Run("subscription", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.plans.SetPlan(f.userID, subscription.PlanPremium)
		f.setKey(func(k *apikey.APIKey) { k.RequestsToday = 50 })

		res, err := f.service().Check(context.Background(), f.request("alice"))
		require.NoError(t, err)
		assert.Equal(t, 100, res.DailyLimit)
		assert.Equal(t, 49, res.RequestsRemaining())
	})

	t.Run("configured premium user", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.cfg.PremiumUserIDs = []string{f.userID.String()}

		res, err := f.service().Check(context.Background(), f.request("alice"))
		require.NoError(t, err)
		assert.Equal(t, 100, res.DailyLimit)
	})
}

type brokenPlans struct{}

func (brokenPlans) PlanFor(ctx context.Context, userID uuid.UUID) (subscription.Plan, error) {
	return "", errors.New("connection refused")
}

func TestGateway_InternalErrorIsAudited(t *testing.T) {
	f := newGatewayFixture(t)
	svc := f.service()
	svc.deps.Quota = NewQuotaPolicy(brokenPlans{}, f.cfg, zap.NewNop())

	_, err := svc.Check(context.Background(), f.request("alice"))
	ge := requireGatewayError(t, err, ierr.ErrInternalServer)
	assert.Equal(t, "Internal server error", ge.Message)
	assert.False(t, f.storedKey().IsProcessing)

	f.sink.Wait()
	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 500, entries[0].StatusCode)
	assert.Contains(t, entries[0].ErrorMessage, "connection refused")
}

func TestGateway_CancelledRequestStillFinalizes(t *testing.T) {
	f := newGatewayFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.checker.fn = func(c context.Context, token, username string) (*discord.Result, error) {
		cancel()
		return nil, c.Err()
	}

	res, err := f.service().Check(ctx, f.request("alice", "bob"))
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.NotEmpty(t, res.Results[1].Error)

	stored := f.storedKey()
	assert.False(t, stored.IsProcessing)
	assert.Equal(t, 1, stored.RequestsToday)
}
