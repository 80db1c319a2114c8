package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/config"
	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/domain/checktoken"
	"github.com/makkenzo/username-check-api/internal/handler/middleware"
	"github.com/makkenzo/username-check-api/internal/service"
	"github.com/makkenzo/username-check-api/internal/storage/memstorage"
	"github.com/makkenzo/username-check-api/internal/upstream/discord"
	"github.com/makkenzo/username-check-api/internal/util"
)

type stubChecker struct {
	mu    sync.Mutex
	calls int
}

// CheckUsername reports "taken" as the only unavailable name and panics on
// "explode".
func (s *stubChecker) CheckUsername(ctx context.Context, token, username string) (*discord.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if username == "explode" {
		panic("checker exploded")
	}
	taken := username == "taken"
	raw, _ := json.Marshal(map[string]bool{"taken": taken})
	return &discord.Result{Taken: taken, Raw: raw}, nil
}

func (s *stubChecker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

type testEnv struct {
	router  *gin.Engine
	keys    *memstorage.APIKeyRepository
	bans    *memstorage.BanRepository
	plans   *memstorage.SubscriptionRepository
	tokens  *memstorage.CheckTokenRepository
	usage   *memstorage.UsageRepository
	audit   *memstorage.AuditLogRepository
	sink    *service.AsyncAuditSink
	auth    *service.AuthService
	checker *stubChecker

	userID  uuid.UUID
	key     *apikey.APIKey
	fullKey string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	e := &testEnv{
		keys:    memstorage.NewAPIKeyRepository(),
		bans:    memstorage.NewBanRepository(),
		plans:   memstorage.NewSubscriptionRepository(),
		tokens:  memstorage.NewCheckTokenRepository(),
		usage:   memstorage.NewUsageRepository(),
		audit:   memstorage.NewAuditLogRepository(),
		checker: &stubChecker{},
		userID:  uuid.New(),
	}
	e.sink = service.NewAsyncAuditSink(e.audit, logger)
	t.Cleanup(e.sink.Wait)

	cfg := config.GatewayConfig{
		DailyLimitFree:          50,
		DailyLimitPremium:       100,
		MaxBatchSize:            10,
		DefaultRateLimitSeconds: 60,
		UpstreamConcurrency:     1,
	}

	var err error
	e.auth, err = service.NewAuthService(&config.JWTConfig{Secret: "handler-test"}, logger)
	require.NoError(t, err)

	apiKeys := service.NewAPIKeyService(e.keys, cfg.DefaultRateLimitSeconds, logger)
	quota := service.NewQuotaPolicy(e.plans, cfg, logger)
	gateway := service.NewGatewayService(service.GatewayDeps{
		Auth:    apiKeys,
		Keys:    e.keys,
		Bans:    e.bans,
		Quota:   quota,
		Tokens:  e.tokens,
		Usage:   e.usage,
		Audit:   e.sink,
		Checker: e.checker,
	}, cfg, logger)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	e.router = gin.New()
	e.router.Use(middleware.RecoveryMiddleware(logger))
	e.router.Use(middleware.ErrorHandlerMiddleware(logger))
	RegisterRoutes(e.router, Handlers{
		Health:  NewHealthHandler(okPinger{}, rdb, logger),
		Check:   NewCheckHandler(gateway, logger),
		Account: NewAccountHandler(service.NewAccountService(e.keys, e.tokens, e.usage, e.audit, quota, logger), logger),
		APIKeys: NewAPIKeyHandler(apiKeys, logger),
		Tokens:  NewCheckTokenHandler(service.NewCheckTokenService(e.tokens, logger), logger),
	}, middleware.APIKeyAuthMiddleware(apiKeys, logger), middleware.AuthMiddleware(e.auth, logger))

	fullKey, prefix, keyHash, err := util.GenerateAPIKey()
	require.NoError(t, err)
	e.fullKey = fullKey
	e.key = e.keys.Put(&apikey.APIKey{
		UserID:           e.userID,
		KeyHash:          keyHash,
		Prefix:           prefix,
		Label:            "default",
		Status:           apikey.StatusActive,
		RateLimitSeconds: 60,
		LastResetAt:      time.Now().UTC(),
	})

	_, err = e.tokens.Create(context.Background(), &checktoken.Token{
		UserID:   e.userID,
		Name:     "main",
		Value:    "discord-secret",
		IsActive: true,
	})
	require.NoError(t, err)

	return e
}

// updateKey rewrites the stored credential.
func (e *testEnv) updateKey(fn func(k *apikey.APIKey)) {
	k := e.keys.Get(e.key.ID)
	fn(k)
	e.keys.Put(k)
}

func (e *testEnv) session(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := e.auth.IssueToken(userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}
