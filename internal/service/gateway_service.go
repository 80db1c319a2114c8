package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/makkenzo/username-check-api/internal/config"
	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/domain/auditlog"
	"github.com/makkenzo/username-check-api/internal/domain/ban"
	"github.com/makkenzo/username-check-api/internal/domain/checktoken"
	"github.com/makkenzo/username-check-api/internal/domain/usage"
	"github.com/makkenzo/username-check-api/internal/ierr"
	"github.com/makkenzo/username-check-api/internal/metrics"
	"github.com/makkenzo/username-check-api/internal/upstream/discord"
)

const (
	CheckEndpoint = "/check-api-username"

	finalizeTimeout = 5 * time.Second

	msgMissingCredentials = "Missing API key or token name"
	msgInvalidKey         = "Invalid or revoked API key"
	msgBanned             = "API access banned"
	msgAlreadyProcessing  = "API key is already processing a request. Please wait."
	msgCooldown           = "Rate limit exceeded"
	msgDailyLimit         = "Daily limit reached"
	msgTokenNotFound      = "Token not found or inactive"
	msgInternal           = "Internal server error"
)

type Authenticator interface {
	Authenticate(ctx context.Context, fullKey string) (*apikey.APIKey, error)
}

// UsernameChecker is the upstream availability oracle.
type UsernameChecker interface {
	CheckUsername(ctx context.Context, token, username string) (*discord.Result, error)
}

type CheckRequest struct {
	APIKey    string
	TokenName string
	Usernames []string
	IPAddress string
	UserAgent string
}

// BatchResult is an accepted check: one result per submitted username, in
// submission order.
type BatchResult struct {
	Results       []usage.CheckResult
	RequestsToday int
	DailyLimit    int
}

func (r *BatchResult) RequestsRemaining() int {
	return max(0, r.DailyLimit-r.RequestsToday)
}

type GatewayDeps struct {
	Auth    Authenticator
	Keys    apikey.Repository
	Bans    ban.Repository
	Quota   *QuotaPolicy
	Tokens  checktoken.Repository
	Usage   usage.Repository
	Audit   AuditSink
	Checker UsernameChecker
}

type GatewayService struct {
	deps        GatewayDeps
	maxBatch    int
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
}

type GatewayOption func(*GatewayService)

// WithClock replaces time.Now for policy decisions.
func WithClock(now func() time.Time) GatewayOption {
	return func(s *GatewayService) {
		s.now = now
	}
}

func NewGatewayService(deps GatewayDeps, cfg config.GatewayConfig, logger *zap.Logger, opts ...GatewayOption) *GatewayService {
	s := &GatewayService{
		deps:        deps,
		maxBatch:    cfg.MaxBatchSize,
		concurrency: max(1, cfg.UpstreamConcurrency),
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.Named("GatewayService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateHeaders checks the credential headers. It runs before the body is
// looked at.
func (s *GatewayService) ValidateHeaders(req CheckRequest) error {
	if req.APIKey == "" || req.TokenName == "" {
		return ierr.NewGatewayError(ierr.ErrUnauthorized, msgMissingCredentials)
	}
	return nil
}

func (s *GatewayService) ValidateUsernames(usernames []string) error {
	if len(usernames) == 0 || len(usernames) > s.maxBatch {
		return ierr.NewGatewayError(ierr.ErrValidation,
			fmt.Sprintf("Invalid usernames array (must be 1-%d usernames)", s.maxBatch))
	}
	return nil
}

// Check runs one batch through the policy chain. Failures are returned as
// *ierr.GatewayError; everything after credential resolution is audited.
func (s *GatewayService) Check(ctx context.Context, req CheckRequest) (*BatchResult, error) {
	started := time.Now()

	if err := s.ValidateHeaders(req); err != nil {
		metrics.RecordGatewayOutcome(ierr.Kind(err))
		return nil, err
	}
	if err := s.ValidateUsernames(req.Usernames); err != nil {
		metrics.RecordGatewayOutcome(ierr.Kind(err))
		return nil, err
	}

	key, err := s.deps.Auth.Authenticate(ctx, req.APIKey)
	if err != nil {
		if errors.Is(err, ierr.ErrUnauthorized) {
			err = ierr.NewGatewayError(ierr.ErrUnauthorized, msgInvalidKey)
		} else {
			s.logger.Error("Credential lookup failed", zap.Error(err))
			err = ierr.NewGatewayError(ierr.ErrInternalServer, msgInternal)
		}
		metrics.RecordGatewayOutcome(ierr.Kind(err))
		return nil, err
	}

	result, err := s.guardedProcess(ctx, key, req)
	if err != nil {
		var ge *ierr.GatewayError
		if !errors.As(err, &ge) {
			s.logger.Error("Check failed unexpectedly", zap.String("key_id", key.ID.String()), zap.Error(err))
			ge = ierr.NewGatewayError(ierr.ErrInternalServer, msgInternal)
			ge.Reason = err.Error()
		}
		s.audit(key, req, ierr.HTTPStatus(ge), nil, auditMessage(ge), started)
		metrics.RecordGatewayOutcome(ierr.Kind(ge))
		return nil, ge
	}

	s.audit(key, req, ierr.HTTPStatus(nil), result.Results, "", started)
	metrics.RecordGatewayOutcome(ierr.Kind(nil))
	return result, nil
}

// guardedProcess turns a panic anywhere in the chain into an internal error,
// so the outcome is still audited. The processing flag is released by the
// deferred release in process before the panic reaches here.
func (s *GatewayService) guardedProcess(ctx context.Context, key *apikey.APIKey, req CheckRequest) (result *BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Check panicked", zap.String("key_id", key.ID.String()), zap.Any("panic", r), zap.Stack("stack"))
			result, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.process(ctx, key, req)
}

func (s *GatewayService) process(ctx context.Context, key *apikey.APIKey, req CheckRequest) (*BatchResult, error) {
	now := s.now()
	log := s.logger.With(zap.String("key_id", key.ID.String()), zap.String("user_id", key.UserID.String()))

	activeBan, err := s.deps.Bans.FindActive(ctx, key.UserID, now)
	switch {
	case err == nil:
		log.Info("Banned user rejected", zap.String("reason", activeBan.Reason))
		ge := ierr.NewGatewayError(ierr.ErrForbidden, msgBanned)
		ge.BannedUntil = activeBan.ExpiresAt
		ge.Reason = activeBan.Reason
		return nil, ge
	case !errors.Is(err, ban.ErrNotBanned):
		return nil, fmt.Errorf("ban lookup: %w", err)
	}

	if key.IsProcessing {
		return nil, ierr.NewGatewayError(ierr.ErrRateLimited, msgAlreadyProcessing)
	}

	if wait := key.CooldownRemaining(now); wait > 0 {
		ge := ierr.NewGatewayError(ierr.ErrRateLimited, msgCooldown)
		retryAfter := int(math.Ceil(wait.Seconds()))
		ge.RetryAfter = &retryAfter
		return nil, ge
	}

	_, limit, err := s.deps.Quota.Resolve(ctx, key.UserID)
	if err != nil {
		return nil, err
	}

	used, err := s.deps.Keys.ResetDailyUsageIfStale(ctx, key.ID, apikey.DayStart(now), now)
	if err != nil {
		return nil, fmt.Errorf("daily usage reset: %w", err)
	}
	if used >= limit {
		ge := ierr.NewGatewayError(ierr.ErrRateLimited, msgDailyLimit)
		ge.Limit = &limit
		ge.Used = &used
		return nil, ge
	}

	if err := s.deps.Keys.TryAcquireProcessing(ctx, key.ID, now); err != nil {
		if errors.Is(err, apikey.ErrAlreadyLocked) {
			return nil, ierr.NewGatewayError(ierr.ErrRateLimited, msgAlreadyProcessing)
		}
		return nil, fmt.Errorf("acquire processing flag: %w", err)
	}

	finalized := false
	defer func() {
		if !finalized {
			s.release(ctx, key.ID)
		}
	}()

	token, err := s.deps.Tokens.FindByName(ctx, key.UserID, req.TokenName)
	switch {
	case errors.Is(err, checktoken.ErrNotFound):
		log.Info("Check token not found", zap.String("token_name", req.TokenName))
		return nil, ierr.NewGatewayError(ierr.ErrNotFound, msgTokenNotFound)
	case err != nil:
		return nil, fmt.Errorf("token lookup: %w", err)
	case !token.IsActive:
		log.Info("Check token inactive", zap.String("token_name", req.TokenName))
		return nil, ierr.NewGatewayError(ierr.ErrNotFound, msgTokenNotFound)
	}

	results, err := s.dispatch(ctx, key.UserID, token, req.Usernames)
	if err != nil {
		return nil, err
	}

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	requestsToday, err := s.deps.Keys.CompleteRequest(finalizeCtx, key.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("finalize request: %w", err)
	}
	finalized = true

	log.Info("Check completed", zap.Int("usernames", len(results)), zap.Int("requests_today", requestsToday))
	return &BatchResult{Results: results, RequestsToday: requestsToday, DailyLimit: limit}, nil
}

// dispatch checks every username and keeps submission order. With
// concurrency 1 the calls run strictly one after another. A panic in a
// fan-out goroutine comes back as an error instead of crashing the process.
func (s *GatewayService) dispatch(ctx context.Context, userID uuid.UUID, token *checktoken.Token, usernames []string) ([]usage.CheckResult, error) {
	results := make([]usage.CheckResult, len(usernames))

	if s.concurrency == 1 {
		for i, username := range usernames {
			results[i] = s.checkOne(ctx, userID, token, username)
		}
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, username := range usernames {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Upstream check panicked", zap.String("username", username), zap.Any("panic", r), zap.Stack("stack"))
					err = fmt.Errorf("check %q panicked: %v", username, r)
				}
			}()
			results[i] = s.checkOne(ctx, userID, token, username)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *GatewayService) checkOne(ctx context.Context, userID uuid.UUID, token *checktoken.Token, username string) usage.CheckResult {
	started := time.Now()
	res, err := s.deps.Checker.CheckUsername(ctx, token.Value, username)
	elapsed := time.Since(started)

	if err != nil {
		metrics.RecordUpstreamCheck(upstreamFailure(err), elapsed)
		s.logger.Warn("Upstream check failed", zap.String("username", username), zap.Error(err))
		return usage.CheckResult{Username: username, Available: false, Error: err.Error()}
	}

	if res.Available() {
		metrics.RecordUpstreamCheck("available", elapsed)
	} else {
		metrics.RecordUpstreamCheck("taken", elapsed)
	}

	s.recordUsage(ctx, userID, token, username, res, elapsed)
	return usage.CheckResult{Username: username, Available: res.Available(), Response: res.Raw}
}

// upstreamFailure labels a failed check. Throttling by Discord is kept apart
// from other failures since it means the check token is being overused.
func upstreamFailure(err error) string {
	if errors.Is(err, discord.ErrRateLimited) {
		return "throttled"
	}
	return "error"
}

// recordUsage books a successful check. Failures are logged only.
func (s *GatewayService) recordUsage(ctx context.Context, userID uuid.UUID, token *checktoken.Token, username string, res *discord.Result, elapsed time.Duration) {
	at := s.now()
	log := s.logger.With(zap.String("user_id", userID.String()), zap.String("username", username))

	if err := s.deps.Tokens.RecordUsage(ctx, token.ID, at); err != nil {
		log.Error("Failed to record token usage", zap.String("token_id", token.ID.String()), zap.Error(err))
	}

	entry := &usage.HistoryEntry{
		UserID:          userID,
		UsernameChecked: username,
		IsAvailable:     res.Available(),
		APIResponse:     res.Raw,
		TokenUsed:       token.ID,
		ResponseTimeMs:  elapsed.Milliseconds(),
		CheckedAt:       at,
	}
	if err := s.deps.Usage.AppendHistory(ctx, entry); err != nil {
		log.Error("Failed to append check history", zap.Error(err))
	}

	if err := s.deps.Usage.IncrementStats(ctx, userID, res.Available(), at); err != nil {
		log.Error("Failed to increment user stats", zap.Error(err))
	}
}

func (s *GatewayService) release(ctx context.Context, id uuid.UUID) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := s.deps.Keys.ReleaseProcessing(releaseCtx, id); err != nil {
		s.logger.Error("Failed to release processing flag", zap.String("key_id", id.String()), zap.Error(err))
	}
}

func (s *GatewayService) audit(key *apikey.APIKey, req CheckRequest, status int, results []usage.CheckResult, errMsg string, started time.Time) {
	s.deps.Audit.Record(&auditlog.Entry{
		APIKeyID:         key.ID,
		UserID:           key.UserID,
		Endpoint:         CheckEndpoint,
		TokenName:        req.TokenName,
		UsernamesChecked: req.Usernames,
		Results:          results,
		StatusCode:       status,
		IPAddress:        req.IPAddress,
		UserAgent:        req.UserAgent,
		ErrorMessage:     errMsg,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		CreatedAt:        s.now(),
	})
}

func auditMessage(ge *ierr.GatewayError) string {
	switch {
	case errors.Is(ge, ierr.ErrForbidden) && ge.BannedUntil != nil:
		return fmt.Sprintf("Banned until %s: %s", ge.BannedUntil.Format(time.RFC3339), ge.Reason)
	case errors.Is(ge, ierr.ErrForbidden):
		return fmt.Sprintf("Banned permanently: %s", ge.Reason)
	case ge.Limit != nil:
		return fmt.Sprintf("%s (%d requests)", ge.Message, *ge.Limit)
	case ge.RetryAfter != nil:
		return fmt.Sprintf("%s (retry after %ds)", ge.Message, *ge.RetryAfter)
	case ge.Reason != "":
		return fmt.Sprintf("%s: %s", ge.Message, ge.Reason)
	default:
		return ge.Message
	}
}
