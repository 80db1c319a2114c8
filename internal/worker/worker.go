package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/config"
	"github.com/makkenzo/username-check-api/internal/tasks"
)

// NewServeMux routes the housekeeping task types to h.
func NewServeMux(h *tasks.HousekeepingHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeResetCounters, h.ResetCounters)
	mux.HandleFunc(tasks.TypeReleaseLocks, h.ReleaseLocks)
	return mux
}

// Run starts the asynq server and scheduler and blocks until ctx is done.
func Run(ctx context.Context, cfg *config.Config, repo tasks.Housekeeper, logger *zap.Logger) error {
	redisConnOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	errLog := logger.Named("AsynqServerErrorHandler")
	srv := asynq.NewServer(
		redisConnOpts,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      map[string]int{"default": 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				errLog.Error("Asynq task processing failed",
					zap.String("task_type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err),
				)
			}),
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqServer")),
		},
	)

	scheduler := asynq.NewScheduler(
		redisConnOpts,
		&asynq.SchedulerOpts{
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqScheduler")),
		},
	)
	if err := registerSchedules(scheduler, cfg.Worker, logger); err != nil {
		return err
	}

	handler := tasks.NewHousekeepingHandler(repo, cfg.Worker.StaleLockAfter, logger)

	logger.Info("Starting Asynq Server...")
	if err := srv.Start(NewServeMux(handler)); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	logger.Info("Starting Asynq Scheduler...")
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("asynq scheduler error: %w", err)
	}

	<-ctx.Done()

	logger.Info("Shutting down Asynq Scheduler...")
	scheduler.Shutdown()
	logger.Info("Shutting down Asynq Server...")
	srv.Shutdown()
	logger.Info("Asynq workers stopped.")
	return nil
}

type scheduleRegistrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

func registerSchedules(s scheduleRegistrar, cfg config.WorkerConfig, logger *zap.Logger) error {
	schedules := []struct {
		spec    string
		newTask func(...asynq.Option) (*asynq.Task, error)
	}{
		{cfg.ResetSchedule, tasks.NewResetCountersTask},
		{cfg.LockSweepSchedule, tasks.NewReleaseLocksTask},
	}

	for _, sc := range schedules {
		task, err := sc.newTask()
		if err != nil {
			return fmt.Errorf("scheduler task creation error: %w", err)
		}
		entryID, err := s.Register(sc.spec, task)
		if err != nil {
			return fmt.Errorf("scheduler registration error for %s: %w", task.Type(), err)
		}
		logger.Info("Registered periodic task",
			zap.String("task_type", task.Type()),
			zap.String("entry_id", entryID),
			zap.String("schedule", sc.spec),
		)
	}
	return nil
}

type asynqLoggerAdapter struct {
	logger *zap.Logger
}

func NewAsynqLoggerAdapter(logger *zap.Logger) *asynqLoggerAdapter {
	return &asynqLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (l *asynqLoggerAdapter) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
