package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeResetCounters = "apikey:counters:reset"
	TypeReleaseLocks  = "apikey:locks:release"
)

// HousekeepingPayload is shared by the periodic credential maintenance tasks.
type HousekeepingPayload struct{}

func NewResetCountersTask(opts ...asynq.Option) (*asynq.Task, error) {
	return newHousekeepingTask(TypeResetCounters, time.Hour, opts...)
}

func NewReleaseLocksTask(opts ...asynq.Option) (*asynq.Task, error) {
	return newHousekeepingTask(TypeReleaseLocks, 30*time.Second, opts...)
}

func newHousekeepingTask(typename string, unique time.Duration, opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(HousekeepingPayload{})
	if err != nil {
		return nil, err
	}

	allOpts := append([]asynq.Option{asynq.Unique(unique)}, opts...)
	return asynq.NewTask(typename, payloadBytes, allOpts...), nil
}
