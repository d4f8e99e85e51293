package schedule

import (
	"context"
	"time"

	"github.com/reysilvaa/rosantibike-motorent/test"
)

type MockScheduler struct {
	ScheduleAtFunc func(ctx context.Context, key Key, fireAt time.Time, payload []byte) (Job, error)
	CancelFunc     func(ctx context.Context, transactionID uint64, kinds ...Kind) error
	*test.CallWatcher
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		ScheduleAtFunc: func(ctx context.Context, key Key, fireAt time.Time, payload []byte) (Job, error) {
			return Job{Key: key, FireAt: fireAt, Payload: payload, Status: Pending}, nil
		},
		CancelFunc:  func(ctx context.Context, transactionID uint64, kinds ...Kind) error { return nil },
		CallWatcher: test.NewCallWatcher(),
	}
}

func (m *MockScheduler) ScheduleAt(ctx context.Context, key Key, fireAt time.Time, payload []byte) (Job, error) {
	m.AddCall(ctx, key, fireAt, payload)
	return m.ScheduleAtFunc(ctx, key, fireAt, payload)
}

func (m *MockScheduler) Cancel(ctx context.Context, transactionID uint64, kinds ...Kind) error {
	m.AddCall(ctx, transactionID, kinds)
	return m.CancelFunc(ctx, transactionID, kinds...)
}

// Scheduled returns the fire time last passed to ScheduleAt for each key.
func (m *MockScheduler) Scheduled() map[Key]time.Time {
	scheduled := make(map[Key]time.Time)
	for _, call := range m.GetCall("ScheduleAt") {
		scheduled[call[1].(Key)] = call[2].(time.Time)
	}
	return scheduled
}
