package queue

import (
	"context"

	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/reysilvaa/rosantibike-motorent/test"
)

type MockEventPublisher struct {
	PublishTransactionEventFunc func(ctx context.Context, event rental.TransactionEvent) error
	*test.CallWatcher
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{
		PublishTransactionEventFunc: func(ctx context.Context, event rental.TransactionEvent) error {
			return nil
		},
		CallWatcher: test.NewCallWatcher(),
	}
}

func (m *MockEventPublisher) PublishTransactionEvent(ctx context.Context, event rental.TransactionEvent) error {
	m.AddCall(ctx, event)
	return m.PublishTransactionEventFunc(ctx, event)
}

// Events returns the types of the published events in order.
func (m *MockEventPublisher) Events() []rental.EventType {
	var types []rental.EventType
	for _, call := range m.GetCall("PublishTransactionEvent") {
		types = append(types, call[1].(rental.TransactionEvent).Type)
	}
	return types
}

type MockNotifier struct {
	SendFunc func(ctx context.Context, phone, text string) error
	*test.CallWatcher
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		SendFunc:    func(ctx context.Context, phone, text string) error { return nil },
		CallWatcher: test.NewCallWatcher(),
	}
}

func (m *MockNotifier) Send(ctx context.Context, phone, text string) error {
	m.AddCall(ctx, phone, text)
	return m.SendFunc(ctx, phone, text)
}

// Sent returns the phone numbers messages were sent to, in order.
func (m *MockNotifier) Sent() []string {
	var phones []string
	for _, call := range m.GetCall("Send") {
		phones = append(phones, call[1].(string))
	}
	return phones
}
