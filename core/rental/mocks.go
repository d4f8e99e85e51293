package rental

import (
	"context"
	"time"
)

type MockService struct {
	CreateFunc   func(ctx context.Context, req CreateRequest) (Transaction, error)
	GetFunc      func(ctx context.Context, ID uint64) (Transaction, error)
	ListFunc     func(ctx context.Context, options ListOptions, limit, offset int) ([]Transaction, error)
	UpdateFunc   func(ctx context.Context, ID uint64, req UpdateRequest) (Transaction, error)
	CompleteFunc func(ctx context.Context, ID uint64) (Transaction, error)
	DeleteFunc   func(ctx context.Context, ID uint64) error

	CalculatePriceFunc      func(ctx context.Context, req PriceRequest) (PriceQuote, error)
	CheckAvailabilityFunc   func(ctx context.Context, req AvailabilityRequest) error
	CatalogAvailabilityFunc func(ctx context.Context, startDate, endDate time.Time, typeID uint64) ([]UnitAvailability, error)

	GetUnitFunc   func(ctx context.Context, ID uint64) (MotorUnit, error)
	ListUnitsFunc func(ctx context.Context, options UnitListOptions, limit, offset int) ([]MotorUnit, error)
	SaveUnitFunc  func(ctx context.Context, unit MotorUnit) (MotorUnit, error)

	SubscribeFunc   func(ch chan<- TransactionEvent) SubscriptionID
	UnsubscribeFunc func(id SubscriptionID)
}

func NewMockService() MockService {
	return MockService{
		CreateFunc: func(ctx context.Context, req CreateRequest) (Transaction, error) { return Transaction{}, nil },
		GetFunc:    func(ctx context.Context, ID uint64) (Transaction, error) { return Transaction{ID: ID}, nil },
		ListFunc: func(ctx context.Context, options ListOptions, limit, offset int) ([]Transaction, error) {
			return []Transaction{}, nil
		},
		UpdateFunc: func(ctx context.Context, ID uint64, req UpdateRequest) (Transaction, error) {
			return Transaction{ID: ID}, nil
		},
		CompleteFunc: func(ctx context.Context, ID uint64) (Transaction, error) {
			return Transaction{ID: ID, Status: Completed}, nil
		},
		DeleteFunc: func(ctx context.Context, ID uint64) error { return nil },

		CalculatePriceFunc:    func(ctx context.Context, req PriceRequest) (PriceQuote, error) { return PriceQuote{}, nil },
		CheckAvailabilityFunc: func(ctx context.Context, req AvailabilityRequest) error { return nil },
		CatalogAvailabilityFunc: func(ctx context.Context, startDate, endDate time.Time, typeID uint64) ([]UnitAvailability, error) {
			return []UnitAvailability{}, nil
		},

		GetUnitFunc: func(ctx context.Context, ID uint64) (MotorUnit, error) { return MotorUnit{ID: ID}, nil },
		ListUnitsFunc: func(ctx context.Context, options UnitListOptions, limit, offset int) ([]MotorUnit, error) {
			return []MotorUnit{}, nil
		},
		SaveUnitFunc: func(ctx context.Context, unit MotorUnit) (MotorUnit, error) { return unit, nil },

		SubscribeFunc:   func(ch chan<- TransactionEvent) SubscriptionID { return "" },
		UnsubscribeFunc: func(id SubscriptionID) {},
	}
}

func (m *MockService) Create(ctx context.Context, req CreateRequest) (Transaction, error) {
	return m.CreateFunc(ctx, req)
}

func (m *MockService) Get(ctx context.Context, ID uint64) (Transaction, error) {
	return m.GetFunc(ctx, ID)
}

func (m *MockService) List(ctx context.Context, options ListOptions, limit, offset int) ([]Transaction, error) {
	return m.ListFunc(ctx, options, limit, offset)
}

func (m *MockService) Update(ctx context.Context, ID uint64, req UpdateRequest) (Transaction, error) {
	return m.UpdateFunc(ctx, ID, req)
}

func (m *MockService) Complete(ctx context.Context, ID uint64) (Transaction, error) {
	return m.CompleteFunc(ctx, ID)
}

func (m *MockService) Delete(ctx context.Context, ID uint64) error {
	return m.DeleteFunc(ctx, ID)
}

func (m *MockService) CalculatePrice(ctx context.Context, req PriceRequest) (PriceQuote, error) {
	return m.CalculatePriceFunc(ctx, req)
}

func (m *MockService) CheckAvailability(ctx context.Context, req AvailabilityRequest) error {
	return m.CheckAvailabilityFunc(ctx, req)
}

func (m *MockService) CatalogAvailability(ctx context.Context, startDate, endDate time.Time, typeID uint64) ([]UnitAvailability, error) {
	return m.CatalogAvailabilityFunc(ctx, startDate, endDate, typeID)
}

func (m *MockService) GetUnit(ctx context.Context, ID uint64) (MotorUnit, error) {
	return m.GetUnitFunc(ctx, ID)
}

func (m *MockService) ListUnits(ctx context.Context, options UnitListOptions, limit, offset int) ([]MotorUnit, error) {
	return m.ListUnitsFunc(ctx, options, limit, offset)
}

func (m *MockService) SaveUnit(ctx context.Context, unit MotorUnit) (MotorUnit, error) {
	return m.SaveUnitFunc(ctx, unit)
}

func (m *MockService) Subscribe(ch chan<- TransactionEvent) SubscriptionID {
	return m.SubscribeFunc(ch)
}

func (m *MockService) Unsubscribe(id SubscriptionID) {
	m.UnsubscribeFunc(id)
}
