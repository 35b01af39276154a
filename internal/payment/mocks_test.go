package payment

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateSession(ctx context.Context, req ChargeSessionRequest) (*ChargeSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ChargeSession), args.Error(1)
}

func (m *MockGateway) GetCharge(ctx context.Context, handle string) (*Charge, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Charge), args.Error(1)
}

func (m *MockGateway) CancelCharge(ctx context.Context, handle string) (*Charge, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Charge), args.Error(1)
}

func (m *MockGateway) SettleCharge(ctx context.Context, handle string, amount int64) (*Charge, error) {
	args := m.Called(ctx, handle, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Charge), args.Error(1)
}

func (m *MockGateway) RefundCharge(ctx context.Context, handle string, amount int64) (*Refund, error) {
	args := m.Called(ctx, handle, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Refund), args.Error(1)
}

// memoryStore is an in-memory OrderStore keyed by order number.
type memoryStore struct {
	data    map[string]map[string]string
	getErr  error
	setErr  error
	setKeys []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]map[string]string)}
}

func (s *memoryStore) GetMetadata(_ context.Context, orderNumber, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	return s.data[orderNumber][key], nil
}

func (s *memoryStore) SetMetadata(_ context.Context, orderNumber, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	if s.data[orderNumber] == nil {
		s.data[orderNumber] = make(map[string]string)
	}
	s.data[orderNumber][key] = value
	s.setKeys = append(s.setKeys, key)
	return nil
}
