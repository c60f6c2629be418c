package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/agentchain/agentchain/internal/domain/registration"
)

// MockRepository is a mock implementation of registration.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, r *registration.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRepository) GetBySignature(ctx context.Context, signature string) (*registration.Record, error) {
	args := m.Called(ctx, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registration.Record), args.Error(1)
}

func (m *MockRepository) GetByContentRef(ctx context.Context, contentRef string) (*registration.Record, error) {
	args := m.Called(ctx, contentRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registration.Record), args.Error(1)
}

func (m *MockRepository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*registration.Record, error) {
	args := m.Called(ctx, owner, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*registration.Record), args.Error(1)
}
