package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetFriendById(ctx context.Context, id string) (Friend, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Friend), args.Error(1)
}
func (m *MockChatRepository) GetGroupById(ctx context.Context, id string) (Group, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Group), args.Error(1)
}
func (m *MockChatRepository) ListAcceptedFriendships(ctx context.Context, userId string) ([]Friend, error) {
	args := m.Called(ctx, userId)
	if friends, ok := args.Get(0).([]Friend); ok {
		return friends, args.Error(1)
	}
	return nil, args.Error(1)
}
