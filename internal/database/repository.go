package database

import "context"

// ChatRepository answers chat participation questions for the coordinator.
type ChatRepository interface {
	Ping() error
	GetFriendById(ctx context.Context, id string) (Friend, error)
	GetGroupById(ctx context.Context, id string) (Group, error)
	ListAcceptedFriendships(ctx context.Context, userId string) ([]Friend, error)
}
