package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/stats"
)

// RoomManager owns chat room membership. Connections enter rooms through
// Admit once Authorize has confirmed the user is a party to the chat.
// Rooms exist only while they have at least one member.
type RoomManager struct {
	db    database.ChatRepository
	stats stats.StatsProvider
	log   *log.Logger

	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
}

func NewRoomManager(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider) *RoomManager {
	return &RoomManager{
		db:     db,
		stats:  su,
		log:    logger,
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
	}
}

// Authorize reports whether userId is a party to the chat. Any lookup
// failure, including a malformed or unknown chat id, denies the request.
func (rm *RoomManager) Authorize(ctx context.Context, userId, chatId string, isGroup bool) (bool, error) {
	if isGroup {
		g, err := rm.db.GetGroupById(ctx, chatId)
		if err != nil {
			return false, fmt.Errorf("get group: %w", err)
		}
		return g.IsParty(userId), nil
	}

	f, err := rm.db.GetFriendById(ctx, chatId)
	if err != nil {
		return false, fmt.Errorf("get friend: %w", err)
	}
	return f.IsParty(userId), nil
}

// Admit applies the outcome of Authorize: an authorized connection joins
// the room, anything else is logged and counted as a denied join.
func (rm *RoomManager) Admit(c *Client, userId, chatId string, authorized bool) bool {
	if !authorized {
		rm.log.Printf("unauthorized join attempt by user %q (conn %s) to chat %q", userId, c.Id(), chatId)
		rm.stats.Incr(stats.DeniedJoins)
		return false
	}

	rm.Join(c, chatId)
	return true
}

func (rm *RoomManager) Join(c *Client, chatId string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	members, ok := rm.rooms[chatId]
	if !ok {
		members = make(map[*Client]struct{})
		rm.rooms[chatId] = members
		rm.stats.Incr(stats.NumActiveRooms)
	}
	members[c] = struct{}{}

	if rm.joined[c] == nil {
		rm.joined[c] = make(map[string]struct{})
	}
	rm.joined[c][chatId] = struct{}{}
}

// LeaveAll removes c from every room it joined and returns how many it left.
func (rm *RoomManager) LeaveAll(c *Client) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	chatIds := rm.joined[c]
	n := len(chatIds)
	for chatId := range chatIds {
		rm.removeLocked(c, chatId)
	}

	return n
}

func (rm *RoomManager) removeLocked(c *Client, chatId string) {
	members, ok := rm.rooms[chatId]
	if !ok {
		return
	}

	if _, ok := members[c]; !ok {
		return
	}

	delete(members, c)
	if len(members) == 0 {
		delete(rm.rooms, chatId)
		rm.stats.Decr(stats.NumActiveRooms)
	}

	if chats, ok := rm.joined[c]; ok {
		delete(chats, chatId)
		if len(chats) == 0 {
			delete(rm.joined, c)
		}
	}
}

// Members returns a snapshot of the connections joined to chatId.
func (rm *RoomManager) Members(chatId string) []*Client {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	members := make([]*Client, 0, len(rm.rooms[chatId]))
	for c := range rm.rooms[chatId] {
		members = append(members, c)
	}

	return members
}

func (rm *RoomManager) Len() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return len(rm.rooms)
}
