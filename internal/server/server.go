package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/go-chatrelay/internal/config"
	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/stats"
)

type stopReq struct {
	done chan struct{}
}

// ChatServer is the hub. Its Run goroutine is the only writer of presence
// and room membership, so events are applied one at a time in the order
// they arrive on eventChan.
type ChatServer struct {
	log            *log.Logger
	db             database.ChatRepository
	stats          stats.StatsProvider
	registry       *Registry
	rooms          *RoomManager
	clients        map[*Client]struct{}
	eventChan      chan *ClientMessage
	registerChan   chan *Client
	deregisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
	lookupTimeout  time.Duration
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider, lookupTimeout time.Duration) (*ChatServer, error) {
	if db == nil {
		return nil, fmt.Errorf("chat repository is required")
	}
	if lookupTimeout <= 0 {
		lookupTimeout = config.DefaultLookupTimeout
	}

	su.RegisterMetric(stats.NumConnections)
	su.RegisterMetric(stats.NumOnlineUsers)
	su.RegisterMetric(stats.NumActiveRooms)
	su.RegisterMetric(stats.DeniedJoins)
	su.RegisterMetric(stats.DroppedEvents)

	return &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		registry:       NewRegistry(),
		rooms:          NewRoomManager(logger, db, su),
		clients:        make(map[*Client]struct{}),
		eventChan:      make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deregisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
		lookupTimeout:  lookupTimeout,
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.registerChan:
			cs.addClient(c)
		case c := <-cs.deregisterChan:
			cs.removeClient(c)
		case msg := <-cs.eventChan:
			cs.dispatch(msg)
		case req := <-cs.stop:
			cs.log.Printf("closing %d connections in %d rooms", len(cs.clients), cs.rooms.Len())
			for c := range cs.clients {
				c.stopClient()
			}

			close(cs.done)
			close(req.done)
			return
		}
	}
}

// RegisterClient hands a freshly upgraded connection to the hub.
func (cs *ChatServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.done:
		c.stopClient()
	}
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	select {
	case cs.deregisterChan <- c:
	case <-cs.done:
	}
}

// OnlineUsers returns the current presence snapshot.
func (cs *ChatServer) OnlineUsers() []string {
	return cs.registry.OnlineUsers()
}

func (cs *ChatServer) addClient(c *Client) {
	cs.log.Printf("adding connection %s", c.id)
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.NumConnections)
}

// removeClient runs the disconnect cascade: presence, rooms, then a fresh
// online-users snapshot for everyone still connected.
func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	cs.stats.Decr(stats.NumConnections)

	removed := cs.registry.RemoveByConnection(c)
	left := cs.rooms.LeaveAll(c)
	cs.log.Printf("removed connection %s (users %v, left %d rooms)", c.id, removed, left)

	cs.broadcastOnlineUsers()
}

// handle runs on the connection's read goroutine. Lookups against the
// database happen here so the hub never blocks on them.
func (cs *ChatServer) handle(msg *ClientMessage) bool {
	if !cs.verifyClaim(msg) {
		return true
	}

	cs.resolve(msg)
	return cs.submit(msg)
}

// verifyClaim pins user ids named in presence and membership events to the
// authenticated user when the connection carries one.
func (cs *ChatServer) verifyClaim(msg *ClientMessage) bool {
	c := msg.client
	if c.authUserId == "" {
		return true
	}

	var claimed string
	switch msg.Event {
	case EventUserOnline, EventLogout:
		claimed = msg.UserId
	case EventJoinChat:
		claimed = msg.Join.UserId
	case EventChangeUserAvatar:
		claimed = msg.Avatar.UserId
	default:
		return true
	}

	if claimed != c.authUserId {
		cs.drop("conn %s: %s claims user %q but is authenticated as %q", c.id, msg.Event, claimed, c.authUserId)
		return false
	}

	return true
}

func (cs *ChatServer) resolve(msg *ClientMessage) {
	switch msg.Event {
	case EventJoinChat:
		ctx, cancel := context.WithTimeout(context.Background(), cs.lookupTimeout)
		defer cancel()

		ok, err := cs.rooms.Authorize(ctx, msg.Join.UserId, msg.Join.ChatId, msg.Join.IsGroup)
		if err != nil {
			cs.log.Printf("conn %s: join-chat lookup for chat %q: %v", msg.client.id, msg.Join.ChatId, err)
		}
		msg.authorized = ok
	case EventChangeUserAvatar:
		ctx, cancel := context.WithTimeout(context.Background(), cs.lookupTimeout)
		defer cancel()

		friends, err := cs.db.ListAcceptedFriendships(ctx, msg.Avatar.UserId)
		if err != nil {
			cs.log.Printf("conn %s: change-user-avatar lookup for user %q: %v", msg.client.id, msg.Avatar.UserId, err)
			return
		}

		for _, f := range friends {
			msg.chatIds = append(msg.chatIds, f.Id)
		}
	}
}

func (cs *ChatServer) submit(msg *ClientMessage) bool {
	select {
	case cs.eventChan <- msg:
		return true
	case <-msg.client.stop:
		return false
	case <-cs.done:
		return false
	}
}

// drop logs and counts an event that is discarded without telling the client.
func (cs *ChatServer) drop(format string, args ...any) {
	cs.log.Printf(format, args...)
	cs.stats.Incr(stats.DroppedEvents)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
