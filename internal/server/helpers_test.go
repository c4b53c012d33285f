package server

import (
	"testing"
	"time"

	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/stats"
	"github.com/npezzotti/go-chatrelay/internal/testutil"
	"github.com/stretchr/testify/mock"
)

// newTestStats returns a stats mock that accepts any counter update.
func newTestStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()
	su.On("Set", mock.Anything, mock.Anything).Return().Maybe()
	return su
}

// newTestChatServer creates a new ChatServer instance for testing purposes
func newTestChatServer(t *testing.T, db database.ChatRepository) *ChatServer {
	cs, err := NewChatServer(testutil.TestLogger(t), db, newTestStats(), time.Second)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

// newTestClient creates a connection-less client registered with cs.
func newTestClient(cs *ChatServer, id string) *Client {
	c := &Client{
		id:         id,
		chatServer: cs,
		log:        cs.log,
		send:       make(chan *ServerMessage, 64),
		stop:       make(chan struct{}),
	}
	cs.addClient(c)
	return c
}

// drain returns every message queued for c.
func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// received returns the messages queued for c with the given event, discarding the rest.
func received(c *Client, event ServerEvent) []*ServerMessage {
	var msgs []*ServerMessage
	for _, msg := range drain(c) {
		if msg.Event == event {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// parse builds a ClientMessage from a raw frame and binds it to c.
func parse(t *testing.T, c *Client, raw string) *ClientMessage {
	t.Helper()
	msg, err := ParseClientMessage([]byte(raw))
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	msg.client = c
	return msg
}

// handleSync runs an event through the same steps as the read goroutine,
// dispatching inline instead of through the hub.
func handleSync(t *testing.T, cs *ChatServer, c *Client, raw string) {
	t.Helper()
	msg := parse(t, c, raw)
	if !cs.verifyClaim(msg) {
		return
	}
	cs.resolve(msg)
	cs.dispatch(msg)
}

// IsMember reports whether c is joined to chatId.
func (rm *RoomManager) IsMember(c *Client, chatId string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	_, ok := rm.rooms[chatId][c]
	return ok
}
