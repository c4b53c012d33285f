package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	// authUserId is the user proven by the session cookie, empty when
	// authentication is not required.
	authUserId string
	// userId is the last user announced over this connection. Owned by the
	// hub goroutine.
	userId   string
	send     chan *ServerMessage
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(authUserId string, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         newConnectionId(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		authUserId: authUserId,
		send:       make(chan *ServerMessage, 256),
		stop:       make(chan struct{}),
	}
}

func newConnectionId() string {
	id, err := shortid.Generate()
	if err != nil {
		// shortid only fails when its worker is exhausted within a millisecond
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("conn %s: write exiting", c.id)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("conn %s: read exiting", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		msg, err := ParseClientMessage(raw)
		if err != nil {
			c.chatServer.drop("conn %s: invalid message: %v", c.id, err)
			continue
		}

		msg.client = c
		if !c.chatServer.handle(msg) {
			return
		}
	}
}

// queueMessage hands msg to the write loop without blocking. Delivery is
// best effort: a full send buffer drops the message.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("conn %s: failed to send message to client, channel is full", c.id)
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.DeregisterClient(c)
	c.stopClient()
}
