package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event is an inbound client event. The set is closed: every value is
// listed in eventNames and handled by ChatServer.dispatch.
type Event int

const (
	EventUserOnline Event = iota + 1
	EventJoinChat
	EventLeaveAllRooms
	EventSendMessage
	EventLogout
	EventBlockFriend
	EventUnblockFriend
	EventDeleteFriend
	EventAddGroupMember
	EventRemoveGroupMember
	EventDeleteGroup
	EventUpdateGroup
	EventChangeGroupAvatar
	EventChangeUserAvatar
	EventAcceptFriend
	EventUnblockUser
	EventMessageIsTyping
	EventMessageIsNotTyping
	EventSeenMessage
	EventCallUser
	EventCallAccepted
)

var eventNames = map[Event]string{
	EventUserOnline:         "user-online",
	EventJoinChat:           "join-chat",
	EventLeaveAllRooms:      "leave-all-rooms",
	EventSendMessage:        "send-message",
	EventLogout:             "logout",
	EventBlockFriend:        "block-friend",
	EventUnblockFriend:      "unblock-friend",
	EventDeleteFriend:       "delete-friend",
	EventAddGroupMember:     "add-group-member",
	EventRemoveGroupMember:  "remove-group-member",
	EventDeleteGroup:        "delete-group",
	EventUpdateGroup:        "update-group",
	EventChangeGroupAvatar:  "change-group-avatar",
	EventChangeUserAvatar:   "change-user-avatar",
	EventAcceptFriend:       "accept-friend",
	EventUnblockUser:        "unblock-user",
	EventMessageIsTyping:    "message-is-typing",
	EventMessageIsNotTyping: "message-is-not-typing",
	EventSeenMessage:        "seen-message",
	EventCallUser:           "call-user",
	EventCallAccepted:       "call-accepted",
}

var eventsByName = func() map[string]Event {
	m := make(map[string]Event, len(eventNames))
	for e, name := range eventNames {
		m[name] = e
	}
	return m
}()

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

func (e Event) MarshalJSON() ([]byte, error) {
	name, ok := eventNames[e]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEvent, int(e))
	}
	return json.Marshal(name)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("event name: %w", err)
	}

	ev, ok := eventsByName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	*e = ev
	return nil
}

// ServerEvent names an outbound event.
type ServerEvent string

const (
	ServerEventOnlineUsers        ServerEvent = "online-users"
	ServerEventReceiveMessage     ServerEvent = "receive-message"
	ServerEventFriendBlocked      ServerEvent = "friend-blocked"
	ServerEventFriendUnblocked    ServerEvent = "friend-unblocked"
	ServerEventFriendDeleted      ServerEvent = "friend-deleted"
	ServerEventGroupMemberAdded   ServerEvent = "group-member-added"
	ServerEventGroupMemberRemoved ServerEvent = "group-member-removed"
	ServerEventGroupDeleted       ServerEvent = "group-deleted"
	ServerEventGroupUpdated       ServerEvent = "group-updated"
	ServerEventGroupAvatarChanged ServerEvent = "group-avatar-changed"
	ServerEventUserAvatarChanged  ServerEvent = "user-avatar-changed"
	ServerEventFriendAccepted     ServerEvent = "friend-accepted"
	ServerEventUserUnblocked      ServerEvent = "user-unblocked"
	ServerEventTypingDetected     ServerEvent = "typing-detected"
	ServerEventTypingUndetected   ServerEvent = "typing-undetected"
	ServerEventMessageHasSeen     ServerEvent = "message-has-seen"
	ServerEventIncomingCall       ServerEvent = "incoming-call"
	ServerEventCallAccepted       ServerEvent = "call-accepted"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// ClientMessage is an inbound frame: {"event": "...", "data": ...}.
type ClientMessage struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`

	// Exactly one of the following is set after parsing, depending on Event.
	UserId  string            `json:"-"`
	Join    *JoinChat         `json:"-"`
	Chat    *ChatRef          `json:"-"`
	Message *SendMessage      `json:"-"`
	Member  *AddGroupMember   `json:"-"`
	Avatar  *ChangeUserAvatar `json:"-"`
	Accept  *AcceptFriend     `json:"-"`
	Unblock *UnblockUser      `json:"-"`
	Typing  *Typing           `json:"-"`
	Call    *CallUser         `json:"-"`
	Answer  *CallAnswer       `json:"-"`

	// resolved before the message reaches the hub
	authorized bool
	chatIds    []string
	client     *Client
}

type JoinChat struct {
	UserId  string `json:"userId"`
	ChatId  string `json:"chatId"`
	IsGroup bool   `json:"isGroup"`
}

type ChatRef struct {
	ChatId string `json:"chatId"`
}

type SendMessage struct {
	ChatId  string          `json:"chatId"`
	Message json.RawMessage `json:"message"`
}

type AddGroupMember struct {
	ChatId      string `json:"chatId"`
	AddedUserId string `json:"addedUserId,omitempty"`
}

type ChangeUserAvatar struct {
	UserId string `json:"userId"`
}

type AcceptFriend struct {
	ChatId         string `json:"chatId"`
	AcceptedUserId string `json:"acceptedUserId"`
}

type UnblockUser struct {
	ChatId          string `json:"chatId"`
	UnblockedUserId string `json:"unblockedUserId"`
}

type Typing struct {
	ChatId string `json:"chatId"`
	UserId string `json:"userId"`
}

type CallUser struct {
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer"`
}

type CallAnswer struct {
	CallerId string          `json:"callerId"`
	Answer   json.RawMessage `json:"answer"`
}

// ParseClientMessage decodes a raw frame and its event specific payload.
func ParseClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	if err := msg.decodePayload(); err != nil {
		return nil, fmt.Errorf("%s: %w", msg.Event, err)
	}

	return &msg, nil
}

func (msg *ClientMessage) decodePayload() error {
	switch msg.Event {
	case EventUserOnline, EventLogout:
		if err := decodeData(msg.Data, &msg.UserId); err != nil {
			return err
		}
		return requireField(msg.UserId, "userId")
	case EventJoinChat:
		msg.Join = &JoinChat{}
		if err := decodeData(msg.Data, msg.Join); err != nil {
			return err
		}
		if err := requireField(msg.Join.UserId, "userId"); err != nil {
			return err
		}
		return requireField(msg.Join.ChatId, "chatId")
	case EventLeaveAllRooms:
		return nil
	case EventSendMessage:
		msg.Message = &SendMessage{}
		if err := decodeData(msg.Data, msg.Message); err != nil {
			return err
		}
		return requireField(msg.Message.ChatId, "chatId")
	case EventBlockFriend, EventUnblockFriend, EventDeleteFriend,
		EventRemoveGroupMember, EventDeleteGroup, EventUpdateGroup,
		EventChangeGroupAvatar, EventSeenMessage:
		msg.Chat = &ChatRef{}
		if err := decodeData(msg.Data, msg.Chat); err != nil {
			return err
		}
		return requireField(msg.Chat.ChatId, "chatId")
	case EventAddGroupMember:
		msg.Member = &AddGroupMember{}
		if err := decodeData(msg.Data, msg.Member); err != nil {
			return err
		}
		return requireField(msg.Member.ChatId, "chatId")
	case EventChangeUserAvatar:
		msg.Avatar = &ChangeUserAvatar{}
		if err := decodeData(msg.Data, msg.Avatar); err != nil {
			return err
		}
		return requireField(msg.Avatar.UserId, "userId")
	case EventAcceptFriend:
		msg.Accept = &AcceptFriend{}
		if err := decodeData(msg.Data, msg.Accept); err != nil {
			return err
		}
		if err := requireField(msg.Accept.ChatId, "chatId"); err != nil {
			return err
		}
		return requireField(msg.Accept.AcceptedUserId, "acceptedUserId")
	case EventUnblockUser:
		msg.Unblock = &UnblockUser{}
		if err := decodeData(msg.Data, msg.Unblock); err != nil {
			return err
		}
		if err := requireField(msg.Unblock.ChatId, "chatId"); err != nil {
			return err
		}
		return requireField(msg.Unblock.UnblockedUserId, "unblockedUserId")
	case EventMessageIsTyping, EventMessageIsNotTyping:
		msg.Typing = &Typing{}
		if err := decodeData(msg.Data, msg.Typing); err != nil {
			return err
		}
		return requireField(msg.Typing.ChatId, "chatId")
	case EventCallUser:
		msg.Call = &CallUser{}
		if err := decodeData(msg.Data, msg.Call); err != nil {
			return err
		}
		return requireField(msg.Call.To, "to")
	case EventCallAccepted:
		msg.Answer = &CallAnswer{}
		if err := decodeData(msg.Data, msg.Answer); err != nil {
			return err
		}
		return requireField(msg.Answer.CallerId, "callerId")
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, msg.Event)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return nil
}

func requireField(value, field string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidPayload, field)
	}
	return nil
}

// ServerMessage is an outbound frame.
type ServerMessage struct {
	Event     ServerEvent `json:"event"`
	Data      any         `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type ChatNotification struct {
	ChatId string `json:"chatId"`
}

type ReceivedMessage struct {
	ChatId  string          `json:"chatId"`
	Message json.RawMessage `json:"message"`
}

type TypingNotification struct {
	ChatId string `json:"chatId"`
	UserId string `json:"userId,omitempty"`
}

type IncomingCall struct {
	From  string          `json:"from"`
	Offer json.RawMessage `json:"offer"`
}

type CallAccepted struct {
	Answer json.RawMessage `json:"answer"`
}

func newServerMessage(event ServerEvent, data any) *ServerMessage {
	return &ServerMessage{
		Event:     event,
		Data:      data,
		Timestamp: Now(),
	}
}

func OnlineUsersMessage(userIds []string) *ServerMessage {
	return newServerMessage(ServerEventOnlineUsers, userIds)
}

func ChatMessage(event ServerEvent, chatId string) *ServerMessage {
	return newServerMessage(event, ChatNotification{ChatId: chatId})
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
