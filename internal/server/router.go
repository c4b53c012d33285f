package server

import "github.com/npezzotti/go-chatrelay/internal/stats"

// dispatch applies a single client event. It runs on the hub goroutine.
func (cs *ChatServer) dispatch(msg *ClientMessage) {
	c := msg.client
	if _, ok := cs.clients[c]; !ok {
		// the connection was deregistered while this event was queued
		cs.drop("%s from closed conn %s dropped", msg.Event, c.id)
		return
	}

	switch msg.Event {
	case EventUserOnline:
		cs.announcePresence(c, msg.UserId)
	case EventLogout:
		cs.removePresence(msg.UserId)
	case EventJoinChat:
		cs.rooms.Admit(c, msg.Join.UserId, msg.Join.ChatId, msg.authorized)
	case EventLeaveAllRooms:
		cs.rooms.LeaveAll(c)
	case EventSendMessage:
		cs.broadcastRoom(msg.Message.ChatId, newServerMessage(ServerEventReceiveMessage, ReceivedMessage{
			ChatId:  msg.Message.ChatId,
			Message: msg.Message.Message,
		}), nil)
	case EventBlockFriend:
		cs.broadcastRoom(msg.Chat.ChatId, ChatMessage(ServerEventFriendBlocked, msg.Chat.ChatId), nil)
	case EventUnblockFriend:
		cs.broadcastRoom(msg.Chat.ChatId, ChatMessage(ServerEventFriendUnblocked, msg.Chat.ChatId), nil)
	case EventDeleteFriend:
		cs.broadcastRoom(msg.Chat.ChatId, ChatMessage(ServerEventFriendDeleted, msg.Chat.ChatId), nil)
	case EventAddGroupMember:
		notification := ChatMessage(ServerEventGroupMemberAdded, msg.Member.ChatId)
		if msg.Member.AddedUserId != "" {
			cs.unicast(msg.Member.AddedUserId, notification)
		} else {
			cs.broadcastRoom(msg.Member.ChatId, notification, c)
		}
	case EventRemoveGroupMember:
		cs.broadcastRoom(msg.Chat.ChatId, ChatMessage(ServerEventGroupMemberRemoved, msg.Chat.ChatId), c)
	case EventDeleteGroup:
		cs.broadcastRoom(msg.Chat.ChatId, ChatMessage(ServerEventGroupDeleted, msg.Chat.ChatId), c)
	case EventUpdateGroup:
		cs.broadcastRoom(msg.Chat.ChatId, ChatMessage(ServerEventGroupUpdated, msg.Chat.ChatId), nil)
	case EventChangeGroupAvatar:
		cs.broadcastRoom(msg.Chat.ChatId, ChatMessage(ServerEventGroupAvatarChanged, msg.Chat.ChatId), nil)
	case EventChangeUserAvatar:
		for _, chatId := range msg.chatIds {
			cs.broadcastRoom(chatId, ChatMessage(ServerEventUserAvatarChanged, chatId), nil)
		}
	case EventAcceptFriend:
		cs.unicast(msg.Accept.AcceptedUserId, ChatMessage(ServerEventFriendAccepted, msg.Accept.ChatId))
	case EventUnblockUser:
		cs.unicast(msg.Unblock.UnblockedUserId, ChatMessage(ServerEventUserUnblocked, msg.Unblock.ChatId))
	case EventMessageIsTyping:
		cs.broadcastRoom(msg.Typing.ChatId, newServerMessage(ServerEventTypingDetected, TypingNotification{
			ChatId: msg.Typing.ChatId,
			UserId: msg.Typing.UserId,
		}), c)
	case EventMessageIsNotTyping:
		cs.broadcastRoom(msg.Typing.ChatId, newServerMessage(ServerEventTypingUndetected, TypingNotification{
			ChatId: msg.Typing.ChatId,
			UserId: msg.Typing.UserId,
		}), c)
	case EventSeenMessage:
		cs.broadcastRoom(msg.Chat.ChatId, ChatMessage(ServerEventMessageHasSeen, msg.Chat.ChatId), c)
	case EventCallUser:
		cs.relayOffer(cs.presenceOf(c), msg.Call.To, msg.Call.Offer)
	case EventCallAccepted:
		cs.relayAnswer(msg.Answer.CallerId, msg.Answer.Answer)
	default:
		cs.drop("conn %s: unhandled event %s", c.id, msg.Event)
	}
}

func (cs *ChatServer) announcePresence(c *Client, userId string) {
	if prev := cs.registry.Announce(c, userId); prev != nil {
		cs.log.Printf("user %q moved from conn %s to conn %s", userId, prev.id, c.id)
	}
	c.userId = userId

	cs.broadcastOnlineUsers()
}

func (cs *ChatServer) removePresence(userId string) {
	if c, ok := cs.registry.Lookup(userId); ok && c.userId == userId {
		c.userId = ""
	}
	cs.registry.RemoveByUser(userId)
	cs.broadcastOnlineUsers()
}

// presenceOf returns the user c is currently registered as, or "" when c
// never announced presence, logged out, or was replaced by a newer connection.
func (cs *ChatServer) presenceOf(c *Client) string {
	if c.userId == "" {
		return ""
	}

	if current, ok := cs.registry.Lookup(c.userId); !ok || current != c {
		return ""
	}

	return c.userId
}

func (cs *ChatServer) broadcastOnlineUsers() {
	users := cs.registry.OnlineUsers()
	cs.stats.Set(stats.NumOnlineUsers, len(users))
	cs.broadcastAll(OnlineUsersMessage(users))
}

// broadcastRoom delivers msg to every connection joined to chatId except skip.
func (cs *ChatServer) broadcastRoom(chatId string, msg *ServerMessage, skip *Client) int {
	delivered := 0
	for _, c := range cs.rooms.Members(chatId) {
		if c == skip {
			continue
		}

		if c.queueMessage(msg) {
			delivered++
		}
	}

	return delivered
}

// unicast delivers msg to the connection currently registered for userId.
// An offline user is a silent drop.
func (cs *ChatServer) unicast(userId string, msg *ServerMessage) bool {
	c, ok := cs.registry.Lookup(userId)
	if !ok {
		cs.drop("%s to user %q dropped: user is offline", msg.Event, userId)
		return false
	}

	return c.queueMessage(msg)
}

func (cs *ChatServer) broadcastAll(msg *ServerMessage) {
	for c := range cs.clients {
		c.queueMessage(msg)
	}
}
