package server

import (
	"encoding/json"
	"testing"

	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDispatch_UserOnline(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})
	c1 := newTestClient(cs, "c1")
	c2 := newTestClient(cs, "c2")
	other := newTestClient(cs, "c3")

	handleSync(t, cs, c1, `{"event":"user-online","data":"u1"}`)
	handleSync(t, cs, c2, `{"event":"user-online","data":"u1"}`)

	got, ok := cs.registry.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, c2, got, "expected the most recent connection to win")
	assert.Equal(t, "u1", c2.userId)

	msgs := received(other, ServerEventOnlineUsers)
	require.Len(t, msgs, 2, "expected a snapshot on every presence change")
	assert.Equal(t, []string{"u1"}, msgs[1].Data)
}

func TestDispatch_LogoutAndDisconnect(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})
	c1 := newTestClient(cs, "c1")
	c2 := newTestClient(cs, "c2")

	handleSync(t, cs, c1, `{"event":"user-online","data":"u1"}`)
	handleSync(t, cs, c2, `{"event":"user-online","data":"u2"}`)
	drain(c1)
	drain(c2)

	cs.rooms.Join(c1, "f1")
	cs.removeClient(c1)

	_, ok := cs.registry.Lookup("u1")
	assert.False(t, ok, "expected disconnect to remove presence")
	assert.False(t, cs.rooms.IsMember(c1, "f1"), "expected disconnect to leave rooms")

	msgs := received(c2, ServerEventOnlineUsers)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"u2"}, msgs[0].Data, "expected snapshot to exclude the disconnected user")
	assert.Empty(t, drain(c1), "expected nothing to be queued for a removed connection")

	handleSync(t, cs, c2, `{"event":"logout","data":"u2"}`)
	_, ok = cs.registry.Lookup("u2")
	assert.False(t, ok, "expected logout to remove presence")

	msgs = received(c2, ServerEventOnlineUsers)
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].Data)
}

func TestDispatch_EventsFromClosedConnection(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})
	c1 := newTestClient(cs, "c1")
	cs.removeClient(c1)

	cs.dispatch(parse(t, c1, `{"event":"user-online","data":"u1"}`))

	_, ok := cs.registry.Lookup("u1")
	assert.False(t, ok, "expected a late user-online from a closed connection to be ignored")
}

// Friends u1 and u2 share relation f1; u3 is connected but never joins.
func TestDispatch_SendMessageScenario(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetFriendById", mock.Anything, "f1").Return(database.Friend{Id: "f1", SenderId: "u1", ReceiverId: "u2"}, nil)

	cs := newTestChatServer(t, db)
	a := newTestClient(cs, "a")
	b := newTestClient(cs, "b")
	c := newTestClient(cs, "c")

	handleSync(t, cs, a, `{"event":"user-online","data":"u1"}`)
	handleSync(t, cs, b, `{"event":"user-online","data":"u2"}`)
	handleSync(t, cs, c, `{"event":"user-online","data":"u3"}`)
	handleSync(t, cs, a, `{"event":"join-chat","data":{"userId":"u1","chatId":"f1","isGroup":false}}`)
	handleSync(t, cs, b, `{"event":"join-chat","data":{"userId":"u2","chatId":"f1","isGroup":false}}`)
	handleSync(t, cs, c, `{"event":"join-chat","data":{"userId":"u3","chatId":"f1","isGroup":false}}`)

	assert.False(t, cs.rooms.IsMember(c, "f1"), "expected third party to be denied")

	handleSync(t, cs, a, `{"event":"send-message","data":{"chatId":"f1","message":{"content":"hi"}}}`)

	for _, client := range []*Client{a, b} {
		msgs := received(client, ServerEventReceiveMessage)
		require.Len(t, msgs, 1, "expected %s to receive the message", client.id)
		data, ok := msgs[0].Data.(ReceivedMessage)
		require.True(t, ok)
		assert.Equal(t, "f1", data.ChatId)
		assert.JSONEq(t, `{"content":"hi"}`, string(data.Message))
	}

	assert.Empty(t, received(c, ServerEventReceiveMessage), "expected non-member to receive nothing")
}

// Group g1 is owned by u1 with member u2; u3 tries to join.
func TestDispatch_GroupJoinDeniedScenario(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetGroupById", mock.Anything, "g1").Return(database.Group{Id: "g1", OwnerId: "u1", MemberIds: []string{"u2"}}, nil)

	cs := newTestChatServer(t, db)
	owner := newTestClient(cs, "owner")
	outsider := newTestClient(cs, "outsider")

	handleSync(t, cs, owner, `{"event":"join-chat","data":{"userId":"u1","chatId":"g1","isGroup":true}}`)
	handleSync(t, cs, outsider, `{"event":"join-chat","data":{"userId":"u3","chatId":"g1","isGroup":true}}`)

	assert.True(t, cs.rooms.IsMember(owner, "g1"))
	assert.False(t, cs.rooms.IsMember(outsider, "g1"))
	cs.stats.(*stats.MockStatsUpdater).AssertCalled(t, "Incr", stats.DeniedJoins)

	handleSync(t, cs, owner, `{"event":"update-group","data":{"chatId":"g1"}}`)
	assert.Len(t, received(owner, ServerEventGroupUpdated), 1)
	assert.Empty(t, received(outsider, ServerEventGroupUpdated), "expected denied connection to miss room broadcasts")
}

func TestDispatch_RoomBroadcastPatterns(t *testing.T) {
	tcases := []struct {
		frame         string
		event         ServerEvent
		includeSender bool
	}{
		{frame: `{"event":"block-friend","data":{"chatId":"r1"}}`, event: ServerEventFriendBlocked, includeSender: true},
		{frame: `{"event":"unblock-friend","data":{"chatId":"r1"}}`, event: ServerEventFriendUnblocked, includeSender: true},
		{frame: `{"event":"delete-friend","data":{"chatId":"r1"}}`, event: ServerEventFriendDeleted, includeSender: true},
		{frame: `{"event":"update-group","data":{"chatId":"r1"}}`, event: ServerEventGroupUpdated, includeSender: true},
		{frame: `{"event":"change-group-avatar","data":{"chatId":"r1"}}`, event: ServerEventGroupAvatarChanged, includeSender: true},
		{frame: `{"event":"send-message","data":{"chatId":"r1","message":{}}}`, event: ServerEventReceiveMessage, includeSender: true},
		{frame: `{"event":"add-group-member","data":{"chatId":"r1"}}`, event: ServerEventGroupMemberAdded, includeSender: false},
		{frame: `{"event":"remove-group-member","data":{"chatId":"r1"}}`, event: ServerEventGroupMemberRemoved, includeSender: false},
		{frame: `{"event":"delete-group","data":{"chatId":"r1"}}`, event: ServerEventGroupDeleted, includeSender: false},
		{frame: `{"event":"message-is-typing","data":{"chatId":"r1","userId":"u1"}}`, event: ServerEventTypingDetected, includeSender: false},
		{frame: `{"event":"message-is-not-typing","data":{"chatId":"r1","userId":"u1"}}`, event: ServerEventTypingUndetected, includeSender: false},
		{frame: `{"event":"seen-message","data":{"chatId":"r1"}}`, event: ServerEventMessageHasSeen, includeSender: false},
	}

	for _, tc := range tcases {
		t.Run(string(tc.event), func(t *testing.T) {
			cs := newTestChatServer(t, &database.MockChatRepository{})
			sender := newTestClient(cs, "sender")
			peer := newTestClient(cs, "peer")
			outsider := newTestClient(cs, "outsider")
			cs.rooms.Join(sender, "r1")
			cs.rooms.Join(peer, "r1")
			cs.rooms.Join(outsider, "r2")

			handleSync(t, cs, sender, tc.frame)

			assert.Len(t, received(peer, tc.event), 1, "expected room member to receive %s", tc.event)
			assert.Empty(t, received(outsider, tc.event), "expected non-member not to receive %s", tc.event)
			if tc.includeSender {
				assert.Len(t, received(sender, tc.event), 1, "expected sender to receive its own %s", tc.event)
			} else {
				assert.Empty(t, received(sender, tc.event), "expected sender not to receive %s", tc.event)
			}
		})
	}
}

func TestDispatch_TypingPayload(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})
	sender := newTestClient(cs, "sender")
	peer := newTestClient(cs, "peer")
	cs.rooms.Join(sender, "f1")
	cs.rooms.Join(peer, "f1")

	handleSync(t, cs, sender, `{"event":"message-is-typing","data":{"chatId":"f1","userId":"u1"}}`)

	msgs := received(peer, ServerEventTypingDetected)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypingNotification{ChatId: "f1", UserId: "u1"}, msgs[0].Data)
}

func TestDispatch_Unicast(t *testing.T) {
	tcases := []struct {
		name   string
		frame  string
		event  ServerEvent
		chatId string
	}{
		{
			name:   "accept friend",
			frame:  `{"event":"accept-friend","data":{"chatId":"f1","acceptedUserId":"u2"}}`,
			event:  ServerEventFriendAccepted,
			chatId: "f1",
		},
		{
			name:   "unblock user",
			frame:  `{"event":"unblock-user","data":{"chatId":"f1","unblockedUserId":"u2"}}`,
			event:  ServerEventUserUnblocked,
			chatId: "f1",
		},
		{
			name:   "add group member",
			frame:  `{"event":"add-group-member","data":{"chatId":"g1","addedUserId":"u2"}}`,
			event:  ServerEventGroupMemberAdded,
			chatId: "g1",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cs := newTestChatServer(t, &database.MockChatRepository{})
			sender := newTestClient(cs, "sender")
			target := newTestClient(cs, "target")
			bystander := newTestClient(cs, "bystander")
			cs.announcePresence(sender, "u1")
			cs.announcePresence(target, "u2")
			cs.rooms.Join(bystander, tc.chatId)
			cs.rooms.Join(sender, tc.chatId)

			handleSync(t, cs, sender, tc.frame)

			msgs := received(target, tc.event)
			require.Len(t, msgs, 1, "expected target to receive %s", tc.event)
			assert.Equal(t, ChatNotification{ChatId: tc.chatId}, msgs[0].Data)
			assert.Empty(t, received(bystander, tc.event), "expected unicast not to reach room members")
			assert.Empty(t, received(sender, tc.event))
		})
	}

	t.Run("offline target is dropped", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{})
		sender := newTestClient(cs, "sender")

		assert.NotPanics(t, func() {
			handleSync(t, cs, sender, `{"event":"accept-friend","data":{"chatId":"f1","acceptedUserId":"nobody"}}`)
		})
		assert.Empty(t, drain(sender))
		cs.stats.(*stats.MockStatsUpdater).AssertCalled(t, "Incr", stats.DroppedEvents)
	})
}

func TestDispatch_ChangeUserAvatar(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("ListAcceptedFriendships", mock.Anything, "u1").Return([]database.Friend{
		{Id: "f1", SenderId: "u1", ReceiverId: "u2", Status: database.FriendStatusAccepted},
		{Id: "f2", SenderId: "u3", ReceiverId: "u1", Status: database.FriendStatusAccepted},
	}, nil)

	cs := newTestChatServer(t, db)
	sender := newTestClient(cs, "sender")
	friend1 := newTestClient(cs, "friend1")
	friend2 := newTestClient(cs, "friend2")
	stranger := newTestClient(cs, "stranger")
	cs.rooms.Join(sender, "f1")
	cs.rooms.Join(friend1, "f1")
	cs.rooms.Join(friend2, "f2")
	cs.rooms.Join(stranger, "f9")

	handleSync(t, cs, sender, `{"event":"change-user-avatar","data":{"userId":"u1"}}`)

	assert.Empty(t, received(stranger, ServerEventUserAvatarChanged), "expected rooms outside the user's friendships to be skipped")

	msgs := received(friend1, ServerEventUserAvatarChanged)
	require.Len(t, msgs, 1)
	assert.Equal(t, ChatNotification{ChatId: "f1"}, msgs[0].Data)

	msgs = received(friend2, ServerEventUserAvatarChanged)
	require.Len(t, msgs, 1)
	assert.Equal(t, ChatNotification{ChatId: "f2"}, msgs[0].Data)

	assert.Len(t, received(sender, ServerEventUserAvatarChanged), 1, "expected sender to see its own avatar change")
}

func TestDispatch_ChangeUserAvatarLookupFails(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("ListAcceptedFriendships", mock.Anything, "u1").Return(nil, database.ErrMalformedId)

	cs := newTestChatServer(t, db)
	sender := newTestClient(cs, "sender")
	cs.rooms.Join(sender, "f1")

	assert.NotPanics(t, func() {
		handleSync(t, cs, sender, `{"event":"change-user-avatar","data":{"userId":"u1"}}`)
	})
	assert.Empty(t, drain(sender))
}

func TestDispatch_LeaveAllRooms(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})
	c := newTestClient(cs, "c1")
	cs.rooms.Join(c, "f1")
	cs.rooms.Join(c, "g1")

	handleSync(t, cs, c, `{"event":"leave-all-rooms"}`)

	assert.False(t, cs.rooms.IsMember(c, "f1"))
	assert.False(t, cs.rooms.IsMember(c, "g1"))
	assert.Equal(t, 0, cs.rooms.Len())
}

func TestBroadcastRoom_SharedMessage(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})
	c1 := newTestClient(cs, "c1")
	c2 := newTestClient(cs, "c2")
	cs.rooms.Join(c1, "f1")
	cs.rooms.Join(c2, "f1")

	msg := newServerMessage(ServerEventReceiveMessage, ReceivedMessage{ChatId: "f1", Message: json.RawMessage(`"x"`)})
	assert.Equal(t, 2, cs.broadcastRoom("f1", msg, nil))
	assert.Equal(t, 1, cs.broadcastRoom("f1", msg, c1))
	assert.Equal(t, 0, cs.broadcastRoom("empty", msg, nil))
}
