package chathub_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vanishchat/backend/internal/chathub"
	"vanishchat/backend/internal/expiry"
	"vanishchat/backend/internal/models"
	"vanishchat/backend/internal/store"
)

const settle = 100 * time.Millisecond

type hubFixture struct {
	store    *store.Store
	sched    *expiry.Scheduler
	registry *chathub.Registry
	hub      *chathub.Manager
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	st := store.New(store.Options{})
	sched := expiry.NewScheduler(st, time.Minute)
	t.Cleanup(sched.Stop)

	registry := chathub.NewRegistry()
	hub := chathub.NewManager(st, sched, registry)
	go hub.Run()

	return &hubFixture{store: st, sched: sched, registry: registry, hub: hub}
}

func (f *hubFixture) connect(c *mockClient) {
	f.hub.RegisterCh <- c
	time.Sleep(settle)
}

func (f *hubFixture) send(c *mockClient, frame string) {
	f.hub.InboundCh <- chathub.Inbound{ConnectionID: c.ConnectionID(), Raw: []byte(frame)}
	time.Sleep(settle)
}

func (f *hubFixture) join(c *mockClient, roomID, nickname string) {
	f.send(c, fmt.Sprintf(`{"type":"join_room","roomId":%q,"nickname":%q}`, roomID, nickname))
}

func TestJoinRoom_Success(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	bob := newMockClient("conn-b")
	f.connect(alice)
	f.connect(bob)

	f.join(alice, room.ID, "alice")

	aliceFrames := alice.frames()
	joined := framesOfType(aliceFrames, models.EventRoomJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, room.ID, joined[0]["roomId"])
	assert.Empty(t, framesOfType(aliceFrames, models.EventUserJoined),
		"the joiner never hears its own user_joined")

	f.join(bob, room.ID, "bob")

	bobFrames := bob.frames()
	require.Len(t, framesOfType(bobFrames, models.EventRoomJoined), 1)
	assert.Empty(t, framesOfType(bobFrames, models.EventUserJoined))

	userJoined := framesOfType(alice.frames(), models.EventUserJoined)
	require.Len(t, userJoined, 1)
	assert.EqualValues(t, 2, userJoined[0]["participantCount"])

	got, ok := f.store.Room(room.ID)
	require.True(t, ok)
	assert.True(t, got.IsActive)
}

func TestJoinRoom_Full(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	for i := 0; i < 2; i++ {
		c := newMockClient(fmt.Sprintf("conn-%d", i))
		f.connect(c)
		f.join(c, room.ID, fmt.Sprintf("user%d", i))
	}

	late := newMockClient("conn-late")
	f.connect(late)
	f.join(late, room.ID, "late")

	errs := framesOfType(late.frames(), models.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "room full", errs[0]["error"])

	_, ok := f.registry.Association("conn-late")
	assert.False(t, ok, "a rejected joiner holds no association")
}

func TestJoinRoom_UnknownRoom(t *testing.T) {
	f := newHubFixture(t)

	c := newMockClient("conn-a")
	f.connect(c)
	f.join(c, "no-such-room", "alice")

	errs := framesOfType(c.frames(), models.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "room not found", errs[0]["error"])
}

func TestJoinRoom_SecondJoinOnSameSocketRejected(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)
	other := f.store.CreateRoom(0)

	c := newMockClient("conn-a")
	f.connect(c)
	f.join(c, room.ID, "alice")
	c.frames() // drain

	f.join(c, other.ID, "alice")

	errs := framesOfType(c.frames(), models.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "already in a room", errs[0]["error"])
}

func TestSendMessage_EchoesToSenderAndPeer(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	bob := newMockClient("conn-b")
	f.connect(alice)
	f.connect(bob)
	f.join(alice, room.ID, "alice")
	f.join(bob, room.ID, "bob")
	alice.frames()
	bob.frames()

	f.send(alice, `{"type":"send_message","content":"hello"}`)

	aliceMsgs := framesOfType(alice.frames(), models.EventNewMessage)
	bobMsgs := framesOfType(bob.frames(), models.EventNewMessage)
	require.Len(t, aliceMsgs, 1, "sender hears its own message back")
	require.Len(t, bobMsgs, 1)

	msg := bobMsgs[0]["message"].(map[string]any)
	assert.Equal(t, "hello", msg["content"])
	assert.Equal(t, "alice", msg["senderNickname"])

	assert.Len(t, f.store.LiveMessagesByRoom(room.ID), 1)
	assert.Equal(t, 1, f.sched.Pending(), "expiry timer armed for the new message")
}

func TestSendMessage_WithoutAssociation(t *testing.T) {
	f := newHubFixture(t)

	c := newMockClient("conn-a")
	f.connect(c)
	f.send(c, `{"type":"send_message","content":"hello"}`)

	errs := framesOfType(c.frames(), models.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "not in a room", errs[0]["error"])
}

func TestSendMessage_PastExpiryVisibleExactlyOnce(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	f.connect(alice)
	f.join(alice, room.ID, "alice")
	alice.frames()

	past := time.Now().Add(-time.Second).Format(time.RFC3339)
	f.send(alice, fmt.Sprintf(`{"type":"send_message","content":"blink","expiresAt":%q}`, past))

	frames := alice.frames()
	require.Len(t, framesOfType(frames, models.EventNewMessage), 1,
		"the broadcast happens before the immediate delete")
	require.Len(t, framesOfType(frames, models.EventMessageDeleted), 1)

	assert.Empty(t, f.store.LiveMessagesByRoom(room.ID))
	assert.Empty(t, f.store.MessagesByRoom(room.ID))
}

func TestTyping_NeverEchoedToSender(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	bob := newMockClient("conn-b")
	f.connect(alice)
	f.connect(bob)
	f.join(alice, room.ID, "alice")
	f.join(bob, room.ID, "bob")
	alice.frames()
	bob.frames()

	f.send(alice, `{"type":"typing","isTyping":true}`)

	bobTyping := framesOfType(bob.frames(), models.EventTyping)
	require.Len(t, bobTyping, 1)
	assert.Equal(t, "alice", bobTyping[0]["nickname"])
	assert.Equal(t, true, bobTyping[0]["isTyping"])

	assert.Empty(t, framesOfType(alice.frames(), models.EventTyping))
}

func TestCallOffer_RelayedVerbatimWithNickname(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	bob := newMockClient("conn-b")
	f.connect(alice)
	f.connect(bob)
	f.join(alice, room.ID, "alice")
	f.join(bob, room.ID, "bob")
	alice.frames()
	bob.frames()

	f.send(alice, `{"type":"call_offer","sdp":"v=0 fake-offer","extra":{"nested":1}}`)

	offers := framesOfType(bob.frames(), models.SignalCallOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, "v=0 fake-offer", offers[0]["sdp"], "payload passes through untouched")
	assert.Equal(t, "alice", offers[0]["fromNickname"])
	assert.NotNil(t, offers[0]["extra"])

	assert.Empty(t, framesOfType(alice.frames(), models.SignalCallOffer))
}

func TestCallICECandidate_PureRelay(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	bob := newMockClient("conn-b")
	f.connect(alice)
	f.connect(bob)
	f.join(alice, room.ID, "alice")
	f.join(bob, room.ID, "bob")
	alice.frames()
	bob.frames()

	raw := `{"type":"call_ice_candidate","candidate":{"sdpMid":"0","foo":"bar"}}`
	f.send(alice, raw)

	got := framesOfType(bob.frames(), models.SignalCallICECandidate)
	require.Len(t, got, 1)

	var want map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &want))
	assert.Equal(t, want, got[0], "candidate frames are forwarded byte-identical")
}

func TestLeave_FullToPartialToDeleted(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	bob := newMockClient("conn-b")
	f.connect(alice)
	f.connect(bob)
	f.join(alice, room.ID, "alice")
	f.join(bob, room.ID, "bob")
	alice.frames()
	bob.frames()

	f.send(bob, `{"type":"leave_room"}`)

	left := framesOfType(alice.frames(), models.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "bob", left[0]["nickname"])

	partial, ok := f.store.Room(room.ID)
	require.True(t, ok)
	assert.False(t, partial.IsActive)
	assert.Equal(t, 1, partial.ParticipantCount)

	// Last one out deletes the room, no grace period.
	f.send(alice, `{"type":"leave_room"}`)

	_, ok = f.store.Room(room.ID)
	assert.False(t, ok)
	assert.Empty(t, f.store.ParticipantsByRoom(room.ID))
}

func TestLeaveThenDisconnect_SingleLeaveSequence(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	bob := newMockClient("conn-b")
	f.connect(alice)
	f.connect(bob)
	f.join(alice, room.ID, "alice")
	f.join(bob, room.ID, "bob")
	alice.frames()
	bob.frames()

	// Explicit leave, then the transport close arrives moments later.
	f.send(bob, `{"type":"leave_room"}`)
	f.hub.UnregisterCh <- bob
	time.Sleep(settle)

	left := framesOfType(alice.frames(), models.EventUserLeft)
	assert.Len(t, left, 1, "a close racing an explicit leave runs the sequence once")

	got, ok := f.store.Room(room.ID)
	require.True(t, ok)
	assert.Equal(t, 1, got.ParticipantCount)
}

func TestViewOnce_DeletionBroadcastExactlyOnce(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	bob := newMockClient("conn-b")
	f.connect(alice)
	f.connect(bob)
	f.join(alice, room.ID, "alice")
	f.join(bob, room.ID, "bob")
	alice.frames()
	bob.frames()

	f.send(alice, `{"type":"send_message","content":"secret","isViewOnce":true}`)

	msgs := framesOfType(bob.frames(), models.EventNewMessage)
	require.Len(t, msgs, 1)
	messageID := msgs[0]["message"].(map[string]any)["id"].(string)

	// The mark-viewed HTTP path hits the store directly; the hub picks the
	// deletion event up and broadcasts it.
	_, deleted, err := f.store.MarkMessageViewed(messageID)
	require.NoError(t, err)
	require.True(t, deleted)
	time.Sleep(settle)

	assert.Len(t, framesOfType(bob.frames(), models.EventMessageDeleted), 1)
	assert.Len(t, framesOfType(alice.frames(), models.EventMessageDeleted), 1)
	assert.Empty(t, f.store.LiveMessagesByRoom(room.ID))
}

func TestRoomExpiry_BroadcastsRoomDeletedAndUnbinds(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	f.connect(alice)
	f.join(alice, room.ID, "alice")
	alice.frames()

	// The sweeper and the HTTP lookup both funnel through DeleteRoom.
	require.True(t, f.store.DeleteRoom(room.ID))
	time.Sleep(settle)

	assert.Len(t, framesOfType(alice.frames(), models.EventRoomDeleted), 1)

	_, ok := f.registry.Association("conn-a")
	assert.False(t, ok, "sockets of a deleted room are unbound")
}

func TestMalformedFrame_ErrorToSenderOnly(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	alice := newMockClient("conn-a")
	bob := newMockClient("conn-b")
	f.connect(alice)
	f.connect(bob)
	f.join(alice, room.ID, "alice")
	f.join(bob, room.ID, "bob")
	alice.frames()
	bob.frames()

	f.send(alice, `{this is not json`)

	errs := framesOfType(alice.frames(), models.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "invalid message format", errs[0]["error"])
	assert.Empty(t, bob.frames(), "other connections are unaffected")
}

func TestUnknownKind_SilentlyIgnored(t *testing.T) {
	f := newHubFixture(t)

	c := newMockClient("conn-a")
	f.connect(c)
	f.send(c, `{"type":"pirouette"}`)

	assert.Empty(t, c.frames())
}

func TestJoinRoom_MissingNicknameRejected(t *testing.T) {
	f := newHubFixture(t)
	room := f.store.CreateRoom(0)

	c := newMockClient("conn-a")
	f.connect(c)
	f.send(c, fmt.Sprintf(`{"type":"join_room","roomId":%q}`, room.ID))

	errs := framesOfType(c.frames(), models.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "invalid join payload", errs[0]["error"])
}
