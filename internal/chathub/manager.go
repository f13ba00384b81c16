package chathub

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/go-playground/validator/v10"

	"vanishchat/backend/internal/expiry"
	"vanishchat/backend/internal/models"
	"vanishchat/backend/internal/store"
)

// Inbound is one raw frame read from a connection, handed to the hub for
// dispatch.
type Inbound struct {
	ConnectionID string
	Raw          []byte
}

// Manager is the signaling hub. A single Run goroutine owns all dispatch:
// connection registration, inbound frames, store deletion events and frames
// arriving from other relay instances over the bridge. Mutations of the store
// therefore never interleave at sub-operation granularity for a given room.
type Manager struct {
	clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client
	InboundCh    chan Inbound

	registry  *Registry
	store     *store.Store
	scheduler *expiry.Scheduler
	lifecycle *Lifecycle

	bridge   *Bridge
	bridgeCh chan BridgeFrame

	validate *validator.Validate
}

func NewManager(s *store.Store, sched *expiry.Scheduler, registry *Registry) *Manager {
	return &Manager{
		clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		InboundCh:    make(chan Inbound, 64),
		registry:     registry,
		store:        s,
		scheduler:    sched,
		lifecycle:    NewLifecycle(s),
		bridgeCh:     make(chan BridgeFrame, 64),
		validate:     validator.New(),
	}
}

// SetBridge attaches the optional cross-instance broadcast bridge. Must be
// called before Run.
func (m *Manager) SetBridge(b *Bridge) {
	m.bridge = b
}

// Run is the hub's main dispatch loop.
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.RegisterCh:
			m.clients[client.ConnectionID()] = client

		case client := <-m.UnregisterCh:
			connID := client.ConnectionID()
			if _, ok := m.clients[connID]; ok {
				delete(m.clients, connID)
				client.Close()
			}
			m.handleDeparture(connID)

		case in := <-m.InboundCh:
			m.handleInbound(in.ConnectionID, in.Raw)

		case ev := <-m.store.Events():
			m.handleStoreEvent(ev)

		case frame := <-m.bridgeCh:
			// Already published by the origin instance; local fan-out only.
			m.fanOut(frame.RoomID, frame.Frame, "")
		}
	}
}

func (m *Manager) handleInbound(connID string, raw []byte) {
	// A broken frame or a panicking handler affects this connection only,
	// never the dispatch loop or other rooms.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("hub: handler panic on connection %s: %v", connID, r)
		}
	}()

	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		m.sendError(connID, "invalid message format")
		return
	}

	switch env.Type {
	case models.SignalJoinRoom:
		m.handleJoinRoom(connID, raw)
	case models.SignalSendMessage:
		m.handleSendMessage(connID, raw)
	case models.SignalTyping:
		m.handleTyping(connID, raw)
	case models.SignalCallOffer, models.SignalCallAnswer, models.SignalCallICECandidate,
		models.SignalCallRejected, models.SignalCallEnded:
		m.handleCallSignal(connID, env.Type, raw)
	case models.SignalLeaveRoom:
		m.handleDeparture(connID)
	default:
		// Unrecognized kinds are dropped silently.
	}
}

func (m *Manager) handleJoinRoom(connID string, raw []byte) {
	var payload models.JoinRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		m.sendError(connID, "invalid join payload")
		return
	}
	if err := m.validate.Struct(&payload); err != nil {
		m.sendError(connID, "invalid join payload")
		return
	}

	if _, ok := m.registry.Association(connID); ok {
		m.sendError(connID, "already in a room")
		return
	}

	participant, err := m.store.AddParticipant(payload.RoomID, payload.Nickname, payload.PublicKey)
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		m.sendError(connID, "room not found")
		return
	case errors.Is(err, store.ErrRoomExpired):
		// The store already cascade-deleted the room.
		m.sendError(connID, "room expired")
		return
	case errors.Is(err, store.ErrRoomFull):
		m.sendError(connID, "room full")
		return
	case err != nil:
		m.sendError(connID, "unable to join room")
		return
	}

	if err := m.registry.Associate(connID, payload.RoomID, participant.ID, participant.Nickname); err != nil {
		// Lost a race against a second join frame on the same socket.
		m.lifecycle.OnLeave(participant.ID)
		m.sendError(connID, "already in a room")
		return
	}

	participants := m.store.ParticipantsByRoom(payload.RoomID)

	joined := marshalFrame(models.UserJoinedEvent{
		Type:             models.EventUserJoined,
		Participant:      participant,
		ParticipantCount: len(participants),
	})
	m.fanOut(payload.RoomID, joined, participant.ID)
	m.publish(payload.RoomID, joined)

	m.sendTo(connID, marshalFrame(models.RoomJoinedEvent{
		Type:         models.EventRoomJoined,
		RoomID:       payload.RoomID,
		Participants: participants,
		Participant:  participant,
	}))
	log.Printf("hub: %s joined room %s (%d/%d)", participant.Nickname, payload.RoomID,
		len(participants), models.MaxRoomParticipants)
}

func (m *Manager) handleSendMessage(connID string, raw []byte) {
	assoc, ok := m.registry.Association(connID)
	if !ok {
		m.sendError(connID, "not in a room")
		return
	}

	var payload models.SendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		m.sendError(connID, "invalid message payload")
		return
	}
	if err := m.validate.Struct(&payload); err != nil {
		m.sendError(connID, "invalid message payload")
		return
	}

	msg, err := m.store.CreateMessage(assoc.RoomID, assoc.Nickname, payload)
	if err != nil {
		m.sendError(connID, "room not found")
		return
	}

	// The sender hears its own message back; multiple tabs per participant
	// are not prevented at this layer.
	frame := marshalFrame(models.NewMessageEvent{Type: models.EventNewMessage, Message: msg})
	m.fanOut(assoc.RoomID, frame, "")
	m.publish(assoc.RoomID, frame)

	// A deadline already in the past deletes the message right behind the
	// broadcast: visible exactly once, persisted for zero duration.
	m.scheduler.Schedule(msg)
}

func (m *Manager) handleTyping(connID string, raw []byte) {
	assoc, ok := m.registry.Association(connID)
	if !ok {
		return
	}

	var payload models.TypingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		m.sendError(connID, "invalid typing payload")
		return
	}

	frame := marshalFrame(models.TypingEvent{
		Type:          models.EventTyping,
		ParticipantID: assoc.ParticipantID,
		Nickname:      assoc.Nickname,
		IsTyping:      payload.IsTyping,
	})
	m.fanOut(assoc.RoomID, frame, assoc.ParticipantID)
	m.publish(assoc.RoomID, frame)
}

// handleCallSignal relays WebRTC negotiation frames verbatim to the peer. The
// relay stays protocol-agnostic: no validation, no store mutation. Offers get
// fromNickname stamped so the callee can label the incoming call.
func (m *Manager) handleCallSignal(connID, kind string, raw []byte) {
	assoc, ok := m.registry.Association(connID)
	if !ok {
		return
	}

	frame := raw
	if kind == models.SignalCallOffer {
		stamped, err := models.StampCallFrame(raw, assoc.Nickname)
		if err != nil {
			m.sendError(connID, "invalid call payload")
			return
		}
		frame = stamped
	}
	m.fanOut(assoc.RoomID, frame, assoc.ParticipantID)
	m.publish(assoc.RoomID, frame)
}

// handleDeparture runs the leave sequence for a connection, whether it sent an
// explicit leave_room or its transport closed. The registry hands out the
// association exactly once, so whichever trigger comes second is a no-op.
func (m *Manager) handleDeparture(connID string) {
	assoc, ok := m.registry.Disassociate(connID)
	if !ok {
		return
	}

	result, err := m.lifecycle.OnLeave(assoc.ParticipantID)
	if err != nil {
		// Participant already gone, e.g. removed by a room cascade.
		return
	}

	if !result.RoomDeleted {
		frame := marshalFrame(models.UserLeftEvent{
			Type:          models.EventUserLeft,
			ParticipantID: assoc.ParticipantID,
			Nickname:      assoc.Nickname,
		})
		m.fanOut(assoc.RoomID, frame, assoc.ParticipantID)
		m.publish(assoc.RoomID, frame)
	}
	log.Printf("hub: %s left room %s (deleted=%v)", assoc.Nickname, assoc.RoomID, result.RoomDeleted)
}

// handleStoreEvent converts a deletion event into an outbound broadcast and
// drops any timer state tied to the deleted entities. Deletion causes
// (explicit, TTL, view-once, cascade) all funnel through here.
func (m *Manager) handleStoreEvent(ev store.Event) {
	switch ev := ev.(type) {
	case store.MessageDeleted:
		m.scheduler.Cancel(ev.MessageID)
		frame := marshalFrame(models.MessageDeletedEvent{
			Type:      models.EventMessageDeleted,
			MessageID: ev.MessageID,
		})
		m.fanOut(ev.RoomID, frame, "")
		m.publish(ev.RoomID, frame)

	case store.RoomDeleted:
		for _, id := range ev.MessageIDs {
			m.scheduler.Cancel(id)
		}
		frame := marshalFrame(models.RoomDeletedEvent{
			Type:   models.EventRoomDeleted,
			RoomID: ev.RoomID,
		})
		m.fanOut(ev.RoomID, frame, "")
		m.publish(ev.RoomID, frame)

		// The participants are gone from the store; unbind their sockets.
		// The connections themselves stay open.
		for _, assoc := range m.registry.ConnectionsInRoom(ev.RoomID) {
			m.registry.Disassociate(assoc.ConnectionID)
		}
	}
}

// fanOut delivers a frame to every live connection in the room, optionally
// excluding one participant. Delivery is never awaited: a slow consumer's
// frame is dropped and keep-alive detection reaps the connection.
func (m *Manager) fanOut(roomID string, frame []byte, excludeParticipantID string) {
	if frame == nil {
		return
	}
	for _, assoc := range m.registry.ConnectionsInRoom(roomID) {
		if excludeParticipantID != "" && assoc.ParticipantID == excludeParticipantID {
			continue
		}
		m.sendTo(assoc.ConnectionID, frame)
	}
}

// publish forwards a locally originated broadcast to other relay instances.
func (m *Manager) publish(roomID string, frame []byte) {
	if m.bridge == nil || frame == nil {
		return
	}
	m.bridge.Publish(roomID, frame)
}

func (m *Manager) sendTo(connID string, frame []byte) {
	client, ok := m.clients[connID]
	if !ok || frame == nil {
		return
	}
	select {
	case client.SendChannel() <- frame:
	default:
		log.Printf("hub: send buffer full, dropping frame for connection %s", connID)
	}
}

func (m *Manager) sendError(connID, message string) {
	m.sendTo(connID, marshalFrame(models.ErrorEvent{Type: models.EventError, Error: message}))
}

func marshalFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: unable to encode %T: %v", v, err)
		return nil
	}
	return data
}
