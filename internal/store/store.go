package store

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"vanishchat/backend/internal/models"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomExpired         = errors.New("room expired")
	ErrRoomFull            = errors.New("room full")
	ErrMessageNotFound     = errors.New("message not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

// Fallback message TTLs, applied only when neither the client nor the room
// supplies one.
const (
	FallbackMessageTTL  = 600 * time.Second
	FallbackViewOnceTTL = 60 * time.Second
)

// Options configure a Store. Zero values fall back to sane defaults.
type Options struct {
	// RoomTTL is the lifetime of a newly created room. Default 24h.
	RoomTTL time.Duration
	// DefaultMessageTTLSeconds is used for rooms created without an explicit
	// per-room TTL. Default 600.
	DefaultMessageTTLSeconds int
	// EventBuffer sizes the deletion event channel. Default 256.
	EventBuffer int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store owns the canonical in-memory state: rooms, participants and messages,
// all keyed by id. Every mutating operation runs under one mutex so multi-step
// updates (capacity check + insert, cascade deletes, view-once consumption)
// are never observable half-done. Nothing here ever touches disk.
type Store struct {
	mu           sync.RWMutex
	rooms        map[string]*models.Room
	participants map[string]*models.Participant
	messages     map[string]*models.Message

	events chan Event

	roomTTL           time.Duration
	defaultMessageTTL int
	now               func() time.Time
}

func New(opts Options) *Store {
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = 24 * time.Hour
	}
	if opts.DefaultMessageTTLSeconds <= 0 {
		opts.DefaultMessageTTLSeconds = int(FallbackMessageTTL / time.Second)
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		rooms:             make(map[string]*models.Room),
		participants:      make(map[string]*models.Participant),
		messages:          make(map[string]*models.Message),
		events:            make(chan Event, opts.EventBuffer),
		roomTTL:           opts.RoomTTL,
		defaultMessageTTL: opts.DefaultMessageTTLSeconds,
		now:               opts.Now,
	}
}

// Events delivers deletion notifications, exactly one per logical deletion.
func (s *Store) Events() <-chan Event {
	return s.events
}

func (s *Store) emit(events ...Event) {
	for _, ev := range events {
		select {
		case s.events <- ev:
		default:
			log.Printf("store: event buffer full, dropping %T", ev)
		}
	}
}

// CreateRoom creates a room expiring after the configured room TTL.
// ttlSeconds sets the room's default message TTL; zero or negative picks the
// store-wide default.
func (s *Store) CreateRoom(ttlSeconds int) models.Room {
	if ttlSeconds <= 0 {
		ttlSeconds = s.defaultMessageTTL
	}
	now := s.now()
	room := &models.Room{
		ID:                       uuid.NewString(),
		CreatedAt:                now,
		ExpiresAt:                now.Add(s.roomTTL),
		IsActive:                 false,
		ParticipantCount:         0,
		DefaultMessageTTLSeconds: ttlSeconds,
	}

	s.mu.Lock()
	s.rooms[room.ID] = room
	s.mu.Unlock()
	return *room
}

// Room returns a snapshot of the room, if present.
func (s *Store) Room(roomID string) (models.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return *room, true
}

// AddParticipant performs the capacity check and the insert as one step, so
// two near-simultaneous joins can never both land in a one-slot room.
// An expired room is cascade-deleted here and reported as ErrRoomExpired.
func (s *Store) AddParticipant(roomID, nickname, publicKey string) (models.Participant, error) {
	now := s.now()

	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return models.Participant{}, ErrRoomNotFound
	}
	if room.ExpiresAt.Before(now) {
		ev := s.deleteRoomLocked(roomID)
		s.mu.Unlock()
		s.emit(ev)
		return models.Participant{}, ErrRoomExpired
	}
	if room.ParticipantCount >= models.MaxRoomParticipants {
		s.mu.Unlock()
		return models.Participant{}, ErrRoomFull
	}

	p := &models.Participant{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Nickname:  nickname,
		PublicKey: publicKey,
		IsOnline:  true,
		JoinedAt:  now,
	}
	s.participants[p.ID] = p
	room.ParticipantCount++
	if room.ParticipantCount == models.MaxRoomParticipants {
		room.IsActive = true
	}
	s.mu.Unlock()
	return *p, nil
}

// RemoveParticipant drops the participant and returns the room's remaining
// occupancy. Deciding what the new occupancy means for the room (deactivate,
// delete) is the lifecycle controller's job, not the store's.
func (s *Store) RemoveParticipant(participantID string) (models.Participant, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return models.Participant{}, 0, ErrParticipantNotFound
	}
	delete(s.participants, participantID)

	remaining := 0
	if room, ok := s.rooms[p.RoomID]; ok {
		room.ParticipantCount--
		if room.ParticipantCount < models.MaxRoomParticipants {
			room.IsActive = false
		}
		remaining = room.ParticipantCount
	}
	return *p, remaining, nil
}

// SetParticipantOnline flips the presence flag kept on the stored record.
func (s *Store) SetParticipantOnline(participantID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[participantID]; ok {
		p.IsOnline = online
	}
}

// ParticipantsByRoom returns the room's members ordered by join time.
func (s *Store) ParticipantsByRoom(roomID string) []models.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Participant
	for _, p := range s.participants {
		if p.RoomID == roomID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result
}

// CreateMessage inserts a message, resolving its expiry in order: explicit
// client value, then the room's default message TTL, then the hardcoded
// fallback (shorter for view-once). The computation depends only on the
// arguments, the room's current state and the clock.
func (s *Store) CreateMessage(roomID, senderNickname string, payload models.SendMessagePayload) (models.Message, error) {
	now := s.now()
	messageType := payload.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return models.Message{}, ErrRoomNotFound
	}

	expiresAt := payload.ExpiresAt
	if expiresAt == nil {
		var ttl time.Duration
		switch {
		case room.DefaultMessageTTLSeconds > 0:
			ttl = time.Duration(room.DefaultMessageTTLSeconds) * time.Second
		case payload.IsViewOnce:
			ttl = FallbackViewOnceTTL
		default:
			ttl = FallbackMessageTTL
		}
		t := now.Add(ttl)
		expiresAt = &t
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		RoomID:         roomID,
		SenderNickname: senderNickname,
		Content:        payload.Content,
		MessageType:    messageType,
		EncryptedData:  payload.EncryptedData,
		IsViewOnce:     payload.IsViewOnce,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
	}
	s.messages[msg.ID] = msg
	s.mu.Unlock()
	return *msg, nil
}

// Message returns a snapshot of the message, if present.
func (s *Store) Message(messageID string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, false
	}
	return *msg, true
}

// MessagesByRoom returns every stored message of the room ordered by creation
// time, expired or not. Callers wanting only visible messages use
// LiveMessagesByRoom.
func (s *Store) MessagesByRoom(roomID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesByRoomLocked(roomID)
}

func (s *Store) messagesByRoomLocked(roomID string) []models.Message {
	var result []models.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			result = append(result, *m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// LiveMessagesByRoom returns the room's messages that are still visible:
// neither expired nor consumed view-once ones.
func (s *Store) LiveMessagesByRoom(roomID string) []models.Message {
	now := s.now()
	return lo.Filter(s.MessagesByRoom(roomID), func(m models.Message, _ int) bool {
		return m.Live(now)
	})
}

// MarkMessageViewed flips HasBeenViewed and, for view-once messages, deletes
// the message in the same critical section — there is no window where a
// view-once message is both viewed and retrievable. The returned bool reports
// whether the message was deleted.
func (s *Store) MarkMessageViewed(messageID string) (models.Message, bool, error) {
	s.mu.Lock()
	msg, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return models.Message{}, false, ErrMessageNotFound
	}
	msg.HasBeenViewed = true
	snapshot := *msg
	if !msg.IsViewOnce {
		s.mu.Unlock()
		return snapshot, false, nil
	}
	delete(s.messages, messageID)
	s.mu.Unlock()

	s.emit(MessageDeleted{MessageID: messageID, RoomID: snapshot.RoomID})
	return snapshot, true, nil
}

// DeleteMessage removes the message if it is still present. All deletion
// paths (explicit, TTL timer, view-once) converge here or on
// MarkMessageViewed, and a second call for the same id is a silent no-op with
// no duplicate event.
func (s *Store) DeleteMessage(messageID string) bool {
	s.mu.Lock()
	msg, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.messages, messageID)
	s.mu.Unlock()

	s.emit(MessageDeleted{MessageID: messageID, RoomID: msg.RoomID})
	return true
}

// DeleteRoom cascade-deletes the room with all its messages and participants
// as one step, emitting a single RoomDeleted event. Idempotent.
func (s *Store) DeleteRoom(roomID string) bool {
	s.mu.Lock()
	if _, ok := s.rooms[roomID]; !ok {
		s.mu.Unlock()
		return false
	}
	ev := s.deleteRoomLocked(roomID)
	s.mu.Unlock()

	s.emit(ev)
	return true
}

func (s *Store) deleteRoomLocked(roomID string) RoomDeleted {
	delete(s.rooms, roomID)

	var messageIDs []string
	for id, m := range s.messages {
		if m.RoomID == roomID {
			delete(s.messages, id)
			messageIDs = append(messageIDs, id)
		}
	}
	for id, p := range s.participants {
		if p.RoomID == roomID {
			delete(s.participants, id)
		}
	}
	return RoomDeleted{RoomID: roomID, MessageIDs: messageIDs}
}

// DeleteExpiredRooms cascade-deletes every room past its deadline and returns
// the emitted events, one per room. The periodic sweep calls this.
func (s *Store) DeleteExpiredRooms() []RoomDeleted {
	now := s.now()

	s.mu.Lock()
	var deleted []RoomDeleted
	for id, room := range s.rooms {
		if room.ExpiresAt.Before(now) {
			deleted = append(deleted, s.deleteRoomLocked(id))
		}
	}
	s.mu.Unlock()

	for _, ev := range deleted {
		s.emit(ev)
	}
	return deleted
}

// ExpiringMessages returns every message carrying an expiry deadline, for
// re-arming timers after a restart. Nothing else tracks pending timers.
func (s *Store) ExpiringMessages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Message
	for _, m := range s.messages {
		if m.ExpiresAt != nil {
			result = append(result, *m)
		}
	}
	return result
}

// Counts reports the store's population, for the health surface.
func (s *Store) Counts() (rooms, participants, messages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms), len(s.participants), len(s.messages)
}
