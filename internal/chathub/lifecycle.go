package chathub

import (
	"vanishchat/backend/internal/models"
	"vanishchat/backend/internal/store"
)

// Lifecycle enforces the room state machine as participants come and go:
// empty -> partial (1 member, inactive) -> full (2 members, active) and back.
// A fully vacated room is deleted immediately — there is no grace period.
type Lifecycle struct {
	store *store.Store
}

func NewLifecycle(s *store.Store) *Lifecycle {
	return &Lifecycle{store: s}
}

// LeaveResult describes what a departure did to the room.
type LeaveResult struct {
	Participant models.Participant
	Remaining   int
	RoomDeleted bool
}

// OnLeave removes the participant and applies the resulting transition:
// full -> partial deactivates the room (done inside the store's removal),
// partial -> empty deletes it. The cascade's RoomDeleted event flows through
// the store's event channel like any other deletion.
func (l *Lifecycle) OnLeave(participantID string) (LeaveResult, error) {
	p, remaining, err := l.store.RemoveParticipant(participantID)
	if err != nil {
		return LeaveResult{}, err
	}

	result := LeaveResult{Participant: p, Remaining: remaining}
	if remaining == 0 {
		result.RoomDeleted = l.store.DeleteRoom(p.RoomID)
	}
	return result, nil
}
