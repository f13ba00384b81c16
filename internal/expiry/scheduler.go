// Package expiry drives time-based deletion: a one-shot timer per message and
// a periodic sweep for room expiry. It never mutates consumers directly — all
// deletes go through the store, which emits the deletion events.
package expiry

import (
	"log"
	"sync"
	"time"

	"vanishchat/backend/internal/models"
	"vanishchat/backend/internal/store"
)

// Scheduler guarantees every message and room is deleted no earlier than its
// deadline and within one timer resolution (or one sweep tick) after it.
type Scheduler struct {
	store *store.Store

	mu     sync.Mutex
	timers map[string]*time.Timer

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

func NewScheduler(s *store.Store, sweepInterval time.Duration) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &Scheduler{
		store:         s,
		timers:        make(map[string]*time.Timer),
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Schedule arms a one-shot timer for the message's deadline. A deadline
// already in the past deletes the message synchronously instead of arming
// anything. Messages without a deadline are left alone.
func (sc *Scheduler) Schedule(msg models.Message) {
	if msg.ExpiresAt == nil {
		return
	}

	delay := time.Until(*msg.ExpiresAt)
	if delay <= 0 {
		sc.store.DeleteMessage(msg.ID)
		return
	}

	id := msg.ID
	sc.mu.Lock()
	if prev, ok := sc.timers[id]; ok {
		prev.Stop()
	}
	sc.timers[id] = time.AfterFunc(delay, func() {
		sc.mu.Lock()
		delete(sc.timers, id)
		sc.mu.Unlock()
		// A no-op when another deletion path already won the race.
		sc.store.DeleteMessage(id)
	})
	sc.mu.Unlock()
}

// Cancel stops and drops the message's pending timer, if any. Every deletion
// path calls this so a stale handle can never fire a double delete.
// Idempotent.
func (sc *Scheduler) Cancel(messageID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if t, ok := sc.timers[messageID]; ok {
		t.Stop()
		delete(sc.timers, messageID)
	}
}

// Rearm scans the store and arms timers for every message with a future
// deadline. Called once at process start; the timer registry is the only
// record of pending expiries and it does not survive a restart.
func (sc *Scheduler) Rearm() {
	msgs := sc.store.ExpiringMessages()
	for _, msg := range msgs {
		sc.Schedule(msg)
	}
	if len(msgs) > 0 {
		log.Printf("expiry: re-armed %d message timers", len(msgs))
	}
}

// Run sweeps expired rooms at a fixed interval until Stop is called. Room
// expiry uses the same cascading delete as an explicit room deletion.
func (sc *Scheduler) Run() {
	ticker := time.NewTicker(sc.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, ev := range sc.store.DeleteExpiredRooms() {
				for _, id := range ev.MessageIDs {
					sc.Cancel(id)
				}
				log.Printf("expiry: room %s swept (%d messages)", ev.RoomID, len(ev.MessageIDs))
			}
		case <-sc.stopCh:
			return
		}
	}
}

// Stop terminates the sweep loop and stops every pending timer.
func (sc *Scheduler) Stop() {
	sc.stopOnce.Do(func() { close(sc.stopCh) })

	sc.mu.Lock()
	defer sc.mu.Unlock()
	for id, t := range sc.timers {
		t.Stop()
		delete(sc.timers, id)
	}
}

// Pending reports the number of armed message timers, for the health surface
// and for tests.
func (sc *Scheduler) Pending() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.timers)
}
