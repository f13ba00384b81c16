package chathub

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannelPrefix = "vanishchat:room:"

// BridgeFrame is a broadcast received from another relay instance.
type BridgeFrame struct {
	RoomID string
	Frame  []byte
}

type bridgeEnvelope struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// Bridge fans room broadcasts out across relay instances over Redis pub/sub.
// Nothing is ever written to a key; frames exist only in flight, so the
// no-durable-storage rule holds. A nil Bridge means single-instance operation.
type Bridge struct {
	rdb      *redis.Client
	instance string
	deliver  chan<- BridgeFrame
}

func NewBridge(rdb *redis.Client, m *Manager) *Bridge {
	b := &Bridge{
		rdb:      rdb,
		instance: uuid.NewString(),
		deliver:  m.bridgeCh,
	}
	m.SetBridge(b)
	return b
}

// Publish forwards a locally originated frame to peer instances.
// Fire-and-forget: a pub/sub hiccup never blocks or fails a local broadcast.
func (b *Bridge) Publish(roomID string, frame []byte) {
	payload, err := json.Marshal(bridgeEnvelope{Origin: b.instance, Frame: frame})
	if err != nil {
		log.Printf("bridge: unable to encode frame: %v", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), bridgeChannelPrefix+roomID, payload).Err(); err != nil {
		log.Printf("bridge: publish failed for room %s: %v", roomID, err)
	}
}

// Run subscribes to every room channel and feeds frames from other instances
// into the hub. Our own publishes are recognized by origin id and skipped.
func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.rdb.PSubscribe(ctx, bridgeChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("bridge: malformed frame on %s: %v", msg.Channel, err)
				continue
			}
			if env.Origin == b.instance {
				continue
			}
			roomID := strings.TrimPrefix(msg.Channel, bridgeChannelPrefix)
			select {
			case b.deliver <- BridgeFrame{RoomID: roomID, Frame: env.Frame}:
			default:
				log.Printf("bridge: hub busy, dropping frame for room %s", roomID)
			}
		}
	}
}
