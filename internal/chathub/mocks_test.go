package chathub_test

import (
	"encoding/json"
	"sync"

	"vanishchat/backend/internal/chathub"
)

// mockClient is a transport-free test double for the chathub.Client interface.
type mockClient struct {
	id   string
	send chan []byte

	closeOnce sync.Once
}

func newMockClient(id string) *mockClient {
	return &mockClient{
		id:   id,
		send: make(chan []byte, 32), // buffered so the hub never drops in tests
	}
}

func (c *mockClient) ConnectionID() string       { return c.id }
func (c *mockClient) SendChannel() chan<- []byte { return c.send }
func (c *mockClient) Run()                       {}

func (c *mockClient) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// frames drains everything delivered so far, decoded into loose maps.
func (c *mockClient) frames() []map[string]any {
	var out []map[string]any
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			var frame map[string]any
			if err := json.Unmarshal(raw, &frame); err == nil {
				out = append(out, frame)
			}
		default:
			return out
		}
	}
}

// framesOfType filters drained frames by their type tag.
func framesOfType(frames []map[string]any, kind string) []map[string]any {
	var out []map[string]any
	for _, f := range frames {
		if f["type"] == kind {
			out = append(out, f)
		}
	}
	return out
}

var _ chathub.Client = (*mockClient)(nil)
