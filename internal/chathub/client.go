package chathub

// Client is the interface for one live connection. It abstracts the underlying
// transport so the hub can manage connections uniformly and tests can use
// in-memory doubles.
type Client interface {
	// ConnectionID returns the unique identifier of this connection. It is
	// not a participant id; the registry maps between the two.
	ConnectionID() string

	// SendChannel returns the channel the hub writes outbound frames to.
	// Frames are fully encoded JSON.
	SendChannel() chan<- []byte

	// Run starts the client's read and write pumps.
	Run()

	// Close shuts down the client's outbound channel, which stops its write
	// pump and closes the transport.
	Close()
}
