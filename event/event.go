// Package event carries cluster-wide control broadcasts, such as queue
// pause and unpause, over Redis pub/sub.
//
// Messages are MessagePack-encoded [Message] values. Every process runs one
// [Listener] which fans received messages out to registered [Handler]s.
// Pub/sub is fire-and-forget: a process that is disconnected when a
// message is published misses it, so durable state (the paused set) is
// always written alongside the broadcast and read at startup.
package event

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Broadcast verbs.
const (
	VerbPause   = "pause"
	VerbUnpause = "unpause"
)

// Message is one broadcast.
type Message struct {
	Verb    string    `msgpack:"verb"`
	Payload string    `msgpack:"payload"`
	SentAt  time.Time `msgpack:"sent_at"`
}

// Encode serialises m for publishing.
func Encode(m Message) ([]byte, error) {
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("warden/event: encode: %w", err)
	}
	return b, nil
}

// Decode parses a published payload.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("warden/event: decode: %w", err)
	}
	if m.Verb == "" {
		return Message{}, fmt.Errorf("warden/event: decode: empty verb")
	}
	return m, nil
}

// Handler receives broadcasts. Notify must not block.
type Handler interface {
	Notify(verb, payload string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(verb, payload string)

// Notify calls f.
func (f HandlerFunc) Notify(verb, payload string) { f(verb, payload) }
