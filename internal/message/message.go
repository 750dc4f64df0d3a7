// Package message defines the unit of pipeline work and the metadata
// carried alongside it: a per-message ack-token model rather than a
// synchronous whole-batch one, so a single input read can fan out
// into independently acknowledged children.
package message

// Kind discriminates the three message categories the executor knows
// about.
type Kind uint8

const (
	// Default is an ordinary payload-carrying message.
	Default Kind = iota
	// Control carries no payload of interest to processors; plugins may
	// use it for keepalives. It flows through the chain unprocessed.
	Control
	// EndOfStream marks the end of a stream_id's message sequence.
	EndOfStream
)

// Message is the unit of pipeline work.
type Message struct {
	bytes    []byte
	metadata *Metadata
	kind     Kind
	streamID string
	hasSID   bool
	ack      *AckHandle
	filtered bool
}

// New constructs a Default message with empty metadata and no stream
// id. Inputs call this and then set metadata/stream id as needed
// before handing the message to the executor.
func New(payload []byte) *Message {
	return &Message{
		bytes:    payload,
		metadata: NewMetadata(),
		kind:     Default,
	}
}

// NewControl builds a Control message sharing no ack semantics beyond
// pass-through.
func NewControl() *Message {
	return &Message{metadata: NewMetadata(), kind: Control}
}

// NewEndOfStream builds the sentinel that terminates a stream_id.
func NewEndOfStream(streamID string) *Message {
	return &Message{
		metadata: NewMetadata(),
		kind:     EndOfStream,
		streamID: streamID,
		hasSID:   true,
	}
}

// Bytes returns the message payload.
func (m *Message) Bytes() []byte { return m.bytes }

// SetBytes replaces the payload.
func (m *Message) SetBytes(b []byte) { m.bytes = b }

// Metadata returns the mutable metadata map attached to the message.
func (m *Message) Metadata() *Metadata { return m.metadata }

// Kind returns the message category.
func (m *Message) Kind() Kind { return m.kind }

// StreamID returns the stream identifier and whether one is set.
func (m *Message) StreamID() (string, bool) { return m.streamID, m.hasSID }

// SetStreamID assigns the message to a stream.
func (m *Message) SetStreamID(id string) {
	m.streamID = id
	m.hasSID = true
}

// AckHandle returns the shared ack handle backing this message.
func (m *Message) AckHandle() *AckHandle { return m.ack }

// SetAckHandle attaches the shared ack handle. Called once by the
// executor when a message is admitted from the input, and copied
// verbatim onto every fan-out child so they share one refcount.
func (m *Message) SetAckHandle(h *AckHandle) { m.ack = h }

// Clone produces a message with an independent metadata map and byte
// slice but the SAME ack handle: used for fan-out children so the
// parent's ack token is shared across all of them per the refcount
// contract on AckHandle.
func (m *Message) Clone() *Message {
	c := &Message{
		bytes:    append([]byte(nil), m.bytes...),
		metadata: m.metadata.Clone(),
		kind:     m.kind,
		streamID: m.streamID,
		hasSID:   m.hasSID,
		ack:      m.ack,
	}
	return c
}

// IsFiltered reports whether MarkFiltered has been called on the
// message. An empty payload alone does not make a message filtered.
func (m *Message) IsFiltered() bool { return m.filtered }

// MarkFiltered flags the message as filtered. Used by control
// processors (filter, fiddlerscript-on-Null) to signal a successful,
// ack-worthy drop.
func (m *Message) MarkFiltered() { m.filtered = true }
