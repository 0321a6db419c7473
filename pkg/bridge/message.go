package bridge

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// MaxMessageSize bounds a single frame body.
const MaxMessageSize = 1 << 20

type Command byte

const (
	CommandCall Command = iota + 1
	CommandReply
)

func (c Command) String() string {
	switch c {
	case CommandCall:
		return "CALL"
	case CommandReply:
		return "REPLY"
	default:
		return fmt.Sprintf("Command(%d)", byte(c))
	}
}

// Message is a single frame: 1 byte command, 4 bytes big-endian length, CBOR body.
type Message struct {
	Command Command
	length  uint32
	Data    []byte
}

// Call is the body of a CommandCall frame.
type Call struct {
	ID     uuid.UUID       `cbor:"id"`
	Plugin string          `cbor:"plugin"`
	Method string          `cbor:"method"`
	Args   cbor.RawMessage `cbor:"args,omitempty"`
}

// Reply is the body of a CommandReply frame. Exactly one of Result and Error is set.
type Reply struct {
	ID     uuid.UUID       `cbor:"id"`
	Result cbor.RawMessage `cbor:"result,omitempty"`
	Error  *PluginError    `cbor:"error,omitempty"`
}

func ParseMessage(r io.Reader) (*Message, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	cmd := Command(header[0])
	if cmd != CommandCall && cmd != CommandReply {
		return nil, ErrInvalidCommand
	}

	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	data := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
	}

	return &Message{
		Command: cmd,
		length:  length,
		Data:    data,
	}, nil
}

func NewMessage(encMode cbor.EncMode, cmd Command, data any) (*Message, error) {
	msg := &Message{
		Command: cmd,
	}

	b := make([]byte, 0)
	var err error
	if data != nil {
		b, err = encMode.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	if len(b) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	msg.length = uint32(len(b))
	msg.Data = b

	return msg, nil
}

// WriteTo writes the whole frame with a single Write so concurrent writers
// guarded by one mutex never interleave partial frames.
func (m *Message) WriteTo(w io.Writer) (n int64, err error) {
	frame := make([]byte, 5, 5+len(m.Data))
	frame[0] = byte(m.Command)
	binary.BigEndian.PutUint32(frame[1:], m.length)
	frame = append(frame, m.Data...)

	written, err := w.Write(frame)
	return int64(written), err
}

// Decode unmarshals the frame body into v.
func (m *Message) Decode(v any) error {
	return cbor.Unmarshal(m.Data, v)
}
