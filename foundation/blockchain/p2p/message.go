package p2p

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// ErrMalformedMessage is returned when a frame can't be decoded into one
// of the known messages.
var ErrMalformedMessage = errors.New("malformed message")

// maxFrameSize is the largest frame accepted from a peer.
const maxFrameSize = 32 << 20

// Set of message types exchanged between nodes.
const (
	TypeConnect        = "CONNECT"
	TypeConnectAck     = "CONNECT_ACK"
	TypeGetBlockchain  = "GET_BLOCKCHAIN"
	TypeBlockchain     = "BLOCKCHAIN"
	TypeNewTransaction = "NEW_TRANSACTION"
	TypeNewBlock       = "NEW_BLOCK"
)

// =============================================================================

// Message represents one of the messages exchanged between nodes.
type Message interface {
	Type() string
}

// Connect introduces a node to a peer.
type Connect struct {
	Address string `json:"address"`
}

// ConnectAck answers a Connect with the peers the node knows about.
type ConnectAck struct {
	Address string   `json:"address"`
	Peers   []string `json:"peers"`
}

// GetBlockchain asks a peer for its full ledger.
type GetBlockchain struct{}

// Blockchain answers a GetBlockchain with the full ledger.
type Blockchain struct {
	Snapshot database.Snapshot
}

// NewTransaction shares a transaction accepted into the pending pool.
type NewTransaction struct {
	Tx database.Tx
}

// NewBlock shares a block appended to the chain.
type NewBlock struct {
	Block database.Block
}

// Type implements the Message interface.
func (Connect) Type() string { return TypeConnect }

// Type implements the Message interface.
func (ConnectAck) Type() string { return TypeConnectAck }

// Type implements the Message interface.
func (GetBlockchain) Type() string { return TypeGetBlockchain }

// Type implements the Message interface.
func (Blockchain) Type() string { return TypeBlockchain }

// Type implements the Message interface.
func (NewTransaction) Type() string { return TypeNewTransaction }

// Type implements the Message interface.
func (NewBlock) Type() string { return TypeNewBlock }

// =============================================================================

// envelope is the JSON form of every message on the wire.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode marshals the message into its JSON envelope.
func Encode(msg Message) ([]byte, error) {
	var data any
	switch m := msg.(type) {
	case Connect, ConnectAck:
		data = m
	case GetBlockchain:
	case Blockchain:
		data = m.Snapshot
	case NewTransaction:
		data = m.Tx
	case NewBlock:
		data = m.Block
	default:
		return nil, fmt.Errorf("%w: encode unknown message %T", database.ErrSerialization, msg)
	}

	env := envelope{Type: msg.Type()}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %s: %s", database.ErrSerialization, msg.Type(), err)
		}
		env.Data = raw
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %s", database.ErrSerialization, msg.Type(), err)
	}

	return out, nil
}

// Decode unmarshals the JSON envelope into the message it carries.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}

	if env.Type == TypeGetBlockchain {
		return GetBlockchain{}, nil
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: %s: missing data", ErrMalformedMessage, env.Type)
	}

	switch env.Type {
	case TypeConnect:
		var m Connect
		if err := unmarshal(env, &m); err != nil {
			return nil, err
		}
		if m.Address == "" {
			return nil, fmt.Errorf("%w: %s: missing address", ErrMalformedMessage, env.Type)
		}
		return m, nil

	case TypeConnectAck:
		var m ConnectAck
		if err := unmarshal(env, &m); err != nil {
			return nil, err
		}
		return m, nil

	case TypeBlockchain:
		var m Blockchain
		if err := unmarshal(env, &m.Snapshot); err != nil {
			return nil, err
		}
		return m, nil

	case TypeNewTransaction:
		var m NewTransaction
		if err := unmarshal(env, &m.Tx); err != nil {
			return nil, err
		}
		return m, nil

	case TypeNewBlock:
		var m NewBlock
		if err := unmarshal(env, &m.Block); err != nil {
			return nil, err
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
}

// unmarshal decodes the data of the envelope into the value.
func unmarshal(env envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrMalformedMessage, env.Type, err)
	}
	return nil
}

// =============================================================================

// WriteMessage writes the message as a frame: a 4 byte big endian length
// followed by the JSON envelope.
func WriteMessage(w io.Writer, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type(), err)
	}

	return nil
}

// ReadMessage reads one frame and decodes the message it carries.
func ReadMessage(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("%w: frame size %d", ErrMalformedMessage, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: truncated frame: %s", ErrMalformedMessage, err)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	return Decode(data)
}
