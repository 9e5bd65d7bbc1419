package sim

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// EnvelopeVersion is written as the first byte of every encoded envelope.
// Decoders reject any other version.
const EnvelopeVersion byte = 1

// envelopeHeaderLen: version(1) + time(8) + src(4) + dst(4) + port(2) +
// link(4) + seqnum(8) + rank(4) + thread(4).
const envelopeHeaderLen = 1 + 8 + 4 + 4 + 2 + 4 + 8 + 4 + 4

// Serializable is a payload that can cross a rank boundary.
// The kind string selects the decoder registered on the receiving side.
type Serializable interface {
	encoding.BinaryMarshaler
	PayloadKind() string
}

// PayloadDecoder rebuilds a payload from the bytes produced by MarshalBinary.
type PayloadDecoder func(data []byte) (any, error)

// PayloadRegistry maps payload kinds to their decoders.
type PayloadRegistry struct {
	mu       sync.RWMutex
	decoders map[string]PayloadDecoder
}

// NewPayloadRegistry creates an empty registry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{decoders: make(map[string]PayloadDecoder)}
}

// Register adds a decoder for kind. Registering the same kind twice is an error.
func (r *PayloadRegistry) Register(kind string, dec PayloadDecoder) error {
	if kind == "" {
		return fmt.Errorf("payload kind must not be empty")
	}
	if dec == nil {
		return fmt.Errorf("payload kind %q: decoder must not be nil", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.decoders[kind]; exists {
		return fmt.Errorf("payload kind %q already registered", kind)
	}
	r.decoders[kind] = dec
	return nil
}

func (r *PayloadRegistry) decoder(kind string) (PayloadDecoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dec, ok := r.decoders[kind]
	return dec, ok
}

// Envelope is the self-contained, by-value form of an event crossing ranks.
type Envelope struct {
	Time    int64
	Src     ComponentID
	Dst     ComponentID
	Port    uint16
	LinkID  uint32
	Seqnum  uint64
	Rank    int32 // destination rank
	Thread  int32 // destination thread within Rank
	Kind    string
	Payload []byte
}

// EncodeEnvelope serializes env into a fresh buffer.
func EncodeEnvelope(env *Envelope) []byte {
	buf := make([]byte, envelopeHeaderLen, envelopeHeaderLen+2*binary.MaxVarintLen64+len(env.Kind)+len(env.Payload))
	buf[0] = EnvelopeVersion
	off := 1
	binary.BigEndian.PutUint64(buf[off:], uint64(env.Time))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(env.Src))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(env.Dst))
	off += 4
	binary.BigEndian.PutUint16(buf[off:], env.Port)
	off += 2
	binary.BigEndian.PutUint32(buf[off:], env.LinkID)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], env.Seqnum)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(env.Rank))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(env.Thread))

	buf = binary.AppendUvarint(buf, uint64(len(env.Kind)))
	buf = append(buf, env.Kind...)
	buf = binary.AppendUvarint(buf, uint64(len(env.Payload)))
	buf = append(buf, env.Payload...)
	return buf
}

// DecodeEnvelope parses bytes produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) < envelopeHeaderLen {
		return nil, errors.Errorf("envelope too short: %d bytes", len(data))
	}
	if data[0] != EnvelopeVersion {
		return nil, errors.Errorf("unsupported envelope version %d", data[0])
	}
	env := &Envelope{}
	off := 1
	env.Time = int64(binary.BigEndian.Uint64(data[off:]))
	off += 8
	env.Src = ComponentID(binary.BigEndian.Uint32(data[off:]))
	off += 4
	env.Dst = ComponentID(binary.BigEndian.Uint32(data[off:]))
	off += 4
	env.Port = binary.BigEndian.Uint16(data[off:])
	off += 2
	env.LinkID = binary.BigEndian.Uint32(data[off:])
	off += 4
	env.Seqnum = binary.BigEndian.Uint64(data[off:])
	off += 8
	env.Rank = int32(binary.BigEndian.Uint32(data[off:]))
	off += 4
	env.Thread = int32(binary.BigEndian.Uint32(data[off:]))
	off += 4

	kind, n, err := readChunk(data[off:])
	if err != nil {
		return nil, errors.Wrap(err, "kind")
	}
	off += n
	payload, n, err := readChunk(data[off:])
	if err != nil {
		return nil, errors.Wrap(err, "payload")
	}
	off += n
	if off != len(data) {
		return nil, errors.Errorf("%d trailing bytes", len(data)-off)
	}
	env.Kind = string(kind)
	env.Payload = payload
	return env, nil
}

// PeekDestination returns the destination rank and thread of an encoded
// envelope without decoding the rest.
func PeekDestination(data []byte) (rank, thread int, err error) {
	if len(data) < envelopeHeaderLen {
		return 0, 0, errors.Errorf("envelope too short: %d bytes", len(data))
	}
	if data[0] != EnvelopeVersion {
		return 0, 0, errors.Errorf("unsupported envelope version %d", data[0])
	}
	rank = int(int32(binary.BigEndian.Uint32(data[envelopeHeaderLen-8:])))
	thread = int(int32(binary.BigEndian.Uint32(data[envelopeHeaderLen-4:])))
	return rank, thread, nil
}

func readChunk(data []byte) ([]byte, int, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, 0, errors.New("bad length prefix")
	}
	if size > uint64(len(data)-n) {
		return nil, 0, errors.Errorf("length %d exceeds remaining %d bytes", size, len(data)-n)
	}
	end := n + int(size)
	out := make([]byte, size)
	copy(out, data[n:end])
	return out, end, nil
}

// encodePayload marshals a payload for an IPC link.
func encodePayload(payload any) (string, []byte, error) {
	s, ok := payload.(Serializable)
	if !ok {
		return "", nil, errors.Errorf("payload %T does not implement Serializable", payload)
	}
	data, err := s.MarshalBinary()
	if err != nil {
		return "", nil, errors.Wrapf(err, "marshal %s", s.PayloadKind())
	}
	return s.PayloadKind(), data, nil
}

// decodePayload resolves the envelope's kind in reg and rebuilds the payload.
func decodePayload(reg *PayloadRegistry, env *Envelope) (any, error) {
	dec, ok := reg.decoder(env.Kind)
	if !ok {
		return nil, errors.Errorf("no decoder registered for payload kind %q", env.Kind)
	}
	payload, err := dec(env.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", env.Kind)
	}
	return payload, nil
}
