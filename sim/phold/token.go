package phold

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/macrosim/macrosim/sim"
)

// TokenKind is the payload kind tokens travel under between ranks.
const TokenKind = "phold.token"

const tokenSize = 16

// Token is the message bounced between processes.
type Token struct {
	ID     uint64
	Origin sim.ComponentID
	Hops   uint32
}

// PayloadKind implements sim.Serializable.
func (t *Token) PayloadKind() string { return TokenKind }

// MarshalBinary implements sim.Serializable.
func (t *Token) MarshalBinary() ([]byte, error) {
	buf := make([]byte, tokenSize)
	binary.BigEndian.PutUint64(buf[0:], t.ID)
	binary.BigEndian.PutUint32(buf[8:], uint32(t.Origin))
	binary.BigEndian.PutUint32(buf[12:], t.Hops)
	return buf, nil
}

// DecodeToken rebuilds a Token received from another rank.
func DecodeToken(data []byte) (any, error) {
	if len(data) != tokenSize {
		return nil, errors.Errorf("token: want %d bytes, got %d", tokenSize, len(data))
	}
	return &Token{
		ID:     binary.BigEndian.Uint64(data[0:]),
		Origin: sim.ComponentID(binary.BigEndian.Uint32(data[8:])),
		Hops:   binary.BigEndian.Uint32(data[12:]),
	}, nil
}
