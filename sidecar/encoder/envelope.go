// Package encoder implements the wire envelope friends exchange
// ProvenMessages over. It mirrors the shape of the host gossip engine's own
// SSZ-over-snappy network encoder (body bytes, optionally snappy-compressed,
// length-prefixed with a protobuf varint) but serializes the body as JSON
// since a ProvenMessage is not a consensus SSZ type.
package encoder

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/gogo/protobuf/proto"
	"github.com/golang/snappy"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

// MaxEnvelopeSize bounds how large a decoded envelope may be, guarding
// against a malicious or buggy peer claiming an unbounded length prefix.
const MaxEnvelopeSize = uint64(1 << 20) // 1 MiB

// Envelope encodes and decodes ProvenMessages for the friend-relay wire
// format. UseSnappyCompression mirrors the host encoder's toggle so the
// relay can match whatever the deployment's transport negotiates.
type Envelope struct {
	UseSnappyCompression bool
}

func (e Envelope) doEncode(msg types.ProvenMessage) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if e.UseSnappyCompression {
		b = snappy.Encode(nil, b)
	}
	return b, nil
}

// Encode writes msg to w, length-prefixed with a protobuf varint.
func (e Envelope) Encode(w io.Writer, msg types.ProvenMessage) (int, error) {
	b, err := e.doEncode(msg)
	if err != nil {
		return 0, err
	}
	b = append(proto.EncodeVarint(uint64(len(b))), b...)
	return w.Write(b)
}

// EncodeBytes returns the raw (not length-prefixed) body for callers
// publishing through a light-push API rather than an io.Writer, whose
// transport already delivers one message per call rather than a byte
// stream requiring a length prefix to split. Pairs with DecodeBytes on the
// receiving end.
func (e Envelope) EncodeBytes(msg types.ProvenMessage) ([]byte, error) {
	return e.doEncode(msg)
}

// Decode reads one length-prefixed, optionally snappy-compressed JSON body
// from r and unmarshals it into a ProvenMessage.
func (e Envelope) Decode(r io.Reader) (types.ProvenMessage, error) {
	var msg types.ProvenMessage
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	n, err := readVarint(br)
	if err != nil {
		return msg, err
	}
	if n > MaxEnvelopeSize {
		return msg, types.Newf(types.KindNetwork, "envelope size %d exceeds max %d", n, MaxEnvelopeSize)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return msg, err
	}
	return e.DecodeBytes(b)
}

// DecodeBytes unmarshals a raw (not length-prefixed) body, such as what a
// light-push subscription delivers whole.
func (e Envelope) DecodeBytes(b []byte) (types.ProvenMessage, error) {
	var msg types.ProvenMessage
	if e.UseSnappyCompression {
		var err error
		b, err = snappy.Decode(nil, b)
		if err != nil {
			return msg, err
		}
	}
	if err := json.Unmarshal(b, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// readVarint decodes a base-128 varint the way gogo/protobuf's EncodeVarint
// produces it: little-endian groups of 7 bits, high bit set on every byte
// but the last.
func readVarint(r io.ByteReader) (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, io.ErrShortBuffer
}
