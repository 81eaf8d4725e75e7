package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

// Envelope layout (little-endian):
//
//	magic u16 | opcode u16 | flags u16 | message_id [16]byte | payload_len u32 | payload
const (
	Magic      uint16 = 0x445A
	HeaderSize        = 2 + 2 + 2 + 16 + 4

	// DefaultCompressThreshold is the payload size from which bodies are zstd compressed.
	DefaultCompressThreshold = 512

	// MaxPayloadSize bounds a decoded payload.
	MaxPayloadSize = 4 << 20
)

// Flags are envelope bit flags.
type Flags uint16

// FlagCompressed marks a zstd-compressed payload.
const FlagCompressed Flags = 1 << 0

// Header is the decoded envelope header.
type Header struct {
	Opcode    Opcode
	Flags     Flags
	MessageID ulid.ULID
	Length    uint32
}

// Codec frames messages into envelopes. It is safe for concurrent use.
type Codec struct {
	enc       *zstd.Encoder
	dec       *zstd.Decoder
	threshold int
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithCompressThreshold sets the payload size that triggers compression.
// Zero or negative disables compression.
func WithCompressThreshold(n int) CodecOption {
	return func(c *Codec) {
		c.threshold = n
	}
}

// NewCodec creates a codec with zstd encoder and decoder.
func NewCodec(opts ...CodecOption) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("protocol: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayloadSize))
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("protocol: zstd decoder: %w", err)
	}

	c := &Codec{
		enc:       enc,
		dec:       dec,
		threshold: DefaultCompressThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Marshal frames a message with a fresh message id.
func (c *Codec) Marshal(m Message) ([]byte, ulid.ULID, error) {
	id := ulid.Make()
	frame, err := c.MarshalWithID(m, id)
	return frame, id, err
}

// MarshalWithID frames a message with the given id.
func (c *Codec) MarshalWithID(m Message, id ulid.ULID) ([]byte, error) {
	payload := EncodePayload(m)

	var flags Flags
	if c.threshold > 0 && len(payload) >= c.threshold {
		payload = c.enc.EncodeAll(payload, nil)
		flags |= FlagCompressed
	}
	if len(payload) > MaxPayloadSize {
		return nil, domain.ErrInvalidArgument.WithDetails("payload exceeds max size")
	}

	frame := make([]byte, HeaderSize, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(frame[0:], Magic)
	binary.LittleEndian.PutUint16(frame[2:], uint16(m.Opcode()))
	binary.LittleEndian.PutUint16(frame[4:], uint16(flags))
	copy(frame[6:22], id[:])
	binary.LittleEndian.PutUint32(frame[22:], uint32(len(payload)))
	return append(frame, payload...), nil
}

// ReadHeader parses the envelope header of a frame.
func ReadHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, domain.ErrMalformedMessage.WithDetails("short envelope")
	}
	if binary.LittleEndian.Uint16(frame[0:]) != Magic {
		return Header{}, domain.ErrMalformedMessage.WithDetails("bad magic")
	}

	var h Header
	h.Opcode = Opcode(binary.LittleEndian.Uint16(frame[2:]))
	h.Flags = Flags(binary.LittleEndian.Uint16(frame[4:]))
	copy(h.MessageID[:], frame[6:22])
	h.Length = binary.LittleEndian.Uint32(frame[22:])

	if h.Length > MaxPayloadSize || int(h.Length) != len(frame)-HeaderSize {
		return Header{}, domain.ErrMalformedMessage.WithDetails("payload length mismatch")
	}
	return h, nil
}

// Unmarshal decodes a frame into its header and message.
func (c *Codec) Unmarshal(frame []byte) (Header, Message, error) {
	h, err := ReadHeader(frame)
	if err != nil {
		return Header{}, nil, err
	}

	payload := frame[HeaderSize:]
	if h.Flags&FlagCompressed != 0 {
		payload, err = c.dec.DecodeAll(payload, nil)
		if err != nil {
			return h, nil, domain.ErrMalformedMessage.WithCause(err)
		}
	}

	m, err := DecodePayload(h.Opcode, payload)
	if err != nil {
		return h, nil, err
	}
	return h, m, nil
}

// Close releases the zstd resources.
func (c *Codec) Close() error {
	c.dec.Close()
	return c.enc.Close()
}
