package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WebSocket frame opcodes
const (
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA
)

const (
	// MaxChunk is the largest payload written in a single frame.
	MaxChunk = 65535
	// MaxFrameSize bounds the payload of an incoming frame.
	MaxFrameSize = 16 << 20
	// maxControlPayload is the largest payload a control frame may carry.
	maxControlPayload = 125
)

var (
	// ErrProtocol reports a frame that breaks the framing rules.
	ErrProtocol = errors.New("websocket protocol error")
	// ErrFrameTooLarge reports a frame or message over the size limits.
	ErrFrameTooLarge = errors.New("websocket frame too large")
)

// Frame represents a WebSocket frame
type Frame struct {
	FIN     bool
	Opcode  byte
	Masked  bool
	Length  uint64
	MaskKey [4]byte
	Payload []byte
}

// IsControl reports whether op is a control opcode (close, ping, pong).
func IsControl(op byte) bool {
	return op&0x8 != 0
}

// ReadFrame reads one frame from r and unmasks its payload.
// Control frames using an extended length or the fragmented form are
// rejected with ErrProtocol.
func ReadFrame(r io.Reader) (*Frame, error) {
	frame := &Frame{}

	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	frame.FIN = header[0]&0x80 != 0
	frame.Opcode = header[0] & 0x0F
	frame.Masked = header[1]&0x80 != 0
	payloadLen := uint64(header[1] & 0x7F)

	if IsControl(frame.Opcode) {
		if payloadLen > maxControlPayload {
			return nil, fmt.Errorf("%w: %s frame with extended length", ErrProtocol, OpcodeName(frame.Opcode))
		}
		if !frame.FIN {
			return nil, fmt.Errorf("%w: fragmented %s frame", ErrProtocol, OpcodeName(frame.Opcode))
		}
	}

	switch payloadLen {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, fmt.Errorf("failed to read extended length: %w", err)
		}
		frame.Length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, fmt.Errorf("failed to read extended length: %w", err)
		}
		frame.Length = binary.BigEndian.Uint64(ext[:])
	default:
		frame.Length = payloadLen
	}
	if frame.Length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, frame.Length)
	}

	if frame.Masked {
		if _, err := io.ReadFull(r, frame.MaskKey[:]); err != nil {
			return nil, fmt.Errorf("failed to read mask key: %w", err)
		}
	}

	if frame.Length > 0 {
		frame.Payload = make([]byte, frame.Length)
		if _, err := io.ReadFull(r, frame.Payload); err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		if frame.Masked {
			Mask(frame.Payload, frame.MaskKey)
		}
	}

	return frame, nil
}

// Mask XORs payload in place with key cycled over four bytes. Masking and
// unmasking are the same operation.
func Mask(payload []byte, key [4]byte) {
	for i := range payload {
		payload[i] ^= key[i%4]
	}
}

// AppendFrame appends an unmasked server frame to dst. The payload must not
// exceed MaxChunk bytes.
func AppendFrame(dst []byte, fin bool, opcode byte, payload []byte) []byte {
	b0 := opcode & 0x0F
	if fin {
		b0 |= 0x80
	}
	dst = append(dst, b0)

	if n := len(payload); n < 126 {
		dst = append(dst, byte(n))
	} else {
		dst = append(dst, 126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	}
	return append(dst, payload...)
}

// WriteFrame writes one unmasked frame to w.
func WriteFrame(w io.Writer, fin bool, opcode byte, payload []byte) error {
	if len(payload) > MaxChunk {
		return fmt.Errorf("%w: %d byte payload", ErrFrameTooLarge, len(payload))
	}
	if IsControl(opcode) && len(payload) > maxControlPayload {
		return fmt.Errorf("%w: %d byte %s payload", ErrProtocol, len(payload), OpcodeName(opcode))
	}
	_, err := w.Write(AppendFrame(make([]byte, 0, len(payload)+4), fin, opcode, payload))
	return err
}

// OpcodeName returns a human-readable opcode name
func OpcodeName(op byte) string {
	switch op {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(0x%X)", op)
	}
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{FIN=%v, Opcode=%s, Masked=%v, Length=%d}",
		f.FIN, OpcodeName(f.Opcode), f.Masked, f.Length)
}
