package protocol

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/muurk/dictserver/internal/logging"
)

// ReadBufferSize is the size of the buffered reader under a Conn.
const ReadBufferSize = 16384

// MaxMessageSize bounds a reassembled message.
const MaxMessageSize = MaxFrameSize

// Conn carries a byte stream over WebSocket frames. Reads return the payload
// of reassembled data messages; writes are sent as binary messages. Control
// frames are answered inside Read.
type Conn struct {
	r    *bufio.Reader
	w    io.Writer
	peer string

	pending []byte

	wmu    sync.Mutex
	closed bool
}

// NewConn wraps an upgraded connection. The reader may already hold bytes
// buffered during the handshake.
func NewConn(r io.Reader, w io.Writer, peer string) *Conn {
	br, ok := r.(*bufio.Reader)
	if !ok || br.Size() < ReadBufferSize {
		br = bufio.NewReaderSize(r, ReadBufferSize)
	}
	return &Conn{r: br, w: w, peer: peer}
}

// Read copies message bytes into p. Bytes of a message that do not fit are
// returned by later calls. A close frame from the peer is echoed and Read
// returns io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(c.pending) == 0 {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.pending = msg
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// ReadMessage returns the next complete data message and its opcode.
// Fragments are joined until a frame with fin set arrives.
func (c *Conn) ReadMessage() (byte, []byte, error) {
	var (
		opcode byte
		msg    []byte
		inMsg  bool
	)
	for {
		f, err := ReadFrame(c.r)
		if err != nil {
			return 0, nil, err
		}
		logging.LogWebSocketFrame(c.peer, "received", f.Opcode, f.FIN, f.Payload)

		switch f.Opcode {
		case OpcodePing:
			if err := c.writeControl(OpcodePong, f.Payload); err != nil {
				return 0, nil, err
			}
			continue
		case OpcodePong:
			continue
		case OpcodeClose:
			_ = c.writeControl(OpcodeClose, f.Payload)
			return 0, nil, io.EOF
		}

		if !inMsg {
			if f.Opcode == OpcodeContinuation {
				return 0, nil, c.reject(f, fmt.Errorf("%w: continuation without a message", ErrProtocol))
			}
			opcode = f.Opcode
			inMsg = true
		} else if f.Opcode != OpcodeContinuation && f.Opcode != opcode {
			return 0, nil, c.reject(f, fmt.Errorf("%w: %s frame inside %s message",
				ErrProtocol, OpcodeName(f.Opcode), OpcodeName(opcode)))
		}

		if len(msg)+len(f.Payload) > MaxMessageSize {
			return 0, nil, fmt.Errorf("%w: message over %d bytes", ErrFrameTooLarge, MaxMessageSize)
		}
		msg = append(msg, f.Payload...)
		if f.FIN {
			return opcode, msg, nil
		}
	}
}

// reject dumps the frame that broke the message sequence and returns err.
func (c *Conn) reject(f *Frame, err error) error {
	logging.LogRawBytes("Rejected frame from "+c.peer, f.Payload)
	return err
}

// Write sends p as one binary message, split into frames of at most
// MaxChunk bytes. Only the last frame has fin set.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closed {
		return 0, io.ErrClosedPipe
	}

	buf := make([]byte, 0, min(len(p), MaxChunk)+4)
	opcode := byte(OpcodeBinary)
	written := 0
	for {
		n := min(len(p)-written, MaxChunk)
		chunk := p[written : written+n]
		fin := written+n == len(p)

		buf = AppendFrame(buf[:0], fin, opcode, chunk)
		if _, err := c.w.Write(buf); err != nil {
			return written, err
		}
		logging.LogWebSocketFrame(c.peer, "sent", opcode, fin, chunk)

		written += n
		opcode = OpcodeContinuation
		if fin {
			return written, nil
		}
	}
}

func (c *Conn) writeControl(opcode byte, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closed {
		return io.ErrClosedPipe
	}
	if opcode == OpcodeClose {
		c.closed = true
	}
	logging.LogWebSocketFrame(c.peer, "sent", opcode, true, payload)
	return WriteFrame(c.w, true, opcode, payload)
}

// Close sends a close frame unless one was already sent. It does not close
// the underlying connection.
func (c *Conn) Close() error {
	err := c.writeControl(OpcodeClose, nil)
	if err == io.ErrClosedPipe {
		return nil
	}
	return err
}
