// Package protocol implements the WebSocket framing used once an HTTP
// connection has been upgraded.
//
// # Frame Format
//
// Frames follow RFC 6455:
//   - FIN bit and 4-bit opcode in the first byte
//   - Mask bit and a 7-bit length in the second byte; 126 and 127 select a
//     16-bit or 64-bit extended length
//   - A 4-byte mask key when the mask bit is set (always, for client frames)
//   - The payload, XORed with the mask key cycled over four bytes
//
// Control frames (close, ping, pong) carry at most 125 bytes and are never
// fragmented. ReadFrame rejects anything else with ErrProtocol.
//
// # Conn
//
// Conn turns an upgraded connection back into a byte stream, so code above
// it reads and writes as it would on a plain socket:
//
//	ws := protocol.NewConn(br, conn, remoteAddr)
//	n, err := ws.Read(buf)    // payload of reassembled messages
//	_, err = ws.Write(reply)  // one binary message, split at MaxChunk
//
// Fragmented messages are joined until a frame with FIN set arrives. A ping
// is answered with a pong carrying the same payload. A close frame is echoed
// and Read returns io.EOF.
//
// Server frames are never masked. Writes larger than MaxChunk bytes are sent
// as a binary frame followed by continuation frames, with FIN only on the
// last one.
package protocol
