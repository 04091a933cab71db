// Package webconn holds the per-connection state of the HTTP server.
//
// A Conn is created for each accepted socket. It parses exactly one request
// (request line, headers, query and form parameters) and writes one
// response, after which the connection is closed. A WebSocket upgrade
// switches Read and Write onto the frame codec in package protocol so
// callers keep using the same io.ReadWriter.
//
// Responses always carry "Connection: close". Errors use the JSON envelope
//
//	{"request":"<uri>","result":<code>,"response":{"msg":"<message>"}}
//
// with the HTTP status derived from the result code.
package webconn
