// Package server accepts connections and routes each one to a handler.
//
// Every connection carries exactly one HTTP exchange (responses always send
// "Connection: close"). The request is parsed by package webconn and then
// dispatched:
//
//   - an Upgrade request on /phidgets switches the connection to WebSocket
//     framing and hands it to the StreamHandler until the peer closes
//   - paths under /api/v1/dictionary go to the dictionary web API
//   - anything else is served from the document root
//
// # Static files
//
// The request path is appended to the canonical docroot and the result is
// resolved with filepath.EvalSymlinks. Only a resolved path inside the
// canonical docroot is served, so ".." segments and symlinks pointing out of
// the tree both yield the 404 page. A directory without a trailing slash is
// redirected with a 301; a directory with one serves its index.html.
//
// # Limits
//
// At most server.max_connections connections are served at once; further
// connections wait in the listen backlog. The request head must arrive within
// 30 seconds and an upgraded stream is dropped after 60 seconds of silence.
//
// # Graceful Shutdown
//
// Shutdown closes the listener, closes every active connection and waits for
// the handlers to return or for the context to expire.
package server
