package server

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
	"github.com/muurk/dictserver/internal/webconn"
)

// StreamPath is the only URI that accepts a WebSocket upgrade.
const StreamPath = "/phidgets"

// An upgraded connection is dropped after this long without a message.
const idleTimeout = 60 * time.Second

// idleConn pushes the read deadline forward before every read.
type idleConn struct {
	*webconn.Conn
	nc net.Conn
}

func (c idleConn) Read(p []byte) (int, error) {
	if err := c.nc.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (s *Server) serveUpgrade(ctx context.Context, c *webconn.Conn, nc net.Conn) error {
	req := c.Request()
	if req.Path != StreamPath || !s.cfg.WWW.PhidgetsEnabled || s.stream == nil {
		return c.WriteErr(status.NewUnsupported("upgrade not supported for %s", req.Path))
	}
	if req.Method != "GET" {
		return c.WriteErr(status.NewUnsupported("upgrade requires GET"))
	}
	if err := c.Upgrade(); err != nil {
		if !c.HeaderSent() {
			return c.WriteErr(err)
		}
		return err
	}

	logging.Info("Stream session started",
		zap.String("remote_addr", c.Peer),
		zap.String("conn_id", c.ID),
	)
	err := s.stream.ServeStream(ctx, idleConn{Conn: c, nc: nc}, c.Peer)
	logging.Info("Stream session ended",
		zap.String("remote_addr", c.Peer),
		zap.String("conn_id", c.ID),
	)
	return err
}
