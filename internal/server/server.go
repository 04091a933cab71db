package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/config"
	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/status"
	"github.com/muurk/dictserver/internal/store"
	"github.com/muurk/dictserver/internal/webapi"
	"github.com/muurk/dictserver/internal/webconn"
)

const (
	// Time allowed for a client to send its request head.
	requestTimeout = 30 * time.Second

	// Shutdown gives up waiting for connections after this long.
	shutdownTimeout = 10 * time.Second
)

// StreamHandler serves an upgraded WebSocket connection.
type StreamHandler interface {
	ServeStream(ctx context.Context, rw io.ReadWriter, peer string) error
}

// Server accepts connections and serves static files, the dictionary web API
// and the device stream on one port.
type Server struct {
	cfg       *config.Config
	api       *webapi.Handler
	stream    StreamHandler
	access    *logging.AccessLog
	perm      webconn.Permissions
	docRoot   string
	tlsConfig *tls.Config

	listener    net.Listener
	sem         chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]net.Conn
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a server for cfg. stream may be nil, in which case upgrades are
// refused.
func New(cfg *config.Config, st *store.Store, stream StreamHandler, access *logging.AccessLog) (*Server, error) {
	s := &Server{
		cfg:         cfg,
		api:         webapi.New(st, cfg.Dictionary.WebAPI.Enabled),
		stream:      stream,
		access:      access,
		perm:        webconn.PermissionsFrom(cfg.Dictionary.WebAPI),
		activeConns: make(map[string]net.Conn),
	}

	if cfg.WWW.DocRoot != "" {
		root, err := filepath.Abs(cfg.WWW.DocRoot)
		if err == nil {
			root, err = filepath.EvalSymlinks(root)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve docroot %s: %w", cfg.WWW.DocRoot, err)
		}
		s.docRoot = root
	}

	if cfg.Server.TLS.Enabled {
		tlsConfig, err := NewTLSConfig(cfg.Server.TLS.Cert, cfg.Server.TLS.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConfig = tlsConfig
	}

	if n := cfg.Server.MaxConnections; n > 0 {
		s.sem = make(chan struct{}, n)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Listen opens the listening socket.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.cfg.Server.Host, fmt.Sprint(s.cfg.Server.Port))

	var (
		ln  net.Listener
		err error
	)
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	logging.Info("Server listening for connections",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", s.tlsConfig != nil),
		zap.String("docroot", s.docRoot),
		zap.Bool("webapi", s.cfg.Dictionary.WebAPI.Enabled),
	)
	if s.tlsConfig != nil {
		logging.Debug("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
	}
	return nil
}

// Addr returns the listening address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens and serves until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve()
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(sctx)
	case err := <-errChan:
		return err
	}
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	for {
		if s.sem != nil {
			select {
			case s.sem <- struct{}{}:
			case <-s.ctx.Done():
				return nil
			}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.release()
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logging.Error("Failed to accept connection", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) release() {
	if s.sem != nil {
		<-s.sem
	}
}

func (s *Server) track(id string, nc net.Conn) {
	s.mu.Lock()
	s.activeConns[id] = nc
	s.mu.Unlock()
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.activeConns, id)
	s.mu.Unlock()
}

// handleConnection serves one request, or one upgraded stream.
func (s *Server) handleConnection(nc net.Conn) {
	c := webconn.New(nc, webconn.Options{
		Permissions: s.perm,
		NoCache:     s.cfg.WWW.CacheCtrl == "nocache",
		AccessLog:   s.access,
	})

	s.track(c.ID, nc)
	defer func() {
		_ = c.Close()
		s.untrack(c.ID)
		logging.LogConnection(c.Peer, c.ID, "connection_closed")
	}()
	defer func() { c.Finish(time.Now()) }()

	logging.LogConnection(c.Peer, c.ID, "connection_accepted")

	if tlsConn, ok := nc.(*tls.Conn); ok {
		_ = tlsConn.SetDeadline(time.Now().Add(requestTimeout))
		if err := tlsConn.Handshake(); err != nil {
			logging.Warn("TLS handshake failed",
				zap.String("remote_addr", c.Peer),
				zap.Error(err),
			)
			return
		}
		state := tlsConn.ConnectionState()
		logging.Debug("TLS handshake complete",
			zap.String("remote_addr", c.Peer),
			zap.String("version", tls.VersionName(state.Version)),
			zap.String("cipher_suite", tls.CipherSuiteName(state.CipherSuite)),
		)
	}

	_ = nc.SetReadDeadline(time.Now().Add(requestTimeout))
	if _, err := c.ReadRequest(); err != nil {
		if status.IsEndOfStream(err) {
			logging.Debug("Connection closed before request", zap.String("remote_addr", c.Peer))
			return
		}
		logging.Warn("Failed to read request",
			zap.String("remote_addr", c.Peer),
			zap.Error(err),
		)
		_ = c.WriteErr(err)
		return
	}
	_ = nc.SetDeadline(time.Time{})

	if err := s.dispatch(s.ctx, c, nc); err != nil && !status.IsEndOfStream(err) {
		logging.Warn("Request failed",
			zap.String("remote_addr", c.Peer),
			zap.String("uri", c.Request().URI),
			zap.Error(err),
		)
	}
	logging.LogHTTPResponse(c.Peer, c.Status(), c.BodySize())
}

func (s *Server) dispatch(ctx context.Context, c *webconn.Conn, nc net.Conn) error {
	req := c.Request()
	switch {
	case req.IsUpgrade():
		return s.serveUpgrade(ctx, c, nc)
	case webapi.Match(req.Path):
		return s.api.Serve(ctx, c)
	default:
		return s.serveFile(c)
	}
}

// Shutdown stops accepting, closes active connections and waits for their
// handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}

	s.mu.Lock()
	for id, conn := range s.activeConns {
		logging.Debug("Closing active connection",
			zap.String("conn_id", id),
			zap.String("remote_addr", conn.RemoteAddr().String()),
		)
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
		return nil
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
		return ctx.Err()
	}
}

// ActiveConnections returns the number of connections being served.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
