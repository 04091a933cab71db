package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AccessLog writes common log format lines, one per HTTP exchange.
type AccessLog struct {
	logger *zap.Logger
	closer io.Closer
}

// NewAccessLog returns an access log appending to path. An empty path
// yields a log that discards everything.
func NewAccessLog(path string) (*AccessLog, error) {
	if path == "" {
		return &AccessLog{logger: zap.NewNop()}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open access log: %w", err)
	}
	al := NewAccessLogWriter(f)
	al.closer = f
	return al, nil
}

// NewAccessLogWriter returns an access log writing to w.
func NewAccessLogWriter(w io.Writer) *AccessLog {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
	})
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zapcore.InfoLevel)
	return &AccessLog{logger: zap.New(core)}
}

// Record logs one exchange.
func (a *AccessLog) Record(peer, method, uri string, major, minor, status int, size int64, at time.Time) {
	if a == nil {
		return
	}
	a.logger.Info(FormatAccessLine(peer, method, uri, major, minor, status, size, at))
}

// Close flushes and closes the underlying file, if any.
func (a *AccessLog) Close() error {
	if a == nil {
		return nil
	}
	_ = a.logger.Sync()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// FormatAccessLine renders a common log format line without trailing newline.
func FormatAccessLine(peer, method, uri string, major, minor, status int, size int64, at time.Time) string {
	return fmt.Sprintf("%s - - [%s] \"%s %s HTTP/%d.%d\" %d %d",
		peer, at.Format("02/Jan/2006:15:04:05 -0700"), method, uri, major, minor, status, size)
}
