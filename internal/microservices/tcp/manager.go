package tcp

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// CallbackManager owns the outbound (callback) connection and the write
// buffer in front of it. Output queued while no callback is connected is
// kept, in order, until a later flush can deliver it.
type CallbackManager struct {
	mu           sync.Mutex
	conn         net.Conn
	port         int
	buf          bytes.Buffer
	closed       bool
	writeTimeout time.Duration // upper bound on one flush, one poll tick
	logger       *slog.Logger
}

// constructor for CallbackManager
func NewCallbackManager(writeTimeout time.Duration, logger *slog.Logger) *CallbackManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackManager{
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Queue appends one framed line and reports whether a callback is
// currently attached to receive it
func (m *CallbackManager) Queue(line string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.buf.WriteString(line)
	m.buf.WriteByte('\n')
	return m.conn != nil
}

// Attach installs conn as the callback, replacing any previous one
func (m *CallbackManager) Attach(conn net.Conn, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		conn.Close()
		return
	}
	if m.conn != nil {
		m.conn.Close()
	}
	m.conn = conn
	m.port = port
}

// Detach closes the callback but keeps buffered output
func (m *CallbackManager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
}

func (m *CallbackManager) detachLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.port = 0
}

// Flush writes as much buffered output as one write deadline allows.
// A timeout leaves the rest queued; any other write error drops the
// callback, keeps the data and is returned.
func (m *CallbackManager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.buf.Len() == 0 {
		return nil
	}
	if m.writeTimeout > 0 {
		m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
	}
	n, err := m.conn.Write(m.buf.Bytes())
	m.buf.Next(n)
	if err == nil {
		m.logger.Debug("fudi_send", "bytes", n)
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		m.logger.Debug("callback_write_timeout",
			"written", n,
			"pending", m.buf.Len(),
		)
		return nil
	}
	m.logger.Warn("callback_write_failed",
		"port", m.port,
		"pending", m.buf.Len(),
		"error", err.Error(),
	)
	m.detachLocked()
	return err
}

// Close sends final best-effort, then closes the callback for good.
// Safe to call when nothing is connected.
func (m *CallbackManager) Close(final string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.conn != nil && final != "" {
		if m.writeTimeout > 0 {
			m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
		}
		if _, err := m.conn.Write([]byte(final + "\n")); err != nil {
			m.logger.Debug("callback_close_message_failed", "error", err.Error())
		}
	}
	m.detachLocked()
}

func (m *CallbackManager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *CallbackManager) Port() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

// Buffered returns the number of bytes waiting to be written
func (m *CallbackManager) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Len()
}

// Pending returns a copy of the buffered output
func (m *CallbackManager) Pending() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}
