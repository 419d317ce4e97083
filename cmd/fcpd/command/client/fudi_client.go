package client

// fudi_client.go = acts as a Pure-Data peer: sends FUDI messages to the
// bridge and collects the replies it writes back on the callback port.

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrNoReply = errors.New("no reply before timeout")

// FUDIClient is a minimal Pd patch: one command socket and one listener
// for the server's callback connection
type FUDIClient struct {
	serverAddr   string
	callbackPort int
	dialTimeout  time.Duration

	conn     net.Conn
	listener net.Listener
	replies  chan string
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	wg       sync.WaitGroup
	stats    ConnectionStats
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	ConnectedAt      time.Time
	MessagesSent     int
	MessagesReceived int
}

// NewFUDIClient creates a client. callbackPort 0 listens on a free port.
func NewFUDIClient(serverAddr string, callbackPort int, dialTimeout time.Duration) *FUDIClient {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &FUDIClient{
		serverAddr:   serverAddr,
		callbackPort: callbackPort,
		dialTimeout:  dialTimeout,
		replies:      make(chan string, 64),
		done:         make(chan struct{}),
	}
}

// Connect opens the callback listener, dials the server and asks it to
// connect back with initrcv
func (c *FUDIClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(c.callbackPort)))
	if err != nil {
		return fmt.Errorf("callback listen failed: %w", err)
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.serverAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("connection failed: %w", err)
	}

	c.listener = ln
	c.conn = conn
	c.callbackPort = ln.Addr().(*net.TCPAddr).Port
	c.stats.ConnectedAt = time.Now()

	c.wg.Add(1)
	go c.acceptCallbacks()

	return c.writeLocked("initrcv", strconv.Itoa(c.callbackPort))
}

// CallbackPort is the port the server connects back to
func (c *FUDIClient) CallbackPort() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbackPort
}

// Send writes one message made of words
func (c *FUDIClient) Send(words ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	return c.writeLocked(words...)
}

func (c *FUDIClient) writeLocked(words ...string) error {
	line := strings.Join(words, " ") + ";\n"
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	c.stats.MessagesSent++
	return nil
}

// Receive returns the next reply without its trailing semicolon
func (c *FUDIClient) Receive(timeout time.Duration) (string, error) {
	select {
	case line, ok := <-c.replies:
		if !ok {
			return "", net.ErrClosed
		}
		c.mu.Lock()
		c.stats.MessagesReceived++
		c.mu.Unlock()
		return line, nil
	case <-time.After(timeout):
		return "", ErrNoReply
	}
}

func (c *FUDIClient) Stats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close drops both sockets. It does not send "close", which would stop
// the server.
func (c *FUDIClient) Close() error {
	c.once.Do(func() { close(c.done) })
	c.mu.Lock()
	var errs []error
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
		c.conn = nil
	}
	if c.listener != nil {
		errs = append(errs, c.listener.Close())
		c.listener = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
	return errors.Join(errs...)
}

// acceptCallbacks serves callback connections until the listener closes.
// A reconnecting server replaces the previous callback.
func (c *FUDIClient) acceptCallbacks() {
	defer c.wg.Done()
	defer close(c.replies)

	var readers sync.WaitGroup
	defer readers.Wait()
	var conns []net.Conn
	defer func() {
		for _, conn := range conns {
			conn.Close()
		}
	}()

	for {
		c.mu.Lock()
		ln := c.listener
		c.mu.Unlock()
		if ln == nil {
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns = append(conns, conn)
		readers.Add(1)
		go func() {
			defer readers.Done()
			c.readReplies(conn)
		}()
	}
}

func (c *FUDIClient) readReplies(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case c.replies <- strings.TrimSuffix(line, ";"):
		case <-c.done:
			return
		}
	}
}
