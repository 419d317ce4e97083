package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"fcpd/internal/fudi"
)

const (
	DefaultListenAddress       = "localhost"
	DefaultListenPort          = 8888
	DefaultPollInterval        = 50 * time.Millisecond
	DefaultCallbackDialTimeout = time.Second
	DefaultMessageBurst        = 20
)

// Options configure a Server. Zero values fall back to the defaults above.
type Options struct {
	ListenAddress       string
	ListenPort          int // 0 picks a free port
	PollInterval        time.Duration
	CallbackDialTimeout time.Duration
	MessageRate         float64 // messages per second per peer, 0 disables limiting
	MessageBurst        int
	AuthSecret          string // when set, peers must send "auth <token>" first
	Logger              *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ListenAddress == "" {
		o.ListenAddress = DefaultListenAddress
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.CallbackDialTimeout <= 0 {
		o.CallbackDialTimeout = DefaultCallbackDialTimeout
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = DefaultMessageBurst
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type dialResult struct {
	seq  int
	port int
	addr string
	conn net.Conn
	err  error
}

// Server bridges one Pure-Data peer to the registered command handlers.
//
// All sockets are serviced by a single loop goroutine: frames are parsed,
// handlers run and replies are written there, in arrival order. Send,
// Terminate, Status and Do may be called from any goroutine.
type Server struct {
	opts       Options
	logger     *slog.Logger
	codec      *fudi.Codec
	dispatcher *Dispatcher
	callback   *CallbackManager
	auth       *AuthService

	mu            sync.Mutex
	state         State
	started       bool
	addr          string // bound address, reused when listening again
	listener      net.Listener
	peer          *PeerConnection
	authenticated bool
	limiter       *rate.Limiter
	dialSeq       int

	messagesIn atomic.Uint64
	repliesOut atomic.Uint64

	frames fudi.FrameReader // loop goroutine only

	accepted   chan net.Conn
	incoming   chan chunk
	peerClosed chan string
	dialed     chan dialResult
	tasks      chan func()
	wake       chan struct{}
	done       chan struct{}
	loopDone   chan struct{}

	terminateOnce sync.Once
}

// constructor for Server. A nil codec gets a fresh registry and no name
// resolver.
func NewServer(opts Options, codec *fudi.Codec) *Server {
	opts = opts.withDefaults()
	if codec == nil {
		codec = fudi.NewCodec(nil, nil)
	}
	s := &Server{
		opts:       opts,
		logger:     opts.Logger,
		codec:      codec,
		dispatcher: NewDispatcher(opts.Logger),
		callback:   NewCallbackManager(opts.PollInterval, opts.Logger),
		state:      StateIdle,
		accepted:   make(chan net.Conn),
		incoming:   make(chan chunk),
		peerClosed: make(chan string),
		dialed:     make(chan dialResult),
		tasks:      make(chan func()),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	if opts.AuthSecret != "" {
		s.auth = NewAuthService(opts.AuthSecret)
	}
	s.limiter = s.newLimiter()
	return s
}

func (s *Server) Codec() *fudi.Codec {
	return s.codec
}

func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// RegisterHandler binds h to keywords on the server's dispatcher
func (s *Server) RegisterHandler(keywords []string, h HandlerFunc) error {
	return s.dispatcher.RegisterHandler(keywords, h)
}

// Start binds the listen address and starts the loop. It returns a
// *BindError when the address is unavailable.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	addr := net.JoinHostPort(s.opts.ListenAddress, strconv.Itoa(s.opts.ListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("server_bind_failed",
			"addr", addr,
			"error", err.Error(),
		)
		return &BindError{Addr: addr, Err: err}
	}
	s.listener = ln
	s.addr = ln.Addr().String()
	s.state = StateListening
	s.started = true
	s.mu.Unlock()

	s.logger.Info("server_listening", "addr", s.addr)
	go s.acceptOne(ln)
	go s.loop(ctx)
	return nil
}

// Wait blocks until the loop has stopped. It returns at once if the
// server was never started.
func (s *Server) Wait() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.loopDone
	}
}

// Run starts the server and blocks until it is terminated or ctx ends
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.Wait()
	return nil
}

// Addr returns the bound listen address, empty before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) Status() Status {
	s.mu.Lock()
	st := Status{
		State:         s.state.String(),
		ListenAddress: s.addr,
		Authenticated: s.authenticated,
	}
	if s.peer != nil {
		st.PeerID = s.peer.ID
		st.PeerAddress = s.peer.RemoteAddr.String()
	}
	s.mu.Unlock()

	st.CallbackPort = s.callback.Port()
	st.BufferedBytes = s.callback.Buffered()
	st.RegistrySize = s.codec.Registry().Len()
	st.MessagesIn = s.messagesIn.Load()
	st.RepliesOut = s.repliesOut.Load()
	return st
}

// Send encodes values as one message and queues it for the callback.
// Without a callback the message stays buffered until initrcv succeeds.
func (s *Server) Send(values ...fudi.Value) error {
	if s.State() == StateTerminated {
		return ErrServerClosed
	}
	line := frame(s.codec.EncodeAll(values...))
	if !s.callback.Queue(line) {
		s.logger.Warn("send_buffered_no_callback",
			"message", line,
			"buffered_bytes", s.callback.Buffered(),
		)
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Terminate sends a best-effort close to the peer, closes every socket
// and stops the loop. Safe to call more than once and from any goroutine.
func (s *Server) Terminate() {
	s.terminateOnce.Do(func() {
		s.mu.Lock()
		s.state = StateTerminated
		ln, peer := s.listener, s.peer
		s.listener, s.peer = nil, nil
		s.mu.Unlock()

		s.callback.Close(frame("0", controlClose))
		if ln != nil {
			ln.Close()
		}
		if peer != nil {
			peer.Close()
		}
		close(s.done)
		s.logger.Info("server_terminated")
	})
}

// Do runs fn on the loop goroutine, where handlers run, and waits for it.
// Code outside handlers uses it to touch handler state safely. It must
// not be called from a handler.
func (s *Server) Do(ctx context.Context, fn func() error) error {
	select {
	case <-s.done:
		return ErrServerClosed
	default:
	}
	errc := make(chan error, 1)
	task := func() { errc <- fn() }
	select {
	case s.tasks <- task:
	case <-s.done:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrServerClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) loop(ctx context.Context) {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Terminate()
			return
		case <-s.done:
			return
		case conn := <-s.accepted:
			s.handleAccept(conn)
		case c := <-s.incoming:
			s.handleChunk(c)
		case id := <-s.peerClosed:
			s.handlePeerClosed(id)
		case r := <-s.dialed:
			s.handleDialed(r)
		case fn := <-s.tasks:
			fn()
		case <-s.wake:
			s.flush()
		case <-ticker.C:
			s.flush()
		}
	}
}

// acceptOne takes a single peer from ln
func (s *Server) acceptOne(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedConnError(err) {
				return
			}
			s.logger.Warn("accept_failed", "error", err.Error())
			select {
			case <-s.done:
				return
			case <-time.After(s.opts.PollInterval):
			}
			continue
		}
		select {
		case s.accepted <- conn:
		case <-s.done:
			conn.Close()
		}
		return
	}
}

func (s *Server) handleAccept(conn net.Conn) {
	peer := NewPeerConnection(conn, s.logger)

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		conn.Close()
		return
	}
	// single peer: stop listening until it goes away
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	s.peer = peer
	s.state = StateConnected
	s.authenticated = false
	s.limiter = s.newLimiter()
	s.mu.Unlock()

	s.frames.Reset()
	s.logger.Info("peer_connected",
		"peer_id", peer.ID,
		"remote_addr", peer.RemoteAddr.String(),
	)
	go peer.listen(s.incoming, s.peerClosed, s.done)
}

func (s *Server) handleChunk(c chunk) {
	s.mu.Lock()
	current := s.peer
	s.mu.Unlock()
	if current == nil || current.ID != c.peerID {
		return
	}
	for _, raw := range s.frames.Feed(c.data) {
		if s.State() == StateTerminated {
			return
		}
		out, ok := s.Process(raw)
		if !ok {
			continue
		}
		// replies go out one by one, not batched
		if !s.callback.Queue(out) {
			s.logger.Warn("send_buffered_no_callback",
				"message", out,
				"buffered_bytes", s.callback.Buffered(),
			)
		}
		s.flush()
	}
}

// Process runs one raw message and returns the tagged reply, if any.
// Control words are handled here; everything else goes to the dispatcher.
func (s *Server) Process(raw string) (string, bool) {
	msg := ParseMessage(raw)
	if len(msg.Words) == 0 {
		return "", false
	}
	s.messagesIn.Add(1)
	s.logger.Debug("fudi_recv", "message", strings.Join(msg.Words, " "))

	if ctl, ok := msg.control(); ok {
		s.handleControl(ctl)
		return "", false
	}
	if len(msg.Words) < 2 {
		return "", false
	}

	var v fudi.Value
	switch {
	case s.auth != nil && msg.Keyword == commandAuth:
		v = s.authenticate(msg)
	case s.auth != nil && !s.isAuthenticated():
		v = s.dispatcher.errorReply(msg.Words, ErrUnauthenticated)
	case !s.allow():
		s.logger.Warn("rate_limit_exceeded", "keyword", msg.Keyword)
		v = s.dispatcher.errorReply(msg.Words, ErrRateLimited)
	default:
		v = s.dispatcher.Dispatch(s, msg.Words)
	}
	if v == nil {
		return "", false
	}
	s.repliesOut.Add(1)
	return reply(msg.Tag, s.codec.Encode(v)), true
}

func (s *Server) handleControl(ctl []string) {
	switch ctl[0] {
	case controlClose:
		s.logger.Info("peer_requested_close")
		s.Terminate()
	case controlInitRcv:
		if len(ctl) < 2 {
			s.logger.Warn("invalid_callback_port", "port", "")
			return
		}
		port, ok := parsePort(ctl[1])
		if !ok {
			s.logger.Warn("invalid_callback_port", "port", ctl[1])
			return
		}
		s.openCallback(port)
	}
}

func (s *Server) authenticate(msg Message) fudi.Value {
	args := msg.Args()
	if len(args) == 0 {
		return s.dispatcher.errorReply(msg.Words, ErrUnauthenticated)
	}
	subject, err := s.auth.ValidateToken(args[0])
	if err != nil {
		s.logger.Warn("peer_auth_failed", "error", err.Error())
		return s.dispatcher.errorReply(msg.Words, fmt.Errorf("%w: invalid token", ErrUnauthenticated))
	}
	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
	s.logger.Info("peer_authenticated", "subject", subject)
	return fudi.Bool(true)
}

func (s *Server) isAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.opts.MessageRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(s.opts.MessageRate), s.opts.MessageBurst)
}

func (s *Server) allow() bool {
	s.mu.Lock()
	limiter := s.limiter
	s.mu.Unlock()
	return limiter == nil || limiter.Allow()
}

// openCallback dials the peer back on port without blocking the loop.
// The result arrives on s.dialed.
func (s *Server) openCallback(port int) {
	s.mu.Lock()
	host := s.opts.ListenAddress
	if s.peer != nil {
		host = s.peer.Host()
	}
	s.dialSeq++
	seq := s.dialSeq
	if s.state != StateTerminated {
		s.state = StateCallbackPending
	}
	s.mu.Unlock()

	s.callback.Detach()
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	s.logger.Info("callback_dialing", "addr", addr)

	timeout := s.opts.CallbackDialTimeout
	go func() {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		select {
		case s.dialed <- dialResult{seq: seq, port: port, addr: addr, conn: conn, err: err}:
		case <-s.done:
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (s *Server) handleDialed(r dialResult) {
	s.mu.Lock()
	stale := r.seq != s.dialSeq || s.state == StateTerminated
	if !stale {
		if r.err != nil {
			s.state = s.idleStateLocked()
		} else {
			s.state = StateCallbackEstablished
		}
	}
	s.mu.Unlock()

	if stale {
		if r.conn != nil {
			r.conn.Close()
		}
		return
	}
	if r.err != nil {
		s.logger.Warn("callback_dial_failed",
			"addr", r.addr,
			"buffered_bytes", s.callback.Buffered(),
			"error", r.err.Error(),
		)
		return
	}
	s.callback.Attach(r.conn, r.port)
	s.logger.Info("callback_established", "addr", r.addr)
	s.flush()
}

// idleStateLocked is the state to fall back to when no callback is usable
func (s *Server) idleStateLocked() State {
	if s.peer != nil {
		return StateConnected
	}
	return StateListening
}

func (s *Server) flush() {
	if err := s.callback.Flush(); err != nil {
		s.mu.Lock()
		if s.state == StateCallbackEstablished {
			s.state = s.idleStateLocked()
		}
		s.mu.Unlock()
	}
}

// handlePeerClosed drops the callback and listens for a new peer. The
// session survives; buffered output waits for the next initrcv.
func (s *Server) handlePeerClosed(id string) {
	s.mu.Lock()
	if s.peer == nil || s.peer.ID != id || s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	peer := s.peer
	s.peer = nil
	s.authenticated = false
	s.dialSeq++ // a dial still in flight belongs to the old peer
	s.mu.Unlock()

	peer.Close()
	s.callback.Detach()
	s.frames.Reset()
	s.logger.Info("peer_closed",
		"peer_id", peer.ID,
		"remote_addr", peer.RemoteAddr.String(),
	)
	s.relisten()
}

func (s *Server) relisten() {
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("relisten_failed",
			"addr", addr,
			"error", err.Error(),
		)
		s.Terminate()
		return
	}

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		ln.Close()
		return
	}
	s.listener = ln
	s.state = StateListening
	s.mu.Unlock()

	s.logger.Info("server_listening", "addr", addr)
	go s.acceptOne(ln)
}
