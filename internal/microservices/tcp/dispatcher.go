package tcp

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"fcpd/internal/fudi"
)

// HandlerFunc serves one keyword. words is the full message, tag first.
// A nil Value means no reply is sent.
type HandlerFunc func(srv *Server, words []string) (fudi.Value, error)

// DefaultHandler answers messages whose keyword has no handler
type DefaultHandler func(words []string) fudi.Value

// ErrorHandler turns a handler failure into the value sent back
type ErrorHandler func(words []string, err error) fudi.Value

// Dispatcher maps command keywords to handlers. Registration is normally
// done once at startup but is safe at any time.
type Dispatcher struct {
	mu             sync.RWMutex
	handlers       map[string]HandlerFunc
	defaultHandler DefaultHandler
	errorHandler   ErrorHandler
	logger         *slog.Logger
}

// constructor for Dispatcher
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers:       make(map[string]HandlerFunc),
		defaultHandler: func([]string) fudi.Value { return nil },
		errorHandler:   ErrorReply,
		logger:         logger,
	}
}

// ErrorReply is the stock error handler: "ERROR <description>"
func ErrorReply(_ []string, err error) fudi.Value {
	return fudi.String("ERROR " + err.Error())
}

// RegisterHandler binds h to every keyword. A later registration for the
// same keyword replaces the earlier one.
func (d *Dispatcher) RegisterHandler(keywords []string, h HandlerFunc) error {
	if h == nil {
		return ErrInvalidHandler
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keywords {
		d.handlers[k] = h
	}
	return nil
}

// Handle is RegisterHandler for a single keyword
func (d *Dispatcher) Handle(keyword string, h HandlerFunc) error {
	return d.RegisterHandler([]string{keyword}, h)
}

func (d *Dispatcher) SetDefaultHandler(h DefaultHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		h = func([]string) fudi.Value { return nil }
	}
	d.defaultHandler = h
}

func (d *Dispatcher) SetErrorHandler(h ErrorHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		h = ErrorReply
	}
	d.errorHandler = h
}

// Keywords lists the registered keywords in sorted order
func (d *Dispatcher) Keywords() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Dispatcher) lookup(keyword string) (HandlerFunc, DefaultHandler, ErrorHandler) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[keyword], d.defaultHandler, d.errorHandler
}

// Dispatch runs the handler for words[1]. Errors and panics inside the
// handler are converted by the error handler, so a faulty command never
// reaches the connection.
func (d *Dispatcher) Dispatch(srv *Server, words []string) (result fudi.Value) {
	if len(words) < 2 {
		return nil
	}
	h, fallback, onError := d.lookup(words[1])

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler_panic",
				"keyword", words[1],
				"panic", fmt.Sprint(r),
			)
			result = onError(words, fmt.Errorf("%v", r))
		}
	}()

	if h == nil {
		return fallback(words)
	}
	v, err := h(srv, words)
	if err != nil {
		d.logger.Warn("handler_failed",
			"keyword", words[1],
			"error", err.Error(),
		)
		return onError(words, err)
	}
	return v
}

// errorReply formats err with the configured error handler
func (d *Dispatcher) errorReply(words []string, err error) fudi.Value {
	d.mu.RLock()
	onError := d.errorHandler
	d.mu.RUnlock()
	return onError(words, err)
}
