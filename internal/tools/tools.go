package tools

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/microservices/tcp"
)

const DefaultRecomputeTimeout = 10 * time.Second

const (
	rejectText    = "ERROR unknown or unallowed command (see the FCPDWorkbench preference page to allow raw python commands)."
	rejectRawText = "ERROR unknown command, raw commands need a scripting host which this server does not embed."
)

// bang is the reply of commands that only act
var bang = fudi.String("bang")

type Options struct {
	// AllowRaw only changes the rejection text of unknown commands
	AllowRaw         bool
	RecomputeTimeout time.Duration
	Logger           *slog.Logger
}

// Tools holds the command handlers driving one document. Handlers run on
// the server loop, observers are called back from there too.
type Tools struct {
	doc    *host.Document
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	observers map[string]any // by patch tag, for remobserver
	ctrl      *controller
}

// constructor for Tools
func New(doc *host.Document, opts Options) *Tools {
	if opts.RecomputeTimeout <= 0 {
		opts.RecomputeTimeout = DefaultRecomputeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tools{
		doc:       doc,
		opts:      opts,
		logger:    opts.Logger,
		observers: make(map[string]any),
	}
}

func (t *Tools) Document() *host.Document {
	return t.doc
}

// Register installs every handler and the default handler on srv
func (t *Tools) Register(srv *tcp.Server) error {
	toolList := []struct {
		keyword string
		handler tcp.HandlerFunc
	}{
		// document tools
		{"get", t.get},
		{"set", t.set},
		{"copy", t.copy},
		{"delete", t.delete},
		{"recompute", t.recompute},
		{"link", t.link},
		{"bylabel", t.byLabel},
		{"Object", t.object},
		// observers
		{"selobserver", t.selObserver},
		{"objobserver", t.objObserver},
		{"onMove", t.onMove},
		{"remobserver", t.remObserver},
		// geometry
		{"matrixPlacement", matrixPlacement},
		{"ypr2rpy", yprToRPY},
		{"rotationadd", rotationAdd},
		{"rotationminus", rotationMinus},
		{"placementadd", placementAdd},
		{"placementminus", placementMinus},
		// controller
		{"newctrlr", t.newCtrlr},
		{"ctrlr", t.ctrlr},
		// raw
		{"str", str},
	}
	for _, tool := range toolList {
		if err := srv.RegisterHandler([]string{tool.keyword}, tool.handler); err != nil {
			return fmt.Errorf("failed to register %s: %w", tool.keyword, err)
		}
	}
	srv.Dispatcher().SetDefaultHandler(t.reject)

	t.logger.Info("tools_registered",
		"document", t.doc.Name,
		"handlers", len(toolList),
		"allow_raw", t.opts.AllowRaw,
	)
	return nil
}

func (t *Tools) reject(words []string) fudi.Value {
	t.logger.Debug("command_rejected", "keyword", words[1])
	if t.opts.AllowRaw {
		return fudi.String(rejectRawText)
	}
	return fudi.String(rejectText)
}

// Observers returns the tags with an installed observer, sorted
func (t *Tools) Observers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tags := make([]string, 0, len(t.observers))
	for tag := range t.observers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Close detaches every observer from the document
func (t *Tools) Close() {
	t.mu.Lock()
	observers := t.observers
	t.observers = make(map[string]any)
	ctrl := t.ctrl
	t.ctrl = nil
	t.mu.Unlock()

	for _, o := range observers {
		t.doc.RemoveObserver(o)
	}
	if ctrl != nil {
		t.doc.RemoveObserver(ctrl)
	}
}

// word returns words[i] or an error naming what was expected there
func word(words []string, i int, what string) (string, error) {
	if i >= len(words) {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, what)
	}
	return words[i], nil
}

// objectArg decodes words[i] as a document object, by name or ^N reference
func objectArg(srv *tcp.Server, words []string, i int) (*host.Object, error) {
	w, err := word(words, i, "object")
	if err != nil {
		return nil, err
	}
	v, _, err := srv.Codec().Decode([]string{w})
	if err != nil {
		return nil, err
	}
	if ref, ok := v.(fudi.Object); ok {
		if obj, ok := ref.Ref.(*host.Object); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", host.ErrNoObject, w)
}

// valueArg decodes the value starting at words[i]
func valueArg(srv *tcp.Server, words []string, i int, what string) (fudi.Value, error) {
	if i >= len(words) {
		return nil, fmt.Errorf("%w: %s", ErrMissingArgument, what)
	}
	v, _, err := srv.Codec().Decode(words[i:])
	return v, err
}

func objectNames(objs []*host.Object) fudi.List {
	names := make(fudi.List, len(objs))
	for i, o := range objs {
		names[i] = fudi.String(o.Name)
	}
	return names
}

// truthy is the patch notion of a set flag: True or a non-zero number
func truthy(v fudi.Value) bool {
	if b, ok := v.(fudi.Bool); ok {
		return bool(b)
	}
	n, ok := fudi.Number(v)
	return ok && n != 0
}
