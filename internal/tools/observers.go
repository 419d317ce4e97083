package tools

import (
	"log/slog"

	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/microservices/tcp"
)

// sender is the part of the server observers talk to
type sender interface {
	Send(values ...fudi.Value) error
}

func send(out sender, logger *slog.Logger, tag string, values ...fudi.Value) {
	if err := out.Send(append([]fudi.Value{fudi.String(tag)}, values...)...); err != nil {
		logger.Debug("observer_send_failed", "tag", tag, "error", err.Error())
	}
}

// selectionObserver sends the selected object names on every change
type selectionObserver struct {
	out    sender
	tag    string
	doc    *host.Document
	logger *slog.Logger
}

func (o *selectionObserver) send() {
	send(o.out, o.logger, o.tag, objectNames(o.doc.Selection()))
}

func (o *selectionObserver) AddSelection(string, string, string, fudi.Vector) { o.send() }
func (o *selectionObserver) RemoveSelection(string, string, string)           { o.send() }
func (o *selectionObserver) ClearSelection(string)                            { o.send() }

// preselectionObserver bangs when the pointer enters one object
type preselectionObserver struct {
	out    sender
	tag    string
	object string
	logger *slog.Logger
}

func (o *preselectionObserver) SetPreselection(_, obj, _ string) {
	if obj == o.object {
		send(o.out, o.logger, o.tag, bang)
	}
}

// moveObserver sends the placement of objects with a given label
// whenever it changes
type moveObserver struct {
	out    sender
	tag    string
	label  string
	logger *slog.Logger
}

func (o *moveObserver) ChangedObject(obj *host.Object, prop string) {
	if prop != "Placement" || obj.Label() != o.label {
		return
	}
	v, err := obj.Property("Placement")
	if err != nil {
		return
	}
	send(o.out, o.logger, o.tag, v)
}

// install attaches o to the document under tag, replacing what the tag
// had before
func (t *Tools) install(tag string, o any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if previous, ok := t.observers[tag]; ok {
		t.doc.RemoveObserver(previous)
	}
	if err := t.doc.AddObserver(o); err != nil {
		delete(t.observers, tag)
		return err
	}
	t.observers[tag] = o
	t.logger.Debug("observer_installed", "tag", tag)
	return nil
}

// selobserver -> OK, then the selection on every change
func (t *Tools) selObserver(srv *tcp.Server, words []string) (fudi.Value, error) {
	o := &selectionObserver{out: srv, tag: words[0], doc: t.doc, logger: t.logger}
	if err := t.install(words[0], o); err != nil {
		return nil, err
	}
	return fudi.String("OK"), nil
}

// objobserver Name -> OK, then bang when the pointer enters Name
func (t *Tools) objObserver(srv *tcp.Server, words []string) (fudi.Value, error) {
	name, err := word(words, 2, "object name")
	if err != nil {
		return nil, err
	}
	o := &preselectionObserver{out: srv, tag: words[0], object: name, logger: t.logger}
	if err := t.install(words[0], o); err != nil {
		return nil, err
	}
	return fudi.String("OK"), nil
}

// onMove Label -> OK, then the placement whenever it changes
func (t *Tools) onMove(srv *tcp.Server, words []string) (fudi.Value, error) {
	label, err := word(words, 2, "label")
	if err != nil {
		return nil, err
	}
	o := &moveObserver{out: srv, tag: words[0], label: label, logger: t.logger}
	if err := t.install(words[0], o); err != nil {
		return nil, err
	}
	return fudi.String("OK"), nil
}

// remobserver -> OK, or no reply when the tag has no observer
func (t *Tools) remObserver(_ *tcp.Server, words []string) (fudi.Value, error) {
	tag := words[0]
	t.mu.Lock()
	o, ok := t.observers[tag]
	delete(t.observers, tag)
	t.mu.Unlock()
	if !ok {
		return nil, nil
	}
	t.doc.RemoveObserver(o)
	t.logger.Debug("observer_removed", "tag", tag)
	return fudi.String("OK"), nil
}
