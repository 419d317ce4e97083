package host

import "fcpd/internal/fudi"

// SelectionObserver is told about every selection change
type SelectionObserver interface {
	AddSelection(doc, obj, sub string, point fudi.Vector)
	RemoveSelection(doc, obj, sub string)
	ClearSelection(doc string)
}

// PreselectionObserver is told when the pointer enters an object
type PreselectionObserver interface {
	SetPreselection(doc, obj, sub string)
}

// ChangeObserver is told after a property of any object changed
type ChangeObserver interface {
	ChangedObject(obj *Object, prop string)
}

// RecomputeObserver is told about each object a recompute went through
type RecomputeObserver interface {
	RecomputedObject(obj *Object)
}

// AddObserver registers o for every observer interface it implements
func (d *Document) AddObserver(o any) error {
	switch o.(type) {
	case SelectionObserver, PreselectionObserver, ChangeObserver, RecomputeObserver:
	default:
		return ErrNotObserver
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.observers {
		if existing == o {
			return nil
		}
	}
	d.observers = append(d.observers, o)
	return nil
}

// RemoveObserver unregisters o and reports whether it was registered
func (d *Document) RemoveObserver(o any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.observers {
		if existing == o {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot so observers run without the document lock held
func (d *Document) observersSnapshot() []any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]any(nil), d.observers...)
}

func (d *Document) notifyChanged(obj *Object, prop string) {
	for _, o := range d.observersSnapshot() {
		if co, ok := o.(ChangeObserver); ok {
			co.ChangedObject(obj, prop)
		}
	}
}

func (d *Document) notifyRecomputed(obj *Object) {
	for _, o := range d.observersSnapshot() {
		if ro, ok := o.(RecomputeObserver); ok {
			ro.RecomputedObject(obj)
		}
	}
}

func (d *Document) notifySelection(fn func(SelectionObserver)) {
	for _, o := range d.observersSnapshot() {
		if so, ok := o.(SelectionObserver); ok {
			fn(so)
		}
	}
}

func (d *Document) notifyPreselection(obj, sub string) {
	for _, o := range d.observersSnapshot() {
		if po, ok := o.(PreselectionObserver); ok {
			po.SetPreselection(d.Name, obj, sub)
		}
	}
}
