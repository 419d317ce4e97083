package host

import "fcpd/internal/fudi"

// Select adds obj (or one of its sub-elements) to the selection
func (d *Document) Select(obj *Object, sub string, point fudi.Vector) {
	d.mu.Lock()
	for _, s := range d.selection {
		if s.Object == obj && s.Sub == sub {
			d.mu.Unlock()
			return
		}
	}
	d.selection = append(d.selection, SelectionEntry{Object: obj, Sub: sub, Point: point})
	d.mu.Unlock()

	d.notifySelection(func(o SelectionObserver) {
		o.AddSelection(d.Name, obj.Name, sub, point)
	})
}

// Deselect removes obj from the selection. An empty sub removes every
// entry of obj.
func (d *Document) Deselect(obj *Object, sub string) {
	d.mu.Lock()
	kept := d.selection[:0]
	removed := false
	for _, s := range d.selection {
		if s.Object == obj && (sub == "" || s.Sub == sub) {
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	d.selection = kept
	d.mu.Unlock()

	if removed {
		d.notifySelection(func(o SelectionObserver) {
			o.RemoveSelection(d.Name, obj.Name, sub)
		})
	}
}

func (d *Document) ClearSelection() {
	d.mu.Lock()
	d.selection = nil
	d.mu.Unlock()

	d.notifySelection(func(o SelectionObserver) {
		o.ClearSelection(d.Name)
	})
}

// Selection returns the selected objects, each once, in selection order
func (d *Document) Selection() []*Object {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := make(map[*Object]bool)
	var objs []*Object
	for _, s := range d.selection {
		if !seen[s.Object] {
			seen[s.Object] = true
			objs = append(objs, s.Object)
		}
	}
	return objs
}

// SelectionEx returns every selection entry including sub-elements
func (d *Document) SelectionEx() []SelectionEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]SelectionEntry(nil), d.selection...)
}

// Preselect records the object under the pointer and tells observers
func (d *Document) Preselect(obj *Object, sub string) {
	d.mu.Lock()
	d.preselect = &SelectionEntry{Object: obj, Sub: sub}
	d.mu.Unlock()

	d.notifyPreselection(obj.Name, sub)
}

func (d *Document) ClearPreselection() {
	d.mu.Lock()
	d.preselect = nil
	d.mu.Unlock()
}

// Preselection returns the object under the pointer, if any
func (d *Document) Preselection() (SelectionEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.preselect == nil {
		return SelectionEntry{}, false
	}
	return *d.preselect, true
}
