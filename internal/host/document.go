package host

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"fcpd/internal/fudi"
)

// Document is the in-memory CAD document the bridge drives: named objects
// with typed properties, a selection and observers. Handlers run on the
// server loop; other goroutines go through Server.Do, and the lock keeps
// read-only reporting safe regardless.
type Document struct {
	Name string

	mu        sync.RWMutex
	objects   []*Object
	byName    map[string]*Object
	nextSeq   int
	selection []SelectionEntry
	preselect *SelectionEntry
	observers []any
	deleted   map[string]bool

	store  Store
	logger *slog.Logger
}

// SelectionEntry is one selected object, optionally a sub-element of it
type SelectionEntry struct {
	Object *Object
	Sub    string
	Point  fudi.Vector
}

// constructor for Document. A nil store keeps nothing.
func NewDocument(name string, store Store, logger *slog.Logger) *Document {
	if store == nil {
		store = NopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{
		Name:    name,
		byName:  make(map[string]*Object),
		deleted: make(map[string]bool),
		store:   store,
		logger:  logger,
	}
}

// ResolveObject lets the codec turn bare object names into references
func (d *Document) ResolveObject(name string) (any, bool) {
	obj, ok := d.GetObject(name)
	if !ok {
		return nil, false
	}
	return obj, true
}

func (d *Document) GetObject(name string) (*Object, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	obj, ok := d.byName[name]
	return obj, ok
}

// Objects returns every object in creation order
func (d *Document) Objects() []*Object {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Object(nil), d.objects...)
}

func (d *Document) ObjectsByLabel(label string) []*Object {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var found []*Object
	for _, o := range d.objects {
		if o.label == label {
			found = append(found, o)
		}
	}
	return found
}

// AddObject creates an object of typeID. name is a stem: when taken, a
// numeric suffix makes it unique (Box, Box001, Box002...). An empty name
// uses the type name.
func (d *Document) AddObject(typeID, name string) (*Object, error) {
	d.mu.Lock()
	obj, err := d.addObjectLocked(typeID, d.uniqueNameLocked(stem(typeID, name)))
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	d.logger.Debug("object_created",
		"document", d.Name,
		"object", obj.Name,
		"type", typeID,
	)
	return obj, nil
}

func (d *Document) addObjectLocked(typeID, name string) (*Object, error) {
	typ, ok := objectTypes[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeID)
	}
	obj := &Object{
		Name:    name,
		TypeID:  typeID,
		doc:     d,
		seq:     d.nextSeq,
		label:   name,
		touched: true,
	}
	d.nextSeq++
	if typ.placement {
		obj.props = append(obj.props, &Property{Name: "Placement", Type: TypePlacement, Group: "Base", Value: fudi.Placement{}})
	}
	for _, ps := range typ.props {
		value := ps.value
		if value == nil {
			value = ZeroValue(ps.typ)
		}
		obj.props = append(obj.props, &Property{Name: ps.name, Type: ps.typ, Group: ps.group, Value: value})
	}
	d.objects = append(d.objects, obj)
	d.byName[name] = obj
	delete(d.deleted, name)
	return obj, nil
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

func stem(typeID, name string) string {
	if name == "" {
		name = defaultName(typeID)
	}
	name = invalidNameChars.ReplaceAllString(name, "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "_" + name
	}
	return name
}

func (d *Document) uniqueNameLocked(name string) string {
	if _, taken := d.byName[name]; !taken {
		return name
	}
	base := strings.TrimRight(name, "0123456789")
	if base == "" {
		base = name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s%03d", base, i)
		if _, taken := d.byName[candidate]; !taken {
			return candidate
		}
	}
}

// RemoveObject deletes the named object. Links and groups pointing at it
// are cleared and it leaves the selection.
func (d *Document) RemoveObject(name string) error {
	d.mu.Lock()
	obj, ok := d.byName[name]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoObject, name)
	}
	delete(d.byName, name)
	for i, o := range d.objects {
		if o == obj {
			d.objects = append(d.objects[:i], d.objects[i+1:]...)
			break
		}
	}
	for _, o := range d.objects {
		for _, p := range o.props {
			if v, changed := dropReference(p.Value, obj); changed {
				p.Value = v
				o.touched = true
			}
		}
	}
	kept := d.selection[:0]
	for _, s := range d.selection {
		if s.Object != obj {
			kept = append(kept, s)
		}
	}
	d.selection = kept
	if d.preselect != nil && d.preselect.Object == obj {
		d.preselect = nil
	}
	d.deleted[name] = true
	d.mu.Unlock()

	d.logger.Debug("object_removed", "document", d.Name, "object", name)
	return nil
}

func dropReference(v fudi.Value, target *Object) (fudi.Value, bool) {
	switch val := v.(type) {
	case fudi.Object:
		if val.Ref == target {
			return fudi.None{}, true
		}
	case fudi.List:
		out := make(fudi.List, 0, len(val))
		changed := false
		for _, item := range val {
			if ref, ok := item.(fudi.Object); ok && ref.Ref == target {
				changed = true
				continue
			}
			out = append(out, item)
		}
		if changed {
			return out, true
		}
	}
	return v, false
}

// CopyObject duplicates obj under a new name. With withDeps the objects it
// links to are copied too and the copy links to those copies.
func (d *Document) CopyObject(obj *Object, withDeps bool) (*Object, error) {
	d.mu.Lock()
	copies := make(map[*Object]*Object)
	dup, err := d.copyLocked(obj, withDeps, copies)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	d.logger.Debug("object_copied", "document", d.Name, "source", obj.Name, "copy", dup.Name)
	return dup, nil
}

func (d *Document) copyLocked(obj *Object, withDeps bool, copies map[*Object]*Object) (*Object, error) {
	if obj.doc != d {
		return nil, fmt.Errorf("%w: %s belongs to another document", ErrNoObject, obj.Name)
	}
	if dup, ok := copies[obj]; ok {
		return dup, nil
	}
	dup, err := d.addObjectLocked(obj.TypeID, d.uniqueNameLocked(obj.Name))
	if err != nil {
		return nil, err
	}
	copies[obj] = dup
	dup.props = dup.props[:0]
	for _, p := range obj.props {
		cp := *p
		if withDeps {
			cp.Value, err = d.remapLocked(p.Value, copies)
			if err != nil {
				return nil, err
			}
		}
		dup.props = append(dup.props, &cp)
	}
	for _, c := range obj.constraints {
		cc := *c
		dup.constraints = append(dup.constraints, &cc)
	}
	return dup, nil
}

func (d *Document) remapLocked(v fudi.Value, copies map[*Object]*Object) (fudi.Value, error) {
	switch val := v.(type) {
	case fudi.Object:
		if target, ok := val.Ref.(*Object); ok {
			dup, err := d.copyLocked(target, true, copies)
			if err != nil {
				return nil, err
			}
			return fudi.Object{Index: -1, Ref: dup}, nil
		}
	case fudi.List:
		out := make(fudi.List, len(val))
		for i, item := range val {
			mapped, err := d.remapLocked(item, copies)
			if err != nil {
				return nil, err
			}
			out[i] = mapped
		}
		return out, nil
	}
	return v, nil
}

// AddLink creates an App::Link to target carrying target's label
func (d *Document) AddLink(target *Object) (*Object, error) {
	link, err := d.AddObject("App::Link", "Link")
	if err != nil {
		return nil, err
	}
	if err := d.SetProperty(link, "LinkedObject", fudi.Object{Index: -1, Ref: target}); err != nil {
		return nil, err
	}
	if err := d.SetProperty(link, labelProperty, fudi.String(target.Label())); err != nil {
		return nil, err
	}
	return link, nil
}

// AddToGroup appends obj to the Group property of group
func (d *Document) AddToGroup(group, obj *Object) error {
	v, err := group.Property("Group")
	if err != nil {
		return err
	}
	items, _ := v.(fudi.List)
	for _, item := range items {
		if ref, ok := item.(fudi.Object); ok && ref.Ref == obj {
			return nil
		}
	}
	next := append(append(fudi.List(nil), items...), fudi.Object{Index: -1, Ref: obj})
	return d.SetProperty(group, "Group", next)
}

// SetProperty assigns v to obj.name after coercing it to the property type.
// Change observers are told afterwards.
func (d *Document) SetProperty(obj *Object, name string, v fudi.Value) error {
	if err := d.setProperty(obj, name, v, false); err != nil {
		return err
	}
	d.notifyChanged(obj, name)
	return nil
}

// SetPropertyForced is SetProperty that also writes read-only properties.
// Used by the code that owns them.
func (d *Document) SetPropertyForced(obj *Object, name string, v fudi.Value) error {
	if err := d.setProperty(obj, name, v, true); err != nil {
		return err
	}
	d.notifyChanged(obj, name)
	return nil
}

func (d *Document) setProperty(obj *Object, name string, v fudi.Value, force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name == labelProperty {
		s, err := Coerce(TypeString, v)
		if err != nil {
			return err
		}
		obj.label = string(s.(fudi.String))
		obj.touched = true
		return nil
	}
	p := obj.findLocked(name)
	if p == nil {
		return fmt.Errorf("%w: %s.%s", ErrNoProperty, obj.Name, name)
	}
	if p.ReadOnly && !force {
		return fmt.Errorf("%w: %s.%s", ErrReadOnly, obj.Name, name)
	}
	coerced, err := Coerce(p.Type, v)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", obj.Name, name, err)
	}
	p.Value = coerced
	obj.touched = true
	return nil
}

// AddProperty adds a dynamic property to obj. The name must be free.
func (d *Document) AddProperty(obj *Object, t PropertyType, name, group string, readOnly bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name == labelProperty {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateName, obj.Name, name)
	}
	if obj.findLocked(name) != nil {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateName, obj.Name, name)
	}
	obj.props = append(obj.props, &Property{
		Name:     name,
		Type:     t,
		Group:    group,
		Value:    ZeroValue(t),
		ReadOnly: readOnly,
	})
	obj.touched = true
	return nil
}

func (d *Document) RemoveProperty(obj *Object, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !obj.removePropertyLocked(name) {
		return fmt.Errorf("%w: %s.%s", ErrNoProperty, obj.Name, name)
	}
	obj.touched = true
	return nil
}

// AddConstraint adds a named datum constraint to a sketch
func (d *Document) AddConstraint(sketch *Object, name string, v fudi.Value) error {
	if sketch.TypeID != "Sketcher::SketchObject" {
		return fmt.Errorf("%w: %s is not a sketch", ErrNoConstraint, sketch.Name)
	}
	coerced, err := Coerce(TypeQuantity, v)
	if err != nil {
		return err
	}
	if q := coerced.(fudi.Quantity); q.Unit == "" {
		coerced = fudi.Quantity{Value: q.Value, Unit: "mm"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if sketch.constraintLocked(name) != nil {
		return fmt.Errorf("%w: constraint %s.%s", ErrDuplicateName, sketch.Name, name)
	}
	sketch.constraints = append(sketch.constraints, &Property{Name: name, Type: TypeQuantity, Group: "Constraints", Value: coerced})
	sketch.touched = true
	return nil
}

// SetConstraint changes a sketch datum, keeping its unit kind
func (d *Document) SetConstraint(sketch *Object, name string, v fudi.Value) error {
	d.mu.Lock()
	c := sketch.constraintLocked(name)
	if c == nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s constraint %s", ErrNoConstraint, sketch.Name, name)
	}
	t := TypeLength
	if q, ok := c.Value.(fudi.Quantity); ok && q.IsAngle() {
		t = TypeAngle
	}
	coerced, err := Coerce(t, v)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	c.Value = coerced
	sketch.touched = true
	d.mu.Unlock()

	d.notifyChanged(sketch, "Constraints")
	return nil
}

// Recompute brings touched objects up to date, tells recompute observers
// and persists the changes. It returns how many objects were recomputed.
func (d *Document) Recompute(ctx context.Context) (int, error) {
	d.mu.Lock()
	var touched, saving []*Object
	var records []ObjectRecord
	for _, o := range d.objects {
		if o.touched {
			touched = append(touched, o)
		}
		if o.touched || o.unsaved {
			o.touched = false
			o.unsaved = false
			saving = append(saving, o)
			records = append(records, o.recordLocked())
		}
	}
	var deleted []string
	for name := range d.deleted {
		deleted = append(deleted, name)
	}
	d.deleted = make(map[string]bool)
	d.mu.Unlock()

	for _, o := range touched {
		d.notifyRecomputed(o)
	}

	var err error
	if len(deleted) > 0 {
		if derr := d.store.DeleteObjects(ctx, d.Name, deleted); derr != nil {
			err = fmt.Errorf("failed to delete objects: %w", derr)
			d.requeueDeleted(deleted)
		}
	}
	if len(records) > 0 {
		if serr := d.store.SaveObjects(ctx, d.Name, records); serr != nil {
			if err == nil {
				err = fmt.Errorf("failed to save objects: %w", serr)
			}
			d.requeueUnsaved(saving)
		}
	}
	if err != nil {
		d.logger.Error("document_persist_failed", "document", d.Name, "error", err.Error())
	}
	d.logger.Debug("document_recomputed",
		"document", d.Name,
		"objects", len(touched),
		"deleted", len(deleted),
	)
	return len(touched), err
}

// requeueDeleted keeps failed deletes for the next recompute, unless the
// name was taken again meanwhile
func (d *Document) requeueDeleted(names []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range names {
		if _, ok := d.byName[name]; !ok {
			d.deleted[name] = true
		}
	}
}

func (d *Document) requeueUnsaved(objs []*Object) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range objs {
		if d.byName[o.Name] == o {
			o.unsaved = true
		}
	}
}
