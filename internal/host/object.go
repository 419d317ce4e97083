package host

import (
	"fmt"
	"strconv"

	"fcpd/internal/fudi"
)

const labelProperty = "Label"

// Object is one named object of a Document. All access goes through the
// owning document's lock; mutate it with the Document methods.
type Object struct {
	Name   string
	TypeID string

	doc         *Document
	seq         int
	label       string
	props       []*Property
	constraints []*Property
	touched     bool
	unsaved     bool
}

func (o *Object) Document() *Document {
	return o.doc
}

func (o *Object) String() string {
	return o.Name
}

func (o *Object) Label() string {
	o.doc.mu.RLock()
	defer o.doc.mu.RUnlock()
	return o.label
}

// Property returns the current value of the named property
func (o *Object) Property(name string) (fudi.Value, error) {
	o.doc.mu.RLock()
	defer o.doc.mu.RUnlock()
	if name == labelProperty {
		return fudi.String(o.label), nil
	}
	p := o.findLocked(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoProperty, o.Name, name)
	}
	return p.Value, nil
}

// PropertyInfo returns a copy of the named property
func (o *Object) PropertyInfo(name string) (Property, bool) {
	o.doc.mu.RLock()
	defer o.doc.mu.RUnlock()
	if name == labelProperty {
		return Property{Name: labelProperty, Type: TypeString, Group: "Base", Value: fudi.String(o.label)}, true
	}
	p := o.findLocked(name)
	if p == nil {
		return Property{}, false
	}
	return *p, true
}

func (o *Object) HasProperty(name string) bool {
	_, ok := o.PropertyInfo(name)
	return ok
}

// PropertyNames lists properties in creation order, Label first
func (o *Object) PropertyNames() []string {
	o.doc.mu.RLock()
	defer o.doc.mu.RUnlock()
	names := make([]string, 0, len(o.props)+1)
	names = append(names, labelProperty)
	for _, p := range o.props {
		names = append(names, p.Name)
	}
	return names
}

// Constraint returns a sketch datum by name or by index
func (o *Object) Constraint(name string) (fudi.Value, error) {
	o.doc.mu.RLock()
	defer o.doc.mu.RUnlock()
	c := o.constraintLocked(name)
	if c == nil {
		return nil, fmt.Errorf("%w: %s constraint %s", ErrNoConstraint, o.Name, name)
	}
	return c.Value, nil
}

// Parents returns the groups that contain o
func (o *Object) Parents() []*Object {
	o.doc.mu.RLock()
	defer o.doc.mu.RUnlock()
	var parents []*Object
	for _, candidate := range o.doc.objects {
		group := candidate.findLocked("Group")
		if group == nil {
			continue
		}
		items, _ := group.Value.(fudi.List)
		for _, item := range items {
			if ref, ok := item.(fudi.Object); ok && ref.Ref == o {
				parents = append(parents, candidate)
				break
			}
		}
	}
	return parents
}

func (o *Object) findLocked(name string) *Property {
	for _, p := range o.props {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (o *Object) constraintLocked(name string) *Property {
	for _, c := range o.constraints {
		if c.Name == name {
			return c
		}
	}
	if i, err := strconv.Atoi(name); err == nil && i >= 0 && i < len(o.constraints) {
		return o.constraints[i]
	}
	return nil
}

func (o *Object) removePropertyLocked(name string) bool {
	for i, p := range o.props {
		if p.Name == name {
			o.props = append(o.props[:i], o.props[i+1:]...)
			return true
		}
	}
	return false
}
