package tools

import (
	"context"
	"errors"
	"fmt"

	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/microservices/tcp"
)

// get selection | property Obj Prop | constraint Sketch Name | reference Name
func (t *Tools) get(srv *tcp.Server, words []string) (fudi.Value, error) {
	what, err := word(words, 2, "get what")
	if err != nil {
		return nil, err
	}
	switch what {
	case "selection":
		return objectNames(t.doc.Selection()), nil
	case "property":
		obj, err := objectArg(srv, words, 3)
		if err != nil {
			return nil, err
		}
		name, err := word(words, 4, "property name")
		if err != nil {
			return nil, err
		}
		return obj.Property(name)
	case "constraint":
		sketch, err := objectArg(srv, words, 3)
		if err != nil {
			return nil, err
		}
		name, err := word(words, 4, "constraint name")
		if err != nil {
			return nil, err
		}
		return sketch.Constraint(name)
	case "reference":
		name, err := word(words, 3, "object name")
		if err != nil {
			return nil, err
		}
		obj, ok := t.doc.GetObject(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", host.ErrNoObject, name)
		}
		return fudi.Object{Index: -1, Ref: obj}, nil
	}
	return nil, fmt.Errorf("%w: get %s", ErrUnknownSubcommand, what)
}

// set property Obj Prop Value | constraint Sketch Name Value
func (t *Tools) set(srv *tcp.Server, words []string) (fudi.Value, error) {
	what, err := word(words, 2, "set what")
	if err != nil {
		return nil, err
	}
	if what != "property" && what != "constraint" {
		return nil, fmt.Errorf("%w: set %s", ErrUnknownSubcommand, what)
	}
	obj, err := objectArg(srv, words, 3)
	if err != nil {
		return nil, err
	}
	name, err := word(words, 4, what+" name")
	if err != nil {
		return nil, err
	}
	v, err := valueArg(srv, words, 5, "value")
	if err != nil {
		return nil, err
	}

	if what == "property" {
		err = t.doc.SetProperty(obj, name, v)
	} else {
		err = t.doc.SetConstraint(obj, name, v)
	}
	if err != nil {
		return nil, err
	}
	return bang, nil
}

// copy Obj [WithDeps] -> new name. The copy joins the groups of Obj.
func (t *Tools) copy(srv *tcp.Server, words []string) (fudi.Value, error) {
	obj, err := objectArg(srv, words, 2)
	if err != nil {
		return nil, err
	}
	withDeps := false
	if len(words) > 3 {
		v, _, err := srv.Codec().Decode(words[3:])
		if err != nil {
			return nil, err
		}
		withDeps = truthy(v)
	}

	parents := obj.Parents()
	dup, err := t.doc.CopyObject(obj, withDeps)
	if err != nil {
		return nil, err
	}
	for _, group := range parents {
		if err := t.doc.AddToGroup(group, dup); err != nil {
			return nil, err
		}
	}
	return fudi.String(dup.Name), nil
}

// delete Name... removes every named object it can find
func (t *Tools) delete(_ *tcp.Server, words []string) (fudi.Value, error) {
	var errs []error
	for _, name := range words[2:] {
		if err := t.doc.RemoveObject(name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return bang, nil
}

func (t *Tools) recompute(_ *tcp.Server, _ []string) (fudi.Value, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.RecomputeTimeout)
	defer cancel()

	if _, err := t.doc.Recompute(ctx); err != nil {
		return nil, err
	}
	return bang, nil
}

// link Obj -> name of a new link carrying the label of Obj
func (t *Tools) link(srv *tcp.Server, words []string) (fudi.Value, error) {
	obj, err := objectArg(srv, words, 2)
	if err != nil {
		return nil, err
	}
	lnk, err := t.doc.AddLink(obj)
	if err != nil {
		return nil, err
	}
	return fudi.String(lnk.Name), nil
}

func (t *Tools) byLabel(_ *tcp.Server, words []string) (fudi.Value, error) {
	label, err := word(words, 2, "label")
	if err != nil {
		return nil, err
	}
	return objectNames(t.doc.ObjectsByLabel(label)), nil
}

// Object Module Type [Prop Value]... -> new name
//
// Properties the type does not have and values that decode to nothing
// are skipped.
func (t *Tools) object(srv *tcp.Server, words []string) (fudi.Value, error) {
	module, err := word(words, 2, "module")
	if err != nil {
		return nil, err
	}
	typ, err := word(words, 3, "type")
	if err != nil {
		return nil, err
	}
	obj, err := t.doc.AddObject(module+"::"+typ, typ)
	if err != nil {
		return nil, err
	}

	current := 4
	for current < len(words) {
		prop := words[current]
		v, used, err := srv.Codec().Decode(words[current+1:])
		if err != nil {
			return nil, err
		}
		current += used + 1
		if !obj.HasProperty(prop) || !fudi.IsSet(v) {
			t.logger.Debug("object_property_skipped", "object", obj.Name, "property", prop)
			continue
		}
		if err := t.doc.SetProperty(obj, prop, v); err != nil {
			return nil, err
		}
	}
	return fudi.String(obj.Name), nil
}
