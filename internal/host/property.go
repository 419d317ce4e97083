package host

import (
	"fmt"
	"math"

	"fcpd/internal/fudi"
)

// PropertyType names follow the CAD host property classes
type PropertyType string

const (
	TypeAny       PropertyType = "App::PropertyPythonObject"
	TypeFloat     PropertyType = "App::PropertyFloat"
	TypeInteger   PropertyType = "App::PropertyInteger"
	TypeBool      PropertyType = "App::PropertyBool"
	TypeString    PropertyType = "App::PropertyString"
	TypeVector    PropertyType = "App::PropertyVector"
	TypePlacement PropertyType = "App::PropertyPlacement"
	TypeQuantity  PropertyType = "App::PropertyQuantity"
	TypeLength    PropertyType = "App::PropertyLength"
	TypeAngle     PropertyType = "App::PropertyAngle"
	TypeLink      PropertyType = "App::PropertyLink"
	TypeLinkList  PropertyType = "App::PropertyLinkList"
	TypeList      PropertyType = "App::PropertyList"
)

var typeCodes = map[string]PropertyType{
	"0": TypeAny, "empty": TypeAny,
	"f": TypeFloat, "float": TypeFloat,
	"i": TypeInteger, "integer": TypeInteger,
	"v": TypeVector, "vector": TypeVector,
	// there is no rotation property: rotations live in a placement
	"r": TypePlacement, "rotation": TypePlacement,
	"p": TypePlacement, "placement": TypePlacement,
	"l": TypeList, "list": TypeList,
	"b": TypeBool, "boolean": TypeBool,
	"s": TypeString, "string": TypeString,
	"o": TypeLink, "object": TypeLink,
	"q": TypeQuantity, "quantity": TypeQuantity,
	"a": TypeAngle, "angle": TypeAngle,
}

// TypeFromCode maps a short (f, i, v...) or long (float, integer...) type
// code, as written in controller patches, to a property type
func TypeFromCode(code string) (PropertyType, error) {
	if t, ok := typeCodes[code]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown type code %q", ErrTypeMismatch, code)
}

// Property is one named, typed slot on an object
type Property struct {
	Name     string
	Type     PropertyType
	Group    string
	Value    fudi.Value
	ReadOnly bool
}

// ZeroValue is the value a new property of type t starts with
func ZeroValue(t PropertyType) fudi.Value {
	switch t {
	case TypeFloat:
		return fudi.Float(0)
	case TypeInteger:
		return fudi.Integer(0)
	case TypeBool:
		return fudi.Bool(false)
	case TypeString:
		return fudi.String("")
	case TypeVector:
		return fudi.Vector{}
	case TypePlacement:
		return fudi.Placement{}
	case TypeQuantity:
		return fudi.Quantity{}
	case TypeLength:
		return fudi.Quantity{Unit: "mm"}
	case TypeAngle:
		return fudi.Quantity{Unit: "deg"}
	case TypeList, TypeLinkList:
		return fudi.List{}
	}
	return fudi.None{}
}

// Coerce converts v to what a property of type t stores, the way the host
// accepts assignments: numbers widen, bare numbers get the default unit,
// a rotation fills a placement.
func Coerce(t PropertyType, v fudi.Value) (fudi.Value, error) {
	if v == nil {
		v = fudi.None{}
	}
	mismatch := fmt.Errorf("%w: %s cannot hold %s", ErrTypeMismatch, t, v.Kind())

	switch t {
	case TypeAny:
		return v, nil
	case TypeFloat:
		if q, ok := v.(fudi.Quantity); ok {
			return fudi.Float(q.Value), nil
		}
		if n, ok := fudi.Number(v); ok {
			return fudi.Float(n), nil
		}
	case TypeInteger:
		if n, ok := fudi.Number(v); ok && n == math.Trunc(n) {
			return fudi.Integer(int64(n)), nil
		}
	case TypeBool:
		switch val := v.(type) {
		case fudi.Bool:
			return val, nil
		case fudi.Integer:
			return fudi.Bool(val != 0), nil
		}
	case TypeString:
		if s, ok := v.(fudi.String); ok {
			return s, nil
		}
		if v.Kind() != fudi.KindObject && v.Kind() != fudi.KindUnknown {
			return fudi.String(fudi.Text(v)), nil
		}
	case TypeVector:
		if vec, ok := v.(fudi.Vector); ok {
			return vec, nil
		}
	case TypePlacement:
		switch val := v.(type) {
		case fudi.Placement:
			return val, nil
		case fudi.Rotation:
			return fudi.Placement{Rotation: val}, nil
		}
	case TypeQuantity, TypeLength, TypeAngle:
		return coerceQuantity(t, v, mismatch)
	case TypeLink:
		switch val := v.(type) {
		case fudi.None:
			return val, nil
		case fudi.Object:
			if obj, ok := val.Ref.(*Object); ok {
				return fudi.Object{Index: -1, Ref: obj}, nil
			}
		}
	case TypeLinkList:
		items, ok := v.(fudi.List)
		if !ok {
			items = fudi.List{v}
		}
		out := make(fudi.List, 0, len(items))
		for _, item := range items {
			link, err := Coerce(TypeLink, item)
			if err != nil {
				return nil, err
			}
			out = append(out, link)
		}
		return out, nil
	case TypeList:
		if l, ok := v.(fudi.List); ok {
			return l, nil
		}
		return fudi.List{v}, nil
	}
	return nil, mismatch
}

func coerceQuantity(t PropertyType, v fudi.Value, mismatch error) (fudi.Value, error) {
	unit := ZeroValue(t).(fudi.Quantity).Unit
	if q, ok := v.(fudi.Quantity); ok {
		switch {
		case t == TypeAngle && !q.IsAngle():
			return nil, mismatch
		case t == TypeLength && q.IsAngle():
			return nil, mismatch
		}
		return q, nil
	}
	if _, isBool := v.(fudi.Bool); isBool {
		return nil, mismatch
	}
	if n, ok := fudi.Number(v); ok {
		return fudi.Quantity{Value: n, Unit: unit}, nil
	}
	return nil, mismatch
}
