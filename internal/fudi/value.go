package fudi

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value
type Kind int

const (
	KindNotSet Kind = iota
	KindNone
	KindFloat
	KindInteger
	KindVector
	KindRotation
	KindPlacement
	KindList
	KindBool
	KindString
	KindQuantity
	KindObject
	KindUnknown
)

var kindNames = map[Kind]string{
	KindNotSet:    "empty",
	KindNone:      "none",
	KindFloat:     "float",
	KindInteger:   "integer",
	KindVector:    "vector",
	KindRotation:  "rotation",
	KindPlacement: "placement",
	KindList:      "list",
	KindBool:      "boolean",
	KindString:    "string",
	KindQuantity:  "quantity",
	KindObject:    "object",
	KindUnknown:   "unknown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is the closed set of values exchanged with a Pure-Data peer.
// Only the types declared in this file implement it.
type Value interface {
	Kind() Kind
	sealed()
}

// NotSet is the result of decoding nothing. It is distinct from None.
type NotSet struct{}

// None is the literal None word.
type None struct{}

type Float float64

type Integer int64

type Bool bool

type String string

// Vector is a 3D position or direction
type Vector struct {
	X, Y, Z float64
}

// Rotation is stored as yaw (Z), pitch (Y), roll (X) in degrees
type Rotation struct {
	Yaw, Pitch, Roll float64
}

// Placement combines a position and an orientation
type Placement struct {
	Base     Vector
	Rotation Rotation
}

type List []Value

// Quantity is a number carrying a unit, e.g. 3mm or 90deg
type Quantity struct {
	Value float64
	Unit  string
}

// Object is a reference to a host-side object. Index is the registry slot the
// reference was decoded from, or -1 when it was resolved by name.
type Object struct {
	Index int
	Ref   any
}

// Unknown wraps any host value that has no textual form. Encoding it stores
// Ref in the registry.
type Unknown struct {
	Ref any
}

func (NotSet) Kind() Kind    { return KindNotSet }
func (None) Kind() Kind      { return KindNone }
func (Float) Kind() Kind     { return KindFloat }
func (Integer) Kind() Kind   { return KindInteger }
func (Bool) Kind() Kind      { return KindBool }
func (String) Kind() Kind    { return KindString }
func (Vector) Kind() Kind    { return KindVector }
func (Rotation) Kind() Kind  { return KindRotation }
func (Placement) Kind() Kind { return KindPlacement }
func (List) Kind() Kind      { return KindList }
func (Quantity) Kind() Kind  { return KindQuantity }
func (Object) Kind() Kind    { return KindObject }
func (Unknown) Kind() Kind   { return KindUnknown }

func (NotSet) sealed()    {}
func (None) sealed()      {}
func (Float) sealed()     {}
func (Integer) sealed()   {}
func (Bool) sealed()      {}
func (String) sealed()    {}
func (Vector) sealed()    {}
func (Rotation) sealed()  {}
func (Placement) sealed() {}
func (List) sealed()      {}
func (Quantity) sealed()  {}
func (Object) sealed()    {}
func (Unknown) sealed()   {}

// IsSet reports whether v carries a value. Only NotSet (and a nil Value) is unset.
func IsSet(v Value) bool {
	if v == nil {
		return false
	}
	return v.Kind() != KindNotSet
}

// Ref wraps an arbitrary host value so it travels as an object reference
func Ref(obj any) Value {
	return Unknown{Ref: obj}
}

// Number returns the numeric content of Float, Integer, Bool and Quantity values
func Number(v Value) (float64, bool) {
	switch val := v.(type) {
	case Float:
		return float64(val), true
	case Integer:
		return float64(val), true
	case Bool:
		if val {
			return 1, true
		}
		return 0, true
	case Quantity:
		return val.Value, true
	}
	return 0, false
}

// Text returns the plain textual form of v as it would appear before
// sanitization. Object references have no textual form and yield "".
func Text(v Value) string {
	switch val := v.(type) {
	case nil, None:
		return "None"
	case NotSet:
		return ""
	case Float:
		return formatFloat(float64(val))
	case Integer:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		if val {
			return "True"
		}
		return "False"
	case String:
		return string(val)
	case Vector:
		return "Vector " + joinFloats(val.X, val.Y, val.Z)
	case Rotation:
		return "Rotation " + joinFloats(val.Yaw, val.Pitch, val.Roll)
	case Placement:
		return "Placement Pos " + joinFloats(val.Base.X, val.Base.Y, val.Base.Z) +
			" Yaw-Pitch-Roll " + joinFloats(val.Rotation.Yaw, val.Rotation.Pitch, val.Rotation.Roll)
	case Quantity:
		return formatFloat(val.Value) + val.Unit
	case List:
		parts := make([]string, 0, len(val)+2)
		parts = append(parts, "list", strconv.Itoa(len(val)))
		for _, item := range val {
			parts = append(parts, Text(item))
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func joinFloats(values ...float64) string {
	parts := make([]string, len(values))
	for i, f := range values {
		parts[i] = formatFloat(f)
	}
	return strings.Join(parts, " ")
}

var shortKinds = map[string]Kind{
	"0": KindNotSet,
	"f": KindFloat,
	"i": KindInteger,
	"v": KindVector,
	"r": KindRotation,
	"p": KindPlacement,
	"l": KindList,
	"b": KindBool,
	"s": KindString,
	"o": KindObject,
	"q": KindQuantity,
	"a": KindQuantity,
}

// KindFromShort maps the one-letter type codes used by controller patches
// (0 f i v r p l b s o q a) to a Kind.
func KindFromShort(code string) (Kind, error) {
	if k, ok := shortKinds[code]; ok {
		return k, nil
	}
	return KindNotSet, fmt.Errorf("%w: unknown type code %q", ErrMalformedValue, code)
}
