package fudi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// All makes PopValues consume every remaining word
const All = -1

// ObjectResolver looks up a host object by its document name
type ObjectResolver interface {
	ResolveObject(name string) (any, bool)
}

// Codec converts between wire words and Values. It owns nothing but the
// registry pointer and an optional resolver for bare object names.
type Codec struct {
	registry *Registry
	resolver ObjectResolver
}

// constructor for Codec. A nil registry gets a fresh one.
func NewCodec(registry *Registry, resolver ObjectResolver) *Codec {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Codec{registry: registry, resolver: resolver}
}

func (c *Codec) Registry() *Registry {
	return c.registry
}

// SetResolver replaces the bare-name lookup. Used when the document is
// created after the codec.
func (c *Codec) SetResolver(r ObjectResolver) {
	c.resolver = r
}

var sanitizer = strings.NewReplacer(
	",", " ", "=", " ",
	";", "", "(", "", ")", "", "[", "", "]", "", "{", "", "}", "", `"`, "", "'", "",
)

// Sanitize strips characters that would break FUDI framing
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

// Encode renders v as wire text. A single element list collapses to the
// element, an empty list is None, and values without a textual form are
// stored in the registry and sent as ^N.
func (c *Codec) Encode(v Value) string {
	switch val := v.(type) {
	case List:
		switch len(val) {
		case 0:
			return "None"
		case 1:
			return c.Encode(val[0])
		}
		parts := make([]string, 0, len(val)+2)
		parts = append(parts, "list", strconv.Itoa(len(val)))
		for _, item := range val {
			parts = append(parts, c.Encode(item))
		}
		return Sanitize(strings.Join(parts, " "))
	case Object:
		return "^" + strconv.Itoa(c.registry.Store(val.Ref))
	case Unknown:
		return "^" + strconv.Itoa(c.registry.Store(val.Ref))
	}
	return Sanitize(Text(v))
}

// EncodeAll encodes each value and joins them with single spaces
func (c *Codec) EncodeAll(values ...Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = c.Encode(v)
	}
	return strings.Join(parts, " ")
}

// Decode reads one value from the front of words and reports how many
// words it used. Empty input yields NotSet and 0.
//
// Precedence: number, keyword literal, quoted string, ^N reference,
// document object name, quantity, plain string.
func (c *Codec) Decode(words []string) (Value, int, error) {
	if len(words) == 0 {
		return NotSet{}, 0, nil
	}
	w := words[0]

	if v, ok := parseNumber(w); ok {
		return v, 1, nil
	}

	switch w {
	case "Vector", "Pos":
		f, err := parseFloats(words, 3)
		if err != nil {
			return nil, 0, err
		}
		return Vector{X: f[0], Y: f[1], Z: f[2]}, 4, nil
	case "Ox":
		return Vector{X: 1}, 1, nil
	case "Oy":
		return Vector{Y: 1}, 1, nil
	case "Oz":
		return Vector{Z: 1}, 1, nil
	case "Rotation", "Yaw-Pitch-Roll", "Rot":
		f, err := parseFloats(words, 3)
		if err != nil {
			return nil, 0, err
		}
		return Rotation{Yaw: f[0], Pitch: f[1], Roll: f[2]}, 4, nil
	case "Placement":
		return c.decodePlacement(words)
	case "list":
		return c.decodeList(words)
	case "True":
		return Bool(true), 1, nil
	case "False":
		return Bool(false), 1, nil
	case "None":
		return None{}, 1, nil
	}

	if strings.HasPrefix(w, `"`) {
		for i, word := range words {
			if strings.HasSuffix(word, `"`) && (i > 0 || len(word) > 1) {
				text := strings.ReplaceAll(strings.Join(words[:i+1], " "), `"`, "")
				return String(text), i + 1, nil
			}
		}
		return nil, 0, fmt.Errorf("%w: %s", ErrUnterminatedString, w)
	}

	if strings.HasPrefix(w, "^") {
		index, err := strconv.Atoi(w[1:])
		if err != nil {
			return nil, 0, fmt.Errorf("%w: bad reference %q", ErrMalformedValue, w)
		}
		obj, err := c.registry.Get(index)
		if err != nil {
			return nil, 0, err
		}
		return Object{Index: index, Ref: obj}, 1, nil
	}

	if c.resolver != nil {
		if obj, ok := c.resolver.ResolveObject(w); ok {
			return Object{Index: -1, Ref: obj}, 1, nil
		}
	}

	if q, ok := ParseQuantity(w); ok {
		return q, 1, nil
	}
	return String(w), 1, nil
}

// PopValues decodes count values (or All) from words and returns the
// words left over. ignoreNotSet drops NotSet results afterwards.
func (c *Codec) PopValues(words []string, count int, ignoreNotSet bool) ([]string, []Value, error) {
	var values []Value
	if count == All {
		for len(words) > 0 {
			v, used, err := c.Decode(words)
			if err != nil {
				return words, values, err
			}
			values = append(values, v)
			if used == 0 {
				break
			}
			words = words[used:]
		}
	} else {
		for i := 0; i < count; i++ {
			v, used, err := c.Decode(words)
			if err != nil {
				return words, values, err
			}
			values = append(values, v)
			words = words[used:]
		}
	}
	if ignoreNotSet {
		values = FilterNotSet(values)
	}
	return words, values, nil
}

// FilterNotSet drops NotSet entries
func FilterNotSet(values []Value) []Value {
	out := make([]Value, 0, len(values))
	for _, v := range values {
		if IsSet(v) {
			out = append(out, v)
		}
	}
	return out
}

func (c *Codec) decodePlacement(words []string) (Value, int, error) {
	if len(words) < 9 {
		return nil, 0, fmt.Errorf("%w: Placement needs 8 words, got %d", ErrMalformedValue, len(words)-1)
	}
	base, _, err := c.Decode(words[1:5])
	if err != nil {
		return nil, 0, err
	}
	rot, _, err := c.Decode(words[5:9])
	if err != nil {
		return nil, 0, err
	}
	vec, ok := base.(Vector)
	if !ok {
		return nil, 0, fmt.Errorf("%w: Placement position is %s", ErrMalformedValue, base.Kind())
	}
	r, ok := rot.(Rotation)
	if !ok {
		return nil, 0, fmt.Errorf("%w: Placement rotation is %s", ErrMalformedValue, rot.Kind())
	}
	return Placement{Base: vec, Rotation: r}, 9, nil
}

func (c *Codec) decodeList(words []string) (Value, int, error) {
	if len(words) < 2 {
		return nil, 0, fmt.Errorf("%w: list without a count", ErrMalformedValue)
	}
	count, err := strconv.Atoi(words[1])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list count %q", ErrMalformedValue, words[1])
	}
	// every item takes at least one word
	if count < 0 || count > len(words)-2 {
		return nil, 0, fmt.Errorf("%w: list of %d items has %d words", ErrMalformedValue, count, len(words)-2)
	}
	list := List{}
	used := 2
	for i := 0; i < count; i++ {
		v, n, err := c.Decode(words[used:])
		if err != nil {
			return nil, 0, err
		}
		list = append(list, v)
		used += n
	}
	return list, used, nil
}

// parseNumber parses a float, downgrading to Integer when no precision is lost
func parseNumber(w string) (Value, bool) {
	f, err := strconv.ParseFloat(w, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return nil, false
		}
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return Float(f), true
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return Integer(int64(f)), true
	}
	return Float(f), true
}

func parseFloats(words []string, n int) ([]float64, error) {
	if len(words) < n+1 {
		return nil, fmt.Errorf("%w: %s needs %d numbers", ErrMalformedValue, words[0], n)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(words[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s component %q", ErrMalformedValue, words[0], words[i+1])
		}
		out[i] = f
	}
	return out, nil
}
