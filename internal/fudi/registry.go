package fudi

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry is the append-only table behind ^N object reference tokens.
// Entries are never evicted: a long session that encodes many distinct
// host objects grows it for the lifetime of the server.
type Registry struct {
	mu      sync.Mutex
	objects []any
	index   map[any]int // comparable objects -> slot
}

// constructor for Registry
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[any]int),
	}
}

// Store returns the slot holding obj, appending it first if needed.
// The same reference always maps to the same slot.
func (r *Registry) Store(obj any) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, comparable := identity(obj)
	if comparable {
		if i, ok := r.index[key]; ok {
			return i
		}
	}
	r.objects = append(r.objects, obj)
	i := len(r.objects) - 1
	if comparable {
		r.index[key] = i
	}
	return i
}

// Get dereferences slot i
func (r *Registry) Get(i int) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.objects) {
		return nil, fmt.Errorf("%w: ^%d (registry holds %d objects)", ErrRefOutOfRange, i, len(r.objects))
	}
	return r.objects[i], nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

type refKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// identity turns obj into a map key. Slices, maps and funcs are keyed by
// their data pointer so identical references still dedup.
func identity(obj any) (any, bool) {
	if obj == nil {
		return nil, true
	}
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Slice:
		return refKey{typ: v.Type(), ptr: v.Pointer(), len: v.Len()}, true
	case reflect.Map, reflect.Func, reflect.Chan:
		return refKey{typ: v.Type(), ptr: v.Pointer()}, true
	}
	if !v.Type().Comparable() || !deepComparable(v) {
		return nil, false
	}
	return obj, true
}

// deepComparable catches structs and arrays whose interface fields hold
// uncomparable dynamic values, which would panic as map keys.
func deepComparable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return true
		}
		e := v.Elem()
		return e.Type().Comparable() && deepComparable(e)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !deepComparable(v.Field(i)) {
				return false
			}
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if !deepComparable(v.Index(i)) {
				return false
			}
		}
	}
	return true
}
