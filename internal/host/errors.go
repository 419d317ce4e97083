package host

import "errors"

var (
	ErrNoObject      = errors.New("no such object")
	ErrNoProperty    = errors.New("no such property")
	ErrNoConstraint  = errors.New("no such constraint")
	ErrUnknownType   = errors.New("unknown object type")
	ErrTypeMismatch  = errors.New("type mismatch")
	ErrReadOnly      = errors.New("property is read-only")
	ErrDuplicateName = errors.New("property already exists")
	ErrNotObserver   = errors.New("value implements no observer interface")
)
