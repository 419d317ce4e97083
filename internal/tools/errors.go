package tools

import "errors"

var (
	ErrMissingArgument   = errors.New("missing argument")
	ErrUnknownSubcommand = errors.New("unknown subcommand")
	ErrNotGeometry       = errors.New("value is not a rotation or placement")
	ErrTooManyDataFlows  = errors.New("too many properties, maximum is 20")
)
