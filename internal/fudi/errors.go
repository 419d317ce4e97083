package fudi

import "errors"

var (
	ErrRefOutOfRange      = errors.New("object reference out of range")
	ErrMalformedValue     = errors.New("malformed value")
	ErrUnterminatedString = errors.New("unterminated string literal")
)
