package fudi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\ b\ c`, Escape("a b c"))
	assert.Equal(t, `a\ b`, Escape(`a\ b`), "already escaped")
	assert.Equal(t, "a b c", Unescape(`a\ b\ c`))
	assert.Equal(t, "plain", Unescape("plain"))
}
