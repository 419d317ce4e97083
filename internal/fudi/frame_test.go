package fudi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameReader_SplitAtEveryOffset(t *testing.T) {
	stream := "0 echo hello;\n12 set Box Length 3mm;\n"
	var whole FrameReader
	want := whole.Feed([]byte(stream))
	assert.Equal(t, []string{"0 echo hello;", "12 set Box Length 3mm;"}, want)

	for i := 0; i <= len(stream); i++ {
		var fr FrameReader
		got := append(fr.Feed([]byte(stream[:i])), fr.Feed([]byte(stream[i:]))...)
		assert.Equal(t, want, got, "split at %d", i)
		assert.Empty(t, fr.Pending())
	}
}

func TestFrameReader_HoldsIncompleteTail(t *testing.T) {
	var fr FrameReader

	assert.Empty(t, fr.Feed([]byte("0 echo hel")))
	assert.Equal(t, "0 echo hel", fr.Pending())

	assert.Equal(t, []string{"0 echo hello;"}, fr.Feed([]byte("lo;")))
	assert.Empty(t, fr.Pending())
}

func TestFrameReader_SeveralMessagesOneRead(t *testing.T) {
	var fr FrameReader

	got := fr.Feed([]byte("0 a;1 b; 2 c"))
	assert.Equal(t, []string{"0 a;", "1 b;"}, got)
	assert.Equal(t, " 2 c", fr.Pending())

	got = fr.Feed([]byte("\n"))
	assert.Equal(t, []string{"2 c"}, got)
}

func TestFrameReader_EscapedSemicolon(t *testing.T) {
	var fr FrameReader

	got := fr.Feed([]byte(`0 str a\; b;`))
	assert.Equal(t, []string{`0 str a\; b;`}, got)

	// an escaped backslash leaves the semicolon a terminator
	got = fr.Feed([]byte(`0 str a\\;1 str b\\\;c;`))
	assert.Equal(t, []string{`0 str a\\;`, `1 str b\\\;c;`}, got)
	assert.Empty(t, fr.Pending())
}

func TestFrameReader_DropsBlankMessages(t *testing.T) {
	var fr FrameReader

	assert.Empty(t, fr.Feed([]byte(";\n \n;")))
}

func TestFrameReader_Reset(t *testing.T) {
	var fr FrameReader
	fr.Feed([]byte("0 partial"))
	fr.Reset()

	assert.Equal(t, []string{"1 next;"}, fr.Feed([]byte("1 next;")))
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"0", "echo", "hello"}, Words(" 0 echo  hello;\n"))
	assert.Empty(t, Words(";"))
}
