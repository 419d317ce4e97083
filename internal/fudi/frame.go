package fudi

import "strings"

// FrameReader splits a byte stream into FUDI messages. Input may arrive in
// arbitrary chunks: anything after the last terminator is held until more
// bytes complete it.
type FrameReader struct {
	pending strings.Builder
}

// Feed appends data and returns every message it completes, in order.
// A message ends at an unescaped semicolon or at a newline. Returned
// messages keep their semicolon; whitespace-only fragments are dropped.
func (f *FrameReader) Feed(data []byte) []string {
	f.pending.Write(data)
	buf := f.pending.String()

	var messages []string
	start := 0
	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case ';':
			if escaped(buf, i) {
				continue
			}
			messages = appendMessage(messages, buf[start:i+1])
			start = i + 1
		case '\n':
			messages = appendMessage(messages, buf[start:i])
			start = i + 1
		}
	}

	f.pending.Reset()
	f.pending.WriteString(buf[start:])
	return messages
}

// Pending returns the buffered incomplete tail
func (f *FrameReader) Pending() string {
	return f.pending.String()
}

// Reset drops any buffered partial message, e.g. when the peer changes
func (f *FrameReader) Reset() {
	f.pending.Reset()
}

// escaped reports whether buf[i] follows an odd run of backslashes
func escaped(buf string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && buf[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func appendMessage(messages []string, msg string) []string {
	msg = strings.TrimSpace(msg)
	if msg == "" || msg == ";" {
		return messages
	}
	return append(messages, msg)
}

// Words strips the terminator from a raw message and splits it on whitespace
func Words(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, ";")
	return strings.Fields(raw)
}
