package tcp

import (
	"strconv"
	"strings"

	"fcpd/internal/fudi"
)

// control words handled by the server itself, never by a registered handler
const (
	controlInitRcv = "initrcv"
	controlClose   = "close"
	commandAuth    = "auth"
)

// Message is one inbound FUDI message split into words.
// Tag echoes the Pd instance ($0) that sent it.
type Message struct {
	Tag     string
	Keyword string
	Words   []string
}

// ParseMessage strips the terminator and splits raw on whitespace
func ParseMessage(raw string) Message {
	words := fudi.Words(raw)
	msg := Message{Words: words}
	if len(words) > 0 {
		msg.Tag = words[0]
	}
	if len(words) > 1 {
		msg.Keyword = words[1]
	}
	return msg
}

// Args returns the words after the keyword
func (m Message) Args() []string {
	if len(m.Words) < 2 {
		return nil
	}
	return m.Words[2:]
}

// control returns the words of a server control message. Both the bare
// form ("initrcv 9001") and the tagged form ("0 initrcv 9001") are accepted.
func (m Message) control() ([]string, bool) {
	if len(m.Words) == 0 {
		return nil, false
	}
	switch m.Words[0] {
	case controlInitRcv, controlClose:
		return m.Words, true
	}
	switch m.Keyword {
	case controlInitRcv, controlClose:
		return m.Words[1:], true
	}
	return nil, false
}

// frame formats an outbound message: words joined by spaces, then ";"
func frame(parts ...string) string {
	return strings.Join(parts, " ") + ";"
}

// reply formats the answer to a message, tagged with the sender instance
func reply(tag string, encoded string) string {
	return frame(tag, encoded)
}

func parsePort(word string) (int, bool) {
	port, err := strconv.Atoi(word)
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// State is the lifecycle position of the server
type State int

const (
	StateIdle State = iota
	StateListening
	StateConnected
	StateCallbackPending
	StateCallbackEstablished
	StateTerminated
)

var stateNames = [...]string{
	StateIdle:                "idle",
	StateListening:           "listening",
	StateConnected:           "connected",
	StateCallbackPending:     "callback_pending",
	StateCallbackEstablished: "callback_established",
	StateTerminated:          "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Status is a point-in-time snapshot of the server for reporting
type Status struct {
	State         string `json:"state"`
	ListenAddress string `json:"listen_address"`
	PeerID        string `json:"peer_id,omitempty"`
	PeerAddress   string `json:"peer_address,omitempty"`
	CallbackPort  int    `json:"callback_port,omitempty"`
	BufferedBytes int    `json:"buffered_bytes"`
	Authenticated bool   `json:"authenticated"`
	RegistrySize  int    `json:"registry_size"`
	MessagesIn    uint64 `json:"messages_in"`
	RepliesOut    uint64 `json:"replies_out"`
}
