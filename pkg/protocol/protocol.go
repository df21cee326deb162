package protocol

import (
	"strings"

	"github.com/google/uuid"
)

// Kind tags every line of the peer stream protocol.
type Kind string

const (
	KindHello   Kind = "HELLO"
	KindJoin    Kind = "JOIN"
	KindChat    Kind = "CHAT"
	KindHistory Kind = "HISTORY"
	KindExit    Kind = "EXIT"
)

// Message is one parsed protocol line.
// Wire format: KIND:id:origin:body (body may contain ':' but never '\n')
type Message struct {
	Kind   Kind
	ID     string
	Origin string
	Body   string
}

func validKind(k Kind) bool {
	switch k {
	case KindHello, KindJoin, KindChat, KindHistory, KindExit:
		return true
	}
	return false
}

// NewID returns a fresh message identifier
func NewID() string {
	return uuid.NewString()
}

func newMessage(kind Kind, origin, body string) Message {
	return Message{Kind: kind, ID: NewID(), Origin: origin, Body: body}
}

// NewHello builds the handshake line sent first on every new connection.
// listenAddr is the sender's stream endpoint ("ip:port").
func NewHello(origin, listenAddr string) Message {
	return newMessage(KindHello, origin, listenAddr)
}

// NewJoin builds a join notice for origin
func NewJoin(origin string) Message {
	return newMessage(KindJoin, origin, "")
}

// NewChat builds a chat line. line is the already formatted "<timestamp>: <name>: <text>".
func NewChat(origin, line string) Message {
	return newMessage(KindChat, origin, line)
}

// NewHistory builds a history dump carrying a serialized history payload
func NewHistory(origin, payload string) Message {
	return newMessage(KindHistory, origin, payload)
}

// NewExit builds an exit notice for origin
func NewExit(origin string) Message {
	return newMessage(KindExit, origin, "")
}

// String renders the message without line terminator
func (m Message) String() string {
	return string(m.Kind) + ":" + m.ID + ":" + m.Origin + ":" + m.Body
}

// ParseLine parses one protocol line. The trailing "\r\n" or "\n" is ignored.
func ParseLine(line string) (Message, bool) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, ":", 4)
	if len(parts) != 4 {
		return Message{}, false
	}
	msg := Message{
		Kind:   Kind(parts[0]),
		ID:     strings.TrimSpace(parts[1]),
		Origin: strings.TrimSpace(parts[2]),
		Body:   parts[3],
	}
	if !validKind(msg.Kind) || msg.ID == "" || msg.Origin == "" {
		return Message{}, false
	}
	if msg.Kind == KindHello && strings.TrimSpace(msg.Body) == "" {
		return Message{}, false
	}
	return msg, true
}

// ValidName reports whether name can travel inside datagrams and protocol lines
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && !strings.ContainsAny(name, ":\r\n")
}

// JoinText is the human-readable form of a join notice
func JoinText(name string) string {
	return name + " has joined"
}

// ExitText is the human-readable form of an exit notice
func ExitText(name string) string {
	return name + " has left"
}
