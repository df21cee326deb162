package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/lanchat/pkg/history"
	"github.com/lanchat/pkg/logging"
	"github.com/lanchat/pkg/protocol"
)

// FormatChatLine renders text the way locally originated chat lines travel:
// "<timestamp>: <name>: <text>"
func (s *ChatServer) FormatChatLine(text string, at time.Time) string {
	return fmt.Sprintf("%s: %s: %s", at.Format(s.cfg.Chat.TimestampFormat), s.identity.Name, text)
}

// SendChat records text as outgoing history and broadcasts it to every peer.
// It returns the number of peers the line was written to.
func (s *ChatServer) SendChat(text string) (int, error) {
	text = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(text))
	if text == "" {
		return 0, ErrEmptyMessage
	}
	if s.isClosed() {
		return 0, ErrShuttingDown
	}

	line := s.FormatChatLine(text, time.Now())
	s.history.Append(history.Outgoing, line)
	result := s.broadcast(protocol.NewChat(s.identity.Name, line), nil)
	logging.Debugf("[router] chat sent (delivered=%d failed=%d)", result.Delivered, len(result.Failed))
	return result.Delivered, nil
}

// SendHistory broadcasts a dump of the local history. When the whole log does
// not fit in one protocol line the oldest entries are left out.
func (s *ChatServer) SendHistory() (int, error) {
	if s.isClosed() {
		return 0, ErrShuttingDown
	}

	msg := protocol.NewHistory(s.identity.Name, "")
	limit := s.cfg.Peer.MaxLineBytes - len(msg.String()) - 1
	payload, err := s.history.SerializeWithin(limit)
	if err != nil {
		return 0, fmt.Errorf("serialize history: %w", err)
	}
	msg.Body = payload

	result := s.broadcast(msg, nil)
	logging.Logf("[router] history sent (entries=%d bytes=%d delivered=%d)", s.history.Len(), len(payload), result.Delivered)
	return result.Delivered, nil
}
