// Package history keeps the local record of sent and received chat lines
// and the wire encoding used to ship it to other nodes.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Tag marks the direction of a history entry
type Tag string

const (
	Outgoing Tag = "outgoing"
	Incoming Tag = "incoming"
)

// ErrCorruptHistory is returned by Deserialize for payloads that are not a JSON array of strings
var ErrCorruptHistory = errors.New("corrupt history payload")

// Entry is one recorded line
type Entry struct {
	Tag  Tag
	Line string
	At   time.Time
}

// String renders the entry the way it travels in a history dump
func (e Entry) String() string {
	return "[" + string(e.Tag) + "] " + e.Line
}

// Log is an append-only, chronologically ordered history.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

// New builds an empty history log.
func New() *Log {
	return &Log{entries: []Entry{}}
}

// Append records line with the given tag
func (l *Log) Append(tag Tag, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Tag: tag, Line: line, At: time.Now()})
}

// Len returns the number of recorded entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of all entries, oldest first
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// FilterByTag returns the lines recorded with tag, oldest first
func (l *Log) FilterByTag(tag Tag) []string {
	return lo.FilterMap(l.Entries(), func(e Entry, _ int) (string, bool) {
		return e.Line, e.Tag == tag
	})
}

// Lines returns every entry rendered with its tag prefix, oldest first
func (l *Log) Lines() []string {
	return lo.Map(l.Entries(), func(e Entry, _ int) string {
		return e.String()
	})
}

// Serialize encodes the whole log for a history dump
func (l *Log) Serialize() (string, error) {
	return Encode(l.Lines())
}

// SerializeWithin encodes the most recent entries whose encoding fits in limit bytes.
// Oldest entries are dropped first. A limit <= 0 means no limit.
func (l *Log) SerializeWithin(limit int) (string, error) {
	lines := l.Lines()
	for {
		payload, err := Encode(lines)
		if err != nil {
			return "", err
		}
		if limit <= 0 || len(payload) <= limit || len(lines) == 0 {
			return payload, nil
		}
		lines = lines[1:]
	}
}

// Encode serializes lines as a JSON array of strings. The result never contains a raw line break.
func Encode(lines []string) (string, error) {
	if lines == nil {
		lines = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(lines); err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Deserialize decodes a payload produced by Encode
func Deserialize(payload string) ([]string, error) {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("%w: not an array", ErrCorruptHistory)
	}
	var lines []string
	if err := json.Unmarshal([]byte(trimmed), &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	return lines, nil
}
