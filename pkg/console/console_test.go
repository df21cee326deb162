package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanchat/pkg/history"
	"github.com/lanchat/pkg/peer"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"", Command{Kind: CmdNone}},
		{"   ", Command{Kind: CmdNone}},
		{"history", Command{Kind: CmdShowHistory}},
		{"История", Command{Kind: CmdShowHistory}},
		{"send", Command{Kind: CmdSendHistory}},
		{"/peers", Command{Kind: CmdPeers}},
		{"/quit", Command{Kind: CmdQuit}},
		{"/connect 10.0.0.2:8123", Command{Kind: CmdConnect, IP: "10.0.0.2", Port: 8123}},
		{"  hello there  ", Command{Kind: CmdChat, Text: "hello there"}},
		{"send me the file", Command{Kind: CmdChat, Text: "send me the file"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_BadConnect(t *testing.T) {
	for _, line := range []string{"/connect", "/connect 10.0.0.2", "/connect host:80", "/connect 10.0.0.2:0", "/connect [::1]:80"} {
		_, err := ParseCommand(line)
		require.ErrorIs(t, err, ErrBadConnectTarget, line)
	}
}

func TestConsole_ShowAndShowLog(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	c := New(&out, false)

	c.Show("bob has joined")
	c.ShowHistory("bob", []string{"[incoming] You joined", "[outgoing] x: bob: hi"})

	log := history.New()
	log.Append(history.Incoming, "You joined")
	log.Append(history.Outgoing, "x: alice: hi")
	c.ShowLog(log)

	text := out.String()
	req.Contains(text, "bob has joined\n")
	req.Contains(text, "history from bob (2)")
	req.Contains(text, "[outgoing] x: bob: hi")
	req.Contains(text, "x: alice: hi")
	dump, table, found := strings.Cut(text, "[outgoing] x: bob: hi")
	req.True(found)
	req.Contains(dump, "[incoming] You joined")
	req.Less(strings.Index(table, "You joined"), strings.Index(table, "x: alice: hi"))
}

type fakeNode struct {
	chats      []string
	dumps      int
	connects   []string
	connectErr error
	log        *history.Log
}

func (f *fakeNode) SendChat(text string) (int, error) {
	f.chats = append(f.chats, text)
	return 1, nil
}

func (f *fakeNode) SendHistory() (int, error) {
	f.dumps++
	return 2, nil
}

func (f *fakeNode) Connect(ip string, port int) (*peer.Conn, error) {
	f.connects = append(f.connects, fmt.Sprintf("%s:%d", ip, port))
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &peer.Conn{Remote: fmt.Sprintf("%s:%d", ip, port)}, nil
}

func (f *fakeNode) History() *history.Log { return f.log }

func (f *fakeNode) WritePeersTable(w io.Writer) {
	_, _ = io.WriteString(w, "PEER TABLE\n")
}

func TestRun_DispatchesCommands(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	node := &fakeNode{log: history.New(), connectErr: errors.New("refused")}

	in := strings.NewReader("hello\n\nsend\n/peers\n/connect 10.0.0.2:8123\nhistory\n/quit\nnot sent\n")
	req.NoError(Run(context.Background(), in, New(&out, false), node))

	req.Equal([]string{"hello"}, node.chats)
	req.Equal(1, node.dumps)
	req.Equal([]string{"10.0.0.2:8123"}, node.connects)
	req.Contains(out.String(), "history sent to 2 peer(s)")
	req.Contains(out.String(), "PEER TABLE")
	req.Contains(out.String(), "connect 10.0.0.2:8123 failed: refused")
}

func TestRun_StopsAtEOF(t *testing.T) {
	req := require.New(t)
	node := &fakeNode{log: history.New()}

	req.NoError(Run(context.Background(), strings.NewReader("one\ntwo"), New(io.Discard, false), node))
	req.Equal([]string{"one", "two"}, node.chats)
}

func TestRun_StopsOnCancel(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr, pw := io.Pipe()
	defer pw.Close()
	req.NoError(Run(ctx, pr, New(io.Discard, false), &fakeNode{log: history.New()}))
}
