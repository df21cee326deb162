package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/lanchat/pkg/history"
	"github.com/lanchat/pkg/logging"
	"github.com/lanchat/pkg/peer"
)

// CommandKind is what a typed line asks for
type CommandKind int

const (
	CmdChat CommandKind = iota
	CmdShowHistory
	CmdSendHistory
	CmdPeers
	CmdConnect
	CmdQuit
	CmdNone
)

// Command is one parsed input line
type Command struct {
	Kind CommandKind
	Text string // chat text
	IP   string // connect target
	Port int
}

// ErrBadConnectTarget is returned for "/connect" without a valid ip:port
var ErrBadConnectTarget = errors.New("usage: /connect <ip>:<port>")

// ParseCommand classifies one typed line. Anything that is not a command is chat text.
func ParseCommand(line string) (Command, error) {
	trimmed := strings.TrimSpace(line)
	switch strings.ToLower(trimmed) {
	case "":
		return Command{Kind: CmdNone}, nil
	case "history", "история":
		return Command{Kind: CmdShowHistory}, nil
	case "send":
		return Command{Kind: CmdSendHistory}, nil
	case "/peers":
		return Command{Kind: CmdPeers}, nil
	case "/quit", "/exit":
		return Command{Kind: CmdQuit}, nil
	}

	if rest, ok := strings.CutPrefix(trimmed, "/connect"); ok {
		host, port, err := net.SplitHostPort(strings.TrimSpace(rest))
		if err != nil {
			return Command{}, ErrBadConnectTarget
		}
		ip := net.ParseIP(host)
		p, err := strconv.Atoi(port)
		if ip == nil || ip.To4() == nil || err != nil || p <= 0 || p > 65535 {
			return Command{}, ErrBadConnectTarget
		}
		return Command{Kind: CmdConnect, IP: ip.String(), Port: p}, nil
	}
	return Command{Kind: CmdChat, Text: trimmed}, nil
}

// Node is the part of a chat node driven from the terminal
type Node interface {
	SendChat(text string) (int, error)
	SendHistory() (int, error)
	Connect(ip string, port int) (*peer.Conn, error)
	History() *history.Log
	WritePeersTable(w io.Writer)
}

// Run reads commands from in until EOF, "/quit" or ctx is cancelled.
// Shutting the node down is left to the caller.
func Run(ctx context.Context, in io.Reader, c *Console, node Node) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := execute(line, c, node); quit {
				return nil
			}
		}
	}
}

func execute(line string, c *Console, node Node) bool {
	cmd, err := ParseCommand(line)
	if err != nil {
		c.Notice("%v", err)
		return false
	}

	switch cmd.Kind {
	case CmdNone:
	case CmdQuit:
		return true
	case CmdShowHistory:
		c.ShowLog(node.History())
	case CmdSendHistory:
		n, err := node.SendHistory()
		if err != nil {
			c.Notice("history not sent: %v", err)
			break
		}
		c.Notice("history sent to %d peer(s)", n)
	case CmdPeers:
		c.Table(node.WritePeersTable)
	case CmdConnect:
		conn, err := node.Connect(cmd.IP, cmd.Port)
		if err != nil {
			c.Notice("connect %s:%d failed: %v", cmd.IP, cmd.Port, err)
			break
		}
		c.Notice("connected to %s", conn.Remote)
	case CmdChat:
		if _, err := node.SendChat(cmd.Text); err != nil {
			logging.Logf("[console] chat not sent: %v", err)
		}
	}
	return false
}
