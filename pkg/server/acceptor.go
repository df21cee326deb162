package server

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/lanchat/pkg/logging"
)

// bindAttempts bounds the retries when a random stream port is already taken
const bindAttempts = 5

// bindStream binds the stream listener on the configured address.
// A fixed port is used as is; otherwise a random port in [min, max) is tried
// a few times, and an empty range falls back to an ephemeral port.
func (s *ChatServer) bindStream() (net.Listener, error) {
	host := s.identity.Address.String()
	node := s.cfg.Node

	if node.StreamPort != 0 {
		return listenStream(host, node.StreamPort)
	}
	if node.StreamPortMax <= node.StreamPortMin {
		return listenStream(host, 0)
	}

	var lastErr error
	for i := 0; i < bindAttempts; i++ {
		port := node.StreamPortMin + rand.Intn(node.StreamPortMax-node.StreamPortMin)
		ln, err := listenStream(host, port)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		logging.Debugf("[listen] stream port busy (port=%d attempt=%d err=%v)", port, i+1, err)
	}
	return nil, lastErr
}

func listenStream(host string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// acceptLoop registers every inbound stream. Per-connection work runs on the
// router goroutine started by register, never here.
func (s *ChatServer) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Logf("Error accepting connection: %v", err)
			continue
		}

		logging.Debugf("[request] new connection (remote=%s)", conn.RemoteAddr())
		go func(conn net.Conn) {
			if _, err := s.register(conn, false, "", time.Now()); err != nil {
				logging.Logf("[registry] inbound connection rejected (remote=%s err=%v)", conn.RemoteAddr(), err)
			}
		}(conn)
	}
}

func (s *ChatServer) isClosed() bool {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.closed
}
