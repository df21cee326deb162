package server

import (
	"github.com/lanchat/pkg/logging"
	"github.com/lanchat/pkg/protocol"
)

// Shutdown announces the exit to every peer, stops the acceptor and the
// presence listener, closes every peer stream and waits for the router
// goroutines. Only the first call does anything.
func (s *ChatServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.stateLock.Lock()
		s.closed = true
		s.stateLock.Unlock()

		logging.Logf("[shutdown] leaving (peers=%d)", s.registry.Len())

		if s.listener != nil {
			exit := protocol.NewExit(s.identity.Name)
			result := s.broadcast(exit, nil)
			logging.Debugf("[shutdown] exit notice sent (delivered=%d failed=%d)", result.Delivered, len(result.Failed))
			_ = s.listener.Close()
		}
		if s.discovery != nil {
			_ = s.discovery.Close()
		}

		for _, c := range s.registry.Snapshot() {
			s.dropPeer(c)
		}
		s.wg.Wait()
		s.stopMetricsServer()

		logging.Log("[shutdown] done")
	})
}
