package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	nodeID     atomic.Value
	nodeIDOnce sync.Once

	debugEnabled atomic.Bool

	// Async logging channel and worker
	logChan   chan string
	logWorker sync.Once
	logWg     sync.WaitGroup
	logMu     sync.Mutex
)

// initLogWorker starts the async log worker goroutine
func initLogWorker() {
	logMu.Lock()
	defer logMu.Unlock()

	logWorker.Do(func() {
		// Buffer size: 1000 messages
		logChan = make(chan string, 1000)

		logWg.Add(1)
		go func() {
			defer logWg.Done()
			for msg := range logChan {
				log.Print(msg)
			}
		}()
	})
}

// SetNodeID fixes the prefix used by every log line. The chat node calls it
// once its identity (name and stream endpoint) is known.
func SetNodeID(id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	nodeID.Store(id)
}

// GetNodeID returns the node identifier used as log prefix
func GetNodeID() string {
	nodeIDOnce.Do(func() {
		if _, ok := nodeID.Load().(string); ok {
			return
		}
		// Try NODE_ID first (allows fixed node ID), then HOSTNAME, then a short hostname
		id := os.Getenv("NODE_ID")
		if id == "" {
			id = os.Getenv("HOSTNAME")
		}
		if id == "" {
			hostname, _ := os.Hostname()
			if len(hostname) > 8 {
				id = hostname[len(hostname)-8:]
			} else {
				id = hostname
			}
		}
		if id == "" {
			id = "unknown"
		}
		nodeID.CompareAndSwap(nil, id)
	})
	id, _ := nodeID.Load().(string)
	return id
}

// SetLevel sets the log level. Only "debug" changes behaviour: it enables Debugf.
func SetLevel(level string) {
	debugEnabled.Store(strings.EqualFold(strings.TrimSpace(level), "debug"))
}

// IsDebug reports whether debug logging is enabled
func IsDebug() bool {
	return debugEnabled.Load()
}

func enqueue(msg string) {
	initLogWorker()
	logMsg := fmt.Sprintf("[node=%s] %s", GetNodeID(), msg)

	logMu.Lock()
	defer logMu.Unlock()
	if logChan == nil {
		log.Print(logMsg)
		return
	}

	// Non-blocking send: if channel is full, log synchronously
	select {
	case logChan <- logMsg:
	default:
		log.Print(logMsg)
	}
}

// Logf logs a formatted message with node ID prefix (async, non-blocking)
func Logf(format string, v ...interface{}) {
	enqueue(fmt.Sprintf(format, v...))
}

// Log logs a message with node ID prefix (async, non-blocking)
func Log(v ...interface{}) {
	enqueue(fmt.Sprint(v...))
}

// Debugf logs only when the level is "debug"
func Debugf(format string, v ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	enqueue("[debug] " + fmt.Sprintf(format, v...))
}

// Fatalf logs a fatal error with node ID prefix and exits (synchronous for fatal errors)
func Fatalf(format string, v ...interface{}) {
	Flush()
	log.Fatalf("[node=%s] %s", GetNodeID(), fmt.Sprintf(format, v...))
}

// Flush waits for all pending log messages to be written
func Flush() {
	logMu.Lock()
	defer logMu.Unlock()

	if logChan != nil {
		close(logChan)
		logWg.Wait()
		logChan = nil
		logWorker = sync.Once{}
	}
}
