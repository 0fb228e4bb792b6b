package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

const ackPrefix = "Video added to list: "

// SocketListener accepts one producer at a time on a unix socket, queues
// the video ids it sends and carries outbound messages back to it.
type SocketListener struct {
	cfg   ListenerConfig
	queue *IngestionQueue

	// OnConnect runs on the accept goroutine after each new connection
	OnConnect func()

	ln     *net.UnixListener
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu      sync.Mutex
	conn    net.Conn
	changed chan struct{}
	closed  chan struct{}
}

func NewSocketListener(cfg ListenerConfig, queue *IngestionQueue) *SocketListener {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &SocketListener{
		cfg:     cfg,
		queue:   queue,
		changed: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Start binds the socket, replacing a stale one, and starts accepting.
// A bind failure is returned to the caller.
func (l *SocketListener) Start(ctx context.Context) error {
	// Cleanup old socket
	if _, err := os.Stat(l.cfg.Path); err == nil {
		if err := os.Remove(l.cfg.Path); err != nil {
			return tagErr("listener", fmt.Errorf("removing stale socket: %w", err))
		}
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: l.cfg.Path, Net: "unix"})
	if err != nil {
		return tagErr("listener", err)
	}
	ln.SetUnlinkOnClose(false)
	l.ln = ln

	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go l.acceptLoop(ctx)

	logger.Info("listener", "Listening on %s", l.cfg.Path)
	return nil
}

func (l *SocketListener) acceptLoop(ctx context.Context) {
	defer l.wg.Done()

	for ctx.Err() == nil {
		// bounded wait so a stop request is seen promptly
		l.ln.SetDeadline(time.Now().Add(l.cfg.PollInterval))
		conn, err := l.ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("listener", "Accept failed: %v", err)
			sleepContext(ctx, l.cfg.PollInterval)
			continue
		}

		logger.Info("listener", "Producer connected")
		l.setConn(conn)
		if l.OnConnect != nil {
			l.OnConnect()
		}

		l.serve(ctx, conn)

		l.clearConn(conn)
		conn.Close()
		logger.Info("listener", "Producer disconnected")
	}
}

// Reads newline separated ids until the peer goes away or ctx ends
func (l *SocketListener) serve(ctx context.Context, conn net.Conn) {
	reader := bufio.NewReader(conn)
	var partial strings.Builder

	for ctx.Err() == nil {
		conn.SetReadDeadline(time.Now().Add(l.cfg.PollInterval))
		line, err := reader.ReadString('\n')
		partial.WriteString(line)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Warn("listener", "Read failed: %v", err)
			}
			return
		}

		id := strings.TrimSuffix(partial.String(), "\n")
		partial.Reset()
		l.ingest(id)
	}
}

func (l *SocketListener) ingest(id string) {
	if id == "" {
		return
	}
	if l.queue.PushUnique(id) {
		logger.Info("listener", "Queued %s", id)
	} else {
		at, _ := l.queue.IndexOf(id)
		logger.Debug("listener", "Already queued %s at %d", id, at)
	}
	l.Send(ackPrefix + id + "\n")
}

// Send writes msg verbatim to the producer. Without a producer it returns
// false at once; a failed write drops the connection.
func (l *SocketListener) Send(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return false
	}
	l.conn.SetWriteDeadline(time.Now().Add(l.cfg.PollInterval))
	if _, err := io.WriteString(l.conn, msg); err != nil {
		logger.Warn("listener", "Send failed, dropping producer: %v", err)
		l.conn.Close()
		l.conn = nil
		l.notify()
		return false
	}
	return true
}

func (l *SocketListener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// WaitConnected blocks until a producer is connected. It fails with
// ErrListenerClosed once the listener is stopped.
func (l *SocketListener) WaitConnected(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.conn != nil {
			l.mu.Unlock()
			return nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-l.closed:
			return ErrListenerClosed
		case <-changed:
		}
	}
}

func (l *SocketListener) Path() string {
	return l.cfg.Path
}

func (l *SocketListener) setConn(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = conn
	l.notify()
}

// Clears the connection state unless a newer connection replaced it
func (l *SocketListener) clearConn(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == conn {
		l.conn = nil
		l.notify()
	}
}

// must hold mu
func (l *SocketListener) notify() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// Stop closes the listening socket, waits for the accept goroutine and
// removes the socket file. It is idempotent.
func (l *SocketListener) Stop() {
	l.once.Do(func() {
		close(l.closed)
		if l.ln == nil {
			return
		}
		l.cancel()
		l.ln.Close()
		l.wg.Wait()
		if err := os.Remove(l.cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("listener", "Removing socket: %v", err)
		}
		logger.Info("listener", "Stopped")
	})
}
