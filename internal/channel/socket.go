package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// socketBufferInitial is the initial scanner buffer per connection.
	socketBufferInitial = 64 * 1024
	// socketBufferMax bounds a single envelope line.
	socketBufferMax = 10 * 1024 * 1024
	// sourceChannelDepth is the buffered depth of the subscriber channel.
	sourceChannelDepth = 100
)

// SocketSource accepts NormalizedMessage envelopes over a UNIX socket.
// Channel adapters connect and write one JSON envelope per line; the
// source fans every connection into a single subscriber channel.
type SocketSource struct {
	socketPath string
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	running  bool
}

// SocketOption configures a SocketSource.
type SocketOption func(*SocketSource)

// WithSocketLogger sets a custom logger.
func WithSocketLogger(logger *slog.Logger) SocketOption {
	return func(s *SocketSource) {
		s.logger = logger
	}
}

// NewSocketSource creates a source listening on the given socket path.
func NewSocketSource(socketPath string, opts ...SocketOption) *SocketSource {
	s := &SocketSource{
		socketPath: socketPath,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the source for logging.
func (s *SocketSource) Name() string {
	return "unix:" + s.socketPath
}

// Subscribe starts listening and returns the envelope channel. The
// listener and all adapter connections are torn down when ctx ends.
func (s *SocketSource) Subscribe(ctx context.Context) (<-chan NormalizedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, fmt.Errorf("socket source already subscribed")
	}

	// A stale socket file from an unclean shutdown blocks the listener.
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	s.running = true

	messages := make(chan NormalizedMessage, sourceChannelDepth)

	var wg sync.WaitGroup
	wg.Add(1)
	go s.acceptLoop(ctx, listener, messages, &wg)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
		wg.Wait()
		close(messages)

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return messages, nil
}

// acceptLoop accepts adapter connections until the listener closes.
func (s *SocketSource) acceptLoop(ctx context.Context, listener net.Listener, messages chan<- NormalizedMessage, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "source", s.Name(), "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn, messages)
		}()
	}
}

// handleConn reads newline-delimited JSON envelopes from one adapter.
func (s *SocketSource) handleConn(ctx context.Context, conn net.Conn, messages chan<- NormalizedMessage) {
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, socketBufferInitial), socketBufferMax)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg NormalizedMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("discarding malformed envelope",
				"source", s.Name(),
				"error", err)
			continue
		}
		if msg.SenderID == "" {
			s.logger.Warn("discarding envelope without sender", "source", s.Name())
			continue
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = time.Now()
		}

		select {
		case messages <- msg:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.logger.Debug("adapter connection closed", "source", s.Name(), "error", err)
	}
}
