package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"futuresscreener/pkg/binance"

	"go.uber.org/zap"
)

// State of a partition's connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// SupervisorConfig carries the settings shared by every partition.
type SupervisorConfig struct {
	Dialer      binance.Dialer
	Handler     MessageHandler
	Policy      ReconnectPolicy
	ReadTimeout time.Duration // 0 disables the read deadline
	Logger      *zap.Logger

	// OnStateChange is called on every transition. Optional.
	OnStateChange func(partition int, from, to State)
	// Stopping reports a shutdown in progress; no reconnect is attempted once it returns true.
	Stopping func() bool
}

// Supervisor owns the connection of one partition and reconnects it after
// every close or error, using the same stream list.
type Supervisor struct {
	partition Partition
	cfg       SupervisorConfig
	logger    *zap.Logger

	state      atomic.Int32
	connects   atomic.Int64
	reconnects atomic.Int64

	mu   sync.Mutex
	conn binance.Conn
}

func NewSupervisor(p Partition, cfg SupervisorConfig) *Supervisor {
	if cfg.Policy == nil {
		cfg.Policy = FixedDelay(5 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Stopping == nil {
		cfg.Stopping = func() bool { return false }
	}
	s := &Supervisor{
		partition: p,
		cfg:       cfg,
		logger:    cfg.Logger.With(zap.Int("partition", p.Index), zap.Int("streams", len(p.Streams))),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Supervisor) Partition() Partition { return s.partition }

func (s *Supervisor) State() State { return State(s.state.Load()) }

// Connects returns the number of successful opens.
func (s *Supervisor) Connects() int64 { return s.connects.Load() }

// Reconnects returns the number of reconnects scheduled after a close or failed dial.
func (s *Supervisor) Reconnects() int64 { return s.reconnects.Load() }

// Run connects and keeps the partition connected until ctx is done or Stopping
// reports true.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.setState(StateStopped)

	attempt := 0
	for {
		if ctx.Err() != nil || s.cfg.Stopping() {
			return
		}

		s.setState(StateConnecting)
		conn, err := s.cfg.Dialer.Dial(ctx, s.partition.Streams)
		if err != nil {
			s.logger.Warn("websocket connect failed", zap.Error(&StreamError{Partition: s.partition.Index, Err: err}))
		} else {
			attempt = 0
			s.connects.Add(1)
			s.setConn(conn)
			s.setState(StateOpen)
			s.logger.Info("websocket connected")

			err = s.listen(ctx, conn)

			s.setConn(nil)
			s.setState(StateClosed)
			if ctx.Err() != nil || s.cfg.Stopping() {
				return
			}
			s.logger.Warn("websocket disconnected", zap.Error(&StreamError{Partition: s.partition.Index, Err: err}))
		}

		attempt++
		delay := s.cfg.Policy.Delay(attempt)
		s.reconnects.Add(1)
		s.logger.Info("reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", attempt))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// listen reads until the connection fails. Malformed frames are logged and skipped.
func (s *Supervisor) listen(ctx context.Context, conn binance.Conn) error {
	// Unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		if s.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
				return err
			}
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if err := s.cfg.Handler(msg); err != nil {
			var parseErr *MessageParseError
			if errors.As(err, &parseErr) {
				s.logger.Warn("dropping malformed message", zap.Error(err))
			} else {
				s.logger.Warn("message handler failed", zap.Error(err))
			}
		}
	}
}

// Close closes the current connection, if any. Run decides whether to reconnect.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *Supervisor) setConn(conn binance.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Supervisor) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to && s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(s.partition.Index, from, to)
	}
}
