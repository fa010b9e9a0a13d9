package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bus-tracker/internal/general/contracts"
	"bus-tracker/internal/general/logger"
	"bus-tracker/internal/tracker/domain"
)

// State of the reconnection controller.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateBackoff      State = "BACKOFF"
	StateFailed       State = "FAILED"
)

// ErrMaxAttempts is returned by Run once the configured number of
// consecutive connection attempts has been exhausted. The controller is then
// terminal until Reset.
var ErrMaxAttempts = fmt.Errorf("%w: maximum connection attempts exhausted", domain.ErrTransportFailure)

// Conn is a connected transport session as seen by the controller.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens transport sessions. The production implementation wraps the
// gorilla dialer; tests inject fakes.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Config for the controller. Zero fields fall back to the deployed defaults:
// 5 attempts, 5 s fixed backoff, 10 s connect timeout.
type Config struct {
	URL            string
	MaxAttempts    int
	Backoff        time.Duration
	ConnectTimeout time.Duration
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Controller manages the client side of the transport: it establishes the
// session, replays the last registration after every reconnect, and applies a
// fixed backoff between failed attempts.
type Controller struct {
	cfg    Config
	dialer Dialer
	log    *logger.Logger

	// OnMessage receives every inbound frame while connected. Optional.
	OnMessage func([]byte)
	// OnState observes state transitions. Optional, used by tests.
	OnState func(State)

	mu       sync.Mutex
	state    State
	attempts int
	conn     Conn
	lastReg  *contracts.Register
}

func New(cfg Config, dialer Dialer, log *logger.Logger) *Controller {
	cfg.defaults()
	return &Controller{
		cfg:    cfg,
		dialer: dialer,
		log:    log,
		state:  StateDisconnected,
	}
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	cb := c.OnState
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Register sends a register frame and remembers it for replay after
// reconnects. Safe to call before the first connection; the frame is then
// sent as soon as a session is established.
func (c *Controller) Register(role domain.Role, userID, identity, token string) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}

	msg := &contracts.Register{
		Type:     contracts.TypeRegister,
		UserType: string(role),
		UserID:   userID,
		Identity: identity,
		Token:    token,
	}

	c.mu.Lock()
	c.lastReg = msg
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}
	return nil
}

// Send transmits a message on the current session.
func (c *Controller) Send(msg any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return domain.ErrTransportFailure
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}
	return nil
}

// Reset clears a terminal FAILED state so Run may be called again.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = 0
	c.state = StateDisconnected
}

// Run drives the connection lifecycle until ctx is canceled or the attempt
// budget is exhausted. Each failed or dropped connection is followed by a
// fixed backoff delay; consecutive failed attempts beyond MaxAttempts end in
// the terminal FAILED state.
func (c *Controller) Run(ctx context.Context) error {
	if c.State() == StateFailed {
		return ErrMaxAttempts
	}

	for {
		c.setState(StateConnecting)

		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		conn, err := c.dialer.Dial(dialCtx, c.cfg.URL)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return ctx.Err()
			}

			c.mu.Lock()
			c.attempts++
			attempts := c.attempts
			c.mu.Unlock()

			c.log.Error(ctx, "connect_failed", "Connection attempt failed", err, map[string]any{
				"attempt": attempts, "max_attempts": c.cfg.MaxAttempts,
			})

			if attempts >= c.cfg.MaxAttempts {
				c.setState(StateFailed)
				return ErrMaxAttempts
			}

			c.setState(StateBackoff)
			select {
			case <-time.After(c.cfg.Backoff):
			case <-ctx.Done():
				c.setState(StateDisconnected)
				return ctx.Err()
			}
			continue
		}

		c.mu.Lock()
		c.attempts = 0
		c.conn = conn
		reg := c.lastReg
		c.mu.Unlock()

		c.setState(StateConnected)
		c.log.Info(ctx, "connected", "Transport session established", nil)

		// replay registration so server-side role/identity binding survives
		// the reconnect transparently
		if reg != nil {
			if err := conn.WriteJSON(reg); err != nil {
				c.log.Error(ctx, "register_replay_failed", "Failed to replay registration", err, nil)
			}
		}

		readErr := c.readLoop(ctx, conn)
		_ = conn.Close()

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Info(ctx, "disconnected", "Transport session lost, scheduling reconnect", map[string]any{
			"error": fmt.Sprint(readErr),
		})

		c.setState(StateBackoff)
		select {
		case <-time.After(c.cfg.Backoff):
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		}
	}
}

func (c *Controller) readLoop(ctx context.Context, conn Conn) error {
	done := make(chan struct{})
	defer close(done)

	// unblock the reader when ctx ends
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if c.OnMessage != nil {
			c.OnMessage(payload)
		}
	}
}
