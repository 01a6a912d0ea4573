// Package outbound is the only path by which game code produces network
// effects. Every send goes through a typed builder, is serialized at once and
// handed to the transport, optionally after an artificial delay.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"worldsync.gg/internal/protocol"
	"worldsync.gg/internal/tick"
)

var (
	// ErrClosed is returned for sends attempted after Close.
	ErrClosed = errors.New("outbound: channel closed")
	// ErrThrottled is returned when a control request exceeds the request rate.
	ErrThrottled = errors.New("outbound: control request throttled")
)

// Sender transmits one serialized packet.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, payload []byte) error

func (f SenderFunc) Send(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// Tap observes every packet at the moment it is handed to the Sender.
type Tap func(kind protocol.Kind, tick int64, payload []byte)

type Options struct {
	// Latency delays each transmission without blocking the caller.
	Latency time.Duration
	// RequestRate caps control requests per second. Zero means unlimited.
	RequestRate  float64
	RequestBurst int
	Tap          Tap
	Logger       *slog.Logger
}

type queued struct {
	due  time.Time
	kind protocol.Kind
	tick int64
	raw  []byte
}

// Channel serializes outbound packets and delivers them in call order.
type Channel struct {
	sender  Sender
	clock   *tick.Clock
	limiter *rate.Limiter
	tap     Tap
	log     *slog.Logger

	latency atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	queue  []queued
}

func New(sender Sender, clock *tick.Clock, opts Options) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		sender: sender,
		clock:  clock,
		tap:    opts.Tap,
		log:    logger.With("component", "outbound"),
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if opts.RequestRate > 0 {
		burst := opts.RequestBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestRate), burst)
	}
	c.SetLatency(opts.Latency)
	go c.delayLine()
	return c
}

// SetLatency changes the artificial send delay. Packets already queued keep
// their due time; order is preserved either way.
func (c *Channel) SetLatency(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.latency.Store(int64(d))
}

func (c *Channel) Latency() time.Duration { return time.Duration(c.latency.Load()) }

// Pending reports how many packets wait in the delay line.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close stops all further transmission. Queued packets are dropped.
func (c *Channel) Close() {
	c.cancel()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	dropped := len(c.queue)
	c.queue = nil
	c.mu.Unlock()

	<-c.done
	if dropped > 0 {
		c.log.Debug("dropped queued packets on close", "count", dropped)
	}
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SendHandshakeReady acknowledges the server handshake.
func (c *Channel) SendHandshakeReady(version int) error {
	return c.emit(protocol.NewHandshakeReady(version))
}

// SendCustomMessage publishes data on a named channel.
func (c *Channel) SendCustomMessage(channel string, data map[string]any) error {
	return c.emit(protocol.NewCustomMessage(channel, data))
}

// SendPlayerMotion reports the local player's kinematics at the current tick.
func (c *Channel) SendPlayerMotion(pos, vel protocol.Vec2, flipped bool) error {
	return c.emit(protocol.NewPlayerMotion(c.clock.Now(), pos, vel, flipped))
}

// SendPlayerInputs reports the local player's control inputs at the current
// tick.
func (c *Channel) SendPlayerInputs(in protocol.Inputs) error {
	return c.emit(protocol.NewPlayerInputs(c.clock.Now(), in))
}

func (c *Channel) SendAnimationChange(animation string) error {
	return c.emit(protocol.NewPlayerAnimationChange(animation))
}

// SendGearChange sends the equipped gear without its visual resources.
func (c *Channel) SendGearChange(g protocol.Gear) error {
	return c.emit(protocol.NewPlayerGearChange(g))
}

// SendSpawnEntity asks the server to create an entity. A definition without
// a UID gets a fresh one, which is returned.
func (c *Channel) SendSpawnEntity(def protocol.EntityDef) (string, error) {
	if def.UID == "" {
		def.UID = uuid.NewString()
	}
	return def.UID, c.emit(protocol.NewSpawnEntity(def))
}

func (c *Channel) SendDestroyEntity(entityID string) error {
	return c.emit(protocol.NewDestroyEntity(entityID))
}

func (c *Channel) SendTransformChanged(entityID string, tr protocol.Transform) error {
	return c.emit(protocol.NewTransformChanged(entityID, tr))
}

func (c *Channel) SendArgsChanged(entityID string, args map[string]any) error {
	return c.emit(protocol.NewArgsChanged(entityID, args))
}

func (c *Channel) SendSuspendResume(entityID string, suspended bool) error {
	return c.emit(protocol.NewPhysicsSuspendResume(entityID, suspended))
}

// RequestObjectControl asks for a control lease on an entity. It returns
// ErrThrottled when the configured request rate is exceeded.
func (c *Channel) RequestObjectControl(entityID string) error {
	if c.limiter != nil && !c.limiter.Allow() {
		return ErrThrottled
	}
	return c.emit(protocol.NewPhysicsRequestObjectControl(entityID))
}

// SendControlledObjectsSnapshot pushes the bodies of locally controlled
// entities, stamped with the current tick.
func (c *Channel) SendControlledObjectsSnapshot(entities map[string][]protocol.BodyState) error {
	return c.emit(protocol.NewPhysicsControlledObjectsSnapshot(c.clock.Now(), entities))
}

func (c *Channel) RequestFullSnapshot() error {
	return c.emit(protocol.NewRequestFullSnapshot())
}

func (c *Channel) emit(p protocol.Outbound) error {
	raw, err := protocol.Encode(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.Kind(), err)
	}
	q := queued{kind: p.Kind(), tick: c.clock.Now(), raw: raw}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.log.Debug("send after close dropped", "kind", q.kind)
		return ErrClosed
	}
	delay := c.Latency()
	if delay == 0 && len(c.queue) == 0 {
		// Nothing in flight: transmit inline, under the lock, so a concurrent
		// caller cannot overtake.
		err := c.transmit(q)
		c.mu.Unlock()
		return err
	}
	q.due = time.Now().Add(delay)
	c.queue = append(c.queue, q)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *Channel) transmit(q queued) error {
	if c.tap != nil {
		c.tap(q.kind, q.tick, q.raw)
	}
	if err := c.sender.Send(c.ctx, q.raw); err != nil {
		c.log.Warn("send failed", "kind", q.kind, "error", err)
		return fmt.Errorf("send %s: %w", q.kind, err)
	}
	return nil
}

// delayLine transmits queued packets strictly in FIFO order, each no earlier
// than its due time.
func (c *Channel) delayLine() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}
		for {
			c.mu.Lock()
			if c.closed || len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			next := c.queue[0]
			c.mu.Unlock()

			if d := time.Until(next.due); d > 0 {
				t := time.NewTimer(d)
				select {
				case <-c.ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}

			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			_ = c.transmit(next)
			c.queue = c.queue[1:]
			c.mu.Unlock()
		}
	}
}
