// Package simulator provides in-memory implementations of the engine's
// Radio, Timer, RNG and Storage contracts plus a scripted network server,
// used by the scenario tests and the loramac-sim binary. Time is virtual:
// sleeping advances the clock instantly.
package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	loramac "github.com/loraedge/loramac"
	"github.com/loraedge/loramac/internal/session"
)

// Clock is a virtual monotonic clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SleepUntil advances the virtual clock to t.
func (c *Clock) SleepUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
	return nil
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RNG is a deterministic linear-congruential generator.
type RNG struct {
	state uint32
}

// NewRNG returns a generator for the given seed.
func NewRNG(seed uint32) *RNG {
	if seed == 0 {
		seed = 1
	}
	return &RNG{state: seed}
}

// Uint32 returns the next pseudo-random value.
func (r *RNG) Uint32() uint32 {
	r.state = r.state*1664525 + 1013904223
	return r.state
}

// Storage is an in-memory key-value store.
type Storage struct {
	mu sync.Mutex
	m  map[string][]byte

	// FailWrites makes every Store call fail, for persistence-failure
	// scenarios. FailKeys fails writes for specific keys only.
	FailWrites bool
	FailKeys   map[string]bool
}

// NewStorage returns an empty store.
func NewStorage() *Storage {
	return &Storage{m: make(map[string][]byte)}
}

// Load implements the storage contract.
func (s *Storage) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[key]
	if !ok {
		return nil, errors.Wrap(session.ErrNotFound, key)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Store implements the storage contract.
func (s *Storage) Store(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites || s.FailKeys[key] {
		return errors.New("simulator: write failure injected")
	}
	b := make([]byte, len(value))
	copy(b, value)
	s.m[key] = b
	return nil
}

// Delete implements the storage contract.
func (s *Storage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// TXEvent records one transmission made by the device.
type TXEvent struct {
	Payload []byte
	Config  loramac.RFConfig
	TXEnd   time.Time
}

// ScheduledRX is a downlink the radio will deliver when the device opens a
// matching receive window.
type ScheduledRX struct {
	// At is the instant the frame starts; the window deadline must not
	// be earlier.
	At        time.Time
	Frequency uint32

	// SpreadFactor 0 matches any.
	SpreadFactor int

	Packet loramac.RXPacket
}

// Radio is a loopback radio driven by the virtual clock. A Handler plays
// the network server: it inspects every transmission and may schedule
// downlinks for the subsequent receive windows.
type Radio struct {
	Clock *Clock

	// Handler is invoked after each TX with the transmission event.
	Handler func(tx TXEvent) []ScheduledRX

	// TXAirtime is added to the clock for every transmission.
	TXAirtime time.Duration

	mu      sync.Mutex
	cfg     loramac.RFConfig
	pending []ScheduledRX

	// TXLog records every transmission.
	TXLog []TXEvent
}

// NewRadio returns a radio bound to the clock.
func NewRadio(clock *Clock) *Radio {
	return &Radio{Clock: clock, TXAirtime: 100 * time.Millisecond}
}

// SetConfig implements the radio contract.
func (r *Radio) SetConfig(cfg loramac.RFConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	return nil
}

// TX implements the radio contract.
func (r *Radio) TX(ctx context.Context, payload []byte) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	r.Clock.Advance(r.TXAirtime)
	txEnd := r.Clock.Now()

	b := make([]byte, len(payload))
	copy(b, payload)

	r.mu.Lock()
	ev := TXEvent{Payload: b, Config: r.cfg, TXEnd: txEnd}
	r.TXLog = append(r.TXLog, ev)
	handler := r.Handler
	r.mu.Unlock()

	if handler != nil {
		if rx := handler(ev); len(rx) > 0 {
			r.mu.Lock()
			r.pending = append(r.pending, rx...)
			r.mu.Unlock()
		}
	}
	return txEnd, nil
}

// RXSingle implements the radio contract: it delivers the first scheduled
// downlink that matches the armed configuration and starts before the
// deadline, advancing the clock accordingly.
func (r *Radio) RXSingle(ctx context.Context, deadline time.Time) (loramac.RXPacket, error) {
	if err := ctx.Err(); err != nil {
		return loramac.RXPacket{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Clock.Now()
	for i, rx := range r.pending {
		if rx.Frequency != r.cfg.Frequency {
			continue
		}
		if rx.SpreadFactor != 0 && rx.SpreadFactor != r.cfg.SpreadFactor {
			continue
		}
		if rx.At.After(deadline) || rx.At.Before(now.Add(-time.Second)) {
			continue
		}
		r.pending = append(r.pending[:i], r.pending[i+1:]...)
		if rx.At.After(now) {
			r.Clock.mu.Lock()
			r.Clock.now = rx.At
			r.Clock.mu.Unlock()
		}
		return rx.Packet, nil
	}

	if deadline.After(now) {
		r.Clock.mu.Lock()
		r.Clock.now = deadline
		r.Clock.mu.Unlock()
	}
	return loramac.RXPacket{}, loramac.ErrRXTimeout
}

// Sleep implements the radio contract.
func (r *Radio) Sleep() error {
	return nil
}

// TXCount returns the number of transmissions so far.
func (r *Radio) TXCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.TXLog)
}
