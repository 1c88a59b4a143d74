// Package autosave persists a mutated profile document after edits settle,
// without the editor invoking save on every keystroke.
//
// Each editing session owns one Coordinator. The coordinator keeps the
// fingerprint of the last successfully persisted snapshot, restarts a
// debounce timer on every observed change, and serializes persist calls so
// at most one is in flight per document.
package autosave

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zipcard/zipcard"
)

// DefaultDelay is the general debounce interval. The profile editor uses
// the shorter EditorDelay.
const (
	DefaultDelay = 600 * time.Millisecond
	EditorDelay  = 300 * time.Millisecond
)

// PersistFunc writes the snapshot to durable storage.
type PersistFunc func(ctx context.Context, doc zipcard.ProfileDocument) error

type Option func(*Coordinator)

func WithDelay(delay time.Duration) Option {
	return func(c *Coordinator) {
		if delay > 0 {
			c.delay = delay
		}
	}
}

type Coordinator struct {
	persist PersistFunc
	delay   time.Duration

	mu            sync.Mutex
	latest        zipcard.ProfileDocument
	latestFp      string
	lastPersisted string
	timer         *time.Timer
	closed        bool

	// held for the whole duration of a persist call; debounced fires and
	// manual flushes both take it, so persists never interleave
	flight sync.Mutex
}

func New(persist PersistFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		persist: persist,
		delay:   DefaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seed records doc as the already-persisted baseline without writing it.
// Used when the editor opens with a freshly loaded document.
func (c *Coordinator) Seed(doc zipcard.ProfileDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = doc
	c.latestFp = Fingerprint(doc)
	c.lastPersisted = c.latestFp
}

// Observe takes the current snapshot after a mutation. A snapshot whose
// fingerprint equals the persisted baseline cancels any pending save;
// anything else (re)starts the debounce timer, so only the last state of a
// burst gets persisted.
func (c *Coordinator) Observe(doc zipcard.ProfileDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.latest = doc
	c.latestFp = Fingerprint(doc)
	if c.latestFp == c.lastPersisted {
		c.stopTimerLocked()
		return
	}
	c.stopTimerLocked()
	c.timer = time.AfterFunc(c.delay, c.fire)
}

// Flush persists the latest snapshot immediately, bypassing the debounce.
// No-op when the baseline already matches.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
	return c.persistLatest(ctx)
}

// Close cancels any pending, not-yet-fired save. An already in-flight
// persist is not cancelled, but its resolution only touches coordinator
// state, nothing torn down with the editor.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) fire() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	if err := c.persistLatest(context.Background()); err != nil {
		logrus.WithError(err).Warnln("Autosave persist failed, will retry on next change.")
	}
}

// persistLatest is the single-flight save path. The baseline only advances
// on success, so a failed persist is retried with the then-latest state on
// the next debounce cycle.
func (c *Coordinator) persistLatest(ctx context.Context) error {
	c.flight.Lock()
	defer c.flight.Unlock()

	c.mu.Lock()
	snapshot := c.latest
	fp := c.latestFp
	if fp == "" || fp == c.lastPersisted {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.persist(ctx, snapshot); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastPersisted = fp
	c.mu.Unlock()
	return nil
}

// Fingerprint is the structural-equality key for no-op suppression:
// a deterministic serialization of the document.
func Fingerprint(doc zipcard.ProfileDocument) string {
	serialized, err := json.Marshal(doc)
	if err != nil {
		// ProfileDocument contains only marshalable fields
		panic(err)
	}
	return string(serialized)
}
