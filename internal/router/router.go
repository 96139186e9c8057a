// Package router binds one notification channel to one listener and turns
// inbound envelopes into fetch-by-id lookups and listener callbacks.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

// DefaultFetchTimeout bounds a single object-store fetch.
const DefaultFetchTimeout = 15 * time.Second

// FailureListener is the callback every listener must provide. It is the
// single error-reporting path of the router.
type FailureListener interface {
	OnFailure(message string)
}

// Config tunes a Router.
type Config struct {
	FetchTimeout time.Duration
}

type binding[L FailureListener] struct {
	channel  dining.Channel
	listener L
}

// Router is the state machine Unbound -> Bound -> Unbound. Envelopes are only
// processed while Bound, and only when addressed to the bound channel.
type Router[L FailureListener] struct {
	transport    dining.Transport
	store        dining.ObjectStore
	routes       map[dining.Action]Route[L]
	fetchTimeout time.Duration
	logger       *slog.Logger

	// mu serializes Register/Unregister; readers use current without locking.
	mu       sync.Mutex
	current  atomic.Pointer[binding[L]]
	inflight fetches
}

// fetches counts running fetches. Unlike a WaitGroup, start may be called
// while another goroutine is blocked in wait.
type fetches struct {
	mu   sync.Mutex
	idle sync.Cond
	n    int
}

func (f *fetches) start() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *fetches) done() {
	f.mu.Lock()
	f.n--
	if f.n == 0 {
		f.idle.Broadcast()
	}
	f.mu.Unlock()
}

func (f *fetches) wait() {
	f.mu.Lock()
	for f.n > 0 {
		f.idle.Wait()
	}
	f.mu.Unlock()
}

// New creates an unbound router. routes is copied.
func New[L FailureListener](
	cfg Config,
	transport dining.Transport,
	store dining.ObjectStore,
	routes map[dining.Action]Route[L],
	logger *slog.Logger,
) *Router[L] {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	table := make(map[dining.Action]Route[L], len(routes))
	for action, route := range routes {
		table[action] = route
	}
	r := &Router[L]{
		transport:    transport,
		store:        store,
		routes:       table,
		fetchTimeout: timeout,
		logger:       logger.With("component", "NotificationRouter"),
	}
	r.inflight.idle.L = &r.inflight.mu
	return r
}

// Register binds the router to the channel of identity and subscribes to it.
// A nil listener is logged and ignored. If the router is bound to another
// channel, that subscription is torn down first.
func (r *Router[L]) Register(ctx context.Context, identity dining.Identity, listener L) error {
	channel, err := dining.ChannelFor(identity)
	if err != nil {
		return err
	}
	if isNil(listener) {
		r.logger.Warn("Register called without a listener; ignoring", "channel", channel)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old := r.current.Load(); old != nil {
		if old.channel == channel {
			if !sameListener(old.listener, listener) {
				r.current.Store(&binding[L]{channel: channel, listener: listener})
				r.logger.Debug("Listener replaced on bound channel", "channel", channel)
			}
			return nil
		}
		r.current.Store(nil)
		if err := r.transport.Unsubscribe(ctx, old.channel); err != nil {
			r.logger.Warn("Failed to unsubscribe previous channel", "channel", old.channel, "err", err)
		}
	}

	if err := r.transport.Subscribe(ctx, channel, r.Deliver); err != nil {
		return fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}
	r.current.Store(&binding[L]{channel: channel, listener: listener})
	r.logger.Info("Router bound", "channel", channel)
	return nil
}

// Unregister clears the binding and unsubscribes. Safe to call repeatedly.
// In-flight fetches are not cancelled; their completions are suppressed.
func (r *Router[L]) Unregister(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Swap(nil)
	if old == nil {
		return nil
	}
	if err := r.transport.Unsubscribe(ctx, old.channel); err != nil {
		return fmt.Errorf("failed to unsubscribe from channel %s: %w", old.channel, err)
	}
	r.logger.Info("Router unbound", "channel", old.channel)
	return nil
}

// Channel returns the bound channel, if any.
func (r *Router[L]) Channel() (dining.Channel, bool) {
	b := r.current.Load()
	if b == nil {
		return "", false
	}
	return b.channel, true
}

// Deliver is the transport-facing entry point. Payloads whose outer JSON
// cannot be decoded carry no usable channel and are dropped.
func (r *Router[L]) Deliver(ctx context.Context, payload []byte) {
	env, err := dining.DecodeEnvelope(payload)
	if err != nil {
		r.logger.Warn("Dropping undecodable envelope", "err", err)
		return
	}
	r.OnEnvelopeReceived(ctx, env)
}

// OnEnvelopeReceived validates env against the current binding and starts the
// matching fetch. It never waits for the fetch.
func (r *Router[L]) OnEnvelopeReceived(ctx context.Context, env *dining.Envelope) {
	b := r.current.Load()
	if b == nil || env == nil || env.Channel == "" {
		r.logger.Debug("Dropping envelope: router unbound or envelope has no channel")
		return
	}
	if env.Channel != b.channel {
		r.logger.Debug("Dropping envelope for another channel", "channel", env.Channel, "bound", b.channel)
		return
	}

	route, ok := r.routes[env.Action]
	if !ok {
		r.logger.Debug("Ignoring unknown action", "action", env.Action)
		return
	}

	objectID, err := env.ObjectID()
	if err != nil {
		r.logger.Warn("Malformed envelope", "action", env.Action, "err", err)
		b.listener.OnFailure(err.Error())
		return
	}

	r.inflight.start()
	go r.complete(context.WithoutCancel(ctx), b, route, env, objectID)
}

func (r *Router[L]) complete(ctx context.Context, b *binding[L], route Route[L], env *dining.Envelope, objectID string) {
	defer r.inflight.done()

	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	deliver, err := route(ctx, r.store, env, objectID)

	if r.current.Load() != b {
		r.logger.Debug("Binding changed while fetching; dropping completion", "action", env.Action, "obj_id", objectID)
		return
	}
	if err != nil {
		r.logger.Error("Envelope handling failed", "action", env.Action, "obj_id", objectID, "err", err)
		b.listener.OnFailure(err.Error())
		return
	}
	deliver(b.listener)
}

// Notify publishes action with attrs to the channel of target. The sender
// field carries the router's own channel when bound. Objects referenced by
// attrs must already be saved.
func (r *Router[L]) Notify(ctx context.Context, action dining.Action, attrs map[string]string, target dining.Identity) error {
	if action == "" {
		return fmt.Errorf("%w: action is empty", dining.ErrInvalidArgument)
	}
	channel, err := dining.ChannelFor(target)
	if err != nil {
		return err
	}

	var sender dining.Channel
	if b := r.current.Load(); b != nil {
		sender = b.channel
	}

	env, err := dining.NewEnvelope(channel, action, attrs, sender)
	if err != nil {
		return err
	}
	payload, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := r.transport.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", action.Short(), channel, err)
	}
	r.logger.Debug("Envelope published", "action", action, "channel", channel)
	return nil
}

// Wait blocks until no fetch is running. It may be called while envelopes
// are still arriving; it then returns at the first moment the router is idle.
func (r *Router[L]) Wait() {
	r.inflight.wait()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func sameListener(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
