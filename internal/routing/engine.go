package routing

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/strato-bus/strato/internal/bus"
	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/route"
	"github.com/strato-bus/strato/internal/topic"
)

const (
	// ControlTopic carries administrative route mutations.
	ControlTopic = "_routing.control"

	// ControlResultTopic carries the engine's answer to each control
	// message. Rejections are published here too, never silently dropped.
	ControlResultTopic = "_routing.control.result"

	// engineSource identifies messages the engine itself publishes.
	engineSource = "_routing.engine"
)

// ErrRouteNotFound is returned by mutations addressing an unknown route id.
var ErrRouteNotFound = errors.New("route not found")

// Guard approves or rejects a control message before its operation applies.
// The guard sees the raw envelope (for source/header checks) and the decoded
// request. Without an installed guard the engine rejects every control
// message: remote reconfiguration is opt-in.
type Guard func(m *envelope.Message, req route.ControlRequest) bool

// Outcome records one route's result for a single evaluated message.
type Outcome struct {
	RouteID         string `json:"routeId"`
	RouteName       string `json:"routeName"`
	ActionsExecuted int    `json:"actionsExecuted"`
	Error           string `json:"error,omitempty"`
}

// Observer receives every evaluation result. The trace recorder implements
// this; evaluation correctness never depends on an observer being present.
type Observer interface {
	Observe(m *envelope.Message, matched []Outcome)
}

// entry pairs a route with its creation sequence, the tiebreak for equal
// Order values.
type entry struct {
	route route.Route
	seq   int
}

// Engine evaluates the route set against all bus traffic.
type Engine struct {
	bus      *bus.Bus
	log      *slog.Logger
	guard    Guard
	storage  Storage
	observer Observer
	ids      envelope.IDGenerator
	counters *bus.Counters

	enabled atomic.Bool

	mu       sync.Mutex
	routes   []*entry
	byID     map[string]*entry
	nextSeq  int
	fns      map[string]TransformFn
	handlers map[string]Handler

	unsubAll     func()
	unsubControl func()
	started      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithGuard installs the control-channel guard.
func WithGuard(g Guard) Option {
	return func(e *Engine) { e.guard = g }
}

// WithStorage installs a route persistence provider. Load runs at Start,
// Save after every successful mutation.
func WithStorage(s Storage) Option {
	return func(e *Engine) { e.storage = s }
}

// WithObserver installs an evaluation observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithIDGenerator replaces the route-id generator.
func WithIDGenerator(gen envelope.IDGenerator) Option {
	return func(e *Engine) { e.ids = gen }
}

// New creates an engine over the given bus. The engine shares the bus's
// counter set so one stats snapshot covers the whole pipeline. Call Start
// to begin evaluating traffic.
func New(b *bus.Bus, opts ...Option) *Engine {
	e := &Engine{
		bus:      b,
		log:      slog.Default(),
		ids:      envelope.UUIDv7Generator{},
		counters: b.Counters(),
		byID:     map[string]*entry{},
		fns:      map[string]TransformFn{},
		handlers: map[string]Handler{},
	}
	e.enabled.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start loads persisted routes and subscribes to bus traffic and the
// control topic. Idempotent once started.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	if e.storage != nil {
		loaded, err := e.storage.Load(ctx)
		if err != nil {
			return fmt.Errorf("load routes: %w", err)
		}
		for _, r := range loaded {
			if _, err := e.add(r); err != nil {
				return fmt.Errorf("load routes: %w", err)
			}
		}
	}

	unsubControl, err := e.bus.Subscribe([]string{ControlTopic}, e.onControl, bus.SubscribeOptions{})
	if err != nil {
		return fmt.Errorf("subscribe control topic: %w", err)
	}
	unsubAll, err := e.bus.Subscribe([]string{topic.Global}, e.onMessage, bus.SubscribeOptions{})
	if err != nil {
		unsubControl()
		return fmt.Errorf("subscribe all traffic: %w", err)
	}
	e.unsubControl = unsubControl
	e.unsubAll = unsubAll
	return nil
}

// Stop detaches the engine from the bus. Routes and registrations remain,
// so a stopped engine can be inspected but evaluates nothing.
func (e *Engine) Stop() {
	if e.unsubAll != nil {
		e.unsubAll()
	}
	if e.unsubControl != nil {
		e.unsubControl()
	}
}

// SetEnabled flips the engine-wide kill switch. Disabled, the engine stays
// subscribed but evaluates nothing.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

// Enabled reports the kill-switch state.
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// RegisterTransformFn registers a named transform function for map and
// custom transforms. Returns an unregister closure. Re-registering a name
// replaces the previous function.
func (e *Engine) RegisterTransformFn(name string, fn TransformFn) func() {
	e.mu.Lock()
	e.fns = withEntry(e.fns, name, fn)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		e.fns = withoutEntry(e.fns, name)
		e.mu.Unlock()
	}
}

// RegisterHandler registers a named CALL target. Returns an unregister
// closure.
func (e *Engine) RegisterHandler(name string, h Handler) func() {
	e.mu.Lock()
	e.handlers = withEntry(e.handlers, name, h)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		e.handlers = withoutEntry(e.handlers, name)
		e.mu.Unlock()
	}
}

// Registries are copy-on-write so evaluation can snapshot them without
// holding the lock across action execution.
func withEntry[V any](m map[string]V, k string, v V) map[string]V {
	out := make(map[string]V, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}

func withoutEntry[V any](m map[string]V, k string) map[string]V {
	out := make(map[string]V, len(m))
	for key, val := range m {
		if key != k {
			out[key] = val
		}
	}
	return out
}

// Add validates and inserts a route, assigning an id when the input has
// none. Returns the route id.
func (e *Engine) Add(ctx context.Context, r route.Route) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	id, err := e.add(r)
	if err != nil {
		return "", err
	}
	return id, e.save(ctx)
}

// add inserts without validation or persistence. Start uses it for loaded
// routes that were validated when first saved.
func (e *Engine) add(r route.Route) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.ID == "" {
		r.ID = e.ids.NewID()
	} else if _, exists := e.byID[r.ID]; exists {
		return "", fmt.Errorf("route %q already exists", r.ID)
	}
	en := &entry{route: r, seq: e.nextSeq}
	e.nextSeq++
	e.routes = append(e.routes, en)
	e.byID[r.ID] = en
	e.sortLocked()
	return r.ID, nil
}

// Update replaces the route body under an existing id. A body identical to
// the current one (by canonical hash) is a no-op and skips persistence.
func (e *Engine) Update(ctx context.Context, id string, r route.Route) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.ID = id

	e.mu.Lock()
	en, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("update %q: %w", id, ErrRouteNotFound)
	}
	oldHash, err1 := en.route.Hash()
	newHash, err2 := r.Hash()
	if err1 == nil && err2 == nil && oldHash == newHash {
		e.mu.Unlock()
		return nil
	}
	en.route = r
	e.sortLocked()
	e.mu.Unlock()
	return e.save(ctx)
}

// Remove deletes a route by id.
func (e *Engine) Remove(ctx context.Context, id string) error {
	e.mu.Lock()
	en, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("remove %q: %w", id, ErrRouteNotFound)
	}
	delete(e.byID, id)
	e.routes = slices.DeleteFunc(e.routes, func(x *entry) bool { return x == en })
	e.mu.Unlock()
	return e.save(ctx)
}

// Enable marks a route enabled.
func (e *Engine) Enable(ctx context.Context, id string) error {
	return e.setRouteEnabled(ctx, id, true)
}

// Disable marks a route disabled without removing it.
func (e *Engine) Disable(ctx context.Context, id string) error {
	return e.setRouteEnabled(ctx, id, false)
}

func (e *Engine) setRouteEnabled(ctx context.Context, id string, enabled bool) error {
	verb := "enable"
	if !enabled {
		verb = "disable"
	}
	e.mu.Lock()
	en, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%s %q: %w", verb, id, ErrRouteNotFound)
	}
	if en.route.Enabled == enabled {
		e.mu.Unlock()
		return nil
	}
	en.route.Enabled = enabled
	e.mu.Unlock()
	return e.save(ctx)
}

// Clear removes every route.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.routes = nil
	e.byID = map[string]*entry{}
	e.mu.Unlock()
	return e.save(ctx)
}

// List returns the routes in evaluation order as independent clones.
func (e *Engine) List() []route.Route {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]route.Route, 0, len(e.routes))
	for _, en := range e.routes {
		if clone, err := en.route.Clone(); err == nil {
			out = append(out, *clone)
		}
	}
	return out
}

// Get returns a clone of the route with the given id.
func (e *Engine) Get(id string) (route.Route, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.byID[id]
	if !ok {
		return route.Route{}, false
	}
	clone, err := en.route.Clone()
	if err != nil {
		return route.Route{}, false
	}
	return *clone, true
}

func (e *Engine) sortLocked() {
	slices.SortStableFunc(e.routes, func(a, b *entry) int {
		if c := cmp.Compare(a.route.Order, b.route.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

// save pushes the current route set to storage. Mutations are already
// applied when save runs; a failing provider surfaces the error but does
// not roll back.
func (e *Engine) save(ctx context.Context) error {
	if e.storage == nil {
		return nil
	}
	e.mu.Lock()
	routes := make([]route.Route, len(e.routes))
	for i, en := range e.routes {
		routes[i] = en.route
	}
	e.mu.Unlock()
	if err := e.storage.Save(ctx, routes); err != nil {
		return fmt.Errorf("save routes: %w", err)
	}
	return nil
}

// onMessage evaluates the route set against one message.
func (e *Engine) onMessage(m *envelope.Message) error {
	if !e.enabled.Load() {
		return nil
	}
	if m.Topic == ControlTopic || m.Topic == ControlResultTopic {
		return nil
	}

	e.counters.RoutesEvaluated.Add(1)

	doc, err := m.Document()
	if err != nil {
		// The bus already proved serializability at publish time.
		return fmt.Errorf("render document: %w", err)
	}

	e.mu.Lock()
	routes := make([]route.Route, 0, len(e.routes))
	for _, en := range e.routes {
		if en.route.Enabled {
			routes = append(routes, en.route)
		}
	}
	fns := e.fns
	handlers := e.handlers
	observer := e.observer
	e.mu.Unlock()

	var outcomes []Outcome
	for i := range routes {
		r := &routes[i]
		if !matches(r, m, doc) {
			continue
		}
		e.counters.RoutesMatched.Add(1)
		outcomes = append(outcomes, e.runRoute(r, m, doc, fns, handlers))
	}

	if observer != nil {
		observer.Observe(m, outcomes)
	}
	return nil
}

// runRoute applies the transform and executes the actions of one matched
// route, isolating its failures from the rest of the set.
func (e *Engine) runRoute(r *route.Route, m *envelope.Message, doc []byte, fns map[string]TransformFn, handlers map[string]Handler) Outcome {
	out := Outcome{RouteID: r.ID, RouteName: r.Name}

	working := m
	workingDoc := doc
	if r.Transform != nil {
		transformed, err := applyTransform(m, r.Transform, fns)
		if err != nil {
			e.routeError(r, -1, m.Topic, err)
			out.Error = err.Error()
			return out
		}
		tdoc, err := transformed.Document()
		if err != nil {
			e.routeError(r, -1, m.Topic, err)
			out.Error = err.Error()
			return out
		}
		working = transformed
		workingDoc = tdoc
	}

	for i, a := range r.Actions {
		err := e.execAction(a, m, working, workingDoc, handlers)
		e.counters.ActionsExecuted.Add(1)
		out.ActionsExecuted++
		if err != nil {
			e.routeError(r, i, m.Topic, err)
			out.Error = err.Error()
			break
		}
	}
	return out
}

// routeError counts, logs, and reports one route failure. actionIdx is -1
// for transform failures.
func (e *Engine) routeError(r *route.Route, actionIdx int, msgTopic string, err error) {
	e.counters.Errors.Add(1)
	e.log.Error("route failed",
		"route", r.ID, "name", r.Name, "action", actionIdx,
		"topic", msgTopic, "error", err)
	e.bus.NotifyError(bus.BusError{
		Code:    bus.CodeRouteActionError,
		Message: fmt.Sprintf("route %q action[%d]: %v", r.Name, actionIdx, err),
		Topic:   msgTopic,
		Err:     err,
	})
}

// matches applies the cheap equality checks first, then the predicate tree.
func matches(r *route.Route, m *envelope.Message, doc []byte) bool {
	if r.Match.Topic != "" && !topic.Match(m.Topic, r.Match.Topic) {
		return false
	}
	if r.Match.Source != "" && m.Source != r.Match.Source {
		return false
	}
	for k, v := range r.Match.Headers {
		if m.Headers[k] != v {
			return false
		}
	}
	if r.Match.Where != nil {
		return evalPredicate(doc, r.Match.Where)
	}
	return true
}

// onControl handles one administrative control message. Every outcome,
// including rejection, is published as a ControlResult so misconfiguration
// is visible immediately.
func (e *Engine) onControl(m *envelope.Message) error {
	var req route.ControlRequest
	decodeErr := decodeControl(m.Data, &req)
	result := route.ControlResult{Op: req.Op, RouteID: req.RouteID}

	switch {
	case decodeErr != nil:
		result.Error = fmt.Sprintf("malformed control payload: %v", decodeErr)
		e.rejectControl(m, result.Error)
	case e.guard == nil:
		result.Error = "control rejected: no guard installed"
		e.rejectControl(m, result.Error)
	case !e.guard(m, req):
		result.Error = "control rejected by guard"
		e.rejectControl(m, result.Error)
	default:
		if err := req.Validate(); err != nil {
			result.Error = err.Error()
		} else if err := e.applyControl(req, &result); err != nil {
			result.Error = err.Error()
		} else {
			result.OK = true
		}
	}

	return e.publishResult(m, result)
}

func decodeControl(data any, req *route.ControlRequest) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, req)
}

func (e *Engine) rejectControl(m *envelope.Message, reason string) {
	e.counters.Errors.Add(1)
	e.log.Warn("control message rejected", "source", m.Source, "reason", reason)
	e.bus.NotifyError(bus.BusError{
		Code:    bus.CodeControlRejected,
		Message: reason,
		Topic:   m.Topic,
		Source:  m.Source,
	})
}

func (e *Engine) applyControl(req route.ControlRequest, result *route.ControlResult) error {
	ctx := context.Background()
	switch req.Op {
	case route.ControlAdd:
		id, err := e.Add(ctx, *req.Route)
		if err != nil {
			return err
		}
		result.RouteID = id
		return nil
	case route.ControlUpdate:
		return e.Update(ctx, req.RouteID, *req.Route)
	case route.ControlRemove:
		return e.Remove(ctx, req.RouteID)
	case route.ControlEnable:
		return e.Enable(ctx, req.RouteID)
	case route.ControlDisable:
		return e.Disable(ctx, req.RouteID)
	case route.ControlClear:
		return e.Clear(ctx)
	default:
		return fmt.Errorf("unknown control op %q", req.Op)
	}
}

// publishResult answers the administrative caller: always on the shared
// result topic, and additionally on the request's replyTo so request/reply
// clients get their answer directly.
func (e *Engine) publishResult(req *envelope.Message, result route.ControlResult) error {
	out := &envelope.Message{
		Topic:         ControlResultTopic,
		Data:          result,
		Source:        engineSource,
		CorrelationID: req.CorrelationID,
	}
	if err := e.bus.Publish(out); err != nil {
		return err
	}
	if req.ReplyTo != "" {
		return e.bus.Publish(&envelope.Message{
			Topic:         req.ReplyTo,
			Data:          result,
			Source:        engineSource,
			CorrelationID: req.CorrelationID,
		})
	}
	return nil
}
