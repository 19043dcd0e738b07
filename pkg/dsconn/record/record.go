// Package record implements the Record Engine (spec §4.F): per-name shared, versioned
// JSON documents kept in sync with the server via CREATEORREAD/READ/UPDATE/PATCH/DELETE/
// UNSUBSCRIBE, with local path-scoped change subscriptions.
//
// The public/overload-shaped surface the source exposes (subscribe(cb), subscribe(path,
// cb), subscribe(path, cb, triggerNow)) becomes named methods: SubscribeAll for the whole
// document, and Subscribe, SubscribePath and SubscribePathTriggerNow for one path (the
// first two delegate to SubscribePathTriggerNow), and the mixed "string key or wildcard sentinel" subscriber map becomes two
// explicit containers — paths and wildcard — per §9's design notes.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tsarna/go-structdiff"
	"go.uber.org/zap"

	"github.com/tsarna/dsconn/pkg/dsconn"
	"github.com/tsarna/dsconn/pkg/dsconn/codec"
	"github.com/tsarna/dsconn/pkg/dsconn/jsonpath"
	"github.com/tsarna/dsconn/pkg/dsconn/timer"
)

// Sender is the Connection Core capability the Record Engine needs: enqueue one RECORD
// message for delivery on the current session. Engine never talks to the socket directly.
type Sender interface {
	Send(msg dsconn.Message) error
}

// SubscribeFunc receives the current value at a subscribed path.
type SubscribeFunc func(value any)

// ErrorFunc receives a record-scoped error (§7: "Record errors surface on the specific
// Record instance").
type ErrorFunc func(kind ErrorKind, err error)

// ErrorKind classifies an error delivered to a Record's OnError callbacks.
type ErrorKind int

const (
	ErrorKindAckTimeout ErrorKind = iota
	ErrorKindResponseTimeout
	ErrorKindVersionMismatch
	ErrorKindDeleteTimeout
	ErrorKindNotReady
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindAckTimeout:
		return "ACK_TIMEOUT"
	case ErrorKindResponseTimeout:
		return "RESPONSE_TIMEOUT"
	case ErrorKindVersionMismatch:
		return "VERSION_MISMATCH"
	case ErrorKindDeleteTimeout:
		return "RECORD_DELETE_TIMEOUT"
	case ErrorKindNotReady:
		return "RECORD_NOT_READY"
	default:
		return "UNKNOWN"
	}
}

// Config bundles the per-record deadlines the Engine arms on CreateOrRead/Delete (spec §6
// WithRecordReadAckTimeout/WithRecordReadTimeout/WithRecordDeleteTimeout).
type Config struct {
	ReadAckTimeout time.Duration
	ReadTimeout    time.Duration
	DeleteTimeout  time.Duration
}

// DefaultConfig returns timeouts generous enough not to misfire on a live connection, but
// short enough to surface a genuinely wedged record in reasonable time.
func DefaultConfig() Config {
	return Config{
		ReadAckTimeout: 5 * time.Second,
		ReadTimeout:    15 * time.Second,
		DeleteTimeout:  15 * time.Second,
	}
}

// Engine owns the set of Records live on one Connection Core session. At most one Record
// exists per name (spec §4.F).
type Engine struct {
	logger *zap.Logger
	sender Sender
	timers *timer.Service
	cfg    Config

	mu      sync.Mutex
	records map[string]*Record
}

// NewEngine constructs a Record Engine. sender and timers must be wired before any Record
// method that sends a message or arms a deadline is called.
func NewEngine(logger *zap.Logger, sender Sender, timers *timer.Service, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:  logger,
		sender:  sender,
		timers:  timers,
		cfg:     cfg,
		records: make(map[string]*Record),
	}
}

// GetRecord returns the existing Record for name, or creates one: a fresh Record sends
// CREATEORREAD(name) and arms the ReadAckTimeout/ReadTimeout deadlines (spec §4.F).
func (e *Engine) GetRecord(name string) *Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.records[name]; ok {
		return r
	}

	r := newRecord(name, e)
	e.records[name] = r
	r.create()
	return r
}

// HandleMessage routes one decoded RECORD message to the record it names. Unknown names
// (a READ/UPDATE for a record this session never asked for) are logged and dropped — the
// server should never do this, but the Connection Core must not treat it as fatal.
func (e *Engine) HandleMessage(msg dsconn.Message) {
	e.mu.Lock()
	r, ok := e.records[msg.Name]
	e.mu.Unlock()

	if !ok {
		e.logger.Warn("record: message for unknown record", zap.String("name", msg.Name), zap.String("action", string(msg.Action)))
		return
	}

	r.handleMessage(msg)
}

// forget removes name from the live set once a Record has fully discarded or deleted
// itself. Called only from the Record's own goroutine-safe methods.
func (e *Engine) forget(name string) {
	e.mu.Lock()
	delete(e.records, name)
	e.mu.Unlock()
}

// pathSubs holds the callbacks registered for one path (or the wildcard).
type pathSubs struct {
	callbacks []SubscribeFunc
}

// Record is one shared, versioned document kept in sync with the server.
type Record struct {
	name   string
	engine *Engine

	mu          sync.Mutex
	version     int
	data        any
	isReady     bool
	destroyed   bool
	readAckH    timer.Handle
	readH       timer.Handle
	deleteH     timer.Handle
	unsubWaitCh chan struct{}

	paths    map[string]*pathSubs
	wildcard *pathSubs

	readyCbs   []func()
	errorCbs   []ErrorFunc
	deletedCbs []func()
}

func newRecord(name string, engine *Engine) *Record {
	return &Record{
		name:   name,
		engine: engine,
		paths:  make(map[string]*pathSubs),
	}
}

// Name returns the record's name.
func (r *Record) Name() string { return r.name }

func (r *Record) create() {
	r.mu.Lock()
	ackH, err := r.engine.timers.Schedule("record:"+r.name+":ack", r.engine.cfg.ReadAckTimeout, func() {
		r.onAckTimeout()
	})
	if err != nil {
		r.engine.logger.Error("record: schedule ack timeout", zap.String("name", r.name), zap.Error(err))
	}
	readH, err := r.engine.timers.Schedule("record:"+r.name+":read", r.engine.cfg.ReadTimeout, func() {
		r.onReadTimeout()
	})
	if err != nil {
		r.engine.logger.Error("record: schedule read timeout", zap.String("name", r.name), zap.Error(err))
	}
	r.readAckH = ackH
	r.readH = readH
	r.mu.Unlock()

	if err := r.engine.sender.Send(dsconn.Message{Topic: dsconn.TopicRecord, Action: dsconn.ActionCreateOrRead, Name: r.name}); err != nil {
		r.engine.logger.Error("record: send CREATEORREAD", zap.String("name", r.name), zap.Error(err))
	}
}

func (r *Record) onAckTimeout() {
	r.emitError(ErrorKindAckTimeout, fmt.Errorf("record %q: %w", r.name, dsconn.ErrAckTimeout))
}

func (r *Record) onReadTimeout() {
	r.emitError(ErrorKindResponseTimeout, fmt.Errorf("record %q: %w", r.name, dsconn.ErrResponseTimeout))
}

// Get returns a deep copy of the value at path (dotted/bracketed, as in jsonpath.Parse), or
// the whole document if path is empty. The copy is produced by a JSON marshal/unmarshal
// round-trip (§9) so the caller cannot corrupt the record's internal state by mutating the
// returned value in place.
func (r *Record) Get(path ...string) any {
	r.mu.Lock()
	data := r.data
	r.mu.Unlock()

	value := data
	if len(path) > 0 && path[0] != "" {
		p, err := jsonpath.Parse(path[0])
		if err != nil {
			r.engine.logger.Warn("record: Get invalid path", zap.String("name", r.name), zap.String("path", path[0]), zap.Error(err))
			return nil
		}
		v, ok := p.Get(data)
		if !ok {
			return nil
		}
		value = v
	}

	return deepCopy(value)
}

// SetData replaces the whole document, equivalent to Set("", data).
func (r *Record) SetData(data any) {
	r.set("", data)
}

// Set replaces the value at path with data. Called only while isReady; otherwise it emits a
// record error and does nothing (spec §4.F).
func (r *Record) Set(path string, data any) {
	r.set(path, data)
}

func (r *Record) set(path string, value any) {
	r.mu.Lock()
	if !r.isReady || r.destroyed {
		r.mu.Unlock()
		r.emitError(ErrorKindNotReady, fmt.Errorf("record %q: %w", r.name, dsconn.ErrRecordNotReady))
		return
	}

	var p *jsonpath.Path
	var err error
	if path != "" {
		p, err = jsonpath.Parse(path)
		if err != nil {
			r.mu.Unlock()
			r.engine.logger.Warn("record: Set invalid path", zap.String("name", r.name), zap.String("path", path), zap.Error(err))
			return
		}
	}

	var current any
	if p != nil {
		current, _ = p.Get(r.data)
	} else {
		current = r.data
	}

	if valuesEqual(current, value) {
		r.mu.Unlock()
		return
	}

	snapshots := r.beginChangeLocked()

	var newData any
	if p != nil {
		newData, err = p.Set(r.data, value)
	} else {
		newData = value
	}
	if err != nil {
		r.mu.Unlock()
		r.engine.logger.Error("record: apply local set", zap.String("name", r.name), zap.String("path", path), zap.Error(err))
		return
	}

	r.data = newData
	r.version++
	version := r.version
	data := r.data
	name := r.name
	r.mu.Unlock()

	r.completeChange(snapshots)

	var msg dsconn.Message
	if p == nil {
		typedData, encErr := codec.EncodeTyped(data)
		if encErr != nil {
			r.engine.logger.Error("record: encode update value", zap.String("name", r.name), zap.Error(encErr))
			return
		}
		msg = dsconn.Message{Topic: dsconn.TopicRecord, Action: dsconn.ActionUpdate, Name: name, Data: []string{strconv.Itoa(version), typedData}}
	} else {
		typedValue, encErr := codec.EncodeTyped(value)
		if encErr != nil {
			r.engine.logger.Error("record: encode patch value", zap.String("name", r.name), zap.Error(encErr))
			return
		}
		msg = dsconn.Message{Topic: dsconn.TopicRecord, Action: dsconn.ActionPatch, Name: name, Data: []string{strconv.Itoa(version), path, typedValue}}
	}

	if err := r.engine.sender.Send(msg); err != nil {
		r.engine.logger.Error("record: send update/patch", zap.String("name", r.name), zap.Error(err))
	}
}

// SubscribeAll registers callback for the whole document (the wildcard subscription).
func (r *Record) SubscribeAll(callback SubscribeFunc, triggerNow bool) {
	r.mu.Lock()
	if r.wildcard == nil {
		r.wildcard = &pathSubs{}
	}
	r.wildcard.callbacks = append(r.wildcard.callbacks, callback)
	ready := r.isReady
	data := r.data
	r.mu.Unlock()

	if triggerNow && ready {
		callback(deepCopy(data))
	}
}

// Subscribe registers callback for path without triggering it against the current value.
func (r *Record) Subscribe(path string, callback SubscribeFunc) {
	r.SubscribePathTriggerNow(path, callback, false)
}

// SubscribePath is an alias of Subscribe kept for symmetry with SubscribePathTriggerNow.
func (r *Record) SubscribePath(path string, callback SubscribeFunc) {
	r.SubscribePathTriggerNow(path, callback, false)
}

// SubscribePathTriggerNow registers callback for path, invoking it immediately with the
// current value if triggerNow is true and the record isReady (spec §4.F).
func (r *Record) SubscribePathTriggerNow(path string, callback SubscribeFunc, triggerNow bool) {
	r.mu.Lock()
	subs, ok := r.paths[path]
	if !ok {
		subs = &pathSubs{}
		r.paths[path] = subs
	}
	subs.callbacks = append(subs.callbacks, callback)
	ready := r.isReady
	data := r.data
	r.mu.Unlock()

	if !triggerNow || !ready {
		return
	}

	value := data
	if path != "" {
		p, err := jsonpath.Parse(path)
		if err != nil {
			return
		}
		v, ok := p.Get(data)
		if !ok {
			return
		}
		value = v
	}
	callback(deepCopy(value))
}

// Unsubscribe removes callback from path's subscriber list. Purely local; no network
// traffic (spec §4.F).
func (r *Record) Unsubscribe(path string, callback SubscribeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.paths[path]
	if !ok {
		return
	}
	subs.callbacks = removeCallback(subs.callbacks, callback)
	if len(subs.callbacks) == 0 {
		delete(r.paths, path)
	}
}

// OnReady registers a callback invoked once, the first time the record becomes ready.
func (r *Record) OnReady(cb func()) {
	r.mu.Lock()
	ready := r.isReady
	if !ready {
		r.readyCbs = append(r.readyCbs, cb)
	}
	r.mu.Unlock()
	if ready {
		cb()
	}
}

// OnError registers a callback invoked for every record-scoped error.
func (r *Record) OnError(cb ErrorFunc) {
	r.mu.Lock()
	r.errorCbs = append(r.errorCbs, cb)
	r.mu.Unlock()
}

// OnDeleted registers a callback invoked once the record is confirmed deleted.
func (r *Record) OnDeleted(cb func()) {
	r.mu.Lock()
	r.deletedCbs = append(r.deletedCbs, cb)
	r.mu.Unlock()
}

// Discard sends UNSUBSCRIBE(name) and waits for its ack before tearing down local
// subscriber state and removing the record from the Engine, so a concurrent GetRecord(name)
// can't race the teardown and hand back a record that's about to be discarded out from
// under it.
func (r *Record) Discard() error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return fmt.Errorf("record %q: %w", r.name, dsconn.ErrRecordAlreadyDestroyed)
	}
	ch := make(chan struct{})
	r.unsubWaitCh = ch
	r.mu.Unlock()

	if err := r.engine.sender.Send(dsconn.Message{Topic: dsconn.TopicRecord, Action: dsconn.ActionUnsubscribe, Name: r.name}); err != nil {
		return fmt.Errorf("record %q: send unsubscribe: %w", r.name, err)
	}

	<-ch

	r.mu.Lock()
	r.destroyed = true
	r.paths = make(map[string]*pathSubs)
	r.wildcard = nil
	r.mu.Unlock()

	r.engine.forget(r.name)
	return nil
}

// Delete arms a DeleteTimeout deadline and sends DELETE(name). A DELETE message from the
// server for this record fires OnDeleted and destroys it; an ACK message is not treated as
// delete confirmation. Expiry emits ErrorKindDeleteTimeout (spec §4.F).
func (r *Record) Delete() error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return fmt.Errorf("record %q: %w", r.name, dsconn.ErrRecordAlreadyDestroyed)
	}
	h, err := r.engine.timers.Schedule("record:"+r.name+":delete", r.engine.cfg.DeleteTimeout, r.onDeleteTimeout)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("record %q: schedule delete timeout: %w", r.name, err)
	}
	r.deleteH = h
	r.mu.Unlock()

	if err := r.engine.sender.Send(dsconn.Message{Topic: dsconn.TopicRecord, Action: dsconn.ActionDelete, Name: r.name}); err != nil {
		return fmt.Errorf("record %q: send delete: %w", r.name, err)
	}
	return nil
}

func (r *Record) onDeleteTimeout() {
	r.emitError(ErrorKindDeleteTimeout, fmt.Errorf("record %q: %w", r.name, dsconn.ErrRecordDeleteTimeout))
}

// handleMessage applies one RECORD message decoded off the wire. Invoked by Engine from the
// Connection Core's single event-loop goroutine — no internal locking concern beyond
// protecting Record's own fields against concurrent public-API calls from user goroutines.
func (r *Record) handleMessage(msg dsconn.Message) {
	switch msg.Action {
	case dsconn.ActionRead:
		r.applyRead(msg)
	case dsconn.ActionUpdate:
		r.applyUpdate(msg)
	case dsconn.ActionPatch:
		r.applyPatch(msg)
	case dsconn.ActionAck:
		r.applyAck(msg)
	case dsconn.ActionDelete:
		r.applyDeleted()
	case dsconn.ActionError:
		r.emitError(ErrorKindResponseTimeout, fmt.Errorf("record %q: server error: %s", r.name, msg.ParsedData))
	default:
		r.engine.logger.Warn("record: unhandled action", zap.String("name", r.name), zap.String("action", string(msg.Action)))
	}
}

func (r *Record) applyRead(msg dsconn.Message) {
	if len(msg.Data) < 2 {
		r.engine.logger.Warn("record: malformed READ", zap.String("name", r.name))
		return
	}

	r.engine.timers.Cancel(r.readAckH)
	r.engine.timers.Cancel(r.readH)

	version, data, err := decodeVersionedData(msg.Data)
	if err != nil {
		r.engine.logger.Warn("record: decode READ", zap.String("name", r.name), zap.Error(err))
		return
	}

	r.mu.Lock()
	snapshots := r.beginChangeLocked()
	r.version = version
	r.data = data
	r.isReady = true
	cbs := r.readyCbs
	r.readyCbs = nil
	r.mu.Unlock()

	r.completeChange(snapshots)

	for _, cb := range cbs {
		cb()
	}
}

// applyUpdate and applyPatch implement the version-mismatch convergence policy of §4.F: a
// version that doesn't follow local+1 is reported as an error but still applied and still
// advances the local version, so a client that missed a message converges instead of
// wedging (§9 records this as the resolved Open Question, not a bug).
func (r *Record) applyUpdate(msg dsconn.Message) {
	if len(msg.Data) < 2 {
		r.engine.logger.Warn("record: malformed UPDATE", zap.String("name", r.name))
		return
	}

	version, data, err := decodeVersionedData(msg.Data)
	if err != nil {
		r.engine.logger.Warn("record: decode UPDATE", zap.String("name", r.name), zap.Error(err))
		return
	}

	r.mu.Lock()
	mismatch := version != r.version+1
	snapshots := r.beginChangeLocked()
	r.version = version
	r.data = data
	r.mu.Unlock()

	r.completeChange(snapshots)

	if mismatch {
		r.emitError(ErrorKindVersionMismatch, fmt.Errorf("record %q: %w", r.name, dsconn.ErrVersionExists))
	}
}

func (r *Record) applyPatch(msg dsconn.Message) {
	if len(msg.Data) < 3 {
		r.engine.logger.Warn("record: malformed PATCH", zap.String("name", r.name))
		return
	}

	version, err := decodeVersion(msg.Data[0])
	if err != nil {
		r.engine.logger.Warn("record: decode PATCH version", zap.String("name", r.name), zap.Error(err))
		return
	}
	path := msg.Data[1]
	value, err := codec.ConvertTyped(msg.Data[2])
	if err != nil {
		r.engine.logger.Warn("record: decode PATCH value", zap.String("name", r.name), zap.Error(err))
		return
	}

	p, err := jsonpath.Parse(path)
	if err != nil {
		r.engine.logger.Warn("record: PATCH invalid path", zap.String("name", r.name), zap.String("path", path), zap.Error(err))
		return
	}

	r.mu.Lock()
	mismatch := version != r.version+1
	snapshots := r.beginChangeLocked()
	newData, err := p.Set(r.data, value)
	if err != nil {
		r.mu.Unlock()
		r.engine.logger.Error("record: apply PATCH", zap.String("name", r.name), zap.Error(err))
		return
	}
	r.data = newData
	r.version = version
	r.mu.Unlock()

	r.completeChange(snapshots)

	if mismatch {
		r.emitError(ErrorKindVersionMismatch, fmt.Errorf("record %q: %w", r.name, dsconn.ErrVersionExists))
	}
}

func (r *Record) applyAck(msg dsconn.Message) {
	r.engine.timers.Cancel(r.readAckH)

	r.mu.Lock()
	ch := r.unsubWaitCh
	r.unsubWaitCh = nil
	r.mu.Unlock()

	if ch != nil {
		close(ch)
	}
}

func (r *Record) applyDeleted() {
	r.engine.timers.Cancel(r.deleteH)

	r.mu.Lock()
	r.destroyed = true
	cbs := r.deletedCbs
	r.deletedCbs = nil
	r.paths = make(map[string]*pathSubs)
	r.wildcard = nil
	r.mu.Unlock()

	r.engine.forget(r.name)

	for _, cb := range cbs {
		cb()
	}
}

func (r *Record) emitError(kind ErrorKind, err error) {
	r.mu.Lock()
	cbs := append([]ErrorFunc(nil), r.errorCbs...)
	r.mu.Unlock()

	if len(cbs) == 0 {
		r.engine.logger.Warn("record: unhandled error", zap.String("name", r.name), zap.String("kind", kind.String()), zap.Error(err))
		return
	}
	for _, cb := range cbs {
		cb(kind, err)
	}
}

// changeSnapshot pairs a path (or "" for the wildcard) with its value just before a mutation.
type changeSnapshot struct {
	path  string
	value any
}

// beginChangeLocked snapshots the current value for every subscribed path and the wildcard,
// per §4.F's path change notification algorithm. Caller must hold r.mu.
func (r *Record) beginChangeLocked() []changeSnapshot {
	var snapshots []changeSnapshot
	rootSeen := false

	for path := range r.paths {
		if path == "" {
			rootSeen = true
			snapshots = append(snapshots, changeSnapshot{path: "", value: deepCopy(r.data)})
			continue
		}
		p, err := jsonpath.Parse(path)
		var value any
		if err == nil {
			value, _ = p.Get(r.data)
		}
		snapshots = append(snapshots, changeSnapshot{path: path, value: deepCopy(value)})
	}

	if r.wildcard != nil && !rootSeen {
		snapshots = append(snapshots, changeSnapshot{path: "", value: deepCopy(r.data)})
	}

	return snapshots
}

// completeChange compares each snapshot against the post-mutation value and emits to
// exactly the subscribers whose path actually changed.
func (r *Record) completeChange(snapshots []changeSnapshot) {
	for _, snap := range snapshots {
		r.mu.Lock()
		var current any
		if snap.path == "" {
			current = r.data
		} else {
			p, err := jsonpath.Parse(snap.path)
			if err == nil {
				current, _ = p.Get(r.data)
			}
		}
		r.mu.Unlock()

		if valuesEqual(snap.value, current) {
			continue
		}

		if snap.path == "" {
			r.mu.Lock()
			wildcard := r.wildcard
			pathSubsForRoot := r.paths[""]
			r.mu.Unlock()
			value := deepCopy(current)
			if wildcard != nil {
				for _, cb := range wildcard.callbacks {
					cb(value)
				}
			}
			if pathSubsForRoot != nil {
				for _, cb := range pathSubsForRoot.callbacks {
					cb(value)
				}
			}
			continue
		}

		r.mu.Lock()
		subs := r.paths[snap.path]
		r.mu.Unlock()
		if subs == nil {
			continue
		}
		value := deepCopy(current)
		for _, cb := range subs.callbacks {
			cb(value)
		}
	}
}

// valuesEqual reports whether a and b are deep-equal, using go-structdiff's Diff to decide:
// an empty delta (nil, or a map/slice with no entries) means no change. The Engine only
// needs the equality this implies, not the delta itself, so a cheap no-op Set can be
// suppressed before it reaches the wire.
func valuesEqual(a, b any) bool {
	diff, err := structdiff.Diff(a, b)
	if err != nil {
		return false
	}
	return isEmptyDiff(diff)
}

func isEmptyDiff(diff any) bool {
	switch d := diff.(type) {
	case nil:
		return true
	case map[string]any:
		return len(d) == 0
	case []any:
		return len(d) == 0
	default:
		return false
	}
}

// deepCopy isolates a returned/emitted value from the record's internal state via a JSON
// marshal/unmarshal round-trip (§9), so a caller mutating a Get() result or a subscriber
// callback argument can never corrupt the Engine's own copy.
func deepCopy(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func decodeVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("record: malformed version %q: %w", s, err)
	}
	return v, nil
}

// decodeVersionedData decodes the common READ/UPDATE wire shape: data[0] is the decimal
// version, data[1] is the typed-scalar-encoded document (spec §4.A).
func decodeVersionedData(data []string) (int, any, error) {
	version, err := decodeVersion(data[0])
	if err != nil {
		return 0, nil, err
	}
	value, err := codec.ConvertTyped(data[1])
	if err != nil {
		return 0, nil, fmt.Errorf("record: decode data: %w", err)
	}
	return version, value, nil
}

func removeCallback(cbs []SubscribeFunc, target SubscribeFunc) []SubscribeFunc {
	out := cbs[:0]
	targetPtr := fmt.Sprintf("%p", target)
	for _, cb := range cbs {
		if fmt.Sprintf("%p", cb) == targetPtr {
			continue
		}
		out = append(out, cb)
	}
	return out
}
