package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/MrSnakeDoc/marksync/internal/collection"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/gate"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/realtime"
)

// session bundles everything scoped to one active identity.
// It is discarded as a whole when the identity changes.
type session struct {
	owner string
	items *collection.Collection
	gate  *gate.Gate

	// ctx outlives individual calls and is canceled when the session ends.
	ctx    context.Context
	cancel context.CancelFunc

	// guarded by Engine.mu
	refreshIssued  uint64
	refreshApplied uint64
	loading        int
}

func newSession(owner string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		owner:  owner,
		items:  collection.New(owner),
		gate:   gate.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Engine keeps one identity's bookmarks in sync with the remote store.
//
// All entry points may be called from any goroutine. The state mutex is
// never held across a gateway call or a watcher callback, so a refresh, an
// add, any number of deletes and incoming events can be outstanding at once.
// Operations capture the session they started in and drop their results if
// the identity changed meanwhile.
type Engine struct {
	gw  Gateway
	log logger.Logger
	sub *realtime.Subscriber

	// identityMu serializes SetIdentity so the subscription and the session
	// always switch together.
	identityMu sync.Mutex

	mu        sync.Mutex
	sess      *session
	lastErr   string
	watchers  map[uint64]func(State)
	nextWatch uint64
}

// New builds an engine on top of gw. No identity is active until SetIdentity.
func New(gw Gateway, opts ...Option) *Engine {
	o := options{topic: realtime.DefaultTopic}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}

	e := &Engine{
		gw:       gw,
		log:      o.logger,
		watchers: make(map[uint64]func(State)),
	}
	e.sub = realtime.New(gw, realtime.Config{
		Topic:    o.topic,
		Filter:   o.filter,
		Logger:   o.logger,
		OnStatus: func(realtime.Status) { e.notify() },
		OnResubscribe: func() {
			if s := e.current(); s != nil {
				e.log.Info("realtime recovered, re-syncing", logger.String("owner", s.owner))
				go e.refresh(s.ctx, s, false)
			}
		},
	})
	return e
}

// SetIdentity switches the active identity. An empty owner signs out.
// The previous session and its subscription are torn down before the new
// ones are created; the new session is then loaded with a full refresh.
func (e *Engine) SetIdentity(ctx context.Context, owner string) {
	e.identityMu.Lock()

	e.mu.Lock()
	if e.sess != nil && e.sess.owner == owner {
		e.mu.Unlock()
		e.identityMu.Unlock()
		return
	}
	old := e.sess
	var s *session
	if owner != "" {
		s = newSession(owner)
	}
	e.sess = s
	e.lastErr = ""
	e.mu.Unlock()

	if old != nil {
		old.cancel()
		e.log.Info("identity session closed", logger.String("owner", old.owner))
	}
	e.sub.Release()

	if s == nil {
		e.identityMu.Unlock()
		e.notify()
		return
	}

	e.log.Info("identity session started", logger.String("owner", owner))
	if err := e.sub.Acquire(ctx, owner, func(ev domain.ChangeEvent) {
		e.handleEvent(s, ev)
	}); err != nil {
		// The subscriber is now in the error state; the UI can refresh manually.
		e.log.Warn("realtime unavailable for session",
			logger.String("owner", owner),
			logger.Error(err))
	}
	e.identityMu.Unlock()
	e.notify()

	e.refresh(ctx, s, true)
}

// Close ends the active session, if any.
func (e *Engine) Close() {
	e.SetIdentity(context.Background(), "")
}

// Refresh replaces the local collection with the remote store's contents.
func (e *Engine) Refresh(ctx context.Context) {
	if s := e.current(); s != nil {
		e.refresh(ctx, s, true)
	}
}

// Add validates and inserts a bookmark. The local collection is not touched:
// the record shows up through its change event or the next refresh.
func (e *Engine) Add(ctx context.Context, d domain.Draft) {
	_ = e.Submit(ctx, d)
}

// Submit is Add for callers that need the outcome. State is updated exactly
// as by Add. domain.ErrNoIdentity and domain.ErrAddInFlight mean nothing was
// attempted and State is unchanged.
func (e *Engine) Submit(ctx context.Context, d domain.Draft) error {
	s := e.current()
	if s == nil {
		return domain.ErrNoIdentity
	}
	if !s.gate.BeginAdd() {
		e.log.Debug("add rejected, another add is in flight")
		return domain.ErrAddInFlight
	}
	defer func() {
		s.gate.EndAdd()
		e.notify()
	}()

	e.clearError(s)
	e.notify()

	clean, err := domain.ValidateDraft(d)
	if err != nil {
		e.fail(s, "add", err)
		return err
	}

	created, err := e.gw.Insert(ctx, s.owner, clean.Title, clean.URL)
	if err != nil {
		e.fail(s, "add", err)
		return err
	}

	e.log.Info("bookmark added",
		logger.String("owner", s.owner),
		logger.String("id", created.ID),
		logger.String("url", created.URL))
	return nil
}

// Remove deletes a bookmark optimistically. If the remote delete fails the
// collection is restored by a full re-sync, not by re-inserting the cached
// record, which may be stale.
func (e *Engine) Remove(ctx context.Context, id string) {
	s := e.current()
	if s == nil || id == "" {
		return
	}
	if !s.gate.BeginDelete(id) {
		e.log.Debug("remove rejected, already in flight", logger.String("id", id))
		return
	}
	defer func() {
		s.gate.EndDelete(id)
		e.notify()
	}()

	e.mu.Lock()
	if e.sess == s {
		e.lastErr = ""
	}
	s.items.RemoveByID(id)
	e.mu.Unlock()
	e.notify()

	if err := e.gw.Delete(ctx, id, s.owner); err != nil {
		e.fail(s, "remove", err)
		e.refresh(s.ctx, s, false)
		return
	}

	e.log.Info("bookmark removed",
		logger.String("owner", s.owner),
		logger.String("id", id))
}

// HandleEvent applies a change event to the active session.
// Subscriptions created by SetIdentity call this automatically.
func (e *Engine) HandleEvent(ev domain.ChangeEvent) {
	if s := e.current(); s != nil {
		e.handleEvent(s, ev)
	}
}

// State returns a snapshot of the observable state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Bookmarks: []domain.Bookmark{},
		Removing:  []string{},
		Error:     e.lastErr,
		Realtime:  e.sub.Status(),
	}
	if s := e.sess; s != nil {
		st.Identity = s.owner
		st.Bookmarks = s.items.Snapshot()
		st.Loading = s.loading > 0
		st.Adding = s.gate.Adding()
		st.Removing = s.gate.Deleting()
	}
	return st
}

// Watch registers fn to be called with a fresh State after every change.
// The returned function unregisters it.
func (e *Engine) Watch(fn func(State)) (cancel func()) {
	e.mu.Lock()
	e.nextWatch++
	id := e.nextWatch
	e.watchers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.watchers, id)
		e.mu.Unlock()
	}
}

func (e *Engine) refresh(ctx context.Context, s *session, clearErr bool) {
	e.mu.Lock()
	if e.sess != s {
		e.mu.Unlock()
		return
	}
	s.refreshIssued++
	seq := s.refreshIssued
	s.loading++
	if clearErr {
		e.lastErr = ""
	}
	e.mu.Unlock()
	e.notify()

	records, err := e.gw.FetchAll(ctx, s.owner)

	e.mu.Lock()
	s.loading--
	if e.sess != s {
		e.mu.Unlock()
		return
	}
	switch {
	case err != nil:
		e.lastErr = err.Error()
	case seq < s.refreshApplied:
		e.log.Debug("discarding stale refresh",
			logger.Uint64("seq", seq),
			logger.Uint64("applied", s.refreshApplied))
	default:
		s.refreshApplied = seq
		s.items.ReplaceAll(records)
	}
	e.mu.Unlock()

	if err != nil {
		e.log.Error("refresh failed", logger.String("owner", s.owner), logger.Error(err))
	} else {
		e.log.Debug("refresh done",
			logger.String("owner", s.owner),
			logger.Int("fetched", len(records)),
			logger.Int("local", s.items.Len()))
	}
	e.notify()
}

func (e *Engine) handleEvent(s *session, ev domain.ChangeEvent) {
	var changed, resync bool

	e.mu.Lock()
	if e.sess != s {
		e.mu.Unlock()
		e.log.Debug("dropping event for closed session", logger.String("kind", string(ev.Kind)))
		return
	}
	switch ev.Kind {
	case domain.EventInsert:
		if e.ownedLocked(s, ev.New) {
			changed = s.items.InsertIfAbsent(*ev.New)
		}
	case domain.EventUpdate:
		if e.ownedLocked(s, ev.New) {
			changed = s.items.UpdateIfPresent(*ev.New)
		}
	case domain.EventDelete:
		// The old payload may not carry an owner; membership decides.
		if id := ev.OldID(); id != "" {
			changed = s.items.RemoveByID(id)
		} else {
			resync = true
		}
	default:
		e.log.Warn("unknown change event kind", logger.String("kind", string(ev.Kind)))
	}
	e.mu.Unlock()

	if changed {
		e.notify()
	}
	if resync {
		e.log.Info("delete event without id, re-syncing", logger.String("owner", s.owner))
		e.refresh(s.ctx, s, false)
	}
}

// ownedLocked reports whether b belongs to the session's identity.
func (e *Engine) ownedLocked(s *session, b *domain.Bookmark) bool {
	if b == nil {
		return false
	}
	if b.Owner != s.owner {
		e.log.Debug("discarding event for another owner", logger.String("id", b.ID))
		return false
	}
	return true
}

func (e *Engine) current() *session {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sess
}

func (e *Engine) clearError(s *session) {
	e.mu.Lock()
	if e.sess == s {
		e.lastErr = ""
	}
	e.mu.Unlock()
}

func (e *Engine) fail(s *session, op string, err error) {
	e.mu.Lock()
	if e.sess == s {
		e.lastErr = err.Error()
	}
	e.mu.Unlock()

	if errors.Is(err, domain.ErrValidation) {
		e.log.Warn(op+" rejected", logger.String("owner", s.owner), logger.Error(err))
		return
	}
	e.log.Error(op+" failed", logger.String("owner", s.owner), logger.Error(err))
}

func (e *Engine) notify() {
	e.mu.Lock()
	if len(e.watchers) == 0 {
		e.mu.Unlock()
		return
	}
	fns := make([]func(State), 0, len(e.watchers))
	for _, fn := range e.watchers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	st := e.State()
	for _, fn := range fns {
		fn(st)
	}
}
