// Package session owns the signed-in user, the displayed item list and the
// open selection, and is the only place that changes them. Views call the
// controller's operations and render the snapshots it publishes.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/idilsaglam/recipebox/internal/apiclient"
	"github.com/idilsaglam/recipebox/internal/cache"
	"github.com/idilsaglam/recipebox/internal/config"
	"github.com/idilsaglam/recipebox/internal/docstore"
	"github.com/idilsaglam/recipebox/internal/identity"
	"github.com/idilsaglam/recipebox/internal/logging"
	"github.com/idilsaglam/recipebox/internal/model"
)

// Source says where the displayed list came from.
type Source int

const (
	SourceNone Source = iota
	SourceRemote
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceCache:
		return "cache"
	}
	return "none"
}

// State is a read-only snapshot of the controller.
type State struct {
	// Version grows with every published change; views drop older snapshots.
	Version uint64

	User *model.User

	// Kind is the type of the displayed list, or of the last list requested.
	Kind   model.Kind
	Items  []model.Item
	Source Source
	// Stale is set when a cached list is older than the configured max age.
	Stale bool
	// CachedAt is when the cached items were last confirmed against the store.
	CachedAt time.Time

	Selection   *model.Item
	Ingredients []model.Item
	// Resolving is true while ingredient references are still being fetched.
	Resolving bool

	Err *OpError
}

func (s State) SignedIn() bool { return s.User != nil }

func (s State) clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Selection != nil {
		it := *s.Selection
		it.Data.Ingredients = slices.Clone(it.Data.Ingredients)
		out.Selection = &it
	}
	out.Items = slices.Clone(s.Items)
	out.Ingredients = slices.Clone(s.Ingredients)
	return out
}

// Options tune a Controller. The zero value is usable: no cache, remote
// refresh, four concurrent ingredient fetches, no logging.
type Options struct {
	Cache cache.Cache
	// Refresh is config.RefreshRemote or config.RefreshCache.
	Refresh string
	// MaxAge marks cached lists stale; zero never does.
	MaxAge time.Duration
	// Concurrency bounds parallel ingredient fetches.
	Concurrency int
	Logger      *log.Logger
}

type Controller struct {
	store   docstore.Store
	ident   identity.Provider
	cache   cache.Cache
	refresh string
	maxAge  time.Duration
	limit   int
	log     *log.Logger
	now     func() time.Time

	mu    sync.Mutex
	state State
	// One generation counter per state slot. A result is applied only while
	// the token taken at the start of its operation is still current.
	listGen uint64
	selGen  uint64
	subs    map[int]chan State
	nextSub int

	// cacheMu keeps "apply fetched list, then write it through" in order
	// across concurrent fetches.
	cacheMu sync.Mutex
}

func New(store docstore.Store, ident identity.Provider, opts Options) *Controller {
	c := &Controller{
		store:   store,
		ident:   ident,
		cache:   opts.Cache,
		refresh: opts.Refresh,
		maxAge:  opts.MaxAge,
		limit:   opts.Concurrency,
		log:     opts.Logger,
		now:     time.Now,
		subs:    map[int]chan State{},
	}
	if c.refresh == "" {
		c.refresh = config.RefreshRemote
	}
	if c.limit <= 0 {
		c.limit = 4
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe delivers every published state. The channel holds only the
// latest snapshot, so a slow reader skips intermediate ones. Call cancel to
// stop and close the channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state.clone()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// publishLocked must run with c.mu held so subscribers see states in order.
func (c *Controller) publishLocked() {
	c.state.Version++
	if len(c.subs) == 0 {
		return
	}
	snap := c.state.clone()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (c *Controller) beginListLocked() uint64 {
	c.listGen++
	c.selGen++
	return c.listGen
}

func (c *Controller) beginSelectLocked() uint64 {
	c.listGen++
	c.selGen++
	return c.selGen
}

func (c *Controller) currentUserLocked() (model.User, bool) {
	if c.state.User == nil {
		return model.User{}, false
	}
	return *c.state.User, true
}

// failLocked records e in state when current is true, and returns e.
func (c *Controller) failLocked(current bool, e *OpError) *OpError {
	c.log.Warn("operation failed", "op", e.Op, "kind", e.Kind.String(), "err", e.Err)
	if current {
		c.state.Err = e
		c.publishLocked()
	}
	return e
}

func (c *Controller) fail(current func() bool, e *OpError) *OpError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failLocked(current(), e)
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, cache.ErrMiss):
		return NotFound
	case errors.Is(err, identity.ErrNotSignedIn), apiclient.StatusCode(err) == http.StatusUnauthorized:
		return AuthFailure
	}
	return RemoteFailure
}

func ownedBy(items []model.Item, uid string) []model.Item {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if it.OwnedBy(uid) {
			out = append(out, it)
		}
	}
	return out
}

// SignIn runs the provider's interactive flow. On failure the current user
// (if any) is kept and an AuthFailure is recorded.
func (c *Controller) SignIn(ctx context.Context) (model.User, error) {
	const op = "sign in"
	user, err := c.ident.SignIn(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return model.User{}, c.failLocked(true, opErr(op, AuthFailure, err))
	}
	if prev, ok := c.currentUserLocked(); !ok || prev.ID != user.ID {
		c.resetDisplayLocked()
	}
	c.state.User = &user
	c.state.Err = nil
	c.log.Info("signed in", "user", user.ID)
	c.publishLocked()
	return user, nil
}

// SignOut ends the provider session and clears user, list and selection
// unconditionally. A provider failure is still returned.
func (c *Controller) SignOut(ctx context.Context) error {
	const op = "sign out"
	err := c.ident.SignOut(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetDisplayLocked()
	c.state = State{Version: c.state.Version}
	c.publishLocked()
	if err != nil {
		e := opErr(op, classify(err), err)
		c.log.Warn("sign-out incomplete", "err", err)
		return e
	}
	c.log.Info("signed out")
	return nil
}

// Resume adopts a persisted identity without the interactive flow.
func (c *Controller) Resume(ctx context.Context) (model.User, bool) {
	user, ok := c.ident.Resume(ctx)
	if !ok {
		return model.User{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, had := c.currentUserLocked(); !had || prev.ID != user.ID {
		c.resetDisplayLocked()
	}
	c.state.User = &user
	c.log.Debug("session resumed", "user", user.ID)
	c.publishLocked()
	return user, true
}

// resetDisplayLocked invalidates in-flight results and empties both slots.
func (c *Controller) resetDisplayLocked() {
	c.listGen++
	c.selGen++
	c.state.Items = nil
	c.state.Kind = 0
	c.state.Source = SourceNone
	c.state.Stale = false
	c.state.CachedAt = time.Time{}
	c.state.Selection = nil
	c.state.Ingredients = nil
	c.state.Resolving = false
}

// FetchItems lists kind from the store and displays the user's items. The
// selection is cleared and the result is written through to the cache.
func (c *Controller) FetchItems(ctx context.Context, kind model.Kind) ([]model.Item, error) {
	const op = "fetch"
	c.mu.Lock()
	tok := c.beginListLocked()
	user, ok := c.currentUserLocked()
	if !ok {
		c.state.Kind = kind
		c.state.Items = nil
		c.state.Source = SourceNone
		c.state.Selection = nil
		c.state.Ingredients = nil
		c.state.Resolving = false
		err := c.failLocked(true, opErr(op, AuthFailure, identity.ErrNotSignedIn))
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()
	current := func() bool { return tok == c.listGen }

	all, err := c.store.List(ctx, kind)
	if err != nil {
		return nil, c.fail(current, opErr(op, classify(err), err))
	}
	items := ownedBy(all, user.ID)

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.mu.Lock()
	if !current() {
		c.mu.Unlock()
		c.log.Debug("fetch superseded", "kind", kind.Collection())
		return nil, ErrSuperseded
	}
	c.state.Kind = kind
	c.state.Items = items
	c.state.Source = SourceRemote
	c.state.Stale = false
	c.state.CachedAt = time.Time{}
	c.state.Selection = nil
	c.state.Ingredients = nil
	c.state.Resolving = false
	c.state.Err = nil
	c.publishLocked()
	c.mu.Unlock()

	c.log.Debug("fetched", "kind", kind.Collection(), "total", len(all), "owned", len(items))
	c.writeThrough(cache.Snapshot{Kind: kind, Owner: user.ID, VerifiedAt: c.now().UTC(), Items: items})
	return slices.Clone(items), nil
}

// writeThrough mirrors a list to the cache. Cache errors are logged only.
func (c *Controller) writeThrough(snap cache.Snapshot) {
	if c.cache == nil {
		return
	}
	snap.WrittenAt = c.now().UTC()
	changed, err := c.cache.Write(snap)
	if err != nil {
		c.log.Warn("cache write failed", "kind", snap.Kind.Collection(), "err", err)
		return
	}
	if changed {
		c.log.Debug("cache updated", "kind", snap.Kind.Collection(), "items", len(snap.Items))
	}
}

// SelectItem opens (kind, id) and resolves its ingredient references
// concurrently. Resolved ingredients accumulate in reference order and each
// partial set is published as it grows.
func (c *Controller) SelectItem(ctx context.Context, id string, kind model.Kind) (model.Item, error) {
	const op = "select"
	c.mu.Lock()
	tok := c.beginSelectLocked()
	user, ok := c.currentUserLocked()
	if !ok {
		err := c.failLocked(true, opErr(op, AuthFailure, identity.ErrNotSignedIn))
		c.mu.Unlock()
		return model.Item{}, err
	}
	c.mu.Unlock()
	current := func() bool { return tok == c.selGen }

	it, err := c.store.Get(ctx, kind, id)
	if err != nil {
		return model.Item{}, c.fail(current, opErr(op, classify(err), err))
	}
	if !it.OwnedBy(user.ID) {
		err := fmt.Errorf("%s: %w", model.Item{Kind: kind, ID: id}.Key(), docstore.ErrNotFound)
		return model.Item{}, c.fail(current, opErr(op, NotFound, err))
	}
	it.Kind = kind
	refs := slices.Clone(it.Data.Ingredients)

	c.mu.Lock()
	if !current() {
		c.mu.Unlock()
		c.log.Debug("select superseded", "key", it.Key())
		return model.Item{}, ErrSuperseded
	}
	sel := it
	c.state.Items = nil
	c.state.Source = SourceNone
	c.state.Stale = false
	c.state.Selection = &sel
	c.state.Ingredients = nil
	c.state.Resolving = len(refs) > 0
	c.state.Err = nil
	c.publishLocked()
	c.mu.Unlock()

	if len(refs) == 0 {
		return it, nil
	}
	if err := c.resolveIngredients(ctx, tok, user.ID, refs); err != nil {
		return it, err
	}
	return it, nil
}

func (c *Controller) resolveIngredients(ctx context.Context, tok uint64, uid string, refs []string) error {
	const op = "resolve ingredients"
	current := func() bool { return tok == c.selGen }
	// Guarded by c.mu; one slot per reference keeps reference order.
	resolved := make([]*model.Item, len(refs))

	var g errgroup.Group
	g.SetLimit(c.limit)
	for i, ref := range refs {
		g.Go(func() error {
			ing, err := c.store.Get(ctx, model.KindIngredient, ref)
			switch {
			case errors.Is(err, docstore.ErrNotFound):
				c.log.Warn("ingredient not found", "id", ref)
				return nil
			case err != nil:
				return fmt.Errorf("ingredient %s: %w", ref, err)
			case !ing.OwnedBy(uid):
				c.log.Warn("ingredient not owned by user", "id", ref)
				return nil
			}
			ing.Kind = model.KindIngredient

			c.mu.Lock()
			defer c.mu.Unlock()
			if !current() {
				return nil
			}
			resolved[i] = &ing
			acc := make([]model.Item, 0, len(refs))
			for _, r := range resolved {
				if r != nil {
					acc = append(acc, *r)
				}
			}
			c.state.Ingredients = acc
			c.publishLocked()
			return nil
		})
	}
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !current() {
		return ErrSuperseded
	}
	c.state.Resolving = false
	if err != nil {
		return c.failLocked(true, opErr(op, classify(err), err))
	}
	c.publishLocked()
	return nil
}

// CloseSelection drops the open item without touching the store.
func (c *Controller) CloseSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selGen++
	c.state.Selection = nil
	c.state.Ingredients = nil
	c.state.Resolving = false
	c.publishLocked()
}

func (c *Controller) clearSelectionLocked() {
	c.selGen++
	if c.state.Selection == nil && !c.state.Resolving {
		return
	}
	c.state.Selection = nil
	c.state.Ingredients = nil
	c.state.Resolving = false
	c.publishLocked()
}

// CreateItem stores a new document owned by the user, then refreshes the
// list of that kind.
func (c *Controller) CreateItem(ctx context.Context, kind model.Kind, name, description string, ingredients ...string) (model.Item, error) {
	const op = "create"
	c.mu.Lock()
	c.clearSelectionLocked()
	user, ok := c.currentUserLocked()
	if !ok {
		err := c.failLocked(true, opErr(op, AuthFailure, identity.ErrNotSignedIn))
		c.mu.Unlock()
		return model.Item{}, err
	}
	c.mu.Unlock()

	data := model.Data{
		Name:        name,
		Description: description,
		Ingredients: slices.Clone(ingredients),
		CreatedBy:   user.ID,
	}
	id, err := c.store.Create(ctx, kind, data)
	if err != nil {
		return model.Item{}, c.fail(func() bool { return true }, opErr(op, classify(err), err))
	}
	created := model.Item{Kind: kind, ID: id, Data: data}
	c.log.Info("created", "key", created.Key(), "name", name)

	err = c.refreshAfter(ctx, kind, user.ID, func(items []model.Item) []model.Item {
		return append(items, created)
	})
	return created, err
}

// DeleteItem removes (kind, id), then refreshes the list of that kind. Only
// the user's own documents can be deleted; anything else is NotFound.
func (c *Controller) DeleteItem(ctx context.Context, id string, kind model.Kind) error {
	const op = "delete"
	c.mu.Lock()
	c.clearSelectionLocked()
	user, ok := c.currentUserLocked()
	if !ok {
		err := c.failLocked(true, opErr(op, AuthFailure, identity.ErrNotSignedIn))
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	always := func() bool { return true }

	it, err := c.store.Get(ctx, kind, id)
	if err != nil {
		return c.fail(always, opErr(op, classify(err), err))
	}
	if !it.OwnedBy(user.ID) {
		err := fmt.Errorf("%s: %w", it.Key(), docstore.ErrNotFound)
		return c.fail(always, opErr(op, NotFound, err))
	}
	if err := c.store.Delete(ctx, kind, id); err != nil {
		return c.fail(always, opErr(op, classify(err), err))
	}
	c.log.Info("deleted", "key", model.Item{Kind: kind, ID: id}.Key())

	return c.refreshAfter(ctx, kind, user.ID, func(items []model.Item) []model.Item {
		return slices.DeleteFunc(items, func(it model.Item) bool { return it.ID == id })
	})
}

// refreshAfter reloads the list after a mutation. In cache mode the cached
// snapshot is edited and persisted, then displayed; otherwise the list is
// fetched again. A refresh overtaken by a newer request is not an error.
func (c *Controller) refreshAfter(ctx context.Context, kind model.Kind, uid string, edit func([]model.Item) []model.Item) error {
	var err error
	if c.refresh == config.RefreshCache && c.cache != nil {
		// The read-modify-write holds cacheMu so concurrent edits all land.
		c.cacheMu.Lock()
		var (
			items    []model.Item
			verified time.Time
		)
		if snap, rerr := c.cache.Read(kind); rerr == nil && snap.Owner == uid {
			items, verified = snap.Items, snap.Fresh()
		} else if rerr != nil && !errors.Is(rerr, cache.ErrMiss) {
			c.log.Warn("cache read failed", "kind", kind.Collection(), "err", rerr)
		}
		c.writeThrough(cache.Snapshot{Kind: kind, Owner: uid, VerifiedAt: verified, Items: edit(items)})
		c.cacheMu.Unlock()
		_, err = c.RetrieveCached(kind)
	} else {
		_, err = c.FetchItems(ctx, kind)
	}
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// RetrieveCached displays the cached list of kind. A snapshot written for
// another user counts as absent.
func (c *Controller) RetrieveCached(kind model.Kind) ([]model.Item, error) {
	const op = "retrieve cached"
	c.mu.Lock()
	tok := c.beginListLocked()
	user, ok := c.currentUserLocked()
	if !ok {
		err := c.failLocked(true, opErr(op, AuthFailure, identity.ErrNotSignedIn))
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()
	current := func() bool { return tok == c.listGen }

	if c.cache == nil {
		return nil, c.fail(current, opErr(op, NotFound, cache.ErrMiss))
	}
	snap, err := c.cache.Read(kind)
	if err != nil {
		return nil, c.fail(current, opErr(op, classify(err), err))
	}
	if snap.Owner != user.ID {
		return nil, c.fail(current, opErr(op, NotFound, cache.ErrMiss))
	}
	items := ownedBy(snap.Items, user.ID)
	stale := snap.Stale(c.maxAge, c.now())

	c.mu.Lock()
	defer c.mu.Unlock()
	if !current() {
		return nil, ErrSuperseded
	}
	c.state.Kind = kind
	c.state.Items = items
	c.state.Source = SourceCache
	c.state.Stale = stale
	c.state.CachedAt = snap.Fresh()
	c.state.Selection = nil
	c.state.Ingredients = nil
	c.state.Resolving = false
	c.state.Err = nil
	c.publishLocked()
	if stale {
		c.log.Info("cached list is stale", "kind", kind.Collection(), "verified_at", snap.Fresh())
	}
	return slices.Clone(items), nil
}
