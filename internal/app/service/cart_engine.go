package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ikkim/storefront-cart/internal/app/model"
	"github.com/ikkim/storefront-cart/internal/app/repository"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
	"github.com/ikkim/storefront-cart/pkg/logger"
)

// State is the authentication state of a cart engine.
type State string

const (
	StateGuest          State = "guest"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
)

// DefaultOperationTimeout bounds remote calls when EngineConfig leaves it unset.
const DefaultOperationTimeout = 30 * time.Second

// RemoteCart is the server-side cart the engine reconciles against.
// *gateway.Client satisfies it.
type RemoteCart interface {
	GetCart(ctx context.Context) (*model.Cart, error)
	AddToCart(ctx context.Context, productID string, quantity int) (*model.Cart, error)
	UpdateQuantity(ctx context.Context, itemID string, quantity int) (*model.Cart, error)
	RemoveItem(ctx context.Context, itemID string) (*model.Cart, error)
	ClearCart(ctx context.Context) (*model.Cart, error)
}

// Snapshot is an immutable view of engine state. Cart must not be mutated.
type Snapshot struct {
	State   State
	User    *model.SessionUser
	Cart    *model.Cart
	Loading bool
	Err     error
	Version uint64
}

// Listener receives a snapshot after every state change, in Version order.
// Listeners run one at a time and must not call engine methods that change
// state.
type Listener func(Snapshot)

type EngineConfig struct {
	OperationTimeout time.Duration
	Now              func() time.Time
}

// CartEngine reconciles one session's cart between the local guest store and
// the remote storefront cart. Operations run one at a time in submission order.
type CartEngine struct {
	local   repository.GuestCartRepository
	remote  RemoteCart
	timeout time.Duration
	now     func() time.Time
	log     *logger.Logger

	// notifyMu orders notifications; it is taken before mu.
	notifyMu sync.Mutex

	mu           sync.Mutex
	state        State
	user         *model.SessionUser
	cart         *model.Cart
	loading      bool
	lastErr      error
	version      uint64
	listeners    map[uint64]Listener
	nextListener uint64
	queue        []*operation
	running      bool
}

func NewCartEngine(local repository.GuestCartRepository, remote RemoteCart, cfg EngineConfig) *CartEngine {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &CartEngine{
		local:     local,
		remote:    remote,
		timeout:   cfg.OperationTimeout,
		now:       cfg.Now,
		log:       logger.Component("cart_engine"),
		state:     StateGuest,
		listeners: make(map[uint64]Listener),
	}
	e.cart = local.Load(context.Background())
	return e
}

type opKind int

const (
	opAdd opKind = iota
	opUpdate
	opRemove
	opClear
	opRefresh
	opLogin
	opLogout
)

func (k opKind) String() string {
	switch k {
	case opAdd:
		return "add"
	case opUpdate:
		return "update"
	case opRemove:
		return "remove"
	case opClear:
		return "clear"
	case opRefresh:
		return "fetch"
	case opLogin:
		return "merge"
	case opLogout:
		return "logout"
	}
	return "unknown"
}

// isMutation reports whether a queued op of this kind is dropped by a clear.
func (k opKind) isMutation() bool {
	return k == opAdd || k == opUpdate || k == opRemove || k == opClear
}

type operation struct {
	kind     opKind
	ctx      context.Context
	product  model.Product
	lineID   string
	quantity int
	user     *model.SessionUser
	done     chan opResult
}

type opResult struct {
	cart  *model.Cart
	merge *MergeReport
	err   error
}

// AddToCart adds quantity of product. A zero quantity adds one.
func (e *CartEngine) AddToCart(ctx context.Context, product model.Product, quantity int) (*model.Cart, error) {
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return e.Cart(), apperrors.Validation("add", "quantity must be at least 1").WithProduct(product.ID)
	}
	if product.ID == "" {
		return e.Cart(), apperrors.Validation("add", "product id is required")
	}
	res := e.submit(ctx, &operation{kind: opAdd, product: product, quantity: quantity})
	return res.cart, res.err
}

// UpdateQuantity sets a line's quantity; quantity <= 0 removes the line.
func (e *CartEngine) UpdateQuantity(ctx context.Context, lineID string, quantity int) (*model.Cart, error) {
	if quantity <= 0 {
		return e.RemoveFromCart(ctx, lineID)
	}
	if lineID == "" {
		return e.Cart(), apperrors.Validation("update", "line id is required")
	}
	res := e.submit(ctx, &operation{kind: opUpdate, lineID: lineID, quantity: quantity})
	return res.cart, res.err
}

func (e *CartEngine) RemoveFromCart(ctx context.Context, lineID string) (*model.Cart, error) {
	if lineID == "" {
		return e.Cart(), apperrors.Validation("remove", "line id is required")
	}
	res := e.submit(ctx, &operation{kind: opRemove, lineID: lineID})
	return res.cart, res.err
}

// ClearCart empties the cart. Mutations still waiting in the queue are
// dropped and complete with ErrOperationCancelled.
func (e *CartEngine) ClearCart(ctx context.Context) (*model.Cart, error) {
	res := e.submit(ctx, &operation{kind: opClear})
	return res.cart, res.err
}

// Refresh re-reads the authoritative cart: the server cart when
// authenticated, the local store otherwise.
func (e *CartEngine) Refresh(ctx context.Context) (*model.Cart, error) {
	res := e.submit(ctx, &operation{kind: opRefresh})
	return res.cart, res.err
}

// Login merges the guest cart into user's server cart and switches to
// authenticated mode.
func (e *CartEngine) Login(ctx context.Context, user *model.SessionUser) (*model.Cart, *MergeReport, error) {
	if user == nil {
		return e.Cart(), nil, apperrors.Auth("merge", "no session user")
	}
	res := e.submit(ctx, &operation{kind: opLogin, user: user})
	return res.cart, res.merge, res.err
}

// Logout discards the in-memory server cart and returns to the guest cart.
// The server cart is left untouched.
func (e *CartEngine) Logout(ctx context.Context) (*model.Cart, error) {
	res := e.submit(ctx, &operation{kind: opLogout})
	return res.cart, res.err
}

// Snapshot returns the current engine state.
func (e *CartEngine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Cart returns the current cart.
func (e *CartEngine) Cart() *model.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart
}

func (e *CartEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ClearError resets the last operation error.
func (e *CartEngine) ClearError() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if e.lastErr == nil {
		e.mu.Unlock()
		return
	}
	e.lastErr = nil
	snap := e.bumpLocked()
	listeners := e.listenersLocked()
	e.mu.Unlock()
	notify(listeners, snap)
}

// Subscribe registers fn for state changes and returns its unsubscribe func.
func (e *CartEngine) Subscribe(fn Listener) func() {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Pending is the number of queued operations that have not started yet.
func (e *CartEngine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// submit queues op and waits for it. If ctx ends first the caller gets
// ctx.Err() but the operation still runs to completion.
func (e *CartEngine) submit(ctx context.Context, op *operation) opResult {
	op.ctx = context.WithoutCancel(ctx)
	op.done = make(chan opResult, 1)

	e.mu.Lock()
	if op.kind == opClear {
		e.dropQueuedMutationsLocked()
	}
	e.queue = append(e.queue, op)
	if !e.running {
		e.running = true
		go e.drain()
	}
	e.mu.Unlock()

	select {
	case res := <-op.done:
		return res
	case <-ctx.Done():
		return opResult{cart: e.Cart(), err: ctx.Err()}
	}
}

func (e *CartEngine) dropQueuedMutationsLocked() {
	kept := e.queue[:0]
	dropped := 0
	for _, queued := range e.queue {
		if queued.kind.isMutation() {
			queued.done <- opResult{cart: e.cart, err: apperrors.Cancelled(queued.kind.String())}
			dropped++
			continue
		}
		kept = append(kept, queued)
	}
	e.queue = kept
	if dropped > 0 {
		e.log.Debug("Dropped queued cart operations", map[string]interface{}{
			"dropped": dropped,
		})
	}
}

func (e *CartEngine) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		op := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		op.done <- e.execute(op)
	}
}

func (e *CartEngine) execute(op *operation) opResult {
	switch op.kind {
	case opLogin:
		return e.login(op)
	case opLogout:
		return e.logout(op)
	case opRefresh:
		return e.refresh(op)
	}

	e.resolvePendingLine(op)
	if e.State() == StateAuthenticated {
		return e.remoteMutation(op)
	}
	return e.guestMutation(op)
}

// resolvePendingLine points an update or remove queued against an optimistic
// line at the line the server committed for the same product.
func (e *CartEngine) resolvePendingLine(op *operation) {
	if op.kind != opUpdate && op.kind != opRemove {
		return
	}
	if !strings.HasPrefix(op.lineID, PendingLinePrefix) {
		return
	}
	cart := e.Cart()
	if cart.LineByID(op.lineID) != nil {
		return
	}
	if line := cart.Line(strings.TrimPrefix(op.lineID, PendingLinePrefix)); line != nil {
		op.lineID = line.ID
	}
}

// update applies fn to engine state under the lock, bumps the version and
// notifies listeners outside the lock. Notifications never overtake each
// other.
func (e *CartEngine) update(fn func()) Snapshot {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	fn()
	snap := e.bumpLocked()
	listeners := e.listenersLocked()
	e.mu.Unlock()

	notify(listeners, snap)
	return snap
}

func (e *CartEngine) bumpLocked() Snapshot {
	e.version++
	return e.snapshotLocked()
}

func (e *CartEngine) snapshotLocked() Snapshot {
	return Snapshot{
		State:   e.state,
		User:    e.user,
		Cart:    e.cart,
		Loading: e.loading,
		Err:     e.lastErr,
		Version: e.version,
	}
}

func (e *CartEngine) listenersLocked() []Listener {
	if len(e.listeners) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = e.listeners[id]
	}
	return out
}

func notify(listeners []Listener, snap Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}

func (e *CartEngine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}
