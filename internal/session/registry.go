package session

import (
	"context"
	"sync"
	"time"

	"github.com/ikkim/storefront-cart/internal/app/repository"
	"github.com/ikkim/storefront-cart/internal/app/service"
	"github.com/ikkim/storefront-cart/internal/app/viewmodel"
	"github.com/ikkim/storefront-cart/internal/gateway"
	"github.com/ikkim/storefront-cart/pkg/logger"
	"github.com/ikkim/storefront-cart/pkg/util"
)

// Upstream is the storefront API as seen by one session.
type Upstream interface {
	service.RemoteCart
	service.SessionChecker
}

// UpstreamFactory binds the storefront API to a session's tokens.
type UpstreamFactory func(tokens gateway.TokenSource) Upstream

// ClientFactory adapts a gateway client into an UpstreamFactory.
func ClientFactory(client *gateway.Client) UpstreamFactory {
	return func(tokens gateway.TokenSource) Upstream {
		return client.WithTokens(tokens)
	}
}

type Options struct {
	Storage          repository.Storage
	Upstream         UpstreamFactory
	KeyPrefix        string
	GuestCartTTL     time.Duration
	OperationTimeout time.Duration
	// Connected reports whether a session still has a live push stream.
	// Such sessions are never evicted.
	Connected func(sessionID string) bool
}

// Session is the cart state of one browser session.
type Session struct {
	ID        string
	Engine    *service.CartEngine
	Tokens    *TokenHolder
	Projector *viewmodel.Projector
	Upstream  Upstream

	mu       sync.Mutex
	lastUsed time.Time
	restored bool
}

// Touch marks the session as used now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// View projects the current engine state.
func (s *Session) View() *viewmodel.CartView {
	return s.Projector.Project(s.Engine.Snapshot())
}

// RestoreOnce runs the engine's session restore the first time it is called
// with a bearer token present. Later calls are no-ops.
func (s *Session) RestoreOnce(ctx context.Context) (*service.MergeReport, error) {
	if !s.Tokens.Present() {
		return nil, nil
	}
	s.mu.Lock()
	if s.restored {
		s.mu.Unlock()
		return nil, nil
	}
	s.restored = true
	s.mu.Unlock()

	_, report, err := s.Engine.RestoreSession(ctx, s.Upstream)
	return report, err
}

// SetToken records the request's bearer token. When the token belongs to a
// different user than the one the engine is logged in as, the engine is
// logged out and the next RestoreOnce logs the new user in.
func (s *Session) SetToken(ctx context.Context, token string) (switched bool) {
	if !s.Tokens.Set(token) {
		return false
	}

	claims, err := util.InspectToken(token)
	if err != nil || claims.Subject == "" {
		return false
	}
	user := s.Engine.Snapshot().User
	if user == nil || user.ID == claims.Subject {
		return false
	}

	if _, err := s.Engine.Logout(ctx); err != nil {
		return false
	}
	s.mu.Lock()
	s.restored = false
	s.mu.Unlock()
	return true
}

// MarkRestored records that the session state was settled explicitly, by
// a login or logout.
func (s *Session) MarkRestored() {
	s.mu.Lock()
	s.restored = true
	s.mu.Unlock()
}

// Registry owns one Session per session id.
type Registry struct {
	opts Options
	now  func() time.Time
	log  *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		now:      time.Now,
		log:      logger.Component("session_registry"),
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating it with the guest cart from
// storage when it is not loaded yet.
func (r *Registry) Get(id string) *Session {
	now := r.now()

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		s = r.newSession(id)
		r.sessions[id] = s
	}
	r.mu.Unlock()

	s.Touch(now)
	if !ok {
		r.log.Debug("Session loaded", map[string]interface{}{
			"session_id": id,
			"lines":      len(s.Engine.Cart().Lines),
		})
	}
	return s
}

// Lookup returns a loaded session without creating one.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) newSession(id string) *Session {
	tokens := NewTokenHolder()
	upstream := r.opts.Upstream(tokens)
	local := repository.NewGuestCartRepository(
		r.opts.Storage,
		repository.GuestCartKey(r.opts.KeyPrefix, id),
		r.opts.GuestCartTTL,
	)
	engine := service.NewCartEngine(local, upstream, service.EngineConfig{
		OperationTimeout: r.opts.OperationTimeout,
	})
	return &Session{
		ID:        id,
		Engine:    engine,
		Tokens:    tokens,
		Projector: viewmodel.NewProjector(),
		Upstream:  upstream,
	}
}

// EvictIdle unloads sessions unused for longer than maxIdle. Sessions with
// queued operations or an open push stream are kept. Guest carts stay in
// storage and are reloaded by the next Get.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.sessions {
		if s.LastUsed().After(cutoff) || s.Engine.Pending() > 0 || s.Engine.Snapshot().Loading {
			continue
		}
		if r.opts.Connected != nil && r.opts.Connected(id) {
			continue
		}
		delete(r.sessions, id)
		evicted++
	}

	if evicted > 0 {
		r.log.Info("Idle sessions evicted", map[string]interface{}{
			"evicted":   evicted,
			"remaining": len(r.sessions),
		})
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
