package session

import (
	"context"
	"sync"
	"time"

	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/models"
)

// DefaultResolveTimeout bounds a single profile lookup
const DefaultResolveTimeout = 10 * time.Second

// ProfileFunc loads the profile belonging to sess
type ProfileFunc func(ctx context.Context, sess *Session) (*models.Profile, error)

// ProfileResolver loads the profile in the background whenever the session changes
type ProfileResolver struct {
	store       *Store
	fetch       ProfileFunc
	timeout     time.Duration
	logger      *logging.Logger
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Close
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewProfileResolver subscribes to store. Call Close to stop it.
func NewProfileResolver(store *Store, fetch ProfileFunc, timeout time.Duration, logger *logging.Logger) *ProfileResolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &ProfileResolver{
		store:   store,
		fetch:   fetch,
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	r.unsubscribe = store.Subscribe(r.onEvent)

	return r
}

func (r *ProfileResolver) onEvent(ev Event) {
	if ev.Session == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.resolve(ev)
	}()
}

func (r *ProfileResolver) resolve(ev Event) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	log := r.logger.WithFields(map[string]interface{}{
		"user_id":    ev.Session.UserID,
		"generation": ev.Generation,
	})

	p, err := r.fetch(ctx, ev.Session)
	if err != nil {
		log.WithError(err).Warn("profile lookup failed")
		p = nil
	}

	if !r.store.ApplyProfile(ev.Generation, p) {
		log.Debug("discarding stale profile result")
	}
}

// Wait blocks until every lookup started so far has finished
func (r *ProfileResolver) Wait() {
	r.wg.Wait()
}

// Close unsubscribes, cancels running lookups and waits for them. Events
// delivered after Close starts no lookup.
func (r *ProfileResolver) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.unsubscribe()
	r.cancel()
	r.wg.Wait()
}
