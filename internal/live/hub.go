// Package live pushes per-user notification snapshots to subscribers.
//
// All subscribers of one user share a feed. A change for the user loads a
// single snapshot and hands it to every subscriber of the feed. Each
// subscriber holds at most one undelivered snapshot; a newer one replaces
// it, so a slow reader never blocks writers.
package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
)

// Snapshot is the current state of a user's notification feed.
type Snapshot struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`
}

// Loader reads a fresh snapshot for a user.
type Loader func(ctx context.Context, userID string) (Snapshot, error)

// Hub tracks open feeds by user.
type Hub struct {
	load   Loader
	logger *slog.Logger

	mu    sync.Mutex
	feeds map[string]*feed
}

type feed struct {
	userID string

	// mu serializes loads and deliveries for the feed. Lock order is
	// Hub.mu before feed.mu.
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	dropped bool
}

// NewHub creates a hub that loads snapshots with load.
func NewHub(load Loader, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		load:   load,
		logger: logger,
		feeds:  make(map[string]*feed),
	}
}

// Subscription receives snapshots for one user until closed.
type Subscription struct {
	UserID string

	hub  *Hub
	feed *feed
	ch   chan Snapshot
	once sync.Once
	stop func() bool
}

// C returns the snapshot channel. It is closed when the subscription closes.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Subscribe opens a subscription for userID. The current snapshot is
// available on the channel as soon as Subscribe returns. The subscription
// closes when ctx is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Subscription{
		UserID: userID,
		hub:    h,
		ch:     make(chan Snapshot, 1),
	}

	for {
		f := h.feedFor(userID)

		f.mu.Lock()
		if f.dropped {
			// The last subscriber left between lookup and lock.
			f.mu.Unlock()
			continue
		}

		// Loading under the feed lock orders the initial snapshot with
		// concurrent publishes, so no change is missed.
		snap, err := h.load(ctx, userID)
		if err != nil {
			f.mu.Unlock()
			h.dropIfEmpty(f)
			return nil, err
		}

		s.feed = f
		f.subs[s] = struct{}{}
		s.ch <- snap
		f.mu.Unlock()
		break
	}

	metrics.LiveSubscribers.Inc()
	h.logger.Debug("live subscription opened", "user_id", userID)

	stop := context.AfterFunc(ctx, s.Close)
	s.feed.mu.Lock()
	s.stop = stop
	s.feed.mu.Unlock()

	return s, nil
}

func (h *Hub) feedFor(userID string) *feed {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[userID]
	if !ok {
		f = &feed{userID: userID, subs: make(map[*Subscription]struct{})}
		h.feeds[userID] = f
	}
	return f
}

func (h *Hub) dropIfEmpty(f *feed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.subs) == 0 && !f.dropped {
		f.dropped = true
		if h.feeds[f.userID] == f {
			delete(h.feeds, f.userID)
		}
	}
}

// Close ends the subscription and closes its channel. It is safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		f := s.feed
		f.mu.Lock()

		delete(f.subs, s)
		close(s.ch)
		stop := s.stop
		if len(f.subs) == 0 {
			f.dropped = true
			if h.feeds[f.userID] == f {
				delete(h.feeds, f.userID)
			}
		}

		f.mu.Unlock()
		h.mu.Unlock()

		if stop != nil {
			stop()
		}
		metrics.LiveSubscribers.Dec()
		h.logger.Debug("live subscription closed", "user_id", s.UserID)
	})
}

// Publish reloads the snapshot for userID and delivers it to the user's
// subscribers. It does nothing when the user has no subscribers.
func (h *Hub) Publish(ctx context.Context, userID string) {
	h.mu.Lock()
	f := h.feeds[userID]
	h.mu.Unlock()
	if f == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dropped || len(f.subs) == 0 {
		return
	}

	snap, err := h.load(ctx, userID)
	if err != nil {
		h.logger.Error("loading notification snapshot", "user_id", userID, "error", err)
		return
	}

	for s := range f.subs {
		// Replace any snapshot the reader has not consumed yet.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
}

// Refresh forces a reload for userID's subscribers.
func (h *Hub) Refresh(ctx context.Context, userID string) {
	h.Publish(ctx, userID)
}

// Subscribers returns the number of open subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	f := h.feeds[userID]
	h.mu.Unlock()
	if f == nil {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
