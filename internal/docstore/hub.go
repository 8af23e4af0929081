package docstore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type listFunc func(ctx context.Context, collection string) ([]Document, error)

// hub fans change signals out to subscriptions. Each subscription owns a
// goroutine and a one-slot signal channel, so signals coalesce while a
// snapshot is being delivered and writers never block. A failed refresh is
// retried after retry.
type hub struct {
	logger *zap.Logger
	retry  time.Duration

	mu   sync.Mutex
	next uint64
	subs map[uint64]*subscription
}

type subscription struct {
	query  Query
	signal chan struct{}
	cancel context.CancelFunc
}

func newHub(logger *zap.Logger) *hub {
	return &hub{logger: logger, retry: time.Second, subs: make(map[uint64]*subscription)}
}

// add reads the first snapshot before returning, so a store that cannot be
// listed fails the subscribe call itself. The subscription is registered
// before that read, so a write racing it still triggers a refresh. The
// snapshot is delivered from the subscription goroutine.
func (h *hub) add(ctx context.Context, q Query, list listFunc, onChange func([]Document)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		query:  q,
		signal: make(chan struct{}, 1),
		cancel: cancel,
	}

	h.mu.Lock()
	h.next++
	id := h.next
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}

	first, err := list(ctx, q.Collection)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	go h.run(ctx, sub, list, onChange, first)
	return unsubscribe, nil
}

func (h *hub) run(ctx context.Context, sub *subscription, list listFunc, onChange func([]Document), first []Document) {
	if ctx.Err() != nil {
		return
	}
	onChange(sub.query.Apply(first))
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.signal:
		}
		docs, err := list(ctx, sub.query.Collection)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Warn("refresh subscription, will retry",
				zap.String("collection", sub.query.Collection), zap.Duration("retry", h.retry), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(h.retry):
			}
			wake(sub)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		onChange(sub.query.Apply(docs))
	}
}

func (h *hub) notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.query.Collection != collection {
			continue
		}
		wake(sub)
	}
}

func wake(sub *subscription) {
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		sub.cancel()
		delete(h.subs, id)
	}
}
