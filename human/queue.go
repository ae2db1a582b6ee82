package human

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pending struct {
	req   Request
	reply chan Decision
}

// Queue parks requests until another goroutine resolves them. It is the
// backing store of the HTTP handler and is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	requests map[string]*pending
	notify   func(Request)
}

// NewQueue creates an empty queue. notify, if non-nil, is called whenever a
// request starts waiting.
func NewQueue(notify func(Request)) *Queue {
	return &Queue{requests: make(map[string]*pending), notify: notify}
}

// Ask implements Channel. The request is listed by Pending until it is
// resolved or ctx is done.
func (q *Queue) Ask(ctx context.Context, req Request) (Decision, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	p := &pending{req: req, reply: make(chan Decision, 1)}

	q.mu.Lock()
	q.requests[req.ID] = p
	q.mu.Unlock()

	if q.notify != nil {
		q.notify(req)
	}

	select {
	case d := <-p.reply:
		return d, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.requests, req.ID)
		q.mu.Unlock()
		return Decision{}, ctx.Err()
	}
}

// Resolve delivers a decision to the waiting request.
func (q *Queue) Resolve(id string, d Decision) error {
	q.mu.Lock()
	p, ok := q.requests[id]
	if ok {
		delete(q.requests, id)
	}
	q.mu.Unlock()

	if !ok {
		return ErrRequestNotFound
	}
	p.reply <- d
	return nil
}

// Get returns a waiting request by id.
func (q *Queue) Get(id string) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.requests[id]
	if !ok {
		return Request{}, false
	}
	return p.req, true
}

// Pending lists waiting requests, oldest first.
func (q *Queue) Pending() []Request {
	q.mu.Lock()
	out := make([]Request, 0, len(q.requests))
	for _, p := range q.requests {
		out = append(out, p.req)
	}
	q.mu.Unlock()

	slices.SortFunc(out, func(a, b Request) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}
