package advisor

import (
	"context"
	"sync"
	"time"
)

// Stub is a deterministic Advisor and UnrollAdvisor for tests and offline runs.
// It answers from fixed tables and counts how often it was asked.
type Stub struct {
	// Types maps a target identifier to the answer for it. Missing targets get an item error.
	Types map[string]Suggestion
	// Unrolls maps a function name to the unroll advice for its loops
	Unrolls map[string]UnrollAdvice
	// Delay makes every call block for this long, or until its context ends
	Delay time.Duration
	// Err fails every call
	Err error

	mu       sync.Mutex
	requests []Request
	queries  []UnrollQuery
}

func (s *Stub) Suggest(ctx context.Context, req Request) ([]Suggestion, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(req.Items))
	for _, item := range req.Items {
		sug, ok := s.Types[item.Target]
		if !ok {
			out = append(out, Suggestion{Identifier: item.Target, Error: "no suggestion"})
			continue
		}
		sug.Identifier = item.Target
		out = append(out, sug)
	}
	return out, nil
}

func (s *Stub) SuggestUnroll(ctx context.Context, q UnrollQuery) (UnrollAdvice, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return UnrollAdvice{}, err
	}
	return s.Unrolls[q.Function], nil
}

func (s *Stub) wait(ctx context.Context) error {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Err
}

// Requests returns the batches received so far.
func (s *Stub) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// UnrollQueries returns the unroll questions received so far.
func (s *Stub) UnrollQueries() []UnrollQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UnrollQuery(nil), s.queries...)
}
