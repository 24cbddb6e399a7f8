// Package advisor is the contract between the compiler and the external type
// suggestion service, plus the scoring that decides whether a suggestion is trusted.
//
// The service is probabilistic, so the compiler only ever talks to it through
// the Advisor and UnrollAdvisor interfaces; tests plug in a Stub.
package advisor

import (
	"context"
	"errors"
)

// Item asks for the type of one binding.
type Item struct {
	// Context is a bounded window of source around the binding's uses
	Context string `json:"context"`
	Target  string `json:"target_identifier"`
	// Usage lists how the binding is used, e.g. "arith" or "subscripted"
	Usage []string `json:"usage,omitempty"`
}

// Request is the single batch sent for one function.
type Request struct {
	RequestID string `json:"request_id"`
	Function  string `json:"function"`
	Items     []Item `json:"items"`
}

// Suggestion answers one Item. A non-empty Error marks a per-item failure.
type Suggestion struct {
	Identifier    string  `json:"identifier"`
	SuggestedType string  `json:"suggested_type"`
	Confidence    float64 `json:"confidence"`
	Error         string  `json:"error,omitempty"`
}

type Advisor interface {
	// Suggest answers a whole batch. An error fails every item of the batch.
	Suggest(ctx context.Context, req Request) ([]Suggestion, error)
}

// UnrollQuery describes a loop whose unroll factor the optimizer cannot derive by itself.
type UnrollQuery struct {
	RequestID string `json:"request_id"`
	Function  string `json:"function"`
	// Loop is the printed IR of the loop blocks
	Loop     string `json:"loop"`
	BodySize int    `json:"body_size"`
	// TripCount is meaningful only when TripKnown is set
	TripCount int64 `json:"trip_count"`
	TripKnown bool  `json:"trip_known"`
}

type UnrollAdvice struct {
	Factor     int     `json:"factor"`
	Confidence float64 `json:"confidence"`
}

type UnrollAdvisor interface {
	SuggestUnroll(ctx context.Context, q UnrollQuery) (UnrollAdvice, error)
}

var ErrTimeout = errors.New("advisor did not answer in time")

// ByIdentifier indexes suggestions by the binding they answer. Later duplicates are ignored.
func ByIdentifier(suggestions []Suggestion) map[string]Suggestion {
	out := make(map[string]Suggestion, len(suggestions))
	for _, s := range suggestions {
		if _, ok := out[s.Identifier]; !ok {
			out[s.Identifier] = s
		}
	}
	return out
}
