package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceScoreWeights(t *testing.T) {
	assert.InDelta(t, 0.3, ConfidenceScore(Signals{Context: 1}), 1e-9)
	assert.InDelta(t, 0.4, ConfidenceScore(Signals{Usage: 1}), 1e-9)
	assert.InDelta(t, 0.3, ConfidenceScore(Signals{Consistency: 1}), 1e-9)
	assert.InDelta(t, 0.3*0.9+0.4*0.5+0.3*0.5, ConfidenceScore(Signals{Context: 0.9, Usage: 0.5, Consistency: 0.5}), 1e-9)
}

func TestConfidenceScoreIsBounded(t *testing.T) {
	inputs := []float64{-10, -1, 0, 0.25, 0.5, 1, 2, 1e9, math.Inf(1), math.Inf(-1), math.NaN()}
	for _, c := range inputs {
		for _, u := range inputs {
			for _, k := range inputs {
				score := ConfidenceScore(Signals{Context: c, Usage: u, Consistency: k})
				assert.GreaterOrEqual(t, score, 0.0)
				assert.LessOrEqual(t, score, 1.0)
			}
		}
	}
}

func TestAccept(t *testing.T) {
	assert.True(t, Accept(0.6, 0.6))
	assert.False(t, Accept(0.59, 0.6))
}

func TestConsultReturnsStubAnswers(t *testing.T) {
	stub := &Stub{Types: map[string]Suggestion{"x": {SuggestedType: "int", Confidence: 0.9}}}
	got, err := Consult(context.Background(), stub, Request{Function: "f", Items: []Item{{Target: "x"}, {Target: "y"}}}, time.Second)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Suggestion{Identifier: "x", SuggestedType: "int", Confidence: 0.9}, got[0])
	assert.NotEmpty(t, got[1].Error)
	assert.Len(t, stub.Requests(), 1)
}

func TestConsultTimesOut(t *testing.T) {
	stub := &Stub{Delay: time.Hour}
	start := time.Now()
	_, err := Consult(context.Background(), stub, Request{Function: "f"}, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConsultPropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := Consult(context.Background(), &Stub{Err: boom}, Request{}, time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestByIdentifierKeepsFirst(t *testing.T) {
	idx := ByIdentifier([]Suggestion{{Identifier: "a", SuggestedType: "int"}, {Identifier: "a", SuggestedType: "str"}})
	assert.Equal(t, "int", idx["a"].SuggestedType)
}

func TestHTTPClient(t *testing.T) {
	var gotRequest Request
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		switch r.URL.Path {
		case "/unroll":
			_, _ = w.Write([]byte(`{"factor": 4, "confidence": 0.8}`))
		default:
			_ = json.NewDecoder(r.Body).Decode(&gotRequest)
			_, _ = w.Write([]byte("```json\n{\"suggestions\": [{\"identifier\": \"x\", \"suggested_type\": \"list[int]\", \"confidence\": 0.7}]}\n```"))
		}
	}))
	defer srv.Close()

	client := &HTTPClient{Endpoint: srv.URL, Client: srv.Client()}
	got, err := client.Suggest(context.Background(), Request{RequestID: "run-1", Function: "f", Items: []Item{{Target: "x", Context: "x = []"}}})
	require.NoError(t, err)
	assert.Equal(t, []Suggestion{{Identifier: "x", SuggestedType: "list[int]", Confidence: 0.7}}, got)
	assert.Equal(t, "run-1", gotID)
	assert.Equal(t, "f", gotRequest.Function)
	assert.Equal(t, "x = []", gotRequest.Items[0].Context)

	advice, err := client.SuggestUnroll(context.Background(), UnrollQuery{Function: "f"})
	require.NoError(t, err)
	assert.Equal(t, UnrollAdvice{Factor: 4, Confidence: 0.8}, advice)
}

func TestHTTPClientRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	_, err := (&HTTPClient{Endpoint: srv.URL}).Suggest(context.Background(), Request{})
	assert.ErrorContains(t, err, "503")
}

func TestUnwrapFenced(t *testing.T) {
	assert.Equal(t, `{"a":1}`, unwrapFenced("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, unwrapFenced(`{"a":1}`))
}
