package triage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/intake/internal/platform/apperr"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestRequestOpinionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/triage/opinion", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "patient_context")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(opinionResponse{
			Opinion: Opinion{Diagnosis: "Lumbar strain", Urgency: "routine"},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second, testLogger())
	op, err := c.RequestOpinion(context.Background(), map[string]interface{}{"complaint": "back pain"})
	require.NoError(t, err)
	assert.Equal(t, "Lumbar strain", op.Diagnosis)
}

func TestRequestOpinionEmptyBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(opinionResponse{})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	_, err := c.RequestOpinion(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, apperr.IsUnavailable(err), "an opinion without a diagnosis is not an opinion")
}

func TestRequestOpinionUnreachableIsUnavailable(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", 200*time.Millisecond, testLogger())
	_, err := c.RequestOpinion(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, apperr.IsUnavailable(err))
}

func TestSendTrainingServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	err := c.SendTraining(context.Background(), TrainingSignal{AIResponse: "dx", Accepted: true})
	assert.True(t, apperr.IsUnavailable(err))
}

func TestNotifierDeliversAndRetries(t *testing.T) {
	var calls int32
	n := NewNotifier(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go n.Start(ctx)

	ok := n.Enqueue("training", func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("transient")
		}
		return nil
	})
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	n.Wait()
}

func TestNotifierDropsWhenSaturated(t *testing.T) {
	n := NewNotifier(testLogger())
	// not started: queue fills
	filled := 0
	for i := 0; i < 100; i++ {
		if n.Enqueue("noop", func(ctx context.Context) error { return nil }) {
			filled++
		}
	}
	assert.Less(t, filled, 100, "expected saturation to drop tasks")
}
