package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptInOrderFirstSuccessWins(t *testing.T) {
	e1 := errors.New("E1")
	e2 := errors.New("E2")
	outcomes := map[string]error{"a": e1, "b": e2, "c": nil}

	var attempted []string
	result, err := AttemptInOrder(context.Background(), []string{"a", "b", "c"},
		func(ctx context.Context, name string) (string, error) {
			attempted = append(attempted, name)
			if outcome := outcomes[name]; outcome != nil {
				return "", outcome
			}
			return "V", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "V", result)
	assert.Equal(t, []string{"a", "b", "c"}, attempted)
}

func TestAttemptInOrderShortCircuits(t *testing.T) {
	var attempted []string
	result, err := AttemptInOrder(context.Background(), []string{"a", "b", "c"},
		func(ctx context.Context, name string) (string, error) {
			attempted = append(attempted, name)
			return "first", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "first", result)
	assert.Equal(t, []string{"a"}, attempted)
}

// When every candidate fails, callers get exactly the LAST error; it is the
// most recent upstream response and the one they inspect.
func TestAttemptInOrderReturnsLastError(t *testing.T) {
	e1 := errors.New("E1")
	e2 := errors.New("E2")
	e3 := errors.New("E3")
	fails := []error{e1, e2, e3}

	i := 0
	_, err := AttemptInOrder(context.Background(), []string{"a", "b", "c"},
		func(ctx context.Context, name string) (string, error) {
			defer func() { i++ }()
			return "", fails[i]
		})

	assert.Same(t, e3, err)
	assert.NotErrorIs(t, err, e1)
}

func TestDoFirstToleratesEndpointDrift(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/kyc/approve", "/api/v1/kyc/approve":
			http.NotFound(w, r)
		case "/api/kyc/status":
			w.Write([]byte(`{"status":"APPROVED"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer upstream.Close()

	client, _ := newSignedInClient(t, upstream)
	resp, err := client.DoFirst(context.Background(), []Request{
		{Method: http.MethodPost, Path: "/api/v2/kyc/approve"},
		{Method: http.MethodPost, Path: "/api/v1/kyc/approve"},
		{Method: http.MethodPut, Path: "/api/kyc/status"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "APPROVED")
}

func TestDoFirstRejectsEmptyCandidateList(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call to %s", r.URL.Path)
	}))
	defer upstream.Close()

	client, _ := newSignedInClient(t, upstream)
	resp, err := client.DoFirst(context.Background(), nil)

	require.ErrorIs(t, err, ErrNoCandidates)
	assert.Nil(t, resp)
}

func TestDoFirstSurfacesLastCandidateError(t *testing.T) {
	var calls int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Distinct statuses so the surfaced error is attributable.
		switch r.URL.Path {
		case "/one":
			http.Error(w, "gone", http.StatusGone)
		case "/two":
			http.Error(w, "teapot", http.StatusTeapot)
		default:
			http.Error(w, "conflict", http.StatusConflict)
		}
	}))
	defer upstream.Close()

	client, _ := newSignedInClient(t, upstream)
	_, err := client.DoFirst(context.Background(), []Request{
		{Method: http.MethodPost, Path: "/one"},
		{Method: http.MethodPost, Path: "/two"},
		{Method: http.MethodPost, Path: "/three"},
	})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
	assert.Equal(t, 3, calls)
	assert.Contains(t, fmt.Sprint(err), "conflict")
}
