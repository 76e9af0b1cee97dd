package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"mixtape/internal/shared"
	tu "mixtape/internal/testing"
)

func testDispatcher(t *testing.T, script ...tu.Exchange) (*Dispatcher, *tu.ScriptedRoundTripper, *[]time.Duration) {
	t.Helper()
	rt := tu.NewScriptedRoundTripper(script...)
	var delays []time.Duration
	d := NewDispatcher(shared.NewLogger(io.Discard),
		WithClient(&http.Client{Transport: rt}),
		WithRequestRate(1000),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)
	return d, rt, &delays
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	req := &Request{Method: http.MethodGet, URL: "https://api.spotify.com/v1/me"}

	t.Run("Success First Attempt", func(t *testing.T) {
		d, rt, delays := testDispatcher(t, tu.Exchange{Response: tu.JSONResponse(200, `{}`)})

		resp, err := d.Do(ctx, req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
		if rt.Count() != 1 {
			t.Errorf("expected 1 request, got %d", rt.Count())
		}
		if len(*delays) != 0 {
			t.Errorf("expected no backoff, got %v", *delays)
		}
	})

	t.Run("Client Error Not Retried", func(t *testing.T) {
		d, rt, _ := testDispatcher(t, tu.Exchange{Response: tu.JSONResponse(404, `{}`)})

		resp, err := d.Do(ctx, req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != 404 {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
		if rt.Count() != 1 {
			t.Errorf("expected no retries for 404, got %d requests", rt.Count())
		}
	})

	t.Run("Rate Limited Retried Then Returned", func(t *testing.T) {
		d, rt, delays := testDispatcher(t,
			tu.Exchange{Response: tu.JSONResponse(429, `{}`)},
			tu.Exchange{Response: tu.JSONResponse(429, `{}`)},
			tu.Exchange{Response: tu.JSONResponse(429, `{}`)},
			tu.Exchange{Response: tu.JSONResponse(429, `{}`)},
		)

		resp, err := d.Do(ctx, req)
		if err != nil {
			t.Fatalf("expected the final response, got error %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != 429 {
			t.Errorf("expected 429, got %d", resp.StatusCode)
		}
		if rt.Count() != 4 {
			t.Errorf("expected 4 attempts, got %d", rt.Count())
		}

		want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
		if len(*delays) != len(want) {
			t.Fatalf("expected %d backoffs, got %v", len(want), *delays)
		}
		for i, d := range want {
			if (*delays)[i] != d {
				t.Errorf("backoff %d: expected %s, got %s", i, d, (*delays)[i])
			}
		}
	})

	t.Run("Server Error Recovers Mid Retry", func(t *testing.T) {
		d, rt, _ := testDispatcher(t,
			tu.Exchange{Response: tu.JSONResponse(503, `{}`)},
			tu.Exchange{Response: tu.JSONResponse(200, `{}`)},
		)

		resp, err := d.Do(ctx, req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
		if rt.Count() != 2 {
			t.Errorf("expected 2 attempts, got %d", rt.Count())
		}
	})

	t.Run("Transport Error Retried Then Propagated", func(t *testing.T) {
		d, rt, _ := testDispatcher(t, tu.Exchange{Err: errors.New("connection reset")})

		_, err := d.Do(ctx, req)
		if err == nil {
			t.Fatal("expected error after exhausted retries")
		}
		if rt.Count() != 4 {
			t.Errorf("expected 4 attempts, got %d", rt.Count())
		}
	})

	t.Run("Transport Error Recovers Mid Retry", func(t *testing.T) {
		d, _, _ := testDispatcher(t,
			tu.Exchange{Err: errors.New("connection reset")},
			tu.Exchange{Response: tu.JSONResponse(200, `{}`)},
		)

		resp, err := d.Do(ctx, req)
		if err != nil {
			t.Fatalf("expected recovery, got %v", err)
		}
		resp.Body.Close()
	})

	t.Run("Custom Retry Policy", func(t *testing.T) {
		rt := tu.NewScriptedRoundTripper(tu.Exchange{Response: tu.JSONResponse(500, `{}`)})
		d := NewDispatcher(shared.NewLogger(io.Discard),
			WithClient(&http.Client{Transport: rt}),
			WithRetryPolicy(1, time.Millisecond),
			WithSleeper(func(context.Context, time.Duration) error { return nil }),
		)

		resp, err := d.Do(ctx, req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		resp.Body.Close()
		if rt.Count() != 2 {
			t.Errorf("expected 2 attempts with maxRetries=1, got %d", rt.Count())
		}
	})

	t.Run("Cancelled Context Stops Backoff", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		rt := tu.NewScriptedRoundTripper(tu.Exchange{Response: tu.JSONResponse(429, `{}`)})
		d := NewDispatcher(shared.NewLogger(io.Discard),
			WithClient(&http.Client{Transport: rt}),
			WithSleeper(func(ctx context.Context, _ time.Duration) error {
				cancel()
				return ctx.Err()
			}),
		)

		if _, err := d.Do(cancelled, req); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
