package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPusher_SendJSON_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") == "key" &&
			r.Header.Get("X-Signature") != "" &&
			r.Header.Get("X-Timestamp") != "" &&
			r.Header.Get("X-Nonce") != "" {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(401)
	}))
	defer ts.Close()

	p := NewPusher(nil, "key", "secret")
	code, body, err := p.SendJSON(context.Background(), ts.URL+"/hook", NewEvent(EventButtonDown, "desk", map[string]any{"button": "0"}))
	if err != nil || code != 200 {
		t.Fatalf("unexpected: code=%d err=%v", code, err)
	}
	if string(body) == "" {
		t.Fatal("empty body")
	}
}

func TestPusher_RetryOn5xx(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(502)
			return
		}
		w.WriteHeader(200)
	}))
	defer ts.Close()

	p := NewPusher(nil, "", "secret")
	p.Backoff = []time.Duration{time.Millisecond}
	code, _, err := p.SendJSON(context.Background(), ts.URL+"/hook", map[string]any{"x": 1})
	if err != nil || code != 200 {
		t.Fatalf("unexpected: code=%d err=%v", code, err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestPusher_NoRetryOn4xx(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(400)
		_, _ = w.Write([]byte(`{"error":"bad event"}`))
	}))
	defer ts.Close()

	p := NewPusher(nil, "", "secret")
	p.Backoff = []time.Duration{time.Millisecond}
	code, body, err := p.SendJSON(context.Background(), ts.URL+"/hook", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("4xx should not be an error: %v", err)
	}
	if code != 400 {
		t.Fatalf("code=%d", code)
	}
	if string(body) == "" {
		t.Fatal("expected response body")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected single attempt, got %d", got)
	}
}

func TestPusher_EventNonceReused(t *testing.T) {
	var nonce string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce = r.Header.Get("X-Nonce")
		w.WriteHeader(200)
	}))
	defer ts.Close()

	ev := NewEvent(EventKnobRotate, "desk", map[string]any{"delta": 1})
	p := NewPusher(nil, "", "secret")
	_, _, err := p.SendJSON(context.Background(), ts.URL+"/hook", ev)
	if err != nil {
		t.Fatal(err)
	}
	if nonce != ev.Nonce {
		t.Fatalf("header nonce %q should reuse event nonce %q", nonce, ev.Nonce)
	}
}
