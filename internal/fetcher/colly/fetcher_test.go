package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "niw-bot/test", MaxBodyBytes: 1 << 20, Timeout: time.Second}, nil)
	collector := f.buildCollector()
	if collector.UserAgent != "niw-bot/test" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if !collector.IgnoreRobotsTxt {
		t.Fatal("expected robots.txt to be ignored by default")
	}
	if collector.MaxBodySize != 1<<20 {
		t.Fatalf("expected max body size override, got %d", collector.MaxBodySize)
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	var result fetchResult
	hooks := &stubHooks{}
	configureCollectorHooks(hooks, &result)
	if hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	body := []byte("%PDF-1.4")
	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: body})
	body[0] = 'X'
	if result.status != http.StatusOK || string(result.body) != "%PDF-1.4" {
		t.Fatalf("unexpected result: %+v", result)
	}

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	if result.err == nil || result.status != http.StatusNotFound {
		t.Fatalf("expected error state, got %+v", result)
	}
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/a.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 fake"))
		case "/slow.pdf":
			time.Sleep(500 * time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second}, nil)

	body, err := f.Fetch(context.Background(), srv.URL+"/docs/a.pdf")
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 fake", string(body))

	_, err = f.Fetch(context.Background(), srv.URL+"/docs/missing.pdf")
	require.ErrorContains(t, err, "404")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, srv.URL+"/slow.pdf")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
