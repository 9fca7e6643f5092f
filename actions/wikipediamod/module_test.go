package wikipediamod

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/response"
	"github.com/goliatone/go-mods/transport"
)

func newDispatcher(t *testing.T, handler http.HandlerFunc) *actions.Dispatcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	module := NewModule(
		transport.NewRESTAdapter(server.Client()),
		response.NewHandler(nil, nil, response.WithProvider(core.ProviderWikipedia)),
		WithBaseURL(server.URL),
	)
	dispatcher := actions.NewDispatcher()
	if err := dispatcher.Install(module); err != nil {
		t.Fatalf("install: %v", err)
	}
	return dispatcher
}

func TestSearch_WorksWithoutCredentials(t *testing.T) {
	var got map[string]string
	dispatcher := newDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{
			"path":     r.URL.Path,
			"srsearch": r.URL.Query().Get("srsearch"),
			"srlimit":  r.URL.Query().Get("srlimit"),
			"agent":    r.Header.Get("User-Agent"),
		}
		w.Write([]byte(`{"query":{"searchinfo":{"totalhits":120},"search":[{"pageid":1,"title":"Go (programming language)","snippet":"<span class=\"searchmatch\">Go</span> is a language &amp; toolchain","wordcount":900}]}}`))
	})

	result := dispatcher.Dispatch(context.Background(), actions.Call{
		Name:       ActionSearch,
		Parameters: `{"query":"golang","limit":"3"}`,
	})
	if result["success"] != true || result["count"] != 1 || result["total_hits"] != 120 {
		t.Fatalf("unexpected result %#v", result)
	}
	hit := result["results"].([]map[string]any)[0]
	if hit["snippet"] != "Go is a language & toolchain" {
		t.Fatalf("expected markup-free snippet, got %q", hit["snippet"])
	}
	if hit["url"] == "" || got["path"] != "/w/api.php" || got["srsearch"] != "golang" || got["srlimit"] != "3" {
		t.Fatalf("unexpected request %#v / hit %#v", got, hit)
	}
	if got["agent"] != DefaultUserAgent {
		t.Fatalf("expected a descriptive user agent, got %q", got["agent"])
	}
}

func TestSearch_ServerErrorIsRetryable(t *testing.T) {
	dispatcher := newDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	result := dispatcher.Dispatch(context.Background(), actions.Call{
		Name:       ActionSearch,
		Parameters: map[string]any{"query": "x"},
	})
	if result["code"] != core.ErrorNetwork || result["retryable"] != true {
		t.Fatalf("expected retryable NETWORK_ERROR, got %#v", result)
	}
}

func TestArticleURL(t *testing.T) {
	module := NewModule(nil, nil)
	if got := module.articleURL("Go (programming language)"); got != "https://en.wikipedia.org/wiki/Go_%28programming_language%29" {
		t.Fatalf("unexpected url %q", got)
	}
}
