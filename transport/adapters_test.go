package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-mods/core"
)

func TestRESTAdapter_SendsQueryHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.URL.Query().Get("q"); got != "mods" {
			t.Errorf("expected q=mods, got %q", got)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("expected existing query to survive, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("expected authorization header, got %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("expected default user agent, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("expected json accept header, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"ok":true}` {
			t.Errorf("unexpected request body %q", body)
		}
		w.Header().Set("X-RateLimit-Remaining", "10")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	res, err := NewRESTAdapter(server.Client()).Do(context.Background(), core.TransportRequest{
		Method:  "post",
		URL:     server.URL + "/search?page=2",
		Query:   map[string]string{"q": " mods "},
		Headers: map[string]string{"Authorization": "Bearer token"},
		Body:    []byte(`{"ok":true}`),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("rest request: %v", err)
	}
	if res.StatusCode != http.StatusAccepted || string(res.Body) != "done" {
		t.Fatalf("unexpected response %d %q", res.StatusCode, res.Body)
	}
	if res.Headers["X-Ratelimit-Remaining"] != "10" {
		t.Fatalf("expected flattened response headers, got %#v", res.Headers)
	}
	if res.Metadata["kind"] != KindREST {
		t.Fatalf("expected rest kind metadata, got %#v", res.Metadata)
	}
}

func TestRESTAdapter_Defaults(t *testing.T) {
	adapter := NewRESTAdapter(nil)
	client, ok := adapter.Client.(*http.Client)
	if !ok || client.Timeout != defaultRESTClientTimeout {
		t.Fatalf("expected default http client with %s timeout, got %#v", defaultRESTClientTimeout, adapter.Client)
	}
	if adapter.MaxResponseBodyBytes != defaultRESTResponseBodyLimit {
		t.Fatalf("expected default body limit, got %d", adapter.MaxResponseBodyBytes)
	}
	if _, err := adapter.Do(context.Background(), core.TransportRequest{}); core.TextCode(err) != core.ErrorBadInput {
		t.Fatalf("expected BAD_INPUT for a missing url, got %q (%v)", core.TextCode(err), err)
	}
}

func TestRESTAdapter_RequestLimitOverridesAdapterLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 1024
	_, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL, MaxResponseBodyBytes: 4})
	if err == nil || !strings.Contains(err.Error(), "exceeds limit of 4 bytes") {
		t.Fatalf("expected per-request limit error, got %v", err)
	}
}

func TestGraphQLAdapter_PostsQueryOperationAndVariables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("expected json content type, got %q", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["query"] != "query Ping { ping }" || payload["operationName"] != "Ping" {
			t.Errorf("unexpected payload %#v", payload)
		}
		if vars, _ := payload["variables"].(map[string]any); vars["id"] != "123" {
			t.Errorf("expected variables, got %#v", payload["variables"])
		}
		_, _ = w.Write([]byte(`{"data":{"ping":"pong"}}`))
	}))
	defer server.Close()

	res, err := NewGraphQLAdapter(server.URL, server.Client()).Do(context.Background(), core.TransportRequest{
		Metadata: map[string]any{
			MetadataGraphQLQuery:         "query Ping { ping }",
			MetadataGraphQLOperationName: "Ping",
			MetadataGraphQLVariables:     map[string]any{"id": "123"},
		},
	})
	if err != nil {
		t.Fatalf("graphql request: %v", err)
	}
	var out struct {
		Ping string `json:"ping"`
	}
	if err := DecodeGraphQL("linear", res, &out); err != nil || out.Ping != "pong" {
		t.Fatalf("expected decoded pong, got %#v (%v)", out, err)
	}
	if res.Metadata["kind"] != KindGraphQL || res.Metadata["operation_name"] != "Ping" {
		t.Fatalf("unexpected metadata %#v", res.Metadata)
	}
}

func TestGraphQLAdapter_RequiresEndpointAndQuery(t *testing.T) {
	adapter := NewGraphQLAdapter("", nil)
	if _, err := adapter.Do(context.Background(), core.TransportRequest{Body: []byte("{ ping }")}); core.TextCode(err) != core.ErrorBadInput {
		t.Fatalf("expected BAD_INPUT without endpoint, got %v", err)
	}
	adapter.Endpoint = "http://127.0.0.1:1/graphql"
	if _, err := adapter.Do(context.Background(), core.TransportRequest{}); core.TextCode(err) != core.ErrorBadInput {
		t.Fatalf("expected BAD_INPUT without query, got %v", err)
	}
}

func TestGraphQLAdapter_KeepsTransportTaxonomy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	_, err := NewGraphQLAdapter(server.URL, server.Client()).Do(context.Background(), core.TransportRequest{
		Body:                 []byte("{ ping }"),
		MaxResponseBodyBytes: 4,
	})
	if err == nil || !strings.Contains(err.Error(), "exceeds limit of 4 bytes") {
		t.Fatalf("expected body limit error from the rest adapter, got %v", err)
	}
}
