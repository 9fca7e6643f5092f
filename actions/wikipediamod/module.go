// Package wikipediamod searches Wikipedia. The public API needs no credential.
package wikipediamod

import (
	"context"
	"encoding/json"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/response"
)

const (
	ActionSearch = "wikipedia_search"

	DefaultBaseURL   = "https://en.wikipedia.org"
	DefaultUserAgent = "go-mods/1.0 (+https://github.com/goliatone/go-mods)"
	defaultLimit     = 5
	maxLimit         = 50
)

var markupPattern = regexp.MustCompile(`<[^>]+>`)

type Option func(*Module)

func WithBaseURL(baseURL string) Option {
	return func(m *Module) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			m.BaseURL = baseURL
		}
	}
}

func WithUserAgent(agent string) Option {
	return func(m *Module) {
		if agent = strings.TrimSpace(agent); agent != "" {
			m.UserAgent = agent
		}
	}
}

type Module struct {
	Adapter   core.TransportAdapter
	Handler   *response.Handler
	BaseURL   string
	UserAgent string
}

func NewModule(adapter core.TransportAdapter, handler *response.Handler, opts ...Option) *Module {
	module := &Module{
		Adapter:   adapter,
		Handler:   handler,
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(module)
		}
	}
	return module
}

func (m *Module) RegisterActions(d *actions.Dispatcher) error {
	return d.RegisterFunc(ActionSearch, m.Search)
}

type searchResponse struct {
	Query struct {
		SearchInfo struct {
			TotalHits int `json:"totalhits"`
		} `json:"searchinfo"`
		Search []struct {
			PageID    int    `json:"pageid"`
			Title     string `json:"title"`
			Snippet   string `json:"snippet"`
			WordCount int    `json:"wordcount"`
		} `json:"search"`
	} `json:"query"`
}

func (m *Module) Search(ctx context.Context, req actions.Request) (map[string]any, error) {
	query, err := actions.RequireString(req.Params, "query")
	if err != nil {
		return nil, err
	}
	limit := actions.Int(req.Params, "limit", defaultLimit, maxLimit)

	res, err := actions.CallProvider(ctx, m.Handler, m.Adapter, "search", "", core.TransportRequest{
		Method:  http.MethodGet,
		URL:     m.BaseURL + "/w/api.php",
		Headers: map[string]string{"User-Agent": m.UserAgent, "Accept": "application/json"},
		Query: map[string]string{
			"action":   "query",
			"list":     "search",
			"srsearch": query,
			"srlimit":  strconv.Itoa(limit),
			"format":   "json",
			"utf8":     "1",
		},
	})
	if err != nil {
		return nil, err
	}

	var decoded searchResponse
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryExternal, core.ErrorParse, "wikipediamod: decode search response")
	}
	results := make([]map[string]any, 0, len(decoded.Query.Search))
	for _, hit := range decoded.Query.Search {
		results = append(results, map[string]any{
			"title":      hit.Title,
			"page_id":    hit.PageID,
			"snippet":    plainText(hit.Snippet),
			"word_count": hit.WordCount,
			"url":        m.articleURL(hit.Title),
		})
	}
	return map[string]any{
		"results":    results,
		"count":      len(results),
		"total_hits": decoded.Query.SearchInfo.TotalHits,
	}, nil
}

func (m *Module) articleURL(title string) string {
	return m.BaseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// plainText drops the search highlight markup from a snippet.
func plainText(snippet string) string {
	return strings.TrimSpace(html.UnescapeString(markupPattern.ReplaceAllString(snippet, "")))
}
