// Package githubmod searches GitHub through the REST transport adapter using the
// caller's stored GitHub token.
package githubmod

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/response"
)

const (
	ActionSearchRepositories = "github_search_repositories"

	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	defaultLimit   = 10
	maxLimit       = 100
)

type Option func(*Module)

func WithBaseURL(baseURL string) Option {
	return func(m *Module) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			m.BaseURL = baseURL
		}
	}
}

type Module struct {
	Credentials core.CredentialStore
	Adapter     core.TransportAdapter
	Handler     *response.Handler
	BaseURL     string
}

// NewModule expects handler to be bound to the github provider so cooldowns
// and breakers stay separate from Slack's.
func NewModule(credentials core.CredentialStore, adapter core.TransportAdapter, handler *response.Handler, opts ...Option) *Module {
	module := &Module{
		Credentials: credentials,
		Adapter:     adapter,
		Handler:     handler,
		BaseURL:     DefaultBaseURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(module)
		}
	}
	return module
}

func (m *Module) RegisterActions(d *actions.Dispatcher) error {
	return d.RegisterFunc(ActionSearchRepositories, m.SearchRepositories)
}

type searchResponse struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []repository `json:"items"`
}

type repository struct {
	FullName        string `json:"full_name"`
	HTMLURL         string `json:"html_url"`
	Description     string `json:"description"`
	Language        string `json:"language"`
	StargazersCount int    `json:"stargazers_count"`
	Archived        bool   `json:"archived"`
}

func (m *Module) SearchRepositories(ctx context.Context, req actions.Request) (map[string]any, error) {
	query, err := actions.RequireString(req.Params, "query")
	if err != nil {
		return nil, err
	}
	limit := actions.Int(req.Params, "limit", defaultLimit, maxLimit)
	cred, err := actions.ProviderToken(ctx, m.Credentials, core.ProviderGitHub, req)
	if err != nil {
		return nil, err
	}

	res, err := actions.CallProvider(ctx, m.Handler, m.Adapter, "search.repositories", cred.UserID, core.TransportRequest{
		Method: http.MethodGet,
		URL:    m.BaseURL + "/search/repositories",
		Headers: map[string]string{
			"Accept":               "application/vnd.github+json",
			"Authorization":        "Bearer " + cred.Token,
			"X-GitHub-Api-Version": apiVersion,
		},
		Query: map[string]string{
			"q":        query,
			"per_page": strconv.Itoa(limit),
		},
	})
	if err != nil {
		return nil, err
	}

	var decoded searchResponse
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryExternal, core.ErrorParse, "githubmod: decode search response")
	}
	repositories := make([]map[string]any, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		repositories = append(repositories, map[string]any{
			"full_name":   item.FullName,
			"url":         item.HTMLURL,
			"description": item.Description,
			"language":    item.Language,
			"stars":       item.StargazersCount,
			"archived":    item.Archived,
		})
	}
	return map[string]any{
		"repositories": repositories,
		"count":        len(repositories),
		"total_count":  decoded.TotalCount,
		"incomplete":   decoded.IncompleteResults,
	}, nil
}
