// Package linearmod lists Linear issues through the GraphQL transport adapter.
package linearmod

import (
	"context"
	"strings"

	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/response"
	"github.com/goliatone/go-mods/transport"
)

const (
	ActionListIssues = "linear_list_issues"

	DefaultEndpoint = "https://api.linear.app/graphql"
	defaultLimit    = 25
	maxLimit        = 100
)

const listIssuesQuery = `query ListIssues($first: Int!, $filter: IssueFilter) {
  issues(first: $first, filter: $filter, orderBy: updatedAt) {
    nodes {
      identifier
      title
      url
      priority
      updatedAt
      state { name }
      assignee { name }
      team { key }
    }
  }
}`

type Option func(*Module)

func WithEndpoint(endpoint string) Option {
	return func(m *Module) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			m.Endpoint = endpoint
		}
	}
}

type Module struct {
	Credentials core.CredentialStore
	Adapter     core.TransportAdapter
	Handler     *response.Handler
	Endpoint    string
}

func NewModule(credentials core.CredentialStore, adapter core.TransportAdapter, handler *response.Handler, opts ...Option) *Module {
	module := &Module{
		Credentials: credentials,
		Adapter:     adapter,
		Handler:     handler,
		Endpoint:    DefaultEndpoint,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(module)
		}
	}
	return module
}

func (m *Module) RegisterActions(d *actions.Dispatcher) error {
	return d.RegisterFunc(ActionListIssues, m.ListIssues)
}

type issuesData struct {
	Issues struct {
		Nodes []issueNode `json:"nodes"`
	} `json:"issues"`
}

type issueNode struct {
	Identifier string  `json:"identifier"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Priority   float64 `json:"priority"`
	UpdatedAt  string  `json:"updatedAt"`
	State      *named  `json:"state"`
	Assignee   *named  `json:"assignee"`
	Team       *struct {
		Key string `json:"key"`
	} `json:"team"`
}

type named struct {
	Name string `json:"name"`
}

// ListIssues returns the most recently updated issues, optionally narrowed by
// team key and state name.
func (m *Module) ListIssues(ctx context.Context, req actions.Request) (map[string]any, error) {
	limit := actions.Int(req.Params, "limit", defaultLimit, maxLimit)
	cred, err := actions.ProviderToken(ctx, m.Credentials, core.ProviderLinear, req)
	if err != nil {
		return nil, err
	}

	variables := map[string]any{"first": limit}
	filter := map[string]any{}
	if team := actions.String(req.Params, "team"); team != "" {
		filter["team"] = map[string]any{"key": map[string]any{"eq": team}}
	}
	if state := actions.String(req.Params, "state"); state != "" {
		filter["state"] = map[string]any{"name": map[string]any{"eqIgnoreCase": state}}
	}
	if len(filter) > 0 {
		variables["filter"] = filter
	}

	res, err := actions.CallProvider(ctx, m.Handler, m.Adapter, "issues.list", cred.UserID, core.TransportRequest{
		URL:     m.Endpoint,
		Headers: map[string]string{"Authorization": "Bearer " + cred.Token},
		Metadata: map[string]any{
			"query":          listIssuesQuery,
			"operation_name": "ListIssues",
			"variables":      variables,
		},
	})
	if err != nil {
		return nil, err
	}
	var data issuesData
	if err := transport.DecodeGraphQL(core.ProviderLinear, res, &data); err != nil {
		return nil, response.Classify(err)
	}

	issues := make([]map[string]any, 0, len(data.Issues.Nodes))
	for _, node := range data.Issues.Nodes {
		issue := map[string]any{
			"identifier": node.Identifier,
			"title":      node.Title,
			"url":        node.URL,
			"priority":   int(node.Priority),
			"updated_at": node.UpdatedAt,
		}
		if node.State != nil {
			issue["state"] = node.State.Name
		}
		if node.Assignee != nil {
			issue["assignee"] = node.Assignee.Name
		}
		if node.Team != nil {
			issue["team"] = node.Team.Key
		}
		issues = append(issues, issue)
	}
	return map[string]any{"issues": issues, "count": len(issues)}, nil
}
