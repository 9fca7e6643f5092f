package transport

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
)

const KindGraphQL = "graphql"

// GraphQL request options travel in TransportRequest.Metadata under these
// keys; a raw query may also be sent as the request body.
const (
	MetadataGraphQLQuery         = "query"
	MetadataGraphQLOperationName = "operation_name"
	MetadataGraphQLVariables     = "variables"
)

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// GraphQLAdapter posts GraphQL documents over a RESTAdapter.
type GraphQLAdapter struct {
	Endpoint string
	REST     *RESTAdapter
}

func NewGraphQLAdapter(endpoint string, client HTTPDoer) *GraphQLAdapter {
	return &GraphQLAdapter{
		Endpoint: strings.TrimSpace(endpoint),
		REST:     NewRESTAdapter(client),
	}
}

func (*GraphQLAdapter) Kind() string {
	return KindGraphQL
}

func (a *GraphQLAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.REST == nil {
		return core.TransportResponse{}, transportError(
			"transport: graphql adapter requires a rest adapter",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindGraphQL},
		)
	}
	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		endpoint = a.Endpoint
	}
	if endpoint == "" {
		return core.TransportResponse{}, transportError(
			"transport: graphql endpoint is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	payload := graphQLRequest{
		Query:         metadataString(req.Metadata, MetadataGraphQLQuery),
		OperationName: metadataString(req.Metadata, MetadataGraphQLOperationName),
	}
	if payload.Query == "" {
		payload.Query = strings.TrimSpace(string(req.Body))
	}
	if payload.Query == "" {
		return core.TransportResponse{}, transportError(
			"transport: graphql query is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}
	if variables, ok := req.Metadata[MetadataGraphQLVariables].(map[string]any); ok {
		payload.Variables = maps.Clone(variables)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: marshal graphql payload",
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	maps.Copy(headers, req.Headers)
	res, err := a.REST.Do(ctx, core.TransportRequest{
		Method:               http.MethodPost,
		URL:                  endpoint,
		Headers:              headers,
		Body:                 body,
		Metadata:             req.Metadata,
		Timeout:              req.Timeout,
		MaxResponseBodyBytes: req.MaxResponseBodyBytes,
	})
	if err != nil {
		return core.TransportResponse{}, err
	}
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["kind"] = KindGraphQL
	if payload.OperationName != "" {
		res.Metadata["operation_name"] = payload.OperationName
	}
	return res, nil
}

func metadataString(metadata map[string]any, key string) string {
	value, ok := metadata[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// DecodeGraphQL checks the HTTP status, surfaces GraphQL-level errors as
// API_ERROR and decodes the data member into out.
func DecodeGraphQL(provider string, res core.TransportResponse, out any) error {
	if err := StatusError(provider, res); err != nil {
		return err
	}
	var envelope graphQLEnvelope
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode graphql response",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "provider": provider},
		)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, item := range envelope.Errors {
			if message := strings.TrimSpace(item.Message); message != "" {
				messages = append(messages, message)
			}
		}
		joined := strings.Join(messages, "; ")
		return goerrors.New("transport: graphql request returned errors", goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorAPI).
			WithMetadata(map[string]any{
				"provider":                 provider,
				core.MetadataPlatformError: core.TruncateContext(joined, core.DefaultContextTruncation),
				core.MetadataRetryable:     false,
			})
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode graphql data",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "provider": provider},
		)
	}
	return nil
}

var _ core.TransportAdapter = (*GraphQLAdapter)(nil)
