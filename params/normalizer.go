package params

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	glog "github.com/goliatone/go-logger/glog"
)

type Kind string

const (
	KindMapping     Kind = "mapping"
	KindPassthrough Kind = "passthrough"
	KindFailure     Kind = "failure"
)

const maxDepth = 8

const RawKey = "raw"

// Result is the outcome of decoding an AI call's parameters. Mapping is set for
// KindMapping and KindFailure, Value for KindPassthrough, Err for KindFailure.
type Result struct {
	Kind    Kind
	Mapping map[string]any
	Value   any
	Err     error
}

func (r Result) Params() map[string]any {
	switch r.Kind {
	case KindMapping, KindFailure:
		if r.Mapping == nil {
			return map[string]any{}
		}
		return r.Mapping
	default:
		if mapping, ok := r.Value.(map[string]any); ok {
			return mapping
		}
		if r.Value == nil {
			return map[string]any{}
		}
		return map[string]any{RawKey: r.Value}
	}
}

func (r Result) OK() bool {
	return r.Kind == KindMapping
}

func Normalize(raw any) Result {
	return normalize(raw, 0)
}

func normalize(raw any, depth int) Result {
	if depth > maxDepth {
		return passthrough(raw)
	}
	switch typed := raw.(type) {
	case nil:
		return mapping(map[string]any{})
	case map[string]any:
		if first, ok := arrayLikeFirst(typed); ok {
			return normalizeEncodedElement(first, typed, depth)
		}
		return mapping(typed)
	case []any:
		if len(typed) == 0 {
			return passthrough(typed)
		}
		first, ok := typed[0].(string)
		if !ok {
			return passthrough(typed)
		}
		return normalizeEncodedElement(first, typed, depth)
	case []string:
		if len(typed) == 0 {
			return passthrough(typed)
		}
		return normalizeEncodedElement(typed[0], typed, depth)
	case string:
		return normalizeString(typed, typed, depth)
	case json.RawMessage:
		return normalizeString(string(typed), string(typed), depth)
	case []byte:
		return normalizeString(string(typed), string(typed), depth)
	default:
		return passthrough(raw)
	}
}

// normalizeEncodedElement parses the JSON string carried by an array or
// array-like object; the container is returned unchanged when it is not JSON.
func normalizeEncodedElement(element any, container any, depth int) Result {
	encoded, ok := element.(string)
	if !ok {
		return unchanged(container)
	}
	var parsed any
	if err := json.Unmarshal([]byte(strings.TrimSpace(encoded)), &parsed); err != nil {
		return unchanged(container)
	}
	return normalizeParsed(parsed, depth)
}

// normalizeString reports failures against original, the caller's input.
func normalizeString(value string, original string, depth int) Result {
	if depth > maxDepth {
		return passthrough(value)
	}
	var parsed any
	if err := json.Unmarshal([]byte(strings.TrimSpace(value)), &parsed); err != nil {
		return failure(original, err)
	}
	if items, ok := parsed.([]any); ok && len(items) > 0 {
		if inner, ok := items[0].(string); ok {
			return normalizeString(inner, original, depth+1)
		}
	}
	return normalizeParsed(parsed, depth)
}

func normalizeParsed(parsed any, depth int) Result {
	switch typed := parsed.(type) {
	case map[string]any:
		return normalize(typed, depth+1)
	case string:
		nested := normalizeString(typed, typed, depth+1)
		if nested.Kind == KindFailure {
			return passthrough(typed)
		}
		return nested
	default:
		return passthrough(parsed)
	}
}

func arrayLikeFirst(value map[string]any) (any, bool) {
	first, hasFirst := value["0"]
	if !hasFirst {
		return nil, false
	}
	switch length := value["length"].(type) {
	case float64, int, int64, json.Number:
		return first, true
	case string:
		if _, err := strconv.Atoi(length); err == nil {
			return first, true
		}
	}
	return nil, false
}

func unchanged(container any) Result {
	if typed, ok := container.(map[string]any); ok {
		return mapping(typed)
	}
	return passthrough(container)
}

func mapping(value map[string]any) Result {
	return Result{Kind: KindMapping, Mapping: value}
}

func passthrough(value any) Result {
	return Result{Kind: KindPassthrough, Value: value}
}

func failure(original string, err error) Result {
	return Result{
		Kind:    KindFailure,
		Mapping: map[string]any{RawKey: original},
		Err: goerrors.Wrap(err, goerrors.CategoryBadInput, "params: parameters are not valid JSON").
			WithTextCode(core.ErrorParse),
	}
}

// Normalizer wraps Normalize and logs degraded decodes as warnings.
type Normalizer struct {
	Logger core.Logger
}

func NewNormalizer(logger core.Logger) *Normalizer {
	if logger == nil {
		logger = glog.Nop()
	}
	return &Normalizer{Logger: logger}
}

func (n *Normalizer) Normalize(ctx context.Context, raw any) map[string]any {
	result := Normalize(raw)
	if n == nil || n.Logger == nil {
		return result.Params()
	}
	logger := n.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	switch result.Kind {
	case KindFailure:
		logger.Warn("params: falling back to raw parameters",
			"error", result.Err,
			"input", core.TruncateContext(fmt.Sprint(raw), core.DefaultContextTruncation),
		)
	case KindPassthrough:
		logger.Warn("params: parameters passed through without decoding",
			"type", fmt.Sprintf("%T", result.Value),
		)
	}
	return result.Params()
}
