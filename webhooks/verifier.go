package webhooks

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-mods/core"
	"github.com/slack-go/slack"
)

const (
	HeaderSlackSignature = "X-Slack-Signature"
	HeaderSlackTimestamp = "X-Slack-Request-Timestamp"
)

const DefaultSignatureWindow = core.MaxSignatureWindow

// SlackSignatureVerifier checks the v0 request signature Slack attaches to
// every Events API delivery.
type SlackSignatureVerifier struct {
	Secret string
	// Window narrows the freshness check. slack.SecretsVerifier still applies
	// its own fixed bound of core.MaxSignatureWindow.
	Window time.Duration
	Now    func() time.Time
}

func NewSlackSignatureVerifier(secret string, window time.Duration) SlackSignatureVerifier {
	return SlackSignatureVerifier{
		Secret: strings.TrimSpace(secret),
		Window: window,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (v SlackSignatureVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return signatureError("webhooks: signing secret is not configured", nil)
	}
	signature := strings.TrimSpace(headerValue(req.Headers, HeaderSlackSignature))
	rawTimestamp := strings.TrimSpace(headerValue(req.Headers, HeaderSlackTimestamp))
	if signature == "" || rawTimestamp == "" {
		return signatureError("webhooks: signature headers are required", map[string]any{
			"has_signature": signature != "",
			"has_timestamp": rawTimestamp != "",
		})
	}

	seconds, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return signatureWrapError(err, "webhooks: request timestamp is not numeric", nil)
	}
	skew := v.now().Sub(time.Unix(seconds, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window() {
		return signatureError("webhooks: request timestamp outside freshness window", map[string]any{
			"skew_ms":   skew.Milliseconds(),
			"window_ms": v.window().Milliseconds(),
		})
	}

	header := http.Header{}
	header.Set(HeaderSlackSignature, signature)
	header.Set(HeaderSlackTimestamp, rawTimestamp)
	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return signatureWrapError(err, "webhooks: signature rejected", nil)
	}
	if _, err := sv.Write(req.Body); err != nil {
		return signatureWrapError(err, "webhooks: hash request body", nil)
	}
	if err := sv.Ensure(); err != nil {
		return signatureWrapError(err, "webhooks: signature mismatch", nil)
	}
	return nil
}

func (v SlackSignatureVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func (v SlackSignatureVerifier) window() time.Duration {
	if v.Window <= 0 || v.Window > core.MaxSignatureWindow {
		return DefaultSignatureWindow
	}
	return v.Window
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

var _ core.InboundVerifier = SlackSignatureVerifier{}
