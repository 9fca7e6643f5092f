package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/ratelimit"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMultiplier      = 2.0
	DefaultRequestTimeout  = 30 * time.Second
)

var errBodyNotReplayable = errors.New("transport: request body cannot be replayed")

type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		Multiplier:      DefaultMultiplier,
		MaxInterval:     10 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxTries == 0 {
		p.MaxTries = defaults.MaxTries
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaults.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaults.Multiplier
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaults.MaxInterval
	}
	return p
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxInterval
	return b
}

// RetryingDoer retries transport failures, 429 and 5xx responses with
// exponential backoff. The last response is handed back unchanged so callers
// such as slack-go can decode it into their own error types.
type RetryingDoer struct {
	Client HTTPDoer
	Policy RetryPolicy
	Logger core.Logger
}

func NewRetryingDoer(client HTTPDoer, policy RetryPolicy, logger core.Logger) *RetryingDoer {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if logger == nil {
		logger = glog.Nop()
	}
	return &RetryingDoer{
		Client: client,
		Policy: policy.normalized(),
		Logger: logger,
	}
}

func (d *RetryingDoer) Do(req *http.Request) (*http.Response, error) {
	if d == nil || d.Client == nil {
		return nil, fmt.Errorf("transport: retrying doer is not configured")
	}
	if req == nil {
		return nil, fmt.Errorf("transport: request is nil")
	}
	ctx := req.Context()
	policy := d.Policy.normalized()
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	attempt := uint(0)
	return backoff.Retry(ctx, func() (*http.Response, error) {
		attempt++
		outgoing := req
		if attempt > 1 {
			if !replayable {
				return nil, backoff.Permanent(errBodyNotReplayable)
			}
			outgoing = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, backoff.Permanent(err)
				}
				outgoing.Body = body
			}
			d.logger(ctx).Debug("transport: retrying request",
				"attempt", attempt,
				"method", req.Method,
				"path", req.URL.Path,
			)
		}

		res, err := d.Client.Do(outgoing)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if !retryableStatus(res.StatusCode) || attempt >= policy.MaxTries {
			return res, nil
		}

		retryAfter, hasRetryAfter := ratelimit.ParseRetryAfterHeader(res.Header.Get("Retry-After"), time.Now())
		drain(res)
		d.logger(ctx).Warn("transport: retryable response",
			"status", res.StatusCode,
			"attempt", attempt,
			"path", req.URL.Path,
		)
		if hasRetryAfter {
			return nil, backoff.RetryAfter(int(retryAfter.Round(time.Second) / time.Second))
		}
		return nil, fmt.Errorf("transport: retryable status %d", res.StatusCode)
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(policy.MaxTries),
	)
}

func (d *RetryingDoer) logger(ctx context.Context) core.Logger {
	if d.Logger == nil {
		return glog.Nop()
	}
	return d.Logger.WithContext(ctx)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func drain(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	_ = res.Body.Close()
}

var _ HTTPDoer = (*RetryingDoer)(nil)
