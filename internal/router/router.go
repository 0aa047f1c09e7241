package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chartwell-labs/second-opinion/internal/common"
	"github.com/chartwell-labs/second-opinion/internal/llm"
	"github.com/chartwell-labs/second-opinion/internal/service"
)

// FailureKind tags why a call could not produce a payload.
type FailureKind string

// Failure kinds.
const (
	FailureTimeout         FailureKind = "timeout"
	FailureRateLimit       FailureKind = "rate_limit"
	FailureMalformedOutput FailureKind = "malformed_output"
	FailureAuthError       FailureKind = "auth_error"
	FailureServerError     FailureKind = "server_error"
	FailureInvalidRequest  FailureKind = "invalid_request"
)

// Fatal reports whether the kind aborts the call instead of rotating to
// the next deployment.
func (k FailureKind) Fatal() bool {
	return k == FailureAuthError || k == FailureInvalidRequest
}

// Failure is one classified call failure.
type Failure struct {
	Err        error
	Deployment string
	Kind       FailureKind
}

// AttemptResult is the outcome of routing one prompt: either the raw text
// payload and the deployment that served it, or a terminal failure. The
// retryable failures hit along the way are kept for observability.
type AttemptResult struct {
	Text       string
	Deployment string
	Usage      llm.Usage
	Retries    []Failure
	Failure    *Failure
}

// OK reports whether the call produced a payload.
func (r AttemptResult) OK() bool {
	return r.Failure == nil
}

// Options tunes the router's failover behavior.
type Options struct {
	Logger *slog.Logger

	// ClientFactory builds backend clients; defaults to llm.NewClient.
	ClientFactory func(llm.Config) (llm.Client, error)

	// Retry is the per-deployment backoff applied to rate limits before
	// rotating. Other failures rotate immediately.
	Retry service.RetryOptions

	// MaxPasses is how many full trips through the deployment list to make
	// before giving up on a case.
	MaxPasses int

	// PassDelay is the pause between full-list passes.
	PassDelay time.Duration

	// RequestsPerMinute throttles outbound calls across all workers.
	// Zero disables the throttle.
	RequestsPerMinute int
}

// Router sends prompts to the first healthy deployment.
type Router struct {
	logger      *slog.Logger
	clients     map[string]llm.Client
	limiter     *rateLimiter
	deployments []DeploymentConfig
	opts        Options
	cursor      int
	mu          sync.Mutex
}

// New builds a router over the given deployment list.
func New(deployments []DeploymentConfig, opts Options) (*Router, error) {
	if len(deployments) == 0 {
		return nil, common.ErrNoDeployments
	}

	factory := opts.ClientFactory
	if factory == nil {
		factory = llm.NewClient
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = 2
	}
	if opts.PassDelay <= 0 {
		opts.PassDelay = 10 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = service.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clients := make(map[string]llm.Client, len(deployments))
	for i := range deployments {
		dep := &deployments[i]
		if err := dep.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
		}
		if _, exists := clients[dep.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate deployment name %q", common.ErrInvalidConfig, dep.Name)
		}
		client, err := factory(dep.ClientConfig())
		if err != nil {
			return nil, fmt.Errorf("building client for deployment %s: %w", dep.Name, err)
		}
		clients[dep.Name] = client
	}

	var limiter *rateLimiter
	if opts.RequestsPerMinute > 0 {
		limiter = newRateLimiter(opts.RequestsPerMinute)
	}

	return &Router{
		deployments: deployments,
		clients:     clients,
		limiter:     limiter,
		opts:        opts,
		logger:      logger,
	}, nil
}

// Close releases the router's background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

// Invoke routes one prompt. It never returns an error: the outcome,
// including terminal failure, is encoded in the AttemptResult so a batch
// can keep moving.
func (r *Router) Invoke(ctx context.Context, req llm.CompletionRequest) AttemptResult {
	c := &call{router: r, req: req, order: r.rotation()}
	for c.state == callAttempting {
		c.step(ctx)
	}
	return c.result()
}

// rotation returns the deployment order for one call, starting at the
// round-robin cursor.
func (r *Router) rotation() []DeploymentConfig {
	r.mu.Lock()
	start := r.cursor
	r.cursor = (r.cursor + 1) % len(r.deployments)
	r.mu.Unlock()

	order := make([]DeploymentConfig, 0, len(r.deployments))
	order = append(order, r.deployments[start:]...)
	order = append(order, r.deployments[:start]...)
	return order
}

// callState tracks one call's progress through the failover machine:
// attempting advances through deployments on retryable failures, a fatal
// failure aborts, success finishes, and running out of passes expires.
type callState int

const (
	callAttempting callState = iota
	callDone
	callAborted
	callExpired
)

type call struct {
	terminal *Failure
	router   *Router
	text     string
	servedBy string
	order    []DeploymentConfig
	retries  []Failure
	req      llm.CompletionRequest
	usage    llm.Usage
	index    int
	pass     int
	state    callState
}

// step performs one state transition.
func (c *call) step(ctx context.Context) {
	if c.index >= len(c.order) {
		c.pass++
		if c.pass >= c.router.opts.MaxPasses {
			c.expire()
			return
		}
		c.router.logger.Warn("all deployments failed, pausing before next pass",
			"pass", c.pass+1,
			"delay", c.router.opts.PassDelay)
		select {
		case <-ctx.Done():
			c.abort(Failure{Kind: FailureTimeout, Err: ctx.Err()})
			return
		case <-time.After(c.router.opts.PassDelay):
		}
		c.index = 0
	}

	dep := c.order[c.index]
	c.index++

	resp, err := c.router.attempt(ctx, dep, c.req)
	if err == nil {
		c.state = callDone
		c.text = resp.Text
		c.usage = resp.Usage
		c.servedBy = dep.Name
		return
	}

	failure := classify(dep.Name, err)
	if failure.Kind.Fatal() {
		c.router.logger.Error("deployment failed fatally, aborting",
			"deployment", dep.Name,
			"kind", failure.Kind,
			"error", err)
		c.abort(failure)
		return
	}
	if ctx.Err() != nil {
		c.abort(Failure{Deployment: dep.Name, Kind: FailureTimeout, Err: ctx.Err()})
		return
	}

	c.retries = append(c.retries, failure)
	c.router.logger.Warn("deployment failed, rotating",
		"deployment", dep.Name,
		"kind", failure.Kind,
		"error", err)
}

func (c *call) abort(f Failure) {
	c.state = callAborted
	c.terminal = &f
}

func (c *call) expire() {
	c.state = callExpired
	last := c.retries[len(c.retries)-1]
	c.terminal = &Failure{
		Deployment: last.Deployment,
		Kind:       last.Kind,
		Err: fmt.Errorf("all deployments failed after %d passes: %w",
			c.router.opts.MaxPasses, last.Err),
	}
}

func (c *call) result() AttemptResult {
	return AttemptResult{
		Text:       c.text,
		Deployment: c.servedBy,
		Usage:      c.usage,
		Retries:    c.retries,
		Failure:    c.terminal,
	}
}

// attempt calls one deployment, retrying rate limits with exponential
// backoff. Any other failure stops the retry loop so the caller can rotate
// or abort.
func (r *Router) attempt(ctx context.Context, dep DeploymentConfig, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	client := r.clients[dep.Name]
	if req.MaxTokens == 0 {
		req.MaxTokens = dep.MaxTokens
	}

	var resp llm.CompletionResponse
	err := common.WithRetry(ctx, func() error {
		if r.limiter != nil {
			if err := r.limiter.wait(ctx); err != nil {
				return &common.RetryableError{Err: err, Retryable: false}
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, dep.timeout())
		defer cancel()

		out, err := client.Complete(callCtx, req)
		if err != nil {
			if llm.IsRateLimitError(err) {
				return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
			}
			return &common.RetryableError{Err: err, Retryable: false}
		}
		resp = out
		return nil
	}, r.opts.Retry)

	return resp, err
}

// classify maps an error from a deployment attempt onto a failure kind.
func classify(deployment string, err error) Failure {
	f := Failure{Deployment: deployment, Err: err}

	var rateLimit *llm.RateLimitError
	var auth *llm.AuthError
	var server *llm.ServerError
	var transport *llm.TransportError

	switch {
	case errors.As(err, &rateLimit), errors.Is(err, common.ErrRateLimit):
		f.Kind = FailureRateLimit
	case errors.As(err, &auth):
		f.Kind = FailureAuthError
	case errors.As(err, &server):
		f.Kind = FailureServerError
	case errors.As(err, &transport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		f.Kind = FailureTimeout
	default:
		f.Kind = FailureInvalidRequest
	}
	return f
}
