// Package client implements the unified LLM client: a registry of provider
// adapters keyed by provider name, wrapped in caller-supplied blocking and
// streaming middleware chains. It is the single entry point the generate API
// and pipeline codergen handler call through.
package client

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
	"github.com/pipeforge/pipeforge/runtime/llm/provider/anthropic"
	"github.com/pipeforge/pipeforge/runtime/llm/provider/gemini"
	"github.com/pipeforge/pipeforge/runtime/llm/provider/openai"
)

type (
	// Provider is the contract every provider adapter satisfies.
	Provider interface {
		Name() string
		Complete(ctx context.Context, req model.Request) (*model.Response, error)
		Stream(ctx context.Context, req model.Request) (model.Streamer, error)
	}

	// CompleteFunc is the shape wrapped by blocking middleware.
	CompleteFunc func(ctx context.Context, req model.Request) (*model.Response, error)

	// StreamFunc is the shape wrapped by streaming middleware.
	StreamFunc func(ctx context.Context, req model.Request) (model.Streamer, error)

	// BlockingMiddleware wraps a CompleteFunc with cross-cutting behavior
	// (logging, metrics, retries). Middlewares are applied in the order
	// they are registered, outermost first.
	BlockingMiddleware func(next CompleteFunc) CompleteFunc

	// StreamMiddleware wraps a StreamFunc the same way BlockingMiddleware
	// wraps a CompleteFunc.
	StreamMiddleware func(next StreamFunc) StreamFunc

	// Client is the registry + middleware chain described in spec §4.8.
	Client struct {
		mu              sync.RWMutex
		providers       map[string]Provider
		defaultProvider string
		blocking        []BlockingMiddleware
		streaming       []StreamMiddleware
	}
)

// New builds an empty Client. Providers are added with Register.
func New() *Client {
	return &Client{providers: make(map[string]Provider)}
}

// Register adds a provider adapter to the registry under its own Name(). The
// first registered provider becomes the default unless SetDefault is called.
func (c *Client) Register(p Provider) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Name()] = p
	if c.defaultProvider == "" {
		c.defaultProvider = p.Name()
	}
	return c
}

// SetDefault overrides which provider handles a Request with an empty
// Provider field.
func (c *Client) SetDefault(name string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultProvider = name
	return c
}

// Use appends a blocking middleware to the chain applied by Complete.
func (c *Client) Use(mw BlockingMiddleware) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocking = append(c.blocking, mw)
	return c
}

// UseStream appends a streaming middleware to the chain applied by Stream.
func (c *Client) UseStream(mw StreamMiddleware) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = append(c.streaming, mw)
	return c
}

// LiftBlocking adapts a BlockingMiddleware into a StreamMiddleware that
// passes streaming calls straight through to the underlying adapter
// (spec §4.8: "blocking middlewares are lifted to pass-through stream
// middlewares"). The wrapped mw is not invoked on streaming calls: none of
// its pre/post-call behavior runs for a Stream request.
func LiftBlocking(mw BlockingMiddleware) StreamMiddleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, req model.Request) (model.Streamer, error) {
			return next(ctx, req)
		}
	}
}

func (c *Client) resolve(req model.Request) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &model.ConfigurationError{Msg: "no provider specified and no default provider configured"}
	}
	p, ok := c.providers[name]
	if !ok {
		return nil, &model.ConfigurationError{Msg: fmt.Sprintf("unknown provider %q", name)}
	}
	return p, nil
}

// Complete resolves the provider via request.Provider or the configured
// default, then runs it through the blocking middleware chain.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	p, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	fn := chainBlocking(p.Complete, c.snapshotBlocking())
	return fn(ctx, req)
}

// Stream resolves the provider via request.Provider or the configured
// default, then runs it through the streaming middleware chain.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	p, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	fn := chainStreaming(p.Stream, c.snapshotStreaming())
	return fn(ctx, req)
}

func (c *Client) snapshotBlocking() []BlockingMiddleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]BlockingMiddleware, len(c.blocking))
	copy(out, c.blocking)
	return out
}

func (c *Client) snapshotStreaming() []StreamMiddleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]StreamMiddleware, len(c.streaming))
	copy(out, c.streaming)
	return out
}

// chainBlocking wraps base with mws applied outermost-first: mws[0] sees the
// call before mws[1], and so on down to base.
func chainBlocking(base CompleteFunc, mws []BlockingMiddleware) CompleteFunc {
	fn := base
	for i := len(mws) - 1; i >= 0; i-- {
		fn = mws[i](fn)
	}
	return fn
}

func chainStreaming(base StreamFunc, mws []StreamMiddleware) StreamFunc {
	fn := base
	for i := len(mws) - 1; i >= 0; i-- {
		fn = mws[i](fn)
	}
	return fn
}

// FromEnv detects provider credentials from well-known environment
// variables and registers only the providers whose credentials are present.
// It never errors on a missing credential; a Client with zero providers is
// valid (every Complete/Stream call then fails with a ConfigurationError).
func FromEnv(ctx context.Context) (*Client, error) {
	c := New()
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		modelID := envOr("ANTHROPIC_DEFAULT_MODEL", "claude-sonnet-4-5")
		p, err := anthropic.NewFromAPIKey(key, modelID)
		if err != nil {
			return nil, fmt.Errorf("client: configuring anthropic from environment: %w", err)
		}
		c.Register(p)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		modelID := envOr("OPENAI_DEFAULT_MODEL", "gpt-5")
		p, err := openai.NewFromAPIKey(key, modelID)
		if err != nil {
			return nil, fmt.Errorf("client: configuring openai from environment: %w", err)
		}
		c.Register(p)
	}
	if key := firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")); key != "" {
		modelID := envOr("GEMINI_DEFAULT_MODEL", "gemini-2.5-pro")
		p, err := gemini.NewFromAPIKey(ctx, key, modelID)
		if err != nil {
			return nil, fmt.Errorf("client: configuring gemini from environment: %w", err)
		}
		c.Register(p)
	}
	if def := os.Getenv("PIPEFORGE_DEFAULT_PROVIDER"); def != "" {
		c.SetDefault(def)
	}
	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
