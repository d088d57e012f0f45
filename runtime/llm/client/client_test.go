package client

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

type fakeProvider struct {
	name  string
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	p.calls++
	return &model.Response{Provider: p.name, FinishReason: model.FinishStop}, nil
}

func (p *fakeProvider) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	p.calls++
	return &fakeStreamer{}, nil
}

type fakeStreamer struct{ done bool }

func (s *fakeStreamer) Recv() (model.StreamEvent, error) {
	if s.done {
		return model.StreamEvent{}, io.EOF
	}
	s.done = true
	return model.StreamEvent{Type: model.StreamFinish, Response: &model.Response{}}, nil
}

func (s *fakeStreamer) Close() error { return nil }

func TestClient_ResolvesDefaultProvider(t *testing.T) {
	p := &fakeProvider{name: "anthropic"}
	c := New().Register(p)

	resp, err := c.Complete(context.Background(), model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 1, p.calls)
}

func TestClient_ResolvesNamedProvider(t *testing.T) {
	a := &fakeProvider{name: "anthropic"}
	o := &fakeProvider{name: "openai"}
	c := New().Register(a).Register(o)

	resp, err := c.Complete(context.Background(), model.Request{Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 0, a.calls)
	assert.Equal(t, 1, o.calls)
}

func TestClient_SetDefaultOverridesFirstRegistered(t *testing.T) {
	a := &fakeProvider{name: "anthropic"}
	o := &fakeProvider{name: "openai"}
	c := New().Register(a).Register(o).SetDefault("openai")

	resp, err := c.Complete(context.Background(), model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
}

func TestClient_UnknownProviderIsConfigurationError(t *testing.T) {
	c := New().Register(&fakeProvider{name: "anthropic"})
	_, err := c.Complete(context.Background(), model.Request{Provider: "missing"})
	require.Error(t, err)
	var cfgErr *model.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestClient_NoProvidersConfiguredIsConfigurationError(t *testing.T) {
	c := New()
	_, err := c.Complete(context.Background(), model.Request{})
	require.Error(t, err)
	var cfgErr *model.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestClient_BlockingMiddlewareAppliedOutermostFirst(t *testing.T) {
	p := &fakeProvider{name: "anthropic"}
	c := New().Register(p)

	var order []string
	mw := func(tag string) BlockingMiddleware {
		return func(next CompleteFunc) CompleteFunc {
			return func(ctx context.Context, req model.Request) (*model.Response, error) {
				order = append(order, tag+":before")
				resp, err := next(ctx, req)
				order = append(order, tag+":after")
				return resp, err
			}
		}
	}
	c.Use(mw("outer")).Use(mw("inner"))

	_, err := c.Complete(context.Background(), model.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer:before", "inner:before", "inner:after", "outer:after"}, order)
}

func TestClient_MiddlewareCanShortCircuit(t *testing.T) {
	p := &fakeProvider{name: "anthropic"}
	c := New().Register(p)

	sentinel := errors.New("blocked")
	c.Use(func(next CompleteFunc) CompleteFunc {
		return func(ctx context.Context, req model.Request) (*model.Response, error) {
			return nil, sentinel
		}
	})

	_, err := c.Complete(context.Background(), model.Request{})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 0, p.calls)
}

func TestClient_StreamResolvesAndAppliesMiddleware(t *testing.T) {
	p := &fakeProvider{name: "anthropic"}
	c := New().Register(p)

	var called bool
	c.UseStream(func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, req model.Request) (model.Streamer, error) {
			called = true
			return next(ctx, req)
		}
	})

	s, err := c.Stream(context.Background(), model.Request{})
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, called)
	assert.Equal(t, 1, p.calls)
}

func TestLiftBlocking_PassesStreamThrough(t *testing.T) {
	p := &fakeProvider{name: "anthropic"}
	c := New().Register(p)

	var blockingCalled bool
	c.UseStream(LiftBlocking(func(next CompleteFunc) CompleteFunc {
		return func(ctx context.Context, req model.Request) (*model.Response, error) {
			blockingCalled = true
			return next(ctx, req)
		}
	}))

	s, err := c.Stream(context.Background(), model.Request{})
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, blockingCalled)
	assert.Equal(t, 1, p.calls)
}
