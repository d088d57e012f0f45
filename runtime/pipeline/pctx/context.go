package pctx

import "sort"

// Well-known context keys the engine writes after every handler dispatch.
const (
	KeyOutcome    = "outcome"
	KeyLastStage  = "last_stage"
	KeyGoal       = "goal"
)

// Context is the mapping string -> Value threaded through a pipeline run.
// It is single-writer per thread of control: the engine and the currently
// running handler own it outright; a parallel fan-out branch works against
// its own Clone and is recombined at fan-in.
type Context struct {
	values map[string]Value
}

// New returns an empty Context.
func New() *Context {
	return &Context{values: make(map[string]Value)}
}

// Get returns the Value stored at key and whether it was present.
func (c *Context) Get(key string) (Value, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Set stores v at key, overwriting any prior value.
func (c *Context) Set(key string, v Value) {
	c.values[key] = v
}

// GetString returns the string at key, or def on miss or type mismatch.
func (c *Context) GetString(key, def string) string {
	if v, ok := c.values[key]; ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return def
}

// GetInt returns the number at key truncated to int, or def on miss or type
// mismatch.
func (c *Context) GetInt(key string, def int) int {
	if v, ok := c.values[key]; ok {
		if n, ok := v.AsNumber(); ok {
			return int(n)
		}
	}
	return def
}

// GetBool returns the bool at key, or def on miss or type mismatch.
func (c *Context) GetBool(key string, def bool) bool {
	if v, ok := c.values[key]; ok {
		if b, ok := v.AsBool(); ok {
			return b
		}
	}
	return def
}

// Keys returns every key currently set, sorted, so callers that enumerate
// the context (logging, checkpoint serialization) get deterministic order.
func (c *Context) Keys() []string {
	out := make([]string, 0, len(c.values))
	for k := range c.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy, used to give each parallel fan-out branch its
// own isolated context (spec §4.3/§5).
func (c *Context) Clone() *Context {
	out := make(map[string]Value, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return &Context{values: out}
}

// Merge applies updates on top of c, overwriting any existing keys. Used to
// apply an Outcome's ContextUpdates on SUCCESS/PARTIAL_SUCCESS (spec §4.5
// step 4) and to recombine a fan-in branch's updates into the parent
// context.
func (c *Context) Merge(updates map[string]Value) {
	for k, v := range updates {
		c.values[k] = v
	}
}

// Snapshot returns a plain map copy suitable for checkpoint serialization.
func (c *Context) Snapshot() map[string]Value {
	out := make(map[string]Value, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// FromSnapshot rebuilds a Context from a checkpoint's saved values.
func FromSnapshot(values map[string]Value) *Context {
	out := make(map[string]Value, len(values))
	for k, v := range values {
		out[k] = v
	}
	return &Context{values: out}
}
