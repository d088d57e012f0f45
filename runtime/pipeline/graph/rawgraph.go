package graph

// RawGraph is the plain data carrier a graph-source parser produces
// (spec §6: `parseGraphSource(text) -> RawGraph`). No parser implementation
// lives in this module; tests and callers construct RawGraph values
// directly, the same way the teacher's codegen tests construct IR values
// directly rather than re-parsing source.
type RawGraph struct {
	Name string `yaml:"name" json:"name"`
	Goal string `yaml:"goal" json:"goal"`

	Nodes []RawNode `yaml:"nodes" json:"nodes"`
	Edges []RawEdge `yaml:"edges" json:"edges"`

	// SubgraphLabels maps a subgraph name to its declared label, the
	// source of derived class tokens (spec §4.1: "deriving class tokens
	// from subgraph labels").
	SubgraphLabels map[string]string `yaml:"subgraph_labels,omitempty" json:"subgraph_labels,omitempty"`

	// NodeSubgraph maps a node id to the subgraph it was declared inside,
	// empty for top-level nodes.
	NodeSubgraph map[string]string `yaml:"node_subgraph,omitempty" json:"node_subgraph,omitempty"`

	Stylesheet []RawRule `yaml:"stylesheet,omitempty" json:"stylesheet,omitempty"`

	DefaultMaxRetry int    `yaml:"default_max_retry,omitempty" json:"default_max_retry,omitempty"`
	RetryTarget     string `yaml:"retry_target,omitempty" json:"retry_target,omitempty"`

	// Attributes holds raw graph-level attribute values beyond the
	// fields above (reserved for future extension).
	Attributes map[string]any `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// RawNode is one node as declared in source, before attribute-inheritance
// resolution, kind derivation, or class-token derivation.
type RawNode struct {
	ID          string         `yaml:"id" json:"id"`
	Shape       string         `yaml:"shape" json:"shape"`
	Attributes  map[string]any `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	SubGraphRef string         `yaml:"subgraph_ref,omitempty" json:"subgraph_ref,omitempty"`
}

// RawEdge is one edge as declared in source.
type RawEdge struct {
	From      string `yaml:"from" json:"from"`
	To        string `yaml:"to" json:"to"`
	Label     string `yaml:"label,omitempty" json:"label,omitempty"`
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Weight/Priority are pointers so Compile can distinguish "unset,
	// apply default" from an explicit zero.
	Weight   *int `yaml:"weight,omitempty" json:"weight,omitempty"`
	Priority *int `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// RawRule is one ModelStylesheet rule as declared in source.
type RawRule struct {
	// Exactly one of Shape/ID/Class should be set for a simple selector;
	// setting more than one produces a compound selector.
	Shape string `yaml:"shape,omitempty" json:"shape,omitempty"`
	ID    string `yaml:"id,omitempty" json:"id,omitempty"`
	Class string `yaml:"class,omitempty" json:"class,omitempty"`

	Declarations map[string]any `yaml:"declarations,omitempty" json:"declarations,omitempty"`
}
