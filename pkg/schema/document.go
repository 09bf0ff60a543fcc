package schema

import "github.com/aretw0/parley/pkg/domain"

// Document is the serialized form of a flow graph.
type Document struct {
	FlowID  string         `json:"flow_id" yaml:"flow_id" mapstructure:"flow_id"`
	Version int            `json:"version" yaml:"version" mapstructure:"version"`
	Entry   string         `json:"entry" yaml:"entry" mapstructure:"entry"`
	Nodes   []NodeDocument `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
	Edges   []domain.Edge  `json:"edges" yaml:"edges" mapstructure:"edges"`
}

// NodeDocument is one serialized node.
type NodeDocument struct {
	ID   string         `json:"id" yaml:"id" mapstructure:"id"`
	Type string         `json:"type" yaml:"type" mapstructure:"type"`
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty" mapstructure:"data"`
}
