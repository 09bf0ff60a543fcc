package schema

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Decode converts a document into a graph.
// Every malformed node is reported; the returned error is an *AggregateError.
func Decode(doc *Document) (*domain.FlowGraph, error) {
	g := &domain.FlowGraph{
		FlowID:  doc.FlowID,
		Version: doc.Version,
		Entry:   doc.Entry,
		Nodes:   make(map[string]domain.Node, len(doc.Nodes)),
		Edges:   make([]domain.Edge, len(doc.Edges)),
	}
	for i, e := range doc.Edges {
		if e.SourceHandle == "" {
			e.SourceHandle = domain.HandleDefault
		}
		g.Edges[i] = e
	}

	var errs []error
	for _, nd := range doc.Nodes {
		if nd.ID == "" {
			errs = append(errs, &NodeError{Type: nd.Type, Err: fmt.Errorf("node id is required")})
			continue
		}
		if _, dup := g.Nodes[nd.ID]; dup {
			errs = append(errs, &NodeError{NodeID: nd.ID, Type: nd.Type, Err: fmt.Errorf("duplicate node id")})
			continue
		}
		body, err := decodeBody(nd.Type, nd.Data)
		if err != nil {
			errs = append(errs, &NodeError{NodeID: nd.ID, Type: nd.Type, Err: err})
			continue
		}
		g.Nodes[nd.ID] = domain.Node{ID: nd.ID, Body: body}
	}
	if g.Entry == "" && len(doc.Nodes) > 0 {
		g.Entry = doc.Nodes[0].ID
	}

	if len(errs) > 0 {
		return nil, &AggregateError{Errors: errs}
	}
	return g, nil
}

func decodeBody(typ string, data map[string]any) (domain.Body, error) {
	switch domain.NodeKind(typ) {
	case domain.KindMessage:
		return decodeInto[domain.Message](data)
	case domain.KindQuestion:
		return decodeInto[domain.Question](data)
	case domain.KindMenu:
		return decodeInto[domain.Menu](data)
	case domain.KindQuickReplies:
		return decodeInto[domain.QuickReplies](data)
	case domain.KindInteractiveButtons:
		return decodeInto[domain.InteractiveButtons](data)
	case domain.KindMedia:
		return decodeInto[domain.Media](data)
	case domain.KindDelay:
		return decodeInto[domain.Delay](data)
	case domain.KindTransfer:
		return decodeInto[domain.Transfer](data)
	case domain.KindEnd:
		return decodeInto[domain.End](data)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownNodeType, typ)
}

func decodeInto[T domain.Body](data map[string]any) (domain.Body, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  durationHook,
		ErrorUnused: true,
		Result:      &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(data); err != nil {
		return nil, err
	}
	return out, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook accepts "90s"-style strings or a number of seconds.
func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Duration(i) * time.Second, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	return data, nil
}

// Encode converts a graph into a document with nodes in lexical ID order.
func Encode(g *domain.FlowGraph) *Document {
	doc := &Document{
		FlowID:  g.FlowID,
		Version: g.Version,
		Entry:   g.Entry,
		Edges:   append([]domain.Edge(nil), g.Edges...),
	}
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		doc.Nodes = append(doc.Nodes, NodeDocument{ID: id, Type: string(n.Kind()), Data: encodeBody(n.Body)})
	}
	return doc
}

func encodeBody(body domain.Body) map[string]any {
	m := make(map[string]any)
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	switch b := body.(type) {
	case domain.Message:
		put("text", b.Text)
	case domain.Question:
		put("prompt", b.Prompt)
		put("variable_name", b.VariableName)
	case domain.Menu:
		put("title", b.Title)
		m["options"] = append([]string(nil), b.Options...)
	case domain.QuickReplies:
		put("text", b.Text)
		m["replies"] = append([]string(nil), b.Replies...)
	case domain.InteractiveButtons:
		put("text", b.Text)
		m["buttons"] = append([]string(nil), b.Buttons...)
	case domain.Media:
		put("media_type", string(b.MediaType))
		put("url", b.URL)
		put("caption", b.Caption)
	case domain.Delay:
		m["duration"] = b.Duration.String()
	case domain.Transfer:
		m["target"] = map[string]any{"kind": string(b.Target.Kind), "id": b.Target.ID}
		put("handoff_message", b.HandoffMessage)
	case domain.End:
		put("final_message", b.FinalMessage)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// ParseJSON decodes a JSON flow document.
func ParseJSON(data []byte) (*domain.FlowGraph, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse flow json: %w", err)
	}
	return Decode(&doc)
}

// ParseYAML decodes a YAML flow document.
func ParseYAML(data []byte) (*domain.FlowGraph, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse flow yaml: %w", err)
	}
	return Decode(&doc)
}

// Parse picks the decoder from a file name extension; anything but .json is read as YAML.
func Parse(name string, data []byte) (*domain.FlowGraph, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}

// MarshalJSON encodes a graph as an indented JSON document.
func MarshalJSON(g *domain.FlowGraph) ([]byte, error) {
	return json.MarshalIndent(Encode(g), "", "  ")
}

// MarshalYAML encodes a graph as a YAML document.
func MarshalYAML(g *domain.FlowGraph) ([]byte, error) {
	return yaml.Marshal(Encode(g))
}
