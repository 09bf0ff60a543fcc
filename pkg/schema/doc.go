// Package schema converts flow documents to and from domain.FlowGraph.
//
// A flow document mirrors the node/edge shape the flow editor exports:
//
//	flow_id: greeting
//	version: 1
//	entry: hello
//	nodes:
//	  - id: hello
//	    type: message
//	    data: {text: "Olá!"}
//	  - id: ask
//	    type: question
//	    data: {prompt: "Qual é o seu nome?", variable_name: nome}
//	edges:
//	  - {source: hello, source_handle: default, target: ask}
//
// Node data is decoded into the typed variant named by type. Delay durations
// accept Go duration strings ("90s", "2h") or integer seconds.
//
// Decoding does not validate graph structure; use domain.Validate for that.
package schema
