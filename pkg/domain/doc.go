/*
Package domain contains the core models of the flow execution engine.

It defines the authored flow graph, the run-time session and the events and
actions that cross the engine boundary. This package is kept pure and free of
I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - FlowGraph: A versioned, immutable set of Nodes joined by handle-labelled Edges.
  - Node: One step of a conversation (Message, Question, Menu, Delay, Transfer, ...).
  - Session: The durable progress of one user through one flow version.
  - Event: An input to the engine (user reply, scheduler tick, resume, cancel).
  - Action: A side-effect the caller must perform (send, repeat, handoff).
*/
package domain
