package domain

import "errors"

// ErrSessionNotFound is returned when a session key cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrConflict is returned by a store when the persisted version differs from
// the version the caller loaded (lost update).
var ErrConflict = errors.New("session version conflict")

// ErrFlowNotFound is returned when a flow (or one of its versions) is unknown.
var ErrFlowNotFound = errors.New("flow not found")

// ErrFlowVersionExists is returned when publishing over an existing version.
var ErrFlowVersionExists = errors.New("flow version already published")

// ErrNodeNotFound is returned when a node ID is not part of a graph.
var ErrNodeNotFound = errors.New("node not found")

// ErrEdgeNotFound is returned when no edge leaves a node through a handle.
var ErrEdgeNotFound = errors.New("edge not found")

// ErrSessionTerminated is returned when an event targets a terminal session.
var ErrSessionTerminated = errors.New("session is terminated")

// ErrReadOnly is returned when publishing to a repository that cannot be written.
var ErrReadOnly = errors.New("flow repository is read-only")
