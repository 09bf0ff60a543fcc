/*
Package session serializes access to conversation sessions.

The Manager wraps a ports.SessionStore with per-key locking (in-process and,
optionally, distributed across replicas) and an optimistic read-modify-write
loop that retries when a concurrent writer wins the versioned save.
*/
package session
