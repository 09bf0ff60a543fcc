/*
Package ports defines the driven ports (interfaces) of the flow engine.

These interfaces decouple the runner from external implementations, allowing
it to work with various storage backends, flow sources and chat channels.

# Key Interfaces

  - SessionStore: Persists sessions with optimistic versioning.
  - FlowRepository: Stores immutable, versioned flow graphs.
  - Channel / HandoffGateway: Deliver messages and hand conversations over.
  - OperatorQueue: Collects errored sessions for manual intervention.
  - DistributedLocker: Serializes access to a session across replicas.
*/
package ports
