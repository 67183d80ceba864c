/*
Package ports defines the driven ports (interfaces) of the bandit engine.

These interfaces decouple variant selection and the load state machine from
the concrete site sources, session backends and metrics pipelines, so the same
runtime can run against memory, files, Redis, SQLite or HTTP.

# Key Interfaces

  - SiteProvider: fetches a Site definition by name (memory, file, HTTP).
  - SessionStore: key/value persistence scoped by session id (memory, file, Redis).
  - DistributedLocker: coordinates session writes across replicas.
  - MetricsSink: receives exposure/conversion signals from a mounted context.
  - EventWriter: durable destination for batched metric events (SQLite, HTTP).
  - Host: the callbacks a consumer registers on a mounted context.
*/
package ports
