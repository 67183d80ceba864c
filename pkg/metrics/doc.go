/*
Package metrics provides ports.MetricsSink implementations.

  - Batcher queues events and hands them to a ports.EventWriter in batches
    (SQLite, HTTP ingest). SinkEvent never blocks on I/O.
  - Prometheus counts events per site, experiment, variant and event name.
  - Recorder keeps events in memory (CLI output, tests).
  - Multi fans out to several sinks.
*/
package metrics
