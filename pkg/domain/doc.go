/*
Package domain contains the core models of the bandit engine.

It defines the entities that flow through variant selection and the site load
state machine. The package is kept pure and free of I/O or persistence, so it
can be shared by the runtime, the adapters and the host.

# Key Entities

  - Variant: one arm of an experiment, with an optional raw weight.
  - Experiment: an ordered set of mutually exclusive variants.
  - Site: the unit returned by a site provider (experiment + default variant).
  - ProbabilityDistribution: normalized weights, in experiment order.
  - LoadState: the PRELOAD → WAIT → READY snapshot owned by one mounted context.
  - Snapshot: the immutable view handed to metrics sinks and host callbacks.
*/
package domain
