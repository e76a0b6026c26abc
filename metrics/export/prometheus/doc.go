// Package prometheus bridges goIAM engine counters into a
// prometheus.Collector.
//
// [NewCollector] accepts a [goIAM.Engine] and exposes every engine counter
// under its goiam_*_total name, plus goiam_audit_dropped_total for audit
// dispatcher backpressure. [Handler] serves them from a private registry.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry; callers choose
//     the registry or mount the Handler.
//   - Mutate engine state.
package prometheus
