// Package app wires one build invocation together: profile, source table,
// recipe registry, graph, executor, and the run record. It owns the
// process-level concerns of a build, namely logging setup, interrupt
// handling, the metrics endpoint and the history ledger.
package app
