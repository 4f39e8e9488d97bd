// Package metrics exposes Prometheus instrumentation for
// proposal submissions and the remote host calls they
// make.
//
// Recorder implements proposal.Observer. InstrumentHost
// decorates a host.Host so every remote call is counted
// and timed by operation and result.
package metrics
