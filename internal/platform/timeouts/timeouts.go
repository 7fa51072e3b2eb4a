// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// LayoutFetch caps a single self-crawl of a rendered layout. The crawl runs
// inside an event reaction, so it is kept short.
const LayoutFetch = 100 * time.Millisecond

// OutboxPoll is the default interval between content event outbox polls.
const OutboxPoll = 2 * time.Second

// QueueDrain limits how long shutdown waits for queued propagation batches.
const QueueDrain = 10 * time.Second

// Shutdown limits how long a gRPC server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// HealthProbe bounds a command-line health check against a running service.
const HealthProbe = 3 * time.Second
