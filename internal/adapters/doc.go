// Package adapters contains implementations of the kernel core's
// capability interfaces and its operational surfaces.
//
// Subpackages:
//   - persistence: durable record stores (in-memory, Redis, PostgreSQL)
//   - acquirer: HTTP reversal sender toward the acquirer
//   - escalation: NATS publisher for aged-reversal signals
//   - monitor: loopback diagnostics HTTP server
//
// Adapters implement interfaces declared by the core (internal/capability
// and the durability packages); dependencies point inward, so backends
// can be swapped without touching kernel logic.
package adapters
