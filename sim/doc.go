// Package sim provides the trade-message protocol engine for tradesim.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - message.go: the closed message taxonomy (InternalDemand, RFQ, Quote, orders, ...)
//   - store.go: the per-actor message store with deadline-driven removal
//   - role.go: policy registration and dispatch by message kind
//   - actor.go: actors, capabilities, sending and receiving
//   - event.go: the simulated-time scheduler every deferred action goes through
//
// # Architecture
//
// The sim package defines the protocol types, the dispatch mechanism and the
// bookkeeping capabilities (Inventory, Account, SupplierTable, Catalog).
// Behaviour lives in sub-packages:
//   - sim/policy/: business-rule policies for buying, selling, paying and producing
//   - sim/restock/: restocking, production and demand-generation controllers
//   - sim/directory/: the yellow-page directory service
//   - sim/codec/: {kind, payload} envelopes for message (de)serialization
//   - sim/scenario/: YAML scenario loading and wiring
//   - sim/trace/ and sim/metrics/: message-level trace records and Prometheus counters
//
// Everything runs on a single logical thread of simulated time. Nothing sleeps:
// timeouts, retries and delivery delays are callbacks scheduled on a Scheduler.
package sim
