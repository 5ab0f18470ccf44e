// Package sim provides the discrete-event engine and the shared
// configuration and metrics of the RAN simulator.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - event.go: time units, FuncEvent and cancellable EventHandles
//   - simulator.go: the event heap (timestamp, then insertion order) and the run loop
//   - config.go, bundle.go: per-cell configuration and the policy bundle applied to it
//
// # Architecture
//
// The sim package holds only the engine and cross-cutting types; the
// protocol stack and control algorithms live in sub-packages:
//   - sim/sap/: service access point contracts between layers and algorithms
//   - sim/packet/: byte packets with headers and typed tags
//   - sim/tft/: traffic flow templates and the packet classifier
//   - sim/pdcp/, sim/rlc/: PDCP and transparent-mode RLC entities
//   - sim/mac/: the MAC scheduler contract and the first-fit scheduler
//   - sim/handover/, sim/anr/, sim/ffr/: handover, neighbour relation and frequency reuse algorithms
//   - sim/workload/: synthetic traffic and measurement trajectories
//   - sim/trace/: decision trace recording
//   - sim/ran/: cells, UEs and the air interface wired together; scenario files and the runner
//
// Algorithms are selected by name through factories that panic on unknown
// names; the ValidX maps of each package back configuration validation.
package sim
