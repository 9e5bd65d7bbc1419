// Package sim provides a conservative parallel discrete-event simulation kernel.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - event.go: Event ordering by (time, link ID, seqnum)
//   - link.go: Local, multithread and IPC links; how a device causes future work
//   - manager.go: EventManager, RunEvents and the RegisterPending round protocol
//   - simulation.go: Simulation and the drivers that run workers in lockstep
//
// # Architecture
//
// A simulation is split over ranks (ParallelRuntime) and, within a rank, over
// worker threads. Each worker owns one EventManager and the components the
// Partition places on it. Workers run every event up to a shared horizon,
// then close the round: they vote the earliest time they could still produce,
// exchange cross-worker events, and compute the next horizon as the global
// vote plus the lookahead (the smallest cross-worker link latency) minus one.
//
// Everything is reached through a Context; there is no package-level state
// besides the QueueKinds and ManagerKinds registries.
//
// Sub-packages:
//   - sim/transport/: in-process multi-rank ParallelRuntime
//   - sim/trace/: execution trace recording
//   - sim/phold/: the PHOLD benchmark model
//
// # Key Interfaces
//
//   - Handler: receives delivered events
//   - Link: directed channel with fixed latency
//   - EventQueue: ordered event container (heap, sorted)
//   - ParallelRuntime: byte transport and vote collective between ranks
//   - Serializable: payloads that can cross ranks
package sim
