// Package core provides the foundational domain types and interfaces used by
// agentloop. It defines:
//
//   - Messages (a closed union of user, assistant and tool result turns)
//   - State (the append-only conversation value threaded through every step)
//   - Checkpoints and the CheckpointStore contract with a first-class NextStep
//   - ToolContext (the constrained surface a tool implementation sees)
//   - The error taxonomy shared by the engine, flow steps and stores
//
// The package keeps implementation concerns (persistence backends, model
// providers, orchestration) out of scope, exposing small interfaces so custom
// backends can be plugged in.
package core
