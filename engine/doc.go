// Package engine implements the interruptible execution loop of agentloop.
//
// The Engine drives one conversation at a time through an explicit state
// machine whose current position is persisted as a core.Checkpoint after
// every step:
//
//	              ┌───────────── tool results ─────────────┐
//	              ▼                                        │
//	user ──▶ [model] ──▶ Route ──▶ terminate ──▶ none      │
//	                       │                               │
//	                       ├──▶ tools ──▶ approval? ──no──▶┘
//	                       │               │
//	                       │              yes ──▶ awaiting_tool_dispatch
//	                       │
//	                       └──▶ clarification ──▶ awaiting_human
//
// # Operations
//
// Run appends a user message and drives the loop until the conversation
// terminates or pauses. Resume continues a paused conversation: a clarification
// pause needs the human's answer, an approval pause needs no payload and
// executes exactly the staged calls without consulting the model first. Retry
// continues a conversation left mid-run by an upstream model failure.
//
// # Failure Model
//
// Tool failures never surface as errors; they are encoded into tool result
// messages. Upstream model failures abort the drive and leave the checkpoint
// exactly as it was saved before the failed call, so Retry resumes from the
// same point. Resume on a conversation without a pending pause fails with an
// error matching core.ErrNoPendingCheckpoint and writes nothing.
//
// # Concurrency
//
// Drives for the same conversation id are serialized inside one Engine;
// drives for different ids run independently and share only the
// CheckpointStore.
//
// # Observability
//
// Every drive and step opens an OpenTelemetry span on the configured tracer
// provider, and the CallbackManager exposes before/after hooks for the model
// and each tool call as well as interrupt and error notifications.
package engine
