// Package checkpoint houses concrete implementations of core.CheckpointStore.
// The interface itself (and the Checkpoint struct) live in the core package
// so the engine never depends on a concrete storage backend.
//
// Backends:
//   - InMemoryStore: process local map with TTL eviction, the default
//   - FileStore: one JSON document per conversation in a directory
//   - mongo.Store (sub-package): a MongoDB collection with a TTL index
//
// All stores keep at most one checkpoint per conversation id and writes are
// last-write-wins. Load returns (nil, nil) when nothing is stored.
package checkpoint
