// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside agentloop.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool call representation (ToolDefinition, core.ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, Gemini) implement the Model interface from this
// package so the engine and flow steps remain decoupled from vendor SDKs.
package model
