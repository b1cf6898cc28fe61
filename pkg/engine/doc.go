// Package engine dispatches queries to AI backends. It resolves the
// environment and model of a query, builds the message list the backend
// protocol expects, calls the provider (streaming or not), normalizes the
// reply and records usage and continuation tokens.
//
// RunWithFeedback drives the function-call feedback loop on top of the
// single-turn Execute. RunFast is the degraded fast path used for short
// internal prompts. Optional capabilities (storage, blobs, MCP servers,
// local functions) use nil-safe composition: a missing one disables the
// feature instead of failing the query.
package engine
