// Package provider defines the protocol-agnostic interface for AI backends.
// Each adapter (openaicompat for Chat Completions, responses for the
// Responses API) handles its own wire format, keeping protocol details
// invisible to the engine. Responses are delivered as reply choices so the
// reply normalizer treats every backend alike.
package provider
