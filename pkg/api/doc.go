// Package api defines the protocol types shared by every layer of aiengine.
//
// It provides role-tagged conversation messages, registered functions and
// their parameters, pending tool calls and their results, usage counters
// with accuracy tiers, model descriptions, the feedback-loop state machine,
// ID generation, and the structured error taxonomy.
//
// Core types:
//   - [Message]: One role-tagged entry of a conversation history
//   - [Function]: A callable exposed to the model, validated at construction
//   - [ToolCall]: A model-requested invocation awaiting execution
//   - [FunctionResult]: The outcome of executing a ToolCall
//   - [Usage]: Token counts and price, qualified by a [UsageAccuracy]
//   - [APIError]: Structured error with type, code, param, and message
//
// The package performs no I/O.
package api
