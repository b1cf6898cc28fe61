// Package openaicompat implements the Chat Completions protocol shared by
// OpenAI-compatible backends (OpenAI, Azure, OpenRouter, Mistral,
// Perplexity and custom endpoints). It handles request serialization,
// response parsing, SSE chunk streaming, tool call argument buffering, and
// error mapping, plus the image, embedding and transcription endpoints.
//
// Chat Completions is stateless: every turn replays the full history.
package openaicompat
