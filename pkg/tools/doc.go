// Package tools defines how function calls requested by a model are
// executed on the server. An Executor hosts a set of callable names: local
// Go handlers (Functions) or the tools of MCP servers (package mcp). The
// registry package combines executors and turns every outcome into an
// api.FunctionResult for the feedback loop.
//
// Calls nobody can execute are left to the caller, see Partition.
package tools
