package tools

import "github.com/brubru/aiengine/pkg/api"

// PartitionResult holds the outcome of splitting the pending calls of a
// reply.
type PartitionResult struct {
	// Executable contains calls a server-side executor can run.
	Executable []api.ToolCall

	// Unhandled contains calls that must be returned to the caller:
	// client-side functions and names no executor hosts.
	Unhandled []api.ToolCall
}

// Partition splits calls by whether canExecute accepts their name. Client
// side calls are never executable. Order is preserved within each list.
func Partition(calls []api.ToolCall, canExecute func(name string) bool) PartitionResult {
	var result PartitionResult
	for _, call := range calls {
		if !call.IsClientSide() && canExecute != nil && canExecute(call.Name) {
			result.Executable = append(result.Executable, call)
		} else {
			result.Unhandled = append(result.Unhandled, call)
		}
	}
	return result
}
