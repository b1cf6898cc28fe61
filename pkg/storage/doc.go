// Package storage defines the persistence collaborators of aiengine and the
// helpers shared by their adapters.
//
// The engine reads and writes discussions through [DiscussionStore],
// appends usage through [UsageRecorder], and materializes generated binary
// content through [BlobStore]. Adapters live in subpackages: memory (LRU),
// postgres (pgx), sqlite (modernc) and blob (local filesystem).
package storage
