// Package state provides the persisted chat history and its storage backends.
package state

import "github.com/user/memchat/internal/types"

// Compile-time interface compliance checks.
var _ types.HistoryStore = (*HistoryStore)(nil)
var _ Backend = (*FileBackend)(nil)
var _ Backend = (*MemoryBackend)(nil)
var _ Backend = (*SQLiteBackend)(nil)
