package storage

// Package storage provides the string-keyed persistence layer behind the
// executor settings.
//
// It currently supports:
//   - a dependency-free file backend (jsonl journal + snapshot)
//   - an optional SQLite backend (build with -tags sqlite)
