// Package audit records what the tracker saw and decided in a SQLite
// database: the distance matrix of every frame, track lifecycle events and
// optionally the detection embeddings as half precision blobs. Runs are
// keyed by a random id so several runs can share one database file.
package audit
