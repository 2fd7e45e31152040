// Package output persists a harvest result.
//
// JSON is written with two-space indentation and each record's original
// bytes; YAML is available for humans. Either can be gzip or zstd
// compressed. Files are written to a temp file in the same directory and
// renamed, so a failed run never leaves a truncated users.json behind.
package output
