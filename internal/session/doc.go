// Package session holds the closed, ordered event log of one build run and
// its on-disk form.
//
// An event log file is a header frame followed by one frame per recorded
// event, in receipt order. Files whose name ends in ".zst" are zstd
// compressed.
package session
