// Package codec provides the CBOR encoding and record framing shared by the
// event channel and the on-disk event log.
//
// Values are encoded with Core Deterministic Encoding (sorted map keys,
// smallest integer encoding), so the same event always produces the same
// bytes. Records are framed with a 4-byte big-endian length prefix:
//
//	┌────────────┬──────────────────────┐
//	│ length u32 │ CBOR body (length B) │
//	└────────────┴──────────────────────┘
//
// A frame whose body fails to decode is skippable: the reader already knows
// where the next frame starts. A frame whose length exceeds MaxFrameSize is
// not, and ends the stream.
package codec
