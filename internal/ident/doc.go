// Package ident generates the 128-bit identifiers used as primary keys and
// implicit sequence numbers across the relay.
//
// IDs use the UUIDv7 bit layout (48-bit millisecond timestamp, version and
// variant tag bits, 74 random bits) and are rendered as 32 lowercase hex
// characters, so lexicographic order on the stored form equals numeric
// order on the 128-bit value.
//
// Within one process the stream is strictly monotonic under a single lock,
// even when the wall clock stalls or moves backward; across processes the
// random payload keeps ids unique while the timestamp keeps them roughly
// time-sorted.
package ident
