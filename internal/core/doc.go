// Package core implements the chunked extraction engine.
//
// This package is the heart of chunkstream, containing all domain logic
// independent of any CLI or transport layer. It pulls large time-ordered
// datasets out of PostgreSQL in bounded, memory-safe increments and emits
// them as a sequence of self-describing chunk envelopes.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Table Registry: an immutable set of [Table] descriptors naming each
//     table's time field, primary key and sort order. Built once at startup
//     via [BuiltinRegistry] or [LoadRegistry] and never mutated.
//   - Engine: executes the two query shapes the system needs: an aggregate
//     COUNT over a time range, and an ordered, offset-paginated page fetch.
//   - Stream: a pull-based sequence of [Chunk] envelopes produced by
//     [Engine.StreamByChunks] (flat mode) or [Engine.StreamByTimeWindows]
//     (windowed mode).
//
// # Streaming
//
// Streams process data with O(chunk_size) memory usage regardless of result
// size. The producer goroutine runs one query at a time and hands each page
// across an unbuffered channel, so a slow consumer applies backpressure all
// the way to query issuance:
//
//	stream, err := engine.StreamByChunks(ctx, core.StreamRequest{
//	    Table:     "tweets",
//	    StartTime: "2024-01-01",
//	    EndTime:   "2024-01-02",
//	})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for stream.Next(ctx) {
//	    consume(stream.Chunk())
//	}
//	return stream.Err()
//
// # Ordering
//
// Every page query is ordered by the table's OrderFields, which always
// include the time field plus a tiebreaker (usually the primary key). This
// deterministic total order is what makes OFFSET pagination safe: without
// it, rows tied on the same timestamp could be skipped or duplicated at
// page boundaries.
//
// # Predicate passthrough
//
// Count, fetch and stream requests accept an optional raw SQL predicate
// fragment (Where). It is appended to the query verbatim, inside
// parentheses, and is the only unescaped text in any query the engine
// issues. Table and column identifiers are quoted and all other values are
// bind parameters. Callers are responsible for the safety of this fragment;
// never pass untrusted input through it.
package core
