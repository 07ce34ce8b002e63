package core

// stream.go is the orchestrator: it composes window generation, counting
// and page fetching into a pull-based sequence of chunk envelopes.
//
// The producer goroutine keeps exactly one query in flight and hands each
// chunk across an unbuffered channel. The blocked send is the cooperative
// suspension point: the producer cannot run ahead of the consumer, so a
// slow consumer applies backpressure all the way to query issuance.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Stream is an ordered sequence of chunk envelopes driven by the consumer.
//
// Usage:
//
//	defer stream.Close()
//	for stream.Next(ctx) {
//	    use(stream.Chunk())
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Close is idempotent and must be called on every exit path; it cancels
// the producer and waits for it to release its resources.
type Stream struct {
	ch     chan *Chunk
	cancel context.CancelFunc

	// Consumer-side state. Only touched by the goroutine driving Next.
	cur    *Chunk
	err    error
	closed bool
	totals Totals

	// perr is the producer's terminal error. It is written before the
	// channel is closed and read only after the close is observed.
	perr error

	closeOnce sync.Once
}

// Next advances to the next chunk, blocking until the producer has one,
// the stream ends, or ctx is done. It returns false when no more chunks
// will arrive; check Err afterwards to distinguish completion from failure.
func (s *Stream) Next(ctx context.Context) bool {
	if s.closed {
		return false
	}
	select {
	case chunk, ok := <-s.ch:
		if !ok {
			s.cur = nil
			s.err = s.perr
			s.closed = true
			return false
		}
		s.cur = chunk
		s.totals.Chunks++
		s.totals.Records += int64(chunk.ChunkSize)
		return true
	case <-ctx.Done():
		s.cur = nil
		s.err = ctx.Err()
		return false
	}
}

// Chunk returns the chunk produced by the last successful Next.
func (s *Stream) Chunk() *Chunk { return s.cur }

// Err returns the error that terminated the stream, or nil after a clean
// finish. Valid once Next has returned false.
func (s *Stream) Err() error { return s.err }

// Totals reports chunks and records delivered so far.
func (s *Stream) Totals() Totals { return s.totals }

// Close cancels the producer and drains the channel until it exits,
// guaranteeing the producer goroutine and its query resources are released
// on early termination as well as normal completion.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.ch {
		}
	})
}

// StreamByChunks streams a table's rows in flat mode: one COUNT over the
// whole range, then pages at increasing offsets until exhaustion. Chunks
// carry chunk_index, total_count and progress.
//
// Validation (registry lookup, time parsing, chunk size) happens before
// the producer starts, so ErrUnknownTable, ErrInvalidTimeFormat and
// ErrInvalidConfiguration surface before any query executes.
func (e *Engine) StreamByChunks(ctx context.Context, req StreamRequest) (*Stream, error) {
	table, r, chunkSize, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	logger := slog.With(
		"stream_id", uuid.NewString(),
		"table", table.Name,
		"mode", "chunks",
	)

	s, pctx := e.newStream(ctx)
	go func() {
		defer close(s.ch)
		defer s.recoverPanic()

		total, err := e.countRange(pctx, table, r, req.Where)
		if err != nil {
			s.perr = err
			return
		}
		if total == 0 {
			logger.Info("no matching records")
			return
		}
		logger.Info("counted records", "total", total)

		emitted, err := e.pageThrough(pctx, s, table, r, req, chunkSize, func(offset int64, page []Record, runningTotal int64) *Chunk {
			return &Chunk{
				ChunkIndex:  int(offset/int64(chunkSize)) + 1,
				ChunkOffset: offset,
				ChunkSize:   len(page),
				TotalCount:  total,
				Progress:    float64(offset+int64(len(page))) / float64(total),
				Data:        page,
				Metadata:    e.chunkMetadata(table),
			}
		}, total, 0)
		if err != nil {
			s.perr = err
			return
		}
		logger.Info("stream complete", "records", emitted)
	}()
	return s, nil
}

// StreamByTimeWindows streams a table's rows in windowed mode: the range
// is split into fixed-duration windows processed strictly in ascending
// time order, each counted and paged independently with its offset cursor
// reset at the window boundary. Chunks carry window_index, window_start,
// window_end and the running total across windows; the window index gives
// downstream consumers a natural resumption point after a failure, even
// though the engine itself persists no checkpoint.
func (e *Engine) StreamByTimeWindows(ctx context.Context, req StreamRequest) (*Stream, error) {
	table, r, chunkSize, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	interval := req.WindowInterval
	if interval == 0 {
		interval = e.cfg.Extract.WindowInterval
	}
	windows, err := GenerateWindows(r, interval)
	if err != nil {
		return nil, err
	}

	logger := slog.With(
		"stream_id", uuid.NewString(),
		"table", table.Name,
		"mode", "windows",
	)
	logger.Info("generated time windows", "count", len(windows))

	s, pctx := e.newStream(ctx)
	go func() {
		defer close(s.ch)
		defer s.recoverPanic()

		var totalRecords int64
		for _, w := range windows {
			wlog := logger.With("window", w.Index, "windows", len(windows))
			wr := w.Range()

			count, err := e.countRange(pctx, table, wr, req.Where)
			if err != nil {
				s.perr = err
				return
			}
			if count == 0 {
				wlog.Debug("empty window, skipping")
				continue
			}
			wlog.Info("processing window",
				"start", FormatTime(w.Start),
				"end", FormatTime(w.End),
				"records", count,
			)

			emitted, err := e.pageThrough(pctx, s, table, wr, req, chunkSize, func(offset int64, page []Record, runningTotal int64) *Chunk {
				return &Chunk{
					WindowIndex:       w.Index,
					WindowStart:       FormatTime(w.Start),
					WindowEnd:         FormatTime(w.End),
					ChunkOffset:       offset,
					ChunkSize:         len(page),
					TotalRecordsSoFar: runningTotal,
					Data:              page,
					Metadata:          e.chunkMetadata(table),
				}
			}, count, totalRecords)
			if err != nil {
				s.perr = err
				return
			}
			totalRecords += emitted
		}
		logger.Info("all windows complete", "records", totalRecords)
	}()
	return s, nil
}

// prepare resolves and validates the request's table, range and chunk size.
func (e *Engine) prepare(req StreamRequest) (Table, TimeRange, int, error) {
	table, err := e.registry.Resolve(req.Table)
	if err != nil {
		return Table{}, TimeRange{}, 0, err
	}
	r, err := ParseRange(req.StartTime, req.EndTime)
	if err != nil {
		return Table{}, TimeRange{}, 0, err
	}
	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = e.cfg.Extract.ChunkSize
	}
	if chunkSize <= 0 {
		return Table{}, TimeRange{}, 0, fmt.Errorf("%w: chunk size must be positive, got %d",
			ErrInvalidConfiguration, chunkSize)
	}
	return table, r, chunkSize, nil
}

// newStream wires up the channel, the producer context and the pacer.
func (e *Engine) newStream(ctx context.Context) (*Stream, context.Context) {
	pctx, cancel := context.WithCancel(ctx)
	return &Stream{ch: make(chan *Chunk), cancel: cancel}, pctx
}

// pacer returns the post-full-page rate limiter, or nil when pacing is
// disabled.
func (e *Engine) pacer() *rate.Limiter {
	delay := e.cfg.Extract.PaceDelay
	if delay <= 0 {
		return nil
	}
	l := rate.NewLimiter(rate.Every(delay), 1)
	l.Allow() // drain the initial token so the first full page also pauses
	return l
}

// pageThrough runs the offset loop for one unit of work (the whole range
// in flat mode, one window in windowed mode) and emits one envelope per
// non-empty page. It returns the number of records emitted.
//
// After a full page (len == chunkSize, implying more data may follow) the
// producer waits on the pacer before the next fetch, bounding burst load
// on the database; a short or final page skips the pause.
func (e *Engine) pageThrough(
	ctx context.Context,
	s *Stream,
	table Table,
	r TimeRange,
	req StreamRequest,
	chunkSize int,
	envelope func(offset int64, page []Record, runningTotal int64) *Chunk,
	count int64,
	startingTotal int64,
) (int64, error) {
	pacer := e.pacer()
	var emitted int64

	for offset := int64(0); offset < count; offset += int64(chunkSize) {
		page, err := e.fetchChunk(ctx, table, r, offset, int64(chunkSize), req.Where, req.Fields)
		if err != nil {
			return emitted, err
		}
		if len(page) == 0 {
			break
		}

		emitted += int64(len(page))
		chunk := envelope(offset, page, startingTotal+emitted)

		select {
		case s.ch <- chunk:
		case <-ctx.Done():
			return emitted, ctx.Err()
		}

		if pacer != nil && len(page) == chunkSize {
			if err := pacer.Wait(ctx); err != nil {
				return emitted, err
			}
		}
	}
	return emitted, nil
}

// chunkMetadata stamps the provenance object on an envelope.
func (e *Engine) chunkMetadata(table Table) *ChunkMetadata {
	return &ChunkMetadata{
		TableName: table.Name,
		TimeField: table.TimeField,
		QueryTime: FormatTime(time.Now()),
	}
}

// recoverPanic converts a producer panic into a stream error so the
// channel still closes and the consumer sees a terminal failure instead
// of a crashed goroutine.
func (s *Stream) recoverPanic() {
	if p := recover(); p != nil {
		s.perr = fmt.Errorf("stream producer panic: %v", p)
	}
}
