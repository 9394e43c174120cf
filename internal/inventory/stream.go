package inventory

import (
	"context"

	"github.com/yairfalse/lwcomply/pkg/types"
)

// pullFunc yields the next batch of records and whether more may follow.
type pullFunc func(ctx context.Context) ([]types.ResourceRecord, bool, error)

// Stream is a lazy, finite, non-restartable sequence of records. Batches
// are fetched on demand as Next is called.
//
//	s := fetcher.FetchAll(ctx, accountID, "ec2:instance")
//	for s.Next() {
//		r := s.Record()
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	ctx        context.Context
	pull       pullFunc
	onComplete func([]types.ResourceRecord)

	buf  []types.ResourceRecord
	all  []types.ResourceRecord
	cur  types.ResourceRecord
	err  error
	done bool
}

func newStream(ctx context.Context, pull pullFunc, onComplete func([]types.ResourceRecord)) *Stream {
	return &Stream{ctx: ctx, pull: pull, onComplete: onComplete}
}

func sliceStream(ctx context.Context, records []types.ResourceRecord) *Stream {
	return newStream(ctx, func(context.Context) ([]types.ResourceRecord, bool, error) {
		return records, false, nil
	}, nil)
}

func errStream(err error) *Stream {
	return &Stream{err: err, done: true}
}

// Next advances to the next record.
func (s *Stream) Next() bool {
	for len(s.buf) == 0 {
		if s.done || s.err != nil {
			return false
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return false
		}

		batch, more, err := s.pull(s.ctx)
		if err != nil {
			s.err = err
			return false
		}
		s.buf = batch
		s.all = append(s.all, batch...)

		if !more {
			s.done = true
			if s.onComplete != nil {
				s.onComplete(s.all)
			}
		}
	}

	s.cur = s.buf[0]
	s.buf = s.buf[1:]
	return true
}

// Record returns the current record.
func (s *Stream) Record() types.ResourceRecord {
	return s.cur
}

// Err returns the error that stopped the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Collect drains the stream.
func (s *Stream) Collect() ([]types.ResourceRecord, error) {
	var out []types.ResourceRecord
	for s.Next() {
		out = append(out, s.Record())
	}
	return out, s.Err()
}
