package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// Records is the typed view of a KV used by the engine.
type Records struct {
	kv KV
}

// NewRecords wraps kv.
func NewRecords(kv KV) *Records {
	return &Records{kv: kv}
}

// KV returns the underlying store.
func (r *Records) KV() KV { return r.kv }

// Stream loads a stream record.
func (r *Records) Stream(ctx context.Context, id uint64) (*stream.Stream, error) {
	var s stream.Stream
	if err := r.load(ctx, Key{KindStream, id}, &s, stream.CodeStreamNotFound); err != nil {
		return nil, err
	}
	return &s, nil
}

// Receipt loads the receipt of a stream.
func (r *Records) Receipt(ctx context.Context, id uint64) (*stream.Receipt, error) {
	var rc stream.Receipt
	if err := r.load(ctx, Key{KindReceipt, id}, &rc, stream.CodeStreamNotFound); err != nil {
		return nil, err
	}
	return &rc, nil
}

// Proposal loads a multisig proposal.
func (r *Records) Proposal(ctx context.Context, id uint64) (*stream.Proposal, error) {
	var p stream.Proposal
	if err := r.load(ctx, Key{KindProposal, id}, &p, stream.CodeProposalNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

// Sequence returns the last id handed out for kind, 0 when none was.
func (r *Records) Sequence(ctx context.Context, kind Kind) (uint64, error) {
	v, err := r.kv.Get(ctx, sequenceKey(kind))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, stream.Wrap(stream.CodeStorageFailed, err, "read sequence")
	}
	if len(v) != 8 {
		return 0, stream.Errorf(stream.CodeStorageFailed, "corrupt sequence for %s", kind)
	}
	return binary.BigEndian.Uint64(v), nil
}

// Commit applies a batch atomically.
func (r *Records) Commit(ctx context.Context, b *Batch) error {
	if b.err != nil {
		return stream.Wrap(stream.CodeStorageFailed, b.err, "encode batch")
	}
	if len(b.writes) == 0 {
		return nil
	}
	if err := r.kv.Apply(ctx, b.writes); err != nil {
		return stream.Wrap(stream.CodeStorageFailed, err, "commit")
	}
	return nil
}

func (r *Records) load(ctx context.Context, key Key, v any, missing stream.Code) error {
	raw, err := r.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return stream.Errorf(missing, "%s not found", key)
	}
	if err != nil {
		return stream.Wrap(stream.CodeStorageFailed, err, "load "+key.String())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return stream.Wrap(stream.CodeStorageFailed, err, "decode "+key.String())
	}
	return nil
}

func sequenceKey(kind Kind) Key {
	// kinds are few and fixed; the id slot is unused
	return Key{Kind: KindSequence + ":" + kind}
}

// Batch accumulates the writes of one operation.
type Batch struct {
	writes []Write
	err    error
}

// Len reports the number of pending writes.
func (b *Batch) Len() int { return len(b.writes) }

// PutStream schedules a stream write.
func (b *Batch) PutStream(s *stream.Stream) { b.put(Key{KindStream, s.ID}, s) }

// PutReceipt schedules a receipt write.
func (b *Batch) PutReceipt(rc *stream.Receipt) { b.put(Key{KindReceipt, rc.StreamID}, rc) }

// PutProposal schedules a proposal write.
func (b *Batch) PutProposal(p *stream.Proposal) { b.put(Key{KindProposal, p.ID}, p) }

// SetSequence records the last id handed out for kind.
func (b *Batch) SetSequence(kind Kind, last uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, last)
	b.set(sequenceKey(kind), v)
}

func (b *Batch) put(key Key, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("encode %s: %w", key, err))
		return
	}
	b.set(key, raw)
}

// set replaces an earlier write to the same key so the batch holds one
// write per key.
func (b *Batch) set(key Key, v []byte) {
	for i := range b.writes {
		if b.writes[i].Key == key {
			b.writes[i].Value = v
			return
		}
	}
	b.writes = append(b.writes, Write{Key: key, Value: v})
}
