// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cenkalti/backoff"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

// nextSequence allocates the next monotonic id from the named
// sequence via a putc retry loop, per spec.md §3 "Identifiers" and §5
// "Sequences (id allocators): monotonic counters obtained via putc
// retry loops on a dedicated key range." A short exponential backoff
// is used between retries instead of busy-looping, grounded on
// cenkalti/backoff as used by storj and the wider pack.
func (a *Accessor) nextSequence(ctx context.Context, name string) (uint64, error) {
	key := storagekey.SequenceKey(name)
	tx := a.tx.Raw()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 0 // bounded by ctx below, not by wall-clock budget

	for {
		cur, err := tx.Get(ctx, key, storage.NoVersion)
		var curVal uint64
		var expected storage.Value
		switch {
		case storage.ErrKeyNotFound.Has(err):
			curVal = 0
			expected = nil
		case err != nil:
			return 0, err
		default:
			curVal = binary.BigEndian.Uint64(cur)
			expected = cur
		}

		next := curVal + 1
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], next)

		err = tx.Putc(ctx, key, storage.Value(buf[:]), expected)
		if err == nil {
			return next, nil
		}
		if !storage.ErrCompareMismatch.Has(err) {
			return 0, err
		}
		d := b.NextBackOff()
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}
