// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package engine_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/engine"
	"storj.io/coredb/pkg/errs2"
)

// lineSplitter treats each '\n'-terminated line as one statement,
// enough to exercise ImportStream's buffer growth/compaction without a
// real grammar.
type lineSplitter struct {
	ran []string
}

func (s *lineSplitter) TryNext(buf []byte, final bool) (int, engine.Statement, bool, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if final && len(buf) > 0 {
			return len(buf), fakeStmt{readOnly: false, result: string(buf)}, true, nil
		}
		return 0, nil, false, nil
	}
	line := string(buf[:i])
	return i + 1, fakeStmt{readOnly: false, result: line}, true, nil
}

func TestImportStreamRunsEachLineAsAStatement(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	src := "insert into a\ninsert into b\ninsert into c\n"

	results, err := e.ImportStream(ctx, bytes.NewReader([]byte(src)), &lineSplitter{}, 0, opts(), nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "insert into a", results[0].Result)
	require.Equal(t, "insert into b", results[1].Result)
	require.Equal(t, "insert into c", results[2].Result)
}

func TestImportStreamGrowsBufferForAnOversizedStatement(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	// A single line far larger than the starting parse buffer forces
	// at least one doubling before the splitter can see the newline.
	big := bytes.Repeat([]byte("x"), 100)
	src := append(big, '\n')

	results, err := e.ImportStream(ctx, bytes.NewReader(src), &lineSplitter{}, 8, opts(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, string(big), results[0].Result)
}

func TestImportStreamFlushesFinalStatementWithoutTrailingNewline(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	results, err := e.ImportStream(ctx, bytes.NewReader([]byte("insert into a\nno newline here")), &lineSplitter{}, 0, opts(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "no newline here", results[1].Result)
}

func TestImportStreamInvalidConsumedLengthIsRejected(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	bad := invalidConsumedSplitter{}
	_, err := e.ImportStream(ctx, bytes.NewReader([]byte("abc\n")), bad, 0, opts(), nil)
	require.Error(t, err)
	require.True(t, errs2.Internal.Has(err))
}

type invalidConsumedSplitter struct{}

func (invalidConsumedSplitter) TryNext(buf []byte, final bool) (int, engine.Statement, bool, error) {
	if len(buf) == 0 {
		return 0, nil, false, nil
	}
	return len(buf) + 1, fakeStmt{readOnly: true}, true, nil
}

// chunkReader returns at most chunkSize bytes per Read call, regardless
// of how large a buffer the caller offers, so ImportStream sees the
// source split at arbitrary byte boundaries rather than all at once.
type chunkReader struct {
	data      []byte
	chunkSize int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.chunkSize
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// TestImportStreamCompletenessUnderArbitraryChunking exercises spec.md
// §8 invariant 9: feeding the same bytes through ImportStream in
// differently sized reads yields the same statements.
func TestImportStreamCompletenessUnderArbitraryChunking(t *testing.T) {
	ctx := context.Background()
	src := "insert into a\ninsert into b\ninsert into ccccccccccccccccccccccccc\ninsert into d\n"

	var want []string
	for _, chunkSize := range []int{1, 2, 3, 7, 16, 64, 1024} {
		e := newEngine(t, nil)
		r := &chunkReader{data: []byte(src), chunkSize: chunkSize}
		results, err := e.ImportStream(ctx, r, &lineSplitter{}, 8, opts(), nil)
		require.NoError(t, err)

		got := make([]string, len(results))
		for i, res := range results {
			got[i] = res.Result.(string)
		}
		if want == nil {
			want = got
			continue
		}
		require.Equal(t, want, got, "chunk size %d produced a different statement sequence", chunkSize)
	}
}
