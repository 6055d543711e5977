// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package engine

import (
	"context"
	"io"
	"math"

	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/session"
)

// StreamSplitter is the black-box seam import_stream feeds bytes
// through. TryNext must report, without blocking on more input,
// whether buf's prefix holds one complete statement: if so it returns
// how many bytes that statement consumed and the Statement itself; if
// buf holds only a partial statement it returns ok=false so the caller
// can grow the buffer and read more. final is set on the last call
// after the source is exhausted, so the splitter can flush a
// statement that is complete but was only recognizable at end of
// input (matching original_source's parse_complete pass).
type StreamSplitter interface {
	TryNext(buf []byte, final bool) (consumed int, stmt Statement, ok bool, err error)
}

// maxParseBuffer mirrors original_source's buffer ceiling: the
// streaming parser may grow its internal buffer by doubling, but never
// past what fits in a uint32 byte count.
const maxParseBuffer = math.MaxUint32

// ImportStream feeds r through splitter one statement at a time,
// executing each as it completes rather than buffering the whole
// source, per spec.md §4.9. Its internal buffer starts at parseSize
// bytes and doubles (capped at maxParseBuffer) whenever a single
// statement does not fit, so an import containing one huge statement
// does not require every statement in it to be huge.
func (e *Engine) ImportStream(ctx context.Context, r io.Reader, splitter StreamSplitter, parseSize int, opts session.Options, vars map[string]interface{}) (results []QueryResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if parseSize <= 0 {
		parseSize = 64 * 1024
	}

	buf := make([]byte, 0, parseSize)
	eof := false

	for {
		for {
			if len(buf) == 0 && eof {
				return results, nil
			}
			consumed, stmt, found, splitErr := splitter.TryNext(buf, eof)
			if splitErr != nil {
				return results, errs2.ParseErrorClass.Wrap(splitErr)
			}
			if !found {
				break
			}
			if consumed <= 0 || consumed > len(buf) {
				return results, errs2.Internal.New("stream splitter reported an invalid consumed length")
			}
			results = append(results, e.runOne(ctx, stmt, opts, vars))
			remaining := len(buf) - consumed
			copy(buf[:remaining], buf[consumed:])
			buf = buf[:remaining]
		}

		if eof {
			if len(buf) > 0 {
				return results, errs2.ParseErrorClass.New("trailing unparsed input at end of stream")
			}
			return results, nil
		}

		if len(buf) == cap(buf) {
			if cap(buf) >= maxParseBuffer {
				return results, errs2.ParseErrorClass.New("statement exceeds maximum parse buffer size")
			}
			grown := cap(buf) * 2
			if grown > maxParseBuffer || grown <= 0 {
				grown = maxParseBuffer
			}
			next := make([]byte, len(buf), grown)
			copy(next, buf)
			buf = next
		}

		n, readErr := r.Read(buf[len(buf):cap(buf)])
		if n > 0 {
			buf = buf[:len(buf)+n]
		}
		if readErr == io.EOF {
			eof = true
			continue
		}
		if readErr != nil {
			return results, errs2.Internal.Wrap(readErr)
		}
	}
}
