// Package export writes the user table to object storage as JSON Lines.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/koustreak/userstream/internal/errs"
	"github.com/koustreak/userstream/internal/filestore"
	"github.com/koustreak/userstream/internal/logger"
	"github.com/koustreak/userstream/internal/stream"
)

// ContentType is stored on every exported object.
const ContentType = "application/x-ndjson"

const (
	// DefaultPartSize is the multipart chunk used when none is configured.
	// The uploader buffers one part at a time, so this bounds export memory.
	DefaultPartSize uint64 = 16 << 20
	// MinPartSize is the smallest part S3 accepts for all but the last part.
	MinPartSize uint64 = 5 << 20
)

// Result summarizes a finished export.
type Result struct {
	Rows     int
	Object   *filestore.ObjectInfo
	Duration time.Duration
}

// Option configures an export.
type Option func(*options)

type options struct {
	partSize uint64
}

// WithPartSize sets the multipart chunk size. Zero keeps DefaultPartSize.
func WithPartSize(n uint64) Option {
	return func(o *options) {
		if n != 0 {
			o.partSize = n
		}
	}
}

// JSONL streams every row of s into bucket/key, one JSON object per line.
// Rows are encoded as the upload consumes them, so memory stays bounded by
// the upload part size no matter how large the table is. The bucket is
// created when missing. Once uploaded, the object is stat'ed and its size
// checked against the bytes written.
func JSONL(ctx context.Context, s *stream.Streamer, store filestore.Store, bucket, key string, opts ...Option) (*Result, error) {
	o := options{partSize: DefaultPartSize}
	for _, opt := range opts {
		opt(&o)
	}
	if bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "export bucket is required")
	}
	if key == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "export key is required")
	}
	if o.partSize < MinPartSize {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "export part size must be >= %d bytes, got %d", MinPartSize, o.partSize)
	}

	log := logger.FromContext(ctx).With().
		Str("component", "export").
		Str("bucket", bucket).
		Str("key", key).
		Logger()
	start := time.Now()

	if err := store.EnsureBucket(ctx, bucket); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	var rows int
	cw := &countingWriter{w: pw}

	go func() {
		err := encodeRows(ctx, s, cw, &rows)
		pw.CloseWithError(err)
		done <- err
	}()

	_, putErr := store.PutObject(ctx, bucket, key, pr, filestore.UnknownSize, filestore.PutOptions{
		ContentType: ContentType,
		PartSize:    o.partSize,
		Metadata: map[string]string{
			"table":  s.Table(),
			"format": "jsonl",
		},
	})
	// Unblocks the encoder if the upload stopped reading early.
	pr.Close()
	streamErr := <-done

	if streamErr != nil && !errors.Is(streamErr, io.ErrClosedPipe) {
		log.ErrorWith("export failed while streaming rows", streamErr, map[string]interface{}{"rows": rows})
		return nil, streamErr
	}
	if putErr != nil {
		log.ErrorWith("export upload failed", putErr, map[string]interface{}{"rows": rows})
		return nil, errs.WrapKeep(errs.ErrKindConnectionFailed, "failed to upload export", putErr)
	}

	info, err := store.StatObject(ctx, bucket, key)
	if err != nil {
		log.ErrorWith("export stat failed", err, map[string]interface{}{"rows": rows})
		return nil, errs.WrapKeep(errs.ErrKindConnectionFailed, "failed to stat export", err)
	}
	if info.Size != cw.n {
		err := errs.Newf(errs.ErrKindConnectionFailed, "stored export is %d bytes, wrote %d", info.Size, cw.n)
		log.ErrorWith("export size mismatch", err, map[string]interface{}{"rows": rows})
		return nil, err
	}

	res := &Result{Rows: rows, Object: info, Duration: time.Since(start)}
	log.InfoWith("export finished", map[string]interface{}{
		"rows":        rows,
		"bytes":       info.Size,
		"duration_ms": res.Duration.Milliseconds(),
	})
	return res, nil
}

func encodeRows(ctx context.Context, s *stream.Streamer, w io.Writer, count *int) error {
	it := s.Rows(ctx)
	defer it.Close()

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for it.Next() {
		if err := enc.Encode(it.Value()); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return err
			}
			return errs.Wrap(errs.ErrKindQueryFailed, "failed to encode row", err)
		}
		*count++
	}
	if err := it.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

// countingWriter tallies bytes that reached the pipe.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
