package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const readChunkSize = 4096

// Consume reads r chunk by chunk until EOF or the sentinel, feeding a Decoder
// that reports progress through onUpdate. Frames left incomplete at EOF are
// dropped. On a read error or context cancellation the partial result is
// returned together with the error.
func Consume(ctx context.Context, r io.Reader, onUpdate func(content string)) (Result, error) {
	if r == nil {
		return Result{}, errors.New("sse: nil stream body")
	}
	dec := NewDecoder(onUpdate)
	chunk := make([]byte, readChunkSize)

	for !dec.Done() {
		if err := ctx.Err(); err != nil {
			return dec.Result(), err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			dec.Feed(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			dec.Flush()
			return dec.Result(), nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return dec.Result(), ctxErr
			}
			return dec.Result(), fmt.Errorf("sse: read stream: %w", err)
		}
	}
	return dec.Result(), nil
}
