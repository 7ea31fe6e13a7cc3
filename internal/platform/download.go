package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/openclaw/ringcentral-bridge/internal/rcerrors"
)

// downloadChunkSize bounds how much we read per iteration so the
// over-limit check (spec.md §4.1 step 2) fires within one chunk of the
// limit, not after reading an arbitrarily large buffer.
const downloadChunkSize = 64 * 1024

// DownloadResult is the successful outcome of a streaming attachment
// download.
type DownloadResult struct {
	Buffer      []byte
	ContentType string
}

// DownloadAttachment implements the streaming download contract from
// spec.md §4.1 against an arbitrary contentUri returned by the platform.
// The whole-body convenience read (io.ReadAll over an unbounded response)
// is deliberately never used here.
func (c *Client) DownloadAttachment(ctx context.Context, contentURI string, maxBytes int64) (*DownloadResult, error) {
	if maxBytes <= 0 {
		maxBytes = 1
	}

	resp, err := c.do(ctx, http.MethodGet, contentURI, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, rcerrors.Normalize(resp.StatusCode, flattenHeader(resp.Header), c.accountID, body)
	}

	if resp.ContentLength > 0 && resp.ContentLength > maxBytes {
		// Fail without consuming the body at all (step 1).
		return nil, &rcerrors.PayloadTooLarge{MaxBytes: maxBytes, Observed: resp.ContentLength}
	}

	buf := make([]byte, 0, min64(maxBytes+downloadChunkSize, 8<<20))
	chunk := make([]byte, downloadChunkSize)

	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if int64(len(buf)) > maxBytes {
				// Cancel the stream immediately: closing the body tells the
				// transport to abandon the connection rather than drain it.
				resp.Body.Close()
				return nil, &rcerrors.PayloadTooLarge{MaxBytes: maxBytes, Observed: int64(len(buf))}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("reading attachment stream: %w", readErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	return &DownloadResult{
		Buffer:      buf,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
