package spi

import (
	"github.com/pkg/errors"
)

// Enqueue appends seg to the pending batch. No I/O happens until Submit.
//
// Enqueueing more than MaxSegments segments, or enqueueing on a closed handle, is a programming
// error and panics.
func (h *Handle) Enqueue(seg Segment) {
	if h.closed {
		panic(ErrClosed)
	}
	if len(h.pending) >= MaxSegments {
		panic(ErrTooManySegments)
	}
	h.pending = append(h.pending, seg)
}

// Pending returns the number of segments waiting for Submit.
func (h *Handle) Pending() int {
	return len(h.pending)
}

// Reset drops the pending batch without sending it.
func (h *Handle) Reset() {
	clear(h.pending)
	h.pending = h.pending[:0]
}

// Submit sends every pending segment as one SPI message and returns the bytes clocked in.
//
// The response for segment i sits at the sum of the lengths of segments 0..i-1. holdSelectActive
// is applied to every segment's cs_change. The returned slice has length expectedResponseSize;
// bytes past the clocked total are zero. If the segments clock more than expectedResponseSize
// bytes, the surplus is kept in the slice's capacity.
//
// The pending batch is cleared only on success. After a failed transfer it is still queued, so
// the caller can Submit again or Reset.
func (h *Handle) Submit(expectedResponseSize int, holdSelectActive bool) ([]byte, error) {
	rx, err := h.transfer(h.pending, expectedResponseSize, uniformHold(len(h.pending), holdSelectActive))
	if err != nil {
		return nil, err
	}
	h.Reset()
	return rx, nil
}

// Xfer sends tx as a single-segment message. It neither reads nor modifies the pending batch.
func (h *Handle) Xfer(tx []byte, expectedResponseSize int, holdSelectActive bool) ([]byte, error) {
	return h.transfer([]Segment{tx}, expectedResponseSize, []bool{holdSelectActive})
}

func uniformHold(n int, hold bool) []bool {
	holds := make([]bool, n)
	for i := range holds {
		holds[i] = hold
	}
	return holds
}

// transfer lays the segments out back to back in one response buffer and sends them as a single
// message. holds[i] is segment i's cs_change.
func (h *Handle) transfer(segments []Segment, expectedResponseSize int, holds []bool) ([]byte, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if expectedResponseSize < 0 {
		return nil, errors.Errorf("spi: negative response size %d", expectedResponseSize)
	}
	if len(segments) > MaxSegments {
		return nil, ErrTooManySegments
	}

	clocked := 0
	for _, seg := range segments {
		clocked += len(seg)
	}
	rx := make([]byte, max(expectedResponseSize, clocked))
	if len(segments) == 0 {
		return rx, nil
	}

	transfers := make([]Transfer, len(segments))
	offset := 0
	for i, seg := range segments {
		transfers[i] = Transfer{
			Tx:          seg,
			Rx:          rx[offset : offset+len(seg) : offset+len(seg)],
			SpeedHz:     h.speedHz,
			BitsPerWord: h.bitsPerWord,
			CSChange:    holds[i],
		}
		offset += len(seg)
	}

	if err := h.dev.Transfer(transfers); err != nil {
		h.logger.Debugw("SPI transfer failed",
			"path", h.path, "segments", len(segments), "bytes", clocked, "error", err)
		return nil, newOpError(OpTransfer, h.path, err)
	}
	return rx[:expectedResponseSize], nil
}
