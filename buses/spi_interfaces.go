// Package buses offers a shareable SPI bus on top of the spi package.
package buses

import (
	"context"
)

// SPI represents a shareable SPI bus.
type SPI interface {
	// OpenHandle locks the shared bus and returns a handle interface that MUST be closed when done.
	OpenHandle() (SPIHandle, error)
	Close(ctx context.Context) error
}

// SPIHandle is similar to an io handle. It MUST be closed to release the bus.
type SPIHandle interface {
	// Xfer performs a single SPI transfer, that is, the complete transaction from chipselect
	// enable to chipselect disable. The number of bytes received equals the number of bytes sent.
	// chipSelect is "0" or "1".
	Xfer(
		ctx context.Context,
		baud uint,
		chipSelect string,
		mode uint,
		tx []byte,
	) ([]byte, error)

	// XferBatch sends every segment in one transaction and returns a response buffer of
	// responseSize bytes laid out in segment order. holdSelect keeps chip select asserted
	// between and after the segments.
	XferBatch(
		ctx context.Context,
		baud uint,
		chipSelect string,
		mode uint,
		segments [][]byte,
		responseSize int,
		holdSelect bool,
	) ([]byte, error)

	// Close closes the handle and releases the lock on the bus.
	Close() error
}
