package spi

import (
	"fmt"

	"github.com/pkg/errors"
)

// Op names the step of a handle's life that failed. Every Op is also an error, so callers can
// test for a specific failure with errors.Is(err, spi.OpSetSpeedRead).
type Op int

// Failure conditions, in the order Open meets them.
const (
	OpOpen Op = iota + 1
	OpSetModeWrite
	OpSetModeRead
	OpSetBitsPerWordWrite
	OpSetBitsPerWordRead
	OpSetSpeedWrite
	OpSetSpeedRead
	OpClose
	OpTransfer
)

var opNames = map[Op]string{
	OpOpen:                "could not open SPI device",
	OpSetModeWrite:        "could not set SPI mode to WR",
	OpSetModeRead:         "could not set SPI mode to RD",
	OpSetBitsPerWordWrite: "could not set SPI bits per word to WR",
	OpSetBitsPerWordRead:  "could not set SPI bits per word to RD",
	OpSetSpeedWrite:       "could not set SPI speed to WR",
	OpSetSpeedRead:        "could not set SPI speed to RD",
	OpClose:               "could not close SPI device",
	OpTransfer:            "problem transmitting SPI data",
}

func (op Op) Error() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("unknown SPI operation %d", int(op))
}

// OpError is returned by every handle operation that touches the device.
type OpError struct {
	Op   Op
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Op.Error(), e.Path)
	}
	return fmt.Sprintf("%s %s: %s", e.Op.Error(), e.Path, e.Err.Error())
}

// Unwrap returns the underlying cause, usually a syscall.Errno.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is matches the Op itself, so errors.Is(err, OpTransfer) holds for a failed transfer.
func (e *OpError) Is(target error) bool {
	op, ok := target.(Op)
	return ok && op == e.Op
}

func newOpError(op Op, path string, err error) error {
	return &OpError{Op: op, Path: path, Err: err}
}

// OpOf extracts the failed Op from an error returned by this package.
func OpOf(err error) (Op, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Op, true
	}
	return 0, false
}

var (
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("spi: handle is closed")

	// ErrTooManySegments is the panic value when more than MaxSegments segments are enqueued.
	ErrTooManySegments = errors.Errorf("spi: more than %d segments enqueued", MaxSegments)
)
