package spi

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"go.viam.com/spidev/logging"
)

// Handle is an opened and fully configured chip-select line. Mode, word size and speed are
// fixed for its lifetime. Create one with Open, OpenHz or OpenConfig and release it with Close.
type Handle struct {
	dev    Device
	path   string
	logger logging.Logger

	mode        Mode
	bitsPerWord uint8
	speedHz     uint32

	pending []Segment
	closed  bool
}

// Segment is a read-only view of caller bytes queued for the next Submit. The bytes are not
// copied and must stay untouched until Submit returns.
type Segment []byte

type openOptions struct {
	opener Opener
	path   string
}

// Option changes how a handle is opened.
type Option func(*openOptions)

// WithOpener replaces the spidev opener, typically with a fake device in tests.
func WithOpener(opener Opener) Option {
	return func(o *openOptions) {
		o.opener = opener
	}
}

// WithPath overrides the device node the chip select maps to.
func WithPath(path string) Option {
	return func(o *openOptions) {
		o.path = path
	}
}

// Open opens the chip-select line and configures it to run at MaxBusFrequencyHz divided by
// divider.
func Open(cs ChipSelect, mode Mode, divider ClockDivider, logger logging.Logger, opts ...Option) (*Handle, error) {
	return OpenHz(cs, mode, divider.SpeedHz(), logger, opts...)
}

// OpenHz opens the chip-select line and configures it to run at speedHz.
//
// The device is negotiated in a fixed order: write mode, read mode, write word size, read word
// size, write speed, read speed. The read side of each pair is what the handle keeps. If any step
// fails the device is closed before the error is returned.
func OpenHz(cs ChipSelect, mode Mode, speedHz uint32, logger logging.Logger, opts ...Option) (*Handle, error) {
	o := openOptions{opener: OpenDevice, path: cs.DevicePath()}
	for _, opt := range opts {
		opt(&o)
	}

	dev, err := o.opener(o.path)
	if err != nil {
		logger.Debugw("could not open SPI device", "path", o.path, "error", err)
		return nil, newOpError(OpOpen, o.path, err)
	}

	h := &Handle{
		dev:         dev,
		path:        o.path,
		logger:      logger,
		mode:        mode,
		bitsPerWord: BitsPerWord,
		speedHz:     speedHz,
		pending:     make([]Segment, 0, MaxSegments),
	}
	if err := h.configure(); err != nil {
		logger.Debugw("SPI negotiation failed, closing device", "path", o.path, "error", err)
		return nil, multierr.Combine(err, dev.Close())
	}

	logger.Debugw("opened SPI device",
		"path", h.path, "mode", h.mode.String(), "bits_per_word", h.bitsPerWord, "speed_hz", h.speedHz)
	return h, nil
}

func (h *Handle) configure() error {
	var err error
	steps := []struct {
		op  Op
		run func() error
	}{
		{OpSetModeWrite, func() error { return h.dev.SetMode(h.mode) }},
		{OpSetModeRead, func() error { h.mode, err = h.dev.Mode(); return err }},
		{OpSetBitsPerWordWrite, func() error { return h.dev.SetBitsPerWord(h.bitsPerWord) }},
		{OpSetBitsPerWordRead, func() error { h.bitsPerWord, err = h.dev.BitsPerWord(); return err }},
		{OpSetSpeedWrite, func() error { return h.dev.SetMaxSpeedHz(h.speedHz) }},
		{OpSetSpeedRead, func() error { h.speedHz, err = h.dev.MaxSpeedHz(); return err }},
	}
	for _, step := range steps {
		if stepErr := step.run(); stepErr != nil {
			return newOpError(step.op, h.path, stepErr)
		}
	}
	return nil
}

// Close releases the device. The handle must not be used afterwards, even when an error is
// returned: the kernel releases the descriptor regardless.
func (h *Handle) Close() error {
	if h.closed {
		return ErrClosed
	}
	h.closed = true
	h.Reset()
	if err := h.dev.Close(); err != nil {
		h.logger.Debugw("could not close SPI device", "path", h.path, "error", err)
		return newOpError(OpClose, h.path, err)
	}
	return nil
}

// Path returns the device node backing the handle.
func (h *Handle) Path() string {
	return h.path
}

// Mode returns the negotiated mode.
func (h *Handle) Mode() Mode {
	return h.mode
}

// BitsPerWord returns the negotiated word size.
func (h *Handle) BitsPerWord() uint8 {
	return h.bitsPerWord
}

// SpeedHz returns the negotiated maximum clock speed.
func (h *Handle) SpeedHz() uint32 {
	return h.speedHz
}

// Frequency returns SpeedHz as a periph frequency.
func (h *Handle) Frequency() physic.Frequency {
	return physic.Frequency(h.speedHz) * physic.Hertz
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s (%s, %d bits, %s)", h.path, h.mode, h.bitsPerWord, h.Frequency())
}
