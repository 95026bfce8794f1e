package spi

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"go.viam.com/spidev/logging"
)

// Conn returns the handle as a periph spi.Conn, so periph device drivers can run on it. The
// returned Conn shares the handle and does not touch its pending batch.
func (h *Handle) Conn() spi.Conn {
	return &periphConn{h: h}
}

type periphConn struct {
	h *Handle
}

func (c *periphConn) String() string {
	return c.h.String()
}

func (c *periphConn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx is a full duplex transfer with chip select released afterwards. r may be empty for a
// write-only transfer.
func (c *periphConn) Tx(w, r []byte) error {
	if len(r) != 0 && len(r) != len(w) {
		return errors.Errorf("spi: Tx buffers must be the same size, got %d and %d", len(w), len(r))
	}
	rx, err := c.h.Xfer(w, len(r), false)
	if err != nil {
		return err
	}
	copy(r, rx)
	return nil
}

// TxPackets sends all packets as one message. Chip select stays asserted across packets marked
// KeepCS and is released after the last packet unless it is marked KeepCS too.
func (c *periphConn) TxPackets(packets []spi.Packet) error {
	if len(packets) > MaxSegments {
		return ErrTooManySegments
	}
	segments := make([]Segment, len(packets))
	holds := make([]bool, len(packets))
	total := 0
	for i, p := range packets {
		if len(p.R) != 0 && len(p.R) != len(p.W) {
			return errors.Errorf("spi: packet %d buffers must be the same size, got %d and %d", i, len(p.W), len(p.R))
		}
		if p.BitsPerWord != 0 && p.BitsPerWord != c.h.bitsPerWord {
			return errors.Errorf("spi: packet %d asks for %d bits per word, handle uses %d", i, p.BitsPerWord, c.h.bitsPerWord)
		}
		segments[i] = p.W
		holds[i] = csChange(p.KeepCS, i == len(packets)-1, c.h.mode)
		total += len(p.W)
	}

	rx, err := c.h.transfer(segments, total, holds)
	if err != nil {
		return err
	}
	offset := 0
	for _, p := range packets {
		copy(p.R, rx[offset:offset+len(p.W)])
		offset += len(p.W)
	}
	return nil
}

// csChange maps periph's KeepCS onto the kernel's cs_change. cs_change on an inner transfer
// deasserts chip select before the next one, and on the last transfer keeps it asserted.
func csChange(keepCS, last bool, mode Mode) bool {
	if mode&NoCS != 0 {
		return false
	}
	return keepCS == last
}

// Port is a periph spi.PortCloser for one chip-select line. Connect opens the device.
type Port struct {
	cs     ChipSelect
	logger logging.Logger
	opts   []Option

	mu     sync.Mutex
	limit  physic.Frequency
	handle *Handle
}

// NewPort returns an unconnected port for the chip select.
func NewPort(cs ChipSelect, logger logging.Logger, opts ...Option) *Port {
	return &Port{cs: cs, logger: logger, opts: opts}
}

func (p *Port) String() string {
	return fmt.Sprintf("SPI0.%d", p.cs)
}

// LimitSpeed caps the frequency later Connect calls may ask for.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return errors.Errorf("spi: invalid speed limit %s", f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = f
	return nil
}

// Connect opens and configures the chip-select line. Only 8 bits per word is supported, and a
// port can only be connected once.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if bits != BitsPerWord {
		return nil, errors.Errorf("spi: %d bits per word is not supported", bits)
	}
	m, err := modeFromPeriph(mode)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		return nil, errors.Errorf("spi: %s is already connected", p)
	}
	if f <= 0 || f > MaxBusFrequencyHz*physic.Hertz {
		f = MaxBusFrequencyHz * physic.Hertz
	}
	if p.limit > 0 && f > p.limit {
		f = p.limit
	}

	h, err := OpenHz(p.cs, m, uint32(f/physic.Hertz), p.logger, p.opts...)
	if err != nil {
		return nil, err
	}
	p.handle = h
	return h.Conn(), nil
}

// Close closes the connected handle, if any.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return nil
	}
	err := p.handle.Close()
	p.handle = nil
	return err
}

// Register makes the chip-select line available to spireg.Open under name.
func Register(name string, cs ChipSelect, logger logging.Logger, opts ...Option) error {
	return spireg.Register(name, nil, -1, func() (spi.PortCloser, error) {
		return NewPort(cs, logger.Sublogger(name), opts...), nil
	})
}
