// Package spi drives a Linux spidev SPI bus with two chip-select lines.
//
// A Handle is one opened, configured chip-select line. Segments queued with Enqueue are sent
// by Submit as a single SPI_IOC_MESSAGE transaction, and the peripheral's response comes back
// as one contiguous buffer whose layout mirrors the queued segment sizes:
//
//	h, err := spi.Open(spi.CS0, spi.Mode0, spi.ClockDivider16, logger)
//	...
//	h.Enqueue([]byte("AB"))
//	h.Enqueue([]byte("CDE"))
//	rx, err := h.Submit(5, true) // rx[0:2] answers "AB", rx[2:5] answers "CDE"
//
// A Handle is not safe for concurrent use. See the buses package for a shareable bus.
package spi

import (
	"fmt"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/spi"
)

// ChipSelect picks one of the two spidev nodes on bus 0.
type ChipSelect int

const (
	// CS0 is /dev/spidev0.0.
	CS0 ChipSelect = 0
	// CS1 is /dev/spidev0.1.
	CS1 ChipSelect = 1
)

// DevicePath returns the device node for the chip select. Any nonzero value selects CS1.
func (cs ChipSelect) DevicePath() string {
	if cs != CS0 {
		return "/dev/spidev0.1"
	}
	return "/dev/spidev0.0"
}

func (cs ChipSelect) String() string {
	if cs != CS0 {
		return "CS1"
	}
	return "CS0"
}

// Mode is the spidev mode byte: clock polarity and phase plus the SPI_* flag bits.
type Mode uint8

// Clock polarity/phase combinations and spidev mode flags.
const (
	CPHA Mode = 1 << iota
	CPOL
	CSHigh
	LSBFirst
	ThreeWire
	Loop
	NoCS
	Ready

	Mode0 Mode = 0
	Mode1 Mode = CPHA
	Mode2 Mode = CPOL
	Mode3 Mode = CPOL | CPHA
)

func (m Mode) String() string {
	s := fmt.Sprintf("Mode%d", m&Mode3)
	for _, flag := range []struct {
		bit  Mode
		name string
	}{
		{CSHigh, "CSHigh"},
		{LSBFirst, "LSBFirst"},
		{ThreeWire, "ThreeWire"},
		{Loop, "Loop"},
		{NoCS, "NoCS"},
		{Ready, "Ready"},
	} {
		if m&flag.bit != 0 {
			s += "|" + flag.name
		}
	}
	return s
}

// modeFromPeriph converts a periph mode. Half duplex has no spidev equivalent and is rejected.
func modeFromPeriph(m spi.Mode) (Mode, error) {
	if m&spi.HalfDuplex != 0 {
		return 0, errors.New("spi: half duplex mode is not supported")
	}
	out := Mode(m & spi.Mode3)
	if m&spi.NoCS != 0 {
		out |= NoCS
	}
	if m&spi.LSBFirst != 0 {
		out |= LSBFirst
	}
	return out, nil
}

// BitsPerWord is the only word size this driver negotiates.
const BitsPerWord = 8

// MaxSegments caps the number of segments in one submission.
const MaxSegments = 16
