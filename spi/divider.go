package spi

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// MaxBusFrequencyHz is the undivided SPI core clock.
const MaxBusFrequencyHz = 250_000_000

// ClockDivider divides MaxBusFrequencyHz down to the bus clock. Valid values are powers of two
// from 1 to 32768, plus ClockDividerNone.
type ClockDivider uint32

// Clock dividers.
const (
	ClockDivider1 ClockDivider = 1 << iota
	ClockDivider2
	ClockDivider4
	ClockDivider8
	ClockDivider16
	ClockDivider32
	ClockDivider64
	ClockDivider128
	ClockDivider256
	ClockDivider512
	ClockDivider1024
	ClockDivider2048
	ClockDivider4096
	ClockDivider8192
	ClockDivider16384
	ClockDivider32768

	// ClockDividerNone leaves the clock undivided, same as ClockDivider1.
	ClockDividerNone ClockDivider = 0
)

// Valid reports whether d is one of the named dividers.
func (d ClockDivider) Valid() bool {
	return d == ClockDividerNone || (d <= ClockDivider32768 && d&(d-1) == 0)
}

// SpeedHz returns the bus clock the divider yields.
func (d ClockDivider) SpeedHz() uint32 {
	if d == ClockDividerNone || d == ClockDivider1 {
		return MaxBusFrequencyHz
	}
	return MaxBusFrequencyHz / uint32(d)
}

// Frequency is SpeedHz as a periph frequency.
func (d ClockDivider) Frequency() physic.Frequency {
	return physic.Frequency(d.SpeedHz()) * physic.Hertz
}

func (d ClockDivider) String() string {
	if d == ClockDividerNone {
		return "ClockDividerNone"
	}
	return fmt.Sprintf("ClockDivider%d", uint32(d))
}
