package spi_test

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/spidev/spi"
)

func TestClockDivider(t *testing.T) {
	test.That(t, spi.ClockDividerNone.SpeedHz(), test.ShouldEqual, uint32(250_000_000))
	test.That(t, spi.ClockDivider1.SpeedHz(), test.ShouldEqual, uint32(250_000_000))
	test.That(t, spi.ClockDivider2.SpeedHz(), test.ShouldEqual, uint32(125_000_000))
	test.That(t, spi.ClockDivider16.SpeedHz(), test.ShouldEqual, uint32(15_625_000))
	test.That(t, spi.ClockDivider32768.SpeedHz(), test.ShouldEqual, uint32(7629))

	d := spi.ClockDivider1
	for i := 0; i < 16; i++ {
		test.That(t, d.Valid(), test.ShouldBeTrue)
		test.That(t, d.SpeedHz(), test.ShouldEqual, uint32(spi.MaxBusFrequencyHz)>>i)
		d <<= 1
	}
	test.That(t, d.Valid(), test.ShouldBeFalse)
	test.That(t, spi.ClockDivider(3).Valid(), test.ShouldBeFalse)
	test.That(t, spi.ClockDividerNone.Valid(), test.ShouldBeTrue)

	test.That(t, spi.ClockDivider256.String(), test.ShouldEqual, "ClockDivider256")
	test.That(t, spi.ClockDividerNone.String(), test.ShouldEqual, "ClockDividerNone")
}

func TestModeString(t *testing.T) {
	test.That(t, spi.Mode0.String(), test.ShouldEqual, "Mode0")
	test.That(t, spi.Mode3.String(), test.ShouldEqual, "Mode3")
	test.That(t, (spi.Mode1 | spi.CSHigh | spi.NoCS).String(), test.ShouldEqual, "Mode1|CSHigh|NoCS")
	test.That(t, spi.CS1.String(), test.ShouldEqual, "CS1")
}
