package buses

import (
	"context"
	"math"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/spidev/logging"
	"go.viam.com/spidev/spi"
	"go.viam.com/spidev/spi/fake"
	"go.viam.com/spidev/testutils/inject"
)

func newTestBus(t *testing.T) (*SPIBus, *fake.Device, *fake.Device) {
	t.Helper()
	dev0 := fake.NewDevice()
	dev1 := fake.NewDevice()
	opener := fake.Opener(map[string]*fake.Device{
		spi.CS0.DevicePath(): dev0,
		spi.CS1.DevicePath(): dev1,
	})
	return NewSPIBus("main", logging.NewTestLogger(t), spi.WithOpener(opener)), dev0, dev1
}

func TestSPIXfer(t *testing.T) {
	ctx := context.Background()
	bus, dev0, dev1 := newTestBus(t)
	dev1.Respond = func(tx []byte) []byte { return []byte{0xff, tx[0]} }

	handle, err := bus.OpenHandle()
	test.That(t, err, test.ShouldBeNil)

	rx, err := handle.Xfer(ctx, 1_000_000, "1", 0, []byte{0x01, 0x80})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rx, test.ShouldResemble, []byte{0xff, 0x01})
	test.That(t, dev1.CloseCount(), test.ShouldEqual, 1)
	test.That(t, dev0.Messages(), test.ShouldHaveLength, 0)

	msgs := dev1.Messages()
	test.That(t, msgs, test.ShouldHaveLength, 1)
	test.That(t, msgs[0][0].SpeedHz, test.ShouldEqual, uint32(1_000_000))
	test.That(t, msgs[0][0].CSChange, test.ShouldBeFalse)

	_, err = handle.Xfer(ctx, 1_000_000, "2", 0, []byte{0x01})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = handle.Xfer(ctx, 1_000_000, "0", 4, []byte{0x01})
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, handle.Close(), test.ShouldBeNil)
	test.That(t, handle.Close(), test.ShouldNotBeNil)
	_, err = handle.Xfer(ctx, 1_000_000, "0", 0, []byte{0x01})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSPIXferBatch(t *testing.T) {
	ctx := context.Background()
	bus, dev0, _ := newTestBus(t)

	handle, err := bus.OpenHandle()
	test.That(t, err, test.ShouldBeNil)
	defer handle.Close()

	rx, err := handle.XferBatch(ctx, 500_000, "0", 3, [][]byte{[]byte("AB"), []byte("CDE")}, 8, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rx, test.ShouldResemble, []byte{'A', 'B', 'C', 'D', 'E', 0, 0, 0})

	msgs := dev0.Messages()
	test.That(t, msgs, test.ShouldHaveLength, 1)
	test.That(t, msgs[0], test.ShouldHaveLength, 2)
	test.That(t, msgs[0][1].CSChange, test.ShouldBeTrue)
	mode, err := dev0.Mode()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldEqual, spi.Mode3)

	tooMany := make([][]byte, spi.MaxSegments+1)
	_, err = handle.XferBatch(ctx, 500_000, "0", 0, tooMany, 0, false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, dev0.Messages(), test.ShouldHaveLength, 1)
}

func TestSPIXferErrors(t *testing.T) {
	t.Run("canceled context", func(t *testing.T) {
		bus, dev0, _ := newTestBus(t)
		handle, err := bus.OpenHandle()
		test.That(t, err, test.ShouldBeNil)
		defer handle.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = handle.Xfer(ctx, 1_000_000, "0", 0, []byte{1})
		test.That(t, err, test.ShouldBeError, context.Canceled)
		_, err = handle.XferBatch(ctx, 1_000_000, "0", 0, [][]byte{{1}}, 1, false)
		test.That(t, err, test.ShouldBeError, context.Canceled)
		test.That(t, dev0.CloseCount(), test.ShouldEqual, 0)
	})

	t.Run("transfer and close errors combine", func(t *testing.T) {
		dev := &inject.Device{
			Device:       fake.NewDevice(),
			TransferFunc: func([]spi.Transfer) error { return syscall.EIO },
			CloseFunc:    func() error { return syscall.EBADF },
		}
		bus := NewSPIBus("main", logging.NewTestLogger(t), spi.WithOpener(dev.Opener()))
		handle, err := bus.OpenHandle()
		test.That(t, err, test.ShouldBeNil)
		defer handle.Close()

		_, err = handle.XferBatch(context.Background(), 1_000_000, "0", 0, [][]byte{{1}}, 1, false)
		test.That(t, errors.Is(err, spi.OpTransfer), test.ShouldBeTrue)
		test.That(t, errors.Is(err, spi.OpClose), test.ShouldBeTrue)
	})
}

func TestSPIXferBaud(t *testing.T) {
	bus, dev0, _ := newTestBus(t)
	handle, err := bus.OpenHandle()
	test.That(t, err, test.ShouldBeNil)
	defer handle.Close()

	for _, tc := range []struct {
		baud     uint
		expected uint32
	}{
		{0, spi.MaxBusFrequencyHz},
		{math.MaxUint32, spi.MaxBusFrequencyHz},
		{spi.MaxBusFrequencyHz + 1, spi.MaxBusFrequencyHz},
		{3_900_000, 3_900_000},
	} {
		_, err := handle.Xfer(context.Background(), tc.baud, "0", 0, []byte{0x42})
		test.That(t, err, test.ShouldBeNil)
		speed, err := dev0.MaxSpeedHz()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, speed, test.ShouldEqual, tc.expected)
	}
}

func TestSPIBusExclusive(t *testing.T) {
	bus, _, _ := newTestBus(t)

	first, err := bus.OpenHandle()
	test.That(t, err, test.ShouldBeNil)

	acquired := make(chan SPIHandle)
	go func() {
		second, err := bus.OpenHandle()
		if err != nil {
			close(acquired)
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatal("second handle opened while the first one held the bus")
	case <-time.After(50 * time.Millisecond):
	}

	test.That(t, first.Close(), test.ShouldBeNil)
	select {
	case second, ok := <-acquired:
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, second.Close(), test.ShouldBeNil)
	case <-time.After(5 * time.Second):
		t.Fatal("second handle never opened")
	}
}

func TestSPIBusClose(t *testing.T) {
	bus, _, _ := newTestBus(t)
	test.That(t, bus.Close(context.Background()), test.ShouldBeNil)
	_, err := bus.OpenHandle()
	test.That(t, err, test.ShouldNotBeNil)
}
