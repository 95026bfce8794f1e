package spi_test

import (
	"bytes"
	"fmt"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"golang.org/x/sync/errgroup"

	"go.viam.com/spidev/logging"
	"go.viam.com/spidev/spi"
	"go.viam.com/spidev/spi/fake"
	"go.viam.com/spidev/testutils/inject"
)

// lowercase answers each byte with its lower case form.
func lowercase(tx []byte) []byte {
	return bytes.ToLower(tx)
}

func TestSubmitLayout(t *testing.T) {
	dev := fake.NewDevice()
	dev.Respond = lowercase
	h := openFake(t, spi.CS0, dev)
	defer h.Close()

	h.Enqueue([]byte("AB"))
	h.Enqueue([]byte("CDE"))
	test.That(t, h.Pending(), test.ShouldEqual, 2)

	rx, err := h.Submit(5, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rx, test.ShouldHaveLength, 5)
	test.That(t, string(rx[0:2]), test.ShouldEqual, "ab")
	test.That(t, string(rx[2:5]), test.ShouldEqual, "cde")

	msgs := dev.Messages()
	test.That(t, msgs, test.ShouldHaveLength, 1)
	test.That(t, msgs[0], test.ShouldResemble, fake.Message{
		{Tx: []byte("AB"), SpeedHz: 15625000, BitsPerWord: 8, CSChange: true},
		{Tx: []byte("CDE"), SpeedHz: 15625000, BitsPerWord: 8, CSChange: true},
	})
}

func TestSubmitPrefixSums(t *testing.T) {
	dev := fake.NewDevice()
	// Every byte of segment i answers i.
	dev.Respond = func(tx []byte) []byte {
		return bytes.Repeat([]byte{tx[0]}, len(tx))
	}
	h := openFake(t, spi.CS0, dev)
	defer h.Close()

	var expected []byte
	for i := 0; i < spi.MaxSegments; i++ {
		seg := bytes.Repeat([]byte{byte(i)}, i+1)
		h.Enqueue(seg)
		expected = append(expected, seg...)
	}

	rx, err := h.Submit(len(expected), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rx, test.ShouldResemble, expected)

	msgs := dev.Messages()
	test.That(t, msgs, test.ShouldHaveLength, 1)
	test.That(t, msgs[0], test.ShouldHaveLength, spi.MaxSegments)
	for _, seg := range msgs[0] {
		test.That(t, seg.CSChange, test.ShouldBeFalse)
	}
}

func TestSubmitClearsQueue(t *testing.T) {
	dev := fake.NewDevice()
	h := openFake(t, spi.CS0, dev)
	defer h.Close()

	h.Enqueue([]byte("first"))
	h.Enqueue([]byte("batch"))
	_, err := h.Submit(10, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.Pending(), test.ShouldEqual, 0)

	h.Enqueue([]byte("next"))
	rx, err := h.Submit(4, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(rx), test.ShouldEqual, "next")

	msgs := dev.Messages()
	test.That(t, msgs, test.ShouldHaveLength, 2)
	test.That(t, msgs[1], test.ShouldHaveLength, 1)
	test.That(t, msgs[1][0].Tx, test.ShouldResemble, []byte("next"))
}

func TestSubmitResponseSizing(t *testing.T) {
	dev := fake.NewDevice()
	h := openFake(t, spi.CS0, dev)
	defer h.Close()

	t.Run("slack past the clocked bytes", func(t *testing.T) {
		h.Enqueue([]byte{1, 2})
		rx, err := h.Submit(128, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, rx, test.ShouldHaveLength, 128)
		test.That(t, rx[:2], test.ShouldResemble, []byte{1, 2})
		test.That(t, rx[2:], test.ShouldResemble, make([]byte, 126))
	})

	t.Run("more clocked than expected", func(t *testing.T) {
		for _, b := range []byte("@ABCDE") {
			h.Enqueue([]byte{b})
		}
		h.Enqueue([]byte("@ABCDE\x00"))
		rx, err := h.Submit(6, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(rx), test.ShouldEqual, "@ABCDE")
		test.That(t, cap(rx), test.ShouldEqual, 13)
		test.That(t, string(rx[6:cap(rx)]), test.ShouldEqual, "@ABCDE\x00")
	})

	t.Run("negative size", func(t *testing.T) {
		h.Enqueue([]byte{1})
		_, err := h.Submit(-1, true)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, h.Pending(), test.ShouldEqual, 1)
		h.Reset()
	})
}

func TestSubmitEmpty(t *testing.T) {
	dev := fake.NewDevice()
	h := openFake(t, spi.CS0, dev)
	defer h.Close()

	rx, err := h.Submit(0, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rx, test.ShouldNotBeNil)
	test.That(t, rx, test.ShouldHaveLength, 0)
	test.That(t, dev.Messages(), test.ShouldHaveLength, 0)
}

func TestEnqueueOverflow(t *testing.T) {
	h := openFake(t, spi.CS0, fake.NewDevice())
	defer h.Close()

	for i := 0; i < spi.MaxSegments; i++ {
		h.Enqueue([]byte{byte(i)})
	}
	for i := 0; i < 3; i++ {
		test.That(t, func() { h.Enqueue([]byte{0xff}) }, test.ShouldPanicWith, spi.ErrTooManySegments)
		test.That(t, h.Pending(), test.ShouldEqual, spi.MaxSegments)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	h := openFake(t, spi.CS0, fake.NewDevice())
	test.That(t, h.Close(), test.ShouldBeNil)
	test.That(t, func() { h.Enqueue([]byte{1}) }, test.ShouldPanicWith, spi.ErrClosed)
	_, err := h.Xfer([]byte{1}, 1, false)
	test.That(t, err, test.ShouldBeError, spi.ErrClosed)
}

func TestSubmitFailureKeepsQueue(t *testing.T) {
	backing := fake.NewDevice()
	fail := true
	dev := &inject.Device{
		Device: backing,
		TransferFunc: func(transfers []spi.Transfer) error {
			if fail {
				return syscall.EIO
			}
			return backing.Transfer(transfers)
		},
	}
	h, err := spi.Open(spi.CS0, spi.Mode0, spi.ClockDivider64, logging.NewTestLogger(t), spi.WithOpener(dev.Opener()))
	test.That(t, err, test.ShouldBeNil)
	defer h.Close()

	h.Enqueue([]byte("ping"))
	rx, err := h.Submit(4, false)
	test.That(t, rx, test.ShouldBeNil)
	test.That(t, errors.Is(err, spi.OpTransfer), test.ShouldBeTrue)
	test.That(t, errors.Is(err, syscall.EIO), test.ShouldBeTrue)
	test.That(t, h.Pending(), test.ShouldEqual, 1)

	fail = false
	rx, err = h.Submit(4, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(rx), test.ShouldEqual, "ping")
	test.That(t, h.Pending(), test.ShouldEqual, 0)

	fail = true
	h.Enqueue([]byte("dropped"))
	_, err = h.Submit(7, false)
	test.That(t, err, test.ShouldNotBeNil)
	h.Reset()
	test.That(t, h.Pending(), test.ShouldEqual, 0)
}

func TestXfer(t *testing.T) {
	dev := fake.NewDevice()
	dev.Respond = lowercase
	h := openFake(t, spi.CS0, dev)
	defer h.Close()

	h.Enqueue([]byte("QUEUED"))
	rx, err := h.Xfer([]byte("HELLO"), 5, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(rx), test.ShouldEqual, "hello")
	test.That(t, h.Pending(), test.ShouldEqual, 1)

	msgs := dev.Messages()
	test.That(t, msgs, test.ShouldHaveLength, 1)
	test.That(t, msgs[0], test.ShouldHaveLength, 1)
	test.That(t, msgs[0][0].CSChange, test.ShouldBeFalse)
}

func TestIndependentChipSelects(t *testing.T) {
	dev0 := fake.NewDevice()
	dev1 := fake.NewDevice()
	dev1.Respond = lowercase
	opener := fake.Opener(map[string]*fake.Device{
		spi.CS0.DevicePath(): dev0,
		spi.CS1.DevicePath(): dev1,
	})
	logger := logging.NewTestLogger(t)

	h0, err := spi.Open(spi.CS0, spi.Mode0, spi.ClockDivider16, logger, spi.WithOpener(opener))
	test.That(t, err, test.ShouldBeNil)
	defer h0.Close()
	h1, err := spi.Open(spi.CS1, spi.Mode0, spi.ClockDivider16, logger, spi.WithOpener(opener))
	test.That(t, err, test.ShouldBeNil)
	defer h1.Close()

	const rounds = 50
	run := func(h *spi.Handle, prefix string, transform func([]byte) []byte) func() error {
		return func() error {
			for i := 0; i < rounds; i++ {
				a := []byte(fmt.Sprintf("%s-%d", prefix, i))
				b := []byte(prefix)
				h.Enqueue(a)
				h.Enqueue(b)
				rx, err := h.Submit(len(a)+len(b), true)
				if err != nil {
					return err
				}
				if want := transform(append(append([]byte(nil), a...), b...)); !bytes.Equal(rx, want) {
					return errors.Errorf("%s round %d: got %q, want %q", prefix, i, rx, want)
				}
				if h.Pending() != 0 {
					return errors.Errorf("%s round %d: queue not empty", prefix, i)
				}
			}
			return nil
		}
	}

	var g errgroup.Group
	g.Go(run(h0, "CS0", fake.Loopback))
	g.Go(run(h1, "CS1", lowercase))
	test.That(t, g.Wait(), test.ShouldBeNil)

	test.That(t, dev0.Messages(), test.ShouldHaveLength, rounds)
	test.That(t, dev1.Messages(), test.ShouldHaveLength, rounds)
}
