//go:build linux

package spi

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// See Linux include/uapi/linux/spi/spidev.h.
const (
	iocWrMode        = 0x40016b01
	iocRdMode        = 0x80016b01
	iocWrBitsPerWord = 0x40016b03
	iocRdBitsPerWord = 0x80016b03
	iocWrMaxSpeedHz  = 0x40046b04
	iocRdMaxSpeedHz  = 0x80046b04

	iocMessageBase = 0x40006b00
	iocSizeShift   = 16
	iocSizeBits    = 14
)

// iocTransfer mirrors struct spi_ioc_transfer. The buffer addresses are 64 bits wide on every
// architecture, so the layout is the same on 32 and 64 bit kernels.
type iocTransfer struct {
	txBuf          uint64
	rxBuf          uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNBits        uint8
	rxNBits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// iocMessage returns SPI_IOC_MESSAGE(n).
func iocMessage(n int) uintptr {
	size := uintptr(n) * unsafe.Sizeof(iocTransfer{})
	if size >= 1<<iocSizeBits {
		size = 0
	}
	return iocMessageBase | size<<iocSizeShift
}

type spidev struct {
	fd int
}

// OpenDevice opens a spidev node such as /dev/spidev0.0 for reading and writing.
func OpenDevice(path string) (Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &spidev{fd: fd}, nil
}

func (d *spidev) ioctl(request uintptr, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), request, uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

func (d *spidev) SetMode(mode Mode) error {
	return d.ioctl(iocWrMode, unsafe.Pointer(&mode))
}

func (d *spidev) Mode() (Mode, error) {
	var mode Mode
	err := d.ioctl(iocRdMode, unsafe.Pointer(&mode))
	return mode, err
}

func (d *spidev) SetBitsPerWord(bits uint8) error {
	return d.ioctl(iocWrBitsPerWord, unsafe.Pointer(&bits))
}

func (d *spidev) BitsPerWord() (uint8, error) {
	var bits uint8
	err := d.ioctl(iocRdBitsPerWord, unsafe.Pointer(&bits))
	return bits, err
}

func (d *spidev) SetMaxSpeedHz(hz uint32) error {
	return d.ioctl(iocWrMaxSpeedHz, unsafe.Pointer(&hz))
}

func (d *spidev) MaxSpeedHz() (uint32, error) {
	var hz uint32
	err := d.ioctl(iocRdMaxSpeedHz, unsafe.Pointer(&hz))
	return hz, err
}

func (d *spidev) Transfer(transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	msgs := toIocTransfers(transfers)
	err := d.ioctl(iocMessage(len(msgs)), unsafe.Pointer(&msgs[0]))
	// The kernel only sees the buffers as integers; keep them reachable until it is done.
	runtime.KeepAlive(transfers)
	return err
}

// toIocTransfers converts transfers to the kernel layout. An empty Tx or Rx is passed as a null
// buffer, which the kernel treats as write or read of zeros.
func toIocTransfers(transfers []Transfer) []iocTransfer {
	msgs := make([]iocTransfer, len(transfers))
	for i, t := range transfers {
		msgs[i] = iocTransfer{
			length:      uint32(len(t.Tx)),
			speedHz:     t.SpeedHz,
			bitsPerWord: t.BitsPerWord,
		}
		if len(t.Tx) > 0 {
			msgs[i].txBuf = uint64(uintptr(unsafe.Pointer(&t.Tx[0])))
		}
		if len(t.Rx) > 0 {
			msgs[i].rxBuf = uint64(uintptr(unsafe.Pointer(&t.Rx[0])))
		}
		if t.CSChange {
			msgs[i].csChange = 1
		}
	}
	return msgs
}

func (d *spidev) Close() error {
	return unix.Close(d.fd)
}
