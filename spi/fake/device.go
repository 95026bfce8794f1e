// Package fake implements an in-memory spidev device for testing.
package fake

import (
	"os"
	"sync"

	"go.viam.com/spidev/spi"
)

// Responder computes what the peripheral clocks back while tx is clocked out. The result is
// truncated or zero padded to len(tx).
type Responder func(tx []byte) []byte

// Loopback answers every byte with itself, as if MOSI were wired to MISO.
func Loopback(tx []byte) []byte {
	return tx
}

// Message is a recorded SPI_IOC_MESSAGE call.
type Message []Segment

// Segment is one recorded transfer of a message.
type Segment struct {
	Tx          []byte
	SpeedHz     uint32
	BitsPerWord uint8
	CSChange    bool
}

// Device is a fake spidev node. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	// MaxSpeedLimitHz, when nonzero, caps the speed the device reports after SetMaxSpeedHz, like
	// a controller that cannot reach the requested clock.
	MaxSpeedLimitHz uint32
	Respond         Responder

	mode        spi.Mode
	bitsPerWord uint8
	speedHz     uint32
	messages    []Message
	closeCount  int
}

// NewDevice returns a loopback device.
func NewDevice() *Device {
	return &Device{Respond: Loopback}
}

// SetMode implements spi.Device.
func (d *Device) SetMode(mode spi.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
	return nil
}

// Mode implements spi.Device.
func (d *Device) Mode() (spi.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode, nil
}

// SetBitsPerWord implements spi.Device.
func (d *Device) SetBitsPerWord(bits uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bitsPerWord = bits
	return nil
}

// BitsPerWord implements spi.Device.
func (d *Device) BitsPerWord() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bitsPerWord, nil
}

// SetMaxSpeedHz implements spi.Device.
func (d *Device) SetMaxSpeedHz(hz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.MaxSpeedLimitHz != 0 && hz > d.MaxSpeedLimitHz {
		hz = d.MaxSpeedLimitHz
	}
	d.speedHz = hz
	return nil
}

// MaxSpeedHz implements spi.Device.
func (d *Device) MaxSpeedHz() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speedHz, nil
}

// Transfer records the message and fills each Rx from Respond.
func (d *Device) Transfer(transfers []spi.Transfer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg := make(Message, 0, len(transfers))
	for _, t := range transfers {
		msg = append(msg, Segment{
			Tx:          append([]byte(nil), t.Tx...),
			SpeedHz:     t.SpeedHz,
			BitsPerWord: t.BitsPerWord,
			CSChange:    t.CSChange,
		})
		if len(t.Rx) < len(t.Tx) {
			continue
		}
		respond := d.Respond
		if respond == nil {
			respond = Loopback
		}
		n := copy(t.Rx[:len(t.Tx)], respond(t.Tx))
		clear(t.Rx[n:len(t.Tx)])
	}
	d.messages = append(d.messages, msg)
	return nil
}

// Close implements spi.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCount++
	return nil
}

// Messages returns every message transferred so far.
func (d *Device) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.messages...)
}

// CloseCount returns how many times Close was called.
func (d *Device) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCount
}

// Opener returns an spi.Opener serving devices by path. Unknown paths fail like a missing
// device node.
func Opener(devices map[string]*Device) spi.Opener {
	return func(path string) (spi.Device, error) {
		dev, ok := devices[path]
		if !ok {
			return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
		}
		return dev, nil
	}
}
