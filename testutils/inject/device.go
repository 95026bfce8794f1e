// Package inject provides spi.Device implementations whose methods can be overridden per test.
package inject

import (
	"go.viam.com/spidev/spi"
)

// Device is an injected spi.Device. Any method without an injected func falls through to the
// embedded Device.
type Device struct {
	spi.Device
	SetModeFunc        func(mode spi.Mode) error
	ModeFunc           func() (spi.Mode, error)
	SetBitsPerWordFunc func(bits uint8) error
	BitsPerWordFunc    func() (uint8, error)
	SetMaxSpeedHzFunc  func(hz uint32) error
	MaxSpeedHzFunc     func() (uint32, error)
	TransferFunc       func(transfers []spi.Transfer) error
	CloseFunc          func() error
}

// SetMode calls the injected SetModeFunc or the real version.
func (d *Device) SetMode(mode spi.Mode) error {
	if d.SetModeFunc == nil {
		return d.Device.SetMode(mode)
	}
	return d.SetModeFunc(mode)
}

// Mode calls the injected ModeFunc or the real version.
func (d *Device) Mode() (spi.Mode, error) {
	if d.ModeFunc == nil {
		return d.Device.Mode()
	}
	return d.ModeFunc()
}

// SetBitsPerWord calls the injected SetBitsPerWordFunc or the real version.
func (d *Device) SetBitsPerWord(bits uint8) error {
	if d.SetBitsPerWordFunc == nil {
		return d.Device.SetBitsPerWord(bits)
	}
	return d.SetBitsPerWordFunc(bits)
}

// BitsPerWord calls the injected BitsPerWordFunc or the real version.
func (d *Device) BitsPerWord() (uint8, error) {
	if d.BitsPerWordFunc == nil {
		return d.Device.BitsPerWord()
	}
	return d.BitsPerWordFunc()
}

// SetMaxSpeedHz calls the injected SetMaxSpeedHzFunc or the real version.
func (d *Device) SetMaxSpeedHz(hz uint32) error {
	if d.SetMaxSpeedHzFunc == nil {
		return d.Device.SetMaxSpeedHz(hz)
	}
	return d.SetMaxSpeedHzFunc(hz)
}

// MaxSpeedHz calls the injected MaxSpeedHzFunc or the real version.
func (d *Device) MaxSpeedHz() (uint32, error) {
	if d.MaxSpeedHzFunc == nil {
		return d.Device.MaxSpeedHz()
	}
	return d.MaxSpeedHzFunc()
}

// Transfer calls the injected TransferFunc or the real version.
func (d *Device) Transfer(transfers []spi.Transfer) error {
	if d.TransferFunc == nil {
		return d.Device.Transfer(transfers)
	}
	return d.TransferFunc(transfers)
}

// Close calls the injected CloseFunc or the real version.
func (d *Device) Close() error {
	if d.CloseFunc == nil {
		return d.Device.Close()
	}
	return d.CloseFunc()
}

// Opener returns an spi.Opener that always hands out d.
func (d *Device) Opener() spi.Opener {
	return func(string) (spi.Device, error) {
		return d, nil
	}
}
