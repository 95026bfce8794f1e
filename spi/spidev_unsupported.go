//go:build !linux

package spi

import "github.com/pkg/errors"

// OpenDevice always fails: spidev only exists on Linux.
func OpenDevice(path string) (Device, error) {
	return nil, errors.Errorf("opening %s: spidev is only supported on linux", path)
}
