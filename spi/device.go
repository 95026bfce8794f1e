package spi

// Transfer is one segment of an SPI_IOC_MESSAGE transaction. Rx, when non-nil, is at least as
// long as Tx; Tx's length is the number of bytes clocked.
type Transfer struct {
	Tx          []byte
	Rx          []byte
	SpeedHz     uint32
	BitsPerWord uint8
	// CSChange maps to spi_ioc_transfer.cs_change. On the last segment it keeps chip select
	// asserted after the transaction; on the others it releases it between segments.
	CSChange bool
}

// Device is an opened spidev node. Setters and getters map one to one onto the
// SPI_IOC_WR_* and SPI_IOC_RD_* ioctls.
type Device interface {
	SetMode(mode Mode) error
	Mode() (Mode, error)
	SetBitsPerWord(bits uint8) error
	BitsPerWord() (uint8, error)
	SetMaxSpeedHz(hz uint32) error
	MaxSpeedHz() (uint32, error)
	// Transfer runs every transfer as one message. It blocks until the kernel is done.
	Transfer(transfers []Transfer) error
	Close() error
}

// Opener opens the device node at path.
type Opener func(path string) (Device, error)
