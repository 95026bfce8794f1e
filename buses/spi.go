package buses

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/spidev/logging"
	"go.viam.com/spidev/spi"
)

// SPIBus is an SPI bus whose chip-select lines are opened on demand, one transaction at a time.
type SPIBus struct {
	name   string
	logger logging.Logger
	opts   []spi.Option

	mu         sync.Mutex
	openHandle *spiHandle

	closeMu sync.Mutex
	closed  bool
}

// NewSPIBus returns a bus. opts are passed to every spi.OpenHz call.
func NewSPIBus(name string, logger logging.Logger, opts ...spi.Option) *SPIBus {
	return &SPIBus{name: name, logger: logger, opts: opts}
}

// OpenHandle blocks until no other handle holds the bus.
func (sb *SPIBus) OpenHandle() (SPIHandle, error) {
	if sb.isClosed() {
		return nil, errors.Errorf("SPI bus %q is closed", sb.name)
	}
	sb.mu.Lock()
	sb.openHandle = &spiHandle{bus: sb, isClosed: false}
	return sb.openHandle, nil
}

// Close stops the bus from handing out new handles. A handle that is already open keeps working
// until it is closed.
func (sb *SPIBus) Close(ctx context.Context) error {
	sb.closeMu.Lock()
	defer sb.closeMu.Unlock()
	sb.closed = true
	sb.logger.CDebugw(ctx, "closed SPI bus", "bus", sb.name)
	return nil
}

func (sb *SPIBus) isClosed() bool {
	sb.closeMu.Lock()
	defer sb.closeMu.Unlock()
	return sb.closed
}

type spiHandle struct {
	bus      *SPIBus
	isClosed bool
}

func parseChipSelect(chipSelect string) (spi.ChipSelect, error) {
	switch chipSelect {
	case "0":
		return spi.CS0, nil
	case "1":
		return spi.CS1, nil
	}
	return 0, errors.Errorf("unknown SPI chip select %q, expected \"0\" or \"1\"", chipSelect)
}

// open checks the handle and context, then opens the chip-select line. The caller closes it.
func (sh *spiHandle) open(ctx context.Context, baud uint, chipSelect string, mode uint) (*spi.Handle, error) {
	if sh.isClosed {
		return nil, errors.New("can't use Xfer() on an already closed SPIHandle")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cs, err := parseChipSelect(chipSelect)
	if err != nil {
		return nil, err
	}
	if mode > uint(spi.Mode3) {
		return nil, errors.Errorf("SPI mode must be between 0 and 3, got %d", mode)
	}
	sh.bus.logger.CDebugw(ctx, "SPI transaction", "bus", sh.bus.name, "chip_select", chipSelect, "baud", baud)
	return spi.OpenHz(cs, spi.Mode(mode), baudToSpeedHz(baud), sh.bus.logger, sh.bus.opts...)
}

// baudToSpeedHz clamps baud to the bus clock. Zero asks for the fastest clock, as Port.Connect
// does for a zero frequency.
func baudToSpeedHz(baud uint) uint32 {
	if baud == 0 || baud > spi.MaxBusFrequencyHz {
		return spi.MaxBusFrequencyHz
	}
	return uint32(baud)
}

func (sh *spiHandle) Xfer(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) (rx []byte, err error) {
	h, err := sh.open(ctx, baud, chipSelect, mode)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, h.Close())
	}()
	return h.Xfer(tx, len(tx), false)
}

func (sh *spiHandle) XferBatch(
	ctx context.Context,
	baud uint,
	chipSelect string,
	mode uint,
	segments [][]byte,
	responseSize int,
	holdSelect bool,
) (rx []byte, err error) {
	if len(segments) > spi.MaxSegments {
		return nil, errors.Errorf("at most %d segments fit in one SPI transaction, got %d", spi.MaxSegments, len(segments))
	}
	h, err := sh.open(ctx, baud, chipSelect, mode)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, h.Close())
	}()
	for _, seg := range segments {
		h.Enqueue(seg)
	}
	return h.Submit(responseSize, holdSelect)
}

func (sh *spiHandle) Close() error {
	if sh.isClosed {
		return errors.New("SPIHandle is already closed")
	}
	sh.isClosed = true
	sh.bus.mu.Unlock()
	return nil
}
