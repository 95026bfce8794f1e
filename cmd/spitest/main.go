// Package main replays batched transfers against a spidev chip-select line. With MOSI wired to
// MISO every table shows the received bytes matching the sent ones.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/spidev/logging"
	"go.viam.com/spidev/spi"
)

const (
	flagConfig     = "config"
	flagChipSelect = "chip-select"
	flagMode       = "mode"
	flagDivider    = "divider"
	flagSpeedHz    = "speed-hz"
	flagDevice     = "device"
	flagDebug      = "debug"
	flagLogFile    = "log-file"
)

func main() {
	if err := newApp(os.Stdout, nil).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newApp builds the CLI. opts are appended to every open, which lets tests swap in a fake device.
func newApp(out io.Writer, opts []spi.Option) *cli.App {
	var (
		logger  logging.Logger
		logFile io.Closer
	)

	return &cli.App{
		Name:      "spitest",
		Usage:     "send batched SPI transfers through spidev",
		ArgsUsage: "[strings|bytes|struct]...",
		Writer:    out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load the chip-select configuration from `FILE` (JSON)",
			},
			&cli.IntFlag{
				Name:  flagChipSelect,
				Usage: "chip select line, 0 or 1",
			},
			&cli.UintFlag{
				Name:  flagMode,
				Usage: "SPI mode, 0 to 3",
			},
			&cli.UintFlag{
				Name:  flagDivider,
				Value: uint(spi.ClockDivider16),
				Usage: fmt.Sprintf("power of two dividing the %d Hz bus clock", spi.MaxBusFrequencyHz),
			},
			&cli.UintFlag{
				Name:  flagSpeedHz,
				Usage: "clock speed in Hz, overrides --divider",
			},
			&cli.StringFlag{
				Name:  flagDevice,
				Usage: "device node, overrides the chip select's default",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated at 16 MB",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("spitest")
			} else {
				logger = logging.NewLogger("spitest")
			}
			if path := c.String(flagLogFile); path != "" {
				var appender logging.Appender
				appender, logFile = logging.NewFileAppender(path, 16)
				logger.AddAppender(appender)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				utils.UncheckedError(logger.Sync())
			}
			if logFile != nil {
				return logFile.Close()
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			conf, err := configFromContext(c)
			if err != nil {
				return err
			}
			names := c.Args().Slice()
			if len(names) == 0 {
				names = demoOrder
			}
			for _, name := range names {
				if _, ok := demos[name]; !ok {
					return errors.Errorf("unknown demo %q", name)
				}
			}
			return runDemos(conf, names, logger, c.App.Writer, opts)
		},
	}
}

func configFromContext(c *cli.Context) (*spi.Config, error) {
	if path := c.String(flagConfig); path != "" {
		//nolint:gosec
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
		var attributes map[string]interface{}
		if err := json.Unmarshal(data, &attributes); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", path)
		}
		return spi.DecodeConfig(attributes)
	}

	return &spi.Config{
		Name:         "spitest",
		ChipSelect:   c.Int(flagChipSelect),
		Mode:         uint8(c.Uint(flagMode)),
		ClockDivider: uint32(c.Uint(flagDivider)),
		SpeedHz:      uint32(c.Uint(flagSpeedHz)),
		DevicePath:   c.String(flagDevice),
	}, nil
}

func runDemos(conf *spi.Config, names []string, logger logging.Logger, out io.Writer, opts []spi.Option) (err error) {
	h, err := spi.OpenConfig(conf, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, h.Close())
	}()
	logger.Infof("running %v on %s", names, h)

	for _, name := range names {
		if err := demos[name](h, out); err != nil {
			return errors.Wrapf(err, "%s demo", name)
		}
	}
	return nil
}
