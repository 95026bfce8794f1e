package spi

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/spidev/logging"
)

// Config describes one chip-select line.
type Config struct {
	Name       string `json:"name"`
	ChipSelect int    `json:"chip_select"`
	Mode       uint8  `json:"mode,omitempty"`
	// Exactly one of ClockDivider and SpeedHz is used; SpeedHz wins when both are set.
	ClockDivider uint32 `json:"clock_divider,omitempty"`
	SpeedHz      uint32 `json:"speed_hz,omitempty"`
	DevicePath   string `json:"device_path,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.ChipSelect != int(CS0) && conf.ChipSelect != int(CS1) {
		return errors.Errorf("%s: chip_select must be 0 or 1, got %d", path, conf.ChipSelect)
	}
	if Mode(conf.Mode) > Mode3 {
		return errors.Errorf("%s: mode must be between 0 and 3, got %d", path, conf.Mode)
	}
	if !ClockDivider(conf.ClockDivider).Valid() {
		return errors.Errorf("%s: clock_divider must be a power of two up to 32768, got %d", path, conf.ClockDivider)
	}
	if conf.SpeedHz > MaxBusFrequencyHz {
		return errors.Errorf("%s: speed_hz must be at most %d, got %d", path, MaxBusFrequencyHz, conf.SpeedHz)
	}
	return nil
}

// speedHz returns the clock the config asks for.
func (conf *Config) speedHz() uint32 {
	if conf.SpeedHz != 0 {
		return conf.SpeedHz
	}
	return ClockDivider(conf.ClockDivider).SpeedHz()
}

// DecodeConfig decodes an attribute map, keyed by the json field names, into a Config.
func DecodeConfig(attributes map[string]interface{}) (*Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &conf,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating decoder for SPI config")
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "error decoding SPI config")
	}
	return &conf, nil
}

// OpenConfig validates conf and opens the chip-select line it describes.
func OpenConfig(conf *Config, logger logging.Logger, opts ...Option) (*Handle, error) {
	if err := conf.Validate(fmt.Sprintf("spis.%s", conf.Name)); err != nil {
		return nil, err
	}
	if conf.DevicePath != "" {
		opts = append([]Option{WithPath(conf.DevicePath)}, opts...)
	}
	return OpenHz(ChipSelect(conf.ChipSelect), Mode(conf.Mode), conf.speedHz(), logger.Sublogger(conf.Name), opts...)
}
