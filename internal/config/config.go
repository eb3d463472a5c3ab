package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

type Serial struct {
	Port      string `yaml:"port"`       // e.g. /dev/ttyUSB0 or COM3
	Baud      int    `yaml:"baud"`       // e.g. 230400
	TimeoutMs int    `yaml:"timeout_ms"` // discovery read timeout
}

type SPI struct {
	Port string `yaml:"port"` // e.g. /dev/spidev0.0, empty = first
}

type Wave struct {
	StepDeg  float64 `yaml:"step_deg"`
	StartHue float64 `yaml:"start_hue"`
	Model    string  `yaml:"model"` // "hsl" | "hsluv"
}

type Config struct {
	Driver string `yaml:"driver"` // "serial" | "spi" | "sim"
	Serial Serial `yaml:"serial"`
	SPI    SPI    `yaml:"spi,omitempty"`
	LEDs   int    `yaml:"leds,omitempty"`

	AnimationRate  string `yaml:"animation_rate"`
	TransmitRate   string `yaml:"transmit_rate"`
	KeepaliveTicks int    `yaml:"keepalive_ticks"`
	Wave           Wave   `yaml:"wave"`

	InitialState string `yaml:"initial_state,omitempty"` // "auto" | "wave" | "chroma"
	Addr         string `yaml:"addr,omitempty"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}

// Save writes c to path. The start-up mode is never written: an override
// only lasts for the process that set it.
func Save(path string, c *Config) error {
	out := *c
	out.InitialState = ""
	b, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Override copies every field set in o over c. Zero values in o leave c alone.
func (c *Config) Override(o *Config) {
	if o == nil {
		return
	}
	setString(&c.Driver, o.Driver)
	setString(&c.Serial.Port, o.Serial.Port)
	setInt(&c.Serial.Baud, o.Serial.Baud)
	setInt(&c.Serial.TimeoutMs, o.Serial.TimeoutMs)
	setString(&c.SPI.Port, o.SPI.Port)
	setInt(&c.LEDs, o.LEDs)
	setString(&c.AnimationRate, o.AnimationRate)
	setString(&c.TransmitRate, o.TransmitRate)
	setInt(&c.KeepaliveTicks, o.KeepaliveTicks)
	if o.Wave.StepDeg != 0 {
		c.Wave.StepDeg = o.Wave.StepDeg
	}
	if o.Wave.StartHue != 0 {
		c.Wave.StartHue = o.Wave.StartHue
	}
	setString(&c.Wave.Model, o.Wave.Model)
	setString(&c.InitialState, o.InitialState)
	setString(&c.Addr, o.Addr)
}

// Rates parses the two scheduler rates, e.g. "240Hz" and "90Hz".
func (c *Config) Rates() (animation, transmit physic.Frequency, err error) {
	if animation, err = ParseRate(c.AnimationRate); err != nil {
		return 0, 0, fmt.Errorf("animation_rate: %w", err)
	}
	if transmit, err = ParseRate(c.TransmitRate); err != nil {
		return 0, 0, fmt.Errorf("transmit_rate: %w", err)
	}
	return animation, transmit, nil
}

// ParseRate accepts any physic.Frequency string and rejects non-positive rates.
func ParseRate(s string) (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(s); err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("rate %q must be positive", s)
	}
	return f, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
