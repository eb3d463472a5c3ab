package led

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"

	"github.com/coreman2200/chromawled/internal/tpm2"
	"github.com/coreman2200/chromawled/internal/wled"
)

// NRZ drives WS281x LEDs straight from an SPI port, standing in for the WLED
// firmware: it decodes the TPM2 frames and JSON commands it is given and
// applies power and brightness itself.
type NRZ struct {
	mu      sync.Mutex
	dev     *nrzled.Dev
	port    io.Closer
	count   int
	pending []byte
	pixels  []byte
	on      bool
	bri     uint8
	closed  bool
}

// Freq is the SPI clock nrzled needs to shape WS281x bits: 3 SPI bits per
// LED bit at 800kHz, plus headroom.
const Freq = 2500 * physic.KiloHertz

// OpenNRZ initialises the host drivers and opens the named SPI port ("" picks the first one).
func OpenNRZ(name string, count int) (*NRZ, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", name, err)
	}
	d, err := NewNRZ(p, count)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	d.port = p
	return d, nil
}

// NewNRZ drives count RGB LEDs on p.
func NewNRZ(p spi.Port, count int) (*NRZ, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", count)
	}
	o := nrzled.DefaultOpts
	o.NumPixels = count
	o.Channels = 3
	o.Freq = Freq
	dev, err := nrzled.NewSPI(p, &o)
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	return &NRZ{
		dev:    dev,
		count:  count,
		pixels: make([]byte, count*3),
		on:     true,
		bri:    255,
	}, nil
}

func (d *NRZ) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	d.pending = append(d.pending, p...)
	return len(p), nil
}

// Flush consumes every complete frame or command written so far and, if any
// of them changed the output, pushes the strip once.
func (d *NRZ) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	dirty := false
	for len(d.pending) > 0 {
		switch d.pending[0] {
		case tpm2.StartMarker:
			if !d.plausible(d.pending) {
				d.pending = d.pending[1:]
				continue
			}
			kind, px, n, err := tpm2.Decode(d.pending)
			if errors.Is(err, tpm2.ErrShortFrame) {
				return d.push(dirty)
			}
			if err != nil {
				d.pending = d.pending[1:]
				continue
			}
			d.pending = d.pending[n:]
			if kind == tpm2.Data {
				clear(d.pixels)
				copy(d.pixels, px.Bytes())
				dirty = true
			}
		case '{':
			end := bytes.IndexByte(d.pending, '}')
			if end < 0 {
				return d.push(dirty)
			}
			if cmd, ok := wled.ParseCommand(d.pending[:end+1]); ok {
				d.apply(cmd)
				dirty = true
			}
			d.pending = d.pending[end+1:]
		default:
			d.pending = d.pending[1:]
		}
	}
	return d.push(dirty)
}

// plausible rejects a start marker whose header, as far as it has arrived,
// cannot begin a frame for this strip, so a stray 0xC9 does not stall the stream.
func (d *NRZ) plausible(b []byte) bool {
	if len(b) > 1 && tpm2.Kind(b[1]) != tpm2.Data && tpm2.Kind(b[1]) != tpm2.Ping {
		return false
	}
	if len(b) < tpm2.HeaderSize {
		return true
	}
	n := int(binary.BigEndian.Uint16(b[2:tpm2.HeaderSize]))
	if tpm2.Kind(b[1]) == tpm2.Ping {
		return n == 0
	}
	return n%3 == 0 && n <= 3*d.count
}

func (d *NRZ) apply(c wled.Command) {
	switch c.Op {
	case wled.On:
		d.on = true
	case wled.Off:
		d.on = false
	case wled.Toggle:
		d.on = !d.on
	case wled.Brightness:
		d.bri = c.Level
	}
}

func (d *NRZ) push(dirty bool) error {
	if !dirty {
		return nil
	}
	if _, err := d.dev.Write(d.scaled()); err != nil {
		return fmt.Errorf("nrzled write: %w", err)
	}
	return nil
}

// Output returns what the strip currently shows, after power and brightness.
func (d *NRZ) Output() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scaled()
}

func (d *NRZ) scaled() []byte {
	out := make([]byte, len(d.pixels))
	if !d.on {
		return out
	}
	for i, v := range d.pixels {
		out[i] = uint8(uint16(v) * uint16(d.bri) / 255)
	}
	return out
}

func (d *NRZ) String() string { return d.dev.String() }

func (d *NRZ) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.dev.Halt()
	if d.port != nil {
		if cerr := d.port.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
