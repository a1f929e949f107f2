package light

import (
	"fmt"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// NRZStrip drives WS281x pixels through the SPI bus.
type NRZStrip struct {
	port spi.PortCloser
	dev  *nrzled.Dev
	buf  []byte
}

// OpenNRZStrip opens the SPI port (empty name for the first one) for a
// strip of n pixels.
func OpenNRZStrip(name string, n int) (*NRZStrip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("light: host init: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("light: open spi %q: %w", name, err)
	}
	opts := nrzled.DefaultOpts
	opts.NumPixels = n
	dev, err := nrzled.NewSPI(port, &opts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("light: nrzled: %w", err)
	}
	return &NRZStrip{port: port, dev: dev, buf: make([]byte, 0, n*3)}, nil
}

// Render implements Strip.
func (s *NRZStrip) Render(frame []Color) error {
	s.buf = s.buf[:0]
	for _, c := range frame {
		s.buf = append(s.buf, c.R, c.G, c.B)
	}
	_, err := s.dev.Write(s.buf)
	return err
}

// Close blanks the pixels and releases the port.
func (s *NRZStrip) Close() error {
	if err := s.dev.Halt(); err != nil {
		s.port.Close()
		return err
	}
	return s.port.Close()
}

// Discard is a Strip with no hardware behind it.
type Discard struct{}

// Render implements Strip.
func (Discard) Render([]Color) error { return nil }
