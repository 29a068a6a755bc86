package cmdmessenger

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport is the byte stream a Messenger runs on.
//
// Read may block for at most the transport's own read timeout and then
// return 0, nil: that means "no data yet", not end of stream. Reads and
// writes are expected to proceed concurrently from different goroutines.
// Close must unblock a pending Read.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Serial defaults, matching the devices' firmware.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = time.Second
)

// SerialConfig describes a serial port connection. Zero values fall back
// to 115200 baud, 8N1 and a one second read timeout.
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// SerialTransport is a Transport over a local serial port.
type SerialTransport struct {
	name string
	port serial.Port
}

var _ Transport = (*SerialTransport)(nil)

// OpenSerial opens and configures a serial port.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("cmdmessenger: serial port name is required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("cmdmessenger: open %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("cmdmessenger: set read timeout on %s: %w", cfg.Port, err)
	}

	return &SerialTransport{name: cfg.Port, port: port}, nil
}

// Name returns the port name the transport was opened with.
func (t *SerialTransport) Name() string {
	return t.name
}

func (t *SerialTransport) Read(p []byte) (int, error) {
	return t.port.Read(p)
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
