// Package serialport adapts a real UART to the modemcore.SerialPort
// interface, using go.bug.st/serial for the link and DTR as the module's
// hardware reset line per the board's wiring convention.
package serialport

import (
	"io"
	"time"

	"github.com/nayarsystems/iotrace"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Config describes how to open and drive the physical link.
type Config struct {
	Device   string
	BaudRate int

	// ResetPulseMs is how long DTR is held asserted for PulseOn.
	ResetPulseMs int

	// TraceHex, if set, wraps the port read by RunReader in a byte-level hex
	// dump tracer. Transmit writes to the port directly, so sent bytes are
	// not traced.
	TraceHex bool
	Log      logrus.FieldLogger
}

// Port implements modemcore.SerialPort over a real go.bug.st/serial
// connection.
type Port struct {
	cfg  Config
	port serial.Port
}

// New opens the device and returns a Port ready for modemcore.Config.Port.
func New(cfg Config) (*Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ResetPulseMs == 0 {
		cfg.ResetPulseMs = 300
	}
	p, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, err
	}
	return &Port{cfg: cfg, port: p}, nil
}

func (p *Port) Open() error {
	return nil // the device is opened eagerly in New; Open is the core's cue
	// that it is now reading, which this adapter does not need.
}

func (p *Port) Close() error {
	return p.port.Close()
}

func (p *Port) Transmit(buf []byte) (int, error) {
	return p.port.Write(buf)
}

func (p *Port) ResetLow() {
	_ = p.port.SetDTR(true)
}

func (p *Port) ResetHigh() {
	_ = p.port.SetDTR(false)
}

func (p *Port) PulseOn() {
	p.ResetLow()
	time.Sleep(time.Duration(p.cfg.ResetPulseMs) * time.Millisecond)
	p.ResetHigh()
}

func (p *Port) CTSHigh() bool {
	bits, err := p.port.GetModemStatusBits()
	if err != nil {
		return false
	}
	return bits.CTS
}

// byteSink is the subset of modemcore.Core this package depends on, kept
// narrow to avoid an import cycle back into modemcore's test doubles.
type byteSink interface {
	ByteIn(b byte)
}

// RunReader reads the link one byte at a time and feeds it to sink.ByteIn.
// It blocks until the underlying port returns an error (including on
// Close) and is meant to be run in its own goroutine.
func RunReader(p *Port, sink byteSink) error {
	var rwc = io.ReadWriteCloser(p.port)
	if p.cfg.TraceHex {
		rwc = iotrace.NewRWCTracer(p.port, 16, 50*time.Millisecond,
			traceHook(p.cfg.Log, "rx"), traceHook(p.cfg.Log, "tx"))
	}
	buf := make([]byte, 1)
	for {
		n, err := rwc.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		sink.ByteIn(buf[0])
	}
}

func traceHook(log logrus.FieldLogger, dir string) func([]byte) {
	return func(data []byte) {
		if log != nil {
			log.Debugf("serialport: %s %x", dir, data)
		}
	}
}
