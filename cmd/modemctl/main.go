// Command modemctl drives a single LTE-M/NB-IoT module over a real serial
// link using modemcore: parse flags, wire collaborators, run until
// interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	modemcore "github.com/elster-meter/nbiotmodem"
	"github.com/elster-meter/nbiotmodem/internal/serialport"
	"github.com/elster-meter/nbiotmodem/internal/store"
)

type Options struct {
	Verbose    []bool `short:"v" long:"verbose" description:"Show verbose debug information"`
	Device     string `short:"d" long:"device" description:"Serial device path" default:"/dev/ttyUSB0"`
	BaudRate   int    `short:"b" long:"baud" description:"Serial baud rate" default:"115200"`
	StorePath  string `short:"c" long:"store" description:"Path to the UMI record file" default:"/var/lib/modemctl/umi.yaml"`
	TraceHex   bool   `short:"x" long:"trace" description:"Hex-dump every byte received on the serial link"`
	Send       bool   `short:"s" long:"send" description:"Send one payload from stdin and exit once delivered"`
}

func main() {
	var options Options
	parser := flags.NewParser(&options, flags.Default)
	if _, err := parser.ParseArgs(os.Args); err != nil {
		os.Exit(1)
	}

	log := logrus.New()
	if len(options.Verbose) > 0 {
		log.SetLevel(logrus.DebugLevel)
	}

	umiStore, err := store.Load(options.StorePath)
	if err != nil {
		log.Fatalf("modemctl: failed to load UMI store: %v", err)
	}

	port, err := serialport.New(serialport.Config{
		Device:   options.Device,
		BaudRate: options.BaudRate,
		TraceHex: options.TraceHex,
		Log:      log,
	})
	if err != nil {
		log.Fatalf("modemctl: failed to open %s: %v", options.Device, err)
	}
	defer port.Close()

	timer := newWallClockTimer()

	core, err := modemcore.NewCore(&modemcore.Config{
		Port:  port,
		Store: umiStore,
		Timer: timer,
		Log:   log,
	})
	if err != nil {
		log.Fatalf("modemctl: failed to build core: %v", err)
	}
	timer.bind(core)

	go func() {
		if err := serialport.RunReader(port, core); err != nil {
			log.Errorf("modemctl: serial reader stopped: %v", err)
		}
	}()

	done := make(chan modemcore.ErrKind, 1)
	if err := core.Start(func(kind modemcore.ErrKind) { done <- kind }, options.Send); err != nil {
		log.Fatalf("modemctl: failed to start: %v", err)
	}

	if options.Send {
		payload, err := readAllStdin()
		if err != nil {
			log.Fatalf("modemctl: failed to read stdin: %v", err)
		}
		if err := core.QueueTx(payload); err != nil {
			log.Fatalf("modemctl: failed to queue payload: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case kind := <-done:
		fmt.Printf("modemctl: process finished: %s\n", kind)
	case <-sigCh:
		core.Abort()
		<-done
		fmt.Println("modemctl: aborted on signal")
	}
}

func readAllStdin() ([]byte, error) {
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)
	for {
		n, err := os.Stdin.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	return buf, nil
}

// wallClockTimer implements modemcore.Timer with real time.Timer/Ticker
// instances.
type wallClockTimer struct {
	core *modemcore.Core

	tickTicker *time.Ticker
	tickDone   chan struct{}

	atTimer *time.Timer
}

func newWallClockTimer() *wallClockTimer {
	return &wallClockTimer{}
}

func (t *wallClockTimer) bind(core *modemcore.Core) {
	t.core = core
}

func (t *wallClockTimer) StartRecurring(eventID int, periodMs int) {
	if eventID != modemcore.EventActionTick {
		return
	}
	t.Stop(eventID)
	t.tickTicker = time.NewTicker(time.Duration(periodMs) * time.Millisecond)
	t.tickDone = make(chan struct{})
	go func(ticker *time.Ticker, done chan struct{}) {
		for {
			select {
			case <-ticker.C:
				t.core.Tick()
			case <-done:
				return
			}
		}
	}(t.tickTicker, t.tickDone)
}

func (t *wallClockTimer) StartOnce(eventID int, periodMs int) {
	if eventID != modemcore.EventAtTimeout {
		return
	}
	if t.atTimer != nil {
		t.atTimer.Stop()
	}
	t.atTimer = time.AfterFunc(time.Duration(periodMs)*time.Millisecond, t.core.AtTimeout)
}

func (t *wallClockTimer) Stop(eventID int) {
	switch eventID {
	case modemcore.EventActionTick:
		if t.tickTicker != nil {
			t.tickTicker.Stop()
			close(t.tickDone)
			t.tickTicker = nil
		}
	case modemcore.EventAtTimeout:
		if t.atTimer != nil {
			t.atTimer.Stop()
			t.atTimer = nil
		}
	}
}

func (t *wallClockTimer) IsRunning(eventID int) bool {
	switch eventID {
	case modemcore.EventActionTick:
		return t.tickTicker != nil
	case modemcore.EventAtTimeout:
		return t.atTimer != nil
	}
	return false
}
