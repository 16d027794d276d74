// Package modemcore implements the hierarchical driver core for an
// LTE-M/NB-IoT modem module talking AT commands over a byte-oriented
// serial link: line assembly, response parsing, action dispatch, state
// machine, and the convergence loop that drives the module from cold boot
// to an established data session and back down again.
package modemcore

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config collects the core's external collaborators. Port, Store and
// Timer are required; Log and Faults are optional.
type Config struct {
	Port  SerialPort
	Store Store
	Timer Timer
	Log   logrus.FieldLogger

	// Faults lets tests force specific module misbehavior. Leave nil in
	// production.
	Faults FaultInjector

	// Clock overrides time.Now, for deterministic tests. Defaults to
	// time.Now.
	Clock func() time.Time
}

// Core is the single context record the whole driver operates against: one
// modem, one serial link, one store, one state. All public methods and the
// three external entry points (Tick, ByteIn, AtTimeout) take the internal
// mutex, so every entry point may be called from a different goroutine; the
// unexported methods expect the mutex to be held already.
type Core struct {
	sync.Mutex

	port   SerialPort
	store  Store
	timer  Timer
	log    logrus.FieldLogger
	faults FaultInjector
	clock  func() time.Time

	startedAt time.Time

	state  State
	action Action

	retryDeadline int64
	retryCount    int
	waitUntil     int64

	setterClass setterClass
	setterCount int

	commandOutstanding bool
	sendArmed          bool
	sendExpected       int
	recvArmed          bool
	recvExpected       int

	asmMode        assemblerMode
	lineBuf        []byte
	rawBuf         []byte
	expectedRawLen int

	connected     bool
	cfgWritten    bool
	tcpConfigured bool
	atReady       bool
	poweredOffAck bool
	pendingReset  bool

	dataReady    bool
	waitingBytes int
	rxPending    bool
	lastRx       []byte
	lastCMEError int

	wantToSend        bool
	abortRequested    bool
	signalRequested   bool
	pushToStore       bool
	connectRetryTicks int
	sessionDeadline   int64

	observed ObservedRecord
	desired  DesiredConfig
	sessions SessionTable
	errRec   ErrorRecord
	txBuf    []byte

	communicating bool
	onDone        func(ErrKind)
}

// NewCore constructs a Core in its cold-start state (INIT-POWERED-DOWN).
// The returned Core does nothing until Start is called.
func NewCore(cfg *Config) (*Core, error) {
	if cfg == nil || cfg.Port == nil || cfg.Store == nil || cfg.Timer == nil {
		return nil, ErrConfigRequired
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	c := &Core{
		port:      cfg.Port,
		store:     cfg.Store,
		timer:     cfg.Timer,
		log:       log,
		faults:    cfg.Faults,
		clock:     clock,
		startedAt: clock(),
		state:     StateInitPoweredDown,
		action:    actionNone,
	}
	return c, nil
}

func (c *Core) now() time.Time {
	return c.clock()
}

func (c *Core) uptimeSeconds() int64 {
	return int64(c.now().Sub(c.startedAt) / time.Second)
}

// Start arms the driver: it wakes the module, brings it up through the
// state machine, and optionally drives it all the way to an established
// data session if wantToSend is true. callback is invoked exactly once,
// when the process next reaches "no more actions required" or enters
// HOLD-RESET; it may be nil.
func (c *Core) Start(callback func(ErrKind), wantToSend bool) error {
	c.Lock()
	defer c.Unlock()
	if c.communicating {
		return ErrAlreadyStarted
	}
	c.communicating = true
	c.onDone = callback
	c.wantToSend = wantToSend
	c.clearError()
	if c.timer != nil {
		c.timer.StartRecurring(EventActionTick, tickPeriodMs)
	}
	return nil
}

// QueueTx hands a payload to the driver for transmission on the
// application session. It fails with ErrTxAlreadyQueued if a previous
// payload has not been sent yet.
func (c *Core) QueueTx(buf []byte) error {
	c.Lock()
	defer c.Unlock()
	if c.txBuf != nil {
		return ErrTxAlreadyQueued
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	c.txBuf = cp
	c.wantToSend = true
	return nil
}

// GetLastRx returns a copy of the most recently received application
// payload, or nil if none has arrived yet.
func (c *Core) GetLastRx() []byte {
	c.Lock()
	defer c.Unlock()
	if c.lastRx == nil {
		return nil
	}
	cp := make([]byte, len(c.lastRx))
	copy(cp, c.lastRx)
	return cp
}

// Abort requests an orderly shutdown: close any open session, tear down
// the bearer, drop to airplane mode (+CFUN=4) and power the module down.
func (c *Core) Abort() {
	c.Lock()
	defer c.Unlock()
	c.abortRequested = true
}

// CommunicationInProgress reports whether Start has been called without a
// matching completion callback having fired yet.
func (c *Core) CommunicationInProgress() bool {
	c.Lock()
	defer c.Unlock()
	return c.communicating
}

// IsRegistered reports the last-known network registration status.
func (c *Core) IsRegistered() bool {
	c.Lock()
	defer c.Unlock()
	return c.observed.Registration.IsRegistered()
}

// IsConnected reports whether the application session (slot 0) is open.
func (c *Core) IsConnected() bool {
	c.Lock()
	defer c.Unlock()
	return c.connected && c.sessions.Query(0) != SessionClosed
}

// IsUdpActive reports whether the application session is open and UDP.
func (c *Core) IsUdpActive() bool {
	c.Lock()
	defer c.Unlock()
	return c.connected && c.sessions.Query(0) == SessionUDP
}

// IsTcpActive reports whether the application session is open and TCP.
func (c *Core) IsTcpActive() bool {
	c.Lock()
	defer c.Unlock()
	return c.connected && c.sessions.Query(0) == SessionTCP
}

// IsError reports whether an unresolved error record is currently set.
func (c *Core) IsError() bool {
	c.Lock()
	defer c.Unlock()
	return c.errRec.Kind != ErrNone
}

// LastError returns a copy of the current error record.
func (c *Core) LastError() ErrorRecord {
	c.Lock()
	defer c.Unlock()
	return c.errRec
}

// GetBandRat returns the module's currently active band bitmap and RAT, as
// last reported by +KBND.
func (c *Core) GetBandRat() (band uint32, rat RAT) {
	c.Lock()
	defer c.Unlock()
	return c.observed.ActiveBand, c.observed.ActiveRAT
}

// GetModemInfo returns a copy of the observed record.
func (c *Core) GetModemInfo() ObservedRecord {
	c.Lock()
	defer c.Unlock()
	return c.observed
}

// RequestSignalQuality arms a one-shot +CESQ sample on the next
// convergence pass.
func (c *Core) RequestSignalQuality() {
	c.Lock()
	defer c.Unlock()
	c.signalRequested = true
}

// pushEvent appends one error transition to the persisted event log. Best
// effort: failures are logged, never returned, since the caller (setError)
// runs deep inside the tick path.
func (c *Core) pushEvent(rec ErrorRecord) {
	if c.store == nil {
		return
	}
	var existing [32 * eventRecordLen]byte
	n, err := c.store.ReadObject(UmiModemEventFifo, existing[:])
	if err != nil || n < 0 || n > len(existing) {
		n = 0
	}
	entry := encodeErrorRecord(rec)
	buf := append(append([]byte(nil), existing[:n]...), entry...)
	if len(buf) > len(existing) {
		buf = buf[len(buf)-len(existing):]
	}
	if err := c.store.WriteObject(UmiModemEventFifo, buf); err != nil && c.log != nil {
		c.log.Warnf("modemcore: failed to persist event record: %v", err)
	}
}

func (c *Core) persistErrorRecord() error {
	return c.store.WriteObject(UmiModemCommStats, encodeErrorRecord(c.errRec))
}

const eventRecordLen = 11

func encodeErrorRecord(rec ErrorRecord) []byte {
	buf := make([]byte, eventRecordLen)
	buf[0] = byte(rec.Kind)
	buf[1] = byte(rec.State)
	buf[2] = byte(rec.Action)
	unix := rec.At.Unix()
	for i := 0; i < 8; i++ {
		buf[3+i] = byte(unix >> (8 * (7 - i)))
	}
	return buf
}
