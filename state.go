package modemcore

// State Machine. State is the high-level lifecycle; Tick is one of
// the three external entry points and advances at most one state
// transition and emits at most one command per call.
type State int

const (
	StateNotAvailable State = iota
	StateInitPoweredDown
	StateResetRequired
	StateWaitCTSHigh
	StateWaitCTSLow
	StateReady
	StateCheckAT
	StateATReady
	StatePowerDownRequested
	StateWaitCTSLow2
	StatePoweredOff
	StateHoldReset
)

var stateNames = [...]string{
	StateNotAvailable:      "not-available",
	StateInitPoweredDown:   "init-powered-down",
	StateResetRequired:     "reset-required",
	StateWaitCTSHigh:       "wait-for-cts-high",
	StateWaitCTSLow:        "wait-for-cts-low",
	StateReady:             "ready",
	StateCheckAT:           "check-at",
	StateATReady:           "at-ready",
	StatePowerDownRequested: "power-down-requested",
	StateWaitCTSLow2:       "wait-for-cts-low-2",
	StatePoweredOff:        "powered-off",
	StateHoldReset:         "hold-reset",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) || stateNames[s] == "" {
		return "unknown"
	}
	return stateNames[s]
}

// Tick is called by the periodic 1000ms scheduler event while a session is
// active. It is the sole driver of state transitions and action
// emission.
func (c *Core) Tick() {
	c.Lock()
	defer c.Unlock()
	c.tick()
}

func (c *Core) tick() {
	if c.noMoreActionsRequired() {
		c.stopProcess()
		return
	}
	if c.action != actionNone && c.actionDeadlineExceeded() {
		c.handleDeadlineExceeded()
		return
	}

	switch c.state {
	case StateResetRequired:
		c.doResetRequired()
	case StateWaitCTSHigh:
		c.doWaitCTSHigh()
	case StateWaitCTSLow:
		c.doWaitCTSLow()
	case StateReady:
		c.doReady()
	case StateCheckAT:
		c.doCheckAT()
	case StateATReady:
		c.runConvergence()
	case StatePowerDownRequested:
		c.doPowerDownRequested()
	case StateWaitCTSLow2:
		c.doWaitCTSLow2()
	case StateInitPoweredDown:
		if c.wantToSend || c.observed.Model == "" {
			c.state = StateResetRequired
		}
	}
}

// noMoreActionsRequired implements the "first check" every tick performs:
// stop entirely once powered off, or while cold and nothing asked for.
func (c *Core) noMoreActionsRequired() bool {
	if c.state == StatePoweredOff {
		return true
	}
	if c.state == StateInitPoweredDown && !c.wantToSend && c.observed.Model != "" {
		return true
	}
	return false
}

func (c *Core) stopProcess() {
	if c.timer != nil && c.timer.IsRunning(EventActionTick) {
		c.timer.Stop(EventActionTick)
	}
	if c.onDone != nil {
		done := c.onDone
		c.onDone = nil
		c.communicating = false
		done(ErrNone)
	}
}

// handleDeadlineExceeded maps the (state, action) pair that exceeded its
// retry window to the error taxonomy and drives the recovery
// transition. Only boot/AT failures reach HOLD-RESET; every other case
// attempts an orderly shutdown first.
func (c *Core) handleDeadlineExceeded() {
	switch c.state {
	case StateWaitCTSHigh:
		c.setError(ErrBoot1)
		c.enterHoldReset()
	case StateWaitCTSLow:
		c.setError(ErrBoot2)
		c.enterHoldReset()
	case StateCheckAT:
		c.setError(ErrATC)
		c.enterHoldReset()
	case StateATReady:
		switch c.action {
		case actionRequestSIM:
			c.setError(ErrSIM)
			c.abortRequested = true
		case actionUDPConfig:
			c.setError(ErrUDP)
			c.abortRequested = true
		case actionTCPConfig:
			c.setError(ErrTCP)
			c.abortRequested = true
		case actionWaitForRegistration:
			c.setError(ErrReg)
			c.wantToSend = false
			c.abortRequested = true
		case actionWaitForResponse:
			c.waitUntil = 0 // silent recovery
			c.action = actionNone
		default:
			c.setError(ErrRetriesExceeded)
			c.abortRequested = true
		}
	default:
		c.setError(ErrATEscalated)
		c.enterHoldReset()
	}
}

func (c *Core) enterHoldReset() {
	c.state = StateHoldReset
	c.port.ResetLow()
	c.stopProcess()
}

func (c *Core) doResetRequired() {
	c.loadDesiredConfig()
	c.observed.reset()
	c.sessions.reset()
	c.cfgWritten = false
	c.tcpConfigured = false
	c.connected = false
	c.atReady = false
	c.pendingReset = false
	c.port.PulseOn()
	c.state = StateWaitCTSHigh
	c.setAction(actionWaitForCTSHigh)
}

func (c *Core) doWaitCTSHigh() {
	if c.faults != nil && c.faults.SuppressCTSHigh() {
		return
	}
	if c.port.CTSHigh() {
		c.state = StateWaitCTSLow
		c.setAction(actionWaitForCTSLow)
	}
}

func (c *Core) doWaitCTSLow() {
	if c.faults != nil && c.faults.SuppressCTSLow() {
		return
	}
	if !c.port.CTSHigh() {
		c.state = StateReady
	}
}

func (c *Core) doReady() {
	if err := c.port.Open(); err != nil {
		if c.log != nil {
			c.log.Errorf("modemcore: failed to open serial port: %v", err)
		}
		return
	}
	c.state = StateCheckAT
	c.setAction(actionCheckAT)
}

func (c *Core) doCheckAT() {
	if c.atReady {
		c.state = StateATReady
		c.action = actionNone
		return
	}
	c.setAction(actionCheckAT)
}

func (c *Core) doPowerDownRequested() {
	if c.poweredOffAck {
		c.poweredOffAck = false
		c.state = StateWaitCTSLow2
		c.action = actionNone
		return
	}
	if c.faults != nil && c.faults.IgnorePowerOff() {
		return
	}
	c.setAction(actionRequestPowerDown)
}

func (c *Core) doWaitCTSLow2() {
	if !c.port.CTSHigh() {
		c.state = StatePoweredOff
	}
}
