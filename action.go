package modemcore

import "fmt"

// Action Engine. Action is the ~36-variant action tag; actionEntry
// is the table of entry functions the design notes call for in place of a
// large case dispatch.
type Action int

const (
	actionNone Action = iota
	actionWaitForCTSHigh
	actionWaitForCTSLow
	actionCheckAT
	actionRequestModel
	actionRequestFirmware
	actionRequestFactorySerialNumber
	actionRequestEquipmentID
	actionRequestSIM
	actionQueryPDPContext
	actionSetupPDPContext
	actionQueryBandConfig
	actionSetBandConfigCatM1
	actionSetBandConfigNBIoT
	actionQueryPreferredList
	actionSetPreferredList
	actionQueryReportingMode
	actionSetReportingMode
	actionQueryFunctionality
	actionSetupFullFunctionality
	actionQueryActiveBand
	actionRequestSignalQuality
	actionPushSIMToStore
	actionWaitForRegistration
	actionWriteGPRSConfig
	actionUDPConfig
	actionTCPConfig
	actionTCPConnect
	actionSendData
	actionWaitForResponse
	actionReceiveData
	actionNotifyReadyToSend
	actionCloseSession
	actionDeleteSession
	actionShutdown
	actionRequestPowerDown
	actionCount
)

var actionNames = [actionCount]string{
	actionNone:                       "none",
	actionWaitForCTSHigh:             "wait-for-cts-high",
	actionWaitForCTSLow:              "wait-for-cts-low",
	actionCheckAT:                    "check-at",
	actionRequestModel:               "request-model",
	actionRequestFirmware:            "request-firmware",
	actionRequestFactorySerialNumber: "request-factory-serial",
	actionRequestEquipmentID:         "request-equipment-id",
	actionRequestSIM:                 "request-sim",
	actionQueryPDPContext:            "query-pdp-context",
	actionSetupPDPContext:            "setup-pdp-context",
	actionQueryBandConfig:            "query-band-config",
	actionSetBandConfigCatM1:         "set-band-config-catm1",
	actionSetBandConfigNBIoT:         "set-band-config-nbiot",
	actionQueryPreferredList:         "query-preferred-list",
	actionSetPreferredList:           "set-preferred-list",
	actionQueryReportingMode:         "query-reporting-mode",
	actionSetReportingMode:           "set-reporting-mode",
	actionQueryFunctionality:         "query-functionality",
	actionSetupFullFunctionality:     "setup-full-functionality",
	actionQueryActiveBand:            "query-active-band",
	actionRequestSignalQuality:       "request-signal-quality",
	actionPushSIMToStore:             "push-sim-to-store",
	actionWaitForRegistration:        "wait-for-registration",
	actionWriteGPRSConfig:            "write-gprs-config",
	actionUDPConfig:                  "udp-config",
	actionTCPConfig:                  "tcp-config",
	actionTCPConnect:                 "tcp-connect",
	actionSendData:                   "send-data",
	actionWaitForResponse:            "wait-for-response",
	actionReceiveData:                "receive-data",
	actionNotifyReadyToSend:          "notify-ready-to-send",
	actionCloseSession:               "close-session",
	actionDeleteSession:              "delete-session",
	actionShutdown:                   "shutdown",
	actionRequestPowerDown:           "request-power-down",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) || actionNames[a] == "" {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// actionDeadlineSeconds is the per-action retry deadline table.
func (c *Core) actionDeadlineSeconds(a Action) int {
	switch a {
	case actionWaitForCTSLow:
		return 20
	case actionWaitForResponse:
		if c.desired.WaitForResponseTimeoutSec > 0 {
			return c.desired.WaitForResponseTimeoutSec
		}
		return 15
	case actionWaitForRegistration:
		if c.desired.WaitForRegistrationTimeoutSec > 0 {
			return c.desired.WaitForRegistrationTimeoutSec
		}
		return 15
	case actionUDPConfig:
		return 25
	case actionRequestPowerDown:
		return 15
	case actionShutdown:
		return 15
	default:
		return 15
	}
}

// waitBeforeRetrySeconds is the per-action wait that setAction records in
// waitUntil on entry. Nothing reads waitUntil to hold back ticks: the entry
// command is emitted at once and later ticks are not throttled.
func waitBeforeRetrySeconds(a Action) int {
	switch a {
	case actionTCPConnect:
		return 10
	case actionSetupFullFunctionality:
		return 3
	case actionQueryFunctionality, actionShutdown:
		return 1
	default:
		return 0
	}
}

// setterClass groups the four "setter" actions the repeated-parameter
// guard tracks collectively.
type setterClass int

const (
	setterNone setterClass = iota
	setterPDP
	setterBand
	setterPreferredList
	setterCEREG
)

func classOf(a Action) setterClass {
	switch a {
	case actionSetupPDPContext:
		return setterPDP
	case actionSetBandConfigCatM1, actionSetBandConfigNBIoT:
		return setterBand
	case actionSetPreferredList:
		return setterPreferredList
	case actionSetReportingMode:
		return setterCEREG
	default:
		return setterNone
	}
}

// setAction is the single entry point for transitioning the currently
// executing action. Re-entry with the same action decrements the legacy
// retry counter without resetting the deadline or re-emitting a command;
// entering a different action resets the deadline per the table above and
// runs that action's entry function exactly once.
func (c *Core) setAction(a Action) {
	if a == c.action {
		if c.retryCount > 0 {
			c.retryCount--
		}
		return
	}
	if c.log != nil {
		c.log.Debugf("modemcore: action %s -> %s", c.action, a)
	}
	c.action = a
	c.retryDeadline = c.uptimeSeconds() + int64(c.actionDeadlineSeconds(a))
	c.retryCount = 0
	if w := waitBeforeRetrySeconds(a); w > 0 {
		c.waitUntil = c.uptimeSeconds() + int64(w)
	} else {
		c.waitUntil = 0
	}
	c.trackSetterGuard(a)
	if fn, ok := actionEntry[a]; ok {
		fn(c)
	}
}

// trackSetterGuard raises ErrCFG when one of the four setter actions is
// entered more than five times consecutively without the class changing
// (i.e. without progress).
func (c *Core) trackSetterGuard(a Action) {
	class := classOf(a)
	if class == setterNone {
		c.setterClass = setterNone
		c.setterCount = 0
		return
	}
	if class == c.setterClass {
		c.setterCount++
	} else {
		c.setterClass = class
		c.setterCount = 1
	}
	if c.setterCount > 5 {
		c.setError(ErrCFG)
		c.requestShutdown()
	}
}

// actionDeadlineExceeded reports whether the current action's retry window
// has elapsed, and re-arms a short 2-second window for the recovery action
// that follows.
func (c *Core) actionDeadlineExceeded() bool {
	if c.uptimeSeconds() < c.retryDeadline {
		return false
	}
	c.retryDeadline = c.uptimeSeconds() + 2
	return true
}

// emitCommand writes one AT command if no command is currently outstanding.
// It refuses (returns false) while a prior command's OK/ERROR has not been
// received and the AT timeout has not fired, matching the "at most one
// command per tick, never while one is outstanding" invariant.
func (c *Core) emitCommand(body string) bool {
	if c.commandOutstanding {
		return false
	}
	cmd := "AT" + body + "\r"
	if _, err := c.port.Transmit([]byte(cmd)); err != nil {
		if c.log != nil {
			c.log.Errorf("modemcore: transmit failed: %v", err)
		}
		return false
	}
	c.commandOutstanding = true
	if c.timer != nil {
		c.timer.StartOnce(EventAtTimeout, atTimeoutMs)
	}
	if c.log != nil {
		c.log.Debugf("modemcore: -> %s", cmd)
	}
	return true
}

func (c *Core) transmitRaw(b []byte) {
	if _, err := c.port.Transmit(b); err != nil && c.log != nil {
		c.log.Errorf("modemcore: raw transmit failed: %v", err)
	}
}

// AtTimeout is the one-shot 4000ms timer armed by the Action Engine on
// each command emission. It clears the "awaiting response" latch; it does
// not itself advance the State Machine.
func (c *Core) AtTimeout() {
	c.Lock()
	defer c.Unlock()
	c.commandOutstanding = false
}

// onActionProgress is called on OK; it lets actions whose success simply
// means "move on" progress the state machine/convergence loop without a
// dedicated entry function per verb.
func (c *Core) onActionProgress() {
	if c.faults != nil {
		if c.action == actionWriteGPRSConfig && c.faults.FailConnectionConfig() {
			return
		}
		if classOf(c.action) != setterNone && c.faults.FailSetter() {
			return
		}
	}
	switch c.action {
	case actionQueryPDPContext:
		// observed.PDP already updated by the parser if a +CGDCONT line
		// preceded this OK; nothing further to do.
	case actionSetupPDPContext:
		c.observed.PDP[0] = PDPContext{}
	case actionSetBandConfigCatM1:
		c.observed.BandsKnown[RATCatM1] = false
	case actionSetBandConfigNBIoT:
		c.observed.BandsKnown[RATNBIoT] = false
	case actionSetPreferredList:
		c.observed.PreferredValid = false
		c.pendingReset = true
	case actionSetReportingMode:
		c.observed.ReportingMode = ""
	case actionCloseSession:
		// session close acknowledged; the +KTCP_NOTIF/+KUDP_NOTIF clears
		// the slot itself, nothing further needed here.
	case actionDeleteSession:
		c.connected = false
	case actionShutdown:
		c.observed.Functionality = "4"
	case actionRequestPowerDown:
		c.poweredOffAck = true
	case actionWriteGPRSConfig:
		c.cfgWritten = true
	case actionTCPConfig:
		c.tcpConfigured = true
	case actionUDPConfig:
		// session open is confirmed asynchronously by +KUDP_IND; OK here only
		// means the command was accepted.
	case actionTCPConnect:
		// connection confirmed asynchronously by +KCNX_IND; OK here only
		// means the command was accepted.
	case actionSendData:
		// CONNECT (not OK) drives the payload hand-off; OK alone means the
		// module rejected entering raw mode, handled by retry.
	}
}

// requestShutdown raises the abort flag from within an already-locked
// method; the convergence loop drains sessions and drops functionality
// before the state machine proceeds to power-down.
func (c *Core) requestShutdown() {
	c.abortRequested = true
}
