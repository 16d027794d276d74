package modemcore

import "encoding/binary"

// Convergence Loop. Runs once per tick while the state machine is in
// AT-READY. It is a fixed, ordered list of idempotent predicate/action
// pairs: the first predicate that is true gets to act (at most one action
// per tick), everything after it is skipped for this call.
func (c *Core) runConvergence() {
	if c.pendingReset && !c.commandOutstanding {
		c.pendingReset = false
		c.state = StateResetRequired
		return
	}

	o := &c.observed
	d := &c.desired

	switch {
	case o.signalSampled && o.SignalTimestamp != o.SignalPersistedTimestamp:
		c.persistSignalQuality()
		o.SignalPersistedTimestamp = o.SignalTimestamp
		return
	case o.Model == "":
		c.setAction(actionRequestModel)
		return
	case o.Firmware == "":
		c.setAction(actionRequestFirmware)
		return
	case o.FactorySerial == "":
		c.setAction(actionRequestFactorySerialNumber)
		return
	case o.EquipmentID == "":
		c.setAction(actionRequestEquipmentID)
		return
	case !o.PDP[0].known():
		c.setAction(actionQueryPDPContext)
		return
	case o.PDP[0].APN != d.APN:
		c.setAction(actionSetupPDPContext)
		return
	case o.BandsKnown[RATCatM1] && o.Bands[RATCatM1] != d.Bands[RATCatM1]:
		c.setAction(actionSetBandConfigCatM1)
		return
	case o.BandsKnown[RATNBIoT] && o.Bands[RATNBIoT] != d.Bands[RATNBIoT]:
		c.setAction(actionSetBandConfigNBIoT)
		return
	case !o.BandsKnown[RATCatM1] || !o.BandsKnown[RATNBIoT]:
		c.setAction(actionQueryBandConfig)
		return
	case !o.PreferredValid:
		c.setAction(actionQueryPreferredList)
		return
	case c.preferredDiffers():
		// A preferred-list change only takes effect after a reset; the OK
		// for this setter marks pendingReset (onActionProgress), so the
		// state machine detours through RESET-REQUIRED once it settles,
		// instead of looping on a still-stale list.
		c.setAction(actionSetPreferredList)
		return
	case o.ReportingMode == "":
		c.setAction(actionQueryReportingMode)
		return
	case o.ReportingMode != "2":
		c.setAction(actionSetReportingMode)
		return
	case !o.funcKnown():
		c.setAction(actionQueryFunctionality)
		return
	case !o.ActiveBandKnown:
		c.setAction(actionQueryActiveBand)
		return
	case o.SIMID == "":
		c.setAction(actionRequestSIM)
		return
	case c.signalRequested:
		c.signalRequested = false
		c.setAction(actionRequestSignalQuality)
		return
	case c.pushToStore:
		c.pushToStore = false
		c.pushSIMToStore()
		return
	}

	switch {
	case c.dataReady:
		c.dataReady = false
		c.rxPending = true
		c.setAction(actionReceiveData)
	case c.abortRequested:
		c.runShutdownSubroutine()
	case c.action == actionWaitForResponse:
		// deadline governs eventual recovery; nothing to emit meanwhile.
	case c.wantToSend:
		c.runWantsToSend()
	case !o.isOff():
		c.runShutdownSubroutine()
	default:
		c.state = StatePowerDownRequested
		c.action = actionNone
	}
}

// preferredDiffers compares the module's reported preferred-RAT ordering
// against the desired one, up to three entries.
func (c *Core) preferredDiffers() bool {
	for i := 0; i < c.desired.PreferredCount && i < 3; i++ {
		if c.observed.PreferredRAT[i] != c.desired.PreferredRAT[i] {
			return true
		}
	}
	return false
}

// runWantsToSend handles the "application wants to transmit" branch: first
// bring the module to full functionality and wait for network registration,
// then hand off to the Connect Subroutine.
func (c *Core) runWantsToSend() {
	if !c.observed.Registration.IsRegistered() {
		if !c.observed.isFull() {
			c.setAction(actionSetupFullFunctionality)
		} else {
			c.setAction(actionWaitForRegistration)
		}
		return
	}
	c.runConnectSubroutine()
}

// runConnectSubroutine implements the five-branch Connect Subroutine:
// write the bearer config, open the session, retry the open on a
// throttle if the module claims connected but slot 0 is closed, hand off a
// queued payload once connected, and tear down a stray non-matching
// session.
func (c *Core) runConnectSubroutine() {
	slot0 := c.sessions.Query(0)
	switch {
	case !c.cfgWritten && slot0 == SessionClosed:
		c.setAction(actionWriteGPRSConfig)
	case c.cfgWritten && !c.connected && slot0 == SessionClosed:
		c.connectRetryTicks = 0
		c.setupSession()
	case c.connected && slot0 == SessionClosed:
		c.connectRetryTicks++
		if c.connectRetryTicks >= 3 {
			c.connectRetryTicks = 0
			c.setupSession()
		}
	case c.connected && slot0 != SessionClosed:
		if c.txBuf != nil {
			c.setAction(actionSendData)
		} else {
			c.setAction(actionNotifyReadyToSend)
		}
	case slot0 != SessionClosed && !c.connected:
		c.setAction(actionCloseSession)
	}
}

func (c *Core) setupSession() {
	if c.desired.ConnType == ConnTCP {
		if !c.tcpConfigured {
			c.setAction(actionTCPConfig)
		} else {
			c.setAction(actionTCPConnect)
		}
		return
	}
	c.setAction(actionUDPConfig)
}

// runShutdownSubroutine implements the Shutdown Subroutine: close
// open sessions top-down, tear down the bearer, drop to airplane mode
// (+CFUN=4), then hand off to the power-down state.
func (c *Core) runShutdownSubroutine() {
	if c.sessions.AnyOpen() {
		c.setAction(actionCloseSession)
		return
	}
	if c.connected {
		c.setAction(actionDeleteSession)
		return
	}
	if !c.observed.isAirplane() {
		c.setAction(actionShutdown)
		return
	}
	c.abortRequested = false
	c.state = StatePowerDownRequested
	c.action = actionNone
}

func (c *Core) persistSignalQuality() {
	if c.store == nil {
		return
	}
	buf := make([]byte, 24)
	binary.BigEndian.PutUint32(buf[0:4], uint32(int32(c.observed.Signal.RxLev)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(c.observed.Signal.Ber)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(int32(c.observed.Signal.Rscp)))
	binary.BigEndian.PutUint32(buf[12:16], uint32(int32(c.observed.Signal.Ecno)))
	binary.BigEndian.PutUint32(buf[16:20], uint32(int32(c.observed.Signal.Rsrq)))
	binary.BigEndian.PutUint32(buf[20:24], uint32(int32(c.observed.Signal.Rsrp)))
	if err := c.store.WriteObject(UmiModemStatistics, buf); err != nil && c.log != nil {
		c.log.Warnf("modemcore: failed to persist signal quality: %v", err)
	}
}

func (c *Core) pushSIMToStore() {
	if c.store == nil {
		return
	}
	if err := c.store.WriteObject(UmiModemSimInfo, []byte(c.observed.SIMID)); err != nil && c.log != nil {
		c.log.Warnf("modemcore: failed to persist SIM id: %v", err)
	}
}
