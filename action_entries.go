package modemcore

import "fmt"

// actionEntry is the table of per-action entry functions invoked exactly
// once when setAction transitions into that action. Actions not listed
// here emit nothing on entry (pure waits, or actions whose effect is
// driven entirely by an async notification).
var actionEntry = map[Action]func(c *Core){
	actionCheckAT:                    func(c *Core) { c.emitCommand("") },
	actionRequestModel:               func(c *Core) { c.emitCommand("I") },
	actionRequestFirmware:            func(c *Core) { c.emitCommand("+CGMR") },
	actionRequestFactorySerialNumber: func(c *Core) { c.emitCommand("+KGSN=3") },
	actionRequestEquipmentID:         func(c *Core) { c.emitCommand("+CGSN") },
	actionRequestSIM:                 func(c *Core) { c.emitCommand("+CCID") },
	actionQueryPDPContext:            func(c *Core) { c.emitCommand("+CGDCONT?") },
	actionSetupPDPContext:            entrySetupPDPContext,
	actionQueryBandConfig:            entryQueryBandConfig,
	actionSetBandConfigCatM1:         entrySetBandConfig(RATCatM1),
	actionSetBandConfigNBIoT:         entrySetBandConfig(RATNBIoT),
	actionQueryPreferredList:         func(c *Core) { c.emitCommand("+KSELACQ?") },
	actionSetPreferredList:           entrySetPreferredList,
	actionQueryReportingMode:         func(c *Core) { c.emitCommand("+CEREG?") },
	actionSetReportingMode:           func(c *Core) { c.emitCommand("+CEREG=2") },
	actionQueryFunctionality:         func(c *Core) { c.emitCommand("+CFUN?") },
	actionSetupFullFunctionality:     func(c *Core) { c.emitCommand("+CFUN=1,1") },
	actionQueryActiveBand:            func(c *Core) { c.emitCommand("+KBND?") },
	actionRequestSignalQuality:       func(c *Core) { c.emitCommand("+CESQ") },
	actionWriteGPRSConfig:            entryWriteGPRSConfig,
	actionUDPConfig:                  func(c *Core) { c.emitCommand("+KUDPCFG=1,0") },
	actionTCPConfig:                  entryTCPConfig,
	actionTCPConnect:                 func(c *Core) { c.emitCommand("+KTCPCNX=1") },
	actionSendData:                   entrySendData,
	actionReceiveData:                entryReceiveData,
	actionCloseSession:               entryCloseSession,
	actionDeleteSession:              entryDeleteSession,
	actionShutdown:                   func(c *Core) { c.emitCommand("+CFUN=4,1") },
	actionRequestPowerDown:           func(c *Core) { c.emitCommand("+CPOF") },
}

func entrySetupPDPContext(c *Core) {
	c.emitCommand(fmt.Sprintf(`+CGDCONT=1,IPV4V6,"%s",`, c.desired.APN))
}

func entryQueryBandConfig(c *Core) {
	c.emitCommand("+KBNDCFG?")
}

func entrySetBandConfig(rat RAT) func(c *Core) {
	return func(c *Core) {
		c.emitCommand(fmt.Sprintf("+KBNDCFG=%d,%X", int(rat), c.desired.Bands[rat]))
	}
}

func entrySetPreferredList(c *Core) {
	body := fmt.Sprintf("+KSELACQ=0,%d", int(c.desired.PreferredRAT[0]))
	for i := 1; i < c.desired.PreferredCount && i < 3; i++ {
		body += fmt.Sprintf(",%d", int(c.desired.PreferredRAT[i]))
	}
	c.emitCommand(body)
}

func entryWriteGPRSConfig(c *Core) {
	c.emitCommand(fmt.Sprintf(`+KCNXCFG=1,"GPRS","%s"`, c.desired.APN))
}

func entryTCPConfig(c *Core) {
	c.emitCommand(fmt.Sprintf(`+KTCPCFG=1,0,"%s",%d`, c.desired.RemoteAddress, c.desired.RemotePort))
}

func entrySendData(c *Core) {
	if c.txBuf == nil {
		return
	}
	if c.desired.ConnType == ConnUDP {
		c.emitCommand(fmt.Sprintf(`+KUDPSND=1,"%s",%d,%d`, c.desired.RemoteAddress, c.desired.RemotePort, len(c.txBuf)))
	} else {
		c.emitCommand(fmt.Sprintf("+KTCPSND=1,%d", len(c.txBuf)))
	}
}

// emitQueuedPayload writes the queued payload followed by the trailer,
// once CONNECT has put the assembler into raw mode for an outbound send.
func (c *Core) emitQueuedPayload() {
	if c.txBuf != nil {
		c.transmitRaw(c.txBuf)
	}
	c.transmitRaw(trailer)
	c.txBuf = nil
	c.wantToSend = false
	c.setAction(actionWaitForResponse)
}

// maxReceivePerCall caps a single receive command per the convergence
// loop's "capped at 196 bytes per call" rule.
const maxReceivePerCall = 196

func entryReceiveData(c *Core) {
	n := c.waitingBytes
	if n > maxReceivePerCall {
		n = maxReceivePerCall
	}
	if c.desired.ConnType == ConnUDP {
		c.emitCommand(fmt.Sprintf("+KUDPRCV=1,%d", n))
	} else {
		c.emitCommand(fmt.Sprintf("+KTCPRCV=1,%d", n))
	}
}

func entryCloseSession(c *Core) {
	slot, ok := c.sessions.FindHighestOpen()
	if !ok {
		return
	}
	id := slot + 1
	if c.sessions.Query(slot) == SessionUDP {
		c.emitCommand(fmt.Sprintf("+KUDPCLOSE=%d", id))
	} else {
		c.emitCommand(fmt.Sprintf("+KTCPCLOSE=%d", id))
	}
}

func entryDeleteSession(c *Core) {
	if c.desired.ConnType == ConnUDP {
		c.emitCommand("+KUDPDEL=?")
	} else {
		c.emitCommand("+KTCPDEL=?")
	}
}
