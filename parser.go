package modemcore

import (
	"strconv"
	"strings"
)

// Response Parser. Consumes one complete line from the Line
// Assembler, strips the leading verb and splits the remainder into
// positional arguments, and applies the verb's effect to the observed
// record and outstanding action state. Unknown verbs are tolerated
// silently, satisfying the "no line of length < 2 causes any state
// change" and "unknown verbs tolerated" invariants together with the
// length check already performed by the assembler.

// verbHandler applies one verb's effect given its positional arguments
// (already comma-split and quote-stripped).
type verbHandler func(c *Core, args []string)

var verbTable = map[string]verbHandler{
	"+KGSN":      handleFactorySerial,
	"+CCID":      handleSIMID,
	"+CFUN":      handleFunctionality,
	"+CEREG":     handleCEREG,
	"+KBNDCFG":   handleBandCfg,
	"+KBND":      handleActiveBand,
	"+KSELACQ":   handlePreferredList,
	"+CGDCONT":   handlePDPContext,
	"+CESQ":      handleSignalQuality,
	"+KTCP_DATA": handleTCPData,
	"+KUDP_DATA": handleUDPData,
	"+KTCP_IND":  handleTCPInd,
	"+KUDP_IND":  handleUDPInd,
	"+KTCP_NOTIF": handleTCPNotif,
	"+KUDP_NOTIF": handleUDPNotif,
	"+KCNX_IND":  handleKCnxInd,
}

// handleLine is invoked by the assembler with one complete, non-empty
// response line (CR/LF already stripped).
func (c *Core) handleLine(line string) {
	line = strings.TrimSpace(line)
	if len(line) < 2 {
		return
	}

	switch {
	case line == "OK":
		c.onCommandOk()
		return
	case line == "ERROR" || strings.HasPrefix(line, "ERROR"):
		c.onCommandError()
		return
	case strings.HasPrefix(line, "CONNECT"):
		c.onConnect()
		return
	case strings.HasPrefix(line, "+CME ERROR:"):
		handleCMEError(c, strings.TrimSpace(strings.TrimPrefix(line, "+CME ERROR:")))
		return
	case strings.HasPrefix(line, "+CME: ERROR,"):
		handleCMEError(c, strings.TrimSpace(strings.TrimPrefix(line, "+CME: ERROR,")))
		return
	case strings.HasPrefix(line, "AT+KTCPSND") || strings.HasPrefix(line, "AT+KUDPSND"):
		handleSendEcho(c, line)
		return
	case strings.HasPrefix(line, "AT+KTCPRCV") || strings.HasPrefix(line, "AT+KUDPRCV"):
		handleRecvEcho(c, line)
		return
	}

	verb, rest, hasSep := splitVerb(line)
	if !hasSep {
		// Bare response line: +CGMM/"I", +CGMR, +CGSN all answer with an
		// unprefixed line. Which field it fills depends on the command
		// that is currently outstanding.
		c.handleBareLine(line)
		return
	}

	handler, ok := verbTable[verb]
	if !ok {
		return // unknown verbs are tolerated silently
	}
	args := splitArgs(rest)
	handler(c, args)
}

// splitVerb strips the leading verb by splitting on the first ':' or '='.
func splitVerb(line string) (verb, rest string, hasSep bool) {
	idx := strings.IndexAny(line, ":=")
	if idx < 0 {
		return line, "", false
	}
	return strings.TrimSpace(line[:idx]), line[idx+1:], true
}

// splitArgs splits the remainder on ',' and strips surrounding quotes from
// each argument.
func splitArgs(rest string) []string {
	parts := strings.Split(rest, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"`)
		parts[i] = p
	}
	return parts
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func parseHexBitmap(s string) (uint32, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// handleBareLine attributes an unprefixed response line to whichever
// identification request is currently outstanding.
func (c *Core) handleBareLine(line string) {
	switch c.action {
	case actionRequestModel:
		c.observed.Model = line
	case actionRequestFirmware:
		c.observed.Firmware = line
	case actionRequestEquipmentID:
		c.observed.EquipmentID = line
	}
}

func handleFactorySerial(c *Core, args []string) {
	if len(args) >= 1 {
		c.observed.FactorySerial = args[0]
	}
}

func handleSIMID(c *Core, args []string) {
	if len(args) >= 1 {
		c.observed.SIMID = args[0]
	}
}

func handleFunctionality(c *Core, args []string) {
	if len(args) >= 1 {
		c.observed.Functionality = args[0]
	}
}

// handleCEREG disambiguates the request form ("+CEREG: n[,stat]", the
// response to AT+CEREG?) from the unsolicited form ("+CEREG: stat[,...]")
// using whichever the currently outstanding action expects.
func handleCEREG(c *Core, args []string) {
	if len(args) == 0 {
		return
	}
	if c.action == actionQueryReportingMode {
		c.observed.ReportingMode = args[0]
		if len(args) >= 2 {
			applyRegistration(c, args[1])
		}
		return
	}
	applyRegistration(c, args[0])
}

func applyRegistration(c *Core, statArg string) {
	code := atoiOr(statArg, -1)
	reg := registrationFromCode(code)
	if reg.IsRegistered() && c.faults != nil && c.faults.DenyRegistration() {
		return
	}
	c.observed.RegistrationRaw = code
	c.observed.Registration = reg
}

func handleBandCfg(c *Core, args []string) {
	if len(args) < 2 {
		return
	}
	rat := atoiOr(args[0], -1)
	bits, ok := parseHexBitmap(args[1])
	if rat < 0 || rat >= int(ratCount) || !ok {
		return
	}
	c.observed.Bands[rat] = bits
	c.observed.BandsKnown[rat] = true
}

func handleActiveBand(c *Core, args []string) {
	if len(args) < 2 {
		return
	}
	rat := atoiOr(args[0], -1)
	bits, ok := parseHexBitmap(args[1])
	if rat < 0 || !ok {
		return
	}
	c.observed.ActiveBand = bits
	c.observed.ActiveRAT = RAT(rat)
	c.observed.ActiveBandKnown = true
}

func handlePreferredList(c *Core, args []string) {
	if len(args) == 0 {
		return
	}
	for i := 0; i < 3; i++ {
		if i < len(args) {
			c.observed.PreferredRAT[i] = RAT(atoiOr(args[i], int(RATCatM1)))
		}
	}
	c.observed.PreferredValid = true
}

func handlePDPContext(c *Core, args []string) {
	if len(args) < 4 {
		return
	}
	id := atoiOr(args[0], 0)
	if id != 1 && id != 2 {
		return
	}
	c.observed.PDP[id-1] = PDPContext{
		ID:      args[0],
		Type:    args[1],
		APN:     args[2],
		Address: args[3],
	}
}

func handleSignalQuality(c *Core, args []string) {
	if len(args) < 6 {
		return
	}
	c.observed.Signal = SignalQuality{
		RxLev: atoiOr(args[0], 0),
		Ber:   atoiOr(args[1], 0),
		Rscp:  atoiOr(args[2], 0),
		Ecno:  atoiOr(args[3], 0),
		Rsrq:  atoiOr(args[4], 0),
		Rsrp:  atoiOr(args[5], 0),
	}
	now := c.uptimeSeconds()
	if c.observed.signalSampled && now == c.observed.SignalTimestamp {
		now++
	}
	c.observed.SignalTimestamp = now
	c.observed.signalSampled = true
}

func sessionSlotFromID(idArg string) (int, bool) {
	id := atoiOr(idArg, 0)
	if id < 1 || id > maxSessions {
		return 0, false
	}
	return id - 1, true
}

func handleTCPData(c *Core, args []string) { handleDataInd(c, args) }
func handleUDPData(c *Core, args []string) { handleDataInd(c, args) }

func handleDataInd(c *Core, args []string) {
	if len(args) < 2 {
		return
	}
	n := atoiOr(args[1], 0)
	c.waitingBytes = n
	c.dataReady = true
}

func handleTCPInd(c *Core, args []string) { handleSessionInd(c, args, SessionTCP) }
func handleUDPInd(c *Core, args []string) { handleSessionInd(c, args, SessionUDP) }

func handleSessionInd(c *Core, args []string, kind SessionKind) {
	if len(args) < 2 {
		return
	}
	slot, ok := sessionSlotFromID(args[0])
	if !ok {
		if c.log != nil {
			c.log.Warnf("modemcore: session indication for out-of-range id %s", args[0])
		}
		return
	}
	status := atoiOr(args[1], 0)
	if status == 1 {
		c.sessions.MarkOpen(slot, kind)
	}
}

func handleTCPNotif(c *Core, args []string) { handleSessionNotif(c, args) }
func handleUDPNotif(c *Core, args []string) { handleSessionNotif(c, args) }

func handleSessionNotif(c *Core, args []string) {
	if len(args) < 2 {
		return
	}
	slot, ok := sessionSlotFromID(args[0])
	if !ok {
		if c.log != nil {
			c.log.Warnf("modemcore: session notification for out-of-range id %s", args[0])
		}
		return
	}
	code := atoiOr(args[1], -1)
	if code != 8 {
		c.sessions.MarkClosed(slot)
	}
}

func handleKCnxInd(c *Core, args []string) {
	if len(args) < 2 {
		return
	}
	status := atoiOr(args[1], 0)
	if status == 1 {
		c.connected = true
		return
	}
	c.connected = false
	c.cfgWritten = false
	c.tcpConfigured = false
}

func handleCMEError(c *Core, sub string) {
	code := atoiOr(sub, -1)
	c.lastCMEError = code
	c.onCommandError()
}

// handleSendEcho arms the send-queued state from the echo of
// AT+KTCPSND=1,n or AT+KUDPSND=1,addr,port,n.
func handleSendEcho(c *Core, line string) {
	_, rest, ok := splitVerb(line)
	if !ok {
		return
	}
	args := splitArgs(rest)
	if len(args) == 0 {
		return
	}
	c.sendArmed = true
	c.sendExpected = atoiOr(args[len(args)-1], 0)
}

// handleRecvEcho arms the receive-queued state from the echo of
// AT+KTCPRCV=1,n or AT+KUDPRCV=1,n.
func handleRecvEcho(c *Core, line string) {
	_, rest, ok := splitVerb(line)
	if !ok {
		return
	}
	args := splitArgs(rest)
	if len(args) == 0 {
		return
	}
	c.recvArmed = true
	c.recvExpected = atoiOr(args[len(args)-1], 0)
}

// onConnect implements the CONNECT verb's effect: enter raw mode, and
// either emit the queued send payload followed by the trailer, arm raw-rx
// mode, or emit a trailer-only frame.
func (c *Core) onConnect() {
	switch {
	case c.sendArmed:
		c.sendArmed = false
		c.enterRawMode(0)
		c.asmMode = modeCommand // sending is outbound only, no rx frame expected
		c.emitQueuedPayload()
	case c.recvArmed:
		c.recvArmed = false
		c.enterRawMode(c.recvExpected)
	default:
		c.enterRawMode(0)
		c.transmitRaw(trailer)
		c.asmMode = modeCommand
	}
}

func (c *Core) onCommandOk() {
	c.commandOutstanding = false
	if c.state == StateCheckAT {
		c.atReady = true
	}
	c.onActionProgress()
}

func (c *Core) onCommandError() {
	c.commandOutstanding = false
	c.sendArmed = false
	c.recvArmed = false
}
