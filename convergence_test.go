package modemcore

import "testing"

// readyCore returns a Core sitting in AT-READY with every identification
// and configuration field already converged, so tests can isolate one
// convergence branch at a time.
func readyCore(t *testing.T) (*Core, *fakePort) {
	t.Helper()
	c, port, _, _, _ := newTestCore()
	c.state = StateATReady
	c.observed.Model = "m"
	c.observed.Firmware = "f"
	c.observed.FactorySerial = "s"
	c.observed.EquipmentID = "e"
	c.observed.PDP[0] = PDPContext{ID: "1", APN: "iot.apn"}
	c.desired.APN = "iot.apn"
	c.observed.Bands[RATCatM1] = 0x10
	c.observed.Bands[RATNBIoT] = 0x20
	c.desired.Bands[RATCatM1] = 0x10
	c.desired.Bands[RATNBIoT] = 0x20
	c.observed.BandsKnown[RATCatM1] = true
	c.observed.BandsKnown[RATNBIoT] = true
	c.observed.PreferredValid = true
	c.observed.ReportingMode = "2"
	c.observed.Functionality = "1"
	c.observed.ActiveBandKnown = true
	c.observed.SIMID = "sim"
	return c, port
}

func TestConvergenceOrdersIdentificationBeforeEverythingElse(t *testing.T) {
	c, _, _, _, _ := newTestCore()
	c.state = StateATReady
	c.runConvergence()
	if c.action != actionRequestModel {
		t.Fatalf("expected model request first, got %v", c.action)
	}
}

func TestConvergenceQueriesBandsBeforeComparing(t *testing.T) {
	c, port := readyCore(t)
	c.observed.BandsKnown[RATCatM1] = false
	c.desired.Bands[RATCatM1] = 0x99 // would differ, but must not compare yet
	c.runConvergence()
	if c.action != actionQueryBandConfig {
		t.Fatalf("expected a band query while BandsKnown is false, got %v", c.action)
	}
	_ = port
}

func TestConvergenceSetsBandWhenKnownAndDiffering(t *testing.T) {
	c, _ := readyCore(t)
	c.desired.Bands[RATCatM1] = 0x99
	c.runConvergence()
	if c.action != actionSetBandConfigCatM1 {
		t.Fatalf("expected a Cat-M1 band set, got %v", c.action)
	}
}

func TestConvergencePreferredListMismatchMarksPendingReset(t *testing.T) {
	c, _ := readyCore(t)
	c.desired.PreferredCount = 1
	c.desired.PreferredRAT[0] = RATNBIoT
	c.observed.PreferredRAT[0] = RATCatM1
	c.runConvergence()
	if c.action != actionSetPreferredList {
		t.Fatalf("expected a preferred-list set, got %v", c.action)
	}
	c.commandOutstanding = false
	c.onActionProgress() // simulate the OK
	if !c.pendingReset {
		t.Fatalf("expected pendingReset to be marked once the set is acknowledged")
	}
	c.runConvergence()
	if c.state != StateResetRequired {
		t.Fatalf("expected the next convergence pass to detour to ResetRequired, got %v", c.state)
	}
}

func TestConvergenceWantsToSendDrivesFullFunctionalityThenRegistration(t *testing.T) {
	c, _ := readyCore(t)
	c.observed.Functionality = "0" // known, but not yet full
	c.wantToSend = true
	c.runConvergence()
	if c.action != actionSetupFullFunctionality {
		t.Fatalf("expected setup-full-functionality, got %v", c.action)
	}

	c.observed.Functionality = "1"
	c.runConvergence()
	if c.action != actionWaitForRegistration {
		t.Fatalf("expected wait-for-registration once full functionality is known, got %v", c.action)
	}
}

func TestConnectSubroutineWritesConfigThenConnectsUDP(t *testing.T) {
	c, _ := readyCore(t)
	c.desired.ConnType = ConnUDP
	c.wantToSend = true
	c.observed.Registration = RegHome

	c.runConvergence()
	if c.action != actionWriteGPRSConfig {
		t.Fatalf("expected write-gprs-config first, got %v", c.action)
	}

	c.cfgWritten = true
	c.runConvergence()
	if c.action != actionUDPConfig {
		t.Fatalf("expected udp-config once the bearer is configured, got %v", c.action)
	}
}

func TestConnectSubroutineHandsOffQueuedPayload(t *testing.T) {
	c, _ := readyCore(t)
	c.desired.ConnType = ConnUDP
	c.wantToSend = true
	c.observed.Registration = RegHome
	c.cfgWritten = true
	c.connected = true
	c.sessions.MarkOpen(0, SessionUDP)
	c.txBuf = []byte("payload")

	c.runConvergence()
	if c.action != actionSendData {
		t.Fatalf("expected send-data once connected with a queued payload, got %v", c.action)
	}
}

func TestConnectSubroutineThrottlesReopenRetry(t *testing.T) {
	c, _ := readyCore(t)
	c.desired.ConnType = ConnUDP
	c.wantToSend = true
	c.observed.Registration = RegHome
	c.cfgWritten = true
	c.connected = true // module claims connected, but slot 0 never opened

	for i := 0; i < 2; i++ {
		c.action = actionNone
		c.runConvergence()
		if c.action != actionNone {
			t.Fatalf("expected no action during the retry throttle window, got %v", c.action)
		}
	}
	c.action = actionNone
	c.runConvergence()
	if c.action != actionUDPConfig {
		t.Fatalf("expected the session to be reopened after the throttle, got %v", c.action)
	}
}

func TestShutdownSubroutineClosesSessionsTopDown(t *testing.T) {
	c, port := readyCore(t)
	c.abortRequested = true
	c.sessions.MarkOpen(0, SessionUDP)
	c.sessions.MarkOpen(3, SessionTCP)

	c.runConvergence()
	if c.action != actionCloseSession {
		t.Fatalf("expected close-session, got %v", c.action)
	}
	if port.lastTx() != "AT+KTCPCLOSE=4\r" {
		t.Fatalf("expected the highest open slot (id 4, TCP) to be closed first, got %q", port.lastTx())
	}
}

func TestShutdownSubroutineEndsAtPowerDownRequested(t *testing.T) {
	c, _ := readyCore(t)
	c.abortRequested = true
	c.observed.Functionality = "4" // already in airplane mode
	c.runConvergence()
	if c.state != StatePowerDownRequested {
		t.Fatalf("expected the shutdown subroutine to hand off to PowerDownRequested, got %v", c.state)
	}
}
