package modemcore

import "testing"

func TestStartRejectsDoubleStart(t *testing.T) {
	c, _, _, _, _ := newTestCore()
	if err := c.Start(nil, false); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := c.Start(nil, false); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted on the second Start, got %v", err)
	}
}

func TestQueueTxRejectsWhilePending(t *testing.T) {
	c, _, _, _, _ := newTestCore()
	if err := c.QueueTx([]byte("a")); err != nil {
		t.Fatalf("first QueueTx failed: %v", err)
	}
	if err := c.QueueTx([]byte("b")); err != ErrTxAlreadyQueued {
		t.Fatalf("expected ErrTxAlreadyQueued, got %v", err)
	}
}

func TestSendThenReceiveRoundTrip(t *testing.T) {
	c, port := readyCore(t)
	c.desired.ConnType = ConnUDP
	c.observed.Registration = RegHome
	c.cfgWritten = true
	c.connected = true
	c.sessions.MarkOpen(0, SessionUDP)
	c.wantToSend = true

	if err := c.QueueTx([]byte("ping")); err != nil {
		t.Fatalf("QueueTx failed: %v", err)
	}

	before := len(port.tx)
	c.runConvergence()
	if c.action != actionSendData {
		t.Fatalf("expected send-data, got %v", c.action)
	}
	if len(port.tx) != before+1 {
		t.Fatalf("expected a KUDPSND command to have been sent")
	}

	// module accepts the raw hand-off
	c.sendArmed = true
	feedLine(c, "CONNECT")
	if c.txBuf != nil {
		t.Fatalf("expected the queued payload to have been drained")
	}
	if c.action != actionWaitForResponse {
		t.Fatalf("expected wait-for-response after the payload went out, got %v", c.action)
	}
	feedLine(c, "OK")

	// later, the module announces inbound data and the driver fetches it
	feedLine(c, "+KUDP_DATA: 1,4")
	if !c.dataReady || c.waitingBytes != 4 {
		t.Fatalf("expected a pending receive of 4 bytes")
	}
	c.runConvergence()
	if c.action != actionReceiveData || !c.rxPending {
		t.Fatalf("expected receive-data armed, got action=%v rxPending=%v", c.action, c.rxPending)
	}

	c.enterRawMode(4)
	feedBytes(c, append([]byte{0x00, 'p', 'o', 'n', 'g'}, trailer...))
	if string(c.GetLastRx()) != "pong" {
		t.Fatalf("expected GetLastRx to return %q, got %q", "pong", c.GetLastRx())
	}
}

func TestAbortClosesSessionsThenPowersDown(t *testing.T) {
	c, _ := readyCore(t)
	c.observed.Registration = RegHome
	c.cfgWritten = true
	c.connected = true
	c.sessions.MarkOpen(0, SessionUDP)

	c.Abort()
	c.Tick() // -> close-session

	if c.action != actionCloseSession {
		t.Fatalf("expected close-session first, got %v", c.action)
	}
	c.commandOutstanding = false
	c.sessions.MarkClosed(0)
	c.onActionProgress()

	c.Tick() // no sessions left, bearer still up -> delete-session
	if c.action != actionDeleteSession {
		t.Fatalf("expected delete-session, got %v", c.action)
	}
	c.commandOutstanding = false
	c.onActionProgress()
	if c.connected {
		t.Fatalf("expected connected cleared after delete-session")
	}

	c.Tick() // not yet in airplane mode -> shutdown
	if c.action != actionShutdown {
		t.Fatalf("expected shutdown, got %v", c.action)
	}
	c.commandOutstanding = false
	c.onActionProgress()
	if c.observed.Functionality != "4" {
		t.Fatalf("expected functionality 4 after shutdown OK")
	}

	c.Tick() // in airplane mode -> PowerDownRequested
	if c.state != StatePowerDownRequested {
		t.Fatalf("expected PowerDownRequested, got %v", c.state)
	}

	c.Tick() // emits +CPOF
	if c.action != actionRequestPowerDown {
		t.Fatalf("expected request-power-down, got %v", c.action)
	}
	c.commandOutstanding = false
	c.onActionProgress()

	c.Tick() // poweredOffAck -> WaitCTSLow2
	if c.state != StateWaitCTSLow2 {
		t.Fatalf("expected WaitCTSLow2, got %v", c.state)
	}

	c.Tick() // CTS already low in the fake port -> PoweredOff
	if c.state != StatePoweredOff {
		t.Fatalf("expected PoweredOff, got %v", c.state)
	}
}
