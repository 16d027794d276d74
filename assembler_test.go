package modemcore

import "testing"

func TestFeedCommandByteIgnoresShortLines(t *testing.T) {
	c, _, _, _, _ := newTestCore()
	c.commandOutstanding = true
	feedLine(c, "K") // length 1: must not be handled as a response
	if !c.commandOutstanding {
		t.Fatalf("a line shorter than 2 bytes must not be dispatched to the parser")
	}
	feedLine(c, "OK")
	if c.commandOutstanding {
		t.Fatalf("OK must clear commandOutstanding once dispatched")
	}
}

func TestFeedCommandByteOverflowDiscardsBuffer(t *testing.T) {
	c, _, _, _, _ := newTestCore()
	for i := 0; i < lineBufCap+10; i++ {
		c.ByteIn('x')
	}
	// Byte lineBufCap+1 hits the full buffer and is dropped with it; the 9
	// bytes after it start a fresh line.
	if len(c.lineBuf) != 9 {
		t.Fatalf("line buffer must be discarded on overflow and restart with the following bytes, got length %d", len(c.lineBuf))
	}
}

func TestRawModeAssemblesFrameAndDropsLeadPad(t *testing.T) {
	c, _, _, _, _ := newTestCore()
	c.rxPending = true
	c.enterRawMode(3)

	payload := append([]byte{0x00, 'a', 'b', 'c'}, trailer...)
	feedBytes(c, payload)

	if c.asmMode != modeCommand {
		t.Fatalf("expected assembler to return to command mode after the trailer")
	}
	if string(c.lastRx) != "abc" {
		t.Fatalf("expected lastRx %q, got %q", "abc", c.lastRx)
	}
	if c.rxPending {
		t.Fatalf("rxPending must clear once a frame is delivered")
	}
}

func TestRawModeLengthMismatchStillDeliversFrame(t *testing.T) {
	c, _, _, _, _ := newTestCore()
	c.rxPending = true
	c.enterRawMode(99) // wrong expectation on purpose

	payload := append([]byte{0x00, 'x'}, trailer...)
	feedBytes(c, payload)

	if string(c.lastRx) != "x" {
		t.Fatalf("a length mismatch must not prevent frame delivery, got %q", c.lastRx)
	}
}

func TestRawModeEmptyPayloadIsNotDelivered(t *testing.T) {
	c, _, _, _, _ := newTestCore()
	c.rxPending = true
	c.enterRawMode(0)

	feedBytes(c, trailer)

	if c.rxPending != true {
		t.Fatalf("an empty raw frame (trailer with nothing preceding it) must not consume rxPending")
	}
	if c.lastRx != nil {
		t.Fatalf("an empty raw frame must not set lastRx")
	}
}

func TestRawModeOverflowResetsToCommandMode(t *testing.T) {
	c, _, _, _, _ := newTestCore()
	c.enterRawMode(0)
	for i := 0; i < rawBufCap+10; i++ {
		c.ByteIn('z')
	}
	if c.asmMode != modeCommand {
		t.Fatalf("raw buffer overflow must fall back to command mode")
	}
}
