package modemcore

import "bytes"

// Line Assembler. Bytes arrive one at a time via Core.ByteIn and are
// accumulated into either a command line or a raw-mode payload frame.

const (
	lineBufCap = 2048
	rawBufCap  = 4096
)

// trailer is the fixed 16-octet sentinel that terminates a raw-mode
// payload in either direction.
var trailer = []byte("--EOF--Pattern--")

type assemblerMode int

const (
	modeCommand assemblerMode = iota
	modeRaw
)

// ByteIn is called by the serial adapter once per received byte. It is one
// of the three external entry points into the core.
func (c *Core) ByteIn(b byte) {
	c.Lock()
	defer c.Unlock()
	switch c.asmMode {
	case modeCommand:
		c.feedCommandByte(b)
	case modeRaw:
		c.feedRawByte(b)
	}
}

func (c *Core) feedCommandByte(b byte) {
	if b == '\r' || b == '\n' {
		if len(c.lineBuf) >= 2 {
			line := string(c.lineBuf)
			c.lineBuf = c.lineBuf[:0]
			c.handleLine(line)
		} else {
			c.lineBuf = c.lineBuf[:0]
		}
		return
	}
	if len(c.lineBuf) >= lineBufCap {
		if c.log != nil {
			c.log.Errorf("modemcore: line buffer overflow, discarding %d bytes", len(c.lineBuf))
		}
		c.lineBuf = c.lineBuf[:0]
		return
	}
	c.lineBuf = append(c.lineBuf, b)
}

// enterRawMode is invoked by the Action Engine/Parser (on CONNECT) to
// switch the assembler into raw payload mode. The contract guarantees this
// is never called while a command line is partially assembled.
func (c *Core) enterRawMode(expectedLen int) {
	c.asmMode = modeRaw
	c.rawBuf = c.rawBuf[:0]
	c.expectedRawLen = expectedLen
}

func (c *Core) feedRawByte(b byte) {
	if len(c.rawBuf) >= rawBufCap {
		if c.log != nil {
			c.log.Errorf("modemcore: raw buffer overflow, discarding payload")
		}
		c.rawBuf = c.rawBuf[:0]
		c.asmMode = modeCommand
		return
	}
	c.rawBuf = append(c.rawBuf, b)
	if !bytes.HasSuffix(c.rawBuf, trailer) {
		return
	}

	payload := c.rawBuf[:len(c.rawBuf)-len(trailer)]
	c.asmMode = modeCommand

	if len(payload) == 0 {
		c.waitingBytes = 0
		c.onNoData()
		return
	}

	// The first byte of the received buffer is dropped, as the original
	// driver firmware did, reportedly to compensate for a leading CR/LF the
	// module emits after CONNECT. Kept as a named, isolated heuristic
	// pending verification against real hardware.
	frame := dropLeadingCRLF(payload)

	if len(frame) != c.expectedRawLen {
		c.onLengthMismatch(c.expectedRawLen, len(frame))
	}
	c.waitingBytes = 0
	c.onRawFrame(frame)
}

func dropLeadingCRLF(payload []byte) []byte {
	if len(payload) == 0 {
		return payload
	}
	return payload[1:]
}

func (c *Core) onNoData() {
	if c.log != nil {
		c.log.Debug("modemcore: raw mode saw trailer with no preceding payload")
	}
}

func (c *Core) onLengthMismatch(expected, got int) {
	if c.log != nil {
		c.log.Warnf("modemcore: raw frame length mismatch: advertised %d, got %d", expected, got)
	}
}

func (c *Core) onRawFrame(frame []byte) {
	if c.rxPending {
		c.rxPending = false
		cp := make([]byte, len(frame))
		copy(cp, frame)
		c.lastRx = cp
		c.notifyRxReady()
	}
}

// notifyRxReady logs that a received payload is now available via
// GetLastRx.
func (c *Core) notifyRxReady() {
	if c.log != nil {
		c.log.Debugf("modemcore: received %d bytes", len(c.lastRx))
	}
}
