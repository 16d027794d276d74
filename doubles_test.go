package modemcore

import (
	"time"
)

// fakePort is an in-memory SerialPort double: CTS and transmitted commands
// are fully controlled by the test.
type fakePort struct {
	cts        bool
	opened     bool
	closed     bool
	resetLows  int
	resetHighs int
	pulses     int
	tx         [][]byte
	failOpen   bool
}

func (p *fakePort) Open() error {
	if p.failOpen {
		return errConfigTooShort // any non-nil error works for the test
	}
	p.opened = true
	return nil
}
func (p *fakePort) Close() error { p.closed = true; return nil }
func (p *fakePort) Transmit(buf []byte) (int, error) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	p.tx = append(p.tx, cp)
	return len(buf), nil
}
func (p *fakePort) ResetLow()    { p.resetLows++ }
func (p *fakePort) ResetHigh()   { p.resetHighs++ }
func (p *fakePort) PulseOn()     { p.pulses++; p.cts = false }
func (p *fakePort) CTSHigh() bool { return p.cts }

func (p *fakePort) lastTx() string {
	if len(p.tx) == 0 {
		return ""
	}
	return string(p.tx[len(p.tx)-1])
}

// feedLine writes a full response line (without CR) through ByteIn,
// terminated with \r, the way bytes actually arrive from the module.
func feedLine(c *Core, line string) {
	for i := 0; i < len(line); i++ {
		c.ByteIn(line[i])
	}
	c.ByteIn('\r')
}

func feedBytes(c *Core, b []byte) {
	for _, x := range b {
		c.ByteIn(x)
	}
}

// fakeStore is an in-memory Store double keyed by UmiCode.
type fakeStore struct {
	objects map[UmiCode][]byte
	members map[UmiCode]map[uint8][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: map[UmiCode][]byte{},
		members: map[UmiCode]map[uint8][]byte{},
	}
}

func (s *fakeStore) ReadConfigAll(code UmiCode, buf []byte) (int, error) {
	obj := s.objects[code]
	return copy(buf, obj), nil
}

func (s *fakeStore) WriteMember(code UmiCode, member uint8, buf []byte) error {
	if s.members[code] == nil {
		s.members[code] = map[uint8][]byte{}
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	s.members[code][member] = cp
	return nil
}

func (s *fakeStore) ReadMember(code UmiCode, member uint8, out []byte) (int, error) {
	return copy(out, s.members[code][member]), nil
}

func (s *fakeStore) WriteObject(code UmiCode, buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	s.objects[code] = cp
	return nil
}

func (s *fakeStore) ReadObject(code UmiCode, buf []byte) (int, error) {
	obj, ok := s.objects[code]
	if !ok {
		return 0, nil
	}
	return copy(buf, obj), nil
}

// fakeTimer is a manually-driven Timer double: StartOnce/StartRecurring
// just record that the event is armed, tests trigger callbacks explicitly
// by calling Core.Tick()/Core.AtTimeout() directly.
type fakeTimer struct {
	running map[int]bool
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{running: map[int]bool{}}
}

func (t *fakeTimer) StartRecurring(eventID int, periodMs int) { t.running[eventID] = true }
func (t *fakeTimer) StartOnce(eventID int, periodMs int)      { t.running[eventID] = true }
func (t *fakeTimer) Stop(eventID int)                         { t.running[eventID] = false }
func (t *fakeTimer) IsRunning(eventID int) bool               { return t.running[eventID] }

// testClock is a manually advanced clock for deterministic deadline tests.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time { return c.now }
func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestCore() (*Core, *fakePort, *fakeStore, *fakeTimer, *testClock) {
	port := &fakePort{}
	st := newFakeStore()
	timer := newFakeTimer()
	clock := newTestClock()
	core, err := NewCore(&Config{
		Port:  port,
		Store: st,
		Timer: timer,
		Clock: clock.Now,
	})
	if err != nil {
		panic(err)
	}
	return core, port, st, timer, clock
}
