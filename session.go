package modemcore

// SessionKind is the wire-level protocol a session slot is carrying, or
// SessionClosed if the slot holds nothing.
type SessionKind int

const (
	SessionClosed SessionKind = iota
	SessionUDP
	SessionTCP
)

func (k SessionKind) String() string {
	switch k {
	case SessionUDP:
		return "UDP"
	case SessionTCP:
		return "TCP"
	default:
		return "closed"
	}
}

// maxSessions is the number of module-resident transport sessions the
// hardware exposes. Slot 0 is the canonical application session; slots
// 1-5 exist only so the driver can find and close sessions a prior
// attempt may have left open.
const maxSessions = 6

// SessionTable is a fixed array of tagged slots, not a dynamic map, per
// the design notes.
type SessionTable struct {
	slots [maxSessions]SessionKind
}

func slotInRange(slot int) bool {
	return slot >= 0 && slot < maxSessions
}

// MarkOpen transitions a slot from CLOSED to the given kind. A slot's kind
// is only ever set while transitioning from CLOSED; calling MarkOpen on an
// already-open slot is a no-op.
func (t *SessionTable) MarkOpen(slot int, kind SessionKind) {
	if !slotInRange(slot) || t.slots[slot] != SessionClosed {
		return
	}
	t.slots[slot] = kind
}

// MarkClosed transitions a slot to CLOSED. Closing an already-CLOSED slot
// is a no-op.
func (t *SessionTable) MarkClosed(slot int) {
	if !slotInRange(slot) {
		return
	}
	t.slots[slot] = SessionClosed
}

// Query returns the kind currently held by slot.
func (t *SessionTable) Query(slot int) SessionKind {
	if !slotInRange(slot) {
		return SessionClosed
	}
	return t.slots[slot]
}

// FindHighestOpen returns the highest-indexed open slot, used by the
// Shutdown Subroutine which closes sessions top-down.
func (t *SessionTable) FindHighestOpen() (int, bool) {
	for i := maxSessions - 1; i >= 0; i-- {
		if t.slots[i] != SessionClosed {
			return i, true
		}
	}
	return -1, false
}

// AnyOpen reports whether any slot currently holds a session.
func (t *SessionTable) AnyOpen() bool {
	_, ok := t.FindHighestOpen()
	return ok
}

func (t *SessionTable) reset() {
	for i := range t.slots {
		t.slots[i] = SessionClosed
	}
}
