package modemcore

import "testing"

func TestSessionTableMarkOpenIsOneShot(t *testing.T) {
	var tab SessionTable
	tab.MarkOpen(0, SessionTCP)
	if tab.Query(0) != SessionTCP {
		t.Fatalf("expected slot 0 to be TCP, got %v", tab.Query(0))
	}
	tab.MarkOpen(0, SessionUDP)
	if tab.Query(0) != SessionTCP {
		t.Fatalf("MarkOpen on an already-open slot must be a no-op, got %v", tab.Query(0))
	}
}

func TestSessionTableMarkClosedIsIdempotent(t *testing.T) {
	var tab SessionTable
	tab.MarkClosed(2)
	if tab.Query(2) != SessionClosed {
		t.Fatalf("expected slot 2 closed, got %v", tab.Query(2))
	}
	tab.MarkOpen(2, SessionUDP)
	tab.MarkClosed(2)
	tab.MarkClosed(2)
	if tab.Query(2) != SessionClosed {
		t.Fatalf("expected slot 2 closed after double-close, got %v", tab.Query(2))
	}
}

func TestSessionTableFindHighestOpen(t *testing.T) {
	var tab SessionTable
	if _, ok := tab.FindHighestOpen(); ok {
		t.Fatalf("expected no open slot on a fresh table")
	}
	tab.MarkOpen(1, SessionUDP)
	tab.MarkOpen(4, SessionTCP)
	slot, ok := tab.FindHighestOpen()
	if !ok || slot != 4 {
		t.Fatalf("expected highest open slot 4, got %d (ok=%v)", slot, ok)
	}
	tab.MarkClosed(4)
	slot, ok = tab.FindHighestOpen()
	if !ok || slot != 1 {
		t.Fatalf("expected highest open slot 1 after closing 4, got %d (ok=%v)", slot, ok)
	}
}

func TestSessionTableOutOfRangeIsIgnored(t *testing.T) {
	var tab SessionTable
	tab.MarkOpen(maxSessions, SessionTCP)
	tab.MarkOpen(-1, SessionTCP)
	if tab.AnyOpen() {
		t.Fatalf("out-of-range slots must never be recorded as open")
	}
	if tab.Query(maxSessions) != SessionClosed {
		t.Fatalf("querying an out-of-range slot must report closed")
	}
}

func TestSessionTableReset(t *testing.T) {
	var tab SessionTable
	tab.MarkOpen(0, SessionTCP)
	tab.MarkOpen(5, SessionUDP)
	tab.reset()
	if tab.AnyOpen() {
		t.Fatalf("reset must close every slot")
	}
}
