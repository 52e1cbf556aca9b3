package vmconfig

import "testing"

func TestReadyOnlyAfterBothMessages(t *testing.T) {
	c := New()
	if c.Ready() {
		t.Fatal("expected not ready before any config message")
	}

	c.ApplyEarlyConfig(true, false)
	if c.Ready() {
		t.Fatal("expected not ready after only early-config")
	}

	c.ApplyInitialConfig(true, false, false, true, "Ubuntu", "/lib/modules", NetworkModeNAT)
	if !c.Ready() {
		t.Fatal("expected ready after both config messages")
	}

	snap := c.Snapshot()
	if !snap.SafeMode || snap.SystemDistro != "Ubuntu" || snap.Network != NetworkModeNAT {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
