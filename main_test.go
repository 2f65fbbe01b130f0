package main

import "testing"

func TestParseDevWallets(t *testing.T) {
	wallets, err := parseDevWallets(" acme-payroll=10000, alice=5 ,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(wallets) != 2 || wallets[0].owner != "acme-payroll" || wallets[0].amount != 10000 || wallets[1].amount != 5 {
		t.Fatalf("unexpected wallets %+v", wallets)
	}

	for _, bad := range []string{"alice", "alice=-1", "=5", "alice=1e3"} {
		if _, err := parseDevWallets(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if wallets, err := parseDevWallets(""); err != nil || len(wallets) != 0 {
		t.Fatalf("expected empty result, got %+v %v", wallets, err)
	}
}
