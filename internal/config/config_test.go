package config

import "testing"

func TestParseStringMap(t *testing.T) {
	got := parseStringMap("lending-pool=0xabc, atoken = 0xdef,broken,=x,y=")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(got), got)
	}
	if got["lending-pool"] != "0xabc" || got["atoken"] != "0xdef" {
		t.Fatalf("unexpected map: %v", got)
	}
}

func TestSourceParamMissing(t *testing.T) {
	cfg := Config{Source: "aave", SourceParams: map[string]string{"asset": "0x1"}}
	if _, err := cfg.SourceParam("lending-pool"); err == nil {
		t.Fatalf("expected error for missing param")
	}
	val, err := cfg.SourceParam("asset")
	if err != nil || val != "0x1" {
		t.Fatalf("unexpected: %q %v", val, err)
	}
}
