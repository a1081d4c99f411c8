package config

import "testing"

func TestConfig_ParseTFsSkipsInvalidEntries(t *testing.T) {
	c := &Config{EnabledTFs: "60,bad,300,,900"}
	tfs := c.ParseTFs()
	want := []int{60, 300, 900}
	if len(tfs) != len(want) {
		t.Fatalf("expected %v, got %v", want, tfs)
	}
	for i, v := range want {
		if tfs[i] != v {
			t.Fatalf("expected %v, got %v", want, tfs)
		}
	}
}

func TestConfig_ParseSymbolsTrimsAndDropsEmpty(t *testing.T) {
	c := &Config{Symbols: "EURUSD, GBPUSD ,,USDJPY"}
	symbols := c.ParseSymbols()
	want := []string{"EURUSD", "GBPUSD", "USDJPY"}
	if len(symbols) != len(want) {
		t.Fatalf("expected %v, got %v", want, symbols)
	}
	for i, v := range want {
		if symbols[i] != v {
			t.Fatalf("expected %v, got %v", want, symbols)
		}
	}
}

func TestLoad_AppliesDefaultsWhenEnvUnset(t *testing.T) {
	c := Load()
	if c.FeedMode != "sim" {
		t.Errorf("expected default feed mode 'sim', got %q", c.FeedMode)
	}
	if len(c.ParseTFs()) == 0 {
		t.Error("expected default enabled timeframes to parse non-empty")
	}
}
