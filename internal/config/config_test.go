package config

import "testing"

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"script.txt"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Sites != 10 || cfg.Variables != 20 {
		t.Errorf("Sites=%d Variables=%d, want 10, 20", cfg.Sites, cfg.Variables)
	}
	if cfg.ScriptPath != "script.txt" {
		t.Errorf("ScriptPath = %q, want script.txt", cfg.ScriptPath)
	}
}

func TestParseOverridesFlags(t *testing.T) {
	cfg, err := Parse([]string{"-n", "4", "--variables", "8", "-o", "out.log", "-s", "script.txt"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Sites != 4 || cfg.Variables != 8 {
		t.Errorf("Sites=%d Variables=%d, want 4, 8", cfg.Sites, cfg.Variables)
	}
	if cfg.Output != "out.log" {
		t.Errorf("Output = %q, want out.log", cfg.Output)
	}
	if !cfg.Serve {
		t.Error("expected Serve to be true")
	}
}

func TestParseStdinDoesNotRequireScriptPath(t *testing.T) {
	cfg, err := Parse([]string{"--stdin"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !cfg.Stdin {
		t.Error("expected Stdin to be true")
	}
	if cfg.ScriptPath != "" {
		t.Errorf("ScriptPath = %q, want empty", cfg.ScriptPath)
	}
}

func TestParseRejectsMissingScriptPath(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Error("expected Parse to reject a missing script path")
	}
}

func TestParseRejectsMultiplePositionalArgs(t *testing.T) {
	if _, err := Parse([]string{"a.txt", "b.txt"}); err == nil {
		t.Error("expected Parse to reject more than one positional argument")
	}
}

func TestValidateRejectsNonPositiveTopology(t *testing.T) {
	cfg := Default()
	cfg.Sites = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to reject a zero site count")
	}
}

func TestString(t *testing.T) {
	cfg := Default()
	cfg.ScriptPath = "script.txt"
	want := `sites=10 variables=20 output="" serve=false stdin=false script="script.txt"`
	if got := cfg.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
