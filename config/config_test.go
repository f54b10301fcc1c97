package config

import "testing"

func TestLoad(t *testing.T) {
	t.Setenv(EnvEnable, "1")
	t.Setenv(EnvIP, "10.0.1.5")
	t.Setenv(EnvPort, "5640")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Enable {
		t.Fatalf("expected enabled")
	}
	if got := cfg.Addr(); got != "10.0.1.5:5640" {
		t.Fatalf("addr = %q", got)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{EnvEnable, "yes"},
		{EnvIP, "not-an-ip"},
		{EnvIP, "::1"},
		{EnvPort, "0"},
		{EnvPort, "70000"},
		{EnvPort, "abc"},
	}

	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(EnvEnable, "1")
			t.Setenv(EnvIP, "10.0.1.5")
			t.Setenv(EnvPort, "5640")
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestLoadDisabledByDefault(t *testing.T) {
	t.Setenv(EnvEnable, "")
	t.Setenv(EnvIP, "10.0.1.5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Enable {
		t.Fatalf("expected disabled")
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("port = %d, want default %d", cfg.Port, DefaultPort)
	}
}
