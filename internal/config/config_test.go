package config

import (
	"testing"
	"time"
)

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected missing signing secret to fail")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("cors.allowed_origins", "https://a.example.com, https://b.example.com")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 12*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.Barcode.Timeout != 10*time.Second {
		t.Fatalf("unexpected barcode timeout %s", cfg.Barcode.Timeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadClientTrimsServerURL(t *testing.T) {
	configViper := NewViper()
	ApplyClientDefaults(configViper)
	configViper.Set("server.url", "http://api.example.com/")

	cfg, err := LoadClient(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.ServerURL != "http://api.example.com" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.ServerURL)
	}
	if cfg.Timeout != 15*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Timeout)
	}
}
