package main

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/jacktea/gitblobts/pkg/codec"
	"github.com/jacktea/gitblobts/pkg/index"
)

func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	viper.Set("repo", t.TempDir())
	viper.Set("compression", "none")
	viper.Set("decode-errors", "fail")
}

func TestBuildStoreConfigDefaults(t *testing.T) {
	resetConfig(t)
	cfg, err := buildStoreConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Path == "" {
		t.Fatalf("expected repo path to be set")
	}
	if cfg.Compression != codec.CompressionNone {
		t.Fatalf("compression = %q, want none", cfg.Compression)
	}
	if cfg.DecodeErrors != index.FailFast {
		t.Fatalf("expected fail-fast decode policy by default")
	}
	if cfg.Key != nil {
		t.Fatalf("expected no key without a key file")
	}
}

func TestBuildStoreConfigKeyFile(t *testing.T) {
	resetConfig(t)
	key, err := codec.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyFile := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyFile, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	viper.Set("key-file", keyFile)

	cfg, err := buildStoreConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Key) != codec.KeySize {
		t.Fatalf("key length = %d, want %d", len(cfg.Key), codec.KeySize)
	}
}

func TestBuildStoreConfigBadKeyFile(t *testing.T) {
	resetConfig(t)
	keyFile := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyFile, []byte("not hex at all"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	viper.Set("key-file", keyFile)
	if _, err := buildStoreConfig(); err == nil {
		t.Fatalf("expected error for malformed key file")
	}
}

func TestBuildStoreConfigBadCompression(t *testing.T) {
	resetConfig(t)
	viper.Set("compression", "brotli")
	if _, err := buildStoreConfig(); err == nil {
		t.Fatalf("expected error for unknown compression")
	}
}

func TestBuildStoreConfigDecodeErrors(t *testing.T) {
	resetConfig(t)
	viper.Set("decode-errors", "skip")
	cfg, err := buildStoreConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DecodeErrors != index.SkipFailed {
		t.Fatalf("expected skip policy")
	}

	viper.Set("decode-errors", "ignore")
	if _, err := buildStoreConfig(); err == nil {
		t.Fatalf("expected error for unknown decode policy")
	}
}
