package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Browse.PageSize != 20 || !cfg.Browse.CacheEnabled || cfg.Browse.CacheTTLSeconds != 300 {
		t.Errorf("browse defaults = %+v", cfg.Browse)
	}
	if cfg.Transfer.UploadWindowMinutes != 10 || cfg.Transfer.Parallelism != 3 {
		t.Errorf("transfer defaults = %+v", cfg.Transfer)
	}
	if !cfg.Auth.PerUser || cfg.Proxy.Mode != "no-proxy" {
		t.Errorf("auth/proxy defaults = %+v %+v", cfg.Auth, cfg.Proxy)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	cfg := New()
	cfg.Server.URL = "http://openlist.example.com:5244"
	cfg.Server.Username = "alice"
	cfg.Server.Password = "secret"
	cfg.Browse.PageSize = 50
	cfg.Transfer.UploadWindowMinutes = 5
	cfg.Proxy.Mode = "basic"
	cfg.Proxy.Host = "proxy.local"
	cfg.Proxy.Port = 3128

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, loaded) {
		t.Errorf("round trip mismatch:\nsaved  %+v\nloaded %+v", cfg, loaded)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 0600", perm)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("[server\nurl"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config loaded without error")
	}
}

func TestValidateBounds(t *testing.T) {
	cases := []struct {
		mutate func(*Config)
		want   error
	}{
		{func(c *Config) { c.Browse.PageSize = 0 }, ErrInvalidPageSize},
		{func(c *Config) { c.Browse.PageSize = 101 }, ErrInvalidPageSize},
		{func(c *Config) { c.Browse.CacheTTLSeconds = 59 }, ErrInvalidCacheTTL},
		{func(c *Config) { c.Browse.CacheTTLSeconds = 3601 }, ErrInvalidCacheTTL},
		{func(c *Config) { c.Transfer.UploadWindowMinutes = 0 }, ErrInvalidWindow},
		{func(c *Config) { c.Transfer.UploadWindowMinutes = 61 }, ErrInvalidWindow},
		{func(c *Config) { c.Transfer.Parallelism = 0 }, ErrInvalidParallelism},
		{func(c *Config) { c.Transfer.Parallelism = 17 }, ErrInvalidParallelism},
		{func(c *Config) { c.Proxy.Mode = "socks5" }, ErrInvalidProxyMode},
	}
	for i, c := range cases {
		cfg := New()
		c.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, c.want) {
			t.Errorf("case %d: err = %v, want %v", i, err, c.want)
		}
	}

	if err := New().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestValidateForConnection(t *testing.T) {
	cfg := New()
	if err := cfg.ValidateForConnection(); !errors.Is(err, ErrMissingServerURL) {
		t.Errorf("err = %v", err)
	}
	cfg.Server.URL = "http://srv"
	if err := cfg.ValidateForConnection(); err != nil {
		t.Errorf("err = %v", err)
	}
}

func TestAllowedExtensionList(t *testing.T) {
	cfg := New()

	cfg.Transfer.AllowedExtensions = ""
	if got := cfg.AllowedExtensionList(); got != nil {
		t.Errorf("empty list = %v, want nil", got)
	}

	cfg.Transfer.AllowedExtensions = " .TXT, pdf ,,.Zip "
	got := cfg.AllowedExtensionList()
	want := []string{".txt", ".pdf", ".zip"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("list = %v, want %v", got, want)
	}
}
