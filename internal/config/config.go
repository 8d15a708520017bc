// Package config provides configuration management for olbridge.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"
)

// Config is the shared settings record for the bridge. It holds the default
// remote connection, policy limits, and proxy settings.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\olbridge\config
//   - Unix: ~/.config/olbridge/config
//
// INI format:
//
//	[server]
//	url = http://openlist.example.com:5244
//	public_url =
//	fixed_base_directory =
//	username =
//	password =
//	token =
//
//	[browse]
//	page_size = 20
//	cache_enabled = true
//	cache_ttl_seconds = 300
//
//	[transfer]
//	allowed_extensions = .txt,.pdf,.zip,.jpg,.png,.gif,.mp4,.mp3
//	max_upload_mb = 100
//	max_download_mb = 50
//	upload_window_minutes = 10
//	parallelism = 3
//
//	[auth]
//	per_user = true
//
//	[proxy]
//	mode = no-proxy
type Config struct {
	Server   ServerConfig
	Browse   BrowseConfig
	Transfer TransferConfig
	Auth     AuthConfig
	Proxy    ProxyConfig
}

// ServerConfig is the default remote connection shared by all identities
// when per-user auth is disabled, and the fallback otherwise.
type ServerConfig struct {
	// URL is the base URL of the remote file service.
	URL string `ini:"url"`

	// PublicURL, when set, is used instead of URL when building download
	// links handed out to users (the API URL may be internal-only).
	PublicURL string `ini:"public_url"`

	// FixedBaseDirectory is prefixed to paths when building download links,
	// for deployments that mount the browsable tree under a sub-path.
	FixedBaseDirectory string `ini:"fixed_base_directory"`

	Username string `ini:"username"`
	Password string `ini:"password"`
	Token    string `ini:"token"`
}

// BrowseConfig contains listing and cache settings.
type BrowseConfig struct {
	// PageSize is the number of entries rendered per page. Range 1-100.
	PageSize int `ini:"page_size"`

	// CacheEnabled toggles the listing cache.
	CacheEnabled bool `ini:"cache_enabled"`

	// CacheTTLSeconds is the listing cache time-to-live. Range 60-3600.
	CacheTTLSeconds int `ini:"cache_ttl_seconds"`
}

// TransferConfig contains upload/download/backup policy settings.
type TransferConfig struct {
	// AllowedExtensions is a comma-separated list of permitted upload
	// extensions. Empty means all extensions are allowed.
	AllowedExtensions string `ini:"allowed_extensions"`

	// MaxUploadMB caps the size of a single uploaded file.
	MaxUploadMB int `ini:"max_upload_mb"`

	// MaxDownloadMB caps the size of a file fetched for direct delivery.
	// Larger files are served as links only.
	MaxDownloadMB int `ini:"max_download_mb"`

	// UploadWindowMinutes is how long upload mode stays armed. Range 1-60.
	UploadWindowMinutes int `ini:"upload_window_minutes"`

	// Parallelism bounds concurrent in-flight items per transfer job.
	// Range 1-16.
	Parallelism int `ini:"parallelism"`
}

// AuthConfig selects between shared-credential and per-user modes.
type AuthConfig struct {
	// PerUser, when true, gives each identity its own credential record;
	// when false all identities share the [server] credentials.
	PerUser bool `ini:"per_user"`
}

// ProxyConfig mirrors the outbound proxy settings understood by the
// transport layer.
type ProxyConfig struct {
	// Mode is one of "no-proxy", "system", "basic", "ntlm".
	Mode     string `ini:"mode"`
	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
	NoProxy  string `ini:"no_proxy"`
}

// Validation errors
var (
	ErrMissingServerURL   = errors.New("server url is required")
	ErrInvalidPageSize    = errors.New("page_size must be between 1 and 100")
	ErrInvalidCacheTTL    = errors.New("cache_ttl_seconds must be between 60 and 3600")
	ErrInvalidWindow      = errors.New("upload_window_minutes must be between 1 and 60")
	ErrInvalidParallelism = errors.New("parallelism must be between 1 and 16")
	ErrInvalidProxyMode   = errors.New("proxy mode must be one of: no-proxy, system, basic, ntlm")
)

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DataDir returns the olbridge data directory, creating nothing.
// - Windows: %USERPROFILE%\.config\olbridge
// - Unix: ~/.config/olbridge
func DataDir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", "olbridge"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "olbridge"), nil
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Browse: BrowseConfig{
			PageSize:        20,
			CacheEnabled:    true,
			CacheTTLSeconds: 300,
		},
		Transfer: TransferConfig{
			AllowedExtensions:   ".txt,.pdf,.doc,.docx,.zip,.rar,.jpg,.png,.gif,.mp4,.mp3",
			MaxUploadMB:         100,
			MaxDownloadMB:       50,
			UploadWindowMinutes: 10,
			Parallelism:         3,
		},
		Auth: AuthConfig{
			PerUser: true,
		},
		Proxy: ProxyConfig{
			Mode: "no-proxy",
		},
	}
}

// Load loads configuration from an INI file. If the file doesn't exist,
// returns a config with default values and no error. If the file exists but
// is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	server := iniFile.Section("server")
	cfg.Server.URL = server.Key("url").String()
	cfg.Server.PublicURL = server.Key("public_url").String()
	cfg.Server.FixedBaseDirectory = server.Key("fixed_base_directory").String()
	cfg.Server.Username = server.Key("username").String()
	cfg.Server.Password = server.Key("password").String()
	cfg.Server.Token = server.Key("token").String()

	browse := iniFile.Section("browse")
	cfg.Browse.PageSize = browse.Key("page_size").MustInt(cfg.Browse.PageSize)
	cfg.Browse.CacheEnabled = browse.Key("cache_enabled").MustBool(cfg.Browse.CacheEnabled)
	cfg.Browse.CacheTTLSeconds = browse.Key("cache_ttl_seconds").MustInt(cfg.Browse.CacheTTLSeconds)

	transfer := iniFile.Section("transfer")
	cfg.Transfer.AllowedExtensions = transfer.Key("allowed_extensions").MustString(cfg.Transfer.AllowedExtensions)
	cfg.Transfer.MaxUploadMB = transfer.Key("max_upload_mb").MustInt(cfg.Transfer.MaxUploadMB)
	cfg.Transfer.MaxDownloadMB = transfer.Key("max_download_mb").MustInt(cfg.Transfer.MaxDownloadMB)
	cfg.Transfer.UploadWindowMinutes = transfer.Key("upload_window_minutes").MustInt(cfg.Transfer.UploadWindowMinutes)
	cfg.Transfer.Parallelism = transfer.Key("parallelism").MustInt(cfg.Transfer.Parallelism)

	auth := iniFile.Section("auth")
	cfg.Auth.PerUser = auth.Key("per_user").MustBool(cfg.Auth.PerUser)

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = proxy.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(0)
	cfg.Proxy.User = proxy.Key("user").String()
	cfg.Proxy.Password = proxy.Key("password").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()

	return cfg, nil
}

// Save saves configuration to an INI file. Creates parent directories if they
// don't exist. Credentials are stored in the file - file permissions are
// restricted to the owning user.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	server, err := iniFile.NewSection("server")
	if err != nil {
		return fmt.Errorf("failed to create server section: %w", err)
	}
	server.Key("url").SetValue(cfg.Server.URL)
	server.Key("public_url").SetValue(cfg.Server.PublicURL)
	server.Key("fixed_base_directory").SetValue(cfg.Server.FixedBaseDirectory)
	server.Key("username").SetValue(cfg.Server.Username)
	server.Key("password").SetValue(cfg.Server.Password)
	server.Key("token").SetValue(cfg.Server.Token)

	browse, err := iniFile.NewSection("browse")
	if err != nil {
		return fmt.Errorf("failed to create browse section: %w", err)
	}
	browse.Key("page_size").SetValue(fmt.Sprintf("%d", cfg.Browse.PageSize))
	browse.Key("cache_enabled").SetValue(fmt.Sprintf("%t", cfg.Browse.CacheEnabled))
	browse.Key("cache_ttl_seconds").SetValue(fmt.Sprintf("%d", cfg.Browse.CacheTTLSeconds))

	transfer, err := iniFile.NewSection("transfer")
	if err != nil {
		return fmt.Errorf("failed to create transfer section: %w", err)
	}
	transfer.Key("allowed_extensions").SetValue(cfg.Transfer.AllowedExtensions)
	transfer.Key("max_upload_mb").SetValue(fmt.Sprintf("%d", cfg.Transfer.MaxUploadMB))
	transfer.Key("max_download_mb").SetValue(fmt.Sprintf("%d", cfg.Transfer.MaxDownloadMB))
	transfer.Key("upload_window_minutes").SetValue(fmt.Sprintf("%d", cfg.Transfer.UploadWindowMinutes))
	transfer.Key("parallelism").SetValue(fmt.Sprintf("%d", cfg.Transfer.Parallelism))

	auth, err := iniFile.NewSection("auth")
	if err != nil {
		return fmt.Errorf("failed to create auth section: %w", err)
	}
	auth.Key("per_user").SetValue(fmt.Sprintf("%t", cfg.Auth.PerUser))

	proxy, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.Proxy.Mode)
	proxy.Key("host").SetValue(cfg.Proxy.Host)
	proxy.Key("port").SetValue(fmt.Sprintf("%d", cfg.Proxy.Port))
	proxy.Key("user").SetValue(cfg.Proxy.User)
	proxy.Key("password").SetValue(cfg.Proxy.Password)
	proxy.Key("no_proxy").SetValue(cfg.Proxy.NoProxy)

	// Temporary file + rename for atomicity.
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks bounded settings. Returns nil if valid, or an error
// describing what's wrong.
func (cfg *Config) Validate() error {
	if cfg.Browse.PageSize < 1 || cfg.Browse.PageSize > 100 {
		return ErrInvalidPageSize
	}
	if cfg.Browse.CacheTTLSeconds < 60 || cfg.Browse.CacheTTLSeconds > 3600 {
		return ErrInvalidCacheTTL
	}
	if cfg.Transfer.UploadWindowMinutes < 1 || cfg.Transfer.UploadWindowMinutes > 60 {
		return ErrInvalidWindow
	}
	if cfg.Transfer.Parallelism < 1 || cfg.Transfer.Parallelism > 16 {
		return ErrInvalidParallelism
	}
	switch strings.ToLower(cfg.Proxy.Mode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}
	return nil
}

// ValidateForConnection checks only that a remote connection is configured.
func (cfg *Config) ValidateForConnection() error {
	if strings.TrimSpace(cfg.Server.URL) == "" {
		return ErrMissingServerURL
	}
	return nil
}

// AllowedExtensionList splits the configured extension list. An empty
// configuration yields nil, meaning all extensions are allowed.
func (cfg *Config) AllowedExtensionList() []string {
	raw := strings.TrimSpace(cfg.Transfer.AllowedExtensions)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		out = append(out, p)
	}
	return out
}
