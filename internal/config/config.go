// Package config loads shoplist settings from a JSON-with-comments file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"shoplist/internal/models"

	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

const (
	AppName        = "shoplist"
	ConfigFileName = "config.json"

	BackendHTTP      = "http"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Duration is a time.Duration written as a string such as "500ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	// Backend is one of http, firestore or memory.
	Backend      string `json:"backend"`
	ServerURL    string `json:"server_url,omitempty"`
	DocumentPath string `json:"document_path"`

	Timeout      Duration `json:"timeout"`
	WriteRetries int      `json:"write_retries"`
	RetryDelay   Duration `json:"retry_delay"`
	PollInterval Duration `json:"poll_interval"`

	Firestore FirestoreConfig `json:"firestore"`
	Server    ServerConfig    `json:"server"`
}

type FirestoreConfig struct {
	Project     string `json:"project,omitempty"`
	Credentials string `json:"credentials,omitempty"`
}

type ServerConfig struct {
	Port           int    `json:"port"`
	DBPath         string `json:"db_path,omitempty"`
	PassphraseFile string `json:"passphrase_file,omitempty"`
	Announce       bool   `json:"announce"`
	Name           string `json:"name,omitempty"`
}

func Default() Config {
	return Config{
		Backend:      BackendHTTP,
		DocumentPath: models.DocumentPath,
		Timeout:      Duration{10 * time.Second},
		WriteRetries: 2,
		RetryDelay:   Duration{500 * time.Millisecond},
		PollInterval: Duration{3 * time.Second},
		Server: ServerConfig{
			Port:     8765,
			Announce: true,
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/shoplist/config.json, falling back to
// ~/.config/shoplist/config.json.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName, ConfigFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ConfigFileName
	}
	return filepath.Join(home, ".config", AppName, ConfigFileName)
}

// DataDir is where the document server keeps its database.
func DataDir() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "windows":
		dataDir = os.Getenv("APPDATA")
		if dataDir == "" {
			dataDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support")
	default:
		dataDir = os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share")
		}
	}

	return filepath.Join(dataDir, AppName), nil
}

// Load reads path over the defaults. A missing file is an error only when
// required is set (the user named it explicitly). The result is not
// validated: flags may still override it, so call Validate after
// ApplyFlags.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes JSON with comments and trailing commas into cfg. Fields
// missing from data keep their current values.
func Parse(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendHTTP, BackendMemory:
	case BackendFirestore:
		if c.Firestore.Project == "" {
			return fmt.Errorf("firestore backend requires firestore.project")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendHTTP, BackendFirestore, BackendMemory)
	}

	if parts := strings.Split(c.DocumentPath, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("document_path %q must look like collection/document", c.DocumentPath)
	}
	if c.WriteRetries < 0 {
		return fmt.Errorf("write_retries must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// AddFlags registers the flags that override config file values.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("server", "", "Document server URL (empty: look one up on the LAN)")
	fs.Bool("local", false, "Keep the list in memory only")
	fs.String("backend", "", "Document store: http, firestore or memory")
	fs.String("firestore-project", "", "Google Cloud project for the firestore backend")
	fs.String("credentials", "", "Service account JSON for the firestore backend")
	fs.Duration("timeout", 0, "Timeout for document store requests")
	fs.Int("write-retries", 0, "Retries for a failed write-through")
	fs.Int("port", 0, "Document server port")
	fs.String("db", "", "Document server database path")
	fs.String("passphrase-file", "", "File holding the passphrase for encryption at rest")
	fs.Bool("announce", true, "Announce the document server over mDNS")
	fs.String("name", "", "Name announced over mDNS (default: hostname)")
}

// ApplyFlags copies every flag the user set explicitly over c. Flags left
// at their defaults do not touch values from the config file.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"server":            &c.ServerURL,
		"backend":           &c.Backend,
		"firestore-project": &c.Firestore.Project,
		"credentials":       &c.Firestore.Credentials,
		"db":                &c.Server.DBPath,
		"passphrase-file":   &c.Server.PassphraseFile,
		"name":              &c.Server.Name,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	ints := map[string]*int{
		"write-retries": &c.WriteRetries,
		"port":          &c.Server.Port,
	}
	for name, dst := range ints {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Changed("timeout") {
		v, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		c.Timeout.Duration = v
	}
	if fs.Changed("announce") {
		v, err := fs.GetBool("announce")
		if err != nil {
			return err
		}
		c.Server.Announce = v
	}
	if local, err := fs.GetBool("local"); err == nil && local {
		c.Backend = BackendMemory
	}
	return nil
}

const fileHeader = "// shoplist configuration. Comments and trailing commas are allowed.\n"

// WriteDefault writes the default configuration to path, replacing it
// atomically.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	buf.Write(data)
	buf.WriteByte('\n')

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
