package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen   = "127.0.0.1:8080"
	defaultDataDir  = "data"
	defaultFormat   = "csv"
	defaultAutosave = "*/5 * * * *"
	defaultLogLevel = "info"
)

// CalendarConfig seeds one calendar when the data directory holds none.
type CalendarConfig struct {
	Title string `yaml:"title" json:"title"`
	// AllowConflict overrides the top-level default when set.
	AllowConflict *bool `yaml:"allow_conflict,omitempty" json:"allow_conflict,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds one file per calendar.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Format is the file codec used when saving: "csv", "ics" or
	// "sqlite". Restore reads all of them.
	Format string `yaml:"format" json:"format"`

	// AllowConflict is the default conflict policy of calendars.
	AllowConflict bool `yaml:"allow_conflict" json:"allow_conflict"`

	// Autosave is a cron-style schedule (e.g. "*/5 * * * *") on which
	// modified calendars are written to DataDir.
	Autosave string `yaml:"autosave" json:"autosave"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    defaultListen,
		DataDir:   defaultDataDir,
		Format:    defaultFormat,
		Autosave:  defaultAutosave,
		LogLevel:  defaultLogLevel,
		Calendars: []CalendarConfig{{Title: "Default"}},
		BasicAuth: nil,
	}
}

// Normalize fills in missing or invalid values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	switch f := strings.ToLower(strings.TrimSpace(c.Format)); f {
	case "csv", "ics", "sqlite":
		c.Format = f
	default:
		c.Format = defaultFormat
	}

	// An unparsable schedule would stop autosave silently; fall back.
	if _, err := cron.ParseStandard(c.Autosave); err != nil {
		c.Autosave = defaultAutosave
	}
	switch l := strings.ToLower(strings.TrimSpace(c.LogLevel)); l {
	case "debug", "info", "error":
		c.LogLevel = l
	default:
		c.LogLevel = defaultLogLevel
	}

	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	c.Calendars = dedupCalendars(c.Calendars)

	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// AllowConflictFor resolves the conflict policy of a seeded calendar.
func (c *Config) AllowConflictFor(cc CalendarConfig) bool {
	if cc.AllowConflict != nil {
		return *cc.AllowConflict
	}
	return c.AllowConflict
}

// dedupCalendars drops untitled entries and repeated titles, keeping the
// first occurrence.
func dedupCalendars(in []CalendarConfig) []CalendarConfig {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, cc := range in {
		cc.Title = strings.TrimSpace(cc.Title)
		if cc.Title == "" || seen[cc.Title] {
			continue
		}
		seen[cc.Title] = true
		out = append(out, cc)
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// via a temp file + rename. The parent directory is created with 0700 and
// the final file has 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
