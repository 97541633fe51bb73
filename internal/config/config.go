// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Match strategies accepted by run.match_by.
const (
	MatchIndex      = "index"
	MatchIdentifier = "identifier"
	MatchName       = "name"
)

// Email policies accepted by form.email_policy.
const (
	EmailMerge   = "merge"
	EmailDisable = "disable"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Timeouts TimeoutConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Run      RunConfig     `mapstructure:"run" yaml:"run"`
	Columns  ColumnConfig  `mapstructure:"columns" yaml:"columns"`
	Form     FormConfig    `mapstructure:"form" yaml:"form"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig describes how to reach the operator's running Chrome.
type BrowserConfig struct {
	// CDPEndpoint is the remote debugging endpoint, e.g. http://localhost:9222.
	CDPEndpoint string `mapstructure:"cdp_endpoint" yaml:"cdp_endpoint"`
	// DirectoryURLContains narrows which open tab is treated as the directory page.
	// Empty means the most recently listed page target.
	DirectoryURLContains string        `mapstructure:"directory_url_contains" yaml:"directory_url_contains"`
	DirectoryTable       string        `mapstructure:"directory_table" yaml:"directory_table"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// TimeoutConfig groups every wait and retry budget used while driving the form.
type TimeoutConfig struct {
	MaxWait           time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	EditClickPause    time.Duration `mapstructure:"edit_click_pause" yaml:"edit_click_pause"`
	SubmitClickPause  time.Duration `mapstructure:"submit_click_pause" yaml:"submit_click_pause"`
	StepDelay         time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	ReturnPause       time.Duration `mapstructure:"return_pause" yaml:"return_pause"`
	FieldWait         time.Duration `mapstructure:"field_wait" yaml:"field_wait"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	LocatorAttempts   int           `mapstructure:"locator_attempts" yaml:"locator_attempts"`
	OverlayClearPause time.Duration `mapstructure:"overlay_clear_pause" yaml:"overlay_clear_pause"`

	ValidationWait  time.Duration `mapstructure:"validation_wait" yaml:"validation_wait"`
	ConsistencyWait time.Duration `mapstructure:"consistency_wait" yaml:"consistency_wait"`
	ConfirmPolls    int           `mapstructure:"confirm_polls" yaml:"confirm_polls"`
	ConfirmInterval time.Duration `mapstructure:"confirm_interval" yaml:"confirm_interval"`
	SuccessPolls    int           `mapstructure:"success_polls" yaml:"success_polls"`
	SuccessInterval time.Duration `mapstructure:"success_interval" yaml:"success_interval"`

	ConfirmModalWait      time.Duration `mapstructure:"confirm_modal_wait" yaml:"confirm_modal_wait"`
	CancelSuccessPolls    int           `mapstructure:"cancel_success_polls" yaml:"cancel_success_polls"`
	CancelSuccessInterval time.Duration `mapstructure:"cancel_success_interval" yaml:"cancel_success_interval"`
}

// RunConfig holds per-invocation settings, mostly populated from CLI flags.
type RunConfig struct {
	Excel string `mapstructure:"excel" yaml:"excel"`
	// Sheet is a sheet name or a 0-based sheet index. Empty selects the first sheet.
	Sheet string `mapstructure:"sheet" yaml:"sheet"`
	// Start and End are 1-based and inclusive; 0 leaves the bound open.
	Start         int    `mapstructure:"start" yaml:"start"`
	End           int    `mapstructure:"end" yaml:"end"`
	MatchBy       string `mapstructure:"match_by" yaml:"match_by"`
	StopOnError   bool   `mapstructure:"stop_on_error" yaml:"stop_on_error"`
	SkipUnlocated bool   `mapstructure:"skip_unlocated" yaml:"skip_unlocated"`
	SlowMode      bool   `mapstructure:"slow_mode" yaml:"slow_mode"`
	LogCSV        string `mapstructure:"log_csv" yaml:"log_csv"`
	CancelLogCSV  string `mapstructure:"cancel_log_csv" yaml:"cancel_log_csv"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// ColumnConfig maps spreadsheet header names to row attributes.
type ColumnConfig struct {
	Identifier string `mapstructure:"identifier" yaml:"identifier"`
	Name       string `mapstructure:"name" yaml:"name"`
	Status     string `mapstructure:"status" yaml:"status"`
	Phone      string `mapstructure:"phone" yaml:"phone"`
	Email      string `mapstructure:"email" yaml:"email"`
	Latitude   string `mapstructure:"latitude" yaml:"latitude"`
	Longitude  string `mapstructure:"longitude" yaml:"longitude"`
	Source     string `mapstructure:"source" yaml:"source"`
	Notes      string `mapstructure:"notes" yaml:"notes"`
}

// FormConfig tunes how the edit form is filled.
type FormConfig struct {
	EmailPolicy string `mapstructure:"email_policy" yaml:"email_policy"`
	// StatusControls maps a status label to the id of its radio control.
	// Viper lower-cases map keys, so lookups are case-insensitive.
	StatusControls map[string]string `mapstructure:"status_controls" yaml:"status_controls"`
	LockProbe      bool              `mapstructure:"lock_probe" yaml:"lock_probe"`
	LockPatterns   []string          `mapstructure:"lock_patterns" yaml:"lock_patterns"`
}

// StatusControl returns the control id registered for a status label.
func (f FormConfig) StatusControl(label string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return "", false
	}
	for k, v := range f.StatusControls {
		if strings.ToLower(k) == key && v != "" {
			return v, true
		}
	}
	return "", false
}

// NormalizeMatchBy maps user spellings onto the canonical match strategy.
func NormalizeMatchBy(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", MatchIndex:
		return MatchIndex
	case MatchIdentifier, "idsbr", "id":
		return MatchIdentifier
	case MatchName, "nama":
		return MatchName
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load unmarshals the viper state into a Config, expands home-relative paths,
// and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Run.MatchBy = NormalizeMatchBy(cfg.Run.MatchBy)
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Run.Excel, &c.Run.LogCSV, &c.Run.CancelLogCSV, &c.Run.ScreenshotDir, &c.Logger.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sbr")
	v.SetDefault("logger.log_file", "sbr.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.cdp_endpoint", "http://localhost:9222")
	v.SetDefault("browser.directory_url_contains", "")
	v.SetDefault("browser.directory_table", "#table_direktori_usaha")
	v.SetDefault("browser.connect_timeout", "10s")

	// -- Timeouts --
	v.SetDefault("timeouts.max_wait", "5s")
	v.SetDefault("timeouts.edit_click_pause", "1s")
	v.SetDefault("timeouts.submit_click_pause", "300ms")
	v.SetDefault("timeouts.step_delay", "700ms")
	v.SetDefault("timeouts.return_pause", "800ms")
	v.SetDefault("timeouts.field_wait", "1500ms")
	v.SetDefault("timeouts.poll_interval", "100ms")
	v.SetDefault("timeouts.locator_attempts", 3)
	v.SetDefault("timeouts.overlay_clear_pause", "150ms")
	v.SetDefault("timeouts.validation_wait", "1s")
	v.SetDefault("timeouts.consistency_wait", "800ms")
	v.SetDefault("timeouts.confirm_polls", 10)
	v.SetDefault("timeouts.confirm_interval", "250ms")
	v.SetDefault("timeouts.success_polls", 16)
	v.SetDefault("timeouts.success_interval", "200ms")
	v.SetDefault("timeouts.confirm_modal_wait", "4s")
	v.SetDefault("timeouts.cancel_success_polls", 20)
	v.SetDefault("timeouts.cancel_success_interval", "250ms")

	// -- Run --
	v.SetDefault("run.excel", "")
	v.SetDefault("run.sheet", "")
	v.SetDefault("run.start", 0)
	v.SetDefault("run.end", 0)
	v.SetDefault("run.match_by", MatchIndex)
	v.SetDefault("run.stop_on_error", false)
	v.SetDefault("run.skip_unlocated", false)
	v.SetDefault("run.slow_mode", true)
	v.SetDefault("run.log_csv", "log_sbr_autofill.csv")
	v.SetDefault("run.cancel_log_csv", "log_sbr_cancel.csv")
	v.SetDefault("run.screenshot_dir", "screenshots")

	// -- Columns --
	v.SetDefault("columns.identifier", "IDSBR")
	v.SetDefault("columns.name", "Nama")
	v.SetDefault("columns.status", "Status")
	v.SetDefault("columns.phone", "Nomor Telepon")
	v.SetDefault("columns.email", "Email")
	v.SetDefault("columns.latitude", "Latitude")
	v.SetDefault("columns.longitude", "Longitude")
	v.SetDefault("columns.source", "Sumber")
	v.SetDefault("columns.notes", "Catatan")

	// -- Form --
	v.SetDefault("form.email_policy", EmailMerge)
	v.SetDefault("form.status_controls", map[string]string{
		"aktif":                        "kondisi_aktif",
		"tutup sementara":              "kondisi_tutup_sementara",
		"belum beroperasi/berproduksi": "kondisi_belum_beroperasi",
		"tidak ditemukan":              "kondisi_tidak_ditemukan",
		"aktif pindah":                 "kondisi_aktif_pindah",
		"aktif nonrespon":              "kondisi_aktif_nonrespon",
		"duplikat":                     "kondisi_duplikat",
		"tutup":                        "kondisi_tutup",
		"alih usaha":                   "kondisi_alih_usaha",
	})
	v.SetDefault("form.lock_probe", true)
	v.SetDefault("form.lock_patterns", []string{
		"sedang diedit",
		"sedang dibuka",
		"sedang digunakan",
		"locked",
		"tidak memiliki akses",
		"not authorized",
		"unauthorized",
		"forbidden",
	})
}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Browser.CDPEndpoint) == "" {
		errs = append(errs, errors.New("browser.cdp_endpoint is required"))
	}
	if strings.TrimSpace(c.Browser.DirectoryTable) == "" {
		errs = append(errs, errors.New("browser.directory_table is required"))
	}
	if err := c.Timeouts.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Run.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Form.EmailPolicy {
	case EmailMerge, EmailDisable:
	default:
		errs = append(errs, fmt.Errorf("form.email_policy must be %q or %q, got %q", EmailMerge, EmailDisable, c.Form.EmailPolicy))
	}
	return errors.Join(errs...)
}

// Validate checks that every budget is usable.
func (t TimeoutConfig) Validate() error {
	if t.MaxWait <= 0 {
		return errors.New("timeouts.max_wait must be a positive duration")
	}
	if t.PollInterval <= 0 {
		return errors.New("timeouts.poll_interval must be a positive duration")
	}
	if t.LocatorAttempts < 1 {
		return errors.New("timeouts.locator_attempts must be at least 1")
	}
	if t.ConfirmPolls < 1 || t.SuccessPolls < 1 || t.CancelSuccessPolls < 1 {
		return errors.New("timeouts poll counts must be at least 1")
	}
	return nil
}

// Validate checks the run selection.
func (r RunConfig) Validate() error {
	if r.Start < 0 || r.End < 0 {
		return errors.New("run.start and run.end must not be negative")
	}
	switch NormalizeMatchBy(r.MatchBy) {
	case MatchIndex, MatchIdentifier, MatchName:
	default:
		return fmt.Errorf("run.match_by must be one of index, identifier, name; got %q", r.MatchBy)
	}
	return nil
}
