package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/audiolibrelab/keycapture/internal/channel"
	"github.com/audiolibrelab/keycapture/internal/pulse"
	"github.com/spf13/viper"
)

// Sources recorded in InheritanceInfo.
const (
	SourceProfile   = "profile-specific"
	SourceInherited = "inherited"
	SourceDefault   = "default"
	SourceGlobal    = "global"
)

const maxChannels = 9

type GlobalsConfig struct {
	Storage GlobalStorageConfig `mapstructure:"storage" yaml:"storage"`
}

type GlobalStorageConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Database  string `mapstructure:"database" yaml:"database"`
}

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig     `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Timing   TimingConfig  `mapstructure:"timing" yaml:"timing"`
	Report   ReportConfig  `mapstructure:"report" yaml:"report"`
	Channels []string      `mapstructure:"channels" yaml:"channels"`
	Storage  StorageConfig `mapstructure:"storage" yaml:"storage"`
	Panel    PanelConfig   `mapstructure:"panel" yaml:"panel"`

	// Internal field to track inheritance information for config show
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// TimingConfig holds press classification and device loop timing in ms.
type TimingConfig struct {
	DebounceMs       int64 `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	ShortThresholdMs int64 `mapstructure:"short_threshold_ms" yaml:"short_threshold_ms"`
	LongThresholdMs  int64 `mapstructure:"long_threshold_ms" yaml:"long_threshold_ms"`
	PlaybackDelayMs  int64 `mapstructure:"playback_delay_ms" yaml:"playback_delay_ms"`
	LoopDelayMs      int64 `mapstructure:"loop_delay_ms" yaml:"loop_delay_ms"`
	StartupWaitMs    int64 `mapstructure:"startup_wait_ms" yaml:"startup_wait_ms"`
}

// ReportConfig holds the channel report and confirm window timing in ms.
type ReportConfig struct {
	PauseMs       int64 `mapstructure:"pause_ms" yaml:"pause_ms"`
	PulseWidthMs  int64 `mapstructure:"pulse_width_ms" yaml:"pulse_width_ms"`
	SpacingMs     int64 `mapstructure:"spacing_ms" yaml:"spacing_ms"`
	LeadMs        int64 `mapstructure:"lead_ms" yaml:"lead_ms"`
	ConfirmPolls  int   `mapstructure:"confirm_polls" yaml:"confirm_polls"`
	ConfirmPollMs int64 `mapstructure:"confirm_poll_ms" yaml:"confirm_poll_ms"`
}

type StorageConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"` // "file", "sqlite"
	Directory string `mapstructure:"directory" yaml:"directory"`
	Database  string `mapstructure:"database" yaml:"database"`
}

type PanelConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// InheritanceInfo records where each resolved field came from, keyed by its
// dotted YAML path.
type InheritanceInfo struct {
	Profile string
	Fields  map[string]string
}

// Source returns the origin of a field, or "" if it is unknown.
func (i *InheritanceInfo) Source(key string) string {
	if i == nil {
		return ""
	}
	return i.Fields[key]
}

// Keys returns the tracked field paths in sorted order.
func (i *InheritanceInfo) Keys() []string {
	if i == nil {
		return nil
	}
	keys := make([]string, 0, len(i.Fields))
	for k := range i.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var defaultConfig = Config{
	Timing: TimingConfig{
		DebounceMs:       10,
		ShortThresholdMs: 600,
		LongThresholdMs:  1200,
		PlaybackDelayMs:  100,
		LoopDelayMs:      1,
		StartupWaitMs:    5,
	},
	Report: ReportConfig{
		PauseMs:       400,
		PulseWidthMs:  200,
		SpacingMs:     80,
		LeadMs:        20,
		ConfirmPolls:  20,
		ConfirmPollMs: 50,
	},
	Channels: []string{"chnl1.txt", "chnl2.txt", "chnl3.txt", "chnl4.txt"},
	Storage: StorageConfig{
		Backend:   "file",
		Directory: filepath.Join(os.Getenv("HOME"), "KeyCapture"),
		Database:  filepath.Join(os.Getenv("HOME"), "KeyCapture", "keycapture.sqlite"),
	},
	Panel: PanelConfig{
		Listen: ":8080",
	},
}

// Default returns the built-in configuration.
func Default() *Config {
	c := mergeConfigs(nil, nil)
	c.Inheritance.Profile = "default"
	return c
}

// LoadWithProfile loads the named profile from configFile, or the file's
// active profile when profile is empty. A missing file yields the built-in
// defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		if profile != "" && profile != "default" {
			return nil, fmt.Errorf("configuration profile '%s' not found: %s does not exist", profile, configFile)
		}
		selected := Default()
		applyGlobals(selected, nil, newViper(""))
		selected.Storage.Directory = expandPath(selected.Storage.Directory)
		selected.Storage.Database = expandPath(selected.Storage.Database)
		if err := selected.Validate(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		return selected, nil
	}

	v := newViper(configFile)
	rootConfig, err := readRoot(v, configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = v.GetString("active_config")
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		if configName != "default" || len(rootConfig.Configs) > 0 {
			return nil, fmt.Errorf("configuration profile '%s' not found", configName)
		}
	}

	// Merge with default profile if we're not already using it
	var base *Config
	if configName != "default" {
		base = rootConfig.Configs["default"]
	}
	selected := mergeConfigs(base, selectedProfile)
	selected.Inheritance.Profile = configName

	applyGlobals(selected, rootConfig.Globals, v)

	selected.Storage.Directory = expandPath(selected.Storage.Directory)
	selected.Storage.Database = expandPath(selected.Storage.Database)

	if err := selected.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return selected, nil
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	v.SetEnvPrefix("KEYCAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("active_config")
	v.BindEnv("globals.storage.directory")
	v.BindEnv("globals.storage.database")
	return v
}

func readRoot(v *viper.Viper, configFile string) (*RootConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &rootConfig, nil
}

// applyGlobals lets globals.storage (file or KEYCAPTURE_GLOBALS_STORAGE_*
// environment) take priority over every profile.
func applyGlobals(c *Config, globals *GlobalsConfig, v *viper.Viper) {
	dir := v.GetString("globals.storage.directory")
	db := v.GetString("globals.storage.database")
	if globals != nil {
		if dir == "" {
			dir = globals.Storage.Directory
		}
		if db == "" {
			db = globals.Storage.Database
		}
	}
	if dir != "" {
		c.Storage.Directory = dir
		c.Inheritance.Fields["storage.directory"] = SourceGlobal
	}
	if db != "" {
		c.Storage.Database = db
		c.Inheritance.Fields["storage.database"] = SourceGlobal
	}
}

// ValidateConfigurationFormat reads configFile and validates every profile
// in it after inheritance from the default profile.
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := newViper(configFile)
	rootConfig, err := readRoot(v, configFile)
	if err != nil {
		return nil, err
	}

	for name, profile := range rootConfig.Configs {
		if profile == nil {
			return nil, fmt.Errorf("invalid config '%s': empty profile", name)
		}
		var base *Config
		if name != "default" {
			base = rootConfig.Configs["default"]
		}
		if err := mergeConfigs(base, profile).Validate(); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", name, err)
		}
	}

	active := v.GetString("active_config")
	if active != "" && len(rootConfig.Configs) > 0 {
		if _, ok := rootConfig.Configs[active]; !ok {
			return nil, fmt.Errorf("active_config '%s' is not defined in configs", active)
		}
	}
	return rootConfig, nil
}

// ListProfiles returns the profile names defined in configFile, sorted, and
// the active one.
func ListProfiles(configFile string) ([]string, string, error) {
	v := newViper(configFile)
	rootConfig, err := readRoot(v, configFile)
	if err != nil {
		return nil, "", err
	}
	names := make([]string, 0, len(rootConfig.Configs))
	for name := range rootConfig.Configs {
		names = append(names, name)
	}
	sort.Strings(names)

	active := v.GetString("active_config")
	if active == "" {
		active = "default"
	}
	return names, active, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if _, ok := rootConfig.Configs[newActiveConfig]; !ok {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// mergeConfigs resolves every field from the profile, then the base
// profile, then the built-in defaults, recording which one supplied it.
// Channels are taken as a whole list, never merged per entry.
func mergeConfigs(base, profile *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if profile == nil {
		profile = &Config{}
	}

	result := &Config{
		Inheritance: &InheritanceInfo{Fields: make(map[string]string)},
	}
	info := result.Inheritance
	d := defaultConfig

	mergeField(info, "timing.debounce_ms", &result.Timing.DebounceMs, profile.Timing.DebounceMs, base.Timing.DebounceMs, d.Timing.DebounceMs)
	mergeField(info, "timing.short_threshold_ms", &result.Timing.ShortThresholdMs, profile.Timing.ShortThresholdMs, base.Timing.ShortThresholdMs, d.Timing.ShortThresholdMs)
	mergeField(info, "timing.long_threshold_ms", &result.Timing.LongThresholdMs, profile.Timing.LongThresholdMs, base.Timing.LongThresholdMs, d.Timing.LongThresholdMs)
	mergeField(info, "timing.playback_delay_ms", &result.Timing.PlaybackDelayMs, profile.Timing.PlaybackDelayMs, base.Timing.PlaybackDelayMs, d.Timing.PlaybackDelayMs)
	mergeField(info, "timing.loop_delay_ms", &result.Timing.LoopDelayMs, profile.Timing.LoopDelayMs, base.Timing.LoopDelayMs, d.Timing.LoopDelayMs)
	mergeField(info, "timing.startup_wait_ms", &result.Timing.StartupWaitMs, profile.Timing.StartupWaitMs, base.Timing.StartupWaitMs, d.Timing.StartupWaitMs)

	mergeField(info, "report.pause_ms", &result.Report.PauseMs, profile.Report.PauseMs, base.Report.PauseMs, d.Report.PauseMs)
	mergeField(info, "report.pulse_width_ms", &result.Report.PulseWidthMs, profile.Report.PulseWidthMs, base.Report.PulseWidthMs, d.Report.PulseWidthMs)
	mergeField(info, "report.spacing_ms", &result.Report.SpacingMs, profile.Report.SpacingMs, base.Report.SpacingMs, d.Report.SpacingMs)
	mergeField(info, "report.lead_ms", &result.Report.LeadMs, profile.Report.LeadMs, base.Report.LeadMs, d.Report.LeadMs)
	mergeField(info, "report.confirm_polls", &result.Report.ConfirmPolls, profile.Report.ConfirmPolls, base.Report.ConfirmPolls, d.Report.ConfirmPolls)
	mergeField(info, "report.confirm_poll_ms", &result.Report.ConfirmPollMs, profile.Report.ConfirmPollMs, base.Report.ConfirmPollMs, d.Report.ConfirmPollMs)

	mergeField(info, "storage.backend", &result.Storage.Backend, profile.Storage.Backend, base.Storage.Backend, d.Storage.Backend)
	mergeField(info, "storage.directory", &result.Storage.Directory, profile.Storage.Directory, base.Storage.Directory, d.Storage.Directory)
	mergeField(info, "storage.database", &result.Storage.Database, profile.Storage.Database, base.Storage.Database, d.Storage.Database)

	mergeField(info, "panel.listen", &result.Panel.Listen, profile.Panel.Listen, base.Panel.Listen, d.Panel.Listen)

	switch {
	case len(profile.Channels) > 0:
		result.Channels = append([]string(nil), profile.Channels...)
		info.Fields["channels"] = SourceProfile
	case len(base.Channels) > 0:
		result.Channels = append([]string(nil), base.Channels...)
		info.Fields["channels"] = SourceInherited
	default:
		result.Channels = append([]string(nil), d.Channels...)
		info.Fields["channels"] = SourceDefault
	}

	return result
}

func mergeField[T comparable](info *InheritanceInfo, key string, dst *T, profile, base, def T) {
	var zero T
	switch {
	case profile != zero:
		*dst = profile
		info.Fields[key] = SourceProfile
	case base != zero:
		*dst = base
		info.Fields[key] = SourceInherited
	default:
		*dst = def
		info.Fields[key] = SourceDefault
	}
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	t := c.Timing
	for _, f := range []struct {
		name  string
		value int64
	}{
		{"timing.debounce_ms", t.DebounceMs},
		{"timing.short_threshold_ms", t.ShortThresholdMs},
		{"timing.long_threshold_ms", t.LongThresholdMs},
		{"timing.playback_delay_ms", t.PlaybackDelayMs},
		{"timing.loop_delay_ms", t.LoopDelayMs},
		{"timing.startup_wait_ms", t.StartupWaitMs},
		{"report.pause_ms", c.Report.PauseMs},
		{"report.pulse_width_ms", c.Report.PulseWidthMs},
		{"report.spacing_ms", c.Report.SpacingMs},
		{"report.lead_ms", c.Report.LeadMs},
		{"report.confirm_poll_ms", c.Report.ConfirmPollMs},
	} {
		if f.value <= 0 {
			return fmt.Errorf("%s must be > 0, got: %d", f.name, f.value)
		}
	}
	if c.Report.ConfirmPolls <= 0 {
		return fmt.Errorf("report.confirm_polls must be > 0, got: %d", c.Report.ConfirmPolls)
	}
	if t.ShortThresholdMs > t.LongThresholdMs {
		return fmt.Errorf("timing.short_threshold_ms (%d) must not exceed timing.long_threshold_ms (%d)",
			t.ShortThresholdMs, t.LongThresholdMs)
	}
	if t.DebounceMs >= t.ShortThresholdMs {
		return fmt.Errorf("timing.debounce_ms (%d) must be below timing.short_threshold_ms (%d)",
			t.DebounceMs, t.ShortThresholdMs)
	}

	if err := validateChannels(c.Channels); err != nil {
		return err
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "", "file":
		if c.Storage.Directory == "" {
			return fmt.Errorf("storage.directory is required for the file backend")
		}
	case "sqlite":
		if c.Storage.Database == "" {
			return fmt.Errorf("storage.database is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'file' or 'sqlite', got: %s", c.Storage.Backend)
	}

	if c.Panel.Listen == "" {
		return fmt.Errorf("panel.listen is required")
	}
	return nil
}

func validateChannels(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("channels cannot be empty")
	}
	if len(names) > maxChannels {
		return fmt.Errorf("at most %d channels are supported, got %d", maxChannels, len(names))
	}

	seen := make(map[string]bool)
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("channels[%d]: name is required", i)
		}
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return fmt.Errorf("channels[%d]: name must not contain a path, got: %s", i, name)
		}
		if seen[name] {
			return fmt.Errorf("channels[%d]: duplicate name '%s'", i, name)
		}
		seen[name] = true
	}
	return nil
}

// Thresholds returns the press classification timing.
func (c *Config) Thresholds() pulse.Thresholds {
	return pulse.Thresholds{
		Debounce: c.Timing.DebounceMs,
		Short:    c.Timing.ShortThresholdMs,
		Long:     c.Timing.LongThresholdMs,
	}
}

// ReportTiming returns the channel report timing.
func (c *Config) ReportTiming() channel.Timing {
	return channel.Timing{
		Pause:        c.Report.PauseMs,
		PulseWidth:   c.Report.PulseWidthMs,
		Spacing:      c.Report.SpacingMs,
		Lead:         c.Report.LeadMs,
		ConfirmPolls: c.Report.ConfirmPolls,
		ConfirmPoll:  c.Report.ConfirmPollMs,
	}
}

// ChannelName returns the stream name of channel ch (1-based), or "" when
// ch is out of range.
func (c *Config) ChannelName(ch int) string {
	if ch < 1 || ch > len(c.Channels) {
		return ""
	}
	return c.Channels[ch-1]
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
