package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/moonapp-tools/mooncoin-cli/internal/pace"
)

const (
	envPrefix          = "MOONCOIN_"
	defaultBaseURL     = "https://moonapp-api.mooncoin.co/api"
	defaultRefCode     = "717163"
	defaultSchedule    = "@every 24h"
	defaultEnvFileName = ".env"
)

type GlobalFlags struct {
	ConfigPath        string
	EnvFile           string
	JSON              bool
	Plain             bool
	Select            string
	ResultsOnly       bool
	Timeout           string
	Retries           int
	BaseURL           string
	AccountsPath      string
	TokensPath        string
	WalletsPath       string
	Proxy             string
	UserAgent         string
	RequestsPerSecond float64
	NoDelay           bool
	NoJournal         bool
	LogLevel          string
}

// BindFlags registers the global flags on fs. Sentinel defaults (-1) mark
// numeric flags that were not given.
func BindFlags(fs *pflag.FlagSet, f *GlobalFlags) {
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	fs.StringVar(&f.EnvFile, "env-file", "", "Path to a .env file (default ./.env when present)")
	fs.BoolVar(&f.JSON, "json", false, "Output JSON (default)")
	fs.BoolVar(&f.Plain, "plain", false, "Output plain text")
	fs.StringVar(&f.Select, "select", "", "Select fields from data payload (comma-separated)")
	fs.BoolVar(&f.ResultsOnly, "results-only", false, "Output only data payload")
	fs.StringVar(&f.Timeout, "timeout", "", "Request timeout (e.g. 10s)")
	fs.IntVar(&f.Retries, "retries", -1, "Retries for transport and 5xx failures")
	fs.StringVar(&f.BaseURL, "base-url", "", "API base URL")
	fs.StringVar(&f.AccountsPath, "accounts", "", "Path to the account store (JSON array)")
	fs.StringVar(&f.TokensPath, "tokens", "", "Path to the token store")
	fs.StringVar(&f.WalletsPath, "wallets", "", "Path to the wallet store")
	fs.StringVar(&f.Proxy, "proxy", "", "Proxy URL (http, https, socks5)")
	fs.StringVar(&f.UserAgent, "user-agent", "", "User-Agent header, or \"random\"")
	fs.Float64Var(&f.RequestsPerSecond, "rps", -1, "Client-side request ceiling per second (0 = unlimited)")
	fs.BoolVar(&f.NoDelay, "no-delay", false, "Disable pacing delays between calls")
	fs.BoolVar(&f.NoJournal, "no-journal", false, "Do not record outcomes in the local journal")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
}

type Settings struct {
	OutputMode        string
	SelectFields      []string
	ResultsOnly       bool
	Timeout           time.Duration
	Retries           int
	BaseURL           string
	RefCode           string
	AccountsPath      string
	TokensPath        string
	WalletsPath       string
	JournalEnabled    bool
	JournalPath       string
	LockPath          string
	RequestsPerSecond float64
	Proxy             string
	UserAgent         string
	Delays            pace.Delays
	NoDelay           bool
	Schedule          string
	LogLevel          string
}

type fileConfig struct {
	BaseURL           string   `yaml:"base_url"`
	RefCode           string   `yaml:"ref_code"`
	Output            string   `yaml:"output"`
	LogLevel          string   `yaml:"log_level"`
	Timeout           string   `yaml:"timeout"`
	Retries           *int     `yaml:"retries"`
	RequestsPerSecond *float64 `yaml:"requests_per_second"`
	Proxy             string   `yaml:"proxy"`
	UserAgent         string   `yaml:"user_agent"`
	AccountsPath      string   `yaml:"accounts_path"`
	TokensPath        string   `yaml:"tokens_path"`
	WalletsPath       string   `yaml:"wallets_path"`
	JournalPath       string   `yaml:"journal_path"`
	LockPath          string   `yaml:"lock_path"`
	Journal           *bool    `yaml:"journal"`
	Schedule          string   `yaml:"schedule"`
	NoDelay           *bool    `yaml:"no_delay"`
	Delays            struct {
		Account      string `yaml:"account"`
		Task         string `yaml:"task"`
		SpinCooldown string `yaml:"spin_cooldown"`
		SpinSettle   string `yaml:"spin_settle"`
		Menu         string `yaml:"menu"`
	} `yaml:"delays"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	lookup, err := envLookup(flags.EnvFile)
	if err != nil {
		return Settings{}, err
	}
	if err := applyEnv(lookup, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.RequestsPerSecond < 0 {
		settings.RequestsPerSecond = 0
	}
	if strings.TrimSpace(settings.Schedule) == "" {
		settings.Schedule = defaultSchedule
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:     "json",
		Timeout:        15 * time.Second,
		Retries:        0,
		BaseURL:        defaultBaseURL,
		RefCode:        defaultRefCode,
		AccountsPath:   "accounts.json",
		TokensPath:     "token.json",
		WalletsPath:    "wallets.json",
		JournalEnabled: true,
		JournalPath:    filepath.Join(dataDir, "journal.db"),
		LockPath:       filepath.Join(dataDir, "mooncoin.lock"),
		Delays:         pace.DefaultDelays(),
		Schedule:       defaultSchedule,
		LogLevel:       "info",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "mooncoin", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "mooncoin"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.BaseURL != "" {
		settings.BaseURL = cfg.BaseURL
	}
	if cfg.RefCode != "" {
		settings.RefCode = cfg.RefCode
	}
	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = cfg.LogLevel
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.RequestsPerSecond != nil {
		settings.RequestsPerSecond = *cfg.RequestsPerSecond
	}
	if cfg.Proxy != "" {
		settings.Proxy = cfg.Proxy
	}
	if cfg.UserAgent != "" {
		settings.UserAgent = cfg.UserAgent
	}
	if cfg.AccountsPath != "" {
		settings.AccountsPath = cfg.AccountsPath
	}
	if cfg.TokensPath != "" {
		settings.TokensPath = cfg.TokensPath
	}
	if cfg.WalletsPath != "" {
		settings.WalletsPath = cfg.WalletsPath
	}
	if cfg.JournalPath != "" {
		settings.JournalPath = cfg.JournalPath
	}
	if cfg.LockPath != "" {
		settings.LockPath = cfg.LockPath
	}
	if cfg.Journal != nil {
		settings.JournalEnabled = *cfg.Journal
	}
	if cfg.Schedule != "" {
		settings.Schedule = cfg.Schedule
	}
	if cfg.NoDelay != nil {
		settings.NoDelay = *cfg.NoDelay
	}
	delays := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"delays.account", cfg.Delays.Account, &settings.Delays.Account},
		{"delays.task", cfg.Delays.Task, &settings.Delays.Task},
		{"delays.spin_cooldown", cfg.Delays.SpinCooldown, &settings.Delays.SpinCooldown},
		{"delays.spin_settle", cfg.Delays.SpinSettle, &settings.Delays.SpinSettle},
		{"delays.menu", cfg.Delays.Menu, &settings.Delays.Menu},
	}
	for _, d := range delays {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return nil
}

// envLookup resolves variables from the process environment first and the
// .env file second, without mutating the process environment.
func envLookup(envFile string) (func(string) string, error) {
	path := strings.TrimSpace(envFile)
	explicit := path != ""
	if !explicit {
		path = defaultEnvFileName
	}
	fileVars, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			fileVars = nil
		} else {
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return fileVars[key]
	}, nil
}

func applyEnv(getenv func(string) string, settings *Settings) error {
	get := func(name string) string { return strings.TrimSpace(getenv(envPrefix + name)) }

	if v := get("OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := get("BASE_URL"); v != "" {
		settings.BaseURL = v
	}
	if v := get("REF_CODE"); v != "" {
		settings.RefCode = v
	}
	if v := get("LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := get("TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := get("RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := get("REQUESTS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.RequestsPerSecond = f
		}
	}
	if v := get("PROXY"); v != "" {
		settings.Proxy = v
	}
	if v := get("USER_AGENT"); v != "" {
		settings.UserAgent = v
	}
	if v := get("ACCOUNTS_PATH"); v != "" {
		settings.AccountsPath = v
	}
	if v := get("TOKENS_PATH"); v != "" {
		settings.TokensPath = v
	}
	if v := get("WALLETS_PATH"); v != "" {
		settings.WalletsPath = v
	}
	if v := get("JOURNAL_PATH"); v != "" {
		settings.JournalPath = v
	}
	if v := get("LOCK_PATH"); v != "" {
		settings.LockPath = v
	}
	if v := get("NO_JOURNAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.JournalEnabled = !b
		}
	}
	if v := get("SCHEDULE"); v != "" {
		settings.Schedule = v
	}
	if v := get("NO_DELAY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.NoDelay = b
		}
	}
	for name, dst := range map[string]*time.Duration{
		"DELAY_ACCOUNT":       &settings.Delays.Account,
		"DELAY_TASK":          &settings.Delays.Task,
		"DELAY_SPIN_COOLDOWN": &settings.Delays.SpinCooldown,
		"DELAY_SPIN_SETTLE":   &settings.Delays.SpinSettle,
		"DELAY_MENU":          &settings.Delays.Menu,
	} {
		v := get(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		parts := strings.Split(flags.Select, ",")
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			f := strings.TrimSpace(part)
			if f != "" {
				fields = append(fields, f)
			}
		}
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.RequestsPerSecond >= 0 {
		settings.RequestsPerSecond = flags.RequestsPerSecond
	}
	if flags.BaseURL != "" {
		settings.BaseURL = flags.BaseURL
	}
	if flags.AccountsPath != "" {
		settings.AccountsPath = flags.AccountsPath
	}
	if flags.TokensPath != "" {
		settings.TokensPath = flags.TokensPath
	}
	if flags.WalletsPath != "" {
		settings.WalletsPath = flags.WalletsPath
	}
	if flags.Proxy != "" {
		settings.Proxy = flags.Proxy
	}
	if flags.UserAgent != "" {
		settings.UserAgent = flags.UserAgent
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.NoDelay {
		settings.NoDelay = true
	}
	if flags.NoJournal {
		settings.JournalEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
