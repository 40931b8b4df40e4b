// Package config loads baybook settings from an optional .env file, an
// optional YAML file and BAYBOOK_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/baybook/internal/booking"
	"github.com/example/baybook/internal/secret"
)

const DefaultPath = "baybook.yaml"

type Config struct {
	Portal            Portal   `yaml:"portal"`
	PreferGroundLevel bool     `yaml:"prefer_ground_level"`
	Timing            Timing   `yaml:"timing"`
	Browser           Browser  `yaml:"browser"`
	Schedule          Schedule `yaml:"schedule"`
	DatabaseURL       string   `yaml:"database_url"`
	Redis             Redis    `yaml:"redis"`
	Notify            Notify   `yaml:"notify"`
	Web               Web      `yaml:"web"`
	Keys              Keys     `yaml:"keys"`
	Log               Log      `yaml:"log"`
}

type Portal struct {
	BaseURL      string `yaml:"base_url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"` // plain or "sealed:<token>"
	Carpark      string `yaml:"carpark"`
	VehiclePlate string `yaml:"vehicle_plate"`
}

type Timing struct {
	JitterMin         time.Duration `yaml:"jitter_min"`
	JitterMax         time.Duration `yaml:"jitter_max"`
	SummaryTimeout    time.Duration `yaml:"summary_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	RetryBudget       int           `yaml:"retry_budget"`
}

type Browser struct {
	Headless  bool   `yaml:"headless"`
	ExecPath  string `yaml:"exec_path"`
	UserAgent string `yaml:"user_agent"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
}

// Schedule is when the server starts a run: weekdays 0 (Sunday) to 6, at hour:minute.
type Schedule struct {
	Weekdays []int  `yaml:"weekdays"`
	Hour     int    `yaml:"hour"`
	Minute   int    `yaml:"minute"`
	Timezone string `yaml:"timezone"`
}

type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type Notify struct {
	Telegram Telegram `yaml:"telegram"`
	SendGrid SendGrid `yaml:"sendgrid"`
	Twilio   Twilio   `yaml:"twilio"`
}

type Telegram struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type SendGrid struct {
	APIKey string `yaml:"api_key"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
}

type Twilio struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
	To         string `yaml:"to"`
}

type Web struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Keys are base64, or paths to files holding base64.
type Keys struct {
	Hash  string `yaml:"hash"`
	Block string `yaml:"block"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the settings used against the live portal.
func Default() Config {
	return Config{
		PreferGroundLevel: true,
		Timing: Timing{
			JitterMin:         booking.DefaultJitterMin,
			JitterMax:         booking.DefaultJitterMax,
			SummaryTimeout:    booking.DefaultSummaryTimeout,
			NavigationTimeout: 10 * time.Minute,
			RetryBudget:       booking.DefaultRetryBudget,
		},
		Browser: Browser{
			Headless:  true,
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36",
			Width:     1024,
			Height:    768,
		},
		Schedule: Schedule{Weekdays: []int{1, 2, 3, 4, 5}, Hour: 0, Minute: 1},
		Redis:    Redis{LockTTL: 30 * time.Minute},
		Web:      Web{ListenAddr: ":8080"},
		Log:      Log{Level: "info"},
	}
}

// Load reads .env (if present), then path (if present; an explicitly named
// missing file is an error), then the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(dst *string, k string) {
		if v := os.Getenv(k); v != "" {
			*dst = v
		}
	}
	str(&c.Portal.BaseURL, "BAYBOOK_PORTAL_URL")
	str(&c.Portal.Username, "BAYBOOK_USERNAME")
	str(&c.Portal.Password, "BAYBOOK_PASSWORD")
	str(&c.Portal.Carpark, "BAYBOOK_CARPARK")
	str(&c.Portal.VehiclePlate, "BAYBOOK_VEHICLE_PLATE")
	str(&c.Browser.ExecPath, "BAYBOOK_CHROME_PATH")
	str(&c.Browser.UserAgent, "BAYBOOK_USER_AGENT")
	str(&c.Schedule.Timezone, "BAYBOOK_TIMEZONE")
	str(&c.DatabaseURL, "BAYBOOK_DATABASE_URL")
	str(&c.Redis.Addr, "BAYBOOK_REDIS_ADDR")
	str(&c.Redis.Password, "BAYBOOK_REDIS_PASSWORD")
	str(&c.Notify.Telegram.Token, "BAYBOOK_TELEGRAM_TOKEN")
	str(&c.Notify.SendGrid.APIKey, "BAYBOOK_SENDGRID_API_KEY")
	str(&c.Notify.SendGrid.From, "BAYBOOK_SENDGRID_FROM")
	str(&c.Notify.SendGrid.To, "BAYBOOK_SENDGRID_TO")
	str(&c.Notify.Twilio.AccountSID, "BAYBOOK_TWILIO_ACCOUNT_SID")
	str(&c.Notify.Twilio.AuthToken, "BAYBOOK_TWILIO_AUTH_TOKEN")
	str(&c.Notify.Twilio.From, "BAYBOOK_TWILIO_FROM")
	str(&c.Notify.Twilio.To, "BAYBOOK_TWILIO_TO")
	str(&c.Web.ListenAddr, "BAYBOOK_LISTEN_ADDR")
	str(&c.Keys.Hash, "BAYBOOK_COOKIE_HASH_KEY")
	str(&c.Keys.Block, "BAYBOOK_COOKIE_BLOCK_KEY")
	str(&c.Log.Level, "BAYBOOK_LOG_LEVEL")

	var errs []error
	boolean := func(dst *bool, k string) {
		if v := os.Getenv(k); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = b
		}
	}
	integer := func(dst *int, k string) {
		if v := os.Getenv(k); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = n
		}
	}
	duration := func(dst *time.Duration, k string) {
		if v := os.Getenv(k); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = d
		}
	}
	boolean(&c.PreferGroundLevel, "BAYBOOK_PREFER_GROUND_LEVEL")
	boolean(&c.Browser.Headless, "BAYBOOK_HEADLESS")
	boolean(&c.Log.Development, "BAYBOOK_LOG_DEVELOPMENT")
	integer(&c.Timing.RetryBudget, "BAYBOOK_RETRY_BUDGET")
	integer(&c.Schedule.Hour, "BAYBOOK_SCHEDULE_HOUR")
	integer(&c.Schedule.Minute, "BAYBOOK_SCHEDULE_MINUTE")
	integer(&c.Redis.DB, "BAYBOOK_REDIS_DB")
	duration(&c.Timing.JitterMin, "BAYBOOK_JITTER_MIN")
	duration(&c.Timing.JitterMax, "BAYBOOK_JITTER_MAX")
	duration(&c.Timing.SummaryTimeout, "BAYBOOK_SUMMARY_TIMEOUT")
	duration(&c.Timing.NavigationTimeout, "BAYBOOK_NAVIGATION_TIMEOUT")
	duration(&c.Redis.LockTTL, "BAYBOOK_LOCK_TTL")

	if v := os.Getenv("BAYBOOK_TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("BAYBOOK_TELEGRAM_CHAT_ID: %w", err))
		} else {
			c.Notify.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("BAYBOOK_SCHEDULE_WEEKDAYS"); v != "" {
		days, err := ParseWeekdays(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BAYBOOK_SCHEDULE_WEEKDAYS: %w", err))
		} else {
			c.Schedule.Weekdays = days
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseWeekdays parses a comma separated list such as "1,2,3".
func ParseWeekdays(s string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

// Validate reports every missing or out of range setting needed for a run.
func (c Config) Validate() error {
	var problems []string
	if c.Portal.BaseURL == "" {
		problems = append(problems, "portal.base_url is required")
	}
	if c.Portal.Username == "" {
		problems = append(problems, "portal.username is required")
	}
	if c.Portal.Password == "" {
		problems = append(problems, "portal.password is required")
	}
	if c.Portal.Carpark == "" {
		problems = append(problems, "portal.carpark is required")
	}
	if c.Portal.VehiclePlate == "" {
		problems = append(problems, "portal.vehicle_plate is required")
	}
	if c.Timing.JitterMin < 0 || c.Timing.JitterMax < c.Timing.JitterMin {
		problems = append(problems, "timing.jitter_min must be >= 0 and <= timing.jitter_max")
	}
	if c.Timing.RetryBudget < 1 {
		problems = append(problems, "timing.retry_budget must be at least 1")
	}
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		problems = append(problems, "schedule.hour must be 0-23")
	}
	if c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		problems = append(problems, "schedule.minute must be 0-59")
	}
	for _, d := range c.Schedule.Weekdays {
		if d < 0 || d > 6 {
			problems = append(problems, fmt.Sprintf("schedule.weekdays: %d is not 0-6", d))
		}
	}
	if secret.IsSealed(c.Portal.Password) && (c.Keys.Hash == "" || c.Keys.Block == "") {
		problems = append(problems, "portal.password is sealed but keys.hash/keys.block are not set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateServer is Validate plus what the server needs on top.
func (c Config) ValidateServer() error {
	var problems []string
	if err := c.Validate(); err != nil {
		problems = append(problems, strings.TrimPrefix(err.Error(), "config: "))
	}
	if c.DatabaseURL == "" {
		problems = append(problems, "database_url is required")
	}
	if c.Keys.Hash == "" || c.Keys.Block == "" {
		problems = append(problems, "keys.hash and keys.block are required")
	}
	if len(c.Schedule.Weekdays) == 0 {
		problems = append(problems, "schedule.weekdays is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) LoginURL() string {
	return strings.TrimRight(c.Portal.BaseURL, "/") + "/Account/Login?ReturnUrl=%2F"
}

func (c Config) BookURL() string {
	return strings.TrimRight(c.Portal.BaseURL, "/") + "/BookNow"
}

// Sealer returns nil without error when no keys are configured.
func (c Config) Sealer() (*secret.Sealer, error) {
	if c.Keys.Hash == "" && c.Keys.Block == "" {
		return nil, nil
	}
	hash, block, err := c.DecodeKeys()
	if err != nil {
		return nil, err
	}
	return secret.NewSealer(hash, block)
}

func (c Config) DecodeKeys() (hash, block []byte, err error) {
	hash, err = secret.DecodeKey(c.Keys.Hash)
	if err != nil {
		return nil, nil, fmt.Errorf("config: keys.hash: %w", err)
	}
	block, err = secret.DecodeKey(c.Keys.Block)
	if err != nil {
		return nil, nil, fmt.Errorf("config: keys.block: %w", err)
	}
	return hash, block, nil
}

// Location resolves Schedule.Timezone, defaulting to the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: schedule.timezone: %w", err)
	}
	return loc, nil
}

// BookingConfig opens the portal password and builds the run configuration.
func (c Config) BookingConfig() (booking.Config, error) {
	sealer, err := c.Sealer()
	if err != nil {
		return booking.Config{}, err
	}
	password, err := secret.Open(sealer, c.Portal.Password)
	if err != nil {
		return booking.Config{}, err
	}
	return booking.Config{
		LoginURL:          c.LoginURL(),
		BookURL:           c.BookURL(),
		Credentials:       booking.Credentials{Username: c.Portal.Username, Password: password},
		Carpark:           c.Portal.Carpark,
		VehiclePlate:      c.Portal.VehiclePlate,
		PreferGroundLevel: c.PreferGroundLevel,
		RetryBudget:       c.Timing.RetryBudget,
		SummaryTimeout:    c.Timing.SummaryTimeout,
		Selectors:         booking.DefaultSelectors(),
	}, nil
}
