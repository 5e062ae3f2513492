package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/xeptore/tdl/redact"
)

const (
	EnvAPIClientID     = "TDL_API_CLIENT_ID"
	EnvAPIClientSecret = "TDL_API_CLIENT_SECRET" //nolint:gosec
	EnvStreamingToken  = "TDL_STREAMING_TOKEN"   //nolint:gosec

	DefaultFilename = "config.yaml"
)

type Config struct {
	Log   Log   `yaml:"log"`
	Tidal Tidal `yaml:"tidal"`
	Store Store `yaml:"store"`
	Muxer Muxer `yaml:"muxer"`
}

func (c *Config) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Dict("log", c.Log.ToDict()).
		Dict("tidal", c.Tidal.ToDict()).
		Dict("store", c.Store.ToDict()).
		Dict("muxer", c.Muxer.ToDict())
}

func (c *Config) setDefaults() {
	c.Log.setDefaults()
	c.Tidal.setDefaults()
	c.Store.setDefaults()
	c.Muxer.setDefaults()
}

func (c *Config) validate() error {
	if err := c.Log.validate(); nil != err {
		return fmt.Errorf("log config validation failed: %v", err)
	}

	if err := c.Tidal.validate(); nil != err {
		return fmt.Errorf("tidal config validation failed: %v", err)
	}

	if err := c.Store.validate(); nil != err {
		return fmt.Errorf("store config validation failed: %v", err)
	}

	if err := c.Muxer.validate(); nil != err {
		return fmt.Errorf("muxer config validation failed: %v", err)
	}

	return nil
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Log) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("level", c.Level).
		Str("format", c.Format)
}

func (c *Log) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}

	if c.Format == "" {
		c.Format = "pretty"
	}
}

func (c *Log) validate() error {
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}, c.Level) {
		return fmt.Errorf(
			"level must be one of: trace, debug, info, warn, error, fatal, panic, got: %s",
			c.Level,
		)
	}

	if !slices.Contains([]string{"json", "pretty"}, c.Format) {
		return fmt.Errorf("format must be 'json' or 'pretty', got: %s", c.Format)
	}

	return nil
}

// Credentials are never read from the config file.
type Credentials struct {
	APIClientID     string `yaml:"-"`
	APIClientSecret string `yaml:"-"`
	StreamingToken  string `yaml:"-"`
}

func (c *Credentials) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("api_client_id", redactOrEmpty(c.APIClientID)).
		Str("api_client_secret", redactOrEmpty(c.APIClientSecret)).
		Str("streaming_token", redactOrEmpty(c.StreamingToken))
}

func (c *Credentials) validate() error {
	if c.APIClientID == "" {
		return fmt.Errorf("make sure the %s environment variable is set", EnvAPIClientID)
	}

	if c.APIClientSecret == "" {
		return fmt.Errorf("make sure the %s environment variable is set", EnvAPIClientSecret)
	}

	return nil
}

func redactOrEmpty(s string) string {
	return lo.Ternary(len(s) == 0, "", redact.String(s))
}

type Tidal struct {
	Credentials Credentials   `yaml:"-"`
	CountryCode string        `yaml:"country_code"`
	AuthURL     string        `yaml:"auth_url"`
	APIURL      string        `yaml:"api_url"`
	PlaybackURL string        `yaml:"playback_url"`
	UserAgent   string        `yaml:"user_agent"`
	RateLimit   TidalRate     `yaml:"rate_limit"`
	Timeouts    TidalTimeouts `yaml:"timeouts"`
	Proxy       Proxy         `yaml:"proxy"`
}

func (c *Tidal) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Dict("credentials", c.Credentials.ToDict()).
		Str("country_code", c.CountryCode).
		Str("auth_url", c.AuthURL).
		Str("api_url", c.APIURL).
		Str("playback_url", c.PlaybackURL).
		Str("user_agent", c.UserAgent).
		Dict("rate_limit", c.RateLimit.ToDict()).
		Dict("timeouts", c.Timeouts.ToDict()).
		Dict("proxy", c.Proxy.ToDict())
}

func (c *Tidal) setDefaults() {
	if c.CountryCode == "" {
		c.CountryCode = "US"
	}

	if c.AuthURL == "" {
		c.AuthURL = "https://auth.tidal.com/v1/oauth2/token"
	}

	if c.APIURL == "" {
		c.APIURL = "https://openapi.tidal.com/v2"
	}

	if c.PlaybackURL == "" {
		c.PlaybackURL = "https://tidal.com/v1"
	}

	if c.UserAgent == "" {
		c.UserAgent = "tdl/1.0 (personal library archiver; please do not block me)"
	}

	c.RateLimit.setDefaults()
	c.Timeouts.setDefaults()
}

func (c *Tidal) validate() error {
	if err := c.Credentials.validate(); nil != err {
		return fmt.Errorf("credentials validation failed: %v", err)
	}

	if len(c.CountryCode) != 2 {
		return fmt.Errorf("country_code must be a two letter code, got: %q", c.CountryCode)
	}

	for name, v := range map[string]string{
		"auth_url":     c.AuthURL,
		"api_url":      c.APIURL,
		"playback_url": c.PlaybackURL,
	} {
		if u, err := url.Parse(v); nil != err {
			return fmt.Errorf("%s is not a valid URL: %v", name, err)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s must be an http(s) URL, got: %s", name, v)
		}
	}

	if strings.TrimSpace(c.UserAgent) == "" {
		return errors.New("user_agent must not be blank")
	}

	if err := c.RateLimit.validate(); nil != err {
		return fmt.Errorf("rate_limit config validation failed: %v", err)
	}

	if err := c.Timeouts.validate(); nil != err {
		return fmt.Errorf("timeouts config validation failed: %v", err)
	}

	if err := c.Proxy.validate(); nil != err {
		return fmt.Errorf("proxy config validation failed: %v", err)
	}

	return nil
}

// TidalRate limits upstream requests. Zero falls back to the default rate and a negative rate disables limiting.
type TidalRate struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

func (c *TidalRate) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Float64("requests_per_second", c.RequestsPerSecond).
		Int("burst", c.Burst)
}

func (c *TidalRate) setDefaults() {
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 4
	}

	if c.Burst == 0 {
		c.Burst = 2
	}
}

func (c *TidalRate) validate() error {
	if c.Burst < 0 {
		return errors.New("burst must not be negative")
	}

	return nil
}

// TidalTimeouts are in seconds. Zero falls back to the default.
type TidalTimeouts struct {
	Auth     int `yaml:"auth"`
	API      int `yaml:"api"`
	Playback int `yaml:"playback"`
}

func (c *TidalTimeouts) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Int("auth", c.Auth).
		Int("api", c.API).
		Int("playback", c.Playback)
}

func (c *TidalTimeouts) setDefaults() {
	if c.Auth == 0 {
		c.Auth = 5
	}

	if c.API == 0 {
		c.API = 10
	}

	if c.Playback == 0 {
		c.Playback = 10
	}
}

func (c *TidalTimeouts) validate() error {
	if c.Auth < 0 {
		return errors.New("auth must not be negative")
	}

	if c.API < 0 {
		return errors.New("api must not be negative")
	}

	if c.Playback < 0 {
		return errors.New("playback must not be negative")
	}

	return nil
}

type Proxy struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func (c *Proxy) Enabled() bool {
	return len(c.Host) > 0 && c.Port > 0
}

func (c *Proxy) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("host", c.Host).
		Int("port", c.Port).
		Str("username", c.Username).
		Str("password", redactOrEmpty(c.Password))
}

func (c *Proxy) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got: %d", c.Port)
	}

	if len(c.Host) > 0 && c.Port == 0 {
		return errors.New("port is required when host is set")
	}

	return nil
}

type Store struct {
	Dir       string `yaml:"dir"`
	TempDir   string `yaml:"temp_dir"`
	Overwrite bool   `yaml:"overwrite"`
	KeepTemp  bool   `yaml:"keep_temp"`
}

func (c *Store) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("dir", c.Dir).
		Str("temp_dir", c.TempDir).
		Bool("overwrite", c.Overwrite).
		Bool("keep_temp", c.KeepTemp)
}

func (c *Store) setDefaults() {
	if c.Dir == "" {
		c.Dir = "./music"
	}

	if c.TempDir == "" {
		c.TempDir = filepath.Join(os.TempDir(), "tdl")
	}
}

func (c *Store) validate() error {
	if filepath.Clean(c.Dir) == filepath.Clean(c.TempDir) {
		return errors.New("dir and temp_dir must be different directories")
	}

	if i, err := os.Stat(c.Dir); nil != err {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to stat dir: %v", err)
		}
	} else if !i.IsDir() {
		return errors.New("dir must be a directory")
	}

	return nil
}

type Muxer struct {
	FFmpegPath        string `yaml:"ffmpeg_path"`
	ProtocolWhitelist string `yaml:"protocol_whitelist"`
}

func (c *Muxer) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("ffmpeg_path", c.FFmpegPath).
		Str("protocol_whitelist", c.ProtocolWhitelist)
}

func (c *Muxer) setDefaults() {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}

	if c.ProtocolWhitelist == "" {
		c.ProtocolWhitelist = "fd,file,pipe,https,tcp,tls"
	}
}

func (c *Muxer) validate() error {
	if strings.ContainsAny(c.ProtocolWhitelist, " \t") {
		return fmt.Errorf("protocol_whitelist must be a comma separated list without spaces, got: %q", c.ProtocolWhitelist)
	}

	return nil
}

// Load reads filename (config.yaml when empty) and fills credentials from the environment.
// A missing file is not an error: defaults apply.
func Load(filename string) (*Config, error) {
	filename = lo.Ternary(len(filename) > 0, filename, DefaultFilename)

	var conf Config
	data, err := os.ReadFile(filename)
	if nil != err {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %v", filename, err)
		}
	} else if err := yaml.Unmarshal(data, &conf); nil != err {
		return nil, fmt.Errorf("failed to parse config file %s: %v", filename, err)
	}

	conf.Tidal.Credentials = Credentials{
		APIClientID:     os.Getenv(EnvAPIClientID),
		APIClientSecret: os.Getenv(EnvAPIClientSecret),
		StreamingToken:  os.Getenv(EnvStreamingToken),
	}
	conf.setDefaults()

	if err := conf.validate(); nil != err {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	return &conf, nil
}
