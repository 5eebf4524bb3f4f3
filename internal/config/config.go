// Package config provides the configuration of an upload run.
//
// Values come from, in increasing precedence: struct tag defaults, an
// optional YAML profile, environment variables and command-line flags.
// Validation runs before any I/O so that misconfiguration fails fast.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/elastic-upload/internal/fault"
	"github.com/JonMunkholm/elastic-upload/internal/naming"
	"github.com/JonMunkholm/elastic-upload/internal/record"
	"github.com/JonMunkholm/elastic-upload/internal/source"
)

// Config holds all settings of an upload run.
type Config struct {
	// File is the input location: a local path or a blob URL (required)
	File string `env:"ELASTIC_UPLOAD_FILE" yaml:"file" flag:"file,f" usage:"Input file (path, file://, s3:// or gs:// URL)"`

	// Index is the target index; derived from File when empty
	Index string `env:"ELASTIC_UPLOAD_INDEX" yaml:"index" flag:"index,i" usage:"Index name (default: file name without extension, lower-cased)"`

	Cluster Cluster `yaml:"cluster"`
	Upload  Upload  `yaml:"upload"`
	Logging Logging `yaml:"logging"`
	Metrics Metrics `yaml:"metrics"`
	History History `yaml:"history"`
}

// Cluster holds the search cluster address and credentials.
type Cluster struct {
	// URL is the cluster base URI, alternative to CloudID
	URL string `env:"ELASTIC_URL" yaml:"url" flag:"elastic,e" usage:"Elastic uri"`

	// CloudID identifies a hosted deployment, alternative to URL
	CloudID string `env:"ELASTIC_CLOUD_ID" yaml:"cloud_id" flag:"cloud,c" usage:"Cloud id"`

	// User and Password form the basic-auth pair
	User     string `env:"ELASTIC_USER" yaml:"user" flag:"user,u" usage:"Elastic user"`
	Password string `env:"ELASTIC_PASSWORD" yaml:"password" flag:"password,p" usage:"Elastic password"`

	// APIKey is "id:secret" or an already encoded key, alternative to User/Password
	APIKey string `env:"ELASTIC_API_KEY" yaml:"api_key" flag:"key,k" usage:"Api key (id:secret)"`
}

// Upload holds the record and batching settings.
type Upload struct {
	// BatchSize is the number of records per bulk request (default: 1000)
	BatchSize int `env:"UPLOAD_BATCH_SIZE" yaml:"batch_size" default:"1000" flag:"buffer,b" usage:"Buffer size"`

	// Delimiter separates fields; "\t" or "tab" select a tab (default: ,)
	Delimiter string `env:"UPLOAD_DELIMITER" yaml:"delimiter" default:"," flag:"delimiter,d" usage:"Field delimiter"`

	// PropertyFormatting is the header naming strategy (default: CamelCase)
	PropertyFormatting string `env:"UPLOAD_PROPERTY_FORMATTING" yaml:"property_formatting" default:"CamelCase" flag:"property-formatting,pf" usage:"Property formatting: Default, Lower, Upper, CamelCase"`

	// Encoding is the input text encoding (default: utf-8)
	Encoding string `env:"UPLOAD_ENCODING" yaml:"encoding" default:"utf-8" flag:"encoding" usage:"Input encoding (utf-8, windows-1252, shift_jis, ...)"`

	// StartDelay is the pause before the first request (default: 3s)
	StartDelay time.Duration `env:"UPLOAD_START_DELAY" yaml:"start_delay" default:"3s" flag:"delay" usage:"Wait before starting the upload"`
}

// Logging holds logging settings.
type Logging struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" yaml:"level" default:"info" flag:"log-level" usage:"Log level: debug, info, warn, error"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" yaml:"format" default:"text" flag:"log-format" usage:"Log format: text, json"`
}

// Metrics holds the optional Prometheus endpoint.
type Metrics struct {
	// Addr is the listen address; empty disables the endpoint
	Addr string `env:"METRICS_ADDR" yaml:"addr" flag:"metrics-addr" usage:"Serve /metrics and /healthz on this address"`
}

// History holds the optional run history database.
type History struct {
	// DSN is a PostgreSQL connection string; empty disables history
	DSN string `env:"HISTORY_DATABASE_URL" yaml:"dsn" flag:"history-dsn" usage:"PostgreSQL URL for run history"`
}

// Missing lists the required options that are not set. An empty result
// means the run can start.
func (c *Config) Missing() []string {
	var missing []string
	if blank(c.File) {
		missing = append(missing, "--file")
	}
	if blank(c.Cluster.URL) && blank(c.Cluster.CloudID) {
		missing = append(missing, "--elastic or --cloud")
	}
	if !c.Cluster.HasBasicAuth() && blank(c.Cluster.APIKey) {
		missing = append(missing, "--user and --password, or --key")
	}
	return missing
}

// HasRequiredOptions reports whether every required option is set.
func (c *Config) HasRequiredOptions() bool {
	return len(c.Missing()) == 0
}

// HasBasicAuth reports whether both user and password are set.
func (c *Cluster) HasBasicAuth() bool {
	return !blank(c.User) && !blank(c.Password)
}

// Strategy returns the parsed header naming strategy.
func (c *Config) Strategy() (naming.Strategy, error) {
	return naming.ParseStrategy(c.Upload.PropertyFormatting)
}

// Validate checks that the configuration is valid.
// Returns a configuration error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Upload.BatchSize <= 0 {
		errs = append(errs, fmt.Sprintf("buffer size (%d) must be positive", c.Upload.BatchSize))
	}
	if _, err := record.ParseDelimiter(c.Upload.Delimiter); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := naming.ParseStrategy(c.Upload.PropertyFormatting); err != nil {
		errs = append(errs, fmt.Sprintf("property formatting %q must be one of: %s",
			c.Upload.PropertyFormatting, strings.Join(naming.Names(), ", ")))
	}
	if err := source.CheckEncoding(c.Upload.Encoding); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Upload.StartDelay < 0 {
		errs = append(errs, "start delay must be non-negative")
	}

	if !blank(c.Cluster.URL) {
		if u, err := url.Parse(c.Cluster.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("elastic uri %q must be an absolute URL", c.Cluster.URL))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("log level (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("log format (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fault.Newf(fault.KindConfig, "config validation", "validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a safe string representation of the config for logging.
// Credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("File: %q, Index: %q, ", c.File, c.Index))
	b.WriteString(fmt.Sprintf("Cluster: {URL: %q, CloudID: %q, User: %q, Password: %s, APIKey: %s}, ",
		c.Cluster.URL, c.Cluster.CloudID, c.Cluster.User, mask(c.Cluster.Password), mask(c.Cluster.APIKey)))
	b.WriteString(fmt.Sprintf("Upload: {BatchSize: %d, Delimiter: %q, PropertyFormatting: %q, Encoding: %q, StartDelay: %s}, ",
		c.Upload.BatchSize, c.Upload.Delimiter, c.Upload.PropertyFormatting, c.Upload.Encoding, c.Upload.StartDelay))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}, ", c.Logging.Level, c.Logging.Format))
	b.WriteString(fmt.Sprintf("Metrics: {Addr: %q}, History: {DSN: %s}", c.Metrics.Addr, mask(c.History.DSN)))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return "[MASKED]"
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
