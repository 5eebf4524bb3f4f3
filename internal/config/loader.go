package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/elastic-upload/internal/fault"
)

// Load builds a configuration from tag defaults, the YAML profile at path
// (skipped when path is empty) and environment variables, in that order.
// Flags are applied afterwards with BindFlags. Load does not validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, fault.Config("config load", err)
		}
	}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), envValue); err != nil {
		return nil, fault.Config("config load", err)
	}

	return cfg, nil
}

// Defaults returns a configuration holding only the tag defaults.
func Defaults() *Config {
	cfg := &Config{}
	// defaults are compile-time constants covered by tests
	_ = loadStruct(reflect.ValueOf(cfg).Elem(), defaultValue)
	return cfg
}

func loadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// an empty profile decodes to io.EOF
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse profile %s: %w", path, err)
	}
	return nil
}

// lookupFunc returns the raw value for a field and whether it is set.
type lookupFunc func(field reflect.StructField) (string, string, bool)

func defaultValue(field reflect.StructField) (string, string, bool) {
	v, ok := field.Tag.Lookup("default")
	return "default", v, ok
}

func envValue(field reflect.StructField) (string, string, bool) {
	name := field.Tag.Get("env")
	if name == "" {
		return "", "", false
	}
	value := os.Getenv(name)
	return name, value, value != ""
}

// loadStruct recursively populates struct fields from lookup.
func loadStruct(v reflect.Value, lookup lookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		source, value, ok := lookup(field)
		if !ok {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", source, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Option describes one command-line option of the configuration.
type Option struct {
	Names   []string // long name first
	Usage   string
	Env     string
	Default string
}

// Options lists the command-line options in declaration order.
func Options() []Option {
	var out []Option
	walkFlags(reflect.ValueOf(Defaults()).Elem(), func(field reflect.StructField, _ reflect.Value) {
		out = append(out, Option{
			Names:   strings.Split(field.Tag.Get("flag"), ","),
			Usage:   field.Tag.Get("usage"),
			Env:     field.Tag.Get("env"),
			Default: field.Tag.Get("default"),
		})
	})
	return out
}

// BindFlags registers every option of cfg on fs under its long and short
// names. Parsing fs writes straight into cfg, so only flags present on the
// command line override loaded values.
func BindFlags(fs *flag.FlagSet, cfg *Config) {
	walkFlags(reflect.ValueOf(cfg).Elem(), func(field reflect.StructField, val reflect.Value) {
		usage := field.Tag.Get("usage")
		for _, name := range strings.Split(field.Tag.Get("flag"), ",") {
			switch p := val.Addr().Interface().(type) {
			case *string:
				fs.StringVar(p, name, *p, usage)
			case *time.Duration:
				fs.DurationVar(p, name, *p, usage)
			case *int:
				fs.IntVar(p, name, *p, usage)
			}
		}
	})
}

func walkFlags(v reflect.Value, fn func(reflect.StructField, reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() == reflect.Struct {
			walkFlags(v.Field(i), fn)
			continue
		}
		if field.Tag.Get("flag") != "" {
			fn(field, v.Field(i))
		}
	}
}
