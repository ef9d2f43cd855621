// Package config loads service configuration from struct tag defaults, an
// optional YAML or JSON file, and environment variables, in that order of
// increasing priority:
//
//	envDefault struct tags  (lowest priority)
//	YAML/JSON config file   (medium priority)
//	Environment variables   (highest priority)
//
// # Struct Tags
//
//   - `env:"VAR_NAME"` maps the field to an environment variable
//   - `envDefault:"value"` sets a default when the field is zero-valued
//   - `required:"true"` fails validation if the field remains zero
//
// File loading goes through the yaml and json unmarshalers, so fields also
// need `yaml` or `json` tags.
//
// Pointer fields stay nil unless a default, the file, or the environment
// supplies a value. This is how tri-state settings are expressed: a nil
// *bool means "not configured", distinct from an explicit false.
//
// # Usage
//
//	type AuthConfig struct {
//	    IssuerURL       string        `env:"ISSUER_URL" yaml:"issuer_url" required:"true"`
//	    FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s" yaml:"fetch_timeout"`
//	    AllowFakeTokens *bool         `env:"ALLOW_FAKE_TOKENS" yaml:"allow_fake_tokens"`
//	}
//
//	cfg := config.MustLoad[AuthConfig](
//	    config.New().WithEnvPrefix("AUTH").WithFile("auth.yaml"),
//	)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

// durationType distinguishes time.Duration from plain int64 fields, which
// share Kind() == Int64.
var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration in layers. Create one with [New], configure
// it with [Loader.WithEnvPrefix] and [Loader.WithFile], then call
// [Loader.Load].
//
// Loader is not safe for concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
}

// New creates a Loader that reads environment variables only (no file,
// no prefix).
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix prepends prefix and an underscore to every environment
// variable name. WithEnvPrefix("AUTH") makes `env:"ISSUER_URL"` read
// AUTH_ISSUER_URL. The prefix is uppercased; empty disables prefixing.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a YAML (.yaml, .yml) or JSON (.json) file to load. A
// missing file is not an error; an unknown extension is. The path must
// not contain "..".
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct, then
// validates `required` tags and, if cfg implements [Validator], calls its
// Validate method.
//
// Loading failures carry [sserr.CodeInternalConfiguration]; validation
// failures carry [sserr.CodeValidationRequired] or [sserr.CodeValidation].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	if err := applyEnv(rv, l.envPrefix); err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T with loader and panics on failure. Intended for
// main, where a bad configuration should stop startup.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", l.filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", l.filePath)
		}
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}

	return nil
}

// applyDefaults sets zero-valued fields to their envDefault tag, recursing
// into nested structs.
func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		if isNestedStruct(field) {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}

		tag := sf.Tag.Get("envDefault")
		if tag == "" || !field.IsZero() {
			continue
		}

		if err := setField(field, tag); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
	}

	return nil
}

// applyEnv sets fields from their `env` variables. A nested struct's env
// tag is joined with "_" onto the prefix of its children.
func applyEnv(rv reflect.Value, prefix string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := sf.Tag.Get("env")

		if isNestedStruct(field) {
			if err := applyEnv(field, joinPrefix(prefix, envTag)); err != nil {
				return err
			}
			continue
		}

		if envTag == "" {
			continue
		}

		envKey := joinPrefix(prefix, envTag)
		val, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}

		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, envKey)
		}
	}

	return nil
}

func joinPrefix(prefix, name string) string {
	switch {
	case name == "":
		return prefix
	case prefix == "":
		return name
	default:
		return prefix + "_" + name
	}
}

func isNestedStruct(field reflect.Value) bool {
	return field.Kind() == reflect.Struct && field.Type() != durationType
}

// setField parses value into field. Supported: string kinds, bool, signed
// integers, time.Duration, []string (comma-separated) and pointers to any
// of these.
func setField(field reflect.Value, value string) error {
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := setField(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	// Duration before the int64 case: same kind, different parser.
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		// MakeSlice with the field's own type so named slice types work.
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}

	return nil
}
