package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration. An empty path means ~/.coursefed/config.yaml,
// which may be absent. A .env file in the working directory is loaded first;
// variables already set in the environment win over it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(Dir(), "config.yaml")
	}
	if err := loadFile(cfg, path, explicit); err != nil {
		return nil, err
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg. A missing default file is not an
// error; a missing explicit one is.
func loadFile(cfg *Config, path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// applyEnv sets every field carrying an env tag whose variable is set.
func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			if err := applyEnv(field); err != nil {
				return err
			}
			continue
		}

		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			continue
		}
		if err := setField(field, val); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, val string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(val)
	case field.Kind() == reflect.Int:
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		field.SetInt(int64(n))
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		var parts []string
		for _, p := range strings.Split(val, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
