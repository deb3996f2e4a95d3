package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents an encore.yaml configuration file.
// All values are optional and act as defaults for encore run flags.
// CLI flags always override config values.
type Config struct {
	Input           InputConfig   `yaml:"input"`
	Store           StoreConfig   `yaml:"store"`
	Staging         StagingConfig `yaml:"staging"`
	Policy          PolicyConfig  `yaml:"policy"`
	Workers         int           `yaml:"workers" validate:"gte=0,lte=256"`
	CatalogCache    string        `yaml:"catalog_cache"`
	Adapter         AdapterConfig `yaml:"adapter"`
	Report          string        `yaml:"report"`
	MetricsTextfile string        `yaml:"metrics_textfile"`
	LogLevel        string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// InputConfig holds the input roots.
type InputConfig struct {
	SongRoot string `yaml:"song_root"`
	LogRoot  string `yaml:"log_root"`
}

// StoreConfig selects the relational store.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite postgres pgx"`
	DSN    string `yaml:"dsn"`
}

// StagingConfig holds staging dataset defaults. An empty path disables
// staging.
type StagingConfig struct {
	Dataset     string `yaml:"dataset"`
	Source      string `yaml:"source"`
	Backend     string `yaml:"backend" validate:"omitempty,oneof=fs s3"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint" validate:"omitempty,url"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds policy defaults from the config file.
type PolicyConfig struct {
	Name          string   `yaml:"name" validate:"omitempty,oneof=strict buffered streaming"`
	BufferRows    int      `yaml:"buffer_rows" validate:"gte=0"`
	FlushCount    int      `yaml:"flush_count" validate:"gte=0"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type" validate:"omitempty,oneof=webhook redis"`
	URL     string            `yaml:"url" validate:"required_with=Type"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty" validate:"omitempty,gte=0"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. Field names in errors use the
// Go struct path (e.g. Config.Policy.Name).
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), validationMessage(fe)))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid URL"
	}
	return "is invalid"
}
