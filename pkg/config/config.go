// Package config loads runtime settings for the mdocverify CLI from
// environment variables, in the teacher's envconfig style.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the settings the CLI needs beyond its per-command flags.
type Config struct {
	// ClockSkew is the tolerance applied to validity-window and
	// certificate-validity checks.
	ClockSkew time.Duration `envconfig:"MDOCVERIFY_CLOCK_SKEW" default:"60s"`
	// Production selects JSON structured logging over the colorized
	// development encoder.
	Production bool `envconfig:"MDOCVERIFY_PRODUCTION" default:"false"`
	// TrustRootsFile, if set, is a PEM bundle of trusted root
	// certificates loaded by each verify command whose --trust-roots flag
	// is not given.
	TrustRootsFile string `envconfig:"MDOCVERIFY_TRUST_ROOTS"`
}

// New reads Config from the process environment, applying defaults for any
// variable left unset.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
