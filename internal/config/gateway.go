package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// GatewayConfig holds settings for the `pocketdev gateway` subcommand.
type GatewayConfig struct {
	Port     int    `default:"443"`
	TLSCert  string `split_words:"true"`
	TLSKey   string `split_words:"true"`
	Username string
	// PasswordHash is a bcrypt hash. Password is accepted for convenience
	// and hashed at startup.
	PasswordHash string `split_words:"true"`
	Password     string
	Secret       string
	TokenTTL     time.Duration `split_words:"true" default:"168h"`
	Log          LogConfig
}

// LoadGateway reads POCKETDEV_GATEWAY_* variables and then parses args.
func LoadGateway(args []string) (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := envconfig.Process(envPrefix+"_GATEWAY", &cfg); err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "gateway port")
	fs.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate file")
	fs.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS key file")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Username == "" || (cfg.Password == "" && cfg.PasswordHash == "") {
		return nil, fmt.Errorf("POCKETDEV_GATEWAY_USERNAME and POCKETDEV_GATEWAY_PASSWORD (or _PASSWORD_HASH) are required")
	}
	return &cfg, nil
}
