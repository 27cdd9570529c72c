package config

import (
	"flag"
)

// BindFlags registers command-line overrides for the most common settings.
// Flag defaults are the values already in c, so unset flags change nothing.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Server.Host, "host", c.Server.Host, "listen host")
	fs.IntVar(&c.Server.Port, "port", c.Server.Port, "server port")
	fs.StringVar(&c.Storage.DataDir, "data-dir", c.Storage.DataDir, "data directory (default ~/.pocketdev)")
	fs.StringVar(&c.Terminal.Shell, "shell", c.Terminal.Shell, "shell used to run commands")
	fs.BoolVar(&c.Terminal.TTY, "tty", c.Terminal.TTY, "run sessions on a pseudo-terminal")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level (debug, info, warn, error)")
	fs.BoolVar(&c.Log.Development, "dev", c.Log.Development, "human-readable development logging")
	fs.StringVar(&c.Tunnel.GatewayURL, "gateway", c.Tunnel.GatewayURL, "gateway tunnel URL (wss://host/tunnel)")
	fs.StringVar(&c.Tunnel.Secret, "gateway-secret", c.Tunnel.Secret, "gateway tunnel pre-shared secret")
}
