// Package providers contains dependency injection providers for the tickit-sync server.
package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second
)

// Flags carries the serve command's overrides into the container.
// Zero values leave the config file (and environment) untouched.
type Flags struct {
	ConfigPath string
	Port       int
	Bind       string
	Version    string
}
