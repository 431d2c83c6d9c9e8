package config

// Network constants
// The REST port is selected to avoid common development ports (8080, 3000,
// 5000) and the standard Iceberg REST catalog port (8181) so a local icecap
// can run next to another catalog during migration.
const (
	// DefaultHTTPPort is the REST catalog listener port
	DefaultHTTPPort = 2852

	// DefaultServerAddress is the default bind address
	DefaultServerAddress = "0.0.0.0"

	// LocalhostAddress for development
	LocalhostAddress = "127.0.0.1"
)

// Port validation constants
const (
	MinPort = 1
	MaxPort = 65535
)

// IsValidPort checks if a port number is within valid range
func IsValidPort(port int) bool {
	return port >= MinPort && port <= MaxPort
}
