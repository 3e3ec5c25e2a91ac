package model

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding setting is unset.
const (
	DefaultScheme    = "https"
	DefaultBasePath  = "/v1"
	DefaultHTTPSPort = 443
	DefaultHTTPPort  = 80
)

// EndpointConfig is the derived connection target for the provider.
type EndpointConfig struct {
	Scheme   string
	Host     string
	Port     int
	BasePath string
	// Official is true only when host, base path and port are all unset and
	// the scheme is https.
	Official bool
}

// BaseURL renders the endpoint as a URL prefix without a trailing slash. The
// port is omitted when it is the scheme's default.
func (e EndpointConfig) BaseURL() string {
	host := e.Host
	if e.Port != 0 && e.Port != defaultPortFor(e.Scheme) {
		host = net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	}
	return e.Scheme + "://" + host + e.BasePath
}

func defaultPortFor(scheme string) int {
	if strings.EqualFold(scheme, "http") {
		return DefaultHTTPPort
	}
	return DefaultHTTPSPort
}

// DefaultPortFor returns 80 for http and 443 for everything else.
func DefaultPortFor(scheme string) int {
	return defaultPortFor(scheme)
}

// NormalizeBasePath ensures a single leading slash and no trailing slash.
// An empty or "/" path normalizes to "".
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// ConnectionState is the outcome of an explicit connection verification.
type ConnectionState string

const (
	ConnectionUnknown   ConnectionState = "unknown"
	ConnectionVerifying ConnectionState = "verifying"
	ConnectionSuccess   ConnectionState = "success"
	ConnectionFailure   ConnectionState = "failure"
)

// ConnectionStatus is the last known verification result. Reason is set only
// for failures; CheckedAt only once a verification has finished.
type ConnectionStatus struct {
	State     ConnectionState
	Reason    string
	CheckedAt time.Time
}
