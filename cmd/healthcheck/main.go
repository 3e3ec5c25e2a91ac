// Command healthcheck checks the modeldesk health endpoint and exits non-zero
// unless the server reports itself healthy. It is meant for container
// HEALTHCHECK directives, so it carries no dependencies.
package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	defaultAddr  = "127.0.0.1:8080"
	checkTimeout = 2 * time.Second
	healthPath   = "/api/v1/health"
)

type healthResponse struct {
	Status string `json:"status"`
}

func main() {
	os.Exit(check())
}

func check() int {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	url := "http://" + normalizeAddr(os.Getenv("MODELDESK_LISTEN_ADDR")) + healthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 1
	}

	resp, err := (&http.Client{Timeout: checkTimeout}).Do(req)
	if err != nil {
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 1
	}

	var health healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&health); err != nil {
		return 1
	}
	if health.Status != "ok" {
		return 1
	}

	return 0
}

// normalizeAddr maps a listen address to one the check can dial. Wildcard
// binds become loopback since the check runs next to the server.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
