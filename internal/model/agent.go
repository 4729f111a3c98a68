package model

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Agent is a candidate agent known to the registry.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Endpoint  string    `json:"endpoint"`
	APIKey    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

var agentIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._@-]{0,127}$`)

// ValidateAgentID checks that an agent id is non-empty and url-safe.
func ValidateAgentID(id string) error {
	if !agentIDPattern.MatchString(id) {
		return fmt.Errorf("agent id %q must be 1-128 characters of letters, digits, '.', '_', '@' or '-'", id)
	}
	return nil
}

// ValidateEndpoint checks that an agent endpoint is an absolute http(s) URL.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https scheme (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint must include a host")
	}
	if u.User != nil {
		return fmt.Errorf("endpoint must not include credentials")
	}
	return nil
}
