package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raakeshmj/gobill/internal/auth"
	"github.com/raakeshmj/gobill/internal/db"
)

var ErrInvalidRegistry = errors.New("invalid client registry")

// ClientRegistry is the on-disk shape of CLIENTS_FILE.
//
//	clients:
//	  - client_id: netflix_integration
//	    display_name: Netflix Integration
//	    secret_hash: $2a$10$...
//	    allowed_scopes: [billing:read, subscriptions:manage]
type ClientRegistry struct {
	Clients []*db.Client `yaml:"clients"`
}

// platformClient is a built-in registration whose secret comes from the
// environment.
type platformClient struct {
	ID        string
	Name      string
	SecretEnv string
	Scopes    []string
}

var platformClients = []platformClient{
	{
		ID: "netflix_integration", Name: "Netflix Integration", SecretEnv: "NETFLIX_CLIENT_SECRET",
		Scopes: []string{auth.ScopeBillingRead, auth.ScopeBillingWrite, auth.ScopeSubscriptionsManage, auth.ScopeAnalyticsRead, auth.ScopeWebhooksReceive},
	},
	{
		ID: "disney_integration", Name: "Disney+ Integration", SecretEnv: "DISNEY_CLIENT_SECRET",
		Scopes: []string{auth.ScopeBillingRead, auth.ScopeSubscriptionsManage, auth.ScopeAnalyticsRead},
	},
	{
		ID: "hulu_integration", Name: "Hulu Integration", SecretEnv: "HULU_CLIENT_SECRET",
		Scopes: []string{auth.ScopeBillingRead, auth.ScopeSubscriptionsManage, auth.ScopeAnalyticsRead},
	},
	{
		ID: "prime_integration", Name: "Prime Video Integration", SecretEnv: "PRIME_CLIENT_SECRET",
		Scopes: []string{auth.ScopeBillingRead, auth.ScopeBillingWrite, auth.ScopeSubscriptionsManage, auth.ScopeAnalyticsRead, auth.ScopeFraudDetect},
	},
	{
		ID: "roku_integration", Name: "Roku Integration", SecretEnv: "ROKU_CLIENT_SECRET",
		Scopes: []string{auth.ScopeBillingRead, auth.ScopeSubscriptionsManage},
	},
	{
		ID: "apple_integration", Name: "Apple TV+ Integration", SecretEnv: "APPLE_CLIENT_SECRET",
		Scopes: []string{auth.ScopeBillingRead, auth.ScopeBillingWrite, auth.ScopeSubscriptionsManage, auth.ScopeAnalyticsRead},
	},
}

// LoadClients reads a YAML registry. Secrets must already be bcrypt hashes.
func LoadClients(path string) ([]*db.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client registry: %w", err)
	}
	return ParseClients(data)
}

func ParseClients(data []byte) ([]*db.Client, error) {
	var reg ClientRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	seen := make(map[string]bool, len(reg.Clients))
	for i, c := range reg.Clients {
		if c == nil || c.ID == "" {
			return nil, fmt.Errorf("%w: client %d has no id", ErrInvalidRegistry, i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%w: duplicate client %q", ErrInvalidRegistry, c.ID)
		}
		seen[c.ID] = true
		if !strings.HasPrefix(c.SecretHash, "$2") {
			return nil, fmt.Errorf("%w: client %q secret_hash is not a bcrypt hash", ErrInvalidRegistry, c.ID)
		}
		for _, s := range c.AllowedScopes {
			if !auth.KnownScope(s) {
				return nil, fmt.Errorf("%w: client %q has unknown scope %q", ErrInvalidRegistry, c.ID, s)
			}
		}
		if c.DisplayName == "" {
			c.DisplayName = c.ID
		}
	}
	return reg.Clients, nil
}

// ClientsFromEnv builds the built-in platform registrations, hashing each
// secret found through lookup. Platforms without a secret are skipped.
func ClientsFromEnv(lookup func(string) (string, bool)) ([]*db.Client, error) {
	var clients []*db.Client
	for _, p := range platformClients {
		secret, ok := lookup(p.SecretEnv)
		if !ok || secret == "" {
			continue
		}
		hash, err := auth.HashSecret(secret)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", p.SecretEnv, err)
		}
		clients = append(clients, &db.Client{
			ID:            p.ID,
			DisplayName:   p.Name,
			SecretHash:    hash,
			AllowedScopes: append([]string(nil), p.Scopes...),
		})
	}
	return clients, nil
}

// Clients returns the registry selected by cfg.
func (c *Config) Clients() ([]*db.Client, error) {
	if c.ClientsFile != "" {
		return LoadClients(c.ClientsFile)
	}
	return ClientsFromEnv(os.LookupEnv)
}
