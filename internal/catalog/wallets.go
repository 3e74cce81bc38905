package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sokoniapp/sokoni/internal/paycode"
)

// WalletProvider describes a mobile-money provider sellers can configure as a
// manual payment destination. Rules picks the proof-code family used to
// validate transaction codes for the provider.
type WalletProvider struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Rules       string `yaml:"rules"`
	Country     string `yaml:"country"`
}

// WalletRegistry maps wallet family names to providers. Methods configured
// with an unknown family fall back to the mpesa rules, which accept the
// widest range of codes.
type WalletRegistry struct {
	providers map[string]WalletProvider
}

type walletsFile struct {
	Wallets []WalletProvider `yaml:"wallets"`
}

// DefaultRegistry covers the providers common on Kenyan storefronts. Used
// when no wallets file is configured.
func DefaultRegistry() *WalletRegistry {
	registry, err := buildRegistry([]WalletProvider{
		{Name: "mpesa", DisplayName: "M-PESA", Rules: "mpesa", Country: "KE"},
		{Name: "airtel", DisplayName: "Airtel Money", Rules: "airtel", Country: "KE"},
	})
	if err != nil {
		panic(err)
	}
	return registry
}

// LoadRegistry reads a wallets YAML file. An empty path returns the default
// registry.
func LoadRegistry(path string) (*WalletRegistry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallets file: %w", err)
	}
	return ParseRegistry(raw)
}

func ParseRegistry(raw []byte) (*WalletRegistry, error) {
	var file walletsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse wallets file: %w", err)
	}
	if len(file.Wallets) == 0 {
		return nil, fmt.Errorf("wallets file defines no providers")
	}
	return buildRegistry(file.Wallets)
}

func buildRegistry(providers []WalletProvider) (*WalletRegistry, error) {
	registry := &WalletRegistry{providers: make(map[string]WalletProvider, len(providers))}
	for i, provider := range providers {
		name := strings.ToLower(strings.TrimSpace(provider.Name))
		if name == "" {
			return nil, fmt.Errorf("wallet %d: name is required", i)
		}
		if _, exists := registry.providers[name]; exists {
			return nil, fmt.Errorf("wallet %q: duplicate name", name)
		}
		switch paycode.Family(provider.Rules) {
		case paycode.FamilyMpesa, paycode.FamilyAirtel:
		default:
			return nil, fmt.Errorf("wallet %q: unknown rules %q", name, provider.Rules)
		}
		provider.Name = name
		registry.providers[name] = provider
	}
	return registry, nil
}

// FamilyFor returns the proof-code family for a wallet family name.
func (r *WalletRegistry) FamilyFor(name string) paycode.Family {
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return paycode.FamilyMpesa
	}
	return paycode.Family(provider.Rules)
}

// Lookup returns provider metadata and whether the family is registered.
func (r *WalletRegistry) Lookup(name string) (WalletProvider, bool) {
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return provider, ok
}

// Providers returns all registered providers in no particular order.
func (r *WalletRegistry) Providers() []WalletProvider {
	out := make([]WalletProvider, 0, len(r.providers))
	for _, provider := range r.providers {
		out = append(out, provider)
	}
	return out
}
