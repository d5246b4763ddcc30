package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Protocol maps a protocol id (as the rewards oracle reports it) to the
// DefiLlama slugs used for TVL and DEX volume lookups. Slugs usually
// equal the id; the registry exists for the exceptions.
type Protocol struct {
	ID         string `yaml:"id"`
	TVLSlug    string `yaml:"tvlSlug"`
	VolumeSlug string `yaml:"volumeSlug"`

	// SkipVolume marks lending-style protocols that have no DEX volume
	// listing; the volume oracle is not queried for them.
	SkipVolume bool `yaml:"skipVolume"`
}

// Registry resolves oracle slugs for protocol ids. Lookups are
// case-insensitive; unknown protocols fall back to slug == id so a new
// campaign shows up on the dashboard without a config change.
type Registry struct {
	byID map[string]Protocol
}

// defaultProtocols is the compiled-in registry used when no YAML file
// is present.
var defaultProtocols = []Protocol{
	{ID: "kuru"},
	{ID: "crystal"},
	{ID: "curvance", SkipVolume: true},
	{ID: "morpho", TVLSlug: "morpho-blue", SkipVolume: true},
	{ID: "pancakeswap", TVLSlug: "pancakeswap-amm-v3", VolumeSlug: "pancakeswap"},
}

// LoadProtocols reads the registry YAML. A missing file is not an
// error: the compiled-in defaults apply. A present but malformed file
// is an error, silently tracking the wrong slugs would corrupt every
// protocol-total row.
func LoadProtocols(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newRegistry(defaultProtocols), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read protocols file: %w", err)
	}

	var doc struct {
		Protocols []Protocol `yaml:"protocols"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse protocols file %s: %w", path, err)
	}
	if len(doc.Protocols) == 0 {
		return nil, fmt.Errorf("protocols file %s has no protocols", path)
	}
	for i, p := range doc.Protocols {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("protocols file %s: entry %d has no id", path, i)
		}
	}

	return newRegistry(doc.Protocols), nil
}

func newRegistry(protocols []Protocol) *Registry {
	byID := make(map[string]Protocol, len(protocols))
	for _, p := range protocols {
		byID[strings.ToLower(p.ID)] = p
	}
	return &Registry{byID: byID}
}

// Len reports the number of registered protocols.
func (r *Registry) Len() int { return len(r.byID) }

// TVLSlug returns the DefiLlama protocol slug for TVL lookups.
func (r *Registry) TVLSlug(id string) string {
	if p, ok := r.byID[strings.ToLower(id)]; ok && p.TVLSlug != "" {
		return p.TVLSlug
	}
	return strings.ToLower(id)
}

// VolumeSlug returns the DefiLlama DEX slug for volume lookups, or
// ok=false when the protocol has no volume listing.
func (r *Registry) VolumeSlug(id string) (string, bool) {
	p, ok := r.byID[strings.ToLower(id)]
	if ok && p.SkipVolume {
		return "", false
	}
	if ok && p.VolumeSlug != "" {
		return p.VolumeSlug, true
	}
	return strings.ToLower(id), true
}
