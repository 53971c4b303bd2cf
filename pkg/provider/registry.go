package provider

import "strings"

// Registry resolves domains and API-key prefixes to Provider identities. It
// is read-only after construction; reload is a whole-registry atomic swap
// (see Store), never an in-place mutation.
type Registry struct {
	domains  map[string]Config
	patterns []Config
	configs  []Config
	web      []WebAppConfig
}

// WebAppConfig matches Origin/Referer headers for browser-mediated
// identification.
type WebAppConfig struct {
	Name    string
	Origins []string
	Mode    string // direct | embedded
}

// WebAppMatch is the result of resolving Origin/Referer headers.
type WebAppMatch struct {
	Name string
	Mode string
}

// NewRegistry builds the registry from the given provider configs, seeded by
// default with DefaultConfigs() at call sites that don't need overrides.
func NewRegistry(configs []Config, webApps []WebAppConfig) *Registry {
	r := &Registry{
		domains: make(map[string]Config),
		configs: configs,
		web:     webApps,
	}
	for _, c := range configs {
		for _, d := range c.Domains {
			r.domains[d] = c
		}
		if len(c.DomainPatterns) > 0 {
			r.patterns = append(r.patterns, c)
		}
	}
	return r
}

// NewDefaultRegistry builds the registry from the built-in provider table.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultConfigs(), DefaultWebApps())
}

// ResolveDomain resolves a hostname to a Provider by exact match, falling
// back to a linear scan of glob patterns.
func (r *Registry) ResolveDomain(host string) (Provider, bool) {
	if c, ok := r.domains[host]; ok {
		return c.Provider, true
	}
	for _, c := range r.patterns {
		for _, pat := range c.DomainPatterns {
			if MatchesPattern(pat, host) {
				return c.Provider, true
			}
		}
	}
	return Unknown, false
}

// ResolveKey resolves an API key to a Provider via longest-prefix-wins: when
// multiple configured prefixes match, the longest one is authoritative
// (e.g. "sk-proj-" over "sk-").
func (r *Registry) ResolveKey(key string) (Provider, bool) {
	var best Config
	bestLen := -1
	for _, c := range r.configs {
		for _, prefix := range c.KeyPrefixes {
			if strings.HasPrefix(key, prefix) && len(prefix) > bestLen {
				best = c
				bestLen = len(prefix)
			}
		}
	}
	if bestLen < 0 {
		return Unknown, false
	}
	return best.Provider, true
}

// ResolveWeb matches Origin/Referer headers against the web-app sub-registry.
func (r *Registry) ResolveWeb(origin, referer string) (WebAppMatch, bool) {
	for _, app := range r.web {
		for _, o := range app.Origins {
			if origin == o || referer == o {
				return WebAppMatch{Name: app.Name, Mode: app.Mode}, true
			}
		}
	}
	return WebAppMatch{}, false
}

// MatchesPattern implements the glob subset the provider table uses:
// "*.suffix" (leading wildcard), "prefix*suffix" (single interior
// wildcard), or an exact match when no "*" is present.
func MatchesPattern(pattern, value string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // keep the leading dot
		return strings.HasSuffix(value, suffix)
	}
	parts := strings.SplitN(pattern, "*", 2)
	if len(parts) == 2 {
		return strings.HasPrefix(value, parts[0]) && strings.HasSuffix(value, parts[1])
	}
	return false
}
