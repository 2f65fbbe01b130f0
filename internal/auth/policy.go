package auth

import "strings"

// Policy decides which paths must carry a signer. A path needs one when it
// sits under Protected and is not listed as open.
type Policy struct {
	Protected    string
	openPaths    map[string]bool
	openPrefixes []string
}

// NewDefaultPolicy protects /api/ except for the given open paths and prefixes.
func NewDefaultPolicy(openPaths []string, openPrefixes []string) Policy {
	p := Policy{Protected: "/api/", openPaths: make(map[string]bool, len(openPaths))}
	for _, path := range openPaths {
		p.openPaths[path] = true
	}
	p.openPrefixes = append(p.openPrefixes, openPrefixes...)
	return p
}

// IsOpen reports whether path skips authentication.
func (p Policy) IsOpen(path string) bool {
	if p.openPaths[path] {
		return true
	}
	for _, prefix := range p.openPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequiresSigner reports whether path must carry a bearer token.
func (p Policy) RequiresSigner(path string) bool {
	if p.Protected == "" || !strings.HasPrefix(path, p.Protected) {
		return false
	}
	return !p.IsOpen(path)
}
