package model

import (
	"encoding/json"
	"strings"
)

// Credential is one API key for the model host. Prefer optionally names the
// category this credential should be tried first for.
type Credential struct {
	// Key is the opaque secret sent to the host. Never log it.
	Key string `json:"key" yaml:"key"`

	// Prefer is the category this credential is preferred for (optional).
	Prefer Category `json:"prefer,omitempty" yaml:"prefer,omitempty"`
}

// Redacted returns a short, log-safe form of the key.
func (c Credential) Redacted() string {
	if len(c.Key) <= 4 {
		return "****"
	}
	return "****" + c.Key[len(c.Key)-4:]
}

// Candidate is a credential together with its position in the configured pool.
type Candidate struct {
	Credential
	// Index is the credential's position in configuration order.
	Index int
}

// Pool holds the credentials loaded at startup. It is immutable: a failing
// credential is skipped for the current request only, never removed.
type Pool struct {
	credentials []Credential
}

// NewPool creates a pool over the given credentials in configuration order.
// Entries with an empty key are ignored.
func NewPool(creds []Credential) *Pool {
	kept := make([]Credential, 0, len(creds))
	for _, c := range creds {
		c.Key = strings.TrimSpace(c.Key)
		if c.Key == "" {
			continue
		}
		kept = append(kept, c)
	}
	return &Pool{credentials: kept}
}

// NewPoolFromKeys creates a pool from bare keys with no category preferences.
func NewPoolFromKeys(keys ...string) *Pool {
	creds := make([]Credential, 0, len(keys))
	for _, k := range keys {
		creds = append(creds, Credential{Key: k})
	}
	return NewPool(creds)
}

// PreferredOrder returns the credentials to try for a category: those that
// declare the category as preferred come first, then all remaining
// credentials in configuration order. Duplicate keys are dropped, keeping the
// first occurrence. An empty result means nothing is configured, which callers
// must treat differently from "every credential failed".
func (p *Pool) PreferredOrder(cat Category) []Candidate {
	if p == nil || len(p.credentials) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(p.credentials))
	order := make([]Candidate, 0, len(p.credentials))

	add := func(i int) {
		c := p.credentials[i]
		if seen[c.Key] {
			return
		}
		seen[c.Key] = true
		order = append(order, Candidate{Credential: c, Index: i})
	}

	if cat != "" {
		for i, c := range p.credentials {
			if c.Prefer == cat {
				add(i)
			}
		}
	}
	for i := range p.credentials {
		add(i)
	}
	return order
}

// Size returns the number of configured credentials, duplicates included.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.credentials)
}

// Empty reports whether no credentials are configured.
func (p *Pool) Empty() bool {
	return p.Size() == 0
}

// Credentials returns a copy of the configured credentials.
func (p *Pool) Credentials() []Credential {
	if p == nil {
		return nil
	}
	out := make([]Credential, len(p.credentials))
	copy(out, p.credentials)
	return out
}

// MarshalJSON implements json.Marshaler with keys redacted.
func (p *Pool) MarshalJSON() ([]byte, error) {
	type entry struct {
		Key    string   `json:"key"`
		Prefer Category `json:"prefer,omitempty"`
	}
	entries := make([]entry, 0, p.Size())
	for _, c := range p.Credentials() {
		entries = append(entries, entry{Key: c.Redacted(), Prefer: c.Prefer})
	}
	return json.Marshal(struct {
		Credentials []entry `json:"credentials"`
	}{Credentials: entries})
}
