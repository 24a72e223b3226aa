package domain

import "time"

// Tenant is the partition every row belongs to (tenants table).
type Tenant struct {
	ID                 string          `json:"id"`
	Subdomain          string          `json:"subdomain"`
	Name               string          `json:"name"`
	ConsciousnessLevel float64         `json:"consciousness_level"`
	FeatureFlags       map[string]bool `json:"feature_flags"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Valid reports whether the tenant carries an id; a tenant without one never scopes queries.
func (t *Tenant) Valid() bool {
	return t != nil && t.ID != ""
}

// Feature returns the flag value, false when unset.
func (t *Tenant) Feature(name string) bool {
	if t == nil || t.FeatureFlags == nil {
		return false
	}
	return t.FeatureFlags[name]
}
