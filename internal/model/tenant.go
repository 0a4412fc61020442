package model

// Tenant represents one guild's reconciliation configuration, joined from the
// PluralKit settings row and the fronter category row.
type Tenant struct {
	GuildID    string
	UserID     string
	SystemID   string
	Token      string
	CategoryID string
}

// HasMembership reports whether a PluralKit system has been configured
func (t *Tenant) HasMembership() bool {
	return t.SystemID != ""
}

// HasFronterCategory reports whether a fronter category has been configured
func (t *Tenant) HasFronterCategory() bool {
	return t.CategoryID != ""
}

// GuildSettings is the persisted PluralKit configuration for a guild
type GuildSettings struct {
	GuildID  string
	UserID   string
	SystemID string
	Token    string
}

// FronterCategory is the persisted fronter category for a guild
type FronterCategory struct {
	GuildID    string
	CategoryID string
}
