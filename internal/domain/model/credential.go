package model

import "time"

// PlatformCredential is a stored OAuth/bearer credential for one
// (platform, platform_user_id) pair.
//
// Invariant: PrimaryToken is only ever plaintext while held in memory
// inside the credential store (internal/credential); at rest it is
// encrypted. For Twitch IRC, PrimaryToken carries the "oauth:" prefix form
// expected by the IRC server; for every other platform it is the raw
// bearer token.
type PlatformCredential struct {
	CredentialID   string
	Platform       string
	PlatformUserID string
	UserID         string
	UserName       string
	PrimaryToken   string
	RefreshToken   string // "" if none
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsBot          bool
	AdditionalData map[string]string
}

// HasRefreshToken reports whether this credential can be refreshed.
func (c *PlatformCredential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// RemainingSeconds returns the number of seconds until ExpiresAt, or -1
// if the credential never expires.
func (c *PlatformCredential) RemainingSeconds(now time.Time) int64 {
	if c.ExpiresAt == nil {
		return -1
	}
	return int64(c.ExpiresAt.Sub(now).Seconds())
}

// PlatformConfig is one row per OAuth provider the bot talks to.
type PlatformConfig struct {
	ConfigID     string
	Platform     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}
