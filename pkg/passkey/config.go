// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"fmt"
	"time"
)

// Config configures the passkey service.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"id" json:"id" mapstructure:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	// Example: "Example Corp"
	RPDisplayName string `yaml:"display_name" json:"display_name" mapstructure:"display_name"`

	// RPOrigins are the allowed web origins for ceremonies.
	// Example: []string{"https://example.com"}
	RPOrigins []string `yaml:"origins" json:"origins" mapstructure:"origins"`

	// ChallengeTTL is how long an issued challenge stays valid.
	// Default: 5 minutes
	ChallengeTTL time.Duration `yaml:"challenge_ttl" json:"challenge_ttl" mapstructure:"challenge_ttl"`

	// ChallengeSize is the challenge length in bytes.
	// Default: 32
	ChallengeSize int `yaml:"challenge_size" json:"challenge_size" mapstructure:"challenge_size"`

	// UserVerification specifies the user verification requirement
	// advertised to clients.
	// Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	UserVerification string `yaml:"user_verification" json:"user_verification" mapstructure:"user_verification"`

	// ResidentKey specifies the resident key (discoverable credential)
	// requirement advertised to clients.
	// Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	ResidentKey string `yaml:"resident_key" json:"resident_key" mapstructure:"resident_key"`

	// Attestation specifies the attestation conveyance preference.
	// Options: "none", "indirect", "direct"
	// Default: "none"
	Attestation string `yaml:"attestation" json:"attestation" mapstructure:"attestation"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required")
	}
	if c.ChallengeSize < 16 {
		return fmt.Errorf("challenge size must be at least 16 bytes")
	}

	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	switch c.ResidentKey {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid resident key requirement: %s", c.ResidentKey)
	}

	switch c.Attestation {
	case "", "none", "indirect", "direct":
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.Attestation)
	}

	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = 5 * time.Minute
	}
	if c.ChallengeSize == 0 {
		c.ChallengeSize = 32
	}
	if c.UserVerification == "" {
		c.UserVerification = "preferred"
	}
	if c.ResidentKey == "" {
		c.ResidentKey = "preferred"
	}
	if c.Attestation == "" {
		c.Attestation = "none"
	}
}
