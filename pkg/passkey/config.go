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
	"net/url"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Config configures the relying party used for passkey ceremonies.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"rp_id" json:"rp_id" mapstructure:"rp_id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	RPDisplayName string `yaml:"rp_display_name" json:"rp_display_name" mapstructure:"rp_display_name"`

	// RPOrigins are the allowed origins. The first entry is the default
	// origin used when a request does not name one.
	RPOrigins []string `yaml:"rp_origins" json:"rp_origins" mapstructure:"rp_origins"`

	// Timeout is the client-side ceremony timeout.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	// UserVerification specifies the user verification requirement.
	// Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	UserVerification string `yaml:"user_verification" json:"user_verification" mapstructure:"user_verification"`

	// AttestationPreference specifies the attestation conveyance preference.
	// Options: "none", "indirect", "direct", "enterprise"
	// Default: "none"
	AttestationPreference string `yaml:"attestation" json:"attestation" mapstructure:"attestation"`

	// ResidentKeyRequirement specifies whether discoverable credentials are required.
	// Default: "required"
	ResidentKeyRequirement string `yaml:"resident_key" json:"resident_key" mapstructure:"resident_key"`

	// AuthenticatorAttachment limits the type of authenticators allowed.
	// Options: "platform", "cross-platform", "any"
	// Default: "platform"
	AuthenticatorAttachment string `yaml:"authenticator_attachment" json:"authenticator_attachment" mapstructure:"authenticator_attachment"`

	// Transports advertised in allow and exclude lists.
	// Default: ["internal"]
	Transports []string `yaml:"transports" json:"transports" mapstructure:"transports"`

	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
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
	for _, origin := range c.RPOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid RPOrigin: %q", origin)
		}
	}

	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	switch c.AttestationPreference {
	case "", "none", "indirect", "direct", "enterprise":
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.AttestationPreference)
	}

	switch c.ResidentKeyRequirement {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid resident key requirement: %s", c.ResidentKeyRequirement)
	}

	switch c.AuthenticatorAttachment {
	case "", "any", "platform", "cross-platform":
	default:
		return fmt.Errorf("invalid authenticator attachment: %s", c.AuthenticatorAttachment)
	}

	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserVerification == "" {
		c.UserVerification = "preferred"
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = "none"
	}
	if c.ResidentKeyRequirement == "" {
		c.ResidentKeyRequirement = "required"
	}
	if c.AuthenticatorAttachment == "" {
		c.AuthenticatorAttachment = "platform"
	}
	if len(c.Transports) == 0 {
		c.Transports = []string{string(protocol.Internal)}
	}
}

// DefaultOrigin returns the origin used when a request does not supply one.
func (c *Config) DefaultOrigin() string {
	if len(c.RPOrigins) == 0 {
		return ""
	}
	return c.RPOrigins[0]
}

// ToWebAuthnConfig converts the Config to the go-webauthn configuration. When
// origins are given they replace the configured RPOrigins.
func (c *Config) ToWebAuthnConfig(origins ...string) *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:          c.RPID,
		RPDisplayName: c.RPDisplayName,
		RPOrigins:     c.RPOrigins,
		Debug:         c.Debug,
	}
	if len(origins) > 0 {
		cfg.RPOrigins = origins
	}

	if c.Timeout > 0 {
		cfg.Timeouts = webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
			Registration: webauthn.TimeoutConfig{
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
		}
	}

	switch c.AttestationPreference {
	case "none":
		cfg.AttestationPreference = protocol.PreferNoAttestation
	case "indirect":
		cfg.AttestationPreference = protocol.PreferIndirectAttestation
	case "direct":
		cfg.AttestationPreference = protocol.PreferDirectAttestation
	case "enterprise":
		cfg.AttestationPreference = protocol.PreferEnterpriseAttestation
	}

	cfg.AuthenticatorSelection = c.authenticatorSelection()
	return cfg
}

func (c *Config) userVerification() protocol.UserVerificationRequirement {
	switch c.UserVerification {
	case "required":
		return protocol.VerificationRequired
	case "discouraged":
		return protocol.VerificationDiscouraged
	default:
		return protocol.VerificationPreferred
	}
}

func (c *Config) authenticatorSelection() protocol.AuthenticatorSelection {
	sel := protocol.AuthenticatorSelection{
		UserVerification: c.userVerification(),
	}

	switch c.ResidentKeyRequirement {
	case "required":
		sel.ResidentKey = protocol.ResidentKeyRequirementRequired
		sel.RequireResidentKey = protocol.ResidentKeyRequired()
	case "preferred":
		sel.ResidentKey = protocol.ResidentKeyRequirementPreferred
		sel.RequireResidentKey = protocol.ResidentKeyNotRequired()
	case "discouraged":
		sel.ResidentKey = protocol.ResidentKeyRequirementDiscouraged
		sel.RequireResidentKey = protocol.ResidentKeyNotRequired()
	}

	switch c.AuthenticatorAttachment {
	case "platform":
		sel.AuthenticatorAttachment = protocol.Platform
	case "cross-platform":
		sel.AuthenticatorAttachment = protocol.CrossPlatform
	}

	return sel
}

func (c *Config) transports() []protocol.AuthenticatorTransport {
	out := make([]protocol.AuthenticatorTransport, len(c.Transports))
	for i, t := range c.Transports {
		out[i] = protocol.AuthenticatorTransport(t)
	}
	return out
}
