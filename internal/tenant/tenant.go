// Package tenant holds the verifying organization's onboarding
// configuration: the model served by the sandbox API, the validation the
// onboarding machine applies before trusting a config, and stores keyed by
// tenant public key.
package tenant

import (
	"veriflow/internal/identityapi"
	dErrors "veriflow/pkg/domain-errors"
)

// Tenant is one verifying organization as known to the sandbox upstream.
type Tenant struct {
	PublicKey string
	Name      string
	Config    identityapi.OnboardingConfig
	// RequirementTemplate is the ordered requirement list handed to new
	// onboarding sessions. Order is part of the contract; the client must
	// preserve it.
	RequirementTemplate []identityapi.Requirement
}

// ValidateConfig checks that a fetched onboarding config is well-formed.
// A failure here is terminal for the flow instance (configInvalid): the
// config is a tenant-operator problem, not something the user can retry
// through.
func ValidateConfig(cfg identityapi.OnboardingConfig) error {
	if cfg.TenantPublicKey == "" {
		return dErrors.New(dErrors.CodeConfigInvalid, "onboarding config is missing the tenant public key")
	}
	if len(cfg.SupportedCountries) == 0 {
		return dErrors.New(dErrors.CodeConfigInvalid, "onboarding config declares no supported countries")
	}
	if !cfg.CollectKYCData && !cfg.CollectKYBData {
		return dErrors.New(dErrors.CodeConfigInvalid, "onboarding config collects neither KYC nor KYB data")
	}
	if cfg.CollectInvestorProfile && !cfg.CollectKYCData {
		return dErrors.New(dErrors.CodeConfigInvalid, "investor profile collection requires KYC data collection")
	}
	return nil
}
