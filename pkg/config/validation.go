package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Validate at least one provider exists
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("providers: at least one provider must be configured")
	}

	// Validate schemes are unique - the registry rejects a second
	// registration for the same scheme anyway, so fail fast here instead.
	schemes := make(map[string]bool)
	for i, p := range cfg.Providers {
		if schemes[p.Scheme] {
			return fmt.Errorf("providers[%d]: duplicate scheme %q", i, p.Scheme)
		}
		schemes[p.Scheme] = true
	}

	if cfg.Server.ListenAddr != "" {
		if cfg.Server.ExposeScheme == "" {
			return fmt.Errorf("server: expose_scheme is required when listen_addr is set")
		}
		if !schemes[cfg.Server.ExposeScheme] {
			return fmt.Errorf("server: expose_scheme %q does not match any configured provider", cfg.Server.ExposeScheme)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
