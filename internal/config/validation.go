package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MinSecretLength is the shortest accepted HS256 signing secret.
const MinSecretLength = 32

// validate is the singleton validator instance
var validate = validator.New()

// Validate checks struct tags first, then the rules that depend on the
// selected Type of each section.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Database.Type == "sqlite" && cfg.Database.DataDir == "" {
		return fmt.Errorf("database: data_dir is required for type sqlite")
	}

	switch cfg.Content.Type {
	case "filesystem":
		if cfg.Content.Root == "" {
			return fmt.Errorf("content: root is required for type filesystem")
		}
	case "s3":
		if cfg.Content.S3Bucket == "" {
			return fmt.Errorf("content: s3_bucket is required for type s3")
		}
	case "pinata":
		if cfg.Content.PinataJWT == "" {
			return fmt.Errorf("content: pinata_jwt (or NIFTY_PINATA_JWT) is required for type pinata")
		}
	}

	if cfg.Encryption.Type == "age" && (cfg.Encryption.PublicKeyPath == "" || cfg.Encryption.PrivateKeyPath == "") {
		return fmt.Errorf("encryption: public_key_path and private_key_path are required for type age")
	}

	// Checked here rather than by tag so the secret never ends up in an error message.
	if cfg.Identity.Type == "jwt" && len(cfg.Identity.Secret) < MinSecretLength {
		return fmt.Errorf("identity: secret (or NIFTY_JWT_SECRET) of at least %d bytes is required for type jwt", MinSecretLength)
	}
	if cfg.Identity.TokenTTL < 0 {
		return fmt.Errorf("identity: token_ttl must not be negative")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
