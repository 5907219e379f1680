package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct-level validation tags
// plus the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Blob.Type == BlobStoreS3 && cfg.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob.s3.bucket is required when blob.type is %q", BlobStoreS3)
	}

	if cfg.API.JWT.Secret != "" && len(cfg.API.JWT.Secret) < 32 {
		return fmt.Errorf("api.jwt.secret must be at least 32 characters")
	}

	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1")
	}

	return nil
}
