package config

import (
	"fmt"

	"github.com/Lythaeon/strest/internal/errs"
)

func invalidConfig(field, reason string) error {
	return errs.New("config.Validate", errs.ConfigValidation, field, fmt.Errorf("%s", reason))
}
