package forecastconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks tag constraints and cross-field rules
func Validate(m *Model) error {
	if err := validate.Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return ValidationError{fieldPath(fe.Namespace()), describe(fe)}
		}
		return err
	}

	// === Confidence ===
	c := m.Confidence
	if c.Min >= c.Max {
		return ValidationError{"confidence", "min must be < max"}
	}
	if c.FallbackCap < c.Min || c.FallbackCap > c.Max {
		return ValidationError{"confidence.fallback_cap", "must be within [min, max]"}
	}
	if _, ok := m.Asset(c.FallbackAsset); !ok {
		return ValidationError{"confidence.fallback_asset", fmt.Sprintf("unknown asset %q", c.FallbackAsset)}
	}

	// === Impact caps ===
	caps := m.Impact.Caps
	if !(caps.Low <= caps.Medium && caps.Medium <= caps.High) {
		return ValidationError{"impact.caps", "must satisfy low <= medium <= high"}
	}
	if caps.High > c.Max {
		return ValidationError{"impact.caps.high", "must not exceed confidence.max"}
	}

	// === Assets ===
	seen := map[string]bool{}
	for _, a := range m.Assets {
		if seen[a.Name] {
			return ValidationError{"assets", fmt.Sprintf("duplicate asset %q", a.Name)}
		}
		seen[a.Name] = true
	}

	// === Horizons ===
	keys := map[string]bool{}
	for _, h := range m.Horizons {
		if keys[h.Key] {
			return ValidationError{"horizons", fmt.Sprintf("duplicate key %q", h.Key)}
		}
		keys[h.Key] = true
	}
	for category, minutes := range m.CategoryHorizons {
		if minutes <= 0 {
			return ValidationError{"category_horizons." + category, "must be > 0"}
		}
	}

	// === Correlations ===
	categories := map[string]bool{}
	for _, cat := range m.Categories {
		categories[cat.Name] = true
	}
	for category, row := range m.Correlations {
		if !categories[category] {
			return ValidationError{"correlations." + category, "unknown category"}
		}
		for asset, corr := range row {
			if !seen[asset] {
				return ValidationError{"correlations." + category + "." + asset, "unknown asset"}
			}
			if err := validate.Struct(corr); err != nil {
				return ValidationError{"correlations." + category + "." + asset, err.Error()}
			}
		}
	}

	return nil
}

// fieldPath strips the root type name from a validator namespace ("Model.Assets[0].Name" → "Assets[0].Name")
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min", "gte":
		return "must be >= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "lte", "max":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed " + fe.Tag()
	}
}
