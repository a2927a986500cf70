package tariff

import "strings"

var requiredFields = map[ServiceCode][]string{
	Water:          {"usageType", "reading"},
	Parking:        {"vehicleType", "duration", "plateNumber", "zone"},
	BusinessPermit: {"businessType"},
	LandRate:       {"propertyType", "propertyValue"},
	Waste:          {"customerType", "binSize"},
}

// Result is the outcome of Validate.
type Result struct {
	Valid         bool     `json:"valid"`
	MissingFields []string `json:"missingFields"`
}

// RequiredFields returns a copy of the attributes required for code.
func RequiredFields(code ServiceCode) ([]string, error) {
	fields, ok := requiredFields[code]
	if !ok {
		return nil, ErrUnknownServiceCode
	}
	return append([]string(nil), fields...), nil
}

// Validate reports which required attributes for code are absent from attrs.
// A nil value or a blank string counts as absent; zero does not.
func Validate(code ServiceCode, attrs map[string]any) (Result, error) {
	fields, ok := requiredFields[code]
	if !ok {
		return Result{}, ErrUnknownServiceCode
	}
	missing := make([]string, 0)
	for _, field := range fields {
		if !present(attrs[field]) {
			missing = append(missing, field)
		}
	}
	return Result{Valid: len(missing) == 0, MissingFields: missing}, nil
}

func present(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(value) != ""
	default:
		return true
	}
}
