// Package tariff holds the rate schedules of the portal services and the pure
// functions that validate a request and price it.
package tariff

import "strings"

// ServiceCode selects which schedule, validator and calculator apply.
type ServiceCode string

const (
	Water          ServiceCode = "WTR"
	Parking        ServiceCode = "PRK"
	BusinessPermit ServiceCode = "BIZ"
	LandRate       ServiceCode = "LND"
	Waste          ServiceCode = "WST"
)

// Codes lists every supported service code.
var Codes = []ServiceCode{Water, Parking, BusinessPermit, LandRate, Waste}

func (c ServiceCode) String() string { return string(c) }

func (c ServiceCode) Valid() bool {
	switch c {
	case Water, Parking, BusinessPermit, LandRate, Waste:
		return true
	default:
		return false
	}
}

// ParseServiceCode normalizes raw and returns ErrUnknownServiceCode when it is
// outside the closed enumeration.
func ParseServiceCode(raw string) (ServiceCode, error) {
	code := ServiceCode(strings.ToUpper(strings.TrimSpace(raw)))
	if !code.Valid() {
		return "", ErrUnknownServiceCode
	}
	return code, nil
}
