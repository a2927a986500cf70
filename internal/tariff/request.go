package tariff

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Request is the typed, per-service attribute set of a payment or quote.
type Request interface {
	ServiceCode() ServiceCode
	// Attributes returns the normalized attributes stored alongside bills.
	Attributes() map[string]any
}

type WaterRequest struct {
	UsageType string
	Reading   int64
}

func (WaterRequest) ServiceCode() ServiceCode { return Water }

func (r WaterRequest) Attributes() map[string]any {
	return map[string]any{"usageType": r.UsageType, "reading": r.Reading}
}

type ParkingRequest struct {
	VehicleType string
	Duration    string
	PlateNumber string
	Zone        string
}

func (ParkingRequest) ServiceCode() ServiceCode { return Parking }

func (r ParkingRequest) Attributes() map[string]any {
	return map[string]any{
		"vehicleType": r.VehicleType,
		"duration":    r.Duration,
		"plateNumber": r.PlateNumber,
		"zone":        r.Zone,
	}
}

type BusinessRequest struct {
	BusinessType string
}

func (BusinessRequest) ServiceCode() ServiceCode { return BusinessPermit }

func (r BusinessRequest) Attributes() map[string]any {
	return map[string]any{"businessType": r.BusinessType}
}

type LandRequest struct {
	PropertyType  string
	PropertyValue decimal.Decimal
}

func (LandRequest) ServiceCode() ServiceCode { return LandRate }

func (r LandRequest) Attributes() map[string]any {
	return map[string]any{"propertyType": r.PropertyType, "propertyValue": r.PropertyValue.String()}
}

type WasteRequest struct {
	CustomerType string
	BinSize      string
}

func (WasteRequest) ServiceCode() ServiceCode { return Waste }

func (r WasteRequest) Attributes() map[string]any {
	return map[string]any{"customerType": r.CustomerType, "binSize": r.BinSize}
}

// Decode validates attrs for code and converts them into the matching
// Request variant. Missing attributes yield a *MissingFieldsError.
func Decode(code ServiceCode, attrs map[string]any) (Request, error) {
	result, err := Validate(code, attrs)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, &MissingFieldsError{Fields: result.MissingFields}
	}

	switch code {
	case Water:
		reading, err := intAttr(attrs, "reading")
		if err != nil {
			return nil, err
		}
		return WaterRequest{UsageType: keyAttr(attrs, "usageType"), Reading: reading}, nil
	case Parking:
		return ParkingRequest{
			VehicleType: keyAttr(attrs, "vehicleType"),
			Duration:    keyAttr(attrs, "duration"),
			PlateNumber: strings.ToUpper(stringAttr(attrs, "plateNumber")),
			Zone:        keyAttr(attrs, "zone"),
		}, nil
	case BusinessPermit:
		return BusinessRequest{BusinessType: keyAttr(attrs, "businessType")}, nil
	case LandRate:
		value, err := decimalAttr(attrs, "propertyValue")
		if err != nil {
			return nil, err
		}
		return LandRequest{PropertyType: keyAttr(attrs, "propertyType"), PropertyValue: value}, nil
	default:
		return WasteRequest{CustomerType: keyAttr(attrs, "customerType"), BinSize: keyAttr(attrs, "binSize")}, nil
	}
}

func stringAttr(attrs map[string]any, field string) string {
	switch v := attrs[field].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func keyAttr(attrs map[string]any, field string) string {
	return normalizeKey(stringAttr(attrs, field))
}

func intAttr(attrs map[string]any, field string) (int64, error) {
	var (
		value int64
		err   error
	)
	switch v := attrs[field].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, &AttributeError{Field: field, Reason: "must be a whole number"}
		}
		if v >= math.MaxInt64 {
			return 0, &AttributeError{Field: field, Reason: "is too large"}
		}
		value = int64(v)
	case int:
		value = int64(v)
	case int64:
		value = v
	default:
		value, err = strconv.ParseInt(stringAttr(attrs, field), 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			return 0, &AttributeError{Field: field, Reason: "is too large"}
		}
		if err != nil {
			return 0, &AttributeError{Field: field, Reason: "must be a whole number"}
		}
	}
	if value < 0 {
		return 0, &AttributeError{Field: field, Reason: "must not be negative"}
	}
	return value, nil
}

func decimalAttr(attrs map[string]any, field string) (decimal.Decimal, error) {
	var (
		value decimal.Decimal
		err   error
	)
	switch v := attrs[field].(type) {
	case float64:
		value = decimal.NewFromFloat(v)
	case decimal.Decimal:
		value = v
	default:
		value, err = decimal.NewFromString(stringAttr(attrs, field))
		if err != nil {
			return decimal.Zero, &AttributeError{Field: field, Reason: "must be a number"}
		}
	}
	if value.IsNegative() {
		return decimal.Zero, &AttributeError{Field: field, Reason: "must not be negative"}
	}
	return value, nil
}

// Amount reads a non-negative decimal attribute such as a client-computed cost.
func Amount(attrs map[string]any, field string) (decimal.Decimal, error) {
	return decimalAttr(attrs, field)
}
