package tariff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Schedule is the parsed rate table of one service code.
type Schedule interface {
	ServiceCode() ServiceCode
}

// Tier prices the units in (Floor, Ceiling]. An unbounded tier has no ceiling.
type Tier struct {
	Key       string
	Floor     int64
	Ceiling   int64
	Unbounded bool
	Rate      decimal.Decimal
}

// WaterSchedule maps a usage type to its progressive tiers, ordered by floor.
type WaterSchedule struct {
	Tiers map[string][]Tier
}

func (WaterSchedule) ServiceCode() ServiceCode { return Water }

// ParkingSchedule maps duration to vehicle type to a flat amount.
type ParkingSchedule struct {
	Rates map[string]map[string]decimal.Decimal
	Zones []string
}

func (ParkingSchedule) ServiceCode() ServiceCode { return Parking }

type BusinessBand struct {
	BaseFee       decimal.Decimal `json:"base_fee"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
}

type BusinessSchedule struct {
	Bands map[string]BusinessBand
}

func (BusinessSchedule) ServiceCode() ServiceCode { return BusinessPermit }

type LandRule struct {
	RatePercentage decimal.Decimal `json:"rate_percentage"`
	MinimumCharge  decimal.Decimal `json:"minimum_charge"`
}

type LandSchedule struct {
	Rules map[string]LandRule
}

func (LandSchedule) ServiceCode() ServiceCode { return LandRate }

// WasteSchedule maps customer type to bin size to a flat amount.
type WasteSchedule struct {
	Rates map[string]map[string]decimal.Decimal
}

func (WasteSchedule) ServiceCode() ServiceCode { return Waste }

// ParseSchedule decodes the JSON billing rules stored on a service definition.
// Zones only apply to parking.
func ParseSchedule(code ServiceCode, rules map[string]any, zones []string) (Schedule, error) {
	if !code.Valid() {
		return nil, ErrUnknownServiceCode
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: %s has no billing rules", ErrInvalidSchedule, code)
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	switch code {
	case Water:
		return parseWater(raw)
	case Parking:
		var rates map[string]map[string]decimal.Decimal
		if err := json.Unmarshal(raw, &rates); err != nil {
			return nil, fmt.Errorf("%w: parking: %v", ErrInvalidSchedule, err)
		}
		return ParkingSchedule{Rates: normalizeNested(rates), Zones: normalizeList(zones)}, nil
	case BusinessPermit:
		var bands map[string]BusinessBand
		if err := json.Unmarshal(raw, &bands); err != nil {
			return nil, fmt.Errorf("%w: business: %v", ErrInvalidSchedule, err)
		}
		out := make(map[string]BusinessBand, len(bands))
		for k, v := range bands {
			out[normalizeKey(k)] = v
		}
		return BusinessSchedule{Bands: out}, nil
	case LandRate:
		var rules map[string]LandRule
		if err := json.Unmarshal(raw, &rules); err != nil {
			return nil, fmt.Errorf("%w: land: %v", ErrInvalidSchedule, err)
		}
		out := make(map[string]LandRule, len(rules))
		for k, v := range rules {
			if v.RatePercentage.IsNegative() || v.MinimumCharge.IsNegative() {
				return nil, fmt.Errorf("%w: land %s has negative values", ErrInvalidSchedule, k)
			}
			out[normalizeKey(k)] = v
		}
		return LandSchedule{Rules: out}, nil
	default:
		var rates map[string]map[string]decimal.Decimal
		if err := json.Unmarshal(raw, &rates); err != nil {
			return nil, fmt.Errorf("%w: waste: %v", ErrInvalidSchedule, err)
		}
		return WasteSchedule{Rates: normalizeNested(rates)}, nil
	}
}

func parseWater(raw []byte) (Schedule, error) {
	var byUsage map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &byUsage); err != nil {
		return nil, fmt.Errorf("%w: water: %v", ErrInvalidSchedule, err)
	}
	schedule := WaterSchedule{Tiers: make(map[string][]Tier, len(byUsage))}
	for usage, rates := range byUsage {
		tiers, err := parseTiers(rates)
		if err != nil {
			return nil, fmt.Errorf("%w: water %s: %v", ErrInvalidSchedule, usage, err)
		}
		schedule.Tiers[normalizeKey(usage)] = tiers
	}
	return schedule, nil
}

// parseTiers turns keys such as "0-10", "11-30" and "above_60" into
// contiguous tiers.
func parseTiers(rates map[string]decimal.Decimal) ([]Tier, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("no tiers")
	}
	tiers := make([]Tier, 0, len(rates))
	for key, rate := range rates {
		tier, err := parseTierKey(key)
		if err != nil {
			return nil, err
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("tier %s has a negative rate", key)
		}
		tier.Rate = rate
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Floor < tiers[j].Floor })

	var next int64
	for i, tier := range tiers {
		if tier.Floor != next {
			return nil, fmt.Errorf("tier %s does not start at %d", tier.Key, next)
		}
		if tier.Unbounded {
			if i != len(tiers)-1 {
				return nil, fmt.Errorf("tier %s is unbounded but not last", tier.Key)
			}
			break
		}
		next = tier.Ceiling
	}
	return tiers, nil
}

func parseTierKey(key string) (Tier, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if rest, ok := strings.CutPrefix(k, "above_"); ok {
		floor, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || floor < 0 {
			return Tier{}, fmt.Errorf("bad tier key %q", key)
		}
		return Tier{Key: k, Floor: floor, Unbounded: true}, nil
	}

	lo, hi, ok := strings.Cut(k, "-")
	if !ok {
		return Tier{}, fmt.Errorf("bad tier key %q", key)
	}
	start, err := strconv.ParseInt(lo, 10, 64)
	if err != nil || start < 0 {
		return Tier{}, fmt.Errorf("bad tier key %q", key)
	}
	end, err := strconv.ParseInt(hi, 10, 64)
	if err != nil || end < start {
		return Tier{}, fmt.Errorf("bad tier key %q", key)
	}
	// "11-30" covers units 11..30, so its floor is the previous ceiling.
	floor := start
	if start > 0 {
		floor = start - 1
	}
	return Tier{Key: k, Floor: floor, Ceiling: end}, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func normalizeNested(in map[string]map[string]decimal.Decimal) map[string]map[string]decimal.Decimal {
	out := make(map[string]map[string]decimal.Decimal, len(in))
	for outer, inner := range in {
		values := make(map[string]decimal.Decimal, len(inner))
		for k, v := range inner {
			values[normalizeKey(k)] = v
		}
		out[normalizeKey(outer)] = values
	}
	return out
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = normalizeKey(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
