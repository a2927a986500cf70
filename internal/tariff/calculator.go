package tariff

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Calculate prices req against schedule. It never returns a non-zero amount
// together with an error.
func Calculate(schedule Schedule, req Request) (decimal.Decimal, error) {
	if schedule == nil || req == nil {
		return decimal.Zero, ErrScheduleMismatch
	}
	if schedule.ServiceCode() != req.ServiceCode() {
		return decimal.Zero, ErrScheduleMismatch
	}

	var (
		amount decimal.Decimal
		err    error
	)
	switch r := req.(type) {
	case WaterRequest:
		s, ok := schedule.(WaterSchedule)
		if !ok {
			return decimal.Zero, ErrScheduleMismatch
		}
		amount, err = calculateWater(s, r)
	case ParkingRequest:
		s, ok := schedule.(ParkingSchedule)
		if !ok {
			return decimal.Zero, ErrScheduleMismatch
		}
		amount, err = calculateParking(s, r)
	case BusinessRequest:
		s, ok := schedule.(BusinessSchedule)
		if !ok {
			return decimal.Zero, ErrScheduleMismatch
		}
		amount, err = calculateBusiness(s, r)
	case LandRequest:
		s, ok := schedule.(LandSchedule)
		if !ok {
			return decimal.Zero, ErrScheduleMismatch
		}
		amount, err = calculateLand(s, r)
	case WasteRequest:
		s, ok := schedule.(WasteSchedule)
		if !ok {
			return decimal.Zero, ErrScheduleMismatch
		}
		amount, err = calculateWaste(s, r)
	default:
		return decimal.Zero, ErrScheduleMismatch
	}
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Round(2), nil
}

// calculateWater bills each tier only for the units that fall inside it. Units
// past the last bounded tier are billed at that tier's rate.
func calculateWater(s WaterSchedule, r WaterRequest) (decimal.Decimal, error) {
	tiers, ok := s.Tiers[r.UsageType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: water usage type %q", ErrRateNotFound, r.UsageType)
	}
	total := decimal.Zero
	for i, tier := range tiers {
		if r.Reading <= tier.Floor {
			break
		}
		upper := r.Reading
		last := i == len(tiers)-1
		if !tier.Unbounded && !last && tier.Ceiling < upper {
			upper = tier.Ceiling
		}
		units := decimal.NewFromInt(upper - tier.Floor)
		total = total.Add(units.Mul(tier.Rate))
	}
	return total, nil
}

func calculateParking(s ParkingSchedule, r ParkingRequest) (decimal.Decimal, error) {
	if len(s.Zones) > 0 && !slices.Contains(s.Zones, r.Zone) {
		return decimal.Zero, &AttributeError{Field: "zone", Reason: "unknown parking zone"}
	}
	byVehicle, ok := s.Rates[r.Duration]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: parking duration %q", ErrRateNotFound, r.Duration)
	}
	amount, ok := byVehicle[r.VehicleType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: parking vehicle %q", ErrRateNotFound, r.VehicleType)
	}
	return amount, nil
}

// calculateBusiness adds the band's own processing fee, which is unrelated
// to the gateway fee.
func calculateBusiness(s BusinessSchedule, r BusinessRequest) (decimal.Decimal, error) {
	band, ok := s.Bands[r.BusinessType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: business type %q", ErrRateNotFound, r.BusinessType)
	}
	return band.BaseFee.Add(band.ProcessingFee), nil
}

func calculateLand(s LandSchedule, r LandRequest) (decimal.Decimal, error) {
	rule, ok := s.Rules[r.PropertyType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: property type %q", ErrRateNotFound, r.PropertyType)
	}
	return decimal.Max(r.PropertyValue.Mul(rule.RatePercentage), rule.MinimumCharge), nil
}

func calculateWaste(s WasteSchedule, r WasteRequest) (decimal.Decimal, error) {
	bySize, ok := s.Rates[r.CustomerType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: customer type %q", ErrRateNotFound, r.CustomerType)
	}
	amount, ok := bySize[r.BinSize]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: bin size %q", ErrRateNotFound, r.BinSize)
	}
	return amount, nil
}
