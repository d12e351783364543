package service

import (
	"math"
	"time"

	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
)

// StampDutyInput is what staff1 supplies for a stamp duty calculation
type StampDutyInput struct {
	PropertyValue float64 `json:"property_value"`
	PropertyType  string  `json:"property_type,omitempty"`
	Location      string  `json:"location,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

type stampRule struct {
	rate    float64
	minimum float64
	fixed   float64
	method  string
}

var stampRules = map[entity.ServiceType]stampRule{
	entity.ServiceSaleDeed:             {rate: 0.06, method: "Standard Rate (6%)"},
	entity.ServiceWillDeed:             {rate: 0.001, minimum: 500, method: "0.1% with minimum 500"},
	entity.ServiceTrustDeed:            {rate: 0.03, method: "Trust Rate (3%)"},
	entity.ServicePropertyRegistration: {rate: 0.01, method: "Registration Rate (1%)"},
	entity.ServicePowerOfAttorney:      {fixed: 100, method: "Fixed Fee"},
	entity.ServiceAdoptionDeed:         {fixed: 50, method: "Fixed Fee"},
}

// CalculateStampDuty applies the duty rule of the service type, rounded to 2 decimals
func CalculateStampDuty(serviceType entity.ServiceType, in StampDutyInput, by string, at time.Time) (*entity.StampCalculation, error) {
	rule, ok := stampRules[serviceType]
	if !ok {
		return nil, errs.Validation("no stamp duty rule for service type %q", serviceType)
	}
	if in.PropertyValue < 0 || math.IsNaN(in.PropertyValue) || math.IsInf(in.PropertyValue, 0) {
		return nil, errs.Validation("property value must be a non-negative number")
	}
	if rule.fixed == 0 && in.PropertyValue == 0 {
		return nil, errs.Validation("property value is required for %s", serviceType.Title())
	}

	amount := rule.fixed
	if rule.fixed == 0 {
		amount = math.Max(rule.minimum, in.PropertyValue*rule.rate)
	}

	return &entity.StampCalculation{
		CalculatedAmount:  math.Round(amount*100) / 100,
		CalculationMethod: rule.method,
		PropertyValue:     in.PropertyValue,
		PropertyType:      in.PropertyType,
		Location:          in.Location,
		Notes:             in.Notes,
		CalculatedBy:      by,
		CalculatedAt:      at,
	}, nil
}
