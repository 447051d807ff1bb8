package models

import (
	"fmt"
	"time"

	"example.com/backstage/services/airlogistic/internal/domain"
)

// BinType defines the physical kind of a cargo bin
type BinType string

const (
	// BinTypeULD represents a Unit Load Device
	BinTypeULD BinType = "uld"
	// BinTypePallet represents a cargo pallet
	BinTypePallet BinType = "pallet"
	// BinTypeContainer represents a generic container
	BinTypeContainer BinType = "container"
	// BinTypeBulk represents loose bulk cargo
	BinTypeBulk BinType = "bulk"
	// BinTypeSpecial represents special-handling cargo
	BinTypeSpecial BinType = "special"
)

// Label returns the human label for a bin type.
func (t BinType) Label() string {
	labels := map[BinType]string{
		BinTypeULD:       "ULD (Unit Load Device)",
		BinTypePallet:    "Pallet",
		BinTypeContainer: "Container",
		BinTypeBulk:      "Bulk Cargo",
		BinTypeSpecial:   "Special Cargo",
	}
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

// Valid reports whether the bin type is one of the known kinds.
func (t BinType) Valid() bool {
	switch t {
	case BinTypeULD, BinTypePallet, BinTypeContainer, BinTypeBulk, BinTypeSpecial:
		return true
	}
	return false
}

// BinState defines the derived status of a bin
type BinState = domain.Status

const (
	// BinAvailable represents a bin with no flight assignment
	BinAvailable BinState = "available"
	// BinAssigned represents an empty bin assigned to a scheduled flight
	BinAssigned BinState = "assigned"
	// BinLoaded represents a loaded bin on a scheduled flight
	BinLoaded BinState = "loaded"
	// BinInTransit represents a bin on a boarding or departed flight
	BinInTransit BinState = "in_transit"
	// BinDelivered represents a bin on an arrived flight
	BinDelivered BinState = "delivered"
	// BinMaintenance represents a bin taken out of rotation
	BinMaintenance BinState = "maintenance"
)

// Bin represents a cargo bin container. Its state is fully derived from the
// flight linkage, the flight's status and the current load; the only
// administrative transition is maintenance, and only while unassigned.
type Bin struct {
	Base
	BinCode    string  `json:"bin_code" gorm:"index"`
	BinType    BinType `json:"bin_type" gorm:"default:container"`
	BinSubtype string  `json:"bin_subtype"`

	Volume        float64 `json:"volume"`
	MaxWeight     float64 `json:"max_weight"`
	CurrentWeight float64 `json:"current_weight"`
	Length        float64 `json:"length"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`

	CargoFlightID *string      `json:"cargo_flight_id" gorm:"type:uuid;index"`
	CargoFlight   *CargoFlight `json:"-" gorm:"foreignKey:CargoFlightID"`

	CurrentLocation string `json:"current_location"`
	Description     string `json:"description"`
	Barcode         string `json:"barcode"`

	LastMaintenanceDate *time.Time `json:"last_maintenance_date"`
	NextMaintenanceDate *time.Time `json:"next_maintenance_date"`
	CertificationExpiry *time.Time `json:"certification_expiry"`

	State BinState `json:"state" gorm:"default:available"`

	// Derived weight bookkeeping.
	Name              string  `json:"name"`
	AvailableWeight   float64 `json:"available_weight"`
	WeightUtilization float64 `json:"weight_utilization"`
	IsOverloaded      bool    `json:"is_overloaded"`
}

// Validate runs the bin rule table against the proposed state.
func (b *Bin) Validate() []domain.Violation {
	var violations []domain.Violation
	appendIf := func(v *domain.Violation) {
		if v != nil {
			violations = append(violations, *v)
		}
	}

	appendIf(domain.CheckRequired("bin_code", b.BinCode))
	if !b.BinType.Valid() {
		violations = append(violations, domain.Violation{
			Code:    domain.CodeCodeFormat,
			Field:   "bin_type",
			Message: fmt.Sprintf("unknown bin type %q", b.BinType),
			Value:   string(b.BinType),
		})
	}
	appendIf(domain.CheckPositive("volume", b.Volume))
	appendIf(domain.CheckPositive("max_weight", b.MaxWeight))
	appendIf(domain.CheckNonNegative("current_weight", b.CurrentWeight))

	return violations
}

// Recompute refreshes the derived fields from the authoritative ones and the
// linked flight. flight is nil when the bin is unassigned. Overload is a
// derived flag, not a violation: an overloaded bin persists but blocks its
// flight's departure.
func (b *Bin) Recompute(flight *CargoFlight) {
	b.AvailableWeight = b.MaxWeight - b.CurrentWeight
	b.WeightUtilization = domain.Percentage(b.CurrentWeight, b.MaxWeight)
	b.IsOverloaded = b.CurrentWeight > b.MaxWeight
	b.Name = fmt.Sprintf("[%s] %s", b.BinCode, b.BinType.Label())
	b.State = b.deriveState(flight)
}

func (b *Bin) deriveState(flight *CargoFlight) BinState {
	if b.CargoFlightID == nil || flight == nil {
		// Maintenance is sticky while the bin stays unassigned.
		if b.State == BinMaintenance {
			return BinMaintenance
		}
		return BinAvailable
	}

	switch flight.Status {
	case CargoFlightScheduled:
		if b.CurrentWeight > 0 {
			return BinLoaded
		}
		return BinAssigned
	case CargoFlightBoarding, CargoFlightDeparted:
		return BinInTransit
	case CargoFlightArrived:
		return BinDelivered
	default:
		return BinAvailable
	}
}

// DisplayName returns the bin's list label, including its flight when assigned.
func (b *Bin) DisplayName() string {
	if b.CargoFlight != nil {
		return fmt.Sprintf("%s → %s", b.Name, b.CargoFlight.FlightNumber)
	}
	return b.Name
}
