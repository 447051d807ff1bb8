package models

import (
	"fmt"
	"time"

	"example.com/backstage/services/airlogistic/internal/domain"
)

// CargoFlightStatus defines the status of a cargo flight
type CargoFlightStatus = domain.Status

const (
	// CargoFlightScheduled represents a scheduled cargo flight
	CargoFlightScheduled CargoFlightStatus = "scheduled"
	// CargoFlightBoarding represents a cargo flight being loaded
	CargoFlightBoarding CargoFlightStatus = "boarding"
	// CargoFlightDeparted represents a cargo flight in the air
	CargoFlightDeparted CargoFlightStatus = "departed"
	// CargoFlightArrived represents a cargo flight at destination (terminal)
	CargoFlightArrived CargoFlightStatus = "arrived"
	// CargoFlightCancelled represents a cancelled cargo flight (terminal)
	CargoFlightCancelled CargoFlightStatus = "cancelled"
)

// Cargo flight transitions
const (
	CargoTransitionBoard  = "board"
	CargoTransitionDepart = "depart"
	CargoTransitionArrive = "arrive"
	CargoTransitionCancel = "cancel"
)

// CargoFlightMachine is the status graph for cargo flights. The depart
// transition is additionally gated on the flight having no overloaded bins;
// that cross-entity precondition lives in the cargo service.
var CargoFlightMachine = domain.NewMachine("cargo_flight",
	domain.Transition{Name: CargoTransitionBoard, Sources: []domain.Status{CargoFlightScheduled}, Target: CargoFlightBoarding},
	domain.Transition{Name: CargoTransitionDepart, Sources: []domain.Status{CargoFlightScheduled, CargoFlightBoarding}, Target: CargoFlightDeparted},
	domain.Transition{Name: CargoTransitionArrive, Sources: []domain.Status{CargoFlightDeparted}, Target: CargoFlightArrived},
	domain.Transition{Name: CargoTransitionCancel, Sources: []domain.Status{CargoFlightScheduled, CargoFlightBoarding}, Target: CargoFlightCancelled},
)

// CargoFlight represents a cargo flight carrying bins
type CargoFlight struct {
	Base
	FlightNumber     string            `json:"flight_number" gorm:"index"`
	Airline          string            `json:"airline"`
	AircraftType     string            `json:"aircraft_type"`
	DepartureAirport string            `json:"departure_airport" gorm:"size:3"`
	ArrivalAirport   string            `json:"arrival_airport" gorm:"size:3"`
	DepartureDate    time.Time         `json:"departure_date"`
	ArrivalDate      time.Time         `json:"arrival_date"`
	Status           CargoFlightStatus `json:"status" gorm:"default:scheduled"`
	MaxCargoWeight   float64           `json:"max_cargo_weight"`
	MaxCargoVolume   float64           `json:"max_cargo_volume"`

	Bins []Bin `json:"bins,omitempty" gorm:"foreignKey:CargoFlightID"`

	// Derived aggregates over the active assigned bins.
	BinCount          int     `json:"bin_count"`
	TotalBinWeight    float64 `json:"total_bin_weight"`
	TotalBinVolume    float64 `json:"total_bin_volume"`
	WeightUtilization float64 `json:"weight_utilization"`
	VolumeUtilization float64 `json:"volume_utilization"`
	HasOverloadedBins bool    `json:"has_overloaded_bins"`
}

// IsDeparted reports whether the flight has passed the departure milestone,
// after which bin assignments and loads become write-once.
func (f *CargoFlight) IsDeparted() bool {
	return f.Status == CargoFlightDeparted || f.Status == CargoFlightArrived
}

// Normalize canonicalizes caller-supplied fields before validation.
func (f *CargoFlight) Normalize() {
	f.DepartureAirport = domain.NormalizeAirportCode(f.DepartureAirport)
	f.ArrivalAirport = domain.NormalizeAirportCode(f.ArrivalAirport)
}

// Validate runs the cargo flight rule table against the proposed state.
func (f *CargoFlight) Validate() []domain.Violation {
	var violations []domain.Violation
	appendIf := func(v *domain.Violation) {
		if v != nil {
			violations = append(violations, *v)
		}
	}

	appendIf(domain.CheckRequired("flight_number", f.FlightNumber))
	appendIf(domain.CheckRequired("airline", f.Airline))
	appendIf(domain.CheckAirportCode("departure_airport", f.DepartureAirport))
	appendIf(domain.CheckAirportCode("arrival_airport", f.ArrivalAirport))
	appendIf(domain.CheckDistinct("departure_airport", "arrival_airport", f.DepartureAirport, f.ArrivalAirport))
	appendIf(domain.CheckTemporalOrder("arrival_date", f.DepartureDate, f.ArrivalDate))
	appendIf(domain.CheckNonNegative("max_cargo_weight", f.MaxCargoWeight))
	appendIf(domain.CheckNonNegative("max_cargo_volume", f.MaxCargoVolume))

	return violations
}

// Recompute refreshes the aggregates from the current set of assigned bins.
// Inactive bins are excluded. Idempotent; must run after every bin insert,
// removal or update under this flight.
func (f *CargoFlight) Recompute(bins []Bin) {
	f.BinCount = 0
	f.TotalBinWeight = 0
	f.TotalBinVolume = 0
	f.HasOverloadedBins = false

	for i := range bins {
		if !bins[i].Active {
			continue
		}
		f.BinCount++
		f.TotalBinWeight += bins[i].CurrentWeight
		f.TotalBinVolume += bins[i].Volume
		if bins[i].IsOverloaded {
			f.HasOverloadedBins = true
		}
	}

	f.WeightUtilization = domain.Percentage(f.TotalBinWeight, f.MaxCargoWeight)
	f.VolumeUtilization = domain.Percentage(f.TotalBinVolume, f.MaxCargoVolume)
}

// OverloadedBinCodes lists the codes of the active overloaded bins, used in
// the departure-blocked error.
func (f *CargoFlight) OverloadedBinCodes(bins []Bin) []string {
	var codes []string
	for i := range bins {
		if bins[i].Active && bins[i].IsOverloaded {
			codes = append(codes, bins[i].BinCode)
		}
	}
	return codes
}

// DisplayName returns the flight's list label.
func (f *CargoFlight) DisplayName() string {
	return fmt.Sprintf("%s (%s → %s)", f.FlightNumber, f.DepartureAirport, f.ArrivalAirport)
}
