package models

import (
	"fmt"
	"time"

	"example.com/backstage/services/airlogistic/internal/domain"
)

// FlightStatus defines the status of a scheduled flight
type FlightStatus = domain.Status

const (
	// FlightScheduled represents a flight that has not yet departed
	FlightScheduled FlightStatus = "scheduled"
	// FlightDeparted represents a flight in the air
	FlightDeparted FlightStatus = "departed"
	// FlightLanded represents a flight that has landed (terminal)
	FlightLanded FlightStatus = "landed"
	// FlightCancelled represents a cancelled flight (terminal)
	FlightCancelled FlightStatus = "cancelled"
)

// Flight transitions
const (
	FlightTransitionDepart     = "depart"
	FlightTransitionLand       = "land"
	FlightTransitionCancel     = "cancel"
	FlightTransitionReschedule = "reschedule"
)

// FlightMachine is the status graph for scheduled flights. Reschedule resets
// any non-landed flight back to scheduled.
var FlightMachine = domain.NewMachine("flight",
	domain.Transition{Name: FlightTransitionDepart, Sources: []domain.Status{FlightScheduled}, Target: FlightDeparted},
	domain.Transition{Name: FlightTransitionLand, Sources: []domain.Status{FlightDeparted}, Target: FlightLanded},
	domain.Transition{Name: FlightTransitionCancel, Sources: []domain.Status{FlightScheduled, FlightDeparted}, Target: FlightCancelled},
	domain.Transition{Name: FlightTransitionReschedule, Sources: []domain.Status{FlightScheduled, FlightDeparted, FlightCancelled}, Target: FlightScheduled},
)

// Flight represents a scheduled passenger flight
type Flight struct {
	Base
	FlightNumber     string       `json:"flight_number" gorm:"uniqueIndex:idx_flight_number_date"`
	Carrier          string       `json:"carrier"`
	AircraftType     string       `json:"aircraft_type"`
	DepartureAirport string       `json:"departure_airport" gorm:"size:3"`
	ArrivalAirport   string       `json:"arrival_airport" gorm:"size:3"`
	DepartureTime    time.Time    `json:"departure_time"`
	ArrivalTime      time.Time    `json:"arrival_time"`
	Status           FlightStatus `json:"status" gorm:"default:scheduled"`

	// Derived fields, recomputed on every authoritative change and never
	// settable by callers.
	DurationHours float64 `json:"duration_hours"`
	DepartureDate string  `json:"departure_date" gorm:"size:10;uniqueIndex:idx_flight_number_date"`
}

// Normalize canonicalizes caller-supplied fields before validation.
func (f *Flight) Normalize() {
	f.DepartureAirport = domain.NormalizeAirportCode(f.DepartureAirport)
	f.ArrivalAirport = domain.NormalizeAirportCode(f.ArrivalAirport)
}

// Validate runs the flight rule table against the proposed state.
func (f *Flight) Validate() []domain.Violation {
	var violations []domain.Violation
	appendIf := func(v *domain.Violation) {
		if v != nil {
			violations = append(violations, *v)
		}
	}

	appendIf(domain.CheckRequired("flight_number", f.FlightNumber))
	appendIf(domain.CheckRequired("carrier", f.Carrier))
	appendIf(domain.CheckAirportCode("departure_airport", f.DepartureAirport))
	appendIf(domain.CheckAirportCode("arrival_airport", f.ArrivalAirport))
	appendIf(domain.CheckDistinct("departure_airport", "arrival_airport", f.DepartureAirport, f.ArrivalAirport))
	appendIf(domain.CheckTemporalOrder("arrival_time", f.DepartureTime, f.ArrivalTime))

	return violations
}

// Recompute refreshes the derived fields from the authoritative ones. It is
// idempotent and must run after every authoritative mutation.
func (f *Flight) Recompute() {
	f.DurationHours = f.ArrivalTime.Sub(f.DepartureTime).Hours()
	f.DepartureDate = f.DepartureTime.UTC().Format("2006-01-02")
}

// DisplayName returns the flight's list label, e.g. "VN123 (HAN-SGN)".
func (f *Flight) DisplayName() string {
	return fmt.Sprintf("%s (%s-%s)", f.FlightNumber, f.DepartureAirport, f.ArrivalAirport)
}
