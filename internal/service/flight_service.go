package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/airlogistic/internal/cache"
	"example.com/backstage/services/airlogistic/internal/domain"
	"example.com/backstage/services/airlogistic/internal/eventlog"
	"example.com/backstage/services/airlogistic/internal/metrics"
	"example.com/backstage/services/airlogistic/internal/models"
	"example.com/backstage/services/airlogistic/internal/repository"
	"example.com/backstage/services/airlogistic/internal/search"
)

const kindFlight = "flight"

// CreateFlightRequest carries the caller-supplied fields of a new flight.
// Derived fields are never accepted from callers.
type CreateFlightRequest struct {
	FlightNumber     string    `json:"flight_number" validate:"required"`
	Carrier          string    `json:"carrier" validate:"required"`
	AircraftType     string    `json:"aircraft_type"`
	DepartureAirport string    `json:"departure_airport" validate:"required"`
	ArrivalAirport   string    `json:"arrival_airport" validate:"required"`
	DepartureTime    time.Time `json:"departure_time" validate:"required"`
	ArrivalTime      time.Time `json:"arrival_time" validate:"required"`
}

// UpdateFlightRequest carries a partial update; nil fields are left unchanged.
type UpdateFlightRequest struct {
	FlightNumber     *string    `json:"flight_number"`
	Carrier          *string    `json:"carrier"`
	AircraftType     *string    `json:"aircraft_type"`
	DepartureAirport *string    `json:"departure_airport"`
	ArrivalAirport   *string    `json:"arrival_airport"`
	DepartureTime    *time.Time `json:"departure_time"`
	ArrivalTime      *time.Time `json:"arrival_time"`
}

// FlightService manages scheduled flights
type FlightService interface {
	Create(ctx context.Context, actor Actor, req *CreateFlightRequest) (*models.Flight, error)
	Update(ctx context.Context, actor Actor, id string, req *UpdateFlightRequest) (*models.Flight, error)
	Transition(ctx context.Context, actor Actor, id, transition string) (*models.Flight, error)
	Get(ctx context.Context, id string) (*models.Flight, error)
	List(ctx context.Context, filter repository.FlightFilter) ([]models.Flight, error)
	Delete(ctx context.Context, actor Actor, id string) error
}

type flightService struct {
	repo    repository.FlightRepository
	sink    eventlog.Sink
	cache   cache.Client
	indexer search.Indexer
	metrics *metrics.Metrics
	locks   *keyedLocks
}

// NewFlightService creates a flight service
func NewFlightService(repo repository.FlightRepository, sink eventlog.Sink, c cache.Client, indexer search.Indexer, m *metrics.Metrics) FlightService {
	return &flightService{
		repo:    repo,
		sink:    sink,
		cache:   c,
		indexer: indexer,
		metrics: m,
		locks:   newKeyedLocks(),
	}
}

// uniquenessKey scopes the write lock so two concurrent creates for the same
// flight number and date cannot both pass the duplicate check.
func (s *flightService) uniquenessKey(flightNumber, departureDate string) string {
	return fmt.Sprintf("flight:%s:%s", flightNumber, departureDate)
}

func (s *flightService) Create(ctx context.Context, actor Actor, req *CreateFlightRequest) (*models.Flight, error) {
	start := time.Now()

	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	flight := &models.Flight{
		FlightNumber:     req.FlightNumber,
		Carrier:          req.Carrier,
		AircraftType:     req.AircraftType,
		DepartureAirport: req.DepartureAirport,
		ArrivalAirport:   req.ArrivalAirport,
		DepartureTime:    req.DepartureTime,
		ArrivalTime:      req.ArrivalTime,
		Status:           models.FlightScheduled,
	}
	flight.UUID = uuid.New().String()
	flight.TenantID = actor.TenantID
	flight.Active = true

	flight.Normalize()
	flight.Recompute()

	if violations := flight.Validate(); len(violations) > 0 {
		s.metrics.ObserveViolations(kindFlight, violationCodes(violations))
		return nil, domain.NewValidationError(kindFlight, flight.UUID, violations)
	}

	release := s.locks.Acquire(s.uniquenessKey(flight.FlightNumber, flight.DepartureDate))
	defer release()

	dup, err := s.repo.HasDuplicate(ctx, flight.FlightNumber, flight.DepartureDate, "")
	if err != nil {
		return nil, err
	}
	if dup {
		v := domain.DuplicateViolation("flight_number", flight.FlightNumber, flight.DepartureDate)
		s.metrics.ObserveViolations(kindFlight, []string{v.Code})
		return nil, domain.NewValidationError(kindFlight, flight.UUID, []domain.Violation{*v})
	}

	if err := s.repo.Create(ctx, flight); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, flight)
	postEvent(ctx, s.sink, actor, kindFlight, flight.UUID, "create",
		fmt.Sprintf("Flight %s created by %s", flight.DisplayName(), actor.Name))
	s.metrics.ObserveMutation(kindFlight, "create", start)

	return flight, nil
}

func (s *flightService) Update(ctx context.Context, actor Actor, id string, req *UpdateFlightRequest) (*models.Flight, error) {
	start := time.Now()

	flight, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FlightNumber != nil {
		flight.FlightNumber = *req.FlightNumber
	}
	if req.Carrier != nil {
		flight.Carrier = *req.Carrier
	}
	if req.AircraftType != nil {
		flight.AircraftType = *req.AircraftType
	}
	if req.DepartureAirport != nil {
		flight.DepartureAirport = *req.DepartureAirport
	}
	if req.ArrivalAirport != nil {
		flight.ArrivalAirport = *req.ArrivalAirport
	}
	if req.DepartureTime != nil {
		flight.DepartureTime = *req.DepartureTime
	}
	if req.ArrivalTime != nil {
		flight.ArrivalTime = *req.ArrivalTime
	}

	flight.Normalize()
	flight.Recompute()

	if violations := flight.Validate(); len(violations) > 0 {
		s.metrics.ObserveViolations(kindFlight, violationCodes(violations))
		return nil, domain.NewValidationError(kindFlight, flight.UUID, violations)
	}

	release := s.locks.Acquire(s.uniquenessKey(flight.FlightNumber, flight.DepartureDate))
	defer release()

	dup, err := s.repo.HasDuplicate(ctx, flight.FlightNumber, flight.DepartureDate, flight.UUID)
	if err != nil {
		return nil, err
	}
	if dup {
		v := domain.DuplicateViolation("flight_number", flight.FlightNumber, flight.DepartureDate)
		s.metrics.ObserveViolations(kindFlight, []string{v.Code})
		return nil, domain.NewValidationError(kindFlight, flight.UUID, []domain.Violation{*v})
	}

	if err := s.repo.Update(ctx, flight); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, flight)
	postEvent(ctx, s.sink, actor, kindFlight, flight.UUID, "update",
		fmt.Sprintf("Flight %s updated by %s", flight.DisplayName(), actor.Name))
	s.metrics.ObserveMutation(kindFlight, "update", start)

	return flight, nil
}

func (s *flightService) Transition(ctx context.Context, actor Actor, id, transition string) (*models.Flight, error) {
	start := time.Now()

	flight, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := models.FlightMachine.Apply(flight.UUID, flight.Status, transition)
	if err != nil {
		s.metrics.ObserveRejection(kindFlight, "invalid_transition")
		return nil, err
	}

	flight.Status = next
	flight.Recompute()

	if err := s.repo.Update(ctx, flight); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, flight)
	postEvent(ctx, s.sink, actor, kindFlight, flight.UUID, transition,
		fmt.Sprintf("Flight %s marked as %s by %s", flight.DisplayName(), next, actor.Name))
	s.metrics.ObserveTransition(kindFlight, transition)
	s.metrics.ObserveMutation(kindFlight, "transition", start)

	return flight, nil
}

func (s *flightService) Get(ctx context.Context, id string) (*models.Flight, error) {
	var cached models.Flight
	if s.cache != nil {
		if err := s.cache.Get(ctx, kindFlight, id, &cached); err == nil {
			return &cached, nil
		}
	}

	flight, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, kindFlight, id, flight); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to cache flight")
		}
	}
	return flight, nil
}

func (s *flightService) List(ctx context.Context, filter repository.FlightFilter) ([]models.Flight, error) {
	return s.repo.List(ctx, filter)
}

func (s *flightService) Delete(ctx context.Context, actor Actor, id string) error {
	flight, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	flight.Active = false
	if err := s.repo.Update(ctx, flight); err != nil {
		return err
	}

	evictCache(ctx, s.cache, kindFlight, flight.UUID)
	dropFromIndex(ctx, s.indexer, kindFlight, flight.UUID)
	postEvent(ctx, s.sink, actor, kindFlight, flight.UUID, "delete",
		fmt.Sprintf("Flight %s archived by %s", flight.DisplayName(), actor.Name))

	return nil
}

// afterWrite refreshes the cache and search projections after a committed
// mutation. Both are best-effort.
func (s *flightService) afterWrite(ctx context.Context, flight *models.Flight) {
	if s.cache != nil {
		if err := s.cache.Set(ctx, kindFlight, flight.UUID, flight); err != nil {
			log.Warn().Err(err).Str("id", flight.UUID).Msg("Failed to cache flight")
		}
	}
	indexEntity(ctx, s.indexer, kindFlight, flight.UUID, flight)
}
