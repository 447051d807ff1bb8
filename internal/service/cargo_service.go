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

const (
	kindCargoFlight = "cargo_flight"
	kindBin         = "bin"
)

// CreateCargoFlightRequest carries the caller-supplied fields of a new cargo flight.
type CreateCargoFlightRequest struct {
	FlightNumber     string    `json:"flight_number" validate:"required"`
	Airline          string    `json:"airline" validate:"required"`
	AircraftType     string    `json:"aircraft_type"`
	DepartureAirport string    `json:"departure_airport" validate:"required"`
	ArrivalAirport   string    `json:"arrival_airport" validate:"required"`
	DepartureDate    time.Time `json:"departure_date" validate:"required"`
	ArrivalDate      time.Time `json:"arrival_date" validate:"required"`
	MaxCargoWeight   float64   `json:"max_cargo_weight"`
	MaxCargoVolume   float64   `json:"max_cargo_volume"`
}

// UpdateCargoFlightRequest carries a partial update; nil fields are left unchanged.
type UpdateCargoFlightRequest struct {
	FlightNumber     *string    `json:"flight_number"`
	Airline          *string    `json:"airline"`
	AircraftType     *string    `json:"aircraft_type"`
	DepartureAirport *string    `json:"departure_airport"`
	ArrivalAirport   *string    `json:"arrival_airport"`
	DepartureDate    *time.Time `json:"departure_date"`
	ArrivalDate      *time.Time `json:"arrival_date"`
	MaxCargoWeight   *float64   `json:"max_cargo_weight"`
	MaxCargoVolume   *float64   `json:"max_cargo_volume"`
}

// CreateBinRequest carries the caller-supplied fields of a new bin. Bins are
// created unassigned; flight linkage goes through Assign.
type CreateBinRequest struct {
	BinCode    string         `json:"bin_code" validate:"required"`
	BinType    models.BinType `json:"bin_type"`
	BinSubtype string         `json:"bin_subtype"`

	Volume        float64 `json:"volume"`
	MaxWeight     float64 `json:"max_weight"`
	CurrentWeight float64 `json:"current_weight"`
	Length        float64 `json:"length"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`

	CurrentLocation string `json:"current_location"`
	Description     string `json:"description"`
	Barcode         string `json:"barcode"`

	LastMaintenanceDate *time.Time `json:"last_maintenance_date"`
	NextMaintenanceDate *time.Time `json:"next_maintenance_date"`
	CertificationExpiry *time.Time `json:"certification_expiry"`
}

// UpdateBinRequest carries a partial update; nil fields are left unchanged.
// The flight linkage is not updatable here; use Assign and Unassign.
type UpdateBinRequest struct {
	BinCode    *string         `json:"bin_code"`
	BinType    *models.BinType `json:"bin_type"`
	BinSubtype *string         `json:"bin_subtype"`

	Volume        *float64 `json:"volume"`
	MaxWeight     *float64 `json:"max_weight"`
	CurrentWeight *float64 `json:"current_weight"`
	Length        *float64 `json:"length"`
	Width         *float64 `json:"width"`
	Height        *float64 `json:"height"`

	CurrentLocation *string `json:"current_location"`
	Description     *string `json:"description"`
	Barcode         *string `json:"barcode"`

	LastMaintenanceDate *time.Time `json:"last_maintenance_date"`
	NextMaintenanceDate *time.Time `json:"next_maintenance_date"`
	CertificationExpiry *time.Time `json:"certification_expiry"`
}

// CargoService manages cargo flights and their bins
type CargoService interface {
	CreateFlight(ctx context.Context, actor Actor, req *CreateCargoFlightRequest) (*models.CargoFlight, error)
	UpdateFlight(ctx context.Context, actor Actor, id string, req *UpdateCargoFlightRequest) (*models.CargoFlight, error)
	TransitionFlight(ctx context.Context, actor Actor, id, transition string) (*models.CargoFlight, error)
	GetFlight(ctx context.Context, id string) (*models.CargoFlight, error)
	ListFlights(ctx context.Context, filter repository.CargoFlightFilter) ([]models.CargoFlight, error)
	FlightBins(ctx context.Context, flightID string) ([]models.Bin, error)
	DeleteFlight(ctx context.Context, actor Actor, id string) error

	CreateBin(ctx context.Context, actor Actor, req *CreateBinRequest) (*models.Bin, error)
	UpdateBin(ctx context.Context, actor Actor, id string, req *UpdateBinRequest) (*models.Bin, error)
	GetBin(ctx context.Context, id string) (*models.Bin, error)
	ListBins(ctx context.Context, filter repository.BinFilter) ([]models.Bin, error)
	AvailableBins(ctx context.Context, tenantID string, minVolume, minMaxWeight float64) ([]models.Bin, error)
	OverloadedBins(ctx context.Context, tenantID string) ([]models.Bin, error)
	DeleteBin(ctx context.Context, actor Actor, id string) error

	Assign(ctx context.Context, actor Actor, binID, flightID string) (*models.Bin, error)
	Unassign(ctx context.Context, actor Actor, binID string) (*models.Bin, error)
	ResetWeight(ctx context.Context, actor Actor, binID string) (*models.Bin, error)
	SetMaintenance(ctx context.Context, actor Actor, binID string) (*models.Bin, error)
}

type cargoService struct {
	repo    repository.CargoRepository
	sink    eventlog.Sink
	cache   cache.Client
	indexer search.Indexer
	metrics *metrics.Metrics
	locks   *keyedLocks
}

// NewCargoService creates a cargo service
func NewCargoService(repo repository.CargoRepository, sink eventlog.Sink, c cache.Client, indexer search.Indexer, m *metrics.Metrics) CargoService {
	return &cargoService{
		repo:    repo,
		sink:    sink,
		cache:   c,
		indexer: indexer,
		metrics: m,
		locks:   newKeyedLocks(),
	}
}

// flightKey serializes all bin-set mutations under one flight so aggregate
// recomputation always sees a consistent bin set.
func flightKey(flightID string) string {
	return "cargo_flight:" + flightID
}

// binCodeKey serializes bin creates and renames per tenant for the
// duplicate-code check.
func binCodeKey(tenantID string) string {
	return "bin_code:" + tenantID
}

// lockBinForWrite loads a bin under its linked flight's lock. The linkage is
// read once to pick the lock, then re-read under it, retrying until stable,
// so departed-flight checks always run against the committed state. Bins
// with no linkage need no lock and get a no-op release.
func (s *cargoService) lockBinForWrite(ctx context.Context, binID string) (*models.Bin, func(), error) {
	for {
		peek, err := s.repo.GetBin(ctx, binID)
		if err != nil {
			return nil, nil, err
		}
		if peek.CargoFlightID == nil {
			return peek, func() {}, nil
		}

		release := s.locks.Acquire(flightKey(*peek.CargoFlightID))
		bin, err := s.repo.GetBin(ctx, binID)
		if err != nil {
			release()
			return nil, nil, err
		}
		if bin.CargoFlightID != nil && *bin.CargoFlightID == *peek.CargoFlightID {
			return bin, release, nil
		}
		release()
	}
}

// lockBinAndFlight locks the assignment target together with the flight the
// bin currently rides, re-reading the bin until its linkage matches the
// locks held.
func (s *cargoService) lockBinAndFlight(ctx context.Context, binID, flightID string) (*models.Bin, func(), error) {
	for {
		peek, err := s.repo.GetBin(ctx, binID)
		if err != nil {
			return nil, nil, err
		}

		keys := []string{flightKey(flightID)}
		if peek.CargoFlightID != nil && *peek.CargoFlightID != flightID {
			keys = append(keys, flightKey(*peek.CargoFlightID))
		}
		release := s.locks.AcquireAll(keys...)

		bin, err := s.repo.GetBin(ctx, binID)
		if err != nil {
			release()
			return nil, nil, err
		}
		stable := bin.CargoFlightID == nil || *bin.CargoFlightID == flightID
		if !stable && peek.CargoFlightID != nil {
			stable = *bin.CargoFlightID == *peek.CargoFlightID
		}
		if stable {
			return bin, release, nil
		}
		release()
	}
}

func (s *cargoService) CreateFlight(ctx context.Context, actor Actor, req *CreateCargoFlightRequest) (*models.CargoFlight, error) {
	start := time.Now()

	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	flight := &models.CargoFlight{
		FlightNumber:     req.FlightNumber,
		Airline:          req.Airline,
		AircraftType:     req.AircraftType,
		DepartureAirport: req.DepartureAirport,
		ArrivalAirport:   req.ArrivalAirport,
		DepartureDate:    req.DepartureDate,
		ArrivalDate:      req.ArrivalDate,
		MaxCargoWeight:   req.MaxCargoWeight,
		MaxCargoVolume:   req.MaxCargoVolume,
		Status:           models.CargoFlightScheduled,
	}
	flight.UUID = uuid.New().String()
	flight.TenantID = actor.TenantID
	flight.Active = true

	flight.Normalize()
	flight.Recompute(nil)

	if violations := flight.Validate(); len(violations) > 0 {
		s.metrics.ObserveViolations(kindCargoFlight, violationCodes(violations))
		return nil, domain.NewValidationError(kindCargoFlight, flight.UUID, violations)
	}

	if err := s.repo.CreateFlight(ctx, flight); err != nil {
		return nil, err
	}

	s.afterFlightWrite(ctx, flight)
	postEvent(ctx, s.sink, actor, kindCargoFlight, flight.UUID, "create",
		fmt.Sprintf("Cargo flight %s created by %s", flight.DisplayName(), actor.Name))
	s.metrics.ObserveMutation(kindCargoFlight, "create", start)

	return flight, nil
}

func (s *cargoService) UpdateFlight(ctx context.Context, actor Actor, id string, req *UpdateCargoFlightRequest) (*models.CargoFlight, error) {
	start := time.Now()

	release := s.locks.Acquire(flightKey(id))
	defer release()

	flight, err := s.repo.GetFlight(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FlightNumber != nil {
		flight.FlightNumber = *req.FlightNumber
	}
	if req.Airline != nil {
		flight.Airline = *req.Airline
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
	if req.DepartureDate != nil {
		flight.DepartureDate = *req.DepartureDate
	}
	if req.ArrivalDate != nil {
		flight.ArrivalDate = *req.ArrivalDate
	}
	if req.MaxCargoWeight != nil {
		flight.MaxCargoWeight = *req.MaxCargoWeight
	}
	if req.MaxCargoVolume != nil {
		flight.MaxCargoVolume = *req.MaxCargoVolume
	}

	flight.Normalize()

	bins, err := s.repo.BinsForFlight(ctx, flight.UUID)
	if err != nil {
		return nil, err
	}
	flight.Recompute(bins)

	if violations := flight.Validate(); len(violations) > 0 {
		s.metrics.ObserveViolations(kindCargoFlight, violationCodes(violations))
		return nil, domain.NewValidationError(kindCargoFlight, flight.UUID, violations)
	}

	if err := s.repo.UpdateFlight(ctx, flight); err != nil {
		return nil, err
	}

	s.afterFlightWrite(ctx, flight)
	postEvent(ctx, s.sink, actor, kindCargoFlight, flight.UUID, "update",
		fmt.Sprintf("Cargo flight %s updated by %s", flight.DisplayName(), actor.Name))
	s.metrics.ObserveMutation(kindCargoFlight, "update", start)

	return flight, nil
}

func (s *cargoService) TransitionFlight(ctx context.Context, actor Actor, id, transition string) (*models.CargoFlight, error) {
	start := time.Now()

	release := s.locks.Acquire(flightKey(id))
	defer release()

	flight, err := s.repo.GetFlight(ctx, id)
	if err != nil {
		return nil, err
	}

	bins, err := s.repo.BinsForFlight(ctx, flight.UUID)
	if err != nil {
		return nil, err
	}

	// The depart gate reads the stored overload flags, which recomputation
	// keeps current on every bin write.
	if transition == models.CargoTransitionDepart {
		if codes := flight.OverloadedBinCodes(bins); len(codes) > 0 {
			s.metrics.ObserveRejection(kindCargoFlight, "departure_blocked")
			return nil, &domain.DepartureBlockedError{FlightNumber: flight.FlightNumber, OverloadedBins: codes}
		}
	}

	next, err := models.CargoFlightMachine.Apply(flight.UUID, flight.Status, transition)
	if err != nil {
		s.metrics.ObserveRejection(kindCargoFlight, "invalid_transition")
		return nil, err
	}

	flight.Status = next
	for i := range bins {
		bins[i].Recompute(flight)
	}
	flight.Recompute(bins)

	if err := s.repo.SaveFlightWithBins(ctx, flight, bins); err != nil {
		return nil, err
	}

	s.afterFlightWrite(ctx, flight)
	for i := range bins {
		s.afterBinWrite(ctx, &bins[i])
	}
	postEvent(ctx, s.sink, actor, kindCargoFlight, flight.UUID, transition,
		fmt.Sprintf("Cargo flight %s marked as %s by %s", flight.DisplayName(), next, actor.Name))
	s.metrics.ObserveTransition(kindCargoFlight, transition)
	s.metrics.ObserveMutation(kindCargoFlight, "transition", start)

	return flight, nil
}

func (s *cargoService) GetFlight(ctx context.Context, id string) (*models.CargoFlight, error) {
	var cached models.CargoFlight
	if s.cache != nil {
		if err := s.cache.Get(ctx, kindCargoFlight, id, &cached); err == nil {
			return &cached, nil
		}
	}

	flight, err := s.repo.GetFlight(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, kindCargoFlight, id, flight); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to cache cargo flight")
		}
	}
	return flight, nil
}

func (s *cargoService) ListFlights(ctx context.Context, filter repository.CargoFlightFilter) ([]models.CargoFlight, error) {
	return s.repo.ListFlights(ctx, filter)
}

func (s *cargoService) FlightBins(ctx context.Context, flightID string) ([]models.Bin, error) {
	if _, err := s.repo.GetFlight(ctx, flightID); err != nil {
		return nil, err
	}
	return s.repo.BinsForFlight(ctx, flightID)
}

// DeleteFlight archives a flight and releases its bins back to available.
func (s *cargoService) DeleteFlight(ctx context.Context, actor Actor, id string) error {
	release := s.locks.Acquire(flightKey(id))
	defer release()

	flight, err := s.repo.GetFlight(ctx, id)
	if err != nil {
		return err
	}

	bins, err := s.repo.BinsForFlight(ctx, flight.UUID)
	if err != nil {
		return err
	}

	flight.Active = false
	for i := range bins {
		bins[i].CargoFlightID = nil
		bins[i].Recompute(nil)
	}
	flight.Recompute(nil)

	if err := s.repo.SaveFlightWithBins(ctx, flight, bins); err != nil {
		return err
	}

	evictCache(ctx, s.cache, kindCargoFlight, flight.UUID)
	dropFromIndex(ctx, s.indexer, kindCargoFlight, flight.UUID)
	for i := range bins {
		s.afterBinWrite(ctx, &bins[i])
	}
	postEvent(ctx, s.sink, actor, kindCargoFlight, flight.UUID, "delete",
		fmt.Sprintf("Cargo flight %s archived by %s", flight.DisplayName(), actor.Name))

	return nil
}

func (s *cargoService) CreateBin(ctx context.Context, actor Actor, req *CreateBinRequest) (*models.Bin, error) {
	start := time.Now()

	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	bin := &models.Bin{
		BinCode:             req.BinCode,
		BinType:             req.BinType,
		BinSubtype:          req.BinSubtype,
		Volume:              req.Volume,
		MaxWeight:           req.MaxWeight,
		CurrentWeight:       req.CurrentWeight,
		Length:              req.Length,
		Width:               req.Width,
		Height:              req.Height,
		CurrentLocation:     req.CurrentLocation,
		Description:         req.Description,
		Barcode:             req.Barcode,
		LastMaintenanceDate: req.LastMaintenanceDate,
		NextMaintenanceDate: req.NextMaintenanceDate,
		CertificationExpiry: req.CertificationExpiry,
	}
	if bin.BinType == "" {
		bin.BinType = models.BinTypeContainer
	}
	bin.UUID = uuid.New().String()
	bin.TenantID = actor.TenantID
	bin.Active = true

	bin.Recompute(nil)

	if violations := bin.Validate(); len(violations) > 0 {
		s.metrics.ObserveViolations(kindBin, violationCodes(violations))
		return nil, domain.NewValidationError(kindBin, bin.UUID, violations)
	}

	release := s.locks.Acquire(binCodeKey(actor.TenantID))
	defer release()

	dup, err := s.repo.HasDuplicateBinCode(ctx, actor.TenantID, bin.BinCode, "")
	if err != nil {
		return nil, err
	}
	if dup {
		v := domain.DuplicateViolation("bin_code", bin.BinCode, "tenant")
		s.metrics.ObserveViolations(kindBin, []string{v.Code})
		return nil, domain.NewValidationError(kindBin, bin.UUID, []domain.Violation{*v})
	}

	if err := s.repo.SaveBinWithFlights(ctx, bin); err != nil {
		return nil, err
	}

	s.afterBinWrite(ctx, bin)
	postEvent(ctx, s.sink, actor, kindBin, bin.UUID, "create",
		fmt.Sprintf("Bin %s created by %s", bin.Name, actor.Name))
	s.metrics.ObserveMutation(kindBin, "create", start)

	return bin, nil
}

func (s *cargoService) UpdateBin(ctx context.Context, actor Actor, id string, req *UpdateBinRequest) (*models.Bin, error) {
	start := time.Now()

	bin, release, err := s.lockBinForWrite(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()
	flight := bin.CargoFlight

	// The load is write-once after the linked flight departs.
	if req.CurrentWeight != nil && *req.CurrentWeight != bin.CurrentWeight && flight != nil && flight.IsDeparted() {
		s.metrics.ObserveRejection(kindBin, "immutable_after_departure")
		return nil, &domain.ImmutableAfterDepartureError{
			BinCode:      bin.BinCode,
			FlightNumber: flight.FlightNumber,
			Field:        "current_weight",
		}
	}

	codeChanged := req.BinCode != nil && *req.BinCode != bin.BinCode

	if req.BinCode != nil {
		bin.BinCode = *req.BinCode
	}
	if req.BinType != nil {
		bin.BinType = *req.BinType
	}
	if req.BinSubtype != nil {
		bin.BinSubtype = *req.BinSubtype
	}
	if req.Volume != nil {
		bin.Volume = *req.Volume
	}
	if req.MaxWeight != nil {
		bin.MaxWeight = *req.MaxWeight
	}
	if req.CurrentWeight != nil {
		bin.CurrentWeight = *req.CurrentWeight
	}
	if req.Length != nil {
		bin.Length = *req.Length
	}
	if req.Width != nil {
		bin.Width = *req.Width
	}
	if req.Height != nil {
		bin.Height = *req.Height
	}
	if req.CurrentLocation != nil {
		bin.CurrentLocation = *req.CurrentLocation
	}
	if req.Description != nil {
		bin.Description = *req.Description
	}
	if req.Barcode != nil {
		bin.Barcode = *req.Barcode
	}
	if req.LastMaintenanceDate != nil {
		bin.LastMaintenanceDate = req.LastMaintenanceDate
	}
	if req.NextMaintenanceDate != nil {
		bin.NextMaintenanceDate = req.NextMaintenanceDate
	}
	if req.CertificationExpiry != nil {
		bin.CertificationExpiry = req.CertificationExpiry
	}

	bin.Recompute(flight)

	if violations := bin.Validate(); len(violations) > 0 {
		s.metrics.ObserveViolations(kindBin, violationCodes(violations))
		return nil, domain.NewValidationError(kindBin, bin.UUID, violations)
	}

	if codeChanged {
		releaseCode := s.locks.Acquire(binCodeKey(bin.TenantID))
		defer releaseCode()

		dup, err := s.repo.HasDuplicateBinCode(ctx, bin.TenantID, bin.BinCode, bin.UUID)
		if err != nil {
			return nil, err
		}
		if dup {
			v := domain.DuplicateViolation("bin_code", bin.BinCode, "tenant")
			s.metrics.ObserveViolations(kindBin, []string{v.Code})
			return nil, domain.NewValidationError(kindBin, bin.UUID, []domain.Violation{*v})
		}
	}

	if err := s.saveBinRefreshingFlight(ctx, bin, flight); err != nil {
		return nil, err
	}

	s.afterBinWrite(ctx, bin)
	postEvent(ctx, s.sink, actor, kindBin, bin.UUID, "update",
		fmt.Sprintf("Bin %s updated by %s", bin.Name, actor.Name))
	s.metrics.ObserveMutation(kindBin, "update", start)

	return bin, nil
}

func (s *cargoService) GetBin(ctx context.Context, id string) (*models.Bin, error) {
	var cached models.Bin
	if s.cache != nil {
		if err := s.cache.Get(ctx, kindBin, id, &cached); err == nil {
			return &cached, nil
		}
	}

	bin, err := s.repo.GetBin(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, kindBin, id, bin); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to cache bin")
		}
	}
	return bin, nil
}

func (s *cargoService) ListBins(ctx context.Context, filter repository.BinFilter) ([]models.Bin, error) {
	return s.repo.ListBins(ctx, filter)
}

// AvailableBins lists unassigned bins matching the minimum volume and weight
// capacity, for assignment pickers.
func (s *cargoService) AvailableBins(ctx context.Context, tenantID string, minVolume, minMaxWeight float64) ([]models.Bin, error) {
	return s.repo.ListBins(ctx, repository.BinFilter{
		TenantID:     tenantID,
		State:        string(models.BinAvailable),
		MinVolume:    minVolume,
		MinMaxWeight: minMaxWeight,
	})
}

// OverloadedBins lists bins whose load exceeds their capacity.
func (s *cargoService) OverloadedBins(ctx context.Context, tenantID string) ([]models.Bin, error) {
	return s.repo.ListBins(ctx, repository.BinFilter{
		TenantID:       tenantID,
		OverloadedOnly: true,
	})
}

// DeleteBin archives a bin. The bin set of a departed flight is write-once,
// so bins still riding a departed flight cannot be archived.
func (s *cargoService) DeleteBin(ctx context.Context, actor Actor, id string) error {
	bin, release, err := s.lockBinForWrite(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	flight := bin.CargoFlight

	if flight != nil && flight.IsDeparted() {
		s.metrics.ObserveRejection(kindBin, "immutable_after_departure")
		return &domain.ImmutableAfterDepartureError{
			BinCode:      bin.BinCode,
			FlightNumber: flight.FlightNumber,
			Field:        "flight_assignment",
		}
	}

	bin.Active = false
	bin.CargoFlightID = nil
	bin.Recompute(nil)

	if err := s.saveBinRefreshingFlight(ctx, bin, flight); err != nil {
		return err
	}

	evictCache(ctx, s.cache, kindBin, bin.UUID)
	dropFromIndex(ctx, s.indexer, kindBin, bin.UUID)
	postEvent(ctx, s.sink, actor, kindBin, bin.UUID, "delete",
		fmt.Sprintf("Bin %s archived by %s", bin.Name, actor.Name))

	return nil
}

// Assign links a bin to a cargo flight. Rejected when the flight has already
// departed or the bin is under maintenance. Reassignment from another
// not-yet-departed flight is allowed and updates both flights' aggregates.
func (s *cargoService) Assign(ctx context.Context, actor Actor, binID, flightID string) (*models.Bin, error) {
	start := time.Now()

	bin, release, err := s.lockBinAndFlight(ctx, binID, flightID)
	if err != nil {
		return nil, err
	}
	defer release()

	flight, err := s.repo.GetFlight(ctx, flightID)
	if err != nil {
		return nil, err
	}

	if flight.IsDeparted() {
		s.metrics.ObserveRejection(kindBin, "assign_departed_flight")
		return nil, &domain.AssignmentRejectedError{
			BinCode:      bin.BinCode,
			FlightNumber: flight.FlightNumber,
			Reason:       "flight has already departed",
		}
	}
	if flight.Status == models.CargoFlightCancelled {
		s.metrics.ObserveRejection(kindBin, "assign_cancelled_flight")
		return nil, &domain.AssignmentRejectedError{
			BinCode:      bin.BinCode,
			FlightNumber: flight.FlightNumber,
			Reason:       "flight is cancelled",
		}
	}
	if bin.State == models.BinMaintenance {
		s.metrics.ObserveRejection(kindBin, "assign_maintenance_bin")
		return nil, &domain.AssignmentRejectedError{
			BinCode:      bin.BinCode,
			FlightNumber: flight.FlightNumber,
			Reason:       "bin is under maintenance",
		}
	}

	var oldFlight *models.CargoFlight
	if bin.CargoFlightID != nil && *bin.CargoFlightID != flightID {
		oldFlight = bin.CargoFlight
		if oldFlight != nil && oldFlight.IsDeparted() {
			s.metrics.ObserveRejection(kindBin, "immutable_after_departure")
			return nil, &domain.ImmutableAfterDepartureError{
				BinCode:      bin.BinCode,
				FlightNumber: oldFlight.FlightNumber,
				Field:        "flight_assignment",
			}
		}
	}

	bin.CargoFlightID = &flight.UUID
	bin.CargoFlight = flight
	bin.Recompute(flight)

	bins, err := s.repo.BinsForFlight(ctx, flight.UUID)
	if err != nil {
		return nil, err
	}
	bins = replaceOrAppendBin(bins, bin)
	flight.Recompute(bins)

	if oldFlight != nil {
		oldBins, err := s.repo.BinsForFlight(ctx, oldFlight.UUID)
		if err != nil {
			return nil, err
		}
		oldFlight.Recompute(dropBin(oldBins, bin.UUID))
	}

	if err := s.repo.SaveBinWithFlights(ctx, bin, flight, oldFlight); err != nil {
		return nil, err
	}

	s.afterBinWrite(ctx, bin)
	s.afterFlightWrite(ctx, flight)
	if oldFlight != nil {
		s.afterFlightWrite(ctx, oldFlight)
	}
	postEvent(ctx, s.sink, actor, kindBin, bin.UUID, "assign",
		fmt.Sprintf("Bin %s assigned to flight %s by %s", bin.BinCode, flight.FlightNumber, actor.Name))
	s.metrics.ObserveMutation(kindBin, "assign", start)

	return bin, nil
}

// Unassign releases a bin from its flight, zeroing the load in the same
// transaction so no snapshot ever shows a free bin still carrying weight.
func (s *cargoService) Unassign(ctx context.Context, actor Actor, binID string) (*models.Bin, error) {
	start := time.Now()

	bin, release, err := s.lockBinForWrite(ctx, binID)
	if err != nil {
		return nil, err
	}
	defer release()
	flight := bin.CargoFlight

	if bin.CargoFlightID == nil {
		s.metrics.ObserveRejection(kindBin, "unassign_unassigned_bin")
		return nil, &domain.AssignmentRejectedError{
			BinCode: bin.BinCode,
			Reason:  "bin is not assigned to a flight",
		}
	}
	if flight != nil && flight.IsDeparted() {
		s.metrics.ObserveRejection(kindBin, "unassign_departed_flight")
		return nil, &domain.AssignmentRejectedError{
			BinCode:      bin.BinCode,
			FlightNumber: flight.FlightNumber,
			Reason:       "flight has already departed",
		}
	}

	bin.CargoFlightID = nil
	bin.CargoFlight = nil
	bin.CurrentWeight = 0
	bin.Recompute(nil)

	if flight != nil {
		bins, err := s.repo.BinsForFlight(ctx, flight.UUID)
		if err != nil {
			return nil, err
		}
		flight.Recompute(dropBin(bins, bin.UUID))
	}

	if err := s.repo.SaveBinWithFlights(ctx, bin, flight); err != nil {
		return nil, err
	}

	s.afterBinWrite(ctx, bin)
	if flight != nil {
		s.afterFlightWrite(ctx, flight)
	}
	postEvent(ctx, s.sink, actor, kindBin, bin.UUID, "unassign",
		fmt.Sprintf("Bin %s unassigned by %s", bin.BinCode, actor.Name))
	s.metrics.ObserveMutation(kindBin, "unassign", start)

	return bin, nil
}

// ResetWeight zeroes a bin's load, clearing any overload flag.
func (s *cargoService) ResetWeight(ctx context.Context, actor Actor, binID string) (*models.Bin, error) {
	start := time.Now()

	bin, release, err := s.lockBinForWrite(ctx, binID)
	if err != nil {
		return nil, err
	}
	defer release()
	flight := bin.CargoFlight

	if flight != nil && flight.IsDeparted() {
		s.metrics.ObserveRejection(kindBin, "immutable_after_departure")
		return nil, &domain.ImmutableAfterDepartureError{
			BinCode:      bin.BinCode,
			FlightNumber: flight.FlightNumber,
			Field:        "current_weight",
		}
	}

	previous := bin.CurrentWeight
	bin.CurrentWeight = 0
	bin.Recompute(flight)

	if err := s.saveBinRefreshingFlight(ctx, bin, flight); err != nil {
		return nil, err
	}

	s.afterBinWrite(ctx, bin)
	postEvent(ctx, s.sink, actor, kindBin, bin.UUID, "reset_weight",
		fmt.Sprintf("Weight reset from %.2f to 0.00 on bin %s by %s", previous, bin.BinCode, actor.Name))
	s.metrics.ObserveMutation(kindBin, "reset_weight", start)

	return bin, nil
}

// SetMaintenance takes an unassigned bin out of rotation. Assigned bins must
// be unassigned first.
func (s *cargoService) SetMaintenance(ctx context.Context, actor Actor, binID string) (*models.Bin, error) {
	start := time.Now()

	bin, err := s.repo.GetBin(ctx, binID)
	if err != nil {
		return nil, err
	}

	if bin.CargoFlightID != nil {
		s.metrics.ObserveRejection(kindBin, "maintenance_while_assigned")
		return nil, &domain.InvalidTransitionError{
			Entity:     kindBin,
			EntityID:   bin.UUID,
			Current:    bin.State,
			Transition: "maintenance",
		}
	}

	bin.State = models.BinMaintenance
	bin.Recompute(nil)

	if err := s.repo.SaveBinWithFlights(ctx, bin); err != nil {
		return nil, err
	}

	s.afterBinWrite(ctx, bin)
	postEvent(ctx, s.sink, actor, kindBin, bin.UUID, "maintenance",
		fmt.Sprintf("Bin %s sent to maintenance by %s", bin.BinCode, actor.Name))
	s.metrics.ObserveTransition(kindBin, "maintenance")
	s.metrics.ObserveMutation(kindBin, "maintenance", start)

	return bin, nil
}

// saveBinRefreshingFlight saves a bin and, when it is assigned, the linked
// flight's recomputed aggregates in the same transaction. Callers hold the
// flight's lock via lockBinForWrite.
func (s *cargoService) saveBinRefreshingFlight(ctx context.Context, bin *models.Bin, flight *models.CargoFlight) error {
	if flight == nil {
		return s.repo.SaveBinWithFlights(ctx, bin)
	}

	bins, err := s.repo.BinsForFlight(ctx, flight.UUID)
	if err != nil {
		return err
	}
	if bin.Active {
		bins = replaceOrAppendBin(bins, bin)
	} else {
		bins = dropBin(bins, bin.UUID)
	}
	flight.Recompute(bins)

	if err := s.repo.SaveBinWithFlights(ctx, bin, flight); err != nil {
		return err
	}
	s.afterFlightWrite(ctx, flight)
	return nil
}

func (s *cargoService) afterFlightWrite(ctx context.Context, flight *models.CargoFlight) {
	if s.cache != nil {
		if err := s.cache.Set(ctx, kindCargoFlight, flight.UUID, flight); err != nil {
			log.Warn().Err(err).Str("id", flight.UUID).Msg("Failed to cache cargo flight")
		}
	}
	indexEntity(ctx, s.indexer, kindCargoFlight, flight.UUID, flight)
}

func (s *cargoService) afterBinWrite(ctx context.Context, bin *models.Bin) {
	if s.cache != nil {
		if err := s.cache.Set(ctx, kindBin, bin.UUID, bin); err != nil {
			log.Warn().Err(err).Str("id", bin.UUID).Msg("Failed to cache bin")
		}
	}
	indexEntity(ctx, s.indexer, kindBin, bin.UUID, bin)
}

// replaceOrAppendBin swaps the in-memory copy of bin into the flight's bin
// list so aggregate recomputation sees the pending change.
func replaceOrAppendBin(bins []models.Bin, bin *models.Bin) []models.Bin {
	for i := range bins {
		if bins[i].UUID == bin.UUID {
			bins[i] = *bin
			return bins
		}
	}
	return append(bins, *bin)
}

// dropBin removes a bin from the list before recomputing the flight it is
// leaving.
func dropBin(bins []models.Bin, binID string) []models.Bin {
	out := bins[:0]
	for i := range bins {
		if bins[i].UUID != binID {
			out = append(out, bins[i])
		}
	}
	return out
}
