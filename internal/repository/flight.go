package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/airlogistic/internal/models"
)

// FlightFilter narrows flight listings.
type FlightFilter struct {
	TenantID        string
	Status          string
	DepartureDate   string
	Airport         string
	IncludeInactive bool
	Limit           int
	Offset          int
}

// FlightRepository defines data access for scheduled flights
type FlightRepository interface {
	GetByID(ctx context.Context, id string) (*models.Flight, error)
	Create(ctx context.Context, flight *models.Flight) error
	Update(ctx context.Context, flight *models.Flight) error
	List(ctx context.Context, filter FlightFilter) ([]models.Flight, error)
	// HasDuplicate reports whether another active flight already uses the
	// flight number on the departure date, excluding the flight's own row.
	HasDuplicate(ctx context.Context, flightNumber, departureDate, excludeID string) (bool, error)
}

type flightRepository struct {
	db *gorm.DB
}

// NewFlightRepository creates a flight repository
func NewFlightRepository(db *gorm.DB) FlightRepository {
	return &flightRepository{db: db}
}

func (r *flightRepository) GetByID(ctx context.Context, id string) (*models.Flight, error) {
	var flight models.Flight
	err := r.db.WithContext(ctx).First(&flight, "uuid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load flight")
	}
	return &flight, nil
}

func (r *flightRepository) Create(ctx context.Context, flight *models.Flight) error {
	if err := r.db.WithContext(ctx).Create(flight).Error; err != nil {
		return errors.Wrap(err, "failed to create flight")
	}
	return nil
}

func (r *flightRepository) Update(ctx context.Context, flight *models.Flight) error {
	if err := r.db.WithContext(ctx).Save(flight).Error; err != nil {
		return errors.Wrap(err, "failed to update flight")
	}
	return nil
}

func (r *flightRepository) List(ctx context.Context, filter FlightFilter) ([]models.Flight, error) {
	q := r.db.WithContext(ctx).Model(&models.Flight{})

	if filter.TenantID != "" {
		q = q.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.DepartureDate != "" {
		q = q.Where("departure_date = ?", filter.DepartureDate)
	}
	if filter.Airport != "" {
		q = q.Where("departure_airport = ? OR arrival_airport = ?", filter.Airport, filter.Airport)
	}
	if !filter.IncludeInactive {
		q = q.Where("active = ?", true)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var flights []models.Flight
	if err := q.Order("departure_time DESC, flight_number").Find(&flights).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list flights")
	}
	return flights, nil
}

func (r *flightRepository) HasDuplicate(ctx context.Context, flightNumber, departureDate, excludeID string) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).
		Model(&models.Flight{}).
		Where("flight_number = ? AND departure_date = ? AND active = ?", flightNumber, departureDate, true)
	if excludeID != "" {
		q = q.Where("uuid <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, errors.Wrap(err, "failed to check flight uniqueness")
	}
	return count > 0, nil
}
