package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/airlogistic/internal/models"
)

// CargoFlightFilter narrows cargo flight listings.
type CargoFlightFilter struct {
	TenantID        string
	Status          string
	FlightNumber    string
	IncludeInactive bool
	Limit           int
	Offset          int
}

// BinFilter narrows bin listings.
type BinFilter struct {
	TenantID        string
	State           string
	FlightID        string
	OverloadedOnly  bool
	MinVolume       float64
	MinMaxWeight    float64
	IncludeInactive bool
	Limit           int
	Offset          int
}

// CargoRepository defines data access for cargo flights and their bins.
// Multi-entity writes are single methods so each runs in one transaction.
type CargoRepository interface {
	GetFlight(ctx context.Context, id string) (*models.CargoFlight, error)
	CreateFlight(ctx context.Context, flight *models.CargoFlight) error
	UpdateFlight(ctx context.Context, flight *models.CargoFlight) error
	ListFlights(ctx context.Context, filter CargoFlightFilter) ([]models.CargoFlight, error)
	BinsForFlight(ctx context.Context, flightID string) ([]models.Bin, error)

	GetBin(ctx context.Context, id string) (*models.Bin, error)
	ListBins(ctx context.Context, filter BinFilter) ([]models.Bin, error)
	// HasDuplicateBinCode reports whether another active bin in the tenant
	// already uses the code, excluding the bin's own row.
	HasDuplicateBinCode(ctx context.Context, tenantID, binCode, excludeID string) (bool, error)

	// SaveBinWithFlights commits a bin together with the recomputed
	// aggregates of every affected flight, atomically.
	SaveBinWithFlights(ctx context.Context, bin *models.Bin, flights ...*models.CargoFlight) error
	// SaveFlightWithBins commits a flight together with its bins' rederived
	// states, atomically. Used by status transitions.
	SaveFlightWithBins(ctx context.Context, flight *models.CargoFlight, bins []models.Bin) error
}

type cargoRepository struct {
	db *gorm.DB
}

// NewCargoRepository creates a cargo repository
func NewCargoRepository(db *gorm.DB) CargoRepository {
	return &cargoRepository{db: db}
}

func (r *cargoRepository) GetFlight(ctx context.Context, id string) (*models.CargoFlight, error) {
	var flight models.CargoFlight
	err := r.db.WithContext(ctx).First(&flight, "uuid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load cargo flight")
	}
	return &flight, nil
}

func (r *cargoRepository) CreateFlight(ctx context.Context, flight *models.CargoFlight) error {
	if err := r.db.WithContext(ctx).Create(flight).Error; err != nil {
		return errors.Wrap(err, "failed to create cargo flight")
	}
	return nil
}

func (r *cargoRepository) UpdateFlight(ctx context.Context, flight *models.CargoFlight) error {
	if err := r.db.WithContext(ctx).Omit("Bins").Save(flight).Error; err != nil {
		return errors.Wrap(err, "failed to update cargo flight")
	}
	return nil
}

func (r *cargoRepository) ListFlights(ctx context.Context, filter CargoFlightFilter) ([]models.CargoFlight, error) {
	q := r.db.WithContext(ctx).Model(&models.CargoFlight{})

	if filter.TenantID != "" {
		q = q.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.FlightNumber != "" {
		q = q.Where("flight_number = ?", filter.FlightNumber)
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

	var flights []models.CargoFlight
	if err := q.Order("departure_date DESC, flight_number").Find(&flights).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list cargo flights")
	}
	return flights, nil
}

func (r *cargoRepository) BinsForFlight(ctx context.Context, flightID string) ([]models.Bin, error) {
	var bins []models.Bin
	err := r.db.WithContext(ctx).
		Where("cargo_flight_id = ? AND active = ?", flightID, true).
		Order("bin_code").
		Find(&bins).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load flight bins")
	}
	return bins, nil
}

func (r *cargoRepository) GetBin(ctx context.Context, id string) (*models.Bin, error) {
	var bin models.Bin
	err := r.db.WithContext(ctx).Preload("CargoFlight").First(&bin, "uuid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load bin")
	}
	return &bin, nil
}

func (r *cargoRepository) ListBins(ctx context.Context, filter BinFilter) ([]models.Bin, error) {
	q := r.db.WithContext(ctx).Model(&models.Bin{})

	if filter.TenantID != "" {
		q = q.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.FlightID != "" {
		q = q.Where("cargo_flight_id = ?", filter.FlightID)
	}
	if filter.OverloadedOnly {
		q = q.Where("is_overloaded = ?", true)
	}
	if filter.MinVolume > 0 {
		q = q.Where("volume >= ?", filter.MinVolume)
	}
	if filter.MinMaxWeight > 0 {
		q = q.Where("max_weight >= ?", filter.MinMaxWeight)
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

	var bins []models.Bin
	if err := q.Order("bin_code").Find(&bins).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list bins")
	}
	return bins, nil
}

func (r *cargoRepository) HasDuplicateBinCode(ctx context.Context, tenantID, binCode, excludeID string) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).
		Model(&models.Bin{}).
		Where("tenant_id = ? AND bin_code = ? AND active = ?", tenantID, binCode, true)
	if excludeID != "" {
		q = q.Where("uuid <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, errors.Wrap(err, "failed to check bin code uniqueness")
	}
	return count > 0, nil
}

func (r *cargoRepository) SaveBinWithFlights(ctx context.Context, bin *models.Bin, flights ...*models.CargoFlight) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("CargoFlight").Save(bin).Error; err != nil {
			return errors.Wrap(err, "failed to save bin")
		}
		for _, flight := range flights {
			if flight == nil {
				continue
			}
			if err := tx.Omit("Bins").Save(flight).Error; err != nil {
				return errors.Wrap(err, "failed to save cargo flight aggregates")
			}
		}
		return nil
	})
}

func (r *cargoRepository) SaveFlightWithBins(ctx context.Context, flight *models.CargoFlight, bins []models.Bin) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Bins").Save(flight).Error; err != nil {
			return errors.Wrap(err, "failed to save cargo flight")
		}
		for i := range bins {
			if err := tx.Omit("CargoFlight").Save(&bins[i]).Error; err != nil {
				return errors.Wrap(err, "failed to save bin state")
			}
		}
		return nil
	})
}
