package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/airlogistic/internal/models"
)

// RecordFilter narrows sample record listings.
type RecordFilter struct {
	TenantID        string
	State           string
	Priority        string
	AssigneeID      string
	IncludeInactive bool
	Limit           int
	Offset          int
}

// RecordStats is the aggregate view served by the stats endpoint.
type RecordStats struct {
	TotalRecords    int64            `json:"total_records"`
	StateCounts     map[string]int64 `json:"state_counts"`
	PriorityCounts  map[string]int64 `json:"priority_counts"`
	AverageProgress float64          `json:"average_progress"`
	TotalAmount     float64          `json:"total_amount"`
}

// RecordRepository defines data access for sample records, lines and tags
type RecordRepository interface {
	GetByID(ctx context.Context, id string) (*models.SampleRecord, error)
	GetMany(ctx context.Context, ids []string) ([]models.SampleRecord, error)
	Create(ctx context.Context, record *models.SampleRecord) error
	Update(ctx context.Context, record *models.SampleRecord) error
	// SaveAll commits a bulk operation's records in one transaction:
	// all-or-nothing at the batch level.
	SaveAll(ctx context.Context, records []*models.SampleRecord) error
	List(ctx context.Context, filter RecordFilter) ([]models.SampleRecord, error)
	Stats(ctx context.Context, tenantID string) (*RecordStats, error)

	LinesForRecord(ctx context.Context, recordID string) ([]models.SampleLine, error)
	GetLine(ctx context.Context, id string) (*models.SampleLine, error)
	// SaveLineWithRecord commits a line change together with the record's
	// recomputed aggregates, atomically.
	SaveLineWithRecord(ctx context.Context, line *models.SampleLine, record *models.SampleRecord) error
	DeleteLineWithRecord(ctx context.Context, lineID string, record *models.SampleRecord) error

	GetOrCreateTags(ctx context.Context, tenantID string, names []string) ([]models.SampleTag, error)
	AppendTags(ctx context.Context, record *models.SampleRecord, tags []models.SampleTag) error
}

type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a sample record repository
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) GetByID(ctx context.Context, id string) (*models.SampleRecord, error) {
	var record models.SampleRecord
	err := r.db.WithContext(ctx).Preload("Lines").Preload("Tags").First(&record, "uuid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load record")
	}
	return &record, nil
}

func (r *recordRepository) GetMany(ctx context.Context, ids []string) ([]models.SampleRecord, error) {
	var records []models.SampleRecord
	err := r.db.WithContext(ctx).
		Where("uuid IN ? AND active = ?", ids, true).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load records")
	}
	return records, nil
}

func (r *recordRepository) Create(ctx context.Context, record *models.SampleRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(err, "failed to create record")
	}
	return nil
}

func (r *recordRepository) Update(ctx context.Context, record *models.SampleRecord) error {
	if err := r.db.WithContext(ctx).Omit("Lines", "Tags").Save(record).Error; err != nil {
		return errors.Wrap(err, "failed to update record")
	}
	return nil
}

func (r *recordRepository) SaveAll(ctx context.Context, records []*models.SampleRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			if err := tx.Omit("Lines", "Tags").Save(record).Error; err != nil {
				return errors.Wrap(err, "failed to save record in batch")
			}
		}
		return nil
	})
}

func (r *recordRepository) List(ctx context.Context, filter RecordFilter) ([]models.SampleRecord, error) {
	q := r.db.WithContext(ctx).Model(&models.SampleRecord{})

	if filter.TenantID != "" {
		q = q.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}
	if filter.AssigneeID != "" {
		q = q.Where("assignee_id = ?", filter.AssigneeID)
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

	var records []models.SampleRecord
	if err := q.Order("name, uuid DESC").Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list records")
	}
	return records, nil
}

func (r *recordRepository) Stats(ctx context.Context, tenantID string) (*RecordStats, error) {
	stats := &RecordStats{
		StateCounts:    make(map[string]int64),
		PriorityCounts: make(map[string]int64),
	}

	base := r.db.WithContext(ctx).Model(&models.SampleRecord{}).
		Where("tenant_id = ? AND active = ?", tenantID, true)

	type bucket struct {
		Key   string
		Count int64
	}

	var states []bucket
	if err := base.Session(&gorm.Session{}).
		Select("state AS key, COUNT(*) AS count").Group("state").Scan(&states).Error; err != nil {
		return nil, errors.Wrap(err, "failed to count records by state")
	}
	for _, b := range states {
		stats.StateCounts[b.Key] = b.Count
		stats.TotalRecords += b.Count
	}

	var priorities []bucket
	if err := base.Session(&gorm.Session{}).
		Select("priority AS key, COUNT(*) AS count").Group("priority").Scan(&priorities).Error; err != nil {
		return nil, errors.Wrap(err, "failed to count records by priority")
	}
	for _, b := range priorities {
		stats.PriorityCounts[b.Key] = b.Count
	}

	type totals struct {
		AvgProgress float64
		TotalAmount float64
	}
	var t totals
	if err := base.Session(&gorm.Session{}).
		Select("COALESCE(AVG(progress), 0) AS avg_progress, COALESCE(SUM(total_amount), 0) AS total_amount").
		Scan(&t).Error; err != nil {
		return nil, errors.Wrap(err, "failed to aggregate record totals")
	}
	stats.AverageProgress = t.AvgProgress
	stats.TotalAmount = t.TotalAmount

	return stats, nil
}

func (r *recordRepository) LinesForRecord(ctx context.Context, recordID string) ([]models.SampleLine, error) {
	var lines []models.SampleLine
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("sequence, uuid").
		Find(&lines).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load record lines")
	}
	return lines, nil
}

func (r *recordRepository) GetLine(ctx context.Context, id string) (*models.SampleLine, error) {
	var line models.SampleLine
	err := r.db.WithContext(ctx).First(&line, "uuid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load line")
	}
	return &line, nil
}

func (r *recordRepository) SaveLineWithRecord(ctx context.Context, line *models.SampleLine, record *models.SampleRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(line).Error; err != nil {
			return errors.Wrap(err, "failed to save line")
		}
		if err := tx.Omit("Lines", "Tags").Save(record).Error; err != nil {
			return errors.Wrap(err, "failed to save record aggregates")
		}
		return nil
	})
}

func (r *recordRepository) DeleteLineWithRecord(ctx context.Context, lineID string, record *models.SampleRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.SampleLine{}, "uuid = ?", lineID).Error; err != nil {
			return errors.Wrap(err, "failed to delete line")
		}
		if err := tx.Omit("Lines", "Tags").Save(record).Error; err != nil {
			return errors.Wrap(err, "failed to save record aggregates")
		}
		return nil
	})
}

func (r *recordRepository) GetOrCreateTags(ctx context.Context, tenantID string, names []string) ([]models.SampleTag, error) {
	tags := make([]models.SampleTag, 0, len(names))
	for _, name := range names {
		var tag models.SampleTag
		err := r.db.WithContext(ctx).Where("name = ?", name).First(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			tag = models.SampleTag{Name: name}
			tag.UUID = uuid.New().String()
			tag.TenantID = tenantID
			tag.Active = true
			if err := r.db.WithContext(ctx).Create(&tag).Error; err != nil {
				return nil, errors.Wrap(err, "failed to create tag")
			}
		} else if err != nil {
			return nil, errors.Wrap(err, "failed to load tag")
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (r *recordRepository) AppendTags(ctx context.Context, record *models.SampleRecord, tags []models.SampleTag) error {
	if err := r.db.WithContext(ctx).Model(record).Association("Tags").Append(&tags); err != nil {
		return errors.Wrap(err, "failed to append tags")
	}
	return nil
}
