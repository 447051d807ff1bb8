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

const kindRecord = "sample_record"

// Bulk operations beyond the plain workflow transitions.
const (
	BulkOpUpdateProgress = "update_progress"
	BulkOpAssignUser     = "assign_user"
	BulkOpAddTags        = "add_tags"
)

// CreateRecordRequest carries the caller-supplied fields of a new record.
type CreateRecordRequest struct {
	Name        string                `json:"name" validate:"required"`
	Description string                `json:"description"`
	Priority    models.RecordPriority `json:"priority"`
	Deadline    *time.Time            `json:"deadline"`
	AssigneeID  string                `json:"assignee_id"`
	Tags        []string              `json:"tags"`
}

// UpdateRecordRequest carries a partial update; nil fields are left unchanged.
type UpdateRecordRequest struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Priority    *models.RecordPriority `json:"priority"`
	Progress    *float64               `json:"progress"`
	Deadline    *time.Time             `json:"deadline"`
	AssigneeID  *string                `json:"assignee_id"`
}

// LineRequest carries the caller-supplied fields of a record line.
type LineRequest struct {
	Name     string  `json:"name" validate:"required"`
	Sequence int     `json:"sequence"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// BulkRequest applies one operation to a set of records. Transitions filter
// to the eligible subset first; an empty eligible set fails the request.
type BulkRequest struct {
	Operation string   `json:"operation" validate:"required"`
	IDs       []string `json:"ids" validate:"required,min=1"`

	Progress   *float64 `json:"progress"`
	AssigneeID *string  `json:"assignee_id"`
	Tags       []string `json:"tags"`
}

// BulkResult reports what a bulk operation touched.
type BulkResult struct {
	Operation string   `json:"operation"`
	Requested int      `json:"requested"`
	Applied   int      `json:"applied"`
	Skipped   int      `json:"skipped"`
	AppliedTo []string `json:"applied_to"`
}

// RecordService manages sample records, their lines and tags
type RecordService interface {
	Create(ctx context.Context, actor Actor, req *CreateRecordRequest) (*models.SampleRecord, error)
	Update(ctx context.Context, actor Actor, id string, req *UpdateRecordRequest) (*models.SampleRecord, error)
	Transition(ctx context.Context, actor Actor, id, transition string) (*models.SampleRecord, error)
	Get(ctx context.Context, id string) (*models.SampleRecord, error)
	List(ctx context.Context, filter repository.RecordFilter) ([]models.SampleRecord, error)
	Stats(ctx context.Context, tenantID string) (*repository.RecordStats, error)
	Delete(ctx context.Context, actor Actor, id string) error

	AddLine(ctx context.Context, actor Actor, recordID string, req *LineRequest) (*models.SampleLine, error)
	UpdateLine(ctx context.Context, actor Actor, lineID string, req *LineRequest) (*models.SampleLine, error)
	DeleteLine(ctx context.Context, actor Actor, lineID string) error

	AddTags(ctx context.Context, actor Actor, recordID string, names []string) (*models.SampleRecord, error)

	Bulk(ctx context.Context, actor Actor, req *BulkRequest) (*BulkResult, error)
}

type recordService struct {
	repo    repository.RecordRepository
	sink    eventlog.Sink
	cache   cache.Client
	indexer search.Indexer
	metrics *metrics.Metrics
}

// NewRecordService creates a sample record service
func NewRecordService(repo repository.RecordRepository, sink eventlog.Sink, c cache.Client, indexer search.Indexer, m *metrics.Metrics) RecordService {
	return &recordService{
		repo:    repo,
		sink:    sink,
		cache:   c,
		indexer: indexer,
		metrics: m,
	}
}

// checkDeadline rejects deadlines already in the past. Only newly supplied
// deadlines are checked; an existing past deadline on an untouched record
// stays valid.
func checkDeadline(deadline *time.Time) *domain.Violation {
	if deadline != nil && deadline.Before(time.Now()) {
		return &domain.Violation{
			Code:    domain.CodeDeadlineInPast,
			Field:   "deadline",
			Message: "deadline cannot be in the past",
			Value:   *deadline,
		}
	}
	return nil
}

func (s *recordService) Create(ctx context.Context, actor Actor, req *CreateRecordRequest) (*models.SampleRecord, error) {
	start := time.Now()

	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	record := &models.SampleRecord{
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Deadline:    req.Deadline,
		AssigneeID:  req.AssigneeID,
		State:       models.RecordDraft,
	}
	if record.Priority == "" {
		record.Priority = models.PriorityNormal
	}
	record.UUID = uuid.New().String()
	record.TenantID = actor.TenantID
	record.Active = true

	record.Recompute(nil)

	violations := record.Validate()
	if v := checkDeadline(req.Deadline); v != nil {
		violations = append(violations, *v)
	}
	if len(violations) > 0 {
		s.metrics.ObserveViolations(kindRecord, violationCodes(violations))
		return nil, domain.NewValidationError(kindRecord, record.UUID, violations)
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	if len(req.Tags) > 0 {
		tags, err := s.repo.GetOrCreateTags(ctx, actor.TenantID, req.Tags)
		if err != nil {
			return nil, err
		}
		if err := s.repo.AppendTags(ctx, record, tags); err != nil {
			return nil, err
		}
		record.Tags = tags
	}

	s.afterWrite(ctx, record)
	postEvent(ctx, s.sink, actor, kindRecord, record.UUID, "create",
		fmt.Sprintf("Record %s created by %s", record.Name, actor.Name))
	s.metrics.ObserveMutation(kindRecord, "create", start)

	return record, nil
}

func (s *recordService) Update(ctx context.Context, actor Actor, id string, req *UpdateRecordRequest) (*models.SampleRecord, error) {
	start := time.Now()

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		record.Name = *req.Name
	}
	if req.Description != nil {
		record.Description = *req.Description
	}
	if req.Priority != nil {
		record.Priority = *req.Priority
	}
	if req.Progress != nil {
		record.Progress = *req.Progress
	}
	if req.Deadline != nil {
		record.Deadline = req.Deadline
	}
	if req.AssigneeID != nil {
		record.AssigneeID = *req.AssigneeID
	}

	record.Recompute(record.Lines)

	violations := record.Validate()
	if req.Deadline != nil {
		if v := checkDeadline(req.Deadline); v != nil {
			violations = append(violations, *v)
		}
	}
	if len(violations) > 0 {
		s.metrics.ObserveViolations(kindRecord, violationCodes(violations))
		return nil, domain.NewValidationError(kindRecord, record.UUID, violations)
	}

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, record)
	postEvent(ctx, s.sink, actor, kindRecord, record.UUID, "update",
		fmt.Sprintf("Record %s updated by %s", record.Name, actor.Name))
	s.metrics.ObserveMutation(kindRecord, "update", start)

	return record, nil
}

func (s *recordService) Transition(ctx context.Context, actor Actor, id, transition string) (*models.SampleRecord, error) {
	start := time.Now()

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := models.RecordMachine.Apply(record.UUID, record.State, transition)
	if err != nil {
		s.metrics.ObserveRejection(kindRecord, "invalid_transition")
		return nil, err
	}

	record.State = next
	applyTransitionEffects(record, transition)
	record.Recompute(record.Lines)

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, record)
	postEvent(ctx, s.sink, actor, kindRecord, record.UUID, transition,
		fmt.Sprintf("Record %s marked as %s by %s", record.Name, next, actor.Name))
	s.metrics.ObserveTransition(kindRecord, transition)
	s.metrics.ObserveMutation(kindRecord, "transition", start)

	return record, nil
}

// applyTransitionEffects applies the field updates coupled to a transition:
// completion pins progress to 100 and reset returns it to 0.
func applyTransitionEffects(record *models.SampleRecord, transition string) {
	switch transition {
	case models.RecordTransitionDone:
		record.Progress = 100
	case models.RecordTransitionReset:
		record.Progress = 0
	}
}

func (s *recordService) Get(ctx context.Context, id string) (*models.SampleRecord, error) {
	var cached models.SampleRecord
	if s.cache != nil {
		if err := s.cache.Get(ctx, kindRecord, id, &cached); err == nil {
			return &cached, nil
		}
	}

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, kindRecord, id, record); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to cache record")
		}
	}
	return record, nil
}

func (s *recordService) List(ctx context.Context, filter repository.RecordFilter) ([]models.SampleRecord, error) {
	return s.repo.List(ctx, filter)
}

func (s *recordService) Stats(ctx context.Context, tenantID string) (*repository.RecordStats, error) {
	return s.repo.Stats(ctx, tenantID)
}

func (s *recordService) Delete(ctx context.Context, actor Actor, id string) error {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	record.Active = false
	if err := s.repo.Update(ctx, record); err != nil {
		return err
	}

	evictCache(ctx, s.cache, kindRecord, record.UUID)
	dropFromIndex(ctx, s.indexer, kindRecord, record.UUID)
	postEvent(ctx, s.sink, actor, kindRecord, record.UUID, "delete",
		fmt.Sprintf("Record %s archived by %s", record.Name, actor.Name))

	return nil
}

func (s *recordService) AddLine(ctx context.Context, actor Actor, recordID string, req *LineRequest) (*models.SampleLine, error) {
	start := time.Now()

	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	line := &models.SampleLine{
		RecordID: record.UUID,
		Name:     req.Name,
		Sequence: req.Sequence,
		Quantity: req.Quantity,
		Price:    req.Price,
	}
	if line.Sequence == 0 {
		line.Sequence = 10
	}
	line.UUID = uuid.New().String()
	line.TenantID = actor.TenantID
	line.Active = true

	line.Recompute()

	if violations := line.Validate(); len(violations) > 0 {
		s.metrics.ObserveViolations(kindRecord, violationCodes(violations))
		return nil, domain.NewValidationError("sample_line", line.UUID, violations)
	}

	record.Recompute(append(record.Lines, *line))

	if err := s.repo.SaveLineWithRecord(ctx, line, record); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, record)
	postEvent(ctx, s.sink, actor, kindRecord, record.UUID, "add_line",
		fmt.Sprintf("Line %s added to record %s by %s", line.Name, record.Name, actor.Name))
	s.metrics.ObserveMutation(kindRecord, "add_line", start)

	return line, nil
}

func (s *recordService) UpdateLine(ctx context.Context, actor Actor, lineID string, req *LineRequest) (*models.SampleLine, error) {
	start := time.Now()

	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.GetByID(ctx, line.RecordID)
	if err != nil {
		return nil, err
	}

	line.Name = req.Name
	if req.Sequence != 0 {
		line.Sequence = req.Sequence
	}
	line.Quantity = req.Quantity
	line.Price = req.Price
	line.Recompute()

	if violations := line.Validate(); len(violations) > 0 {
		s.metrics.ObserveViolations(kindRecord, violationCodes(violations))
		return nil, domain.NewValidationError("sample_line", line.UUID, violations)
	}

	lines := make([]models.SampleLine, 0, len(record.Lines))
	for i := range record.Lines {
		if record.Lines[i].UUID == line.UUID {
			lines = append(lines, *line)
		} else {
			lines = append(lines, record.Lines[i])
		}
	}
	record.Recompute(lines)

	if err := s.repo.SaveLineWithRecord(ctx, line, record); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, record)
	postEvent(ctx, s.sink, actor, kindRecord, record.UUID, "update_line",
		fmt.Sprintf("Line %s updated on record %s by %s", line.Name, record.Name, actor.Name))
	s.metrics.ObserveMutation(kindRecord, "update_line", start)

	return line, nil
}

func (s *recordService) DeleteLine(ctx context.Context, actor Actor, lineID string) error {
	start := time.Now()

	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return err
	}
	record, err := s.repo.GetByID(ctx, line.RecordID)
	if err != nil {
		return err
	}

	lines := make([]models.SampleLine, 0, len(record.Lines))
	for i := range record.Lines {
		if record.Lines[i].UUID != line.UUID {
			lines = append(lines, record.Lines[i])
		}
	}
	record.Recompute(lines)

	if err := s.repo.DeleteLineWithRecord(ctx, line.UUID, record); err != nil {
		return err
	}

	s.afterWrite(ctx, record)
	postEvent(ctx, s.sink, actor, kindRecord, record.UUID, "delete_line",
		fmt.Sprintf("Line %s removed from record %s by %s", line.Name, record.Name, actor.Name))
	s.metrics.ObserveMutation(kindRecord, "delete_line", start)

	return nil
}

func (s *recordService) AddTags(ctx context.Context, actor Actor, recordID string, names []string) (*models.SampleRecord, error) {
	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	tags, err := s.repo.GetOrCreateTags(ctx, actor.TenantID, names)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AppendTags(ctx, record, tags); err != nil {
		return nil, err
	}

	record, err = s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, record)
	postEvent(ctx, s.sink, actor, kindRecord, record.UUID, "add_tags",
		fmt.Sprintf("Tags added to record %s by %s", record.Name, actor.Name))

	return record, nil
}

// Bulk applies one operation to the selected records. Workflow transitions
// filter to the eligible subset and skip the rest; field operations apply to
// every selected record. All applied changes commit in one transaction.
func (s *recordService) Bulk(ctx context.Context, actor Actor, req *BulkRequest) (*BulkResult, error) {
	start := time.Now()

	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	records, err := s.repo.GetMany(ctx, req.IDs)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrNoEligibleRecords
	}

	var applied []*models.SampleRecord

	switch req.Operation {
	case models.RecordTransitionConfirm, models.RecordTransitionStart,
		models.RecordTransitionDone, models.RecordTransitionCancel,
		models.RecordTransitionReset:
		for i := range records {
			if !models.RecordMachine.CanApply(records[i].State, req.Operation) {
				continue
			}
			next, err := models.RecordMachine.Apply(records[i].UUID, records[i].State, req.Operation)
			if err != nil {
				continue
			}
			records[i].State = next
			applyTransitionEffects(&records[i], req.Operation)
			lines, err := s.repo.LinesForRecord(ctx, records[i].UUID)
			if err != nil {
				return nil, err
			}
			records[i].Recompute(lines)
			applied = append(applied, &records[i])
		}

	case BulkOpUpdateProgress:
		if req.Progress == nil {
			return nil, domain.NewValidationError(kindRecord, "", []domain.Violation{{
				Code: domain.CodeRequired, Field: "progress", Message: "progress is required",
			}})
		}
		if v := domain.CheckPercentRange("progress", *req.Progress); v != nil {
			s.metrics.ObserveViolations(kindRecord, []string{v.Code})
			return nil, domain.NewValidationError(kindRecord, "", []domain.Violation{*v})
		}
		for i := range records {
			if records[i].State != models.RecordConfirmed && records[i].State != models.RecordInProgress {
				continue
			}
			records[i].Progress = *req.Progress
			applied = append(applied, &records[i])
		}

	case BulkOpAssignUser:
		if req.AssigneeID == nil {
			return nil, domain.NewValidationError(kindRecord, "", []domain.Violation{{
				Code: domain.CodeRequired, Field: "assignee_id", Message: "assignee_id is required",
			}})
		}
		for i := range records {
			records[i].AssigneeID = *req.AssigneeID
			applied = append(applied, &records[i])
		}

	case BulkOpAddTags:
		if len(req.Tags) == 0 {
			return nil, domain.NewValidationError(kindRecord, "", []domain.Violation{{
				Code: domain.CodeRequired, Field: "tags", Message: "tags are required",
			}})
		}
		tags, err := s.repo.GetOrCreateTags(ctx, actor.TenantID, req.Tags)
		if err != nil {
			return nil, err
		}
		for i := range records {
			if err := s.repo.AppendTags(ctx, &records[i], tags); err != nil {
				return nil, err
			}
			applied = append(applied, &records[i])
		}

	default:
		return nil, &domain.InvalidTransitionError{Entity: kindRecord, Transition: req.Operation}
	}

	if len(applied) == 0 {
		s.metrics.ObserveRejection(kindRecord, "bulk_no_eligible")
		return nil, domain.ErrNoEligibleRecords
	}

	if req.Operation != BulkOpAddTags {
		if err := s.repo.SaveAll(ctx, applied); err != nil {
			return nil, err
		}
	}

	result := &BulkResult{
		Operation: req.Operation,
		Requested: len(req.IDs),
		Applied:   len(applied),
		Skipped:   len(req.IDs) - len(applied),
	}
	for _, record := range applied {
		result.AppliedTo = append(result.AppliedTo, record.UUID)
		s.afterWrite(ctx, record)
		postEvent(ctx, s.sink, actor, kindRecord, record.UUID, "bulk_"+req.Operation,
			fmt.Sprintf("Record %s included in bulk %s by %s", record.Name, req.Operation, actor.Name))
	}
	s.metrics.ObserveMutation(kindRecord, "bulk_"+req.Operation, start)

	return result, nil
}

func (s *recordService) afterWrite(ctx context.Context, record *models.SampleRecord) {
	if s.cache != nil {
		if err := s.cache.Set(ctx, kindRecord, record.UUID, record); err != nil {
			log.Warn().Err(err).Str("id", record.UUID).Msg("Failed to cache record")
		}
	}
	indexEntity(ctx, s.indexer, kindRecord, record.UUID, record)
}
