package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/airlogistic/internal/domain"
	"example.com/backstage/services/airlogistic/internal/eventlog"
	"example.com/backstage/services/airlogistic/internal/models"
	"example.com/backstage/services/airlogistic/internal/repository"
)

// Mock record repository for testing
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) GetByID(ctx context.Context, id string) (*models.SampleRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SampleRecord), args.Error(1)
}

func (m *MockRecordRepository) GetMany(ctx context.Context, ids []string) ([]models.SampleRecord, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]models.SampleRecord), args.Error(1)
}

func (m *MockRecordRepository) Create(ctx context.Context, record *models.SampleRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRecordRepository) Update(ctx context.Context, record *models.SampleRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRecordRepository) SaveAll(ctx context.Context, records []*models.SampleRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockRecordRepository) List(ctx context.Context, filter repository.RecordFilter) ([]models.SampleRecord, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.SampleRecord), args.Error(1)
}

func (m *MockRecordRepository) Stats(ctx context.Context, tenantID string) (*repository.RecordStats, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(*repository.RecordStats), args.Error(1)
}

func (m *MockRecordRepository) LinesForRecord(ctx context.Context, recordID string) ([]models.SampleLine, error) {
	args := m.Called(ctx, recordID)
	return args.Get(0).([]models.SampleLine), args.Error(1)
}

func (m *MockRecordRepository) GetLine(ctx context.Context, id string) (*models.SampleLine, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SampleLine), args.Error(1)
}

func (m *MockRecordRepository) SaveLineWithRecord(ctx context.Context, line *models.SampleLine, record *models.SampleRecord) error {
	args := m.Called(ctx, line, record)
	return args.Error(0)
}

func (m *MockRecordRepository) DeleteLineWithRecord(ctx context.Context, lineID string, record *models.SampleRecord) error {
	args := m.Called(ctx, lineID, record)
	return args.Error(0)
}

func (m *MockRecordRepository) GetOrCreateTags(ctx context.Context, tenantID string, names []string) ([]models.SampleTag, error) {
	args := m.Called(ctx, tenantID, names)
	return args.Get(0).([]models.SampleTag), args.Error(1)
}

func (m *MockRecordRepository) AppendTags(ctx context.Context, record *models.SampleRecord, tags []models.SampleTag) error {
	args := m.Called(ctx, record, tags)
	return args.Error(0)
}

func draftRecord(id string) models.SampleRecord {
	r := models.SampleRecord{
		Name:     "Record " + id,
		State:    models.RecordDraft,
		Priority: models.PriorityNormal,
	}
	r.UUID = id
	r.TenantID = "tenant-1"
	r.Active = true
	r.Recompute(nil)
	return r
}

func TestCreateRecordDefaults(t *testing.T) {
	repo := new(MockRecordRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.SampleRecord")).Return(nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	record, err := svc.Create(context.Background(), testActor(), &CreateRecordRequest{Name: "Inspection"})
	require.NoError(t, err)

	require.Equal(t, models.RecordDraft, record.State)
	require.Equal(t, models.PriorityNormal, record.Priority)
	require.Equal(t, "[DRAFT] Inspection", record.DisplayName)
	require.Equal(t, "tenant-1", record.TenantID)
}

func TestCreateRecordRejectsPastDeadline(t *testing.T) {
	repo := new(MockRecordRepository)
	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	past := time.Now().Add(-24 * time.Hour)
	_, err := svc.Create(context.Background(), testActor(), &CreateRecordRequest{
		Name:     "Inspection",
		Deadline: &past,
	})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, domain.CodeDeadlineInPast, validationErr.Violations[0].Code)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUpdateRecordKeepsExistingPastDeadline(t *testing.T) {
	record := draftRecord("rec-1")
	past := time.Now().Add(-24 * time.Hour)
	record.Deadline = &past

	repo := new(MockRecordRepository)
	repo.On("GetByID", mock.Anything, "rec-1").Return(&record, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*models.SampleRecord")).Return(nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	name := "Renamed"
	out, err := svc.Update(context.Background(), testActor(), "rec-1", &UpdateRecordRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Renamed", out.Name)
}

func TestTransitionDoneSetsProgress(t *testing.T) {
	record := draftRecord("rec-1")
	record.State = models.RecordInProgress
	record.Progress = 40

	repo := new(MockRecordRepository)
	repo.On("GetByID", mock.Anything, "rec-1").Return(&record, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*models.SampleRecord")).Return(nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	out, err := svc.Transition(context.Background(), testActor(), "rec-1", models.RecordTransitionDone)
	require.NoError(t, err)
	require.Equal(t, models.RecordDone, out.State)
	require.Equal(t, 100.0, out.Progress)
	require.Equal(t, "[DONE] Record rec-1", out.DisplayName)
}

func TestTransitionResetZeroesProgress(t *testing.T) {
	record := draftRecord("rec-1")
	record.State = models.RecordDone
	record.Progress = 100

	repo := new(MockRecordRepository)
	repo.On("GetByID", mock.Anything, "rec-1").Return(&record, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*models.SampleRecord")).Return(nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	out, err := svc.Transition(context.Background(), testActor(), "rec-1", models.RecordTransitionReset)
	require.NoError(t, err)
	require.Equal(t, models.RecordDraft, out.State)
	require.Equal(t, 0.0, out.Progress)
}

func TestTransitionDoneFromDraftRejected(t *testing.T) {
	record := draftRecord("rec-1")

	repo := new(MockRecordRepository)
	repo.On("GetByID", mock.Anything, "rec-1").Return(&record, nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Transition(context.Background(), testActor(), "rec-1", models.RecordTransitionDone)

	var transitionErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestAddLineRecomputesAggregates(t *testing.T) {
	record := draftRecord("rec-1")

	repo := new(MockRecordRepository)
	repo.On("GetByID", mock.Anything, "rec-1").Return(&record, nil)
	repo.On("SaveLineWithRecord", mock.Anything, mock.AnythingOfType("*models.SampleLine"), mock.AnythingOfType("*models.SampleRecord")).Return(nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	line, err := svc.AddLine(context.Background(), testActor(), "rec-1", &LineRequest{
		Name:     "Item",
		Quantity: 3,
		Price:    7,
	})
	require.NoError(t, err)

	require.Equal(t, 21.0, line.Amount)
	require.Equal(t, 10, line.Sequence)
	require.Equal(t, 1, record.LineCount)
	require.Equal(t, 21.0, record.TotalAmount)
}

func TestBulkConfirmFiltersEligible(t *testing.T) {
	draft := draftRecord("rec-1")
	done := draftRecord("rec-2")
	done.State = models.RecordDone

	repo := new(MockRecordRepository)
	repo.On("GetMany", mock.Anything, []string{"rec-1", "rec-2"}).Return([]models.SampleRecord{draft, done}, nil)
	repo.On("LinesForRecord", mock.Anything, "rec-1").Return([]models.SampleLine{}, nil)
	repo.On("SaveAll", mock.Anything, mock.MatchedBy(func(records []*models.SampleRecord) bool {
		return len(records) == 1 && records[0].UUID == "rec-1" && records[0].State == models.RecordConfirmed
	})).Return(nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	result, err := svc.Bulk(context.Background(), testActor(), &BulkRequest{
		Operation: models.RecordTransitionConfirm,
		IDs:       []string{"rec-1", "rec-2"},
	})
	require.NoError(t, err)

	require.Equal(t, 1, result.Applied)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, []string{"rec-1"}, result.AppliedTo)
	repo.AssertExpectations(t)
}

func TestBulkConfirmNoEligibleRecords(t *testing.T) {
	done := draftRecord("rec-1")
	done.State = models.RecordDone

	repo := new(MockRecordRepository)
	repo.On("GetMany", mock.Anything, []string{"rec-1"}).Return([]models.SampleRecord{done}, nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Bulk(context.Background(), testActor(), &BulkRequest{
		Operation: models.RecordTransitionConfirm,
		IDs:       []string{"rec-1"},
	})

	require.ErrorIs(t, err, domain.ErrNoEligibleRecords)
	repo.AssertNotCalled(t, "SaveAll", mock.Anything, mock.Anything)
}

func TestBulkEmptySelection(t *testing.T) {
	repo := new(MockRecordRepository)
	repo.On("GetMany", mock.Anything, []string{"missing"}).Return([]models.SampleRecord{}, nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Bulk(context.Background(), testActor(), &BulkRequest{
		Operation: models.RecordTransitionConfirm,
		IDs:       []string{"missing"},
	})

	require.ErrorIs(t, err, domain.ErrNoEligibleRecords)
}

func TestBulkUpdateProgressSkipsDraft(t *testing.T) {
	draft := draftRecord("rec-1")
	confirmed := draftRecord("rec-2")
	confirmed.State = models.RecordConfirmed

	repo := new(MockRecordRepository)
	repo.On("GetMany", mock.Anything, []string{"rec-1", "rec-2"}).Return([]models.SampleRecord{draft, confirmed}, nil)
	repo.On("SaveAll", mock.Anything, mock.MatchedBy(func(records []*models.SampleRecord) bool {
		return len(records) == 1 && records[0].UUID == "rec-2" && records[0].Progress == 75
	})).Return(nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	progress := 75.0
	result, err := svc.Bulk(context.Background(), testActor(), &BulkRequest{
		Operation: BulkOpUpdateProgress,
		IDs:       []string{"rec-1", "rec-2"},
		Progress:  &progress,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Applied)
}

func TestBulkUpdateProgressRejectsOutOfRange(t *testing.T) {
	record := draftRecord("rec-1")
	record.State = models.RecordConfirmed

	repo := new(MockRecordRepository)
	repo.On("GetMany", mock.Anything, []string{"rec-1"}).Return([]models.SampleRecord{record}, nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	progress := 150.0
	_, err := svc.Bulk(context.Background(), testActor(), &BulkRequest{
		Operation: BulkOpUpdateProgress,
		IDs:       []string{"rec-1"},
		Progress:  &progress,
	})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, domain.CodeOutOfRange, validationErr.Violations[0].Code)
}

func TestBulkAssignUserAppliesToAll(t *testing.T) {
	recA := draftRecord("rec-1")
	recB := draftRecord("rec-2")
	recB.State = models.RecordDone

	repo := new(MockRecordRepository)
	repo.On("GetMany", mock.Anything, []string{"rec-1", "rec-2"}).Return([]models.SampleRecord{recA, recB}, nil)
	repo.On("SaveAll", mock.Anything, mock.MatchedBy(func(records []*models.SampleRecord) bool {
		return len(records) == 2
	})).Return(nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	assignee := "user-9"
	result, err := svc.Bulk(context.Background(), testActor(), &BulkRequest{
		Operation:  BulkOpAssignUser,
		IDs:        []string{"rec-1", "rec-2"},
		AssigneeID: &assignee,
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Applied)
}

func TestBulkAddTags(t *testing.T) {
	record := draftRecord("rec-1")
	tags := []models.SampleTag{{Name: "urgent"}}

	repo := new(MockRecordRepository)
	repo.On("GetMany", mock.Anything, []string{"rec-1"}).Return([]models.SampleRecord{record}, nil)
	repo.On("GetOrCreateTags", mock.Anything, "tenant-1", []string{"urgent"}).Return(tags, nil)
	repo.On("AppendTags", mock.Anything, mock.AnythingOfType("*models.SampleRecord"), tags).Return(nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	result, err := svc.Bulk(context.Background(), testActor(), &BulkRequest{
		Operation: BulkOpAddTags,
		IDs:       []string{"rec-1"},
		Tags:      []string{"urgent"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Applied)
	repo.AssertNotCalled(t, "SaveAll", mock.Anything, mock.Anything)
}

func TestBulkUnknownOperation(t *testing.T) {
	record := draftRecord("rec-1")

	repo := new(MockRecordRepository)
	repo.On("GetMany", mock.Anything, []string{"rec-1"}).Return([]models.SampleRecord{record}, nil)

	svc := NewRecordService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Bulk(context.Background(), testActor(), &BulkRequest{
		Operation: "teleport",
		IDs:       []string{"rec-1"},
	})

	var transitionErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
}
