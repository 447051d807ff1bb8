package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/airlogistic/internal/domain"
	"example.com/backstage/services/airlogistic/internal/eventlog"
	"example.com/backstage/services/airlogistic/internal/models"
	"example.com/backstage/services/airlogistic/internal/repository"
)

// Mock cargo repository for testing
type MockCargoRepository struct {
	mock.Mock
}

func (m *MockCargoRepository) GetFlight(ctx context.Context, id string) (*models.CargoFlight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CargoFlight), args.Error(1)
}

func (m *MockCargoRepository) CreateFlight(ctx context.Context, flight *models.CargoFlight) error {
	args := m.Called(ctx, flight)
	return args.Error(0)
}

func (m *MockCargoRepository) UpdateFlight(ctx context.Context, flight *models.CargoFlight) error {
	args := m.Called(ctx, flight)
	return args.Error(0)
}

func (m *MockCargoRepository) ListFlights(ctx context.Context, filter repository.CargoFlightFilter) ([]models.CargoFlight, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.CargoFlight), args.Error(1)
}

func (m *MockCargoRepository) BinsForFlight(ctx context.Context, flightID string) ([]models.Bin, error) {
	args := m.Called(ctx, flightID)
	return args.Get(0).([]models.Bin), args.Error(1)
}

func (m *MockCargoRepository) GetBin(ctx context.Context, id string) (*models.Bin, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bin), args.Error(1)
}

func (m *MockCargoRepository) ListBins(ctx context.Context, filter repository.BinFilter) ([]models.Bin, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Bin), args.Error(1)
}

func (m *MockCargoRepository) HasDuplicateBinCode(ctx context.Context, tenantID, binCode, excludeID string) (bool, error) {
	args := m.Called(ctx, tenantID, binCode, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCargoRepository) SaveBinWithFlights(ctx context.Context, bin *models.Bin, flights ...*models.CargoFlight) error {
	args := m.Called(ctx, bin, flights)
	return args.Error(0)
}

func (m *MockCargoRepository) SaveFlightWithBins(ctx context.Context, flight *models.CargoFlight, bins []models.Bin) error {
	args := m.Called(ctx, flight, bins)
	return args.Error(0)
}

func scheduledCargoFlight() *models.CargoFlight {
	f := &models.CargoFlight{
		FlightNumber:   "CG100",
		Airline:        "Cargo Air",
		Status:         models.CargoFlightScheduled,
		MaxCargoWeight: 1000,
		MaxCargoVolume: 100,
	}
	f.UUID = "cf-1"
	f.TenantID = "tenant-1"
	f.Active = true
	return f
}

func unassignedBin() *models.Bin {
	b := &models.Bin{
		BinCode:       "ULD-001",
		BinType:       models.BinTypeULD,
		Volume:        10,
		MaxWeight:     100,
		CurrentWeight: 50,
	}
	b.UUID = "bin-1"
	b.TenantID = "tenant-1"
	b.Active = true
	b.Recompute(nil)
	return b
}

func assignedBin(flight *models.CargoFlight) *models.Bin {
	b := unassignedBin()
	b.CargoFlightID = &flight.UUID
	b.CargoFlight = flight
	b.Recompute(flight)
	return b
}

func TestAssignBin(t *testing.T) {
	flight := scheduledCargoFlight()
	bin := unassignedBin()

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)
	repo.On("GetFlight", mock.Anything, "cf-1").Return(flight, nil)
	repo.On("BinsForFlight", mock.Anything, "cf-1").Return([]models.Bin{}, nil)
	repo.On("SaveBinWithFlights", mock.Anything, mock.AnythingOfType("*models.Bin"), mock.Anything).Return(nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	out, err := svc.Assign(context.Background(), testActor(), "bin-1", "cf-1")
	require.NoError(t, err)

	require.Equal(t, "cf-1", *out.CargoFlightID)
	require.Equal(t, models.BinLoaded, out.State)
	require.Equal(t, 1, flight.BinCount)
	require.Equal(t, 50.0, flight.TotalBinWeight)
	repo.AssertExpectations(t)
}

func TestAssignBinToDepartedFlightRejected(t *testing.T) {
	flight := scheduledCargoFlight()
	flight.Status = models.CargoFlightDeparted
	bin := unassignedBin()

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)
	repo.On("GetFlight", mock.Anything, "cf-1").Return(flight, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Assign(context.Background(), testActor(), "bin-1", "cf-1")

	var assignmentErr *domain.AssignmentRejectedError
	require.ErrorAs(t, err, &assignmentErr)
	repo.AssertNotCalled(t, "SaveBinWithFlights", mock.Anything, mock.Anything, mock.Anything)
}

func TestAssignMaintenanceBinRejected(t *testing.T) {
	flight := scheduledCargoFlight()
	bin := unassignedBin()
	bin.State = models.BinMaintenance

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)
	repo.On("GetFlight", mock.Anything, "cf-1").Return(flight, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Assign(context.Background(), testActor(), "bin-1", "cf-1")

	var assignmentErr *domain.AssignmentRejectedError
	require.ErrorAs(t, err, &assignmentErr)
	require.Contains(t, assignmentErr.Reason, "maintenance")
}

func TestUnassignBinZeroesWeight(t *testing.T) {
	flight := scheduledCargoFlight()
	bin := assignedBin(flight)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)
	repo.On("BinsForFlight", mock.Anything, "cf-1").Return([]models.Bin{*bin}, nil)
	repo.On("SaveBinWithFlights", mock.Anything, mock.AnythingOfType("*models.Bin"), mock.Anything).Return(nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	out, err := svc.Unassign(context.Background(), testActor(), "bin-1")
	require.NoError(t, err)

	require.Nil(t, out.CargoFlightID)
	require.Equal(t, 0.0, out.CurrentWeight)
	require.Equal(t, models.BinAvailable, out.State)
	require.Equal(t, 0, flight.BinCount)
	require.Equal(t, 0.0, flight.TotalBinWeight)
}

func TestUnassignUnassignedBinRejected(t *testing.T) {
	bin := unassignedBin()

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Unassign(context.Background(), testActor(), "bin-1")

	var assignmentErr *domain.AssignmentRejectedError
	require.ErrorAs(t, err, &assignmentErr)
}

func TestUnassignFromDepartedFlightRejected(t *testing.T) {
	flight := scheduledCargoFlight()
	flight.Status = models.CargoFlightDeparted
	bin := assignedBin(flight)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Unassign(context.Background(), testActor(), "bin-1")

	var assignmentErr *domain.AssignmentRejectedError
	require.ErrorAs(t, err, &assignmentErr)
}

func TestAssignRejectsOldFlightDepartedDuringLoad(t *testing.T) {
	target := scheduledCargoFlight()

	oldBefore := scheduledCargoFlight()
	oldBefore.UUID = "cf-old"
	oldBefore.FlightNumber = "CG200"
	before := assignedBin(oldBefore)

	oldAfter := scheduledCargoFlight()
	oldAfter.UUID = "cf-old"
	oldAfter.FlightNumber = "CG200"
	oldAfter.Status = models.CargoFlightDeparted
	after := assignedBin(oldAfter)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(before, nil).Once()
	repo.On("GetBin", mock.Anything, "bin-1").Return(after, nil)
	repo.On("GetFlight", mock.Anything, "cf-1").Return(target, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Assign(context.Background(), testActor(), "bin-1", "cf-1")

	var immutableErr *domain.ImmutableAfterDepartureError
	require.ErrorAs(t, err, &immutableErr)
	require.Equal(t, "flight_assignment", immutableErr.Field)
	repo.AssertNotCalled(t, "SaveBinWithFlights", mock.Anything, mock.Anything, mock.Anything)
}

func TestUnassignRejectsDepartureCommittedDuringLoad(t *testing.T) {
	before := assignedBin(scheduledCargoFlight())

	departed := scheduledCargoFlight()
	departed.Status = models.CargoFlightDeparted
	after := assignedBin(departed)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(before, nil).Once()
	repo.On("GetBin", mock.Anything, "bin-1").Return(after, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.Unassign(context.Background(), testActor(), "bin-1")

	var assignmentErr *domain.AssignmentRejectedError
	require.ErrorAs(t, err, &assignmentErr)
	repo.AssertNotCalled(t, "SaveBinWithFlights", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateBinWeightRejectsDepartureCommittedDuringLoad(t *testing.T) {
	before := assignedBin(scheduledCargoFlight())

	departed := scheduledCargoFlight()
	departed.Status = models.CargoFlightDeparted
	after := assignedBin(departed)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(before, nil).Once()
	repo.On("GetBin", mock.Anything, "bin-1").Return(after, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	weight := 80.0
	_, err := svc.UpdateBin(context.Background(), testActor(), "bin-1", &UpdateBinRequest{CurrentWeight: &weight})

	var immutableErr *domain.ImmutableAfterDepartureError
	require.ErrorAs(t, err, &immutableErr)
	require.Equal(t, "current_weight", immutableErr.Field)
	repo.AssertNotCalled(t, "SaveBinWithFlights", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateBinWeightAfterDepartureRejected(t *testing.T) {
	flight := scheduledCargoFlight()
	flight.Status = models.CargoFlightDeparted
	bin := assignedBin(flight)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	weight := 80.0
	_, err := svc.UpdateBin(context.Background(), testActor(), "bin-1", &UpdateBinRequest{CurrentWeight: &weight})

	var immutableErr *domain.ImmutableAfterDepartureError
	require.ErrorAs(t, err, &immutableErr)
	require.Equal(t, "current_weight", immutableErr.Field)
	repo.AssertNotCalled(t, "SaveBinWithFlights", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateBinDescriptionAfterDepartureAllowed(t *testing.T) {
	flight := scheduledCargoFlight()
	flight.Status = models.CargoFlightDeparted
	bin := assignedBin(flight)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)
	repo.On("BinsForFlight", mock.Anything, "cf-1").Return([]models.Bin{*bin}, nil)
	repo.On("SaveBinWithFlights", mock.Anything, mock.AnythingOfType("*models.Bin"), mock.Anything).Return(nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	desc := "refrigerated"
	out, err := svc.UpdateBin(context.Background(), testActor(), "bin-1", &UpdateBinRequest{Description: &desc})
	require.NoError(t, err)
	require.Equal(t, "refrigerated", out.Description)
}

func TestDepartBlockedByOverloadedBin(t *testing.T) {
	flight := scheduledCargoFlight()

	overloaded := *assignedBin(flight)
	overloaded.CurrentWeight = 120
	overloaded.Recompute(flight)
	require.True(t, overloaded.IsOverloaded)

	repo := new(MockCargoRepository)
	repo.On("GetFlight", mock.Anything, "cf-1").Return(flight, nil)
	repo.On("BinsForFlight", mock.Anything, "cf-1").Return([]models.Bin{overloaded}, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.TransitionFlight(context.Background(), testActor(), "cf-1", models.CargoTransitionDepart)

	var departureErr *domain.DepartureBlockedError
	require.ErrorAs(t, err, &departureErr)
	require.Equal(t, []string{"ULD-001"}, departureErr.OverloadedBins)
	repo.AssertNotCalled(t, "SaveFlightWithBins", mock.Anything, mock.Anything, mock.Anything)
}

func TestDepartRederivesBinStates(t *testing.T) {
	flight := scheduledCargoFlight()
	bin := *assignedBin(flight)
	require.Equal(t, models.BinLoaded, bin.State)

	repo := new(MockCargoRepository)
	repo.On("GetFlight", mock.Anything, "cf-1").Return(flight, nil)
	repo.On("BinsForFlight", mock.Anything, "cf-1").Return([]models.Bin{bin}, nil)
	repo.On("SaveFlightWithBins", mock.Anything, mock.AnythingOfType("*models.CargoFlight"), mock.MatchedBy(func(bins []models.Bin) bool {
		return len(bins) == 1 && bins[0].State == models.BinInTransit
	})).Return(nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	out, err := svc.TransitionFlight(context.Background(), testActor(), "cf-1", models.CargoTransitionDepart)
	require.NoError(t, err)
	require.Equal(t, models.CargoFlightDeparted, out.Status)
	repo.AssertExpectations(t)
}

func TestArriveMarksBinsDelivered(t *testing.T) {
	flight := scheduledCargoFlight()
	flight.Status = models.CargoFlightDeparted
	bin := *assignedBin(flight)

	repo := new(MockCargoRepository)
	repo.On("GetFlight", mock.Anything, "cf-1").Return(flight, nil)
	repo.On("BinsForFlight", mock.Anything, "cf-1").Return([]models.Bin{bin}, nil)
	repo.On("SaveFlightWithBins", mock.Anything, mock.AnythingOfType("*models.CargoFlight"), mock.MatchedBy(func(bins []models.Bin) bool {
		return len(bins) == 1 && bins[0].State == models.BinDelivered
	})).Return(nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	out, err := svc.TransitionFlight(context.Background(), testActor(), "cf-1", models.CargoTransitionArrive)
	require.NoError(t, err)
	require.Equal(t, models.CargoFlightArrived, out.Status)
}

func TestResetWeightClearsOverload(t *testing.T) {
	flight := scheduledCargoFlight()
	bin := assignedBin(flight)
	bin.CurrentWeight = 120
	bin.Recompute(flight)
	require.True(t, bin.IsOverloaded)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)
	repo.On("BinsForFlight", mock.Anything, "cf-1").Return([]models.Bin{*bin}, nil)
	repo.On("SaveBinWithFlights", mock.Anything, mock.AnythingOfType("*models.Bin"), mock.Anything).Return(nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	out, err := svc.ResetWeight(context.Background(), testActor(), "bin-1")
	require.NoError(t, err)
	require.Equal(t, 0.0, out.CurrentWeight)
	require.False(t, out.IsOverloaded)
	require.False(t, flight.HasOverloadedBins)
}

func TestResetWeightAfterDepartureRejected(t *testing.T) {
	flight := scheduledCargoFlight()
	flight.Status = models.CargoFlightArrived
	bin := assignedBin(flight)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.ResetWeight(context.Background(), testActor(), "bin-1")

	var immutableErr *domain.ImmutableAfterDepartureError
	require.ErrorAs(t, err, &immutableErr)
}

func TestSetMaintenanceOnAssignedBinRejected(t *testing.T) {
	flight := scheduledCargoFlight()
	bin := assignedBin(flight)

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.SetMaintenance(context.Background(), testActor(), "bin-1")

	var transitionErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, "maintenance", transitionErr.Transition)
}

func TestSetMaintenanceOnUnassignedBin(t *testing.T) {
	bin := unassignedBin()

	repo := new(MockCargoRepository)
	repo.On("GetBin", mock.Anything, "bin-1").Return(bin, nil)
	repo.On("SaveBinWithFlights", mock.Anything, mock.AnythingOfType("*models.Bin"), mock.Anything).Return(nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	out, err := svc.SetMaintenance(context.Background(), testActor(), "bin-1")
	require.NoError(t, err)
	require.Equal(t, models.BinMaintenance, out.State)
}

func TestCreateBinRejectsDuplicateCode(t *testing.T) {
	repo := new(MockCargoRepository)
	repo.On("HasDuplicateBinCode", mock.Anything, "tenant-1", "ULD-001", "").Return(true, nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	_, err := svc.CreateBin(context.Background(), testActor(), &CreateBinRequest{
		BinCode:   "ULD-001",
		BinType:   models.BinTypeULD,
		Volume:    10,
		MaxWeight: 100,
	})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, domain.CodeDuplicate, validationErr.Violations[0].Code)
}

func TestCreateBinOverloadedPersists(t *testing.T) {
	repo := new(MockCargoRepository)
	repo.On("HasDuplicateBinCode", mock.Anything, "tenant-1", "ULD-001", "").Return(false, nil)
	repo.On("SaveBinWithFlights", mock.Anything, mock.AnythingOfType("*models.Bin"), mock.Anything).Return(nil)

	svc := NewCargoService(repo, eventlog.NopSink{}, nil, nil, nil)

	bin, err := svc.CreateBin(context.Background(), testActor(), &CreateBinRequest{
		BinCode:       "ULD-001",
		BinType:       models.BinTypeULD,
		Volume:        10,
		MaxWeight:     100,
		CurrentWeight: 150,
	})
	require.NoError(t, err)
	require.True(t, bin.IsOverloaded)
	require.Equal(t, -50.0, bin.AvailableWeight)
}
