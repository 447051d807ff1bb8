package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/backstage/services/airlogistic/internal/domain"
)

func validBin() *Bin {
	b := &Bin{
		BinCode:       "ULD-001",
		BinType:       BinTypeULD,
		Volume:        10,
		MaxWeight:     100,
		CurrentWeight: 60,
	}
	b.UUID = "bin-1"
	b.Active = true
	return b
}

func TestBinValidate(t *testing.T) {
	b := validBin()
	require.Empty(t, b.Validate())

	b.Volume = 0
	violations := b.Validate()
	require.Len(t, violations, 1)
	require.Equal(t, domain.CodeNotPositive, violations[0].Code)

	b = validBin()
	b.CurrentWeight = -1
	violations = b.Validate()
	require.Len(t, violations, 1)
	require.Equal(t, domain.CodeNegative, violations[0].Code)

	b = validBin()
	b.BinType = "balloon"
	violations = b.Validate()
	require.Len(t, violations, 1)
	require.Equal(t, domain.CodeCodeFormat, violations[0].Code)
}

func TestBinRecomputeWeightFields(t *testing.T) {
	b := validBin()

	b.Recompute(nil)

	require.Equal(t, 40.0, b.AvailableWeight)
	require.Equal(t, 60.0, b.WeightUtilization)
	require.False(t, b.IsOverloaded)
	require.Equal(t, "[ULD-001] ULD (Unit Load Device)", b.Name)
}

func TestBinRecomputeOverloaded(t *testing.T) {
	b := validBin()
	b.CurrentWeight = 120

	b.Recompute(nil)

	// Overload persists as a derived flag; available weight goes negative.
	require.True(t, b.IsOverloaded)
	require.Equal(t, -20.0, b.AvailableWeight)
	require.Equal(t, 120.0, b.WeightUtilization)
}

func TestBinRecomputeZeroMaxWeight(t *testing.T) {
	b := validBin()
	b.MaxWeight = 0
	b.CurrentWeight = 0

	b.Recompute(nil)

	require.Equal(t, 0.0, b.WeightUtilization)
}

func TestBinStateDerivation(t *testing.T) {
	flightID := "cf-1"

	flight := &CargoFlight{Status: CargoFlightScheduled}
	flight.UUID = flightID

	b := validBin()
	b.CargoFlightID = &flightID
	b.CurrentWeight = 0
	b.Recompute(flight)
	require.Equal(t, BinAssigned, b.State)

	b.CurrentWeight = 10
	b.Recompute(flight)
	require.Equal(t, BinLoaded, b.State)

	flight.Status = CargoFlightBoarding
	b.Recompute(flight)
	require.Equal(t, BinInTransit, b.State)

	flight.Status = CargoFlightDeparted
	b.Recompute(flight)
	require.Equal(t, BinInTransit, b.State)

	flight.Status = CargoFlightArrived
	b.Recompute(flight)
	require.Equal(t, BinDelivered, b.State)

	b.CargoFlightID = nil
	b.Recompute(nil)
	require.Equal(t, BinAvailable, b.State)
}

func TestBinMaintenanceIsStickyWhileUnassigned(t *testing.T) {
	b := validBin()
	b.State = BinMaintenance

	b.Recompute(nil)

	require.Equal(t, BinMaintenance, b.State)
}

func TestCargoFlightRecomputeAggregates(t *testing.T) {
	f := &CargoFlight{
		MaxCargoWeight: 200,
		MaxCargoVolume: 40,
		Status:         CargoFlightScheduled,
	}
	f.UUID = "cf-1"

	binA := *validBin()
	binA.CurrentWeight = 60
	binA.Recompute(nil)

	binB := *validBin()
	binB.UUID = "bin-2"
	binB.BinCode = "ULD-002"
	binB.CurrentWeight = 120
	binB.Recompute(nil)

	inactive := *validBin()
	inactive.UUID = "bin-3"
	inactive.Active = false
	inactive.Recompute(nil)

	f.Recompute([]Bin{binA, binB, inactive})

	require.Equal(t, 2, f.BinCount)
	require.Equal(t, 180.0, f.TotalBinWeight)
	require.Equal(t, 20.0, f.TotalBinVolume)
	require.Equal(t, 90.0, f.WeightUtilization)
	require.Equal(t, 50.0, f.VolumeUtilization)
	require.True(t, f.HasOverloadedBins)
	require.Equal(t, []string{"ULD-002"}, f.OverloadedBinCodes([]Bin{binA, binB, inactive}))
}

func TestCargoFlightRecomputeEmpty(t *testing.T) {
	f := &CargoFlight{MaxCargoWeight: 0, MaxCargoVolume: 0}

	f.Recompute(nil)

	require.Equal(t, 0, f.BinCount)
	require.Equal(t, 0.0, f.WeightUtilization)
	require.False(t, f.HasOverloadedBins)
}

func TestCargoFlightIsDeparted(t *testing.T) {
	f := &CargoFlight{Status: CargoFlightScheduled}
	require.False(t, f.IsDeparted())

	f.Status = CargoFlightBoarding
	require.False(t, f.IsDeparted())

	f.Status = CargoFlightDeparted
	require.True(t, f.IsDeparted())

	f.Status = CargoFlightArrived
	require.True(t, f.IsDeparted())
}

func TestCargoFlightMachineTransitions(t *testing.T) {
	// Depart is legal both from scheduled and from boarding.
	next, err := CargoFlightMachine.Apply("cf-1", CargoFlightScheduled, CargoTransitionDepart)
	require.NoError(t, err)
	require.Equal(t, CargoFlightDeparted, next)

	next, err = CargoFlightMachine.Apply("cf-1", CargoFlightBoarding, CargoTransitionDepart)
	require.NoError(t, err)
	require.Equal(t, CargoFlightDeparted, next)

	// Departed flights cannot be cancelled.
	_, err = CargoFlightMachine.Apply("cf-1", CargoFlightDeparted, CargoTransitionCancel)
	require.Error(t, err)

	require.True(t, CargoFlightMachine.IsTerminal(CargoFlightArrived))
	require.True(t, CargoFlightMachine.IsTerminal(CargoFlightCancelled))
}
