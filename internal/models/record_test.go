package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/backstage/services/airlogistic/internal/domain"
)

func validRecord() *SampleRecord {
	r := &SampleRecord{
		Name:     "Quarterly inspection",
		State:    RecordDraft,
		Priority: PriorityNormal,
	}
	r.UUID = "rec-1"
	r.Active = true
	return r
}

func TestRecordValidate(t *testing.T) {
	r := validRecord()
	require.Empty(t, r.Validate())

	r.Name = ""
	violations := r.Validate()
	require.Len(t, violations, 1)
	require.Equal(t, domain.CodeRequired, violations[0].Code)

	r = validRecord()
	r.Progress = 120
	violations = r.Validate()
	require.Len(t, violations, 1)
	require.Equal(t, domain.CodeOutOfRange, violations[0].Code)

	r = validRecord()
	r.Priority = "extreme"
	violations = r.Validate()
	require.Len(t, violations, 1)
}

func TestRecordRecompute(t *testing.T) {
	r := validRecord()

	lineA := SampleLine{Quantity: 2, Price: 10}
	lineA.Recompute()
	lineB := SampleLine{Quantity: 3, Price: 5}
	lineB.Recompute()

	r.Recompute([]SampleLine{lineA, lineB})

	require.Equal(t, 2, r.LineCount)
	require.Equal(t, 35.0, r.TotalAmount)
	require.Equal(t, "[DRAFT] Quarterly inspection", r.DisplayName)
}

func TestRecordDisplayNameFollowsState(t *testing.T) {
	r := validRecord()
	r.State = RecordInProgress

	r.Recompute(nil)

	require.Equal(t, "[IN_PROGRESS] Quarterly inspection", r.DisplayName)
}

func TestLineRecompute(t *testing.T) {
	l := SampleLine{Quantity: 4, Price: 2.5}
	l.Recompute()
	require.Equal(t, 10.0, l.Amount)

	l.Quantity = 0
	l.Recompute()
	require.Equal(t, 0.0, l.Amount)
}

func TestLineValidate(t *testing.T) {
	l := SampleLine{Name: "Item", Quantity: 1}
	require.Empty(t, l.Validate())

	l.Name = ""
	l.Quantity = -1
	require.Len(t, l.Validate(), 2)
}

func TestRecordMachineTransitions(t *testing.T) {
	next, err := RecordMachine.Apply("rec-1", RecordDraft, RecordTransitionConfirm)
	require.NoError(t, err)
	require.Equal(t, RecordConfirmed, next)

	next, err = RecordMachine.Apply("rec-1", RecordConfirmed, RecordTransitionStart)
	require.NoError(t, err)
	require.Equal(t, RecordInProgress, next)

	// Done is reachable from confirmed without passing through in_progress.
	next, err = RecordMachine.Apply("rec-1", RecordConfirmed, RecordTransitionDone)
	require.NoError(t, err)
	require.Equal(t, RecordDone, next)

	// Done records cannot be cancelled, only reset.
	_, err = RecordMachine.Apply("rec-1", RecordDone, RecordTransitionCancel)
	require.Error(t, err)

	next, err = RecordMachine.Apply("rec-1", RecordDone, RecordTransitionReset)
	require.NoError(t, err)
	require.Equal(t, RecordDraft, next)

	next, err = RecordMachine.Apply("rec-1", RecordCancelled, RecordTransitionReset)
	require.NoError(t, err)
	require.Equal(t, RecordDraft, next)
}

func TestRecordPriorityValid(t *testing.T) {
	require.True(t, PriorityLow.Valid())
	require.True(t, PriorityUrgent.Valid())
	require.False(t, RecordPriority("extreme").Valid())
}
