package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/events"
	apperrors "github.com/spec-kit/activity-tracker/pkg/util/errorutil"
)

func TestStatusService_DefaultsToNotAvailable(t *testing.T) {
	f := newFixture(t, morning)

	status, err := f.statuses.GetStatus(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotAvailable, status)

	memo, err := f.statuses.GetStatusMemo(f.ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, memo)
}

func TestStatusService_UpdateStatus(t *testing.T) {
	f := newFixture(t, morning)

	snap, err := f.statuses.UpdateStatus(f.ctx, "u1", domain.StatusActive, "  Writing docs ")
	require.NoError(t, err)
	assert.Equal(t, "Writing docs", snap.Memo)
	assert.Equal(t, morning, snap.Timestamp)

	memo, err := f.statuses.GetStatusMemo(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Writing docs", memo)
	assert.Equal(t, 1, f.countEvents(events.EventStatusChanged))

	f.mu.Lock()
	payload := f.events[0].Payload.(events.StatusChangedPayload)
	f.mu.Unlock()
	assert.Equal(t, domain.StatusNotAvailable, payload.OldStatus)
	assert.Equal(t, domain.StatusActive, payload.NewStatus)
}

func TestStatusService_UpdateStatusErrors(t *testing.T) {
	f := newFixture(t, morning)

	_, err := f.statuses.UpdateStatus(f.ctx, "u1", "busy", "")
	var derr *apperrors.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "VALIDATION_FAILED", derr.Code)

	_, err = f.statuses.UpdateStatus(f.ctx, "ghost", domain.StatusActive, "")
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "NOT_FOUND", derr.Code)
}

func TestStatusService_ToggleActive(t *testing.T) {
	f := newFixture(t, morning)

	_, err := f.statuses.ToggleActive(f.ctx, "u1", "", "memo")
	require.Error(t, err)

	snap, err := f.statuses.ToggleActive(f.ctx, "u1", "Apollo", "Fix login")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, snap.Status)
	assert.Equal(t, "[Apollo] Fix login", snap.Memo)

	snap, err = f.statuses.ToggleActive(f.ctx, "u1", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailableForWork, snap.Status)
	assert.Empty(t, snap.Memo)
}

func TestStatusService_HistoryForDay(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 3, 23, 0, 0, 0, time.UTC))

	f.setStatus("u1", domain.StatusActive, "late")
	f.clock.Advance(2 * time.Hour)
	f.setStatus("u1", domain.StatusNotAvailable, "")
	f.clock.Advance(time.Hour)
	f.setStatus("u1", domain.StatusActive, "early")

	history, err := f.statuses.History(f.ctx, "u1", day)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.StatusNotAvailable, history[0].Status)
	assert.Equal(t, "early", history[1].Memo)

	history, err = f.statuses.History(f.ctx, "u2", day)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	_, err = f.statuses.History(f.ctx, "u1", "3/4/2024")
	assert.Error(t, err)
}
