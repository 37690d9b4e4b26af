package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveDateDefaultsToYesterday(t *testing.T) {
	now := time.Date(2026, 3, 1, 4, 30, 0, 0, time.UTC)

	date, err := ReconAutoPayload{}.ResolveDate(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), date)
}

func TestResolveDateExplicit(t *testing.T) {
	date, err := ReconAutoPayload{Date: "2026-01-15"}.ResolveDate(time.Now())
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), date)
}

func TestResolveDateRejectsGarbage(t *testing.T) {
	_, err := ReconAutoPayload{Date: "15/01/2026"}.ResolveDate(time.Now())
	require.Error(t, err)
}

func TestTaskConstruction(t *testing.T) {
	task, err := NewReconAutoTask(ReconAutoPayload{Date: "2026-01-15"})
	require.NoError(t, err)
	require.Equal(t, TaskReconAuto, task.Type())

	task, err = NewStockLowScanTask()
	require.NoError(t, err)
	require.Equal(t, TaskStockLowScan, task.Type())
}
