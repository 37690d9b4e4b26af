package cli

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dms/meridian-dms/jobs"
)

func TestTriggerRejectsUnknownJob(t *testing.T) {
	mr := miniredis.RunT(t)
	cli, err := NewJobsCLI(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	_, err = cli.Trigger(context.Background(), "recon:unknown", "")
	require.ErrorContains(t, err, "unsupported job")
}

func TestTriggerNilClient(t *testing.T) {
	var cli *JobsCLI
	_, err := cli.Trigger(context.Background(), jobs.TaskReconAuto, "")
	require.Error(t, err)
}

func TestInspectQueueNilInspector(t *testing.T) {
	cli := &JobsCLI{}
	_, err := cli.InspectQueue(context.Background())
	require.Error(t, err)
}
