package governance

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caregrid/sentinel/internal/domain"
)

func TestLogDownloadActivityBelowThreshold(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	nurse := nurseRequester()

	act, err := env.engine.LogDownloadActivity(ctx, nil, nurse, DownloadInput{
		FileName: "report.csv", FileType: "csv", RecordCount: 20,
		Classification: domain.LevelInternal, IPAddress: "198.51.100.7",
	})
	require.NoError(t, err)
	assert.False(t, act.Suspicious)
	assert.Empty(t, env.audit.events)
}

func TestLogDownloadActivityFlagsAtThreshold(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	nurse := nurseRequester()

	threshold := DefaultConfig().DownloadThresholdPerHour
	var last *domain.DownloadActivity
	for i := 0; i < threshold; i++ {
		var err error
		last, err = env.engine.LogDownloadActivity(ctx, nil, nurse, DownloadInput{
			FileName: "report.csv", FileType: "csv", RecordCount: 5,
			Classification: domain.LevelInternal, IPAddress: "198.51.100.7",
		})
		require.NoError(t, err)
	}

	assert.True(t, last.Suspicious)
	for _, row := range env.downloads.rows {
		assert.True(t, row.Suspicious)
	}

	require.NotEmpty(t, env.audit.events)
	evt := env.audit.events[len(env.audit.events)-1]
	assert.Equal(t, "suspicious_download_pattern", evt.Action)
	assert.Equal(t, 90, evt.RiskScore)
}

func TestLogDownloadActivityRequiresFileName(t *testing.T) {
	env := newEngineEnv()

	_, err := env.engine.LogDownloadActivity(context.Background(), nil, nurseRequester(), DownloadInput{})
	assert.Error(t, err)
}

func TestLogDataAccess(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	details, _ := json.Marshal(map[string]string{"record_id": "ARC-001"})
	err := env.engine.LogDataAccess(ctx, nil, nurseRequester(), "record_viewed", "medical_records", domain.LevelConfidential, details)
	require.NoError(t, err)

	require.Len(t, env.audit.events, 1)
	evt := env.audit.events[0]
	assert.Equal(t, "record_viewed", evt.Action)
	assert.Equal(t, domain.LevelConfidential, evt.Classification)
	assert.Equal(t, 60, evt.RiskScore)

	// Unknown level defaults to internal, not public.
	err = env.engine.LogDataAccess(ctx, nil, nurseRequester(), "record_viewed", "medical_records", domain.Level(""), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelInternal, env.audit.events[1].Classification)

	err = env.engine.LogDataAccess(ctx, nil, nurseRequester(), "", "medical_records", domain.LevelInternal, nil)
	assert.Error(t, err)
}
