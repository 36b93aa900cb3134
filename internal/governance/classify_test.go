package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caregrid/sentinel/internal/domain"
)

func TestClassifyDerivesFlags(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	tests := []struct {
		level             domain.Level
		requiresApproval  bool
		watermarkRequired bool
	}{
		{domain.LevelPublic, false, false},
		{domain.LevelInternal, false, false},
		{domain.LevelConfidential, true, true},
		{domain.LevelRestricted, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			c, err := env.engine.Classify(ctx, nil, "patients", "col_"+string(tt.level), tt.level, 365, "admin")
			require.NoError(t, err)
			assert.Equal(t, tt.requiresApproval, c.RequiresApproval)
			assert.Equal(t, tt.watermarkRequired, c.WatermarkRequired)
		})
	}
}

func TestClassifyRejectsBadInput(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	_, err := env.engine.Classify(ctx, nil, "patients; DROP TABLE x", "name", domain.LevelPublic, 0, "admin")
	assert.Error(t, err)

	_, err = env.engine.Classify(ctx, nil, "patients", "na me", domain.LevelPublic, 0, "admin")
	assert.Error(t, err)

	_, err = env.engine.Classify(ctx, nil, "patients", "name", domain.Level("secret"), 0, "admin")
	assert.Error(t, err)

	_, err = env.engine.Classify(ctx, nil, "patients", "name", domain.LevelPublic, -1, "admin")
	assert.Error(t, err)
}

func TestHighestClassification(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	env.classify(t, "patients", "name", domain.LevelInternal)
	env.classify(t, "patients", "ssn", domain.LevelRestricted)
	env.classify(t, "patients", "city", domain.LevelPublic)

	level, err := env.engine.HighestClassification(ctx, nil, "patients")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelRestricted, level)
}

func TestHighestClassificationDefaultsInternal(t *testing.T) {
	env := newEngineEnv()

	level, err := env.engine.HighestClassification(context.Background(), nil, "unclassified_table")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelInternal, level)
}

func TestGetClassification(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	env.classify(t, "patients", "ssn", domain.LevelRestricted)

	c, err := env.engine.GetClassification(ctx, nil, "patients", "ssn")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, domain.LevelRestricted, c.Level)

	missing, err := env.engine.GetClassification(ctx, nil, "patients", "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
