package governance

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/caregrid/sentinel/internal/domain"
)

func TestWatermarkAppliedForSensitiveLevels(t *testing.T) {
	info := WatermarkInfo{
		DownloaderName: "Nurse One",
		DownloaderID:   "a8f3",
		IPAddress:      "198.51.100.7",
		DownloadedAt:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	content := "id,name\n1,John Smith\n"

	out := Watermark(content, domain.LevelConfidential, info)
	assert.True(t, strings.HasPrefix(out, content))
	assert.Contains(t, out, "Nurse One")
	assert.Contains(t, out, "a8f3")
	assert.Contains(t, out, "198.51.100.7")
	assert.Contains(t, out, "2026-03-14T09:30:00Z")
	assert.Contains(t, out, "confidential")

	out = Watermark(content, domain.LevelRestricted, info)
	assert.Contains(t, out, "restricted")
}

func TestWatermarkPassThroughForLowerLevels(t *testing.T) {
	content := "id,name\n1,John Smith\n"
	info := WatermarkInfo{DownloaderName: "Nurse One"}

	assert.Equal(t, content, Watermark(content, domain.LevelPublic, info))
	assert.Equal(t, content, Watermark(content, domain.LevelInternal, info))
}
