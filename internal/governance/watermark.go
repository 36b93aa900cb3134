package governance

import (
	"fmt"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
)

// WatermarkInfo identifies the downloader for attribution.
type WatermarkInfo struct {
	DownloaderName string
	DownloaderID   string
	IPAddress      string
	DownloadedAt   time.Time
}

// Watermark appends the attribution footer to exported text or CSV content
// when the classification requires it. Lower classifications pass through
// unchanged.
func Watermark(content string, level domain.Level, info WatermarkInfo) string {
	if !level.WatermarkRequired() {
		return content
	}
	at := info.DownloadedAt
	if at.IsZero() {
		at = time.Now()
	}
	return content + fmt.Sprintf(
		"\n\n--- CONFIDENTIAL ---\nDownloaded by: %s (%s)\nDate: %s\nIP: %s\nThis document contains %s data. Unauthorized distribution is prohibited and logged.\n",
		info.DownloaderName,
		info.DownloaderID,
		at.Format(time.RFC3339),
		info.IPAddress,
		string(level),
	)
}
