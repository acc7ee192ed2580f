package conf

import (
	"github.com/visiongate/visiongate/internal/errors"
)

// ValidateSettings checks the loaded settings for values the pipeline cannot
// operate with.
func ValidateSettings(settings *Settings) error {
	if settings.Recognition.SimilarityThreshold < 0 || settings.Recognition.SimilarityThreshold > 100 {
		return errors.Newf("recognition.similaritythreshold must be within [0,100], got %d",
			settings.Recognition.SimilarityThreshold).
			Component("conf").
			Category(errors.CategoryConfig).
			Build()
	}

	if settings.Recognition.MaxImageSize <= 0 {
		return errors.Newf("recognition.maximagesize must be positive, got %d",
			settings.Recognition.MaxImageSize).
			Component("conf").
			Category(errors.CategoryConfig).
			Build()
	}

	if settings.Recognition.RecentEvents <= 0 {
		return errors.Newf("recognition.recentevents must be positive, got %d",
			settings.Recognition.RecentEvents).
			Component("conf").
			Category(errors.CategoryConfig).
			Build()
	}

	if settings.Device.CallTimeout <= 0 {
		return errors.ValidationError("device.calltimeout must be positive")
	}

	if settings.Report.QueryTimeout <= 0 {
		return errors.ValidationError("report.querytimeout must be positive")
	}

	if settings.Dispatch.QueueSize <= 0 {
		return errors.ValidationError("dispatch.queuesize must be positive")
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.ValidationError("no output database enabled, enable output.sqlite or output.mysql")
	}

	for _, ch := range settings.Device.Channels {
		if ch < 0 {
			return errors.Newf("device.channels entries must be >= 0, got %d", ch).
				Component("conf").
				Category(errors.CategoryConfig).
				Build()
		}
	}

	return nil
}
