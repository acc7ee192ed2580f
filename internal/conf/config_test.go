package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func defaultTestSettings() *Settings {
	return &Settings{
		Device: DeviceSettings{
			IP:          "192.168.1.108",
			Port:        37777,
			CallTimeout: 3 * time.Second,
			Channels:    []int{0, 1},
		},
		Recognition: RecognitionSettings{
			SimilarityThreshold: 80,
			MaxImageSize:        10 * 1024 * 1024,
			RecentEvents:        50,
		},
		Dispatch: DispatchSettings{
			HealthCheckInterval: time.Minute,
			QueueSize:           256,
		},
		Report: ReportSettings{QueryTimeout: 30 * time.Second},
		Output: OutputSettings{SQLite: SQLiteSettings{Enabled: true, Path: "test.db"}},
	}
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	assert.NoError(t, ValidateSettings(defaultTestSettings()))
}

func TestValidateSettingsRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"threshold above range", func(s *Settings) { s.Recognition.SimilarityThreshold = 101 }},
		{"threshold below range", func(s *Settings) { s.Recognition.SimilarityThreshold = -1 }},
		{"zero max image size", func(s *Settings) { s.Recognition.MaxImageSize = 0 }},
		{"zero recent events", func(s *Settings) { s.Recognition.RecentEvents = 0 }},
		{"zero call timeout", func(s *Settings) { s.Device.CallTimeout = 0 }},
		{"zero query timeout", func(s *Settings) { s.Report.QueryTimeout = 0 }},
		{"zero queue size", func(s *Settings) { s.Dispatch.QueueSize = 0 }},
		{"no output enabled", func(s *Settings) { s.Output.SQLite.Enabled = false }},
		{"negative channel", func(s *Settings) { s.Device.Channels = []int{-1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultTestSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}
