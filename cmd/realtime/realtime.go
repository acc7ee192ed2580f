package realtime

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/visiongate/visiongate/internal/conf"
	"github.com/visiongate/visiongate/internal/service"
)

// Command creates the realtime pipeline command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run the event pipeline",
		Long:  "Connect to the device, start the configured channel analyzers, and process events until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return service.Realtime(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntSliceVar(&settings.Device.Channels, "channels", viper.GetIntSlice("device.channels"), "Channels to start analyzers on")
	cmd.Flags().IntVar(&settings.Recognition.SimilarityThreshold, "threshold", viper.GetInt("recognition.similaritythreshold"), "Minimum candidate similarity for attendance logging")
	cmd.Flags().BoolVar(&settings.WebServer.Enabled, "webserver", viper.GetBool("webserver.enabled"), "Enable the HTTP control and SSE server")
	cmd.Flags().StringVar(&settings.WebServer.Port, "webport", viper.GetString("webserver.port"), "HTTP server port")
	cmd.Flags().BoolVar(&settings.MQTT.Enabled, "mqtt", viper.GetBool("mqtt.enabled"), "Publish events to the MQTT broker")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
