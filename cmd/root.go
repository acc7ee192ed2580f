package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/visiongate/visiongate/cmd/admin"
	"github.com/visiongate/visiongate/cmd/realtime"
	"github.com/visiongate/visiongate/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "visiongate",
		Short: "VisionGate CLI",
		Long:  "Real-time face recognition attendance and traffic counting pipeline.",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		realtime.Command(settings),
		admin.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Device.IP, "ip", viper.GetString("device.ip"), "Device IP address")
	rootCmd.PersistentFlags().IntVar(&settings.Device.Port, "port", viper.GetInt("device.port"), "Device service port")
	rootCmd.PersistentFlags().BoolVar(&settings.Device.Simulate, "simulate", viper.GetBool("device.simulate"), "Run against the in-process simulated device")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
