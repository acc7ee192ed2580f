// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "VisionGate")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "visiongate.log")

	viper.SetDefault("device.ip", "192.168.1.108")
	viper.SetDefault("device.port", 37777)
	viper.SetDefault("device.username", "admin")
	viper.SetDefault("device.password", "")
	viper.SetDefault("device.simulate", false)
	viper.SetDefault("device.calltimeout", "3s")
	viper.SetDefault("device.channels", []int{0})

	viper.SetDefault("recognition.similaritythreshold", 80)
	viper.SetDefault("recognition.maximagesize", 10*1024*1024)
	viper.SetDefault("recognition.recentevents", 50)

	viper.SetDefault("dispatch.healthcheckinterval", "1m")
	viper.SetDefault("dispatch.queuesize", 256)

	viper.SetDefault("report.querytimeout", "30s")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "visiongate.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "visiongate")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "visiongate")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", 3306)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "visiongate")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
}
