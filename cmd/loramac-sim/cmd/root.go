package cmd

import (
	"bytes"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	version string
)

var rootCmd = &cobra.Command{
	Use:   "loramac-sim",
	Short: "loramac device simulator",
	Long: `loramac-sim drives the loramac Class A engine against an in-memory radio
and a scripted network server, for development of the MAC layer without
hardware.`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().Int("log-level", 4, "debug=5, info=4, error=2, fatal=1, panic=0")

	viper.BindPFlag("general.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.SetDefault("device.band", "EU868")
	viper.SetDefault("device.dev_eui", "0102030405060708")
	viper.SetDefault("device.join_eui", "0203040506070809")
	viper.SetDefault("device.app_key", "2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b")
	viper.SetDefault("simulation.uplinks", 5)
	viper.SetDefault("simulation.fport", 2)
	viper.SetDefault("simulation.confirmed", false)

	rootCmd.AddCommand(versionCmd)
}

// Execute executes the root command.
func Execute(v string) {
	version = v

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initConfig() {
	if cfgFile != "" {
		b, err := os.ReadFile(cfgFile)
		if err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(b)); err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
	} else {
		viper.SetConfigName("loramac-sim")
		viper.AddConfigPath(".")
		if err := viper.ReadInConfig(); err != nil {
			switch err.(type) {
			case viper.ConfigFileNotFoundError:
				// fall back to defaults
			default:
				log.WithError(err).Fatal("read configuration file error")
			}
		}
	}

	log.SetLevel(log.Level(uint8(viper.GetInt("general.log_level"))))
}
