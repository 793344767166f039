package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Kinis2025/sebelo/internal/simulator"
	applog "github.com/Kinis2025/sebelo/pkg/logger"
	"github.com/Kinis2025/sebelo/pkg/metrics"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Post synthetic uplinks to a running server",
	Long: `Run the uplink simulator that:
- Creates a fleet of fake sensor devices
- Registers their locations
- Posts TTN-shaped uplinks to /ingest on a schedule`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().String("target", "http://localhost:8080", "base URL of the sensor hub")
	simulateCmd.Flags().Int("devices", 5, "number of simulated devices")
	simulateCmd.Flags().Duration("interval", 10*time.Second, "interval between uplink rounds")
	simulateCmd.Flags().Uint64("seed", 0, "seed for device generation (0 is random)")
	simulateCmd.Flags().Bool("register-locations", true, "register device locations before sending")

	_ = viper.BindPFlag("simulator.target", simulateCmd.Flags().Lookup("target"))
	_ = viper.BindPFlag("simulator.devices", simulateCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("simulator.interval", simulateCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("simulator.seed", simulateCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("simulator.register_locations", simulateCmd.Flags().Lookup("register-locations"))
}

func runSimulate(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting uplink simulator")

	sim, err := simulator.New(&simulator.Config{
		Logger:            applog.WithComponent(logger, "simulator"),
		Metrics:           metrics.NewSimulatorMetrics(nil, metrics.Namespace),
		TargetURL:         viper.GetString("simulator.target"),
		Devices:           viper.GetInt("simulator.devices"),
		Interval:          viper.GetDuration("simulator.interval"),
		Seed:              viper.GetUint64("simulator.seed"),
		RegisterLocations: viper.GetBool("simulator.register_locations"),
	})
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return err
	}

	for _, d := range sim.Devices() {
		logger.Info("simulated device", "device_id", d.DeviceID, "label", d.Label)
	}

	if err := sim.Run(context.Background()); err != nil {
		logger.Error("simulator error", "error", err)
		return err
	}

	return nil
}
