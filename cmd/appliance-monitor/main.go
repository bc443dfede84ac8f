package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appliance-monitor/config"
	"appliance-monitor/internal/api"
	"appliance-monitor/internal/controller"
	"appliance-monitor/internal/device"
	"appliance-monitor/internal/meter"
	"appliance-monitor/internal/modbus"
	"appliance-monitor/internal/mqtt"
	"appliance-monitor/internal/storage"

	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "appliance-monitor",
		Short: "Appliance activity monitor",
		Long:  "Infers appliance activity from smart switch power readings and tracks usage sessions",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(testCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring service",
		Long:  "Start all device runners, the API server, and the MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if len(cfg.Devices) == 0 {
				return fmt.Errorf("no devices configured")
			}

			historySize := 0
			for _, d := range cfg.Devices {
				if d.HistorySize > historySize {
					historySize = d.HistorySize
				}
			}

			db, err := storage.NewDatabase(cfg.Database.Path, historySize)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			log.Printf("Database opened at %s", cfg.Database.Path)

			broker, err := mqtt.NewClient(mqtt.ClientConfig{
				Broker:   cfg.MQTT.Broker,
				ClientID: cfg.MQTT.ClientID,
				Username: cfg.MQTT.Username,
				Password: cfg.MQTT.Password,
				Enabled:  cfg.MQTT.Enabled,
			})
			if err != nil {
				return fmt.Errorf("MQTT connection failed: %w", err)
			}
			if cfg.MQTT.Enabled {
				log.Printf("MQTT connected to %s", cfg.MQTT.Broker)
			}

			publisher := mqtt.NewPublisher(broker, cfg.MQTT.TopicPrefix)

			manager := device.NewManager()
			for _, d := range cfg.Devices {
				src, err := buildSource(d, broker)
				if err != nil {
					return err
				}
				ctrl := controller.New(d.ControllerConfig(), src)
				manager.Add(device.NewRunner(ctrl, src, db, publisher))
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			runnersDone := make(chan struct{})
			go func() {
				manager.RunAll(ctx)
				close(runnersDone)
			}()

			if cfg.Database.RetentionDays > 0 {
				retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
				if err := db.CleanOldSessions(retention); err != nil {
					log.Printf("Session cleanup failed: %v", err)
				}
			}

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port:    cfg.API.Port,
					Devices: manager,
					Broker:  broker,
				})

				go func() {
					if err := server.Start(); err != nil {
						log.Printf("API server error: %v", err)
					}
				}()
			}

			log.Println("Appliance Monitor started. Press Ctrl+C to stop.")

			<-sigChan
			log.Println("Shutting down...")
			cancel()
			<-runnersDone

			if server != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				server.Stop(shutdownCtx)
				shutdownCancel()
			}
			broker.Close()
			db.Close()

			return nil
		},
	}
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read [device]",
		Short: "Read the meter once for a device",
		Long:  "Connect to a device's meter and print a single reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, d, err := pickDevice(args)
			if err != nil {
				return err
			}

			broker, err := connectBrokerFor(cfg, *d)
			if err != nil {
				return err
			}
			defer broker.Close()

			src, err := buildSource(*d, broker)
			if err != nil {
				return err
			}

			reading, err := src.ReadOnce(context.Background())
			if err != nil {
				return fmt.Errorf("failed to read meter: %w", err)
			}

			output, _ := json.MarshalIndent(reading, "", "  ")
			fmt.Println(string(output))

			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [device]",
		Short: "Test the meter connection for a device",
		Long:  "Connect to a device's meter and verify readings arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, d, err := pickDevice(args)
			if err != nil {
				return err
			}

			fmt.Printf("Testing %s (%s source)...\n", d.Name, d.Source)

			broker, err := connectBrokerFor(cfg, *d)
			if err != nil {
				fmt.Printf("Connection FAILED: %v\n", err)
				return err
			}
			defer broker.Close()

			src, err := buildSource(*d, broker)
			if err != nil {
				return err
			}

			reading, err := src.ReadOnce(context.Background())
			if err != nil {
				fmt.Printf("Connection FAILED: %v\n", err)
				return err
			}

			fmt.Println("Connection SUCCESS!")
			if reading.PowerW != nil {
				fmt.Printf("  Power:     %.1f W\n", *reading.PowerW)
			}
			if reading.EnergyKWh != nil {
				fmt.Printf("  Energy:    %.3f kWh\n", *reading.EnergyKWh)
			}
			if reading.SwitchOn != nil {
				fmt.Printf("  Switch:    %v\n", *reading.SwitchOn)
			}

			return nil
		},
	}
}

func pickDevice(args []string) (*config.Config, *config.DeviceConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Devices) == 0 {
		return nil, nil, fmt.Errorf("no devices configured")
	}
	if len(args) == 0 {
		if len(cfg.Devices) == 1 {
			return cfg, &cfg.Devices[0], nil
		}
		return nil, nil, fmt.Errorf("multiple devices configured, name one")
	}
	for i := range cfg.Devices {
		if cfg.Devices[i].Name == args[0] {
			return cfg, &cfg.Devices[i], nil
		}
	}
	return nil, nil, fmt.Errorf("unknown device %q", args[0])
}

// connectBrokerFor connects to MQTT only when the device needs it.
func connectBrokerFor(cfg *config.Config, d config.DeviceConfig) (*mqtt.Client, error) {
	if d.Source != "mqtt" {
		return mqtt.NewClient(mqtt.ClientConfig{Enabled: false})
	}
	return mqtt.NewClient(mqtt.ClientConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID + "-cli",
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Enabled:  true,
	})
}

func buildSource(d config.DeviceConfig, broker *mqtt.Client) (meter.Source, error) {
	switch d.Source {
	case "mqtt":
		return meter.NewMQTTSource(d.Name, broker, d.MeterMQTTConfig()), nil
	case "modbus":
		client := modbus.NewClient(d.Modbus.IP, d.Modbus.Port, d.Modbus.SlaveID, d.ModbusTimeout())
		return meter.NewModbusSource(d.Name, client, d.MeterModbusConfig()), nil
	}
	return nil, fmt.Errorf("%s: unknown source %q", d.Name, d.Source)
}
