package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/born-ml/cortex/internal/config"
)

const version = "v0.1.0-dev"

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string

	cfg    = config.Default()
	logger = logrus.New()

	rootCmd = &cobra.Command{
		Use:           "cortex",
		Short:         "Inspect, verify and benchmark the cortex tensor backends",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cortex %s\n", version)
		},
	}

	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "List backends and device capabilities",
		RunE:  runDevices,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Run every primitive on the CPU and GPU backends and compare the results",
		RunE:  runVerify,
	}

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Time the primitives on each backend",
		RunE:  runBench,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level from the config")

	verifyCmd.Flags().Uint64Var(&verifyOpts.seed, "seed", 1, "seed of the generated inputs")
	verifyCmd.Flags().IntVar(&verifyOpts.cells, "cells", 1024, "number of cells")
	verifyCmd.Flags().IntVar(&verifyOpts.synapses, "synapses", 32, "synapse slots per cell")

	benchCmd.Flags().Uint64Var(&benchOpts.seed, "seed", 1, "seed of the generated inputs")
	benchCmd.Flags().IntVar(&benchOpts.cells, "cells", 16384, "number of cells")
	benchCmd.Flags().IntVar(&benchOpts.synapses, "synapses", 64, "synapse slots per cell")
	benchCmd.Flags().IntVarP(&benchIterations, "iterations", "n", 20, "iterations per primitive")

	rootCmd.AddCommand(versionCmd, devicesCmd, verifyCmd, benchCmd)
}

func loadConfig() error {
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	l, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// openBackends builds the CPU reference and the configured GPU backend.
func openBackends() (ref, dev namedBackend, err error) {
	c, err := cfg.NewBackend(config.BackendCPU, logger)
	if err != nil {
		return namedBackend{}, namedBackend{}, err
	}
	g, err := cfg.NewBackend(config.BackendGPU, logger)
	if err != nil {
		c.Release()
		return namedBackend{}, namedBackend{}, err
	}
	return namedBackend{name: "cpu", Backend: c}, namedBackend{name: "gpu", Backend: g}, nil
}
