package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/evilsocket/islazy/tui"
	"github.com/spf13/cobra"

	"github.com/born-ml/cortex/internal/backend/cpu"
	"github.com/born-ml/cortex/internal/backend/gpu"
	"github.com/born-ml/cortex/internal/config"
)

func runDevices(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	columns := []string{"backend", "device", "workers", "local memory", "max workgroup", "extensions", "memory"}
	rows := [][]string{}

	b, err := cfg.NewBackend(config.BackendCPU, logger)
	if err != nil {
		return err
	}
	c := b.(*cpu.CPUBackend)
	rows = append(rows, []string{
		c.Name(),
		"host",
		fmt.Sprint(c.Config().Workers),
		"-",
		"-",
		"f16",
		limit(c.Config().MemoryLimit),
	})
	c.Release()

	for _, kind := range []string{gpu.DeviceHost, gpu.DeviceWebGPU} {
		gcfg := cfg.GPU
		gcfg.Device = kind
		gcfg.Logger = logger
		g, err := gpu.New(gcfg)
		if err != nil {
			rows = append(rows, []string{"GPU", kind, "-", "-", "-", "-", "unavailable"})
			continue
		}
		caps := g.Capabilities()
		rows = append(rows, []string{
			g.Name(),
			caps.Name,
			"-",
			fmt.Sprintf("%s (%s)", humanize.IBytes(uint64(caps.LocalMemorySize)), caps.LocalMemoryType),
			fmt.Sprint(caps.MaxWorkgroupSize),
			strings.Join(caps.Extensions, ","),
			limit(caps.GlobalMemorySize),
		})
		g.Release()
	}

	tui.Table(out, columns, rows)
	return nil
}

func limit(bytes uint64) string {
	if bytes == 0 {
		return "unlimited"
	}
	return humanize.IBytes(bytes)
}
