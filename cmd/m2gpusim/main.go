// Package main provides the entry point for m2gpusim, a cycle-level
// GPU SIMT core timing simulator.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/stdr"

	"github.com/sarchlab/m2gpusim/config"
	"github.com/sarchlab/m2gpusim/sim"
	"github.com/sarchlab/m2gpusim/trace"
)

var (
	configPath = flag.String("config", "", "Path to a GPU configuration JSON file")
	kernelIDs  = flag.String("kernels", "0", "Comma-separated list of kernel launch ids to replay, in order")
	maxCycles  = flag.Uint64("max-cycles", 10_000_000, "Cycle budget before the run is forcibly stopped")
	verbose    = flag.Bool("v", false, "Verbose driver logging")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: m2gpusim [options] <trace.json>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	tracePath := flag.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	reader, err := trace.LoadJSONReader(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trace: %v\n", err)
		os.Exit(1)
	}

	launchIDs, err := parseKernelIDs(*kernelIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -kernels: %v\n", err)
		os.Exit(1)
	}

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))
	stdr.SetVerbosity(verbosity)

	driver, err := sim.NewDriver(cfg, reader, launchIDs, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building driver: %v\n", err)
		os.Exit(1)
	}

	cycles := driver.Run(*maxCycles)
	ks := driver.CollectStats(launchIDs[0], "run")

	fmt.Printf("Trace:   %s\n", tracePath)
	fmt.Printf("Cycles:  %d\n", cycles)
	fmt.Printf("Instrs:  %d\n", ks.Instructions)
	fmt.Printf("IPC:     %.3f\n", ks.IPC())
	fmt.Printf("Stalls:  %d\n", ks.StallCycles)

	if report, err := driver.Stats.ToJSON(); err == nil && *verbose {
		fmt.Println(string(report))
	}
}

func loadConfig(path string) (*config.GPUConfig, error) {
	if path == "" {
		return config.DefaultGPUConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return config.LoadJSON(data)
}

func parseKernelIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid kernel id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no kernel ids given")
	}
	return ids, nil
}
