// SPDX-License-Identifier: EPL-2.0

// Command audroute runs an audio routing graph from a configuration file,
// or converts a single file offline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ik5/audroute"
	"github.com/ik5/audroute/config"
	"github.com/ik5/audroute/engine"
	"github.com/ik5/audroute/hw"
	"github.com/ik5/audroute/internal/log"
)

func main() {
	args := os.Args[1:]
	command := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "run":
		runEngine(args)
	case "convert":
		runConvert(args)
	case "drivers":
		printDrivers()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [command] [options]

Commands:
  run        Run the graph described by -config (default)
  convert    Convert one audio file to WAV offline
  drivers    List the hardware drivers in this build

Run '%s <command> -h' for more information on a command.
`, os.Args[0], os.Args[0])
}

func printDrivers() {
	for _, name := range hw.Drivers() {
		fmt.Println(name)
	}
}

func runEngine(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the JSON engine configuration")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error); overrides the configuration")
	logFormat := fs.String("log-format", "", "log format (text or json); overrides the configuration")
	driver := fs.String("driver", "", "hardware driver; overrides the configuration")
	device := fs.String("device", "", "device name for the driver; overrides the configuration")
	listDrivers := fs.Bool("list-drivers", false, "list hardware drivers and exit")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s run [options]\n\nRuns the engine until interrupted.\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}
	if *listDrivers {
		printDrivers()
		return
	}
	if *configPath == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *device != "" {
		cfg.Device = *device
	}
	log.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"config": *configPath,
		"driver": cfg.Driver,
		"nodes":  len(cfg.Nodes),
	}).Info("starting engine")

	if err := audroute.Run(ctx, cfg, engine.Options{}); err != nil {
		log.Fatalf("Engine failed: %v", err)
	}
	log.Infof("engine stopped")
}

func runConvert(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	rate := fs.Int("rate", 8000, "output sample rate")
	channels := fs.Int("channels", 1, "output channels (1 or 2)")
	bits := fs.Int("bits", 16, "output bit depth (16, 24 or 32)")
	filter := fs.String("filter", "", "filter description, e.g. \"highpass=80,volume:db=-3\"")
	buffer := fs.Int("buffer", config.DefaultBufferSize, "block size in frames")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s convert [options] <input.{wav|aiff|mp3|ogg|flac}> <output.wav>\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}
	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	frames, err := audroute.Convert(ctx, fs.Arg(0), fs.Arg(1), audroute.ConvertOptions{
		SampleRate: *rate,
		Channels:   *channels,
		BitDepth:   *bits,
		Filter:     *filter,
		BufferSize: *buffer,
	})
	if err != nil {
		log.Fatalf("Conversion failed: %v", err)
	}
	fmt.Printf("Wrote %s: %d frames at %d Hz\n", fs.Arg(1), frames, *rate)
}
