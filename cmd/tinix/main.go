// Command tinix bootstraps the simulator: opens (and formats, if
// requested) the disk image, wires blockdev/memory/fsys/device/process
// into a shell.Kernel, and either runs a script file non-interactively or
// drops into the interactive shell. Grounded on the teacher's
// cmd/kernel/main.go (parse flags, initialize logging, build the kernel,
// wait for input) and original_source/src/main.cpp's equivalent sequence.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/FanTuani/tinix/internal/blockdev"
	"github.com/FanTuani/tinix/internal/config"
	"github.com/FanTuani/tinix/internal/device"
	"github.com/FanTuani/tinix/internal/fsys"
	"github.com/FanTuani/tinix/internal/klog"
	"github.com/FanTuani/tinix/internal/memory"
	"github.com/FanTuani/tinix/internal/process"
	"github.com/FanTuani/tinix/internal/shell"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON configuration file (optional, defaults apply otherwise)")
	format := flag.Bool("format", false, "format the disk image before mounting")
	scriptPath := flag.String("script", "", "run shell commands from this file non-interactively, then exit")
	logLevel := flag.String("log-level", "", "override the configured log level (debug/info/warn/error)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			klog.Log.WithField("error", err).Error("failed to load configuration")
			os.Exit(1)
		}
		cfg = loaded
	}
	if *logLevel != "" {
		klog.SetLevel(*logLevel)
	} else {
		klog.SetLevel(cfg.LogLevel)
	}

	kernel, err := buildKernel(cfg, *format)
	if err != nil {
		klog.Log.WithField("error", err).Error("kernel initialization failed")
		os.Exit(1)
	}

	sh := shell.New(kernel, os.Stdout)
	if *scriptPath != "" {
		sh.Exec(fmt.Sprintf("script %s", *scriptPath))
		return
	}
	sh.Run(os.Stdin)
}

func buildKernel(cfg *config.Config, doFormat bool) (*shell.Kernel, error) {
	disk, err := blockdev.Open(cfg.DiskImage, cfg.TotalBlocks, cfg.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("opening disk image: %w", err)
	}

	layout := fsys.NewLayout(cfg.BlockSize, cfg.SwapStart(), cfg.MaxInodes, cfg.DirectBlocks, cfg.MaxFilenameLen)
	fs := fsys.New(disk, layout)
	if doFormat {
		if err := fs.Format(); err != nil {
			return nil, fmt.Errorf("formatting file system: %w", err)
		}
	} else if err := fs.Mount(); err != nil {
		klog.Log.WithField("error", err).Warn("mount failed, formatting a fresh file system")
		if err := fs.Format(); err != nil {
			return nil, fmt.Errorf("formatting file system: %w", err)
		}
	}

	mem := memory.New(disk, cfg.PageFrames, cfg.BlockSize, cfg.SwapStart())
	devices := device.New()
	scheduler := process.NewScheduler(mem, fs, devices, cfg.DefaultQuantum, cfg.DefaultVPages)

	klog.Log.WithFields(klog.Fields{
		"disk_image":  cfg.DiskImage,
		"total_blocks": cfg.TotalBlocks,
		"page_frames": cfg.PageFrames,
	}).Info("kernel initialized")

	return &shell.Kernel{
		Scheduler: scheduler,
		Memory:    mem,
		FS:        fs,
		Devices:   devices,
	}, nil
}
