// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Command monxrtd is the monoxr runtime service: it owns the control
// socket, the shared-memory device-table region, and the dedicated
// render task described in spec §4.G (see SPEC_FULL.md §6.1 "CLI").
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/monoxr/runtime/driver"
	_ "github.com/monoxr/runtime/driver/null"
	"github.com/monoxr/runtime/internal/compositor"
	"github.com/monoxr/runtime/internal/config"
	"github.com/monoxr/runtime/internal/ipc"
	"github.com/monoxr/runtime/internal/pacing"
	"github.com/monoxr/runtime/internal/renderloop"
	"github.com/monoxr/runtime/internal/session"
	"github.com/monoxr/runtime/internal/shm"
	"github.com/monoxr/runtime/internal/swapchain"
	"github.com/monoxr/runtime/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// Exit codes (spec.md §6, SPEC_FULL.md §6.1): 0 clean, 1 init failure,
// 2 runtime failure.
const (
	exitOK      = 0
	exitInit    = 1
	exitRuntime = 2
)

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitInit
	}
	switch args[0] {
	case "service":
		return runService(args[1:])
	case "test":
		return runTest(args[1:])
	default:
		usage()
		return exitInit
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: monxrtd service [--socket PATH] | test")
}

func runService(args []string) int {
	fs := flag.NewFlagSet("service", flag.ContinueOnError)
	socketPath := fs.String("socket", config.DefaultSocketPath, "control socket path")
	if err := fs.Parse(args); err != nil {
		return exitInit
	}

	log := telemetry.Log
	cfg := config.Current()
	telemetry.SetVerbose(cfg.Trace || cfg.VerboseSessionLog)
	table := deviceTableWithConfig(cfg)

	region, regionFD, err := shm.CreateMapped(table, cfg.MaxClients)
	if err != nil {
		log.Error().Err(err).Msg("failed to build shared-memory region")
		return exitInit
	}
	defer syscall.Close(regionFD)

	drivers := driver.Drivers()
	if len(drivers) == 0 {
		log.Error().Msg("no driver registered")
		return exitInit
	}
	renderer, err := drivers[0].Open()
	if err != nil {
		log.Error().Err(err).Str("driver", drivers[0].Name()).Msg("failed to open driver")
		return exitInit
	}
	defer drivers[0].Close()

	os.Remove(*socketPath)
	listener, err := net.Listen("unixpacket", *socketPath)
	if err != nil {
		log.Error().Err(err).Str("socket", *socketPath).Msg("failed to listen")
		return exitInit
	}
	defer os.Remove(*socketPath)

	sessions := session.NewTable()
	comp := compositor.New()
	clients := renderloop.NewRegistry()
	gc := swapchain.NewGCStack()

	periodNs := periodFromDeviceTable(table)
	engine := pacing.NewDisplayTiming(periodNs)
	loop := renderloop.NewLoop(engine, renderer, sessions, comp, clients, gc)
	loop.Region = region

	_, closeDebugView := openDebugView(cfg)
	defer closeDebugView()

	// The arena bounds ServerThreadIndex to region's slot count and
	// recycles indices across connection churn (spec §4.A), rather
	// than handing out an ever-growing index per accepted connection.
	arena := shm.NewSlotArena(cfg.MaxClients)

	svc := &ipc.Services{
		Renderer:    renderer,
		Sessions:    sessions,
		Compositor:  comp,
		Clients:     clients,
		GC:          gc,
		Region:      region,
		RegionFD:    regionFD,
		ExtraWaitMS: cfg.ExtraWaitMS,
		MaxClients:  cfg.MaxClients,
		SlotArena:   arena,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return renderTask(gctx, loop, periodNs) })
	g.Go(func() error { return acceptLoop(gctx, listener, svc) })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("signal received, shutting down")
			requestAllExit(sessions)
			listener.Close()
			cancel()
		case <-gctx.Done():
		}
	}()

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("service exited with error")
		return exitRuntime
	}
	return exitOK
}

func requestAllExit(sessions *session.Table) {
	for _, id := range sessions.Sessions() {
		sessions.RequestExit(id)
	}
}

func runTest(args []string) int {
	table := defaultDeviceTable()
	region, err := shm.NewRegion(table, config.MaxClients)
	if err != nil {
		fmt.Fprintf(os.Stderr, "monxrtd: failed to build region: %v\n", err)
		return exitInit
	}
	dumpRegion(os.Stdout, region)
	return exitOK
}
