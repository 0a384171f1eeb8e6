package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cuview/config"
	"cuview/console"
	"cuview/drivers"
	"cuview/ecus"
	"cuview/events"
	"cuview/publish"
	"cuview/romdefs"
	"cuview/web/handlers"
)

func main() {
	cfg := config.GetFlags()

	kind, err := ecus.ParseKind(cfg.CU)
	if err != nil {
		log.Fatalf("bad -cu: %v", err)
	}

	var defs *romdefs.Definitions
	if cfg.RomDefs != "" {
		defs, err = romdefs.Load(cfg.RomDefs)
		if err != nil {
			log.Fatalf("couldn't load rom definitions: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventHub := events.NewHub()
	identifier := drivers.NewIdentifier(kind, defs, eventHub, cfg.Flags)

	// Create the correct driver
	var driver drivers.Driver
	switch cfg.Driver {
	case config.KLine:
		driver = drivers.NewKLine(cfg.Serial, identifier, cfg.CaptureDir)
	case config.SocketCAN:
		driver = drivers.NewSocketCAN(cfg.SocketCAN, identifier, cfg.CaptureDir)
	case config.Replay:
		driver = drivers.NewReplayer(cfg.Replay, identifier)
	default:
		log.Fatalf("unsupported driver type: %s", cfg.Driver)
	}

	// Start up the driver
	if err := driver.Init(); err != nil {
		log.Fatalf("couldn't init driver: %s", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Printf("couldn't close driver: %s", err)
		}
	}()

	go func() {
		if err := driver.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("error running driver: %s", err)
		}
	}()

	if cfg.MQTT.Broker != "" {
		publisher := publish.NewPublisher(cfg.MQTT, eventHub)
		publisher.SetStatusSource(identifier.Status)
		if err := publisher.Connect(); err != nil {
			log.Printf("mqtt disabled: %v", err)
		} else {
			defer publisher.Close()
			go publisher.Run(ctx)
		}
	}

	switch cfg.UI {
	case config.Console:
		// the terminal belongs to tview from here on
		log.SetOutput(logFile(cfg.CaptureDir))
		if err := console.New(eventHub, kind).Run(ctx); err != nil {
			log.Printf("%v", err)
		}
	default:
		dashboard, err := web.NewDashboard(eventHub, kind)
		if err != nil {
			log.Fatalf("couldn't create dashboard: %v", err)
		}
		go dashboard.Run(ctx)

		server := web.NewServer(dashboard)
		if err := server.Start(ctx, cfg.Addr); err != nil {
			log.Printf("couldn't start server: %v", err)
		}
	}
}
