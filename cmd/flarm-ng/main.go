// Command flarm-ng runs the collision avoidance transceiver: GNSS in,
// radio frames in and out, NMEA dataport out. Configuration sentences
// received on stdin rewrite the config file and restart the engine.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"flarm-ng/internal/config"
	"flarm-ng/internal/engine"
	"flarm-ng/internal/gps"
	"flarm-ng/internal/nmea"
	"flarm-ng/internal/radio"
	"flarm-ng/internal/sound"
	"flarm-ng/internal/web"
)

func main() {
	var (
		configPath string
		nmeaStdout bool
	)
	pflag.StringVar(&configPath, "config", "./flarm-ng.yaml", "Path to YAML config")
	pflag.BoolVar(&nmeaStdout, "nmea-stdout", false, "Echo dataport sentences to stdout")
	pflag.Parse()

	for {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
		setupLogging(cfg.Log)

		restart, err := run(cfg, configPath, nmeaStdout)
		if err != nil {
			log.Fatalf("flarm-ng: %v", err)
		}
		if !restart {
			return
		}
		log.Printf("configuration changed, restarting")
	}
}

func setupLogging(lc config.LogConfig) {
	if lc.Path == "" {
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   lc.Path,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
	}))
}

// run brings the whole stack up and blocks until shutdown. It returns
// restart=true when a dataport configuration sentence rewrote the
// config file and the process should reload it.
func run(cfg config.Config, configPath string, nmeaStdout bool) (restart bool, err error) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	transport, err := radio.New(cfg.Radio.Mode, cfg.Radio.Listen, cfg.Radio.Dest)
	if err != nil {
		return false, err
	}
	defer transport.Close()

	gnss := gps.New(gps.Config{
		Enable:   true,
		Source:   cfg.GPS.Source,
		GPSDAddr: cfg.GPS.GPSDAddr,
		Device:   cfg.GPS.Device,
		Baud:     cfg.GPS.Baud,
	})
	if err := gnss.Start(ctx); err != nil {
		log.Printf("gnss start failed, flying blind: %v", err)
	}
	defer gnss.Close()

	var notifier sound.Notifier = sound.Silent{}
	if cfg.Sound.Enable {
		notifier = sound.NewDesktop("flarm-ng")
	}

	port, err := newDataport(cfg.NMEA.Dest, nmeaStdout)
	if err != nil {
		return false, err
	}
	defer port.Close()

	metrics := engine.NewMetrics()
	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	eng, err := engine.New(cfg, engine.Deps{
		Radio:   transport,
		GNSS:    gnss,
		Sound:   notifier,
		Out:     port.Send,
		Metrics: metrics,
	})
	if err != nil {
		return false, err
	}

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := web.Serve(ctx, cfg.Metrics.Listen, eng.Status, reg); err != nil && ctx.Err() == nil {
				log.Printf("status server stopped: %v", err)
			}
		}()
	}

	engErr := make(chan error, 1)
	go func() {
		engErr <- eng.Run(ctx)
	}()

	commands := make(chan *nmea.Command, 4)
	go readCommands(ctx, os.Stdin, commands)

	for {
		select {
		case <-ctx.Done():
			<-engErr
			return false, nil
		case err := <-engErr:
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		case cmd := <-commands:
			changed, err := cfg.ApplyCommand(cmd)
			if err != nil {
				log.Printf("dataport command rejected: %v", err)
				port.Send(nmea.PSRFE(err.Error()))
				continue
			}
			if !changed {
				continue
			}
			if err := cfg.Save(configPath); err != nil {
				log.Printf("config save failed: %v", err)
				port.Send(nmea.PSRFE("configuration write failed"))
				continue
			}
			cancel()
			<-engErr
			return true, nil
		}
	}
}
