package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dougsko/sdrgain/pkg/config"
	"github.com/dougsko/sdrgain/pkg/control"
	"github.com/dougsko/sdrgain/pkg/logging"
)

var (
	configPath  = flag.String("config", "config.yaml", "Configuration file path")
	gain        = flag.Int("gain", -1, "Tuner gain, tenths of dB for native, whole dB for rtl_power (overrides radio.gain)")
	port        = flag.Int("port", 0, "Web server port (overrides web.port and $PORT)")
	withTLS     = flag.Bool("tls", false, "Serve HTTPS with a self-signed certificate. Only for testing!")
	backendFlag = flag.String("backend", "", "Radio backend: native, rtl_power or mock")
	verbose     = flag.Bool("v", false, "Enable debug logging")
	version     = flag.Bool("version", false, "Show version information")
)

// applyFlags lets command line flags win over the configuration file
func applyFlags(cfg *config.Config) {
	if env := os.Getenv("PORT"); env != "" {
		if p, err := strconv.Atoi(env); err == nil {
			cfg.Web.Port = p
		}
	}
	if *port != 0 {
		cfg.Web.Port = *port
	}
	if *gain >= 0 {
		cfg.Radio.Gain = *gain
	}
	if *withTLS {
		cfg.Web.TLS = true
	}
	if *backendFlag != "" {
		cfg.Radio.Backend = *backendFlag
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
}

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("sdrgaind version %s\n", control.Version)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	logging.Infof("main", "sdrgaind version %s starting...", control.Version)
	logging.Infof("main", "Backend: %s, gain: %d", cfg.Radio.Backend, cfg.Radio.Gain)

	daemon, err := NewDaemon(cfg)
	if err != nil {
		logging.Errorf("main", "Failed to create daemon: %v", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logging.Errorf("main", "Failed to start daemon: %v", err)
		daemon.Stop()
		logging.CloseGlobalLogger()
		os.Exit(1)
	}

	<-sigChan
	logging.Info("main", "Shutting down...")

	if err := daemon.Stop(); err != nil {
		logging.Errorf("main", "Error during shutdown: %v", err)
	}
	logging.Info("main", "sdrgaind stopped")
}
