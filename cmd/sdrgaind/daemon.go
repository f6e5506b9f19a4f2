package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dougsko/sdrgain/pkg/backend"
	"github.com/dougsko/sdrgain/pkg/backend/native"
	"github.com/dougsko/sdrgain/pkg/backend/rtlpower"
	"github.com/dougsko/sdrgain/pkg/config"
	"github.com/dougsko/sdrgain/pkg/control"
	"github.com/dougsko/sdrgain/pkg/engine"
	"github.com/dougsko/sdrgain/pkg/hardware"
	"github.com/dougsko/sdrgain/pkg/logging"
	"github.com/dougsko/sdrgain/pkg/publish"
	"github.com/dougsko/sdrgain/pkg/rxdata"
	"github.com/dougsko/sdrgain/pkg/storage"
)

// Daemon wires the measurement engine to its outer surfaces
type Daemon struct {
	config *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state     *rxdata.State
	engine    *engine.Engine
	store     *storage.SettingsStore
	control   *control.Server
	publisher *publish.Publisher
	router    *gin.Engine
	webServer *http.Server
}

// NewBackend builds the backend named in radio.backend
func NewBackend(cfg *config.Config, state *rxdata.State) (backend.Backend, error) {
	switch cfg.Radio.Backend {
	case config.BackendNative:
		return native.New(hardware.RTLTCPOpener(cfg.Radio.RTLTCPAddress), state), nil
	case config.BackendRTLPower:
		return rtlpower.New(cfg.Radio.RTLPowerPath, state), nil
	case config.BackendMock:
		return native.New(hardware.MockOpener(hardware.MockConfig{
			SignalHz:  cfg.Radio.MockSignalKHz * 1000,
			Amplitude: cfg.Radio.MockAmplitude,
			Noise:     0.01,
		}), state), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Radio.Backend)
	}
}

// NewDaemon creates the daemon. Nothing is started yet.
func NewDaemon(cfg *config.Config) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		state:  rxdata.NewState(),
	}
	d.state.SetFrequency(cfg.Radio.DefaultFrequencyKHz)

	if cfg.Storage.DatabasePath != "" {
		store, err := storage.NewSettingsStore(cfg.Storage.DatabasePath)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open settings store: %w", err)
		}
		d.store = store

		khz, ok, err := store.LastFrequency()
		if err != nil {
			logging.Warnf("daemon", "Could not restore frequency: %v", err)
		} else if ok {
			d.state.SetFrequency(khz)
			logging.Infof("daemon", "Restored frequency %d kHz", khz)
		}
	}

	b, err := NewBackend(cfg, d.state)
	if err != nil {
		d.closeStore()
		cancel()
		return nil, err
	}

	d.engine = engine.New(d.state, b, engine.Options{
		Gain:              cfg.Radio.Gain,
		PollInterval:      cfg.PollInterval(),
		OnFrequencyChange: d.saveFrequency,
	})

	var presets control.Presets
	if d.store != nil {
		presets = d.store
	}
	d.control = control.NewServer(d.engine, presets, cfg.API.UnixSocket)

	d.setupWebServer()
	return d, nil
}

func (d *Daemon) saveFrequency(khz uint32) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveFrequency(khz); err != nil {
		logging.Warnf("daemon", "Failed to save frequency: %v", err)
	}
}

// Start starts the engine first. Failing to open the first session is fatal.
func (d *Daemon) Start() error {
	if err := d.engine.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	if err := d.control.Start(); err != nil {
		return fmt.Errorf("failed to start control socket: %w", err)
	}

	if d.config.MQTT.Enabled {
		client, err := publish.Dial(d.config)
		if err != nil {
			// The meter is still useful without the broker
			logging.Errorf("daemon", "MQTT disabled: %v", err)
		} else {
			d.publisher = publish.NewPublisher(client, d.config.MQTT.Topic, d.state, d.engine)
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.publisher.Run(d.ctx)
			}()
		}
	}

	if d.config.Web.TLS {
		cert, err := selfSignedCertificate()
		if err != nil {
			return fmt.Errorf("failed to generate certificate: %w", err)
		}
		d.webServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		var err error
		if d.webServer.TLSConfig != nil {
			logging.Infof("daemon", "Listening on https://%s", d.webServer.Addr)
			err = d.webServer.ListenAndServeTLS("", "")
		} else {
			logging.Infof("daemon", "Listening on http://%s", d.webServer.Addr)
			err = d.webServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("daemon", "Web server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts everything down in reverse order
func (d *Daemon) Stop() error {
	d.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.webServer.Shutdown(ctx); err != nil {
		logging.Warnf("daemon", "Web server shutdown error: %v", err)
	}

	if err := d.control.Stop(); err != nil {
		logging.Warnf("daemon", "Control socket shutdown error: %v", err)
	}

	d.wg.Wait()
	if d.publisher != nil {
		d.publisher.Close()
	}

	err := d.engine.Stop()
	d.closeStore()
	return err
}

func (d *Daemon) closeStore() {
	if d.store != nil {
		d.store.Close()
	}
}

func (d *Daemon) setupWebServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	router.GET("/", d.handleHome)
	router.GET("/frequency", d.handleGetFrequency)
	router.POST("/frequency", d.handleSetFrequency)
	router.GET("/power", d.handleGetPower)
	router.GET("/status", d.handleGetStatus)
	router.GET("/sse", d.handleSSE)
	router.GET("/ws", d.handleWebSocket)

	presets := router.Group("/presets")
	{
		presets.GET("", d.handleListPresets)
		presets.PUT("/:name", d.handleSavePreset)
		presets.DELETE("/:name", d.handleDeletePreset)
		presets.POST("/:name/apply", d.handleApplyPreset)
	}

	d.router = router
	d.webServer = &http.Server{
		Addr:    d.config.ListenAddress(),
		Handler: router,
	}
}

// requestLogger logs each request at debug level through the component logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("http", fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path), logging.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
	}
}
