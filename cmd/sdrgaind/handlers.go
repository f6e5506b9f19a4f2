package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dougsko/sdrgain/pkg/control"
	"github.com/dougsko/sdrgain/pkg/logging"
	"github.com/dougsko/sdrgain/pkg/rxdata"
	"github.com/dougsko/sdrgain/pkg/storage"
)

const (
	sseKeepAliveInterval = time.Second
	sseKeepAliveText     = "keep-alive-text"
)

//go:embed web/index.html
var indexHTML []byte

var errStoreDisabled = errors.New("settings store is disabled")

// handleHome serves the embedded measurement page
func (d *Daemon) handleHome(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (d *Daemon) handleGetFrequency(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"frequency_khz": d.state.Frequency()})
}

// handleSetFrequency takes the frequency in kHz as a plain decimal body
func (d *Daemon) handleSetFrequency(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	khz, err := rxdata.ParseFrequency(string(body))
	if err == nil {
		err = d.engine.SetFrequency(khz)
	}
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	logging.Debugf("http", "Frequency set to %d kHz", khz)
	c.JSON(http.StatusOK, gin.H{"frequency_khz": khz})
}

func (d *Daemon) handleGetPower(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"dbfs": control.Round2(d.state.Power())})
}

func (d *Daemon) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, control.Snapshot(d.engine))
}

// handleSSE streams every power update as "data: -42.17"
func (d *Daemon) handleSSE(c *gin.Context) {
	sub := d.state.Subscribe()
	defer sub.Close()

	ctx := c.Request.Context()
	updates := make(chan float64)
	go func() {
		defer close(updates)
		for {
			dbfs, err := sub.Next(ctx)
			if err != nil {
				return
			}
			select {
			case updates <- dbfs:
			case <-ctx.Done():
				return
			}
		}
	}()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Content-Type", "text/event-stream")

	c.Stream(func(w io.Writer) bool {
		select {
		case dbfs, ok := <-updates:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %.2f\n\n", dbfs)
			return true
		case <-keepAlive.C:
			fmt.Fprintf(w, ": %s\n\n", sseKeepAliveText)
			return true
		case <-ctx.Done():
			return false
		case <-d.ctx.Done():
			return false
		}
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket pushes {"dbfs": v} for every power update
func (d *Daemon) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("http", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := d.state.Subscribe()
	defer sub.Close()

	// The read side only watches for the client going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	logging.Debug("http", "WebSocket client connected")
	for {
		dbfs, err := sub.Next(d.ctx)
		if err != nil {
			break
		}
		if err := conn.WriteJSON(gin.H{"dbfs": control.Round2(dbfs)}); err != nil {
			logging.Debugf("http", "WebSocket write error: %v", err)
			break
		}
	}
	logging.Debug("http", "WebSocket client disconnected")
}

func (d *Daemon) handleListPresets(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errStoreDisabled.Error()})
		return
	}
	presets, err := d.store.ListPresets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"presets": presets,
		"count":   len(presets),
	})
}

func (d *Daemon) handleSavePreset(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errStoreDisabled.Error()})
		return
	}

	var req struct {
		FrequencyKHz uint32 `json:"frequency_khz" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := c.Param("name")
	if err := d.store.SavePreset(name, req.FrequencyKHz); err != nil {
		c.JSON(presetErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":          name,
		"frequency_khz": req.FrequencyKHz,
	})
}

func (d *Daemon) handleDeletePreset(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errStoreDisabled.Error()})
		return
	}
	if err := d.store.DeletePreset(c.Param("name")); err != nil {
		c.JSON(presetErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleApplyPreset retunes to a stored preset
func (d *Daemon) handleApplyPreset(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errStoreDisabled.Error()})
		return
	}
	preset, err := d.store.GetPreset(c.Param("name"))
	if err != nil {
		c.JSON(presetErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	if err := d.engine.SetFrequency(preset.FrequencyKHz); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":          preset.Name,
		"frequency_khz": preset.FrequencyKHz,
	})
}

func presetErrorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, rxdata.ErrFrequencyOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
