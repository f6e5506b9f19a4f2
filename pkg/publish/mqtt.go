// Package publish forwards power updates to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dougsko/sdrgain/pkg/config"
	"github.com/dougsko/sdrgain/pkg/logging"
	"github.com/dougsko/sdrgain/pkg/rxdata"
)

const (
	clientIDPrefix = "sdrgain-"
	publishTimeout = 2 * time.Second
	quiesceMillis  = 250
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Client is the part of mqtt.Client the publisher uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Reading is the JSON payload sent for every power update
type Reading struct {
	DBFS         float64 `json:"dbfs"`
	FrequencyKHz uint32  `json:"frequency_khz"`
}

// ClientID returns the configured client id, or a random one
func ClientID(configured string) string {
	if configured != "" {
		return configured
	}
	return clientIDPrefix + uuid.NewString()
}

// Dial connects to the broker named in cfg.MQTT
func Dial(cfg *config.Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Server).
		SetClientID(ClientID(cfg.MQTT.ClientID)).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logging.Warnf("mqtt", "Connection lost: %v", err)
		})
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	logging.Infof("mqtt", "Connected to %s", cfg.MQTT.Server)
	return client, nil
}

// Tuner reports the frequency the measuring session is actually tuned to.
// It differs from the requested frequency while a retune is pending.
type Tuner interface {
	SessionFrequency() (khz uint32, ok bool)
}

// Publisher republishes every power update of a State on one topic
type Publisher struct {
	client Client
	topic  string
	state  *rxdata.State
	tuner  Tuner
}

func NewPublisher(client Client, topic string, state *rxdata.State, tuner Tuner) *Publisher {
	return &Publisher{client: client, topic: topic, state: state, tuner: tuner}
}

// Publish sends one reading
func (p *Publisher) Publish(r Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Run publishes updates until ctx ends, labelled with the session
// frequency. Updates arriving while no session is open are dropped. A
// failed publish is logged and the next update is tried.
func (p *Publisher) Run(ctx context.Context) {
	sub := p.state.Subscribe()
	defer sub.Close()

	for {
		dbfs, err := sub.Next(ctx)
		if err != nil {
			return
		}
		khz, ok := p.tuner.SessionFrequency()
		if !ok {
			logging.Debug("mqtt", "No open session, dropping update")
			continue
		}
		r := Reading{
			DBFS:         math.Round(dbfs*100) / 100,
			FrequencyKHz: khz,
		}
		if err := p.Publish(r); err != nil {
			logging.Warnf("mqtt", "Publish to %s failed: %v", p.topic, err)
		}
	}
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect(quiesceMillis)
}
