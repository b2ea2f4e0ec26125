// Package integration forwards session lifecycle events to external
// systems: every event is published on NATS, with an optional MQTT
// mirror for brokers that cannot consume NATS subjects.
package integration

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 5 * time.Second

// Event kinds used in subjects and topics.
const (
	EventJoin = "join"
	EventTx   = "tx"
	EventRx   = "rx"
)

// Options configures the forwarder connections.
type Options struct {
	NATSURL           string
	Name              string
	MaxReconnects     int
	ReconnectInterval time.Duration
	SubjectPrefix     string

	MQTT MQTTOptions
}

// MQTTOptions configures the optional MQTT mirror.
type MQTTOptions struct {
	Enabled       bool
	Broker        string
	ClientID      string
	Username      string
	Password      string
	TopicTemplate string
	QoS           byte
}

// JoinEvent reports a completed network join.
type JoinEvent struct {
	SessionID uuid.UUID `json:"sessionID"`
	DevEUI    string    `json:"devEUI"`
	SubBand   uint8     `json:"subBand,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UplinkEvent reports a transmitted application uplink.
type UplinkEvent struct {
	SessionID uuid.UUID `json:"sessionID"`
	DevEUI    string    `json:"devEUI"`
	FPort     uint8     `json:"fPort"`
	Confirmed bool      `json:"confirmed"`
	Data      []byte    `json:"data"`
	RSSI      float64   `json:"rssi"`
	SNR       float64   `json:"snr"`
	Timestamp time.Time `json:"timestamp"`
}

// DownlinkEvent reports a downlink received in a receive window.
type DownlinkEvent struct {
	SessionID uuid.UUID `json:"sessionID"`
	DevEUI    string    `json:"devEUI"`
	FPort     uint8     `json:"fPort"`
	Data      []byte    `json:"data"`
	RSSI      float64   `json:"rssi"`
	SNR       float64   `json:"snr"`
	Timestamp time.Time `json:"timestamp"`
}

// Forwarder publishes session events.
type Forwarder struct {
	opts Options
	nc   *nats.Conn
	mc   mqtt.Client
}

// Connect dials NATS and, when enabled, the MQTT broker.
func Connect(opts Options) (*Forwarder, error) {
	nc, err := nats.Connect(opts.NATSURL,
		nats.Name(opts.Name),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	f := &Forwarder{opts: opts, nc: nc}

	if opts.MQTT.Enabled {
		mc, err := connectMQTT(opts.MQTT)
		if err != nil {
			nc.Close()
			return nil, err
		}
		f.mc = mc
	}

	log.Info().
		Str("nats", opts.NATSURL).
		Bool("mqtt", opts.MQTT.Enabled).
		Msg("event forwarder connected")
	return f, nil
}

func connectMQTT(opts MQTTOptions) (mqtt.Client, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectTimeout(10 * time.Second)
	co.SetKeepAlive(30 * time.Second)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Error().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", opts.Broker, token.Error())
	}
	return client, nil
}

// Close flushes and tears down the connections.
func (f *Forwarder) Close() {
	if f.mc != nil && f.mc.IsConnected() {
		f.mc.Disconnect(250)
	}
	if f.nc != nil {
		f.nc.Flush()
		f.nc.Close()
	}
}

// PublishJoin forwards a join event.
func (f *Forwarder) PublishJoin(ev JoinEvent) error {
	return f.publish(ev.DevEUI, EventJoin, ev)
}

// PublishUplink forwards an uplink event.
func (f *Forwarder) PublishUplink(ev UplinkEvent) error {
	return f.publish(ev.DevEUI, EventTx, ev)
}

// PublishDownlink forwards a downlink event.
func (f *Forwarder) PublishDownlink(ev DownlinkEvent) error {
	return f.publish(ev.DevEUI, EventRx, ev)
}

func (f *Forwarder) publish(devEUI, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	subj := Subject(f.opts.SubjectPrefix, devEUI, event)
	if err := f.nc.Publish(subj, data); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}

	if f.mc != nil {
		topic := Topic(f.opts.MQTT.TopicTemplate, devEUI, event)
		token := f.mc.Publish(topic, f.opts.MQTT.QoS, false, data)
		if !token.WaitTimeout(publishTimeout) {
			log.Error().Str("topic", topic).Msg("MQTT publish timeout")
		} else if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("MQTT publish failed")
		}
	}

	log.Debug().
		Str("subject", subj).
		Str("event", event).
		Msg("event forwarded")
	return nil
}

// Subject builds the NATS subject for a device event, e.g.
// "device.70b3d57ed0001234.rx".
func Subject(prefix, devEUI, event string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, devEUI, event)
}

// Topic expands an MQTT topic template with {dev_eui} and {event}
// placeholders.
func Topic(template, devEUI, event string) string {
	topic := strings.ReplaceAll(template, "{dev_eui}", devEUI)
	return strings.ReplaceAll(topic, "{event}", event)
}
