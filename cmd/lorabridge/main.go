package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pbezant/LoRaManager/internal/config"
	"github.com/pbezant/LoRaManager/internal/integration"
	"github.com/pbezant/LoRaManager/internal/simulator"
	"github.com/pbezant/LoRaManager/pkg/lorawan"
	"github.com/pbezant/LoRaManager/pkg/session"
)

// eventTickInterval drives HandleEvents between uplinks.
const eventTickInterval = time.Second

func main() {
	var configPath = flag.String("config", "config/lorabridge.yml", "path to the configuration file")
	var validateOnly = flag.Bool("validate", false, "validate the configuration and exit")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if *validateOnly {
		fmt.Println("configuration OK")
		return
	}

	log.Info().
		Str("config_path", *configPath).
		Str("class", cfg.Device.Class).
		Msg("lorabridge starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("lorabridge failed")
	}

	log.Info().Msg("lorabridge stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	seed := cfg.Simulator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	link := simulator.New(simulator.Options{
		JoinFailures:  cfg.Simulator.JoinFailures,
		DropRate:      cfg.Simulator.DropRate,
		DownlinkEvery: cfg.Simulator.DownlinkEvery,
		BaseRSSI:      cfg.Simulator.BaseRSSI,
		BaseSNR:       cfg.Simulator.BaseSNR,
		Seed:          seed,
	})

	mgr := session.NewManager(link, session.Config{
		SubBand:      cfg.Device.SubBand,
		MultiSubBand: cfg.Device.MultiSubBand,
		JoinPolicy: session.RetryPolicy{
			MaxAttempts:       cfg.Retry.JoinMaxAttempts,
			InitialBackoff:    cfg.Retry.JoinInitialBackoff,
			BackoffMultiplier: cfg.Retry.JoinBackoffMultiplier,
			MaxBackoff:        cfg.Retry.JoinMaxBackoff,
		},
		SendPolicy:          session.RetryPolicy{MaxAttempts: cfg.Retry.SendMaxAttempts},
		BeaconLossTolerance: cfg.ClassB.BeaconLossTolerance,
	})

	if cfg.Device.JoinEUI != "" && cfg.Device.DevEUI != "" {
		joinEUI, _ := lorawan.ParseEUI64(cfg.Device.JoinEUI)
		devEUI, _ := lorawan.ParseEUI64(cfg.Device.DevEUI)
		if err := mgr.SetCredentialsHex(joinEUI.Uint64(), devEUI.Uint64(), cfg.Device.AppKey, cfg.Device.NwkKey); err != nil {
			return fmt.Errorf("set credentials: %w", err)
		}
	}

	fwd, err := integration.Connect(integration.Options{
		NATSURL:           cfg.NATS.URL,
		Name:              cfg.NATS.Name,
		MaxReconnects:     cfg.NATS.MaxReconnects,
		ReconnectInterval: cfg.NATS.ReconnectInterval,
		SubjectPrefix:     cfg.NATS.SubjectPrefix,
		MQTT: integration.MQTTOptions{
			Enabled:       cfg.MQTT.Enabled,
			Broker:        cfg.MQTT.Broker,
			ClientID:      cfg.MQTT.ClientID,
			Username:      cfg.MQTT.Username,
			Password:      cfg.MQTT.Password,
			TopicTemplate: cfg.MQTT.TopicTemplate,
			QoS:           cfg.MQTT.QoS,
		},
	})
	if err != nil {
		return err
	}
	defer fwd.Close()

	devEUI := mgr.DevEUI().String()
	mgr.SetDownlinkCallback(func(payload []byte, port uint8) {
		ev := integration.DownlinkEvent{
			SessionID: mgr.ID(),
			DevEUI:    devEUI,
			FPort:     port,
			Data:      payload,
			RSSI:      mgr.LastRSSI(),
			SNR:       mgr.LastSNR(),
			Timestamp: time.Now().UTC(),
		}
		if err := fwd.PublishDownlink(ev); err != nil {
			log.Error().Err(err).Msg("failed to forward downlink event")
		}
	})
	mgr.SetBeaconCallback(func(_ []byte, rssi, snr float64) {
		log.Info().Float64("rssi", rssi).Float64("snr", snr).Msg("beacon received")
	})

	if err := mgr.Join(ctx); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if err := fwd.PublishJoin(integration.JoinEvent{
		SessionID: mgr.ID(),
		DevEUI:    devEUI,
		SubBand:   mgr.ActiveSubBand(),
		Timestamp: time.Now().UTC(),
	}); err != nil {
		log.Error().Err(err).Msg("failed to forward join event")
	}

	if target := cfg.Device.DeviceClass(); target != lorawan.ClassA {
		if err := mgr.SetDeviceClass(ctx, target); err != nil {
			return fmt.Errorf("set device class %s: %w", target, err)
		}
	}
	if cfg.Device.PingSlotPeriodicity > 0 {
		if err := mgr.SetPingSlotPeriodicity(cfg.Device.PingSlotPeriodicity); err != nil {
			return err
		}
	}

	uplinks := time.NewTicker(cfg.Uplink.Interval)
	defer uplinks.Stop()
	events := time.NewTicker(eventTickInterval)
	defer events.Stop()

	var counter uint16
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-events.C:
			mgr.HandleEvents()

		case <-uplinks.C:
			counter++
			payload := make([]byte, 3)
			payload[0] = 0x01
			binary.BigEndian.PutUint16(payload[1:], counter)

			down, err := mgr.Send(ctx, payload, cfg.Uplink.Port, cfg.Uplink.Confirmed)
			if err != nil {
				log.Error().
					Err(err).
					Int("last_code", mgr.LastErrorCode()).
					Msg("uplink failed")
				continue
			}

			ev := integration.UplinkEvent{
				SessionID: mgr.ID(),
				DevEUI:    devEUI,
				FPort:     cfg.Uplink.Port,
				Confirmed: cfg.Uplink.Confirmed,
				Data:      payload,
				RSSI:      mgr.LastRSSI(),
				SNR:       mgr.LastSNR(),
				Timestamp: time.Now().UTC(),
			}
			if err := fwd.PublishUplink(ev); err != nil {
				log.Error().Err(err).Msg("failed to forward uplink event")
			}
			if down != nil {
				log.Info().
					Uint8("port", down.Port).
					Int("len", len(down.Payload)).
					Msg("downlink received")
			}
		}
	}
}
