// Package simulator provides a radio.Link backed by a pseudo-random
// channel model instead of hardware, so the bridge daemon can run end to
// end on a development machine.
package simulator

import (
	"math/rand"

	"github.com/rs/zerolog/log"

	"github.com/pbezant/LoRaManager/pkg/lorawan"
	"github.com/pbezant/LoRaManager/pkg/radio"
)

// Options shapes the simulated channel.
type Options struct {
	// JoinFailures is how many join attempts time out before one succeeds.
	JoinFailures uint

	// DropRate is the probability in [0, 1) that an uplink times out.
	DropRate float64

	// DownlinkEvery delivers a downlink on every Nth successful uplink
	// (0 disables downlinks).
	DownlinkEvery uint

	// BaseRSSI and BaseSNR center the reported signal measurements; each
	// reading wanders a few dB around them.
	BaseRSSI float64
	BaseSNR  float64

	// Seed makes a run reproducible; 0 leaves the source unseeded work
	// to the caller, which should pass a clock-derived value.
	Seed int64
}

// Link is a deterministic-enough stand-in for a LoRaWAN radio driver.
type Link struct {
	opts Options
	rng  *rand.Rand

	activated   bool
	joinsFailed uint
	uplinks     uint
	dataRate    uint8
	subBand     uint8
	fcntDown    uint32

	rssi float64
	snr  float64
}

// New builds a simulated link.
func New(opts Options) *Link {
	if opts.BaseRSSI == 0 {
		opts.BaseRSSI = -95
	}
	if opts.BaseSNR == 0 {
		opts.BaseSNR = 7.5
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	return &Link{
		opts: opts,
		rng:  rand.New(rand.NewSource(seed)),
		rssi: opts.BaseRSSI,
		snr:  opts.BaseSNR,
	}
}

// ActivateOTAA simulates the join handshake: the first JoinFailures
// attempts time out, then joins succeed and reset the session.
func (l *Link) ActivateOTAA(joinEUI, devEUI lorawan.EUI64, nwkKey, appKey lorawan.AES128Key) int {
	if l.joinsFailed < l.opts.JoinFailures {
		l.joinsFailed++
		log.Debug().
			Str("dev_eui", devEUI.String()).
			Uint("failed", l.joinsFailed).
			Msg("simulated join timeout")
		return radio.CodeTxTimeout
	}

	l.activated = true
	l.uplinks = 0
	l.wander()
	log.Debug().
		Str("dev_eui", devEUI.String()).
		Str("join_eui", joinEUI.String()).
		Msg("simulated join accept")
	return radio.CodeNewSession
}

// SendReceive simulates an uplink: a DropRate fraction of uplinks time
// out, and every DownlinkEvery-th delivery is answered in RX1.
func (l *Link) SendReceive(payload []byte, port uint8, confirmed bool) (int, *radio.DownlinkFrame) {
	if !l.activated {
		return radio.CodeNetworkNotJoined, nil
	}
	if l.opts.DropRate > 0 && l.rng.Float64() < l.opts.DropRate {
		log.Debug().Int("len", len(payload)).Msg("simulated uplink dropped")
		return radio.CodeTxTimeout, nil
	}

	l.uplinks++
	l.wander()

	if l.opts.DownlinkEvery > 0 && l.uplinks%l.opts.DownlinkEvery == 0 {
		l.fcntDown++
		frame := &radio.DownlinkFrame{
			Port:    port,
			Payload: []byte{0xD0, byte(l.fcntDown)},
			RSSI:    l.rssi,
			SNR:     l.snr,
		}
		return radio.CodeDownlinkRX1, frame
	}
	return radio.CodeNone, nil
}

// ConfigureChannelMask records the channel group.
func (l *Link) ConfigureChannelMask(subBand uint8) int {
	if subBand < 1 || subBand > 8 {
		return radio.CodeInvalidInput
	}
	l.subBand = subBand
	return radio.CodeNone
}

// SetDataRate records the uplink data rate.
func (l *Link) SetDataRate(dr uint8) int {
	l.dataRate = dr
	return radio.CodeNone
}

// ResetFCntDown clears the downlink frame counter.
func (l *Link) ResetFCntDown() { l.fcntDown = 0 }

// LastRSSI returns the most recent simulated measurement.
func (l *Link) LastRSSI() float64 { return l.rssi }

// LastSNR returns the most recent simulated measurement.
func (l *Link) LastSNR() float64 { return l.snr }

// IsActivated reports whether a simulated session is active.
func (l *Link) IsActivated() bool { return l.activated }

// Drop forces the session inactive, as if the network discarded the
// device state. The next uplink reports CodeNetworkNotJoined.
func (l *Link) Drop() { l.activated = false }

// wander moves the signal readings a few dB around their base values.
func (l *Link) wander() {
	l.rssi = l.opts.BaseRSSI + (l.rng.Float64()-0.5)*6
	l.snr = l.opts.BaseSNR + (l.rng.Float64()-0.5)*3
}
