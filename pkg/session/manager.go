// Package session implements the LoRaWAN end-device session lifecycle on
// top of an abstract radio link: network join with retry and backoff,
// confirmed/unconfirmed uplink transmission with error-classified retry,
// and Class A/B/C operation with beacon tracking and ping-slot scheduling.
//
// The core is single-threaded and cooperative: every operation runs to
// completion on the caller's goroutine, every retry loop has a hard
// attempt cap and every wait a maximum duration. Hosts must serialize all
// calls into one Manager; nothing here takes locks.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pbezant/LoRaManager/pkg/lorawan"
	"github.com/pbezant/LoRaManager/pkg/radio"
)

// Config tunes a Manager. The zero value is usable: single-subband
// region, default retry policies, wall clock, all classes supported.
type Config struct {
	// SubBand is the default channel group for multi-subband regions
	// (1..8, 0 = none).
	SubBand uint8
	// MultiSubBand marks 64+8 style regional plans where channel mask
	// rotation applies.
	MultiSubBand bool

	// JoinPolicy and SendPolicy override the retry defaults. SendPolicy
	// applies to confirmed sends; unconfirmed sends are single-attempt.
	JoinPolicy RetryPolicy
	SendPolicy RetryPolicy

	// Clock supplies time and blocking waits; defaults to SystemClock.
	Clock Clock

	// BeaconLossTolerance is the number of beacon periods without a
	// beacon before a locked tracker is declared lost (default 3).
	BeaconLossTolerance uint

	// SupportedClasses restricts SetDeviceClass (default A, B and C).
	SupportedClasses []lorawan.DeviceClass
}

// Manager ties the session record, the coordinators and the class
// controller together behind the host-facing API.
type Manager struct {
	link  radio.Link
	state *State
	join  *JoinCoordinator
	tx    *TransmitCoordinator
	class *ClassController
}

// NewManager builds a session manager on the given radio link. Each
// manager owns an independent session, so one process can drive several
// radios side by side.
func NewManager(link radio.Link, cfg Config) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}

	st := NewState()
	st.SubBand = cfg.SubBand
	st.ActiveSubBand = cfg.SubBand
	st.MultiSubBand = cfg.MultiSubBand

	join := NewJoinCoordinator(link, clock, cfg.JoinPolicy)
	tx := NewTransmitCoordinator(link, clock, join, cfg.SendPolicy)
	class := NewClassController(clock, tx)
	if cfg.BeaconLossTolerance > 0 {
		class.SetBeaconLossTolerance(cfg.BeaconLossTolerance)
	}
	if len(cfg.SupportedClasses) > 0 {
		class.SetSupportedClasses(cfg.SupportedClasses)
	}

	return &Manager{link: link, state: st, join: join, tx: tx, class: class}
}

// SetCredentials stores raw-byte credentials.
func (m *Manager) SetCredentials(joinEUI, devEUI uint64, appKey, nwkKey lorawan.AES128Key) {
	m.state.SetCredentials(joinEUI, devEUI, appKey, nwkKey)
}

// SetCredentialsHex stores credentials with keys given as 32-character
// hex strings; both must decode byte-exact.
func (m *Manager) SetCredentialsHex(joinEUI, devEUI uint64, appKeyHex, nwkKeyHex string) error {
	return m.state.SetCredentialsHex(joinEUI, devEUI, appKeyHex, nwkKeyHex)
}

// SetDownlinkCallback registers the application downlink handler.
func (m *Manager) SetDownlinkCallback(cb DownlinkCallback) {
	m.tx.SetDownlinkCallback(cb)
}

// SetBeaconCallback registers the Class B beacon handler.
func (m *Manager) SetBeaconCallback(cb BeaconCallback) {
	m.class.SetBeaconCallback(cb)
}

// Join establishes the session over the air.
func (m *Manager) Join(ctx context.Context) error {
	return m.join.Join(ctx, m.state)
}

// Send transmits an application uplink, joining first if the session was
// lost. The returned frame is non-nil when the network answered in a
// receive window.
func (m *Manager) Send(ctx context.Context, payload []byte, port uint8, confirmed bool) (*radio.DownlinkFrame, error) {
	return m.tx.Send(ctx, m.state, payload, port, confirmed)
}

// SetDeviceClass transitions the device to the target operating class.
func (m *Manager) SetDeviceClass(ctx context.Context, target lorawan.DeviceClass) error {
	return m.class.SetDeviceClass(ctx, m.state, target)
}

// SetPingSlotPeriodicity updates the Class B ping slot periodicity (0..7).
func (m *Manager) SetPingSlotPeriodicity(p uint8) error {
	return m.class.SetPingSlotPeriodicity(p)
}

// OnBeaconReceived feeds a beacon frame into the Class B tracker.
func (m *Manager) OnBeaconReceived(payload []byte, rssi, snr float64) {
	m.class.OnBeaconReceived(m.state, payload, rssi, snr)
}

// HandleEvents is the host-loop tick: it polls the link for passive join
// status and advances beacon-loss and ping-slot tracking.
func (m *Manager) HandleEvents() {
	if m.link == nil {
		return
	}
	if !m.state.Joined && m.link.IsActivated() {
		m.state.Joined = true
	}
	m.class.Tick(m.state)
}

// ID returns the session identifier used in logs and forwarded events.
func (m *Manager) ID() uuid.UUID { return m.state.ID }

// IsJoined reports whether the session is established.
func (m *Manager) IsJoined() bool { return m.state.Joined }

// DevEUI returns the configured device EUI.
func (m *Manager) DevEUI() lorawan.EUI64 { return m.state.DevEUI }

// LastRSSI returns the most recent signal strength measurement.
func (m *Manager) LastRSSI() float64 { return m.state.LastRSSI }

// LastSNR returns the most recent signal-to-noise measurement.
func (m *Manager) LastSNR() float64 { return m.state.LastSNR }

// LastErrorCode returns the last raw radio outcome code, preserved for
// diagnostics.
func (m *Manager) LastErrorCode() int { return m.state.LastErrorCode }

// ActiveSubBand returns the channel group currently programmed on the
// link (0 = none).
func (m *Manager) ActiveSubBand() uint8 { return m.state.ActiveSubBand }

// DeviceClass returns the current operating class.
func (m *Manager) DeviceClass() lorawan.DeviceClass { return m.class.DeviceClass() }

// BeaconState returns the Class B beacon tracking state.
func (m *Manager) BeaconState() lorawan.BeaconState { return m.class.BeaconState() }

// ContinuousReceptionActive reports whether Class C reception is running.
func (m *Manager) ContinuousReceptionActive() bool { return m.class.ContinuousReceptionActive() }

// PingSlotPeriodicity returns the configured Class B periodicity.
func (m *Manager) PingSlotPeriodicity() uint8 { return m.class.PingSlotPeriodicity() }

// NextPingSlot returns the scheduled Class B ping slot time.
func (m *Manager) NextPingSlot() time.Time { return m.class.NextPingSlot() }

// RX1Delay returns the delay between uplink end and the RX1 window.
func (m *Manager) RX1Delay() time.Duration { return radio.RX1DelaySeconds * time.Second }

// RX1Timeout returns the RX1 window timeout.
func (m *Manager) RX1Timeout() time.Duration { return radio.RX1TimeoutMs * time.Millisecond }

// RX2Timeout returns the RX2 window timeout.
func (m *Manager) RX2Timeout() time.Duration { return radio.RX2TimeoutMs * time.Millisecond }
