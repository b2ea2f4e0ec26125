// Package radio defines the capability surface the session core consumes.
// The physical driver and MAC/crypto layer live behind the Link interface;
// the core never touches hardware itself.
package radio

import "github.com/pbezant/LoRaManager/pkg/lorawan"

// Outcome codes returned by Link operations. Negative values are errors,
// zero and positive values are success variants. The numbering follows the
// driver the production firmware links against so codes can be logged and
// compared across layers.
const (
	CodeNone               = 0 // operation completed, nothing received
	CodeDownlinkRX1        = 1 // downlink arrived in the RX1 window
	CodeDownlinkRX2        = 2 // downlink arrived in the RX2 window
	CodeNewSession         = 3 // join accept established a fresh session
	CodeInvalidState       = -1
	CodeInvalidInput       = -3
	CodeTxTimeout          = -5
	CodeRxTimeout          = -6
	CodeNetworkNotJoined   = -1101
	CodeJoinRejected       = -1102
	CodeNoChannelAvailable = -1106
)

// Class A receive-window timing. RX1Delay is network-configurable at join
// time; these are the defaults the core reports to hosts.
const (
	RX1DelaySeconds = 5
	RX1TimeoutMs    = 50
	RX2TimeoutMs    = 190
)

// DownlinkFrame is a received downlink with its radio-level measurements.
type DownlinkFrame struct {
	Port    uint8
	Payload []byte
	RSSI    float64
	SNR     float64
}

// Link is the radio/MAC collaborator the session core drives. Implementations
// are synchronous and exclusively owned by the core for the duration of a
// call; every method returns an outcome code from the set above.
type Link interface {
	// ActivateOTAA performs the over-the-air join handshake.
	ActivateOTAA(joinEUI, devEUI lorawan.EUI64, nwkKey, appKey lorawan.AES128Key) int

	// SendReceive transmits an uplink and listens through the receive
	// windows. The frame is non-nil only when a downlink arrived.
	SendReceive(payload []byte, port uint8, confirmed bool) (int, *DownlinkFrame)

	// ConfigureChannelMask enables the channel group subBand (1..8).
	// Only meaningful for multi-subband regional plans.
	ConfigureChannelMask(subBand uint8) int

	// SetDataRate selects the uplink data rate.
	SetDataRate(dr uint8) int

	// ResetFCntDown clears the downlink frame counter for a fresh session.
	ResetFCntDown()

	// LastRSSI and LastSNR report the most recent radio-level measurement.
	LastRSSI() float64
	LastSNR() float64

	// IsActivated reports whether the MAC layer holds an active session.
	// Used for passive join-status polling between operations.
	IsActivated() bool
}
