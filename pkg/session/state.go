package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pbezant/LoRaManager/pkg/lorawan"
)

// State is the mutable session record shared by the coordinators. It is
// owned by a single Manager and mutated only by the join and transmit
// coordinators; hosts must serialize all access.
type State struct {
	// ID identifies this session in logs and forwarded events. Sessions
	// are plain values, so one process can run several independently.
	ID uuid.UUID

	// Credentials
	JoinEUI lorawan.EUI64
	DevEUI  lorawan.EUI64
	AppKey  lorawan.AES128Key
	NwkKey  lorawan.AES128Key

	// Session status
	Joined              bool
	LastRSSI            float64
	LastSNR             float64
	ConsecutiveTxErrors uint
	LastErrorCode       int

	// SubBand is the configured default channel group (1..8, 0 = none).
	// ActiveSubBand is the group currently programmed on the link.
	// MultiSubBand marks regional plans with several channel groups
	// (64+8 style); mask rotation only applies there.
	SubBand       uint8
	ActiveSubBand uint8
	MultiSubBand  bool
}

// NewState returns a fresh, unjoined session record.
func NewState() *State {
	return &State{ID: uuid.New()}
}

// SetCredentials stores raw-byte credentials. EUIs are accepted in their
// big-endian integer form.
func (s *State) SetCredentials(joinEUI, devEUI uint64, appKey, nwkKey lorawan.AES128Key) {
	s.JoinEUI = lorawan.EUI64FromUint64(joinEUI)
	s.DevEUI = lorawan.EUI64FromUint64(devEUI)
	s.AppKey = appKey
	s.NwkKey = nwkKey
}

// SetCredentialsHex stores credentials with the keys given as 32-character
// hex strings. Both keys must decode byte-exact; on error the stored
// credentials are left unchanged.
func (s *State) SetCredentialsHex(joinEUI, devEUI uint64, appKeyHex, nwkKeyHex string) error {
	appKey, err := lorawan.ParseAES128Key(appKeyHex)
	if err != nil {
		return fmt.Errorf("%w: app key: %v", ErrInvalidInput, err)
	}
	nwkKey, err := lorawan.ParseAES128Key(nwkKeyHex)
	if err != nil {
		return fmt.Errorf("%w: nwk key: %v", ErrInvalidInput, err)
	}
	s.SetCredentials(joinEUI, devEUI, appKey, nwkKey)
	return nil
}

// consecutiveErrorLimit is the escalation threshold: once this many sends
// fail back to back the session is marked not-joined so the next send
// rejoins. The current send is not aborted early.
const consecutiveErrorLimit = 3

// recordTxError tracks a failed transmission attempt and applies the
// escalation policy.
func (s *State) recordTxError(code int) {
	s.LastErrorCode = code
	s.ConsecutiveTxErrors++
	if s.ConsecutiveTxErrors >= consecutiveErrorLimit {
		s.Joined = false
	}
}

// recordTxSuccess clears the error streak after a successful send.
func (s *State) recordTxSuccess() {
	s.ConsecutiveTxErrors = 0
}
