package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pbezant/LoRaManager/pkg/radio"
)

// reliableDataRate is the conservative uplink data rate selected right
// after a join so the first exchanges survive marginal links.
const reliableDataRate = 1

// confirmPort carries the 1-byte uplink that settles a fresh session.
const confirmPort = 1

// subBandCount is the number of channel groups in a multi-subband plan.
const subBandCount = 8

// JoinCoordinator drives the OTAA join sequence with bounded retries,
// exponential backoff and sub-band rotation.
type JoinCoordinator struct {
	link   radio.Link
	clock  Clock
	policy RetryPolicy
}

// NewJoinCoordinator wires a coordinator to its radio link. A zero policy
// falls back to DefaultJoinPolicy.
func NewJoinCoordinator(link radio.Link, clock Clock, policy RetryPolicy) *JoinCoordinator {
	if clock == nil {
		clock = SystemClock
	}
	return &JoinCoordinator{link: link, clock: clock, policy: policy}
}

// Join activates the session over the air. It makes up to
// policy.MaxAttempts attempts, rotating through channel groups after the
// first, and backs off exponentially between failures. On success the
// session is marked joined, a conservative data rate is selected, the
// downlink frame counter is reset and a 1-byte confirmation uplink is
// sent; failure of that confirmation does not undo the join.
func (j *JoinCoordinator) Join(ctx context.Context, st *State) error {
	if j.link == nil {
		return ErrNotInitialized
	}

	policy := j.policy.withDefaults(DefaultJoinPolicy())
	lastCode := radio.CodeNetworkNotJoined

	for attempt := uint(1); attempt <= policy.MaxAttempts; attempt++ {
		sb := st.SubBand
		if attempt > 1 {
			// Fallback rotation through all groups when the default is
			// obstructed. The formula may re-select a group already
			// tried; distinctness per attempt is not guaranteed.
			sb = 1 + uint8(attempt%subBandCount)
		}
		j.configureSubBand(st, sb)

		log.Debug().
			Str("session_id", st.ID.String()).
			Str("devEUI", st.DevEUI.String()).
			Uint("attempt", attempt).
			Uint("max_attempts", policy.MaxAttempts).
			Uint8("sub_band", sb).
			Msg("attempting over-the-air activation")

		code := j.link.ActivateOTAA(st.JoinEUI, st.DevEUI, st.NwkKey, st.AppKey)
		st.LastErrorCode = code
		lastCode = code

		if Classify(code) == CategorySuccess {
			st.Joined = true
			j.link.SetDataRate(reliableDataRate)
			j.link.ResetFCntDown()
			j.confirmSession(st)

			log.Info().
				Str("session_id", st.ID.String()).
				Str("devEUI", st.DevEUI.String()).
				Uint("attempt", attempt).
				Bool("new_session", code == radio.CodeNewSession).
				Msg("joined network")
			return nil
		}

		log.Warn().
			Str("session_id", st.ID.String()).
			Int("code", code).
			Str("category", Classify(code).String()).
			Uint("attempt", attempt).
			Msg("join attempt failed")

		if err := j.clock.Sleep(ctx, policy.backoff(attempt)); err != nil {
			st.Joined = false
			return fmt.Errorf("join interrupted: %w", err)
		}
	}

	st.Joined = false
	st.LastErrorCode = lastCode
	return fmt.Errorf("%w: last radio code %d", ErrMaxAttemptsExceeded, lastCode)
}

// configureSubBand programs the channel mask for the candidate group.
// A no-op outside multi-subband regions or when no group is selected.
func (j *JoinCoordinator) configureSubBand(st *State, sb uint8) {
	if !st.MultiSubBand || sb < 1 || sb > subBandCount {
		return
	}
	if code := j.link.ConfigureChannelMask(sb); code != radio.CodeNone {
		log.Warn().
			Str("session_id", st.ID.String()).
			Uint8("sub_band", sb).
			Int("code", code).
			Msg("channel mask rejected, continuing with current configuration")
		return
	}
	st.ActiveSubBand = sb
}

// confirmSession sends the 1-byte uplink that fully settles the fresh
// session. The join handshake already succeeded, so a failure here is
// logged but does not fail the join.
func (j *JoinCoordinator) confirmSession(st *State) {
	code, _ := j.link.SendReceive([]byte{0x01}, confirmPort, false)
	switch Classify(code) {
	case CategorySuccess, CategoryDownlink:
		log.Debug().
			Str("session_id", st.ID.String()).
			Msg("session confirmation uplink sent")
	default:
		log.Warn().
			Str("session_id", st.ID.String()).
			Int("code", code).
			Msg("session started but confirmation uplink failed")
	}
}
