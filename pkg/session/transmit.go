package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pbezant/LoRaManager/pkg/radio"
)

// txRetryDelay is the fixed wait between transmission attempts.
const txRetryDelay = 3 * time.Second

// DownlinkCallback receives application downlinks as they arrive.
type DownlinkCallback func(payload []byte, port uint8)

// TransmitCoordinator drives uplink transmission with bounded retries and
// error-driven recovery: rejoin on session loss, sub-band rotation on
// channel exhaustion, fixed delay on transient errors.
type TransmitCoordinator struct {
	link       radio.Link
	clock      Clock
	join       *JoinCoordinator
	policy     RetryPolicy
	onDownlink DownlinkCallback
}

// NewTransmitCoordinator wires a coordinator to its link and the join
// coordinator used for inline recovery. A zero policy falls back to
// DefaultSendPolicy per send.
func NewTransmitCoordinator(link radio.Link, clock Clock, join *JoinCoordinator, policy RetryPolicy) *TransmitCoordinator {
	if clock == nil {
		clock = SystemClock
	}
	return &TransmitCoordinator{link: link, clock: clock, join: join, policy: policy}
}

// SetDownlinkCallback registers the handler invoked when a send produces a
// downlink frame.
func (t *TransmitCoordinator) SetDownlinkCallback(cb DownlinkCallback) {
	t.onDownlink = cb
}

// Send transmits payload on the given port. It returns the downlink frame
// when the network answered in a receive window, nil on a plain success.
// If the session is not joined, a join is attempted first; its failure
// aborts the send without transmitting.
func (t *TransmitCoordinator) Send(ctx context.Context, st *State, payload []byte, port uint8, confirmed bool) (*radio.DownlinkFrame, error) {
	if t.link == nil {
		return nil, ErrNotInitialized
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}

	if !st.Joined {
		log.Info().
			Str("session_id", st.ID.String()).
			Msg("not joined, attempting to rejoin before send")
		if err := t.join.Join(ctx, st); err != nil {
			return nil, fmt.Errorf("rejoin failed (%v): %w", err, ErrNotJoined)
		}
	}

	policy := t.policy.withDefaults(DefaultSendPolicy(confirmed))
	lastCode := radio.CodeTxTimeout

	for attempt := uint(1); attempt <= policy.MaxAttempts; attempt++ {
		log.Debug().
			Str("session_id", st.ID.String()).
			Uint("attempt", attempt).
			Uint("max_attempts", policy.MaxAttempts).
			Int("bytes", len(payload)).
			Uint8("port", port).
			Bool("confirmed", confirmed).
			Msg("sending uplink")

		code, down := t.link.SendReceive(payload, port, confirmed)
		st.LastErrorCode = code
		lastCode = code

		switch Classify(code) {
		case CategorySuccess:
			st.recordTxSuccess()
			st.LastRSSI = t.link.LastRSSI()
			st.LastSNR = t.link.LastSNR()
			log.Debug().
				Str("session_id", st.ID.String()).
				Float64("rssi", st.LastRSSI).
				Float64("snr", st.LastSNR).
				Msg("uplink sent, no downlink")
			return nil, nil

		case CategoryDownlink:
			st.recordTxSuccess()
			if down != nil {
				st.LastRSSI = down.RSSI
				st.LastSNR = down.SNR
			} else {
				st.LastRSSI = t.link.LastRSSI()
				st.LastSNR = t.link.LastSNR()
			}
			log.Info().
				Str("session_id", st.ID.String()).
				Int("window", code).
				Msg("uplink sent, downlink received")
			if down != nil && t.onDownlink != nil {
				t.onDownlink(down.Payload, down.Port)
			}
			return down, nil

		case CategoryNotJoined:
			st.recordTxError(code)
			st.Joined = false
			log.Warn().
				Str("session_id", st.ID.String()).
				Msg("network reports session lost, rejoining")
			if err := t.join.Join(ctx, st); err != nil {
				return nil, fmt.Errorf("rejoin failed (%v): %w", err, ErrNotJoined)
			}

		case CategoryNoChannel:
			st.recordTxError(code)
			if st.MultiSubBand {
				t.rotateSubBand(st, attempt)
			} else {
				log.Warn().
					Str("session_id", st.ID.String()).
					Msg("no channel available, sub-band rotation not applicable for this region")
			}

		case CategoryTimeout:
			st.recordTxError(code)
			log.Warn().
				Str("session_id", st.ID.String()).
				Uint("attempt", attempt).
				Msg("transmission timeout")

		default:
			st.recordTxError(code)
			log.Warn().
				Str("session_id", st.ID.String()).
				Int("code", code).
				Uint("attempt", attempt).
				Msg("transmission failed")
		}

		if attempt == policy.MaxAttempts {
			break
		}
		if err := t.clock.Sleep(ctx, txRetryDelay); err != nil {
			return nil, fmt.Errorf("send interrupted: %w", err)
		}
	}

	log.Error().
		Str("session_id", st.ID.String()).
		Int("code", lastCode).
		Uint("consecutive_errors", st.ConsecutiveTxErrors).
		Msg("all transmission attempts failed")
	return nil, fmt.Errorf("%w: last radio code %d", ErrAllAttemptsFailed, lastCode)
}

// rotateSubBand switches the link to an alternate channel group when the
// current one is exhausted.
func (t *TransmitCoordinator) rotateSubBand(st *State, attempt uint) {
	alt := 1 + uint8(attempt%subBandCount)
	if code := t.link.ConfigureChannelMask(alt); code != radio.CodeNone {
		log.Warn().
			Str("session_id", st.ID.String()).
			Uint8("sub_band", alt).
			Int("code", code).
			Msg("alternate sub-band rejected")
		return
	}
	st.ActiveSubBand = alt
	log.Info().
		Str("session_id", st.ID.String()).
		Uint8("sub_band", alt).
		Msg("switched sub-band for next attempt")
}
