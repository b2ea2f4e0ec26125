package session

import (
	"context"
	"time"

	"github.com/pbezant/LoRaManager/pkg/lorawan"
	"github.com/pbezant/LoRaManager/pkg/radio"
)

// fakeLink is a scripted radio.Link. Outcome codes are consumed in order;
// when a script runs out the call reports CodeNone.
type fakeLink struct {
	joinCodes []int
	sendCodes []int
	maskCode  int

	// downlinks maps a 1-based SendReceive call number to the frame
	// returned for it.
	downlinks map[int]*radio.DownlinkFrame

	rssi      float64
	snr       float64
	activated bool

	joinCalls     int
	sendCalls     int
	maskCalls     []uint8
	dataRates     []uint8
	fcntResets    int
	sentPayloads  [][]byte
	sentPorts     []uint8
	sentConfirmed []bool
}

func takeCode(codes []int, call int) int {
	if call <= len(codes) {
		return codes[call-1]
	}
	return radio.CodeNone
}

func (f *fakeLink) ActivateOTAA(_, _ lorawan.EUI64, _, _ lorawan.AES128Key) int {
	f.joinCalls++
	return takeCode(f.joinCodes, f.joinCalls)
}

func (f *fakeLink) SendReceive(payload []byte, port uint8, confirmed bool) (int, *radio.DownlinkFrame) {
	f.sendCalls++
	f.sentPayloads = append(f.sentPayloads, append([]byte(nil), payload...))
	f.sentPorts = append(f.sentPorts, port)
	f.sentConfirmed = append(f.sentConfirmed, confirmed)
	return takeCode(f.sendCodes, f.sendCalls), f.downlinks[f.sendCalls]
}

func (f *fakeLink) ConfigureChannelMask(subBand uint8) int {
	f.maskCalls = append(f.maskCalls, subBand)
	return f.maskCode
}

func (f *fakeLink) SetDataRate(dr uint8) int {
	f.dataRates = append(f.dataRates, dr)
	return radio.CodeNone
}

func (f *fakeLink) ResetFCntDown()    { f.fcntResets++ }
func (f *fakeLink) LastRSSI() float64 { return f.rssi }
func (f *fakeLink) LastSNR() float64  { return f.snr }
func (f *fakeLink) IsActivated() bool { return f.activated }

// fakeClock records sleeps and advances a virtual wall clock by the slept
// duration, so backoff sequences can be asserted exactly.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// joinedState returns a session record that is already joined.
func joinedState(multiSubBand bool, subBand uint8) *State {
	st := NewState()
	st.Joined = true
	st.SubBand = subBand
	st.ActiveSubBand = subBand
	st.MultiSubBand = multiSubBand
	return st
}
