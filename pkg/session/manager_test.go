package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pbezant/LoRaManager/pkg/lorawan"
	"github.com/pbezant/LoRaManager/pkg/radio"
)

func TestManager_SetCredentialsHex(t *testing.T) {
	m := NewManager(&fakeLink{}, Config{Clock: newFakeClock()})

	err := m.SetCredentialsHex(
		0x0000000000000001,
		0x70B3D57ED0001234,
		"000102030405060708090A0B0C0D0E0F",
		"101112131415161718191a1b1c1d1e1f",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.DevEUI().String(); got != "70b3d57ed0001234" {
		t.Errorf("dev EUI = %s", got)
	}
}

func TestManager_SetCredentialsHexRejectsBadKey(t *testing.T) {
	m := NewManager(&fakeLink{}, Config{Clock: newFakeClock()})

	err := m.SetCredentialsHex(1, 2, "too-short", "101112131415161718191a1b1c1d1e1f")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if m.DevEUI() != (lorawan.EUI64{}) {
		t.Error("credentials must stay unchanged on invalid input")
	}
}

func TestManager_JoinAndSend(t *testing.T) {
	link := &fakeLink{rssi: -101, snr: 3.5}
	m := NewManager(link, Config{Clock: newFakeClock()})

	if m.IsJoined() {
		t.Fatal("fresh manager must not be joined")
	}
	if err := m.Join(context.Background()); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if !m.IsJoined() {
		t.Fatal("manager should be joined")
	}

	down, err := m.Send(context.Background(), []byte{0x01, 0x02}, 10, false)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if down != nil {
		t.Errorf("expected no downlink, got %+v", down)
	}
	if m.LastRSSI() != -101 || m.LastSNR() != 3.5 {
		t.Errorf("metrics not exposed: rssi=%v snr=%v", m.LastRSSI(), m.LastSNR())
	}
}

func TestManager_HandleEventsPassiveJoin(t *testing.T) {
	link := &fakeLink{}
	m := NewManager(link, Config{Clock: newFakeClock()})

	m.HandleEvents()
	if m.IsJoined() {
		t.Fatal("inactive link must not report joined")
	}

	link.activated = true
	m.HandleEvents()
	if !m.IsJoined() {
		t.Error("activation should be picked up by the event tick")
	}
}

func TestManager_HandleEventsTicksBeaconTracking(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(&fakeLink{}, Config{Clock: clock})
	m.state.Joined = true

	if err := m.SetDeviceClass(context.Background(), lorawan.ClassB); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.OnBeaconReceived([]byte{0x01}, -90, 5)
	if m.BeaconState() != lorawan.BeaconLocked {
		t.Fatalf("expected locked, got %s", m.BeaconState())
	}

	clock.advance(4 * beaconPeriod)
	m.HandleEvents()
	if m.BeaconState() != lorawan.BeaconLost {
		t.Errorf("expected lost, got %s", m.BeaconState())
	}
}

func TestManager_IndependentSessions(t *testing.T) {
	a := NewManager(&fakeLink{}, Config{Clock: newFakeClock()})
	b := NewManager(&fakeLink{}, Config{Clock: newFakeClock()})

	if a.ID() == b.ID() {
		t.Error("managers must get distinct session identifiers")
	}
	if a.ID() == (uuid.UUID{}) {
		t.Error("session identifier must be set")
	}
}

func TestManager_Defaults(t *testing.T) {
	m := NewManager(&fakeLink{}, Config{Clock: newFakeClock()})

	if m.DeviceClass() != lorawan.ClassA {
		t.Errorf("default class = %s", m.DeviceClass())
	}
	if m.BeaconState() != lorawan.BeaconIdle {
		t.Errorf("default beacon state = %s", m.BeaconState())
	}
	if m.ContinuousReceptionActive() {
		t.Error("continuous reception must start off")
	}
	if m.ActiveSubBand() != 0 {
		t.Errorf("default active sub-band = %d", m.ActiveSubBand())
	}
	if got := m.RX1Delay(); got != 5*time.Second {
		t.Errorf("RX1 delay = %v", got)
	}
	if got := m.RX1Timeout(); got != 50*time.Millisecond {
		t.Errorf("RX1 timeout = %v", got)
	}
	if got := m.RX2Timeout(); got != 190*time.Millisecond {
		t.Errorf("RX2 timeout = %v", got)
	}
}

func TestManager_ConfigSubBand(t *testing.T) {
	link := &fakeLink{}
	m := NewManager(link, Config{Clock: newFakeClock(), SubBand: 2, MultiSubBand: true})

	if err := m.Join(context.Background()); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(link.maskCalls) != 1 || link.maskCalls[0] != 2 {
		t.Errorf("configured sub-band not applied, mask calls %v", link.maskCalls)
	}
	if m.ActiveSubBand() != 2 {
		t.Errorf("active sub-band = %d", m.ActiveSubBand())
	}
}

func TestManager_SupportedClassesRestriction(t *testing.T) {
	m := NewManager(&fakeLink{}, Config{
		Clock:            newFakeClock(),
		SupportedClasses: []lorawan.DeviceClass{lorawan.ClassA, lorawan.ClassC},
	})
	m.state.Joined = true

	if err := m.SetDeviceClass(context.Background(), lorawan.ClassB); !errors.Is(err, ErrClassNotSupported) {
		t.Fatalf("expected ErrClassNotSupported, got %v", err)
	}
}

func TestManager_LastErrorCodePreserved(t *testing.T) {
	link := &fakeLink{sendCodes: []int{radio.CodeTxTimeout}}
	m := NewManager(link, Config{Clock: newFakeClock()})
	m.state.Joined = true

	_, err := m.Send(context.Background(), []byte{0x01}, 1, false)
	if err == nil {
		t.Fatal("expected send to fail")
	}
	if m.LastErrorCode() != radio.CodeTxTimeout {
		t.Errorf("last error code = %d", m.LastErrorCode())
	}
}
