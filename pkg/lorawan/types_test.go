package lorawan

import (
	"encoding/json"
	"testing"
)

func TestEUI64_Uint64RoundTrip(t *testing.T) {
	e := EUI64FromUint64(0x70B3D57ED0001234)
	if e != (EUI64{0x70, 0xB3, 0xD5, 0x7E, 0xD0, 0x00, 0x12, 0x34}) {
		t.Fatalf("unexpected bytes: %v", e)
	}
	if e.Uint64() != 0x70B3D57ED0001234 {
		t.Errorf("round trip = %016x", e.Uint64())
	}
}

func TestParseEUI64(t *testing.T) {
	e, err := ParseEUI64("70B3D57ED0001234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.String() != "70b3d57ed0001234" {
		t.Errorf("String() = %q", e.String())
	}

	if _, err := ParseEUI64("70b3"); err == nil {
		t.Error("short input must be rejected")
	}
	if _, err := ParseEUI64("zzb3d57ed0001234"); err == nil {
		t.Error("non-hex input must be rejected")
	}
}

func TestEUI64_JSON(t *testing.T) {
	e := EUI64FromUint64(0x0102030405060708)
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"0102030405060708"` {
		t.Errorf("marshal = %s", data)
	}

	var back EUI64
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != e {
		t.Errorf("round trip mismatch: %v", back)
	}

	if err := json.Unmarshal([]byte(`"nope"`), &back); err == nil {
		t.Error("bad hex must be rejected")
	}
}

func TestParseAES128Key(t *testing.T) {
	k, err := ParseAES128Key("000102030405060708090A0B0C0D0E0F")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.String() != "000102030405060708090a0b0c0d0e0f" {
		t.Errorf("String() = %q", k.String())
	}
	if k[0] != 0x00 || k[15] != 0x0F {
		t.Errorf("unexpected bytes: %v", k)
	}

	if _, err := ParseAES128Key("0001020304"); err == nil {
		t.Error("short key must be rejected")
	}
	if _, err := ParseAES128Key("gg0102030405060708090a0b0c0d0e0f"); err == nil {
		t.Error("non-hex key must be rejected")
	}
}

func TestDeviceClass(t *testing.T) {
	for _, c := range []DeviceClass{ClassA, ClassB, ClassC} {
		if !c.Valid() {
			t.Errorf("class %s should be valid", c)
		}
	}
	if DeviceClass('D').Valid() {
		t.Error("class D must be invalid")
	}
	if ClassB.String() != "B" {
		t.Errorf("String() = %q", ClassB.String())
	}

	if c, err := ParseDeviceClass("c"); err != nil || c != ClassC {
		t.Errorf("ParseDeviceClass(c) = %v, %v", c, err)
	}
	if _, err := ParseDeviceClass("X"); err == nil {
		t.Error("invalid class letter must be rejected")
	}
}

func TestBeaconState_String(t *testing.T) {
	want := map[BeaconState]string{
		BeaconIdle:        "idle",
		BeaconAcquisition: "acquisition",
		BeaconLocked:      "locked",
		BeaconLost:        "lost",
		BeaconState(99):   "unknown(99)",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), w)
		}
	}
}
