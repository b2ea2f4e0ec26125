// Package lorawan holds the protocol-level value types shared by the
// session core and its hosts: device identifiers, session keys and the
// device-class enumerations.
package lorawan

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// EUI64 represents an 8-byte Extended Unique Identifier
type EUI64 [8]byte

// EUI64FromUint64 builds an EUI64 from its big-endian integer form,
// the representation LoRaWAN credentials are usually handed out in.
func EUI64FromUint64(v uint64) EUI64 {
	var e EUI64
	binary.BigEndian.PutUint64(e[:], v)
	return e
}

// ParseEUI64 decodes a 16-character hex string, case-insensitive.
func ParseEUI64(s string) (EUI64, error) {
	var e EUI64
	if len(s) != len(e)*2 {
		return e, fmt.Errorf("invalid EUI64 length: want %d hex chars, got %d", len(e)*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return e, fmt.Errorf("invalid EUI64: %w", err)
	}
	copy(e[:], b)
	return e, nil
}

// Uint64 returns the big-endian integer form.
func (e EUI64) Uint64() uint64 {
	return binary.BigEndian.Uint64(e[:])
}

// String returns hex string representation
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// MarshalJSON implements json.Marshaler
func (e EUI64) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (e *EUI64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseEUI64(s)
	if err != nil {
		return err
	}

	*e = parsed
	return nil
}

// AES128Key represents a 128-bit AES key
type AES128Key [16]byte

// ParseAES128Key decodes a 32-character hex string, case-insensitive,
// no separators. The string must decode byte-exact or the call fails.
func ParseAES128Key(s string) (AES128Key, error) {
	var k AES128Key
	if len(s) != len(k)*2 {
		return k, fmt.Errorf("invalid key length: want %d hex chars, got %d", len(k)*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid key: %w", err)
	}
	copy(k[:], b)
	return k, nil
}

// String returns hex string representation
func (k AES128Key) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalJSON implements json.Marshaler
func (k AES128Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (k *AES128Key) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseAES128Key(s)
	if err != nil {
		return err
	}

	*k = parsed
	return nil
}

// DeviceClass represents the LoRaWAN device operation mode.
type DeviceClass byte

const (
	ClassA DeviceClass = 'A'
	ClassB DeviceClass = 'B'
	ClassC DeviceClass = 'C'
)

// Valid reports whether the class is one of A, B or C.
func (c DeviceClass) Valid() bool {
	return c == ClassA || c == ClassB || c == ClassC
}

// String returns the single-letter class name.
func (c DeviceClass) String() string {
	if !c.Valid() {
		return fmt.Sprintf("invalid(%d)", byte(c))
	}
	return string(c)
}

// ParseDeviceClass accepts "A", "B" or "C", case-insensitive.
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch s {
	case "A", "a":
		return ClassA, nil
	case "B", "b":
		return ClassB, nil
	case "C", "c":
		return ClassC, nil
	default:
		return 0, fmt.Errorf("invalid device class %q", s)
	}
}

// BeaconState tracks Class B beacon synchronization.
type BeaconState int

const (
	BeaconIdle BeaconState = iota
	BeaconAcquisition
	BeaconLocked
	BeaconLost
)

// String returns a human-readable state name.
func (s BeaconState) String() string {
	switch s {
	case BeaconIdle:
		return "idle"
	case BeaconAcquisition:
		return "acquisition"
	case BeaconLocked:
		return "locked"
	case BeaconLost:
		return "lost"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// BeaconPeriod is the standard LoRaWAN beacon interval of 128 seconds.
const BeaconPeriodMs = 128000
