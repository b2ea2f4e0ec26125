package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pbezant/LoRaManager/pkg/lorawan"
)

// beaconPeriod is the standard LoRaWAN beacon interval.
const beaconPeriod = lorawan.BeaconPeriodMs * time.Millisecond

// defaultBeaconLossTolerance is how many beacon periods may pass without a
// beacon before a locked tracker is declared lost.
const defaultBeaconLossTolerance = 3

// defaultMaxPingSlotJitter bounds the pseudo-random offset added to ping
// slot times so devices sharing a periodicity do not collide.
const defaultMaxPingSlotJitter = 500 * time.Millisecond

// classNotifyPort carries the class-change notification uplink.
const classNotifyPort = 2

// BeaconCallback receives beacon frames as they are fed in.
type BeaconCallback func(payload []byte, rssi, snr float64)

// Class mode variants. Beacon tracking data exists only while in Class B
// and the reception flag only in Class C, so invalid combinations are
// unrepresentable.
type classMode interface {
	class() lorawan.DeviceClass
}

type classA struct{}

type classB struct {
	beacon       lorawan.BeaconState
	acquiredAt   time.Time
	lastBeaconRx time.Time
	nextPingSlot time.Time
}

type classC struct {
	continuousReception bool
}

func (classA) class() lorawan.DeviceClass  { return lorawan.ClassA }
func (*classB) class() lorawan.DeviceClass { return lorawan.ClassB }
func (classC) class() lorawan.DeviceClass  { return lorawan.ClassC }

// ClassController manages Class A/B/C operation: transitions between
// classes, beacon acquisition and loss tracking, and ping-slot scheduling.
type ClassController struct {
	clock Clock
	tx    *TransmitCoordinator
	rng   *rand.Rand

	mode                classMode
	pingSlotPeriodicity uint8
	lossTolerance       uint
	maxPingJitter       time.Duration
	supported           []lorawan.DeviceClass

	onBeacon BeaconCallback
}

// NewClassController starts in Class A. The transmit coordinator is used
// for class-change notification uplinks.
func NewClassController(clock Clock, tx *TransmitCoordinator) *ClassController {
	if clock == nil {
		clock = SystemClock
	}
	return &ClassController{
		clock:         clock,
		tx:            tx,
		rng:           rand.New(rand.NewSource(clock.Now().UnixNano())),
		mode:          classA{},
		lossTolerance: defaultBeaconLossTolerance,
		maxPingJitter: defaultMaxPingSlotJitter,
		supported:     []lorawan.DeviceClass{lorawan.ClassA, lorawan.ClassB, lorawan.ClassC},
	}
}

// SetBeaconLossTolerance overrides how many beacon periods without a
// beacon are tolerated before Locked degrades to Lost.
func (c *ClassController) SetBeaconLossTolerance(periods uint) {
	if periods > 0 {
		c.lossTolerance = periods
	}
}

// SetSupportedClasses restricts which classes SetDeviceClass accepts.
func (c *ClassController) SetSupportedClasses(classes []lorawan.DeviceClass) {
	if len(classes) > 0 {
		c.supported = classes
	}
}

// SetBeaconCallback registers the handler invoked on beacon reception.
func (c *ClassController) SetBeaconCallback(cb BeaconCallback) {
	c.onBeacon = cb
}

// DeviceClass returns the current operating class.
func (c *ClassController) DeviceClass() lorawan.DeviceClass {
	return c.mode.class()
}

// BeaconState returns the Class B beacon tracking state; BeaconIdle
// whenever the device is not in Class B.
func (c *ClassController) BeaconState() lorawan.BeaconState {
	if b, ok := c.mode.(*classB); ok {
		return b.beacon
	}
	return lorawan.BeaconIdle
}

// ContinuousReceptionActive reports whether Class C reception is running.
func (c *ClassController) ContinuousReceptionActive() bool {
	if m, ok := c.mode.(classC); ok {
		return m.continuousReception
	}
	return false
}

// PingSlotPeriodicity returns the configured periodicity (0..7).
func (c *ClassController) PingSlotPeriodicity() uint8 {
	return c.pingSlotPeriodicity
}

// NextPingSlot returns the scheduled ping slot time; zero unless the
// beacon is locked.
func (c *ClassController) NextPingSlot() time.Time {
	if b, ok := c.mode.(*classB); ok {
		return b.nextPingSlot
	}
	return time.Time{}
}

// SetDeviceClass transitions to the target class. Switching to B starts
// beacon acquisition and switching to C sends a confirmed class-change
// notification uplink before activating continuous reception; both
// require a joined session. Failures leave the current mode unchanged.
func (c *ClassController) SetDeviceClass(ctx context.Context, st *State, target lorawan.DeviceClass) error {
	if !target.Valid() {
		return fmt.Errorf("%w: device class %q", ErrInvalidInput, string(target))
	}
	if !c.classSupported(target) {
		return fmt.Errorf("%w: class %s", ErrClassNotSupported, target)
	}

	current := c.mode.class()
	if target == current {
		return nil
	}

	switch target {
	case lorawan.ClassA:
		c.stopCurrent()
		c.mode = classA{}

	case lorawan.ClassB:
		if !st.Joined {
			return fmt.Errorf("cannot start beacon acquisition: %w", ErrNotJoined)
		}
		c.stopCurrent()
		now := c.clock.Now()
		c.mode = &classB{
			beacon:       lorawan.BeaconAcquisition,
			acquiredAt:   now,
			lastBeaconRx: now,
		}
		log.Info().
			Str("session_id", st.ID.String()).
			Msg("starting beacon acquisition for Class B operation")

	case lorawan.ClassC:
		if !st.Joined {
			return fmt.Errorf("cannot start continuous reception: %w", ErrNotJoined)
		}
		// The network server must learn about continuous reception
		// before it is switched on; a failed notification aborts the
		// class change with the previous mode intact.
		if err := c.notifyClassChange(ctx, st, lorawan.ClassC); err != nil {
			return fmt.Errorf("class change notification failed: %w", err)
		}
		c.stopCurrent()
		c.mode = classC{continuousReception: true}
		log.Info().
			Str("session_id", st.ID.String()).
			Msg("starting continuous reception for Class C operation")
	}

	log.Info().
		Str("session_id", st.ID.String()).
		Str("from", current.String()).
		Str("to", target.String()).
		Msg("device class changed")
	return nil
}

// SetPingSlotPeriodicity updates the Class B ping slot periodicity
// (0..7). While the beacon is locked the next ping slot is recomputed
// immediately; out-of-range input leaves state unchanged.
func (c *ClassController) SetPingSlotPeriodicity(p uint8) error {
	if p > 7 {
		return fmt.Errorf("%w: ping slot periodicity %d (must be 0-7)", ErrInvalidInput, p)
	}
	c.pingSlotPeriodicity = p
	if b, ok := c.mode.(*classB); ok && b.beacon == lorawan.BeaconLocked {
		c.scheduleNextPingSlot(b)
	}
	log.Debug().Uint8("periodicity", p).Msg("ping slot periodicity set")
	return nil
}

// OnBeaconReceived feeds a received beacon into the tracker: signal
// metrics are recorded, the tracker locks and the beacon callback fires.
// Beacons arriving outside Class B are dropped.
func (c *ClassController) OnBeaconReceived(st *State, payload []byte, rssi, snr float64) {
	b, ok := c.mode.(*classB)
	if !ok {
		log.Debug().
			Str("session_id", st.ID.String()).
			Str("class", c.mode.class().String()).
			Msg("beacon ignored outside Class B")
		return
	}

	now := c.clock.Now()
	b.lastBeaconRx = now
	st.LastRSSI = rssi
	st.LastSNR = snr

	if b.beacon != lorawan.BeaconLocked {
		b.beacon = lorawan.BeaconLocked
		c.scheduleNextPingSlot(b)
		log.Info().
			Str("session_id", st.ID.String()).
			Float64("rssi", rssi).
			Float64("snr", snr).
			Msg("beacon locked")
	}

	if c.onBeacon != nil {
		c.onBeacon(payload, rssi, snr)
	}
}

// Tick advances beacon-loss tracking and ping-slot scheduling. Call it
// from the host loop. A locked tracker that has not seen a beacon within
// beaconPeriod * lossTolerance degrades to Lost; a lost tracker re-enters
// Acquisition on the following tick.
func (c *ClassController) Tick(st *State) {
	b, ok := c.mode.(*classB)
	if !ok {
		return
	}

	now := c.clock.Now()
	switch b.beacon {
	case lorawan.BeaconLocked:
		if now.Sub(b.lastBeaconRx) > time.Duration(c.lossTolerance)*beaconPeriod {
			b.beacon = lorawan.BeaconLost
			log.Warn().
				Str("session_id", st.ID.String()).
				Time("last_beacon", b.lastBeaconRx).
				Msg("beacon lost")
			return
		}
		if !b.nextPingSlot.IsZero() && now.After(b.nextPingSlot) {
			c.scheduleNextPingSlot(b)
		}

	case lorawan.BeaconLost:
		b.beacon = lorawan.BeaconAcquisition
		b.acquiredAt = now
		log.Info().
			Str("session_id", st.ID.String()).
			Msg("re-entering beacon acquisition")
	}
}

// scheduleNextPingSlot computes the next ping slot: 2^(5+periodicity)
// seconds from now plus a bounded pseudo-random jitter.
func (c *ClassController) scheduleNextPingSlot(b *classB) {
	period := time.Duration(1<<(5+c.pingSlotPeriodicity)) * time.Second
	jitter := time.Duration(c.rng.Int63n(int64(c.maxPingJitter)))
	b.nextPingSlot = c.clock.Now().Add(period + jitter)
	log.Debug().
		Dur("period", period).
		Dur("jitter", jitter).
		Msg("next ping slot scheduled")
}

// notifyClassChange informs the network server of the new class with a
// confirmed uplink.
func (c *ClassController) notifyClassChange(ctx context.Context, st *State, target lorawan.DeviceClass) error {
	_, err := c.tx.Send(ctx, st, []byte{byte(target)}, classNotifyPort, true)
	return err
}

// stopCurrent tears down whatever the current mode is running.
func (c *ClassController) stopCurrent() {
	switch m := c.mode.(type) {
	case *classB:
		if m.beacon != lorawan.BeaconIdle {
			log.Debug().Msg("stopping beacon acquisition/tracking")
		}
	case classC:
		if m.continuousReception {
			log.Debug().Msg("stopping continuous reception")
		}
	}
}

func (c *ClassController) classSupported(target lorawan.DeviceClass) bool {
	for _, s := range c.supported {
		if s == target {
			return true
		}
	}
	return false
}
