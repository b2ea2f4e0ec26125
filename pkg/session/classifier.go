package session

import "github.com/pbezant/LoRaManager/pkg/radio"

// Category is the semantic classification of a raw radio outcome code.
// Categories drive retry policy in the coordinators; classification itself
// has no side effects.
type Category int

const (
	CategorySuccess Category = iota
	CategoryDownlink
	CategoryTimeout
	CategoryNotJoined
	CategoryNoChannel
	CategoryRejected
	CategoryUnknown
)

// String returns a human-readable category name.
func (c Category) String() string {
	switch c {
	case CategorySuccess:
		return "success"
	case CategoryDownlink:
		return "downlink"
	case CategoryTimeout:
		return "timeout"
	case CategoryNotJoined:
		return "not_joined"
	case CategoryNoChannel:
		return "no_channel"
	case CategoryRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Classify maps a raw outcome code to its category. Total over the int
// domain; codes the core does not recognize map to CategoryUnknown.
func Classify(code int) Category {
	switch code {
	case radio.CodeNone, radio.CodeNewSession:
		return CategorySuccess
	case radio.CodeDownlinkRX1, radio.CodeDownlinkRX2:
		return CategoryDownlink
	case radio.CodeTxTimeout, radio.CodeRxTimeout:
		return CategoryTimeout
	case radio.CodeNetworkNotJoined:
		return CategoryNotJoined
	case radio.CodeNoChannelAvailable:
		return CategoryNoChannel
	case radio.CodeJoinRejected:
		return CategoryRejected
	default:
		return CategoryUnknown
	}
}
