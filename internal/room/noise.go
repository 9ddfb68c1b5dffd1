package room

import (
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// ParticipantKind is the closed set of participant classifications the
// platform reports. Keeping it a dedicated type makes any future kind a
// visible decision point in SelectNoiseCancellation.
type ParticipantKind string

const (
	KindStandard ParticipantKind = "standard"
	KindIngress  ParticipantKind = "ingress"
	KindEgress   ParticipantKind = "egress"
	KindSIP      ParticipantKind = "sip"
	KindAgent    ParticipantKind = "agent"
)

// KindFromSDK maps the SDK's participant kind onto ours. Unknown values map
// to standard so the selector stays total.
func KindFromSDK(kind lksdk.ParticipantKind) ParticipantKind {
	switch kind {
	case lksdk.ParticipantSIP:
		return KindSIP
	case lksdk.ParticipantIngress:
		return KindIngress
	case lksdk.ParticipantEgress:
		return KindEgress
	case lksdk.ParticipantAgent:
		return KindAgent
	default:
		return KindStandard
	}
}

// NoiseCancellationPreset is an opaque capability token understood by the
// hosted audio pipeline.
type NoiseCancellationPreset string

const (
	// PresetStandard is the wideband preset for WebRTC participants.
	PresetStandard NoiseCancellationPreset = "bvc"
	// PresetTelephony is tuned for narrowband phone audio.
	PresetTelephony NoiseCancellationPreset = "bvc-telephony"
)

// SelectNoiseCancellation picks the preset for a connecting participant.
// Phone calls arrive through the SIP bridge and get the telephony preset;
// everything else gets the standard one.
func SelectNoiseCancellation(kind ParticipantKind) NoiseCancellationPreset {
	if kind == KindSIP {
		return PresetTelephony
	}
	return PresetStandard
}
