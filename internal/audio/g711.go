package audio

// G.711 companding decoders. Telephony tracks arrive as 8 kHz mu-law or
// A-law payloads; expanded to linear PCM16 they can go straight into the
// WAV recorder and the mixdown.

const (
	muLawBias = 0x84
	signBit   = 0x80
	quantMask = 0x0F
	segMask   = 0x70
	segShift  = 4
)

// DecodeMuLawSample expands one mu-law byte to a linear 16-bit sample.
func DecodeMuLawSample(b byte) int16 {
	b = ^b
	t := (int16(b&quantMask) << 3) + muLawBias
	t <<= (b & segMask) >> segShift
	if b&signBit != 0 {
		return muLawBias - t
	}
	return t - muLawBias
}

// DecodeALawSample expands one A-law byte to a linear 16-bit sample.
func DecodeALawSample(b byte) int16 {
	b ^= 0x55
	t := int16(b&quantMask) << 4
	seg := (b & segMask) >> segShift
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if b&signBit != 0 {
		return t
	}
	return -t
}

// DecodeMuLaw expands a mu-law payload to little-endian PCM16 bytes.
func DecodeMuLaw(payload []byte) []byte {
	out := make([]byte, len(payload)*2)
	for i, b := range payload {
		s := DecodeMuLawSample(b)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodeALaw expands an A-law payload to little-endian PCM16 bytes.
func DecodeALaw(payload []byte) []byte {
	out := make([]byte, len(payload)*2)
	for i, b := range payload {
		s := DecodeALawSample(b)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
