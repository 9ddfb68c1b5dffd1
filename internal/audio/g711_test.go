package audio

import "testing"

func TestDecodeMuLawSample(t *testing.T) {
	cases := []struct {
		in   byte
		want int16
	}{
		{0xFF, 0},      // positive zero
		{0x7F, 0},      // negative zero
		{0x80, 32124},  // largest magnitude, sign after complement flips
		{0x00, -32124}, // largest negative
	}
	for _, tc := range cases {
		if got := DecodeMuLawSample(tc.in); got != tc.want {
			t.Errorf("DecodeMuLawSample(%#02x) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDecodeALawSample(t *testing.T) {
	cases := []struct {
		in   byte
		want int16
	}{
		{0xD5, 8},      // smallest positive
		{0x55, -8},     // smallest negative
		{0xAA, 32256},  // largest positive
		{0x2A, -32256}, // largest negative
	}
	for _, tc := range cases {
		if got := DecodeALawSample(tc.in); got != tc.want {
			t.Errorf("DecodeALawSample(%#02x) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDecodeMuLawPayload(t *testing.T) {
	pcm := DecodeMuLaw([]byte{0xFF, 0x80})
	if len(pcm) != 4 {
		t.Fatalf("len = %d, want 4", len(pcm))
	}
	if s := int16(pcm[0]) | int16(pcm[1])<<8; s != 0 {
		t.Errorf("first sample = %d, want 0", s)
	}
	if s := int16(pcm[2]) | int16(pcm[3])<<8; s != 32124 {
		t.Errorf("second sample = %d, want 32124", s)
	}
}

func TestDecodedMuLawRoundTripsThroughWAV(t *testing.T) {
	pcm := DecodeMuLaw([]byte{0xFF, 0x80, 0x00, 0x7F})
	data, err := EncodeWAVPCM16LE(pcm, 8000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE: %v", err)
	}
	got, rate, err := DecodeWAVPCM16LE(data)
	if err != nil {
		t.Fatalf("DecodeWAVPCM16LE: %v", err)
	}
	if rate != 8000 {
		t.Errorf("rate = %d, want 8000", rate)
	}
	if string(got) != string(pcm) {
		t.Error("PCM changed across WAV round trip")
	}
}
