package transcribe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestPCM16ToFloat32(t *testing.T) {
	raw := []byte{
		0x00, 0x00, // 0
		0x00, 0x40, // 16384
		0x00, 0x80, // -32768
		0xff, 0x7f, // 32767
		0x01, // dangling byte
	}
	got := PCM16ToFloat32(raw)
	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWriteWAV_Header(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWAV(&buf, []float32{0, 0.5, -1, 2}, 16000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	b := buf.Bytes()
	if len(b) != 44+8 {
		t.Fatalf("len = %d", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", b[:40])
	}
	if sr := binary.LittleEndian.Uint32(b[24:28]); sr != 16000 {
		t.Fatalf("sample rate = %d", sr)
	}
	if s := int16(binary.LittleEndian.Uint16(b[46:48])); s != 16384 {
		t.Fatalf("sample 1 = %d", s)
	}
	if s := int16(binary.LittleEndian.Uint16(b[50:52])); s != 32767 {
		t.Fatalf("clipped sample = %d", s)
	}
}
