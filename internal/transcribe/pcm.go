package transcribe

import (
	"encoding/binary"
	"io"
	"math"
)

const (
	BytesPerSample = 2
	pcmScale       = 32768.0
)

// PCM16ToFloat32 decodes little-endian signed 16-bit samples into [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		out[i] = float32(s) / pcmScale
	}
	return out
}

func floatToPCM16(f float32) int16 {
	v := math.Round(float64(f) * pcmScale)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// WriteWAV writes samples as a mono 16-bit PCM RIFF/WAVE stream.
func WriteWAV(w io.Writer, samples []float32, sampleRate int) error {
	dataLen := uint32(len(samples) * BytesPerSample)
	byteRate := uint32(sampleRate * BytesPerSample)

	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataLen)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], 1) // mono
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], BytesPerSample)
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataLen)
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	data := make([]byte, dataLen)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*BytesPerSample:], uint16(floatToPCM16(s)))
	}
	_, err := w.Write(data)
	return err
}
