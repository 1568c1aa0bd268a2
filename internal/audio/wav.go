package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const wavHeaderSize = 44

var ErrNotWAV = errors.New("not a PCM WAV stream")

// EncodeWAV wraps raw PCM16 in a canonical 44-byte RIFF header.
func EncodeWAV(pcm []byte, f Format) []byte {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		f = DefaultFormat()
	}
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))

	blockAlign := uint16(f.Channels * 2)
	byteRate := uint32(f.SampleRate) * uint32(blockAlign)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV returns the PCM payload and format of a canonical WAV file.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}
	if binary.LittleEndian.Uint16(data[20:22]) != 1 || binary.LittleEndian.Uint16(data[34:36]) != 16 {
		return nil, Format{}, ErrNotWAV
	}
	f := Format{
		Channels:   int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(data[24:28])),
	}
	size := int(binary.LittleEndian.Uint32(data[40:44]))
	if size > len(data)-wavHeaderSize {
		size = len(data) - wavHeaderSize
	}
	return data[wavHeaderSize : wavHeaderSize+size], f, nil
}
