package resource

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// WAVFormat describes a PCM WAV stream.
type WAVFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// ReadWAVHeader reads and validates a canonical 44-byte PCM header.
func ReadWAVHeader(r io.Reader) (WAVFormat, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return WAVFormat{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVFormat{}, errors.New("not a valid WAV file")
	}

	f := WAVFormat{
		AudioFormat:   binary.LittleEndian.Uint16(header[20:22]),
		NumChannels:   binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if f.AudioFormat != 1 { // PCM
		return f, errors.New("only PCM format supported")
	}
	if f.NumChannels != 1 || f.BitsPerSample != 16 {
		return f, fmt.Errorf("expected 16-bit mono, got channels=%d bits=%d", f.NumChannels, f.BitsPerSample)
	}
	return f, nil
}

// segmentBytes returns the PCM16 mono byte count for one period.
func segmentBytes(sampleRate int, period time.Duration) int {
	return int(period.Seconds()*float64(sampleRate)) * 2
}

// WAVMicrophone replays a PCM16 mono WAV file one period per read. After the
// end of the file every read returns an empty chunk.
type WAVMicrophone struct {
	mu         sync.Mutex
	f          *os.File
	format     WAVFormat
	chunkBytes int
	eof        bool
}

// OpenWAVMicrophone opens path and validates its header.
func OpenWAVMicrophone(path string, period time.Duration) (*WAVMicrophone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	format, err := ReadWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &WAVMicrophone{
		f:          f,
		format:     format,
		chunkBytes: segmentBytes(int(format.SampleRate), period),
	}, nil
}

// ReadSegment implements Microphone.
func (m *WAVMicrophone) ReadSegment(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil, os.ErrClosed
	}
	if m.eof {
		return nil, nil
	}

	buf := make([]byte, m.chunkBytes)
	n, err := io.ReadFull(m.f, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		m.eof = true
		return buf[:n&^1], nil
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// SampleRateHz implements Microphone.
func (m *WAVMicrophone) SampleRateHz() int {
	return int(m.format.SampleRate)
}

// Close implements Microphone.
func (m *WAVMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// SilentMicrophone produces one period of digital silence per read.
type SilentMicrophone struct {
	sampleRate int
	chunkBytes int
}

// NewSilentMicrophone creates a synthetic microphone.
func NewSilentMicrophone(sampleRate int, period time.Duration) *SilentMicrophone {
	return &SilentMicrophone{sampleRate: sampleRate, chunkBytes: segmentBytes(sampleRate, period)}
}

// ReadSegment implements Microphone.
func (m *SilentMicrophone) ReadSegment(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return make([]byte, m.chunkBytes), nil
}

// SampleRateHz implements Microphone.
func (m *SilentMicrophone) SampleRateHz() int { return m.sampleRate }

// Close implements Microphone.
func (m *SilentMicrophone) Close() error { return nil }
