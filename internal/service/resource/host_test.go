package resource

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-proctor-service/internal/models"
)

func writeWAV(t *testing.T, sampleRate uint32, channels uint16, pcm []byte) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, sampleRate)
	binary.Write(&buf, binary.LittleEndian, sampleRate*uint32(channels)*2)
	binary.Write(&buf, binary.LittleEndian, channels*2)
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	path := filepath.Join(t.TempDir(), "mic.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestWAVMicrophone_ReadsPeriodChunks(t *testing.T) {
	// 8kHz, 100ms period = 1600 bytes per read; 4000 bytes total.
	path := writeWAV(t, 8000, 1, make([]byte, 4000))
	mic, err := OpenWAVMicrophone(path, 100*time.Millisecond)
	require.NoError(t, err)
	defer mic.Close()

	ctx := context.Background()
	var sizes []int
	for i := 0; i < 4; i++ {
		seg, err := mic.ReadSegment(ctx)
		require.NoError(t, err)
		sizes = append(sizes, len(seg))
	}
	assert.Equal(t, []int{1600, 1600, 800, 0}, sizes)
	assert.Equal(t, 8000, mic.SampleRateHz())

	require.NoError(t, mic.Close())
	_, err = mic.ReadSegment(ctx)
	assert.Error(t, err)
}

func TestReadWAVHeader_RejectsStereo(t *testing.T) {
	path := writeWAV(t, 8000, 2, make([]byte, 100))
	_, err := OpenWAVMicrophone(path, time.Second)
	assert.Error(t, err)
}

func TestReadWAVHeader_RejectsGarbage(t *testing.T) {
	_, err := ReadWAVHeader(bytes.NewReader(make([]byte, 44)))
	assert.Error(t, err)
	_, err = ReadWAVHeader(bytes.NewReader([]byte("short")))
	assert.Error(t, err)
}

func TestHostDevices_DeniedWithoutSources(t *testing.T) {
	d := NewHostDevices(HostConfig{}, "sess-1", zerolog.Nop())
	_, err := d.OpenCamera(context.Background())
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	_, err = d.OpenMicrophone(context.Background())
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	d = NewHostDevices(HostConfig{MicrophoneWAV: "/does/not/exist.wav"}, "sess-1", zerolog.Nop())
	_, err = d.OpenMicrophone(context.Background())
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
}

func TestHostDevices_SyntheticMicrophone(t *testing.T) {
	d := NewHostDevices(HostConfig{SyntheticMicrophone: true, SampleRateHz: 16000, SegmentPeriod: time.Second}, "s", zerolog.Nop())
	mic, err := d.OpenMicrophone(context.Background())
	require.NoError(t, err)
	seg, err := mic.ReadSegment(context.Background())
	require.NoError(t, err)
	assert.Len(t, seg, 32000)
}

func TestHostDevices_SpoolFeedsCamera(t *testing.T) {
	spool := t.TempDir()
	d := NewHostDevices(HostConfig{FrameSpoolDir: spool}, "sess-42", zerolog.Nop())

	cam, err := d.OpenCamera(context.Background())
	require.NoError(t, err)
	defer cam.Close()

	require.NoError(t, os.WriteFile(filepath.Join(spool, "sess-42", "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(spool, "sess-42", "frame-001.jpg"), []byte("jpeg-bytes"), 0o600))

	require.Eventually(t, func() bool {
		f, ok := cam.CurrentFrame()
		return ok && string(f.Data) == "jpeg-bytes"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, cam.Close())
	_, ok := cam.CurrentFrame()
	assert.False(t, ok)
}
