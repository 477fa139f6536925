package resource

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"exam-proctor-service/internal/models"
)

// HostConfig configures HostDevices.
type HostConfig struct {
	// AllowPushedFrames grants the camera when frames arrive over the API.
	AllowPushedFrames bool
	// FrameSpoolDir, when set, is watched for frames under <dir>/<session>.
	FrameSpoolDir string
	// MicrophoneWAV replays a PCM16 mono WAV as microphone input.
	MicrophoneWAV string
	// SyntheticMicrophone grants a silent microphone when no WAV is set.
	SyntheticMicrophone bool
	SampleRateHz        int
	SegmentPeriod       time.Duration
}

// HostDevices opens the devices configured for one session.
type HostDevices struct {
	cfg       HostConfig
	sessionID string
	logger    zerolog.Logger
}

// NewHostDevices creates the device provider for a session.
func NewHostDevices(cfg HostConfig, sessionID string, logger zerolog.Logger) *HostDevices {
	return &HostDevices{cfg: cfg, sessionID: sessionID, logger: logger}
}

// OpenCamera implements Devices.
func (d *HostDevices) OpenCamera(ctx context.Context) (Camera, error) {
	if !d.cfg.AllowPushedFrames && d.cfg.FrameSpoolDir == "" {
		return nil, fmt.Errorf("%w: no camera source configured", models.ErrPermissionDenied)
	}
	buffer := NewFrameBuffer()
	if d.cfg.FrameSpoolDir != "" {
		dir := filepath.Join(d.cfg.FrameSpoolDir, d.sessionID)
		if _, err := WatchSpool(dir, buffer, d.logger); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPermissionDenied, err)
		}
	}
	return buffer, nil
}

// OpenMicrophone implements Devices.
func (d *HostDevices) OpenMicrophone(ctx context.Context) (Microphone, error) {
	switch {
	case d.cfg.MicrophoneWAV != "":
		mic, err := OpenWAVMicrophone(d.cfg.MicrophoneWAV, d.cfg.SegmentPeriod)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPermissionDenied, err)
		}
		return mic, nil
	case d.cfg.SyntheticMicrophone:
		return NewSilentMicrophone(d.cfg.SampleRateHz, d.cfg.SegmentPeriod), nil
	default:
		return nil, fmt.Errorf("%w: no microphone source configured", models.ErrPermissionDenied)
	}
}
