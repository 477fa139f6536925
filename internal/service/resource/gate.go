// Package resource provides the gate that owns the camera and microphone
// handles for a session, and the host device implementations behind it.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/service/detector"
)

// Camera yields the most recent frame, if any.
type Camera interface {
	CurrentFrame() (detector.Frame, bool)
	Close() error
}

// FrameSink is implemented by cameras that accept frames pushed by the client.
type FrameSink interface {
	Set(data []byte)
}

// Microphone yields audio captured since the previous read.
type Microphone interface {
	// ReadSegment returns the next buffered PCM16 chunk. An empty chunk means
	// nothing was captured during the period.
	ReadSegment(ctx context.Context) ([]byte, error)
	SampleRateHz() int
	Close() error
}

// Devices opens device handles. Denied access is reported with an error
// wrapping models.ErrPermissionDenied.
type Devices interface {
	OpenCamera(ctx context.Context) (Camera, error)
	OpenMicrophone(ctx context.Context) (Microphone, error)
}

// Grant reports which devices were acquired.
type Grant struct {
	VideoGranted bool `json:"videoGranted"`
	AudioGranted bool `json:"audioGranted"`
}

// Complete returns true when both devices were granted.
func (g Grant) Complete() bool {
	return g.VideoGranted && g.AudioGranted
}

// ErrReleased is returned when acquiring after the gate was released.
var ErrReleased = errors.New("resource gate released")

// Gate exclusively owns the device handles until Release.
type Gate struct {
	devices Devices

	mu       sync.Mutex
	camera   Camera
	mic      Microphone
	released bool
}

// NewGate creates a gate over the given devices.
func NewGate(devices Devices) *Gate {
	return &Gate{devices: devices}
}

// Acquire opens both devices. It fails soft: each denial clears the matching
// flag and contributes to the returned error. Partial grants are not held;
// the session cannot start without both, and Acquire may be invoked again.
func (g *Gate) Acquire(ctx context.Context) (Grant, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return Grant{}, ErrReleased
	}
	if g.camera != nil && g.mic != nil {
		return Grant{VideoGranted: true, AudioGranted: true}, nil
	}

	var grant Grant
	var errs []error

	camera, err := g.devices.OpenCamera(ctx)
	if err != nil {
		errs = append(errs, deniedError("camera", err))
	} else {
		grant.VideoGranted = true
	}

	mic, err := g.devices.OpenMicrophone(ctx)
	if err != nil {
		errs = append(errs, deniedError("microphone", err))
	} else {
		grant.AudioGranted = true
	}

	if !grant.Complete() {
		if camera != nil {
			camera.Close()
		}
		if mic != nil {
			mic.Close()
		}
		return grant, errors.Join(errs...)
	}

	g.camera = camera
	g.mic = mic
	return grant, nil
}

func deniedError(device string, err error) error {
	if errors.Is(err, models.ErrPermissionDenied) {
		return fmt.Errorf("%s: %w", device, err)
	}
	return fmt.Errorf("%s: %w: %v", device, models.ErrPermissionDenied, err)
}

// Camera returns the acquired camera or nil.
func (g *Gate) Camera() Camera {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.camera
}

// Microphone returns the acquired microphone or nil.
func (g *Gate) Microphone() Microphone {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mic
}

// PushFrame forwards a client frame to the camera when it accepts pushes.
// Returns false when no push-capable camera is held.
func (g *Gate) PushFrame(data []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sink, ok := g.camera.(FrameSink); ok && !g.released {
		sink.Set(data)
		return true
	}
	return false
}

// Release closes both handles. Only the lifecycle controller calls it.
// Idempotent.
func (g *Gate) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil
	}
	g.released = true

	var errs []error
	if g.camera != nil {
		errs = append(errs, g.camera.Close())
	}
	if g.mic != nil {
		errs = append(errs, g.mic.Close())
	}
	return errors.Join(errs...)
}
