// Package miniaudio opens the default microphone through miniaudio.
package miniaudio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/harunnryd/mimo/pkg/errorsx"
)

// Config describes the capture format. Samples are signed 16-bit PCM.
type Config struct {
	SampleRate uint32
	Channels   uint32
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	return c
}

// Capture owns one started capture device. It is the microphone resource
// held while the speech modality is active.
type Capture struct {
	mu           sync.Mutex
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	onAudio      func(pcm []byte)
	closed       bool
}

// Open starts the default capture device and delivers PCM chunks to onAudio
// from the audio thread. Failures carry an errorsx kind.
func Open(cfg Config, onAudio func(pcm []byte)) (*Capture, error) {
	cfg = cfg.withDefaults()
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, classify(fmt.Errorf("init audio context: %w", err))
	}
	c := &Capture{audioContext: audioCtx, onAudio: onAudio}

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * int(cfg.Channels)

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = cfg.SampleRate
	devCfg.Capture.Format = format
	devCfg.Capture.Channels = cfg.Channels
	devCfg.Alsa.NoMMap = 1
	devCfg.PerformanceProfile = malgo.LowLatency

	c.device, err = malgo.InitDevice(audioCtx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.deliver(pInput[:n])
		},
	})
	if err != nil {
		c.freeContext()
		return nil, classify(fmt.Errorf("init capture device: %w", err))
	}
	if err := c.device.Start(); err != nil {
		_ = c.Close()
		return nil, classify(fmt.Errorf("start capture device: %w", err))
	}
	return c, nil
}

func (c *Capture) deliver(pcm []byte) {
	c.mu.Lock()
	fn := c.onAudio
	c.mu.Unlock()
	if fn == nil {
		return
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	fn(buf)
}

// Close stops the device and frees the audio context. It is idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.onAudio = nil
	device := c.device
	c.device = nil
	c.mu.Unlock()

	var err error
	if device != nil {
		if device.IsStarted() {
			if serr := device.Stop(); serr != nil {
				err = fmt.Errorf("stop capture device: %w", serr)
			}
		}
		device.Uninit()
	}
	c.freeContext()
	return err
}

func (c *Capture) freeContext() {
	if c.audioContext == nil {
		return
	}
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
	c.audioContext = nil
}

// classify maps miniaudio result strings onto the error taxonomy.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return errorsx.Wrap(err, errorsx.KindPermissionDenied)
	case strings.Contains(msg, "no device"), strings.Contains(msg, "not found"),
		strings.Contains(msg, "no backend"):
		return errorsx.Wrap(err, errorsx.KindDeviceNotFound)
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return errorsx.Wrap(err, errorsx.KindDeviceBusy)
	case strings.Contains(msg, "format not supported"), strings.Contains(msg, "invalid device config"):
		return errorsx.Wrap(err, errorsx.KindConstraintUnsatisfiable)
	}
	return errorsx.Wrap(err, errorsx.KindUnknown)
}
