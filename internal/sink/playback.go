package sink

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// Playback owns the local output device. The device is opened lazily on the
// first frame and closed again by the caller when playback has been idle; a
// host without audio hardware makes Open fail, which callers treat as
// non-fatal.
type Playback struct {
	sampleRate int
	channels   int
	log        *slog.Logger

	mu   sync.Mutex
	cond *sync.Cond
	buf  []byte

	ctx    *malgo.AllocatedContext
	device *malgo.Device
	open   bool
}

func NewPlayback(sampleRate, channels int, log *slog.Logger) *Playback {
	p := &Playback{
		sampleRate: sampleRate,
		channels:   channels,
		log:        log,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Open initializes the output device. Safe to call when already open.
func (p *Playback) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(p.channels)
	deviceConfig.SampleRate = uint32(p.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: p.fill,
	})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start playback device: %w", err)
	}

	p.ctx = ctx
	p.device = device
	p.open = true
	p.log.Debug("playback device opened",
		slog.Int("sample_rate", p.sampleRate), slog.Int("channels", p.channels))
	return nil
}

// fill is the device callback. It drains the pending buffer into the output
// and zero-fills any remainder.
func (p *Playback) fill(outputBuffer, _ []byte, _ uint32) {
	p.mu.Lock()
	n := copy(outputBuffer, p.buf)
	p.buf = p.buf[n:]
	if len(p.buf) == 0 {
		p.cond.Broadcast()
	}
	p.mu.Unlock()
	for i := n; i < len(outputBuffer); i++ {
		outputBuffer[i] = 0
	}
}

// Play queues pcm on the device and blocks until it has been consumed. The
// device must be open.
func (p *Playback) Play(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return fmt.Errorf("playback device not open")
	}
	p.buf = append(p.buf, pcm...)
	for len(p.buf) > 0 && p.open {
		p.cond.Wait()
	}
	return nil
}

// Close stops the device and releases it. Safe to call when already closed;
// any blocked Play returns.
func (p *Playback) Close() error {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return nil
	}
	p.open = false
	p.buf = nil
	p.cond.Broadcast()
	device := p.device
	ctx := p.ctx
	p.device = nil
	p.ctx = nil
	p.mu.Unlock()

	device.Uninit()
	ctx.Uninit()
	ctx.Free()
	p.log.Debug("playback device closed")
	return nil
}
