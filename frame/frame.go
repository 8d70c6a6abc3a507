// Package frame implements the acquire/present frame loop: it waits
// on the frame-in-flight fence for the slot about to be reused, resets
// every registered resource collection and per-frame ring buffer for
// that slot, drives the CPU/GPU profiler's start/end pair, and
// surfaces swapchain out-of-date/suboptimal results as a sentinel
// error the caller recreates the swapchain in response to.
package frame

import (
	"errors"
	"fmt"

	"github.com/vkforge/prosper/gpu"
	"github.com/vkforge/prosper/profiler"
	vk "github.com/vulkan-go/vulkan"
)

// ErrSwapchainOutOfDate means the swapchain became out of date or
// suboptimal during acquire or present; the caller must recreate it
// before calling Begin again.
var ErrSwapchainOutOfDate = errors.New("frame: swapchain out of date or suboptimal")

// Resetter is anything that must discard its previous frame-in-flight
// slot's state at the start of a new frame — resource.Collection and
// compute.Pass both satisfy this with their zero-argument StartFrame
// method.
type Resetter interface {
	StartFrame()
}

// IndexedResetter is a Resetter that needs to know which
// frame-in-flight slot it is resetting, as ringbuffer.RingBuffer does.
type IndexedResetter interface {
	StartFrame(frameIndex uint32)
}

// Loop drives one swapchain's acquire/present handshake and fans
// StartFrame out to every registered resetter plus the profiler.
type Loop struct {
	dev gpu.Device
	sc  gpu.Swapchain
	prof *profiler.Profiler

	resetters        []Resetter
	indexedResetters []IndexedResetter

	acquireSems []vk.Semaphore
	presentSems []vk.Semaphore

	frameIndex uint32
	imageIndex uint32
}

// New creates a Loop over sc, pre-creating one acquire/present
// semaphore pair per frame-in-flight slot.
func New(dev gpu.Device, sc gpu.Swapchain, prof *profiler.Profiler) *Loop {
	n := sc.FramesInFlight()
	l := &Loop{
		dev:         dev,
		sc:          sc,
		prof:        prof,
		acquireSems: make([]vk.Semaphore, n),
		presentSems: make([]vk.Semaphore, n),
	}
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	for i := uint32(0); i < n; i++ {
		if res := vk.CreateSemaphore(dev.Handle(), &info, nil, &l.acquireSems[i]); res != vk.Success {
			panic(fmt.Sprintf("frame: CreateSemaphore(acquire) failed: %v", res))
		}
		if res := vk.CreateSemaphore(dev.Handle(), &info, nil, &l.presentSems[i]); res != vk.Success {
			panic(fmt.Sprintf("frame: CreateSemaphore(present) failed: %v", res))
		}
	}
	return l
}

// Register adds a Resetter (a resource.Collection or compute.Pass)
// whose StartFrame is called at the start of every frame. Must be
// called before the first Begin.
func (l *Loop) Register(r Resetter) { l.resetters = append(l.resetters, r) }

// RegisterIndexed adds an IndexedResetter (a ringbuffer.RingBuffer)
// whose StartFrame(frameIndex) is called at the start of every frame.
func (l *Loop) RegisterIndexed(r IndexedResetter) { l.indexedResetters = append(l.indexedResetters, r) }

// AcquireSemaphore returns the semaphore that Begin's image acquire
// signals for the current frame-in-flight slot, for the caller's
// first submission to wait on.
func (l *Loop) AcquireSemaphore() vk.Semaphore { return l.acquireSems[l.frameIndex] }

// PresentSemaphore returns the semaphore the caller's last submission
// must signal before End presents.
func (l *Loop) PresentSemaphore() vk.Semaphore { return l.presentSems[l.frameIndex] }

// FrameIndex returns the frame-in-flight slot selected by the last
// Begin call.
func (l *Loop) FrameIndex() uint32 { return l.frameIndex }

// Begin advances to the next frame-in-flight slot, waits for that
// slot's previous GPU work to retire, resets every registered
// resetter, starts the profiler's CPU and GPU frames, and acquires the
// next swapchain image. Returns ErrSwapchainOutOfDate if the swapchain
// must be recreated before drawing.
func (l *Loop) Begin() (imageIndex uint32, err error) {
	l.frameIndex = l.sc.NextFrame()

	fence := l.sc.CurrentFence()
	vk.WaitForFences(l.dev.Handle(), 1, []vk.Fence{fence}, vk.True, vk.MaxUint64)
	vk.ResetFences(l.dev.Handle(), 1, []vk.Fence{fence})

	for _, r := range l.resetters {
		r.StartFrame()
	}
	for _, r := range l.indexedResetters {
		r.StartFrame(l.frameIndex)
	}

	if l.prof != nil {
		l.prof.StartCpuFrame()
		l.prof.StartGpuFrame(l.frameIndex)
	}

	idx, ok := l.sc.AcquireNextImage(l.acquireSems[l.frameIndex])
	if !ok {
		return 0, ErrSwapchainOutOfDate
	}
	l.imageIndex = idx
	return idx, nil
}

// End ends the profiler's GPU and CPU frames (cb must be the command
// buffer the caller recorded this frame's work into, already
// submitted) and presents the acquired image. Returns
// ErrSwapchainOutOfDate if the swapchain must be recreated.
func (l *Loop) End(cb vk.CommandBuffer) error {
	if l.prof != nil {
		l.prof.EndGpuFrame(cb)
		l.prof.EndCpuFrame()
	}
	if ok := l.sc.Present([]vk.Semaphore{l.presentSems[l.frameIndex]}, l.imageIndex); !ok {
		return ErrSwapchainOutOfDate
	}
	return nil
}

// Destroy releases every semaphore the loop owns. The swapchain and
// profiler it was constructed with are owned by the caller.
func (l *Loop) Destroy() {
	for i := range l.acquireSems {
		vk.DestroySemaphore(l.dev.Handle(), l.acquireSems[i], nil)
		vk.DestroySemaphore(l.dev.Handle(), l.presentSems[i], nil)
	}
}
