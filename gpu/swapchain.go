package gpu

import vk "github.com/vulkan-go/vulkan"

// Swapchain is the presentation façade the frame loop drives. Its
// concrete implementation (surface/swapchain creation, queue family
// selection) is an external collaborator; this interface is the
// handshake the frame loop requires of it.
type Swapchain interface {
	// AcquireNextImage acquires the next presentable image, signaling
	// signal when it is ready to be written. ok is false when the
	// swapchain is out of date or suboptimal and must be recreated;
	// the frame is not drawn in that case.
	AcquireNextImage(signal vk.Semaphore) (imageIndex uint32, ok bool)

	// Present submits the acquired image for presentation after
	// waiting on wait. ok is false when the swapchain is out of date
	// or suboptimal and must be recreated.
	Present(wait []vk.Semaphore, imageIndex uint32) (ok bool)

	// CurrentFence returns the CPU/GPU sync fence for the
	// currently-acquired frame-in-flight slot.
	CurrentFence() vk.Fence

	// NextFrame advances the frame-in-flight index and returns it.
	NextFrame() uint32

	// FramesInFlight returns the configured number of frames that may
	// be in flight simultaneously.
	FramesInFlight() uint32
}
