package resource

import (
	"testing"

	"github.com/vkforge/prosper/gpu"
	vk "github.com/vulkan-go/vulkan"
)

// fakeDevice implements gpu.Device well enough to exercise Images and
// Buffers collections without a real Vulkan instance.
type fakeDevice struct {
	nextHandle uint64
}

func (f *fakeDevice) CreateBuffer(desc gpu.BufferDesc, name string) (gpu.Buffer, error) {
	f.nextHandle++
	return gpu.Buffer{Handle: vk.Buffer(f.nextHandle)}, nil
}
func (f *fakeDevice) CreateImage(desc gpu.ImageDesc, name string) (gpu.Image, error) {
	f.nextHandle++
	return gpu.Image{Handle: vk.Image(f.nextHandle), Desc: desc}, nil
}
func (f *fakeDevice) DestroyBuffer(b gpu.Buffer)                                   {}
func (f *fakeDevice) DestroyImage(i gpu.Image)                                     {}
func (f *fakeDevice) CreateMipView(i gpu.Image, level uint32) (vk.ImageView, error) {
	f.nextHandle++
	return vk.ImageView(f.nextHandle), nil
}
func (f *fakeDevice) DestroyView(v vk.ImageView) {}
func (f *fakeDevice) SetDebugName(t vk.ObjectType, h uint64, name string)          {}
func (f *fakeDevice) CompileShaderModule(r gpu.ShaderCompileRequest) (gpu.CompiledShader, bool) {
	return gpu.CompiledShader{}, false
}
func (f *fakeDevice) BeginGraphicsCommands() (vk.CommandBuffer, error) { return nil, nil }
func (f *fakeDevice) EndGraphicsCommands(cb vk.CommandBuffer) error    { return nil }
func (f *fakeDevice) Handle() vk.Device                                { return nil }
func (f *fakeDevice) PhysicalDevice() vk.PhysicalDevice                { return nil }
func (f *fakeDevice) TimestampPeriod() float32                        { return 1 }

func testImageDesc() gpu.ImageDesc {
	return gpu.ImageDesc{
		Format: vk.FormatR8g8b8a8Unorm,
		Width:  128,
		Height: 128,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageSampledBit),
	}
}

func assertPanics(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic, got none", what)
		}
	}()
	fn()
}

// S1 / property 2: releasing and re-creating with a matching
// description aliases the same slot and concatenates the debug name.
func TestAliasingReusesSlotAndConcatenatesName(t *testing.T) {
	im := NewImages(&fakeDevice{})
	desc := testImageDesc()

	a := im.Create(desc, "A")
	native := im.Native(a)
	im.Release(a)

	b := im.Create(desc, "B")
	if a.Index != b.Index {
		t.Fatalf("slot index\nhave %d\nwant %d", b.Index, a.Index)
	}
	if im.Native(b).Handle != native.Handle {
		t.Fatalf("native image handle changed across aliasing")
	}
	names := im.DebugNames()
	if names[a.Index] != "A|B" {
		t.Fatalf("aliased name\nhave %q\nwant %q", names[a.Index], "A|B")
	}
	im.Release(b)
}

// Property 1: a handle becomes invalid after its slot's generation
// moves on.
func TestHandleValidityAfterRelease(t *testing.T) {
	im := NewImages(&fakeDevice{})
	desc := testImageDesc()

	a := im.Create(desc, "A")
	im.Release(a)
	b := im.Create(desc, "B")

	if a.Index == b.Index && a.Generation == b.Generation {
		t.Fatalf("released handle should not equal the new one")
	}
	if im.IsValidHandle(a) {
		t.Fatalf("stale handle a still reports valid")
	}
	assertPanics(t, "Native(a) after release", func() { im.Native(a) })
	im.Release(b)
}

// S2 / property 5: two creates in one frame with identical names assert.
func TestNameUniquenessWithinFrame(t *testing.T) {
	im := NewImages(&fakeDevice{})
	desc := testImageDesc()
	im.Create(desc, "A")
	assertPanics(t, "duplicate name in same frame", func() {
		im.Create(desc, "A")
	})
}

// S3 / property 3: mark_for_debug excludes its slot from aliasing
// reuse even while released.
func TestMarkForDebugExcludesSlotFromAliasing(t *testing.T) {
	im := NewImages(&fakeDevice{})
	desc := testImageDesc()

	im.MarkForDebug("A")
	h := im.Create(desc, "A")
	active, ok := im.ActiveDebugHandle()
	if !ok || active.Index != h.Index {
		t.Fatalf("active debug handle not tracked")
	}
	im.Release(h)

	h2 := im.Create(desc, "B")
	if h2.Index == h.Index {
		t.Fatalf("create stomped the marked-for-debug slot")
	}
	im.Release(h2)
	im.Release(h)
}

// Property 4: a non-preserved slot still in use at StartFrame asserts.
func TestStartFrameDetectsLeak(t *testing.T) {
	im := NewImages(&fakeDevice{})
	im.Create(testImageDesc(), "A")
	assertPanics(t, "leaked slot at StartFrame", func() {
		im.StartFrame()
	})
}

// Preserve exempts a slot from the leak assertion for exactly one
// StartFrame boundary.
func TestPreserveSurvivesOneStartFrame(t *testing.T) {
	im := NewImages(&fakeDevice{})
	h := im.Create(testImageDesc(), "A")
	im.Preserve(h)
	im.StartFrame() // must not panic

	assertPanics(t, "preserve is one-shot", func() {
		im.StartFrame()
	})
	im.Release(h)
}

// Releasing a preserved resource is a programmer error.
func TestReleasingPreservedResourcePanics(t *testing.T) {
	im := NewImages(&fakeDevice{})
	h := im.Create(testImageDesc(), "A")
	im.Preserve(h)
	assertPanics(t, "release on preserved resource", func() {
		im.Release(h)
	})
}

// MipView caches views per level and returns the same handle on a
// repeated request for the same level.
func TestMipViewIsCached(t *testing.T) {
	im := NewImages(&fakeDevice{})
	desc := testImageDesc()
	desc.Levels = 4
	h := im.Create(desc, "A")

	v0a := im.MipView(h, 0)
	v0b := im.MipView(h, 0)
	v1 := im.MipView(h, 1)
	if v0a != v0b {
		t.Fatalf("MipView(0) not cached: %v != %v", v0a, v0b)
	}
	if v0a == v1 {
		t.Fatalf("MipView(0) and MipView(1) returned the same view")
	}
	im.Release(h)
}

// DestroyResources invalidates every outstanding handle and empties
// the collection.
func TestDestroyResourcesInvalidatesHandles(t *testing.T) {
	im := NewImages(&fakeDevice{})
	h := im.Create(testImageDesc(), "A")
	im.DestroyResources()
	if im.IsValidHandle(h) {
		t.Fatalf("handle still valid after DestroyResources")
	}
}
