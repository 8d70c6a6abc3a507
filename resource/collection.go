// Package resource implements the transient, handle-based GPU
// resource collections (images, buffers, texel buffers) that render
// passes allocate from every frame, plus the transition-barrier
// batching built on top of them.
//
// A single generic Collection replaces the eight-type-parameter C++
// template the teacher's original design used (spec.md §9): the
// description/resource/state/barrier relationship becomes three type
// parameters plus two small constructor-supplied closures, rather
// than a family of near-identical template instantiations.
package resource

import (
	"fmt"

	"github.com/vkforge/prosper/gpu"
	"github.com/vkforge/prosper/handle"
)

// DebugChecks gates the assertions spec.md marks as debug-build-only
// (preserved-resource release, frame-leak detection). Production
// builds of the owning application may set this to false; tests
// leave it enabled.
var DebugChecks = true

// Matcher is implemented by a resource Description type: it reports
// whether two descriptions could share the same underlying
// allocation.
type Matcher[D any] interface {
	Matches(D) bool
}

// Handle is a generation-tagged reference into a Collection. K is a
// phantom marker type (see ImageKind, BufferKind, TexelBufferKind)
// that keeps handles from different collection kinds from being
// accidentally interchanged at compile time.
type Handle[K any] struct {
	handle.Handle
}

// Null returns the null handle for K.
func Null[K any]() Handle[K] { return Handle[K]{handle.Null()} }

// Collection is a generic pool of resource slots addressed by
// generation-tagged Handle[K] values. D is the resource's semantic
// description, R is the native resource pairing (e.g. a created
// buffer or image), K is the handle's phantom marker.
type Collection[K any, D Matcher[D], R any] struct {
	dev gpu.Device

	newResource     func(dev gpu.Device, desc D, debugName string) R
	destroyResource func(dev gpu.Device, r R)

	descriptions []D
	resources    []R
	generations  []uint64
	aliasedNames []string
	preserved    []bool

	frameDebugNames map[string]bool

	markedName   string
	markedSet    bool
	markedHandle Handle[K]
}

// NewCollection creates an empty collection. newResource is called to
// create a fresh native resource when no free slot's description
// matches; destroyResource releases one on DestroyResources.
func NewCollection[K any, D Matcher[D], R any](dev gpu.Device, newResource func(gpu.Device, D, string) R, destroyResource func(gpu.Device, R)) *Collection[K, D, R] {
	return &Collection[K, D, R]{
		dev:             dev,
		newResource:     newResource,
		destroyResource: destroyResource,
		frameDebugNames: make(map[string]bool),
	}
}

func (c *Collection[K, D, R]) inUse(i int) bool { return handle.InUse(c.generations[i]) }

// assertUniqueName enforces invariant 3: no two Create/AppendDebugName
// calls in a frame may pass the same name.
func (c *Collection[K, D, R]) assertUniqueName(name string) {
	if c.frameDebugNames[name] {
		panic(fmt.Sprintf("resource: debug name %q reused within the same frame", name))
	}
	c.frameDebugNames[name] = true
}

// stompsMarked reports whether reusing slot i for aliasing would
// stomp the resource currently tracked for debug display (invariant
// 6): true iff i is the marked slot.
func (c *Collection[K, D, R]) stompsMarked(i int) bool {
	return c.markedSet && c.markedHandle.Index == uint32(i)
}

// Create scans for a free, matching slot to alias; if none is found
// a fresh native resource is allocated. debugName must be unique
// within the current frame.
func (c *Collection[K, D, R]) Create(desc D, debugName string) Handle[K] {
	for i := range c.descriptions {
		if c.inUse(i) {
			continue
		}
		if !c.descriptions[i].Matches(desc) {
			continue
		}
		if c.stompsMarked(i) {
			continue
		}
		c.generations[i] = handle.Acquire(c.generations[i])
		if c.aliasedNames[i] == "" {
			c.aliasedNames[i] = debugName
		} else {
			c.aliasedNames[i] += "|" + debugName
		}
		c.assertUniqueName(debugName)
		h := Handle[K]{handle.Handle{Index: uint32(i), Generation: c.generations[i]}}
		if c.markedSet && debugName == c.markedName {
			c.markedHandle = h
		}
		return h
	}

	r := c.newResource(c.dev, desc, debugName)
	c.descriptions = append(c.descriptions, desc)
	c.resources = append(c.resources, r)
	c.generations = append(c.generations, 0)
	c.aliasedNames = append(c.aliasedNames, debugName)
	c.preserved = append(c.preserved, false)
	c.assertUniqueName(debugName)

	h := Handle[K]{handle.Handle{Index: uint32(len(c.resources) - 1), Generation: 0}}
	if c.markedSet && debugName == c.markedName {
		c.markedHandle = h
	}
	return h
}

// IsValidHandle reports whether h resolves to an in-use slot of this
// collection. The marked-debug slot additionally accepts a handle one
// generation behind the stored one (comparing the generation counter
// with the not-in-use flag cleared), so a view that grabbed a handle
// just before release can still resolve it this frame.
func (c *Collection[K, D, R]) IsValidHandle(h Handle[K]) bool {
	if !h.IsValid() || int(h.Index) >= len(c.resources) {
		return false
	}
	stored := c.generations[h.Index]
	if h.Generation == stored {
		return true
	}
	if c.stompsMarked(int(h.Index)) && handle.Acquire(stored) == h.Generation+1 {
		return true
	}
	return false
}

func (c *Collection[K, D, R]) assertValid(h Handle[K]) {
	if !c.IsValidHandle(h) {
		panic(fmt.Sprintf("resource: invalid or stale handle %+v", h))
	}
}

// Resource returns the native resource R referred to by h.
func (c *Collection[K, D, R]) Resource(h Handle[K]) R {
	c.assertValid(h)
	return c.resources[h.Index]
}

// MutResource returns a pointer into the collection's backing slot for
// h, letting the resource-specific wrapper (Images/Buffers/…) update
// per-resource state (e.g. current layout) in place.
func (c *Collection[K, D, R]) MutResource(h Handle[K]) *R {
	c.assertValid(h)
	return &c.resources[h.Index]
}

// Description returns the description of the slot h refers to.
func (c *Collection[K, D, R]) Description(h Handle[K]) D {
	c.assertValid(h)
	return c.descriptions[h.Index]
}

// AppendDebugName concatenates name to the slot's aliased debug name.
// name must be unique within the current frame.
func (c *Collection[K, D, R]) AppendDebugName(h Handle[K], name string) {
	c.assertValid(h)
	i := h.Index
	if c.aliasedNames[i] == "" {
		c.aliasedNames[i] = name
	} else {
		c.aliasedNames[i] += "|" + name
	}
	c.assertUniqueName(name)
}

// Preserve marks h's slot to survive the next StartFrame boundary
// without tripping the leak assertion. The resource must still be
// released at the proper point in its next life.
func (c *Collection[K, D, R]) Preserve(h Handle[K]) {
	c.assertValid(h)
	c.preserved[h.Index] = true
}

// Release invalidates h, making its slot eligible for aliasing again.
// Releasing a preserved slot panics when DebugChecks is enabled.
func (c *Collection[K, D, R]) Release(h Handle[K]) {
	c.assertValid(h)
	if DebugChecks && c.preserved[h.Index] {
		panic("resource: release called on a preserved resource")
	}
	c.generations[h.Index] = handle.Release(c.generations[h.Index])
}

// StartFrame asserts every non-preserved in-use slot was released
// (frame-leak detection), then clears per-frame bookkeeping: aliased
// names, the unique-name set, and the preserved flags.
func (c *Collection[K, D, R]) StartFrame() {
	if DebugChecks {
		for i := range c.resources {
			if c.inUse(i) && !c.preserved[i] {
				panic(fmt.Sprintf("resource: slot %d leaked across frame boundary (name %q)", i, c.aliasedNames[i]))
			}
		}
	}
	for i := range c.aliasedNames {
		c.aliasedNames[i] = ""
		c.preserved[i] = false
	}
	c.frameDebugNames = make(map[string]bool)
}

// DestroyResources destroys every native resource and invalidates all
// outstanding handles by bumping every slot's generation, then empties
// the collection. Used on e.g. swapchain recreation.
func (c *Collection[K, D, R]) DestroyResources() {
	for i := range c.generations {
		c.generations[i] = handle.Release(c.generations[i])
	}
	for i := range c.resources {
		c.destroyResource(c.dev, c.resources[i])
	}
	c.descriptions = c.descriptions[:0]
	c.resources = c.resources[:0]
	c.generations = c.generations[:0]
	c.aliasedNames = c.aliasedNames[:0]
	c.preserved = c.preserved[:0]
	c.markedHandle = Null[K]()
}

// DebugNames returns the aliased debug name of every slot, in slot
// order; an empty string means the slot currently has no aliased use
// this frame.
func (c *Collection[K, D, R]) DebugNames() []string {
	out := make([]string, len(c.aliasedNames))
	copy(out, c.aliasedNames)
	return out
}

// MarkForDebug registers debugName as the resource a debug view wants
// to keep addressable; matching Create calls are excluded from
// aliasing reuse (invariant 6) and get the generation off-by-one
// validity exception.
func (c *Collection[K, D, R]) MarkForDebug(debugName string) {
	c.markedName = debugName
	c.markedSet = true
	c.markedHandle = Null[K]()
}

// ClearDebug forgets the marked-for-debug resource.
func (c *Collection[K, D, R]) ClearDebug() {
	c.markedName = ""
	c.markedSet = false
	c.markedHandle = Null[K]()
}

// ActiveDebugHandle returns the handle currently resolved for the
// marked-for-debug name, if any has been created yet.
func (c *Collection[K, D, R]) ActiveDebugHandle() (Handle[K], bool) {
	if !c.markedSet || !c.markedHandle.IsValid() {
		return Null[K](), false
	}
	return c.markedHandle, true
}

// ActiveDebugName returns the aliased name of the marked-for-debug
// resource's slot, if any.
func (c *Collection[K, D, R]) ActiveDebugName() (string, bool) {
	h, ok := c.ActiveDebugHandle()
	if !ok {
		return "", false
	}
	return c.aliasedNames[h.Index], true
}

