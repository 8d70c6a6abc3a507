// Package handle implements the generation-tagged resource handle
// shared by every render-resource collection.
package handle

// NullIndex is the sentinel index of a null Handle.
const NullIndex = 0xFFFFFFFF

// notInUseFlag is the top bit of a generation: set means the slot the
// handle refers to is currently free (not in use).
const notInUseFlag = uint64(1) << 63

// Handle is an opaque (index, generation) token identifying a slot in
// a resource collection. The zero value addresses slot 0 at
// generation 0, the first handle a collection hands out, and is not
// the null handle; use Null to construct a null handle explicitly.
type Handle struct {
	Index      uint32
	Generation uint64
}

// Null returns the null handle.
func Null() Handle { return Handle{Index: NullIndex} }

// IsValid reports whether h is non-null. It does not check the
// handle against any collection's slot state; callers go through
// Collection.IsValidHandle for that.
func (h Handle) IsValid() bool { return h.Index != NullIndex }

// InUse reports whether generation g marks a slot as currently in
// use (i.e. the not-in-use flag is clear).
func InUse(g uint64) bool { return g&notInUseFlag == 0 }

// Release returns the generation that results from releasing a slot
// currently at generation g: incremented, with the not-in-use flag
// set.
func Release(g uint64) uint64 { return (g + 1) | notInUseFlag }

// Acquire returns the generation that results from reusing a free
// slot currently at generation g: the not-in-use flag cleared, the
// counter otherwise unchanged.
func Acquire(g uint64) uint64 { return g &^ notInUseFlag }
