package async

import "testing"

// TestPoolFrameAllocator_GetPutRoundTrips verifies a promise obtained via Get
// can be reused after Put and comes back zeroed.
func TestPoolFrameAllocator_GetPutRoundTrips(t *testing.T) {
	a := NewPoolFrameAllocator[int]()

	p := a.Get()
	p.result = 5
	p.panicked = true
	a.Put(p)

	p2 := a.Get()
	if p2.result != 0 || p2.panicked {
		t.Fatalf("Get() after Put returned dirty promise: %+v", p2)
	}
}

// TestDefaultAllocator_SingletonPerType verifies defaultAllocator returns the
// same allocator instance for repeated calls with the same type parameter.
func TestDefaultAllocator_SingletonPerType(t *testing.T) {
	a1 := defaultAllocator[string]()
	a2 := defaultAllocator[string]()
	if a1 != a2 {
		t.Fatal("defaultAllocator[string]() returned different instances across calls")
	}
}

// TestDefaultAllocator_DistinctPerType verifies different type parameters get
// distinct allocator instances (no cross-type promise pooling).
func TestDefaultAllocator_DistinctPerType(t *testing.T) {
	aInt := defaultAllocator[int]()
	aBool := defaultAllocator[bool]()
	var i any = aInt
	var b any = aBool
	if i == b {
		t.Fatal("defaultAllocator[int]() and defaultAllocator[bool]() returned the same instance")
	}
}
