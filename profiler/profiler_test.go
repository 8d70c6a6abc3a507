package profiler

import "testing"

func assertPanics(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic, got none", what)
		}
	}()
	fn()
}

// Property S4: every call made out of the NewFrame → StartCpuCalled →
// StartGpuCalled → EndGpuCalled sequence panics rather than silently
// reading/writing stale state.
func TestStateMachineViolationsPanic(t *testing.T) {
	assertPanics(t, "StartGpuFrame before StartCpuFrame", func() {
		(&Profiler{}).StartGpuFrame(0)
	})
	assertPanics(t, "EndGpuFrame before StartGpuFrame", func() {
		(&Profiler{}).EndGpuFrame(nil)
	})
	assertPanics(t, "CreateCpuGpuScope before StartGpuFrame", func() {
		(&Profiler{}).CreateCpuGpuScope(nil, "scope", false)
	})
	assertPanics(t, "EndCpuFrame before EndGpuFrame", func() {
		(&Profiler{}).EndCpuFrame()
	})
	assertPanics(t, "GetPreviousData before StartGpuFrame", func() {
		(&Profiler{}).GetPreviousData()
	})
}

func TestStartCpuFrameFromFreshProfilerSucceeds(t *testing.T) {
	p := &Profiler{}
	p.StartCpuFrame()
	if p.st != startCpuCalled {
		t.Fatalf("state after StartCpuFrame\nhave %d\nwant %d", p.st, startCpuCalled)
	}
}

// Property S8: CPU scopes must be created in index order; a profiler
// restarting a scope at an already-consumed index is a misuse, not a
// recoverable condition.
func TestCpuFrameProfilerScopeIndexOrder(t *testing.T) {
	c := &cpuFrameProfiler{}
	c.startFrame()
	end := c.createScope(0)
	end()
	if len(c.durs) != 1 {
		t.Fatalf("scope count\nhave %d\nwant 1", len(c.durs))
	}
	assertPanics(t, "scope created out of index order", func() {
		c.createScope(0)
	})
}

func TestCpuFrameProfilerTimingNonNegative(t *testing.T) {
	c := &cpuFrameProfiler{}
	c.startFrame()
	end := c.createScope(0)
	end()
	if c.durs[0] < 0 {
		t.Fatalf("scope duration\nhave %v\nwant >= 0", c.durs[0])
	}
}

func TestBytesToU64RoundTrip(t *testing.T) {
	b := []byte{
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x80,
	}
	got := bytesToU64(b)
	want := []uint64{1, 0x8000000000000000}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("bytesToU64\nhave %#x\nwant %#x", got, want)
	}
}

func TestBytesToU32RoundTrip(t *testing.T) {
	b := []byte{0x2a, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff}
	got := bytesToU32(b)
	want := []uint32{42, 0xffffffff}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("bytesToU32\nhave %#x\nwant %#x", got, want)
	}
}

// Property S9: GetPreviousData merges scope names with their GPU
// timing/statistics and CPU timing purely by index, independent of
// the order results were collected in.
func TestGetPreviousDataMergesGpuAndCpuByIndex(t *testing.T) {
	p := &Profiler{
		st:                 startGpuCalled,
		currentFrame:       0,
		previousScopeNames: [][]string{{"upload", "shade"}},
		previousCpuMillis:  [][]float32{{1.5, 2.5}},
		previousGpuData: []gpuScopeResult{
			{index: 1, millis: 4.0, hasStat: true, stats: &PipelineStatistics{ClipPrimitives: 7, FragInvocations: 9}},
			{index: 0, millis: 3.0},
		},
	}
	got := p.GetPreviousData()
	if len(got) != 2 {
		t.Fatalf("scope count\nhave %d\nwant 2", len(got))
	}
	if got[0].Name != "upload" || got[0].CpuMillis != 1.5 || got[0].GpuMillis != 3.0 || got[0].Stats != nil {
		t.Fatalf("scope 0\nhave %+v\nwant {upload 1.5 3.0 <nil>}", got[0])
	}
	if got[1].Name != "shade" || got[1].CpuMillis != 2.5 || got[1].GpuMillis != 4.0 {
		t.Fatalf("scope 1\nhave %+v\nwant {shade 2.5 4.0 ...}", got[1])
	}
	if got[1].Stats == nil || got[1].Stats.ClipPrimitives != 7 || got[1].Stats.FragInvocations != 9 {
		t.Fatalf("scope 1 stats\nhave %+v\nwant {7 9}", got[1].Stats)
	}
}

// A frame-in-flight slot that has never completed an iteration yields
// no previous data rather than stale zeroed entries.
func TestGetPreviousDataEmptyBeforeFirstRotation(t *testing.T) {
	p := &Profiler{
		st:                 startGpuCalled,
		currentFrame:       0,
		previousScopeNames: [][]string{nil},
		previousCpuMillis:  [][]float32{nil},
	}
	if got := p.GetPreviousData(); got != nil {
		t.Fatalf("previous data before first rotation\nhave %v\nwant nil", got)
	}
}
