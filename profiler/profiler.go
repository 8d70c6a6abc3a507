// Package profiler implements the paired CPU/GPU frame profiler: one
// CpuFrameProfiler tracking wall-clock scope durations and one
// GpuFrameProfiler per frame-in-flight slot, each owning a timestamp
// query pool and a pipeline-statistics query pool with a one-frame
// (frame-in-flight) delayed readback.
package profiler

import (
	"fmt"
	"time"

	"github.com/vkforge/prosper/gpu"
	vk "github.com/vulkan-go/vulkan"
)

// maxScopes bounds how many scopes a single frame may create; each
// scope consumes two timestamp queries and, if it collects
// statistics, one statistics query.
const maxScopes = 512

const statTypeCount = 2 // ClippingPrimitives, FragmentShaderInvocations

const statisticsFlags = vk.QueryPipelineStatisticFlags(
	vk.QueryPipelineStatisticClippingPrimitivesBit | vk.QueryPipelineStatisticFragmentShaderInvocationsBit)

// state is the profiler's call-order state machine: NewFrame →
// StartCpuCalled → StartGpuCalled → EndGpuCalled → NewFrame. Any call
// out of sequence panics, matching the spec's programmer-misuse
// taxonomy.
type state int

const (
	newFrame state = iota
	startCpuCalled
	startGpuCalled
	endGpuCalled
)

// PipelineStatistics is the pair of counters collected by a
// statistics-carrying GPU scope.
type PipelineStatistics struct {
	ClipPrimitives  uint32
	FragInvocations uint32
}

// ScopeData is one scope's resolved timing/statistics, read one
// frame-in-flight rotation after it was recorded.
type ScopeData struct {
	Name      string
	CpuMillis float32
	GpuMillis float32
	// Stats is nil for scopes created without statistics collection.
	Stats *PipelineStatistics
}

type gpuScopeResult struct {
	index   uint32
	millis  float32
	stats   *PipelineStatistics
	hasStat bool
}

// gpuFrameProfiler owns one frame-in-flight slot's query pools and
// CPU-visible readback buffers.
type gpuFrameProfiler struct {
	dev            gpu.Device
	timestampPool  vk.QueryPool
	statisticsPool vk.QueryPool
	timestampBuf   gpu.Buffer
	statisticsBuf  gpu.Buffer

	// queryCount is the dense count of query-pool slots consumed this
	// frame; scopeIndices records, for each slot in creation order,
	// which profiler-level scope index it belongs to (scope indices
	// run across both CPU-only and CPU+GPU scopes, so they are not
	// necessarily contiguous here).
	queryCount    int
	scopeIndices  []uint32
	scopeHasStats []bool
}

func newGpuFrameProfiler(dev gpu.Device) *gpuFrameProfiler {
	g := &gpuFrameProfiler{dev: dev}

	tsInfo := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: maxScopes * 2,
	}
	if res := vk.CreateQueryPool(dev.Handle(), &tsInfo, nil, &g.timestampPool); res != vk.Success {
		panic(fmt.Sprintf("profiler: CreateQueryPool(timestamp) failed: %v", res))
	}
	statInfo := vk.QueryPoolCreateInfo{
		SType:               vk.StructureTypeQueryPoolCreateInfo,
		QueryType:           vk.QueryTypePipelineStatistics,
		QueryCount:          maxScopes,
		PipelineStatistics:  statisticsFlags,
	}
	if res := vk.CreateQueryPool(dev.Handle(), &statInfo, nil, &g.statisticsPool); res != vk.Success {
		panic(fmt.Sprintf("profiler: CreateQueryPool(statistics) failed: %v", res))
	}

	tsBuf, err := dev.CreateBuffer(gpu.BufferDesc{
		ByteSize:   8 * maxScopes * 2,
		Usage:      vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		HostMapped: true,
	}, "ProfilerTimestampReadback")
	if err != nil {
		panic(fmt.Sprintf("profiler: CreateBuffer(timestamp readback): %v", err))
	}
	g.timestampBuf = tsBuf

	statBuf, err := dev.CreateBuffer(gpu.BufferDesc{
		ByteSize:   4 * statTypeCount * maxScopes,
		Usage:      vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		HostMapped: true,
	}, "ProfilerStatisticsReadback")
	if err != nil {
		panic(fmt.Sprintf("profiler: CreateBuffer(statistics readback): %v", err))
	}
	g.statisticsBuf = statBuf

	return g
}

func (g *gpuFrameProfiler) destroy() {
	vk.DestroyQueryPool(g.dev.Handle(), g.timestampPool, nil)
	vk.DestroyQueryPool(g.dev.Handle(), g.statisticsPool, nil)
	g.dev.DestroyBuffer(g.timestampBuf)
	g.dev.DestroyBuffer(g.statisticsBuf)
}

// startFrame resets both query pools via a throwaway command buffer
// and clears this slot's per-scope bookkeeping.
func (g *gpuFrameProfiler) startFrame() {
	cb, err := g.dev.BeginGraphicsCommands()
	if err != nil {
		panic(fmt.Sprintf("profiler: BeginGraphicsCommands: %v", err))
	}
	vk.CmdResetQueryPool(cb, g.timestampPool, 0, maxScopes*2)
	vk.CmdResetQueryPool(cb, g.statisticsPool, 0, maxScopes)
	if err := g.dev.EndGraphicsCommands(cb); err != nil {
		panic(fmt.Sprintf("profiler: EndGraphicsCommands: %v", err))
	}
	g.queryCount = 0
	g.scopeIndices = g.scopeIndices[:0]
	g.scopeHasStats = g.scopeHasStats[:0]
}

func (g *gpuFrameProfiler) endFrame(cb vk.CommandBuffer) {
	n := uint32(g.queryCount)
	if n == 0 {
		return
	}
	vk.CmdCopyQueryPoolResults(cb, g.timestampPool, 0, n*2,
		g.timestampBuf.Handle, 0, 8, vk.QueryResultFlags(vk.QueryResult64Bit))
	vk.CmdCopyQueryPoolResults(cb, g.statisticsPool, 0, n,
		g.statisticsBuf.Handle, 0, 4*statTypeCount, vk.QueryResultFlags(0))
}

// createScope writes a TopOfPipe timestamp and, if includeStatistics,
// begins a statistics query at the next free query-pool slot, tagging
// it with scopeIndex (the profiler-level scope this belongs to, used
// later to merge results back by name). It returns a closure that
// ends the statistics query and writes a BottomOfPipe timestamp, meant
// to be invoked via defer at the scope's end.
func (g *gpuFrameProfiler) createScope(cb vk.CommandBuffer, scopeIndex uint32, includeStatistics bool) func() {
	querySlot := uint32(g.queryCount)
	if querySlot >= maxScopes {
		panic("profiler: ran out of per-frame GPU scopes")
	}
	g.queryCount++
	g.scopeIndices = append(g.scopeIndices, scopeIndex)
	g.scopeHasStats = append(g.scopeHasStats, includeStatistics)

	vk.CmdWriteTimestamp(cb, vk.PipelineStageTopOfPipeBit, g.timestampPool, querySlot*2)
	if includeStatistics {
		vk.CmdBeginQuery(cb, g.statisticsPool, querySlot, 0)
	}
	return func() {
		if includeStatistics {
			vk.CmdEndQuery(cb, g.statisticsPool, querySlot)
		}
		vk.CmdWriteTimestamp(cb, vk.PipelineStageBottomOfPipeBit, g.timestampPool, querySlot*2+1)
	}
}

// getData reads back the timestamp/statistics buffers for every scope
// recorded in the iteration of this slot that has just completed on
// the GPU. Garbage (zeroed) data if this slot has not completed a
// frame yet — callers must not read it before that has happened.
func (g *gpuFrameProfiler) getData(timestampPeriodNanos float64) []gpuScopeResult {
	out := make([]gpuScopeResult, len(g.scopeIndices))
	timestamps := bytesToU64(g.timestampBuf.Mapped)
	stats := bytesToU32(g.statisticsBuf.Mapped)

	for i, idx := range g.scopeIndices {
		start, end := timestamps[i*2], timestamps[i*2+1]
		nanos := float64(end-start) * timestampPeriodNanos
		hasStats := g.scopeHasStats[i]
		var ps *PipelineStatistics
		if hasStats {
			ps = &PipelineStatistics{
				ClipPrimitives:  stats[i*statTypeCount],
				FragInvocations: stats[i*statTypeCount+1],
			}
		}
		out[i] = gpuScopeResult{index: idx, millis: float32(nanos * 1e-6), stats: ps, hasStat: hasStats}
	}
	return out
}

func bytesToU64(b []byte) []uint64 {
	out := make([]uint64, len(b)/8)
	for i := range out {
		var v uint64
		for k := 0; k < 8; k++ {
			v |= uint64(b[i*8+k]) << (8 * k)
		}
		out[i] = v
	}
	return out
}

func bytesToU32(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		var v uint32
		for k := 0; k < 4; k++ {
			v |= uint32(b[i*4+k]) << (8 * k)
		}
		out[i] = v
	}
	return out
}

// cpuFrameProfiler tracks per-scope wall-clock durations for the
// current frame.
type cpuFrameProfiler struct {
	starts []time.Time
	durs   []time.Duration
}

func (c *cpuFrameProfiler) startFrame() {
	c.starts = c.starts[:0]
	c.durs = c.durs[:0]
}

func (c *cpuFrameProfiler) createScope(index int) func() {
	if index != len(c.durs) {
		panic("profiler: CPU scopes must be created in index order")
	}
	start := time.Now()
	c.durs = append(c.durs, 0)
	i := len(c.durs) - 1
	return func() { c.durs[i] = time.Since(start) }
}

// Profiler is the per-application profiler instance: one
// cpuFrameProfiler plus one gpuFrameProfiler per frame-in-flight slot,
// the call-order state machine, and the one-rotation-delayed
// name/timing snapshots that make getPreviousData return sensible
// data.
type Profiler struct {
	dev                 gpu.Device
	cpu                 cpuFrameProfiler
	gpuProfilers        []*gpuFrameProfiler
	timestampPeriodNS   float64

	st           state
	currentFrame uint32

	currentFrameScopeNames []string
	previousScopeNames     [][]string
	previousCpuMillis      [][]float32
	previousGpuData        []gpuScopeResult
}

// New creates a Profiler with one gpuFrameProfiler per frame-in-flight
// slot.
func New(dev gpu.Device, framesInFlight uint32) *Profiler {
	p := &Profiler{
		dev:               dev,
		timestampPeriodNS: float64(dev.TimestampPeriod()),
	}
	p.gpuProfilers = make([]*gpuFrameProfiler, framesInFlight)
	p.previousScopeNames = make([][]string, framesInFlight)
	p.previousCpuMillis = make([][]float32, framesInFlight)
	for i := range p.gpuProfilers {
		p.gpuProfilers[i] = newGpuFrameProfiler(dev)
	}
	return p
}

// Destroy releases every GPU profiler's native objects.
func (p *Profiler) Destroy() {
	for _, g := range p.gpuProfilers {
		g.destroy()
	}
}

func (p *Profiler) requireState(want state, call string) {
	if p.st != want {
		panic(fmt.Sprintf("profiler: %s called out of order (state %d, want %d)", call, p.st, want))
	}
}

// StartCpuFrame begins a new frame's scope recording.
func (p *Profiler) StartCpuFrame() {
	p.requireState(newFrame, "StartCpuFrame")
	p.currentFrameScopeNames = p.currentFrameScopeNames[:0]
	p.cpu.startFrame()
	p.st = startCpuCalled
}

// StartGpuFrame selects frameIndex's GPU profiler slot, first
// snapshotting the previous iteration's readback (before resetting
// its query pools), then resetting it for this iteration.
func (p *Profiler) StartGpuFrame(frameIndex uint32) {
	p.requireState(startCpuCalled, "StartGpuFrame")
	if frameIndex >= uint32(len(p.gpuProfilers)) {
		panic("profiler: frame index out of range")
	}
	p.currentFrame = frameIndex
	p.previousGpuData = p.gpuProfilers[frameIndex].getData(p.timestampPeriodNS)
	p.gpuProfilers[frameIndex].startFrame()
	p.st = startGpuCalled
}

// EndGpuFrame issues the GPU-side readback copy for this iteration.
func (p *Profiler) EndGpuFrame(cb vk.CommandBuffer) {
	p.requireState(startGpuCalled, "EndGpuFrame")
	p.gpuProfilers[p.currentFrame].endFrame(cb)
	p.st = endGpuCalled
}

// EndCpuFrame overwrites this frame-in-flight slot's previous
// name/timing snapshot with what was just collected and returns the
// state machine to NewFrame.
func (p *Profiler) EndCpuFrame() {
	p.requireState(endGpuCalled, "EndCpuFrame")
	names := make([]string, len(p.currentFrameScopeNames))
	copy(names, p.currentFrameScopeNames)
	p.previousScopeNames[p.currentFrame] = names

	millis := make([]float32, len(p.cpu.durs))
	for i, d := range p.cpu.durs {
		millis[i] = float32(d.Microseconds()) / 1000
	}
	p.previousCpuMillis[p.currentFrame] = millis

	p.st = newFrame
}

// CreateCpuGpuScope opens a paired CPU+GPU scope named name, returning
// a closure to call via defer at the scope's end.
func (p *Profiler) CreateCpuGpuScope(cb vk.CommandBuffer, name string, includeStatistics bool) func() {
	p.requireState(startGpuCalled, "CreateCpuGpuScope")
	index := len(p.currentFrameScopeNames)
	if index >= maxScopes {
		panic("profiler: ran out of per-frame scopes")
	}
	p.currentFrameScopeNames = append(p.currentFrameScopeNames, name)

	endGpu := p.gpuProfilers[p.currentFrame].createScope(cb, uint32(index), includeStatistics)
	endCpu := p.cpu.createScope(index)
	return func() {
		endGpu()
		endCpu()
	}
}

// CreateCpuScope opens a CPU-only scope named name.
func (p *Profiler) CreateCpuScope(name string) func() {
	if p.st != startCpuCalled && p.st != startGpuCalled {
		panic("profiler: CreateCpuScope called out of order")
	}
	index := len(p.currentFrameScopeNames)
	if index >= maxScopes {
		panic("profiler: ran out of per-frame scopes")
	}
	p.currentFrameScopeNames = append(p.currentFrameScopeNames, name)
	return p.cpu.createScope(index)
}

// GetPreviousData returns each scope's CPU/GPU timing and statistics
// from the iteration of the current frame index that has just
// completed on the GPU. Empty until this frame index has completed
// at least once.
func (p *Profiler) GetPreviousData() []ScopeData {
	p.requireState(startGpuCalled, "GetPreviousData")

	names := p.previousScopeNames[p.currentFrame]
	if len(names) == 0 {
		return nil
	}
	out := make([]ScopeData, len(names))
	for i, n := range names {
		out[i].Name = n
	}
	for _, g := range p.previousGpuData {
		if int(g.index) < len(out) {
			out[g.index].GpuMillis = g.millis
			if g.hasStat {
				out[g.index].Stats = g.stats
			}
		}
	}
	cpuMillis := p.previousCpuMillis[p.currentFrame]
	for i, m := range cpuMillis {
		if i < len(out) {
			out[i].CpuMillis = m
		}
	}
	return out
}
