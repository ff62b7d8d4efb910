package systems

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
	"github.com/spaghettifunk/assetstream/engine/renderer/software"
)

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Count(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), substr)
}

// metricValue sums every sample of the named counter or gauge family.
func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

// textureUpload builds a pending upload for a w x h texture filled with fill
// whose device image already exists.
func textureUpload(t *testing.T, d *software.Device, handle metadata.AssetHandle, w, h uint32, fill byte) metadata.PendingUpload {
	t.Helper()
	texture := &metadata.Texture{}
	texture.SetData(&metadata.ImageData{
		Width:  w,
		Height: h,
		Pixels: bytes.Repeat([]byte{fill}, int(w*h*4)),
	})
	image, err := d.CreateImage(metadata.ImageDesc{Label: "test", TextureDesc: texture.Desc})
	require.NoError(t, err)
	texture.Image = image

	return metadata.PendingUpload{Handle: handle, Payload: texture, Size: texture.Footprint()}
}

// gatedDevice holds chosen submissions, counted from zero, until the test
// opens them. Every held submission announces itself on entered first.
type gatedDevice struct {
	*software.Device
	entered chan int

	mu     sync.Mutex
	count  int
	gates  map[int]chan struct{}
	closed map[int]bool
}

func newGatedDevice(device *software.Device, held ...int) *gatedDevice {
	g := &gatedDevice{
		Device:  device,
		entered: make(chan int, len(held)),
		gates:   make(map[int]chan struct{}),
		closed:  make(map[int]bool),
	}
	for _, n := range held {
		g.gates[n] = make(chan struct{})
	}
	return g
}

func (g *gatedDevice) Submit(commands []renderer.CopyCommand) (renderer.Fence, error) {
	g.mu.Lock()
	n := g.count
	g.count++
	gate := g.gates[n]
	g.mu.Unlock()

	if gate != nil {
		g.entered <- n
		<-gate
	}
	return g.Device.Submit(commands)
}

func (g *gatedDevice) open(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gate, ok := g.gates[n]; ok && !g.closed[n] {
		close(gate)
		g.closed[n] = true
	}
}

func (g *gatedDevice) openAll() {
	g.mu.Lock()
	held := make([]int, 0, len(g.gates))
	for n := range g.gates {
		held = append(held, n)
	}
	g.mu.Unlock()
	for _, n := range held {
		g.open(n)
	}
}
