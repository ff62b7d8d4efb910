package systems

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
	"github.com/spaghettifunk/assetstream/engine/renderer/software"
)

func TestAssetRegistry_HandlesAreMonotonic(t *testing.T) {
	ar := NewAssetRegistry(core.NewIdentifier())

	var last metadata.AssetHandle
	for i := 0; i < 50; i++ {
		var payload metadata.Payload = &metadata.Mesh{}
		if i%2 == 1 {
			payload = &metadata.Texture{}
		}
		h := ar.Register(payload, "asset")
		assert.Greater(t, h, last)
		last = h
	}
	assert.Equal(t, 50, ar.Len())

	r, ok := ar.Get(2)
	require.True(t, ok)
	assert.Equal(t, metadata.AssetTypeTexture, r.Type)
	assert.False(t, r.IsReady())

	_, ok = ar.Get(metadata.InvalidAssetHandle)
	assert.False(t, ok)
	_, ok = ar.Get(51)
	assert.False(t, ok)
}

func TestAssetRegistry_MarkReadyOnce(t *testing.T) {
	ar := NewAssetRegistry(nil)
	h := ar.Register(&metadata.Mesh{}, "a.obj")

	assert.True(t, ar.MarkReady(h))
	assert.False(t, ar.MarkReady(h))
	assert.False(t, ar.MarkReady(h+1))

	r, _ := ar.Get(h)
	assert.True(t, r.IsReady())
}

func TestAssetRegistry_ConcurrentRegister(t *testing.T) {
	ar := NewAssetRegistry(core.NewIdentifier())

	const goroutines = 8
	const each = 200
	handles := make(chan metadata.AssetHandle, goroutines*each)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				h := ar.Register(&metadata.Texture{}, "t.png")
				_, ok := ar.Get(h)
				assert.True(t, ok)
				handles <- h
			}
		}()
	}
	wg.Wait()
	close(handles)

	var all []int
	for h := range handles {
		all = append(all, int(h))
	}
	sort.Ints(all)
	for i, h := range all {
		assert.Equal(t, i+1, h)
	}
}

func TestAssetRegistry_EachAndRelease(t *testing.T) {
	d := software.NewDevice()
	ar := NewAssetRegistry(nil)

	vb, err := d.CreateBuffer(metadata.BufferDesc{Size: 48})
	require.NoError(t, err)
	mesh := &metadata.Mesh{Vertices: make([]metadata.Vertex, 1), VertexBuffer: vb}
	ar.Register(mesh, "a.obj")

	up := textureUpload(t, d, 0, 1, 1, 0xff)
	ar.Register(up.Payload, "b.png")

	var seen []metadata.AssetHandle
	ar.Each(func(r *AssetRecord) bool {
		seen = append(seen, r.Handle)
		return true
	})
	assert.Equal(t, []metadata.AssetHandle{1, 2}, seen)

	buffers, images := d.LiveResources()
	assert.Equal(t, 1, buffers)
	assert.Equal(t, 1, images)

	ar.Release(d)

	buffers, images = d.LiveResources()
	assert.Zero(t, buffers)
	assert.Zero(t, images)
	assert.Nil(t, mesh.VertexBuffer)
	assert.Nil(t, mesh.Vertices)
	assert.Zero(t, ar.Len())
}
