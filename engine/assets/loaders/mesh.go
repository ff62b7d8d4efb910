package loaders

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spaghettifunk/assetstream/engine/math"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

type objCorner struct {
	position int
	uv       int
	normal   int
}

type objParser struct {
	positions []math.Vec3
	uvs       []math.Vec2
	normals   []math.Vec3

	vertices  []math.Vertex
	indices   []uint32
	submeshes []metadata.Submesh
	dedup     map[objCorner]uint32
}

// MeshLoader reads Wavefront OBJ geometry. Polygons are triangulated as fans,
// every "o" or "g" statement starts a new submesh and faces without normals
// get a flat face normal.
type MeshLoader struct{}

func (ml *MeshLoader) Load(path string) (*metadata.Resource, error) {
	src, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	p := &objParser{dedup: make(map[objCorner]uint32)}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := p.parseLine(scanner.Text()); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data := p.finish()
	return &metadata.Resource{
		Name:     "obj",
		FullPath: path,
		Type:     metadata.AssetTypeMesh,
		DataSize: uint64(len(data.Vertices))*math.VertexSize + uint64(len(data.Indices))*math.IndexSize,
		Data:     data,
	}, nil
}

func (p *objParser) parseLine(text string) error {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "v":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.positions = append(p.positions, math.NewVec3(v[0], v[1], v[2]))
	case "vt":
		v, err := parseFloats(fields[1:], 2)
		if err != nil {
			return err
		}
		p.uvs = append(p.uvs, math.NewVec2(v[0], v[1]))
	case "vn":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.normals = append(p.normals, math.NewVec3(v[0], v[1], v[2]).Normalize())
	case "o", "g":
		p.closeSubmesh()
	case "f":
		return p.parseFace(fields[1:])
	}
	// mtllib, usemtl, s and friends carry nothing the pipeline uploads.
	return nil
}

func (p *objParser) parseFace(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("face needs at least 3 vertices, got %d", len(fields))
	}

	corners := make([]objCorner, len(fields))
	for i, f := range fields {
		c, err := p.parseCorner(f)
		if err != nil {
			return err
		}
		corners[i] = c
	}

	for i := 1; i+1 < len(corners); i++ {
		tri := [3]objCorner{corners[0], corners[i], corners[i+1]}
		if tri[0].normal < 0 || tri[1].normal < 0 || tri[2].normal < 0 {
			p.appendFlat(tri)
			continue
		}
		for _, c := range tri {
			p.indices = append(p.indices, p.vertexFor(c))
		}
	}
	return nil
}

// parseCorner resolves a "v", "v/vt", "v//vn" or "v/vt/vn" reference to
// zero-based indices. Missing components are -1.
func (p *objParser) parseCorner(field string) (objCorner, error) {
	parts := strings.Split(field, "/")
	c := objCorner{position: -1, uv: -1, normal: -1}

	var err error
	if c.position, err = resolveIndex(parts[0], len(p.positions)); err != nil {
		return c, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if c.uv, err = resolveIndex(parts[1], len(p.uvs)); err != nil {
			return c, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if c.normal, err = resolveIndex(parts[2], len(p.normals)); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (p *objParser) vertexFor(c objCorner) uint32 {
	if idx, ok := p.dedup[c]; ok {
		return idx
	}
	idx := uint32(len(p.vertices))
	p.vertices = append(p.vertices, p.makeVertex(c, p.normals[c.normal]))
	p.dedup[c] = idx
	return idx
}

func (p *objParser) appendFlat(tri [3]objCorner) {
	a := p.positions[tri[0].position]
	b := p.positions[tri[1].position]
	c := p.positions[tri[2].position]
	normal := b.Sub(a).Cross(c.Sub(a)).Normalize()

	for _, corner := range tri {
		p.indices = append(p.indices, uint32(len(p.vertices)))
		p.vertices = append(p.vertices, p.makeVertex(corner, normal))
	}
}

func (p *objParser) makeVertex(c objCorner, normal math.Vec3) math.Vertex {
	v := math.Vertex{
		Position: p.positions[c.position],
		Normal:   normal,
		Colour:   math.NewVec4One(),
	}
	if c.uv >= 0 {
		v.UVX = p.uvs[c.uv].X
		v.UVY = p.uvs[c.uv].Y
	}
	return v
}

func (p *objParser) closeSubmesh() {
	var start uint32
	if n := len(p.submeshes); n > 0 {
		last := p.submeshes[n-1]
		start = last.IndexOffset + last.IndexCount
	}
	if count := uint32(len(p.indices)) - start; count > 0 {
		p.submeshes = append(p.submeshes, metadata.Submesh{IndexOffset: start, IndexCount: count})
	}
}

func (p *objParser) finish() *metadata.MeshData {
	p.closeSubmesh()
	return &metadata.MeshData{
		Vertices:  p.vertices,
		Indices:   p.indices,
		Submeshes: p.submeshes,
	}
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// resolveIndex turns a one-based (or negative, relative) OBJ index into a
// zero-based one bounded by count.
func resolveIndex(s string, count int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return -1, err
	}
	switch {
	case i > 0:
		i--
	case i < 0:
		i += count
	default:
		return -1, fmt.Errorf("index 0 is not valid")
	}
	if i < 0 || i >= count {
		return -1, fmt.Errorf("index %s out of range (%d defined)", s, count)
	}
	return i, nil
}
