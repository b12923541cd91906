// Package terrain clamps ground-relative entities onto map elevation. Tiles
// are indexed in a resolv space laid over the horizontal X,Z plane.
package terrain

import (
	"fmt"
	"log"
	"os"

	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/shared/terraindata"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/solarlune/resolv"
)

const (
	tagGround = "ground"
	tagProbe  = "probe"

	// One world unit keeps the probe inside a single cell.
	probeSize = 1
)

// Ground answers height queries for one map. Not safe for concurrent use.
type Ground struct {
	Space  *resolv.Space
	Offset float64 // added to the tile elevation, e.g. half a vehicle's height

	probe    *resolv.Object
	mapWidth float64
	mapDepth float64
}

// NewGround builds a resolv space from parsed elevation data.
func NewGround(data *terraindata.ElevationData, offset float64) *Ground {
	cellW, cellD := data.TileWidth, data.TileDepth
	if cellW <= 0 {
		cellW = 16
	}
	if cellD <= 0 {
		cellD = 16
	}
	space := resolv.NewSpace(data.MapWidth, data.MapDepth, cellW, cellD)

	for _, t := range data.Tiles {
		obj := resolv.NewObject(t.X, t.Z, t.W, t.D, tagGround)
		obj.SetShape(resolv.NewRectangle(0, 0, t.W, t.D))
		obj.Data = t.Elevation
		space.Add(obj)
	}

	probe := resolv.NewObject(0, 0, probeSize, probeSize, tagProbe)
	space.Add(probe)

	log.Printf("[terrain] loaded %d ground tiles, %dx%d map", len(data.Tiles), data.MapWidth, data.MapDepth)

	return &Ground{
		Space:    space,
		Offset:   offset,
		probe:    probe,
		mapWidth: float64(data.MapWidth),
		mapDepth: float64(data.MapDepth),
	}
}

// LoadGround loads a TMX map from disk.
func LoadGround(path string, offset float64) (*Ground, error) {
	data, err := terraindata.LoadElevation(os.DirFS("."), path)
	if err != nil {
		return nil, fmt.Errorf("load ground: %w", err)
	}
	return NewGround(data, offset), nil
}

// HeightAt returns the tile elevation under (x, z). Where tiles overlap the
// highest wins. ok is false off the map or over a gap.
func (g *Ground) HeightAt(x, z float64) (height float64, ok bool) {
	if x < 0 || z < 0 || x >= g.mapWidth || z >= g.mapDepth {
		return 0, false
	}

	g.probe.X = x
	g.probe.Y = z
	g.probe.Update()

	check := g.probe.Check(0, 0, tagGround)
	if check == nil {
		return 0, false
	}
	for _, obj := range check.ObjectsByTags(tagGround) {
		if x < obj.X || x >= obj.X+obj.W || z < obj.Y || z >= obj.Y+obj.H {
			continue
		}
		elevation, isFloat := obj.Data.(float64)
		if !isFloat {
			continue
		}
		if !ok || elevation > height {
			height = elevation
			ok = true
		}
	}
	return height, ok
}

// ClampToGround sets Y to the ground height plus Offset. Positions off the
// map are returned unchanged.
func (g *Ground) ClampToGround(_ deadreckoning.EntityID, position mgl64.Vec3) mgl64.Vec3 {
	height, ok := g.HeightAt(position.X(), position.Z())
	if !ok {
		return position
	}
	return mgl64.Vec3{position.X(), height + g.Offset, position.Z()}
}
