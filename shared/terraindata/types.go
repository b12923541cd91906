// Package terraindata parses ground elevation from TMX maps. It is pure data:
// no collision spaces or entity state, so peers and tools can share it.
package terraindata

// ElevationData holds every elevated tile of one map. Map X runs along world
// X and map Y along world Z. Sizes are in world units.
type ElevationData struct {
	Tiles     []ElevationTile
	MapWidth  int
	MapDepth  int
	TileWidth int
	TileDepth int
}

// ElevationTile is one ground cell with a constant height.
type ElevationTile struct {
	X, Z, W, D float64
	Elevation  float64
}
