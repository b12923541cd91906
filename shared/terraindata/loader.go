package terraindata

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/lafriks/go-tiled"
)

const (
	// LayerName is the tile layer read for ground heights.
	LayerName = "terrain"
	// ElevationProperty is the tileset tile property holding the height.
	ElevationProperty = "elevation"
)

// LoadElevation parses a TMX file and returns its elevated tiles. Tiles
// without an elevation property sit at height 0. It takes an fs.FS so callers
// can pass embed.FS or os.DirFS.
func LoadElevation(fsys fs.FS, tmxPath string) (*ElevationData, error) {
	m, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}

	data := &ElevationData{
		MapWidth:  m.Width * m.TileWidth,
		MapDepth:  m.Height * m.TileHeight,
		TileWidth: m.TileWidth,
		TileDepth: m.TileHeight,
	}

	tileW := float64(m.TileWidth)
	tileD := float64(m.TileHeight)
	for _, layer := range m.Layers {
		if layer.Name != LayerName {
			continue
		}
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				tile := layer.Tiles[y*m.Width+x]
				if tile.IsNil() {
					continue
				}

				elevation := 0.0
				if tsTile, err := tile.Tileset.GetTilesetTile(tile.ID); err == nil {
					if raw := tsTile.Properties.GetString(ElevationProperty); raw != "" {
						elevation, err = strconv.ParseFloat(raw, 64)
						if err != nil {
							return nil, fmt.Errorf("%s: tile %d at (%d,%d): bad %s %q: %w",
								tmxPath, tile.ID, x, y, ElevationProperty, raw, err)
						}
					}
				}

				data.Tiles = append(data.Tiles, ElevationTile{
					X:         float64(x) * tileW,
					Z:         float64(y) * tileD,
					W:         tileW,
					D:         tileD,
					Elevation: elevation,
				})
			}
		}
		return data, nil
	}

	return nil, fmt.Errorf("%s: no %q layer", tmxPath, LayerName)
}

// LoadAll discovers every .tmx file in dir within fsys and loads it, keyed by
// stem name, plus the sorted list of names.
func LoadAll(fsys fs.FS, dir string) (map[string]*ElevationData, []string, error) {
	pattern := dir + "/*.tmx"
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("no .tmx files found in %s", dir)
	}

	maps := make(map[string]*ElevationData, len(matches))
	names := make([]string, 0, len(matches))
	for _, path := range matches {
		data, err := LoadElevation(fsys, path)
		if err != nil {
			return nil, nil, err
		}
		stem := strings.TrimSuffix(filepath.Base(path), ".tmx")
		maps[stem] = data
		names = append(names, stem)
	}

	sort.Strings(names)
	return maps, names, nil
}
