// internal/mapgen/generator.go
package mapgen

import (
	"math"
	"math/rand"

	"github.com/dhconnelly/rtreego"
	"github.com/jason-s-yu/neonmarble/internal/models"
)

// Config holds the playfield layout parameters.
type Config struct {
	Padding          float64 // subtracted from the viewport width
	MinWidth         float64
	MaxWidth         float64
	HeightMultiplier float64 // map height relative to the viewport height
	MinHeight        float64

	MarbleRadius float64
	MarbleStartY float64
	GoalOffsetY  float64 // goal distance from the bottom edge
	GoalRadius   float64

	SafeZoneTop    float64 // obstacle-free band below the top edge
	SafeZoneBottom float64 // obstacle-free band above the bottom edge
	EdgeMargin     float64 // min distance between an obstacle and a side wall
	MinGap         float64 // min distance between two obstacles

	CellSize        float64
	FillRatio       float64 // target fraction of cells holding an obstacle
	AttemptsPerCell int

	Catalog []Module
	Palette []string
}

// DefaultConfig returns the standard layout.
func DefaultConfig() Config {
	return Config{
		Padding:          40,
		MinWidth:         240,
		MaxWidth:         400,
		HeightMultiplier: 5,
		MinHeight:        1200,
		MarbleRadius:     15,
		MarbleStartY:     80,
		GoalOffsetY:      80,
		GoalRadius:       35,
		SafeZoneTop:      150,
		SafeZoneBottom:   150,
		EdgeMargin:       20,
		MinGap:           10,
		CellSize:         80,
		FillRatio:        0.35,
		AttemptsPerCell:  3,
		Catalog:          DefaultCatalog,
		Palette:          NeonPalette,
	}
}

// Generator builds randomized playfields. It is not safe for concurrent use.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// New returns a Generator seeded with seed. The same seed and viewport always
// produce the same map.
func New(cfg Config, seed int64) *Generator {
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Dimensions returns the map extent for a viewport.
func (g *Generator) Dimensions(viewportWidth, viewportHeight float64) (float64, float64) {
	w := math.Min(viewportWidth-g.cfg.Padding, g.cfg.MaxWidth)
	w = math.Max(w, g.cfg.MinWidth)
	h := math.Max(viewportHeight*g.cfg.HeightMultiplier, g.cfg.MinHeight)
	return w, h
}

// Generate builds a fresh match state for the given viewport.
func (g *Generator) Generate(viewportWidth, viewportHeight float64) models.GameState {
	w, h := g.Dimensions(viewportWidth, viewportHeight)

	marbles := make([]models.Marble, models.PlayerCount)
	for i := range marbles {
		marbles[i] = models.Marble{
			ID:        i,
			Position:  models.Vec(w*float64(i+1)/3, g.cfg.MarbleStartY),
			Radius:    g.cfg.MarbleRadius,
			Color:     playerSkins[i].color,
			GlowColor: playerSkins[i].glow,
		}
	}

	return models.GameState{
		Marbles:   marbles,
		Obstacles: g.placeObstacles(w, h),
		Goal: models.Goal{
			Position: models.Vec(w/2, h-g.cfg.GoalOffsetY),
			Radius:   g.cfg.GoalRadius,
		},
		MapWidth:  w,
		MapHeight: h,
	}
}

type footprint struct {
	rect rtreego.Rect
}

func (f footprint) Bounds() rtreego.Rect { return f.rect }

// placeObstacles fills a share of the grid cells covering the obstacle band. Attempts
// are bounded, so a map may end up sparser than the target.
func (g *Generator) placeObstacles(w, h float64) []models.Obstacle {
	cfg := g.cfg
	bandTop, bandBottom := cfg.SafeZoneTop, h-cfg.SafeZoneBottom
	cols := int(w / cfg.CellSize)
	rows := int((bandBottom - bandTop) / cfg.CellSize)
	if cols <= 0 || rows <= 0 || len(cfg.Catalog) == 0 {
		return []models.Obstacle{}
	}

	cells := cols * rows
	target := int(math.Ceil(float64(cells) * cfg.FillRatio))
	attempts := cells * cfg.AttemptsPerCell
	offsetX := (w - float64(cols)*cfg.CellSize) / 2

	occupied := make([]bool, cells)
	tree := rtreego.NewTree(2, 25, 50)
	obstacles := make([]models.Obstacle, 0, target)

	for try := 0; try < attempts && len(obstacles) < target; try++ {
		cell := g.rng.Intn(cells)
		if occupied[cell] {
			continue
		}
		mod := cfg.Catalog[g.rng.Intn(len(cfg.Catalog))]
		halfW, halfH := mod.HalfExtents()

		col, row := cell%cols, cell/cols
		cx := offsetX + (float64(col)+0.5)*cfg.CellSize + (g.rng.Float64()-0.5)*cfg.CellSize/2
		cy := bandTop + (float64(row)+0.5)*cfg.CellSize + (g.rng.Float64()-0.5)*cfg.CellSize/2

		if cx-halfW < cfg.EdgeMargin || cx+halfW > w-cfg.EdgeMargin {
			continue
		}
		if cy-halfH < bandTop || cy+halfH > bandBottom {
			continue
		}

		gap := cfg.MinGap
		probe, err := rtreego.NewRect(rtreego.Point{cx - halfW - gap, cy - halfH - gap}, []float64{2 * (halfW + gap), 2 * (halfH + gap)})
		if err != nil {
			continue
		}
		if len(tree.SearchIntersect(probe)) > 0 {
			continue
		}
		box, err := rtreego.NewRect(rtreego.Point{cx - halfW, cy - halfH}, []float64{2 * halfW, 2 * halfH})
		if err != nil {
			continue
		}
		tree.Insert(footprint{rect: box})
		occupied[cell] = true

		obstacles = append(obstacles, g.obstacle(len(obstacles), mod, cx, cy))
	}
	return obstacles
}

func (g *Generator) obstacle(id int, mod Module, x, y float64) models.Obstacle {
	o := models.Obstacle{
		ID:       id,
		Type:     mod.Type,
		Position: models.Vec(x, y),
		Module:   mod.Name,
	}
	if len(g.cfg.Palette) > 0 {
		o.Color = g.cfg.Palette[g.rng.Intn(len(g.cfg.Palette))]
	}
	switch mod.Type {
	case models.ObstacleCircle:
		o.Radius = mod.Radius
		o.Rotation = math.Floor(g.rng.Float64() * 360)
	default:
		o.Width, o.Height = mod.Width, mod.Height
		o.Rotation = float64(180 * g.rng.Intn(2))
	}
	return o
}
