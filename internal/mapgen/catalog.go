package mapgen

import "github.com/jason-s-yu/neonmarble/internal/models"

// Module is one obstacle shape the generator may place.
type Module struct {
	Name   string
	Type   models.ObstacleType
	Width  float64 // rectangles
	Height float64 // rectangles
	Radius float64 // circles
}

// HalfExtents returns the half width and half height of the module's collision box.
func (m Module) HalfExtents() (float64, float64) {
	if m.Type == models.ObstacleCircle {
		return m.Radius, m.Radius
	}
	return m.Width / 2, m.Height / 2
}

// DefaultCatalog is the fixed obstacle set, roughly 60% rectangles.
var DefaultCatalog = []Module{
	{Name: "square-s", Type: models.ObstacleRectangle, Width: 40, Height: 40},
	{Name: "square-m", Type: models.ObstacleRectangle, Width: 60, Height: 60},
	{Name: "bar-s", Type: models.ObstacleRectangle, Width: 80, Height: 24},
	{Name: "bar-m", Type: models.ObstacleRectangle, Width: 120, Height: 30},
	{Name: "post", Type: models.ObstacleRectangle, Width: 24, Height: 70},
	{Name: "orb-s", Type: models.ObstacleCircle, Radius: 20},
	{Name: "orb-m", Type: models.ObstacleCircle, Radius: 30},
	{Name: "orb-l", Type: models.ObstacleCircle, Radius: 45},
}

// NeonPalette colours obstacles.
var NeonPalette = []string{
	"hsl(180, 100%, 50%)",
	"hsl(300, 100%, 60%)",
	"hsl(120, 100%, 50%)",
	"hsl(60, 100%, 50%)",
	"hsl(30, 100%, 55%)",
}

type marbleSkin struct {
	color string
	glow  string
}

var playerSkins = [models.PlayerCount]marbleSkin{
	{color: "hsl(180, 100%, 50%)", glow: "rgba(0, 255, 255, 0.8)"},
	{color: "hsl(300, 100%, 60%)", glow: "rgba(255, 0, 255, 0.8)"},
}
