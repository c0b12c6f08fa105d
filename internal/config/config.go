package config

// Config carries everything a sequence render needs, assembled once by
// the CLI and treated as read-only afterwards.
type Config struct {
	InputDir       string
	OutputDir      string
	BlenderPath    string
	TrajectoryFile string
	Workers        int
	Skip           int
	ContactSheet   bool
	ShowStats      bool
	Render         RenderSettings
}

// RenderSettings is the recognized per-frame render configuration.
type RenderSettings struct {
	Width        int
	Height       int
	Samples      int
	SphereRadius float64
	FileFormat   string
	OutputDir    string
}

// DefaultRenderSettings mirrors the defaults the Blender pipeline has
// always used.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		Width:        1920,
		Height:       1080,
		Samples:      1,
		SphereRadius: 0.01,
		FileFormat:   "PNG",
	}
}
