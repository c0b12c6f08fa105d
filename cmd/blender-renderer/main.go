package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/estebanfoucher/blender-renderer/internal/blender"
	"github.com/estebanfoucher/blender-renderer/internal/config"
	"github.com/estebanfoucher/blender-renderer/internal/engine"
	"github.com/estebanfoucher/blender-renderer/internal/frame"
	"github.com/estebanfoucher/blender-renderer/internal/ply"
	"github.com/estebanfoucher/blender-renderer/internal/preview"
	"github.com/estebanfoucher/blender-renderer/internal/system"
	"github.com/estebanfoucher/blender-renderer/internal/trajectory"
)

func main() {
	logger := golog.NewDevelopmentLogger("blender-renderer")
	system.InitResourceLimits(logger)

	for _, d := range []string{"input", "output"} {
		os.MkdirAll(d, 0o755)
	}

	inputPtr := flag.String("input", "", "Directory with the PLY sequence (default: newest sequence under input/)")
	outputPtr := flag.String("output", "", "Directory for rendered frames (default: generated under output/)")
	blenderPtr := flag.String("blender", "", "Path to the Blender executable (default: auto-detect)")
	trajectoryPtr := flag.String("trajectory", "", "Trajectory YAML file (default: circular orbit around the first cloud)")
	widthPtr := flag.Int("width", 1920, "Render width")
	heightPtr := flag.Int("height", 1080, "Render height")
	samplesPtr := flag.Int("samples", 1, "Cycles samples per frame")
	radiusPtr := flag.Float64("sphere-radius", 0.01, "Sphere radius per point")
	formatPtr := flag.String("format", "PNG", "Output image format")
	skipPtr := flag.Int("skip", 1, "Render every Nth frame of the sequence")
	workersPtr := flag.Int("workers", renderWorkers(), "Parallel Blender invocations")
	sheetPtr := flag.Bool("contact-sheet", false, "Compose a contact sheet after the render")
	statsPtr := flag.Bool("stats", true, "Log the performance summary")

	flag.Parse()

	inputDir := *inputPtr
	if inputDir == "" {
		latest, err := system.FindLatestSequenceDir("input")
		if err != nil {
			logger.Fatalf("no input: %v; put a PLY sequence under input/", err)
		}
		inputDir = latest
		logger.Infof("using sequence %s", inputDir)
	}

	outputDir := *outputPtr
	if outputDir == "" {
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		outputDir = filepath.Join("output", fmt.Sprintf("%s_%s", filepath.Base(inputDir), timestamp))
	}

	settings := config.RenderSettings{
		Width:        *widthPtr,
		Height:       *heightPtr,
		Samples:      *samplesPtr,
		SphereRadius: *radiusPtr,
		FileFormat:   *formatPtr,
		OutputDir:    outputDir,
	}
	cfg := &config.Config{
		InputDir:       inputDir,
		OutputDir:      outputDir,
		BlenderPath:    *blenderPtr,
		TrajectoryFile: *trajectoryPtr,
		Workers:        *workersPtr,
		Skip:           *skipPtr,
		ContactSheet:   *sheetPtr,
		ShowStats:      *statsPtr,
		Render:         settings,
	}

	spec, err := resolveTrajectory(cfg, logger)
	if err != nil {
		logger.Fatalf("trajectory: %v", err)
	}
	eval := trajectory.NewEvaluator()
	if err := eval.Set(spec); err != nil {
		logger.Fatalf("trajectory: %v", err)
	}

	builder, err := frame.NewBuilder(cfg.InputDir, eval, cfg.Render)
	if err != nil {
		logger.Fatalf("sequence: %v", err)
	}

	executable, err := blender.FindExecutable(cfg.BlenderPath)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Infof("using blender executable %s", executable)

	project := engine.New(cfg, builder, blender.NewEngine(executable, logger), logger)
	summary, err := project.Run(context.Background())
	if err != nil {
		logger.Fatalf("render failed: %v", err)
	}

	if cfg.ContactSheet && summary.Produced > 0 {
		sheetPath := filepath.Join(outputDir, "contact_sheet.png")
		if err := preview.WriteContactSheet(producedFrames(cfg, builder), sheetPath, 6, 320); err != nil {
			logger.Warnw("contact sheet failed", "error", err)
		} else {
			logger.Infof("contact sheet written to %s", sheetPath)
		}
	}

	logger.Infof("done: %d/%d frames rendered into %s", summary.Produced, summary.Attempted, outputDir)
	if summary.Produced == 0 {
		os.Exit(1)
	}
}

// resolveTrajectory loads the configured trajectory file, or derives a
// default circular orbit from the first cloud's bounds the way the
// pipeline has always framed unattended renders.
func resolveTrajectory(cfg *config.Config, logger golog.Logger) (trajectory.Spec, error) {
	if cfg.TrajectoryFile != "" {
		return trajectory.LoadSpec(cfg.TrajectoryFile)
	}

	center := r3.Vector{}
	radius, height := 5.0, 2.0
	if files, err := frame.ListSequence(cfg.InputDir); err == nil && len(files) > 0 {
		info := ply.GetInfo(files[0], logger)
		if info.Count > 0 {
			center = info.Bounds.Center
			extent := info.Bounds.Max.Sub(info.Bounds.Min)
			if m := math.Max(extent.X, math.Max(extent.Y, extent.Z)); m > 0 {
				radius = 1.5 * m
				height = 0.5 * extent.Z
			}
		}
	}
	logger.Infow("using default circular trajectory", "center", center, "radius", radius, "height", height)
	return trajectory.Circular{
		Center:     center,
		Radius:     radius,
		Height:     height,
		StartAngle: 0,
		EndAngle:   2 * math.Pi,
	}, nil
}

// producedFrames lists the output paths that actually exist, in frame
// order, for the contact sheet.
func producedFrames(cfg *config.Config, builder *frame.Builder) []string {
	var paths []string
	for i := 0; i < builder.FrameCount(); i++ {
		p := frame.OutputPath(cfg.Render, i)
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	return paths
}

// renderWorkers caps the default pool: each worker is a full Blender
// process, so one per core is far too many.
func renderWorkers() int {
	n := runtime.NumCPU() / 4
	if n < 1 {
		n = 1
	}
	if n > 4 {
		n = 4
	}
	return n
}
