// Package engine orchestrates a whole sequence render: pre-scan,
// worker pool over frames, per-frame failure isolation and the final
// summary.
package engine

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"golang.org/x/sync/errgroup"

	"github.com/estebanfoucher/blender-renderer/internal/config"
	"github.com/estebanfoucher/blender-renderer/internal/frame"
	"github.com/estebanfoucher/blender-renderer/internal/ply"
	"github.com/estebanfoucher/blender-renderer/internal/system"
)

// Renderer consumes one frame job and produces one image. Implemented
// by blender.Engine; tests substitute fakes.
type Renderer interface {
	Render(ctx context.Context, job *frame.Job, workDir string) error
}

// Summary reports what a sequence run did.
type Summary struct {
	Attempted int
	Produced  int
	Skipped   int
	Elapsed   time.Duration
}

// Project is one sequence render. Frames are independent: a failed
// frame is logged with its identity and skipped, never aborting the
// run.
type Project struct {
	cfg      *config.Config
	builder  *frame.Builder
	renderer Renderer
	logger   golog.Logger
}

// New assembles a sequence render over an already-resolved builder.
func New(cfg *config.Config, builder *frame.Builder, renderer Renderer, logger golog.Logger) *Project {
	return &Project{cfg: cfg, builder: builder, renderer: renderer, logger: logger}
}

// Run renders the sequence and returns the summary. Only setup errors
// (temp dir, output dir) fail the run as a whole.
func (p *Project) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	total := p.builder.FrameCount()

	infos := p.prescan(ctx)
	maxPoints := 0
	for _, info := range infos {
		if info.Count > maxPoints {
			maxPoints = info.Count
		}
	}
	p.logger.Infow("sequence scanned", "frames", total, "max_points", maxPoints)
	system.CheckMemoryHeadroom(maxPoints, p.logger)

	tempDir, err := os.MkdirTemp("", "blender-renderer_")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	if err := os.MkdirAll(p.cfg.Render.OutputDir, 0o755); err != nil {
		return nil, err
	}

	skip := p.cfg.Skip
	if skip < 1 {
		skip = 1
	}
	var indexes []int
	for i := 0; i < total; i += skip {
		indexes = append(indexes, i)
	}

	workers := p.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(indexes) {
		workers = len(indexes)
	}

	jobs := make(chan int, len(indexes))
	var wg sync.WaitGroup
	var mu sync.Mutex
	produced, skipped := 0, 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				// progress always comes from the original index and the
				// original sequence length, never the subsampled ones
				job, err := p.builder.Build(i, total)
				if err != nil {
					p.logger.Errorw("frame skipped", "frame", i, "error", err)
					mu.Lock()
					skipped++
					mu.Unlock()
					continue
				}
				if err := p.renderer.Render(ctx, job, tempDir); err != nil {
					p.logger.Errorw("frame render failed", "frame", i, "error", err)
					mu.Lock()
					skipped++
					mu.Unlock()
					continue
				}
				mu.Lock()
				produced++
				done := produced + skipped
				mu.Unlock()
				p.logger.Infow("frame ready", "frame", i, "done", done, "of", len(indexes))
			}
		}()
	}

	for _, i := range indexes {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	summary := &Summary{
		Attempted: len(indexes),
		Produced:  produced,
		Skipped:   skipped,
		Elapsed:   time.Since(start),
	}

	if p.cfg.ShowStats {
		fps := float64(summary.Produced) / summary.Elapsed.Seconds()
		p.logger.Infow("sequence finished",
			"attempted", summary.Attempted,
			"produced", summary.Produced,
			"skipped", summary.Skipped,
			"elapsed", summary.Elapsed.Round(time.Millisecond),
			"frames_per_second", fps,
		)
	}
	return summary, nil
}

// prescan collects best-effort metadata for every file in the
// sequence. ply.GetInfo never fails, so neither does the group.
func (p *Project) prescan(ctx context.Context) []ply.Info {
	files := p.builder.Files()
	infos := make([]ply.Info, len(files))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			infos[i] = ply.GetInfo(f, p.logger)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return infos
}
