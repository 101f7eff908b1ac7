package publish

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"subclean/internal/logging"
	"subclean/internal/media/ffprobe"
	"subclean/internal/media/frames"
	"subclean/internal/runspec"
	"subclean/internal/services"
	"subclean/internal/storage"
)

// Options configure a Publisher.
type Options struct {
	Store    storage.Store
	FFmpeg   string
	FFprobe  string
	Assemble frames.AssembleOptions
	Logger   *slog.Logger
}

// Outcome records what was published. Warnings collect every non-fatal
// failure in the order it happened.
type Outcome struct {
	SourceDir      string   `yaml:"source_dir,omitempty"`
	Container      string   `yaml:"container,omitempty"`
	Frames         int      `yaml:"frames"`
	VerifiedFrames int      `yaml:"verified_frames"`
	ContainerURL   string   `yaml:"container_url,omitempty"`
	FramesURL      string   `yaml:"frames_url,omitempty"`
	UploadedFrames int      `yaml:"uploaded_frames"`
	Warnings       []string `yaml:"warnings,omitempty"`
}

// Assembled reports whether a container was written.
func (o Outcome) Assembled() bool {
	return o.Container != ""
}

// Uploaded reports whether the container reached the destination.
func (o Outcome) Uploaded() bool {
	return o.ContainerURL != ""
}

// Publisher reassembles and uploads run artifacts.
type Publisher struct {
	opts   Options
	logger *slog.Logger
}

// New constructs a Publisher.
func New(opts Options) *Publisher {
	return &Publisher{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "publish")}
}

// Publish reassembles frameDir into spec's container path and uploads the
// results to spec.DestinationURL when set. An empty frameDir means no stage
// produced output; the outcome then carries a single warning.
func (p *Publisher) Publish(ctx context.Context, frameDir string, spec runspec.Spec) Outcome {
	logger := logging.WithContext(ctx, p.logger)
	out := Outcome{SourceDir: frameDir}
	warn := func(op, message string, err error) {
		wrapped := services.Wrap(services.ErrPublish, "publish", op, message, err)
		out.Warnings = append(out.Warnings, wrapped.Error())
		logging.WarnWithContext(logger, "publish step failed", "publish_warning",
			logging.String("operation", op),
			logging.Error(wrapped),
			logging.String(logging.FieldImpact, "artifacts incomplete; run classification unchanged"),
			logging.String(logging.FieldErrorHint, "inspect the run log and rerun publish"),
		)
	}

	if frameDir == "" {
		warn("select frames", "no stage produced output frames", nil)
		return out
	}

	p.assemble(ctx, logger, frameDir, spec, &out, warn)

	if spec.DestinationURL == "" {
		logger.Info("publish complete",
			logging.String(logging.FieldEventType, "publish_complete"),
			logging.String("container", out.Container),
			logging.Int("frames", out.Frames),
			logging.Int("warnings", len(out.Warnings)),
		)
		return out
	}
	if p.opts.Store == nil {
		warn("upload", "no storage backend configured", nil)
		return out
	}

	if out.Container != "" {
		target, err := storage.Join(spec.DestinationURL, filepath.Base(out.Container))
		switch {
		case err != nil:
			warn("upload container", spec.DestinationURL, err)
		default:
			if err := p.opts.Store.Upload(ctx, out.Container, target); err != nil {
				warn("upload container", target, err)
			} else {
				out.ContainerURL = target
			}
		}
	}

	framesTarget, err := storage.Join(spec.DestinationURL, "frames")
	if err != nil {
		warn("upload frames", spec.DestinationURL, err)
	} else {
		count, err := p.opts.Store.UploadDirectory(ctx, frameDir, framesTarget)
		out.UploadedFrames = count
		if err != nil {
			warn("upload frames", framesTarget, err)
		} else {
			out.FramesURL = framesTarget
		}
	}

	logger.Info("publish complete",
		logging.String(logging.FieldEventType, "publish_complete"),
		logging.String("container", out.Container),
		logging.String("container_url", out.ContainerURL),
		logging.Int("frames", out.Frames),
		logging.Int("uploaded_frames", out.UploadedFrames),
		logging.Int("warnings", len(out.Warnings)),
	)
	return out
}

func (p *Publisher) assemble(ctx context.Context, logger *slog.Logger, frameDir string, spec runspec.Spec, out *Outcome, warn func(op, message string, err error)) {
	count, err := frames.Restage(frameDir, spec.AssemblyDir())
	if err != nil {
		warn("restage", frameDir, err)
		return
	}
	out.Frames = count

	container := spec.ContainerPath()
	if err := frames.Assemble(ctx, p.opts.FFmpeg, spec.AssemblyDir(), container, p.opts.Assemble); err != nil {
		warn("assemble", container, err)
		return
	}
	out.Container = container
	logger.Info("container assembled",
		logging.String(logging.FieldEventType, "container_assembled"),
		logging.String("container", container),
		logging.Int("frames", count),
	)

	probe, err := ffprobe.Inspect(ctx, p.opts.FFprobe, container, true)
	if err != nil {
		warn("verify", container, err)
		return
	}
	out.VerifiedFrames = probe.FrameCount()
	if out.VerifiedFrames != count {
		warn("verify", fmt.Sprintf("container holds %d frames, staged %d", out.VerifiedFrames, count), nil)
	}
}
