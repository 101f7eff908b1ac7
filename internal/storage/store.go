package storage

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"subclean/internal/fileutil"
	"subclean/internal/logging"
	"subclean/internal/services"
)

// Store is the remote storage collaborator used by acquisition and publishing.
type Store interface {
	Download(ctx context.Context, locator, localPath string) error
	Upload(ctx context.Context, localPath, locator string) error
	UploadDirectory(ctx context.Context, dir, prefix string) (int, error)
}

type backend interface {
	download(ctx context.Context, loc Locator, local string) error
	upload(ctx context.Context, local string, loc Locator) error
}

// Options configure a Router.
type Options struct {
	S3                S3Options
	Retry             RetryPolicy
	UploadConcurrency int
	Logger            *slog.Logger
	// S3Client replaces the SDK client; tests use it to avoid the network.
	S3Client S3API
}

// Router dispatches transfers to the backend matching each locator's scheme.
type Router struct {
	opts   Options
	logger *slog.Logger

	s3Once sync.Once
	s3     *s3Backend
	s3Err  error
}

// NewRouter constructs a Router. The S3 client is created on first use.
func NewRouter(opts Options) *Router {
	if opts.Retry.Attempts <= 0 {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = 4
	}
	return &Router{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "storage")}
}

func (r *Router) backendFor(ctx context.Context, loc Locator) (backend, error) {
	if loc.Scheme == SchemeFile {
		return localBackend{}, nil
	}
	s3b, err := r.s3Backend(ctx)
	if err != nil {
		return nil, err
	}
	return s3b, nil
}

func (r *Router) s3Backend(ctx context.Context) (*s3Backend, error) {
	r.s3Once.Do(func() {
		if r.opts.S3Client != nil {
			r.s3 = &s3Backend{api: r.opts.S3Client}
			return
		}
		r.s3, r.s3Err = newS3Backend(ctx, r.opts.S3)
	})
	return r.s3, r.s3Err
}

// CheckCredentials verifies that every locator parses and that s3 locators
// have resolvable credentials. Failures are configuration errors.
func (r *Router) CheckCredentials(ctx context.Context, locators ...string) error {
	needS3 := false
	for _, raw := range locators {
		if raw == "" {
			continue
		}
		loc, err := ParseLocator(raw)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "storage", "parse locator", "", err)
		}
		if loc.Scheme == SchemeS3 {
			needS3 = true
		}
	}
	// All s3 locators share one client, so one credential check covers them.
	if !needS3 || r.opts.S3Client != nil {
		return nil
	}
	s3b, err := r.s3Backend(ctx)
	if err != nil {
		return err
	}
	return s3b.checkCredentials(ctx)
}

// Download fetches locator into localPath.
func (r *Router) Download(ctx context.Context, locator, localPath string) error {
	loc, err := ParseLocator(locator)
	if err != nil {
		return services.Wrap(services.ErrValidation, "storage", "download", "", err)
	}
	b, err := r.backendFor(ctx, loc)
	if err != nil {
		return err
	}
	attempts, err := r.opts.Retry.do(ctx, func(ctx context.Context) error {
		return b.download(ctx, loc, localPath)
	})
	if err != nil {
		return fmt.Errorf("download %s after %d attempt(s): %w", locator, attempts, err)
	}
	r.logger.Debug("object downloaded",
		logging.String("locator", locator),
		logging.String("path", localPath),
		logging.Int("attempts", attempts),
	)
	return nil
}

// Upload sends localPath to locator.
func (r *Router) Upload(ctx context.Context, localPath, locator string) error {
	loc, err := ParseLocator(locator)
	if err != nil {
		return services.Wrap(services.ErrValidation, "storage", "upload", "", err)
	}
	return r.upload(ctx, localPath, loc)
}

func (r *Router) upload(ctx context.Context, localPath string, loc Locator) error {
	b, err := r.backendFor(ctx, loc)
	if err != nil {
		return err
	}
	attempts, err := r.opts.Retry.do(ctx, func(ctx context.Context) error {
		return b.upload(ctx, localPath, loc)
	})
	if err != nil {
		return fmt.Errorf("upload %s after %d attempt(s): %w", loc, attempts, err)
	}
	return nil
}

// UploadDirectory uploads every file under dir to prefix/<relative path>,
// running up to UploadConcurrency transfers at once. It returns the number of
// files uploaded; an empty directory is an error.
func (r *Router) UploadDirectory(ctx context.Context, dir, prefix string) (int, error) {
	base, err := ParseLocator(prefix)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "storage", "upload directory", "", err)
	}
	files, err := fileutil.WalkFiles(dir)
	if err != nil {
		return 0, services.Wrap(services.ErrNotFound, "storage", "upload directory", dir, err)
	}
	if len(files) == 0 {
		return 0, services.Wrap(services.ErrValidation, "storage", "upload directory", "no files in "+dir, nil)
	}

	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.UploadConcurrency)
	for _, rel := range files {
		g.Go(func() error {
			if err := r.upload(gctx, filepath.Join(dir, filepath.FromSlash(rel)), base.Child(rel)); err != nil {
				return err
			}
			uploaded.Add(1)
			return nil
		})
	}
	err = g.Wait()
	count := int(uploaded.Load())
	r.logger.Debug("directory uploaded",
		logging.String("dir", dir),
		logging.String("prefix", prefix),
		logging.Int("files", count),
		logging.Int("total", len(files)),
	)
	if err != nil {
		return count, err
	}
	return count, nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
