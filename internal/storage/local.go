package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"subclean/internal/fileutil"
	"subclean/internal/services"
)

type localBackend struct{}

func (localBackend) download(_ context.Context, loc Locator, local string) error {
	return copyLocal(loc.Path, local)
}

func (localBackend) upload(_ context.Context, local string, loc Locator) error {
	return copyLocal(local, loc.Path)
}

func copyLocal(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "storage", "copy", src, err)
		}
		return services.Wrap(services.ErrTransient, "storage", "copy", src, err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "storage", "copy", src+" is a directory", nil)
	}
	if err := fileutil.CopyFile(src, dst); err != nil {
		return services.Wrap(services.ErrTransient, "storage", "copy", dst, err)
	}
	return nil
}
