package upload

import (
	"context"
	"errors"
	"io"
)

// Uploader stores opaque binary content and returns a public URL for it.
// Implementations expose no partial-upload state: a failed upload surfaces
// only as an error.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (publicURL string, err error)
}

// Disabled fails fast when no object storage is configured.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader, string) (string, error) {
	return "", errors.New("attachment uploads are not configured")
}

var _ Uploader = Disabled{}
