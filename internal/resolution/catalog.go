package resolution

import (
	"errors"
	"fmt"

	"cameramodules/internal/logger"
)

// ErrCatalogUnavailable marks any failure to enumerate sizes for a camera.
// Catalog never returns it; it is logged and replaced by an empty catalog.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// ErrUnknownCamera is returned by sources that do not know a camera id.
var ErrUnknownCamera = errors.New("unknown camera")

// OutputSizeSource enumerates the output sizes a camera supports for a format.
// Implementations return sizes in the order the platform reports them.
type OutputSizeSource interface {
	QueryOutputSizes(cameraID string, format FormatKey) ([]Size, error)
}

// Catalog resolves (camera id, use case) to the supported output sizes.
type Catalog struct {
	source OutputSizeSource
}

// NewCatalog returns a catalog backed by source. A nil source yields empty catalogs.
func NewCatalog(source OutputSizeSource) *Catalog {
	return &Catalog{source: source}
}

// SupportedResolutions returns the sizes reported for the use case's format, in
// enumeration order. Any lookup failure produces an empty, non-nil slice.
func (c *Catalog) SupportedResolutions(cameraID string, useCase UseCase) []Size {
	sizes, err := c.lookup(cameraID, useCase)
	if err != nil {
		logger.Debug("[Catalog] %s/%s: %v", cameraID, useCase, err)
		return []Size{}
	}
	return sizes
}

func (c *Catalog) lookup(cameraID string, useCase UseCase) ([]Size, error) {
	if c == nil || c.source == nil {
		return nil, fmt.Errorf("%w: no output size source", ErrCatalogUnavailable)
	}
	key, ok := useCase.FormatKey()
	if !ok {
		return nil, fmt.Errorf("%w: no format for use case %s", ErrCatalogUnavailable, useCase)
	}

	sizes, err := c.query(cameraID, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	if sizes == nil {
		return []Size{}, nil
	}
	return sizes, nil
}

// query shields the catalog from a panicking source.
func (c *Catalog) query(cameraID string, key FormatKey) (sizes []Size, err error) {
	defer func() {
		if r := recover(); r != nil {
			sizes, err = nil, fmt.Errorf("source panicked: %v", r)
		}
	}()
	return c.source.QueryOutputSizes(cameraID, key)
}

// StaticSource serves fixed catalogs keyed by camera id and format.
type StaticSource map[string]map[FormatKey][]Size

func (s StaticSource) QueryOutputSizes(cameraID string, format FormatKey) ([]Size, error) {
	formats, ok := s[cameraID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCamera, cameraID)
	}
	sizes := formats[format]
	out := make([]Size, len(sizes))
	copy(out, sizes)
	return out, nil
}

// Cameras lists the camera ids the source knows.
func (s StaticSource) Cameras() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// ChainSource asks each source in turn and returns the first successful answer.
type ChainSource []OutputSizeSource

func (c ChainSource) QueryOutputSizes(cameraID string, format FormatKey) ([]Size, error) {
	var errs []error
	for _, src := range c {
		if src == nil {
			continue
		}
		sizes, err := src.QueryOutputSizes(cameraID, format)
		if err == nil {
			return sizes, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCamera, cameraID)
	}
	return nil, errors.Join(errs...)
}
