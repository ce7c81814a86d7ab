package resolution

import (
	"errors"
	"fmt"
)

// ErrInvalidTarget is returned when a requested width or height is not positive.
var ErrInvalidTarget = errors.New("invalid target size")

// Selection describes how a size was chosen.
type Selection struct {
	CameraID string `json:"camera_id"`
	UseCase  string `json:"use_case"`
	Target   Size   `json:"target"`
	Chosen   Size   `json:"chosen"`
	Distance int    `json:"distance"`
	Fallback bool   `json:"fallback"` // no usable catalog entry; Chosen == Target
	Catalog  []Size `json:"catalog"`
}

// Selector reduces a camera's catalog to the size closest to a target.
type Selector struct {
	catalog *Catalog
}

func NewSelector(catalog *Catalog) *Selector {
	return &Selector{catalog: catalog}
}

// Catalog returns the catalog the selector queries.
func (s *Selector) Catalog() *Catalog {
	return s.catalog
}

// SelectResolution returns the supported size closest to targetWidth x targetHeight
// for the camera and use case, or the target itself when nothing is known.
func (s *Selector) SelectResolution(cameraID string, useCase UseCase, targetWidth, targetHeight int) (Size, error) {
	sel, err := s.Select(cameraID, useCase, Size{Width: targetWidth, Height: targetHeight})
	if err != nil {
		return Size{}, err
	}
	return sel.Chosen, nil
}

// Select is SelectResolution with the full decision attached.
func (s *Selector) Select(cameraID string, useCase UseCase, target Size) (Selection, error) {
	if !target.Valid() {
		return Selection{}, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}

	catalog := s.catalog.SupportedResolutions(cameraID, useCase)
	sel := Selection{
		CameraID: cameraID,
		UseCase:  useCase.String(),
		Target:   target,
		Catalog:  catalog,
	}

	chosen, ok := Closest(catalog, target)
	if !ok {
		sel.Chosen = target
		sel.Fallback = true
		return sel, nil
	}
	sel.Chosen = chosen
	sel.Distance = Distance(chosen, target)
	return sel, nil
}

// Distance is the L1 (Manhattan) distance between two sizes.
func Distance(a, b Size) int {
	return abs(a.Width-b.Width) + abs(a.Height-b.Height)
}

// Closest returns the first entry of catalog with minimal Distance to target.
// Entries with a non-positive dimension are ignored. ok is false when no
// entry qualifies.
func Closest(catalog []Size, target Size) (best Size, ok bool) {
	bestDist := 0
	for _, candidate := range catalog {
		if !candidate.Valid() {
			continue
		}
		d := Distance(candidate, target)
		if !ok || d < bestDist {
			best, bestDist, ok = candidate, d, true
		}
	}
	return best, ok
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
