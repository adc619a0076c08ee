// Package importer turns mesh files on disk into mesh.Mesh values.
package importer

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/mesh"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported mesh format")
	ErrMalformed         = errors.New("malformed mesh")
)

// DefaultColour is used for geometry that carries no material at all.
var DefaultColour = colour.RGBA{R: 0.8, G: 0.8, B: 0.8, A: 1}

// Result is an imported mesh with every file the import read. Files[0] is
// the mesh file; material libraries and textures follow in read order.
type Result struct {
	Mesh  *mesh.Mesh
	Files []string
}

// Load picks an importer by file extension. logger may be nil.
func Load(path string, logger *log.Logger) (*mesh.Mesh, error) {
	r, err := Import(path, logger)
	return r.Mesh, err
}

// Import is Load plus the list of files the mesh was built from.
func Import(path string, logger *log.Logger) (Result, error) {
	res := Result{Files: []string{path}}
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".obj":
		dir := filepath.Dir(path)
		var side []string
		res.Mesh, side, err = loadOBJ(os.DirFS(dir), filepath.Base(path), logger)
		for _, s := range side {
			res.Files = append(res.Files, filepath.Join(dir, filepath.FromSlash(s)))
		}
	case ".stl":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return Result{}, err
		}
		defer f.Close()
		res.Mesh, err = DecodeSTL(f)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Result{}, fmt.Errorf("import %s: %w", path, err)
	}
	if logger != nil {
		logger.Printf("imported %s: %s triangles in %d sections",
			filepath.Base(path), humanize.Comma(int64(mesh.TriangleCount(res.Mesh))), len(res.Mesh.Sections()))
	}
	return res, nil
}
