package formats

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Faultbox/meshfuse/pkg/math"
)

// ErrInvalidMesh is returned when mesh buffers are inconsistent.
var ErrInvalidMesh = errors.New("invalid mesh data")

// Encoding selects the PLY body encoding.
type Encoding int

const (
	// BinaryLittleEndian writes a compact binary body.
	BinaryLittleEndian Encoding = iota
	// ASCII writes a human-readable body.
	ASCII
)

// ParseEncoding converts "binary" or "ascii" to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "binary", "binary_little_endian":
		return BinaryLittleEndian, nil
	case "ascii":
		return ASCII, nil
	default:
		return 0, fmt.Errorf("unknown PLY encoding %q", s)
	}
}

func (e Encoding) String() string {
	if e == ASCII {
		return "ascii"
	}
	return "binary_little_endian"
}

// WriteMeshPLY writes a triangle mesh with optional per-vertex normals.
func WriteMeshPLY(w io.Writer, enc Encoding, vertices, normals []math.Vec3, faces [][3]int) error {
	if len(normals) != 0 && len(normals) != len(vertices) {
		return fmt.Errorf("%w: %d normals for %d vertices", ErrInvalidMesh, len(normals), len(vertices))
	}
	for i, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(vertices) {
				return fmt.Errorf("%w: face %d references vertex %d", ErrInvalidMesh, i, idx)
			}
		}
	}

	bw := bufio.NewWriter(w)
	writeHeader(bw, enc, len(vertices), len(normals) != 0, len(faces))
	if err := writeVertices(bw, enc, vertices, normals); err != nil {
		return err
	}

	for _, f := range faces {
		if enc == ASCII {
			fmt.Fprintf(bw, "3 %d %d %d\n", f[0], f[1], f[2])
			continue
		}
		bw.WriteByte(3)
		for _, idx := range f {
			if err := binary.Write(bw, binary.LittleEndian, int32(idx)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WritePointsPLY writes an oriented point cloud.
func WritePointsPLY(w io.Writer, enc Encoding, points, normals []math.Vec3) error {
	if len(normals) != 0 && len(normals) != len(points) {
		return fmt.Errorf("%w: %d normals for %d points", ErrInvalidMesh, len(normals), len(points))
	}

	bw := bufio.NewWriter(w)
	writeHeader(bw, enc, len(points), len(normals) != 0, -1)
	if err := writeVertices(bw, enc, points, normals); err != nil {
		return err
	}
	return bw.Flush()
}

// SaveMeshPLY writes a mesh to path, creating parent directories as needed.
func SaveMeshPLY(path string, enc Encoding, vertices, normals []math.Vec3, faces [][3]int) error {
	return saveFile(path, func(w io.Writer) error {
		return WriteMeshPLY(w, enc, vertices, normals, faces)
	})
}

// SavePointsPLY writes a point cloud to path, creating parent directories as needed.
func SavePointsPLY(path string, enc Encoding, points, normals []math.Vec3) error {
	return saveFile(path, func(w io.Writer) error {
		return WritePointsPLY(w, enc, points, normals)
	})
}

func saveFile(path string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

// writeHeader writes the PLY header. faceCount < 0 omits the face element.
func writeHeader(w *bufio.Writer, enc Encoding, vertexCount int, hasNormals bool, faceCount int) {
	fmt.Fprintf(w, "ply\nformat %s 1.0\n", enc)
	fmt.Fprintf(w, "element vertex %d\n", vertexCount)
	w.WriteString("property double x\nproperty double y\nproperty double z\n")
	if hasNormals {
		w.WriteString("property float nx\nproperty float ny\nproperty float nz\n")
	}
	if faceCount >= 0 {
		fmt.Fprintf(w, "element face %d\n", faceCount)
		w.WriteString("property list uchar int vertex_indices\n")
	}
	w.WriteString("end_header\n")
}

// writeVertices writes positions as doubles and normals as floats.
func writeVertices(w *bufio.Writer, enc Encoding, vertices, normals []math.Vec3) error {
	for i, v := range vertices {
		if enc == ASCII {
			w.WriteString(strconv.FormatFloat(v.X, 'g', -1, 64))
			w.WriteByte(' ')
			w.WriteString(strconv.FormatFloat(v.Y, 'g', -1, 64))
			w.WriteByte(' ')
			w.WriteString(strconv.FormatFloat(v.Z, 'g', -1, 64))
			if len(normals) != 0 {
				n := normals[i]
				for _, x := range []float64{n.X, n.Y, n.Z} {
					w.WriteByte(' ')
					w.WriteString(strconv.FormatFloat(float64(float32(x)), 'g', -1, 32))
				}
			}
			w.WriteByte('\n')
			continue
		}

		if err := binary.Write(w, binary.LittleEndian, [3]float64{v.X, v.Y, v.Z}); err != nil {
			return err
		}
		if len(normals) != 0 {
			n := normals[i]
			if err := binary.Write(w, binary.LittleEndian, [3]float32{float32(n.X), float32(n.Y), float32(n.Z)}); err != nil {
				return err
			}
		}
	}
	return nil
}
