package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chenzhekl/goply"
)

// PLY format errors.
var (
	ErrInvalidPLYMagic  = errors.New("invalid PLY magic: expected 'ply'")
	ErrInvalidPLYHeader = errors.New("invalid PLY header")
	ErrInvalidPLYBody   = errors.New("invalid PLY body")
	ErrMissingProperty  = errors.New("missing PLY property")
	ErrNoVertices       = errors.New("PLY file has no vertices")
)

// Splat is one Gaussian primitive as stored in a 3DGS/2DGS scene PLY.
// Values are raw: opacity is a logit, scales are logarithms.
type Splat struct {
	Position [3]float64
	Opacity  float64
	Scale    [3]float64
	// HasScaleZ is false for 2D surfel files which only store two scales.
	HasScaleZ bool
	Rotation  [4]float64 // w, x, y, z
}

var splatRequired = []string{
	"x", "y", "z",
	"opacity",
	"scale_0", "scale_1",
	"rot_0", "rot_1", "rot_2", "rot_3",
}

// plyProperty is one property declaration. List properties keep their
// count type in CountType.
type plyProperty struct {
	Name      string
	Type      string
	List      bool
	CountType string
}

type plyElement struct {
	Name       string
	Count      int
	Properties []plyProperty
}

type plyHeader struct {
	Format   string
	Elements []plyElement
}

// element returns the named element and the elements declared before it.
func (h *plyHeader) element(name string) (*plyElement, []plyElement) {
	for i := range h.Elements {
		if h.Elements[i].Name == name {
			return &h.Elements[i], h.Elements[:i]
		}
	}
	return nil, nil
}

// scalarSizes maps PLY scalar type names to their byte sizes.
var scalarSizes = map[string]int{
	"char": 1, "int8": 1,
	"uchar": 1, "uint8": 1,
	"short": 2, "int16": 2,
	"ushort": 2, "uint16": 2,
	"int": 4, "int32": 4,
	"uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// ParseSplatPLY parses Gaussian splats from raw PLY bytes.
func ParseSplatPLY(data []byte) ([]Splat, error) {
	if len(data) < 3 || string(data[:3]) != "ply" {
		return nil, ErrInvalidPLYMagic
	}

	br := bufio.NewReader(bytes.NewReader(data))
	header, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	vertex, _ := header.element("vertex")
	if vertex == nil || vertex.Count == 0 {
		return nil, ErrNoVertices
	}
	for _, name := range splatRequired {
		if !hasProperty(vertex, name) {
			return nil, fmt.Errorf("%w: %s", ErrMissingProperty, name)
		}
	}

	switch header.Format {
	case "ascii":
		return readASCIISplats(data, hasProperty(vertex, "scale_2"))
	case "binary_little_endian":
		return readBinarySplats(br, header, binary.LittleEndian)
	case "binary_big_endian":
		return readBinarySplats(br, header, binary.BigEndian)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidPLYHeader, header.Format)
	}
}

// ReadSplats reads the vertex element of a Gaussian-splat PLY file.
func ReadSplats(r io.Reader) ([]Splat, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseSplatPLY(data)
}

// readHeader consumes the header up to and including end_header.
func readHeader(br *bufio.Reader) (*plyHeader, error) {
	header := &plyHeader{}
	first := true
	for {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return nil, fmt.Errorf("%w: missing end_header", ErrInvalidPLYHeader)
		}
		fields := strings.Fields(line)

		if first {
			if len(fields) != 1 || fields[0] != "ply" {
				return nil, ErrInvalidPLYMagic
			}
			first = false
			continue
		}
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "end_header":
			if header.Format == "" {
				return nil, fmt.Errorf("%w: missing format line", ErrInvalidPLYHeader)
			}
			return header, nil
		case "comment", "obj_info":
		case "format":
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPLYHeader, strings.TrimSpace(line))
			}
			header.Format = fields[1]
		case "element":
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPLYHeader, strings.TrimSpace(line))
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("%w: bad element count %q", ErrInvalidPLYHeader, fields[2])
			}
			header.Elements = append(header.Elements, plyElement{Name: fields[1], Count: count})
		case "property":
			if len(header.Elements) == 0 {
				return nil, fmt.Errorf("%w: property before element", ErrInvalidPLYHeader)
			}
			prop, err := parseProperty(fields)
			if err != nil {
				return nil, err
			}
			el := &header.Elements[len(header.Elements)-1]
			el.Properties = append(el.Properties, prop)
		default:
			return nil, fmt.Errorf("%w: unexpected keyword %q", ErrInvalidPLYHeader, fields[0])
		}
	}
}

func parseProperty(fields []string) (plyProperty, error) {
	if len(fields) == 5 && fields[1] == "list" {
		if _, ok := scalarSizes[fields[2]]; !ok {
			return plyProperty{}, fmt.Errorf("%w: unknown type %q", ErrInvalidPLYHeader, fields[2])
		}
		if _, ok := scalarSizes[fields[3]]; !ok {
			return plyProperty{}, fmt.Errorf("%w: unknown type %q", ErrInvalidPLYHeader, fields[3])
		}
		return plyProperty{Name: fields[4], Type: fields[3], List: true, CountType: fields[2]}, nil
	}
	if len(fields) != 3 {
		return plyProperty{}, fmt.Errorf("%w: %q", ErrInvalidPLYHeader, strings.Join(fields, " "))
	}
	if _, ok := scalarSizes[fields[1]]; !ok {
		return plyProperty{}, fmt.Errorf("%w: unknown type %q", ErrInvalidPLYHeader, fields[1])
	}
	return plyProperty{Name: fields[2], Type: fields[1]}, nil
}

func hasProperty(el *plyElement, name string) bool {
	for _, p := range el.Properties {
		if p.Name == name {
			return true
		}
	}
	return false
}

// readASCIISplats parses an ascii body with goply, which panics on
// malformed input.
func readASCIISplats(data []byte, hasScaleZ bool) (splats []Splat, err error) {
	defer func() {
		if r := recover(); r != nil {
			splats = nil
			err = fmt.Errorf("%w: %v", ErrInvalidPLYBody, r)
		}
	}()

	vertices := goply.New(bytes.NewReader(data)).Elements("vertex")
	if len(vertices) == 0 {
		return nil, ErrNoVertices
	}

	splats = make([]Splat, len(vertices))
	for i, v := range vertices {
		values := make(map[string]float64, len(v))
		for name, raw := range v {
			values[name] = number(raw)
		}
		splats[i] = splatFrom(values, hasScaleZ)
	}
	return splats, nil
}

// readBinarySplats decodes fixed-size vertex records. Elements declared
// before the vertex element are skipped when they hold no list properties.
func readBinarySplats(r io.Reader, header *plyHeader, order binary.ByteOrder) ([]Splat, error) {
	vertex, before := header.element("vertex")
	for _, el := range before {
		stride, err := recordSize(&el)
		if err != nil {
			return nil, err
		}
		if _, err := io.CopyN(io.Discard, r, int64(stride)*int64(el.Count)); err != nil {
			return nil, fmt.Errorf("%w: skipping element %s: %v", ErrInvalidPLYBody, el.Name, err)
		}
	}

	stride, err := recordSize(vertex)
	if err != nil {
		return nil, err
	}
	hasScaleZ := hasProperty(vertex, "scale_2")

	record := make([]byte, stride)
	values := make(map[string]float64, len(vertex.Properties))
	splats := make([]Splat, vertex.Count)
	for i := range splats {
		if _, err := io.ReadFull(r, record); err != nil {
			return nil, fmt.Errorf("%w: vertex %d of %d: %v", ErrInvalidPLYBody, i, vertex.Count, err)
		}
		offset := 0
		for _, p := range vertex.Properties {
			size := scalarSizes[p.Type]
			values[p.Name] = decodeScalar(record[offset:offset+size], p.Type, order)
			offset += size
		}
		splats[i] = splatFrom(values, hasScaleZ)
	}
	return splats, nil
}

func recordSize(el *plyElement) (int, error) {
	size := 0
	for _, p := range el.Properties {
		if p.List {
			return 0, fmt.Errorf("%w: list property %s in binary element %s is not supported",
				ErrInvalidPLYHeader, p.Name, el.Name)
		}
		size += scalarSizes[p.Type]
	}
	return size, nil
}

func decodeScalar(b []byte, typ string, order binary.ByteOrder) float64 {
	switch typ {
	case "char", "int8":
		return float64(int8(b[0]))
	case "uchar", "uint8":
		return float64(b[0])
	case "short", "int16":
		return float64(int16(order.Uint16(b)))
	case "ushort", "uint16":
		return float64(order.Uint16(b))
	case "int", "int32":
		return float64(int32(order.Uint32(b)))
	case "uint", "uint32":
		return float64(order.Uint32(b))
	case "float", "float32":
		return float64(math.Float32frombits(order.Uint32(b)))
	default:
		return math.Float64frombits(order.Uint64(b))
	}
}

func splatFrom(v map[string]float64, hasScaleZ bool) Splat {
	s := Splat{
		Position: [3]float64{v["x"], v["y"], v["z"]},
		Opacity:  v["opacity"],
		Rotation: [4]float64{v["rot_0"], v["rot_1"], v["rot_2"], v["rot_3"]},
	}
	s.Scale[0] = v["scale_0"]
	s.Scale[1] = v["scale_1"]
	if hasScaleZ {
		s.Scale[2] = v["scale_2"]
		s.HasScaleZ = true
	}
	return s
}

// number converts any scalar PLY property value to float64.
func number(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int8:
		return float64(x)
	case uint8:
		return float64(x)
	case int16:
		return float64(x)
	case uint16:
		return float64(x)
	case int32:
		return float64(x)
	case uint32:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}
