// STL (stereolithography) mesh format, binary and ASCII flavours.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hschendel/stl"
)

// STL format errors.
var (
	ErrNotSTL           = errors.New("not an STL file")
	ErrTruncatedSTLData = errors.New("truncated STL data")
	ErrEmptySTL         = errors.New("STL contains no triangles")
)

const (
	stlHeaderSize   = 80
	stlPreambleSize = stlHeaderSize + 4 // header + triangle count
	stlTriangleSize = 50                // normal + 3 vertices + attribute word
)

// STLTriangle is one facet as stored in the file.
type STLTriangle struct {
	Normal   [3]float32
	Vertices [3][3]float32
}

// STL holds a parsed STL solid.
type STL struct {
	Name      string // ASCII solid name, or trimmed binary header
	Binary    bool
	Triangles []STLTriangle
}

// ParseSTL parses STL data from a byte slice.
// Binary files are recognized by their exact size; anything else starting
// with "solid" is read as ASCII. Binary data shorter than its triangle count
// claims is ErrTruncatedSTLData; everything else is ErrNotSTL.
func ParseSTL(data []byte) (*STL, error) {
	if !isBinarySTL(data) && !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		if isTruncatedBinarySTL(data) {
			return nil, ErrTruncatedSTLData
		}
		return nil, ErrNotSTL
	}

	solid, err := stl.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing STL: %w", err)
	}
	if len(solid.Triangles) == 0 {
		return nil, ErrEmptySTL
	}

	out := &STL{
		Name:      solid.Name,
		Binary:    !solid.IsAscii,
		Triangles: make([]STLTriangle, len(solid.Triangles)),
	}
	if out.Binary && out.Name == "" && len(data) >= stlHeaderSize {
		out.Name = string(bytes.TrimRight(data[:stlHeaderSize], " \x00"))
	}
	for i, tri := range solid.Triangles {
		out.Triangles[i] = STLTriangle{
			Normal: tri.Normal,
			Vertices: [3][3]float32{
				tri.Vertices[0],
				tri.Vertices[1],
				tri.Vertices[2],
			},
		}
	}
	return out, nil
}

func isBinarySTL(data []byte) bool {
	if len(data) < stlPreambleSize {
		return false
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:stlPreambleSize])
	return uint64(len(data)) == stlPreambleSize+uint64(count)*stlTriangleSize
}

// isTruncatedBinarySTL reports a binary preamble followed by fewer triangle
// records than it declares. Text is never treated as binary.
func isTruncatedBinarySTL(data []byte) bool {
	if len(data) < stlPreambleSize || isText(data) {
		return false
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:stlPreambleSize])
	return uint64(len(data)) < stlPreambleSize+uint64(count)*stlTriangleSize
}

// isText reports whether the leading bytes are printable ASCII or whitespace.
func isText(data []byte) bool {
	if len(data) > 512 {
		data = data[:512]
	}
	for _, b := range data {
		if (b < 0x20 || b > 0x7e) && b != '\t' && b != '\n' && b != '\r' {
			return false
		}
	}
	return true
}
