package shader

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

// Magic opens every serialized package.
const Magic uint32 = 0x51534236

const formatVersion uint32 = 1

// maxChunk bounds any single length read from a package.
const maxChunk = 64 << 20

var ErrInvalidPackage = errors.New("invalid shader package")

// Encode serializes the package: an uncompressed magic and version,
// followed by a zlib stream of little-endian fields.
func Encode(p *Package) ([]byte, error) {
	var out bytes.Buffer
	hdr := [2]uint32{Magic, formatVersion}
	if err := binary.Write(&out, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	zw := zlib.NewWriter(&out)
	w := &writer{w: bufio.NewWriter(zw)}

	w.u32(uint32(p.Stage))
	w.variables(p.Reflection.Inputs)
	w.variables(p.Reflection.Outputs)
	w.u32(uint32(len(p.Reflection.UniformBlocks)))
	for _, b := range p.Reflection.UniformBlocks {
		w.str(b.Name)
		w.u32(b.Binding)
		w.u32(b.Set)
		w.u32(b.Size)
		w.u32(uint32(len(b.Members)))
		for _, m := range b.Members {
			w.str(m.Name)
			w.u32(uint32(m.Type))
			w.u32(m.Offset)
			w.u32(m.Size)
			w.u32(m.MatrixStride)
		}
	}
	w.u32(uint32(len(p.Reflection.Samplers)))
	for _, s := range p.Reflection.Samplers {
		w.str(s.Name)
		w.u32(uint32(s.Type))
		w.u32(s.Binding)
		w.u32(s.Set)
	}
	keys := p.Keys()
	w.u32(uint32(len(keys)))
	for _, k := range keys {
		c := p.shaders[k]
		w.u32(uint32(k.Source))
		w.u32(uint32(k.Version))
		w.u32(uint32(k.Variant))
		w.bytes(c.Bytes)
		w.str(c.EntryPoint)
	}
	if w.err == nil {
		w.err = w.w.Flush()
	}
	if w.err != nil {
		return nil, fmt.Errorf("failed to encode shader package: %w", w.err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode shader package: %w", err)
	}
	return out.Bytes(), nil
}

func Decode(data []byte) (*Package, error) {
	r := bytes.NewReader(data)
	var hdr [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	if hdr[0] != Magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrInvalidPackage, hdr[0])
	}
	if hdr[1] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPackage, hdr[1])
	}
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	defer zr.Close()
	rd := &reader{r: bufio.NewReader(zr)}

	p := New(metadata.ShaderStage(rd.u32()), Reflection{})
	p.Reflection.Inputs = rd.variables()
	p.Reflection.Outputs = rd.variables()
	for n := rd.count(); n > 0 && rd.err == nil; n-- {
		b := UniformBlock{Name: rd.str(), Binding: rd.u32(), Set: rd.u32(), Size: rd.u32()}
		for m := rd.count(); m > 0 && rd.err == nil; m-- {
			b.Members = append(b.Members, BlockMember{
				Name: rd.str(), Type: VariableType(rd.u32()),
				Offset: rd.u32(), Size: rd.u32(), MatrixStride: rd.u32(),
			})
		}
		p.Reflection.UniformBlocks = append(p.Reflection.UniformBlocks, b)
	}
	for n := rd.count(); n > 0 && rd.err == nil; n-- {
		p.Reflection.Samplers = append(p.Reflection.Samplers, Sampler{
			Name: rd.str(), Type: VariableType(rd.u32()), Binding: rd.u32(), Set: rd.u32(),
		})
	}
	for n := rd.count(); n > 0 && rd.err == nil; n-- {
		k := Key{
			Source:  metadata.ShaderSourceKind(rd.u32()),
			Version: int(rd.u32()),
			Variant: metadata.ShaderVariant(rd.u32()),
		}
		c := Code{Bytes: rd.bytes(), EntryPoint: rd.str()}
		p.shaders[k] = c
	}
	if rd.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, rd.err)
	}
	return p, nil
}

// LoadFile reads and decodes a package from disk.
func LoadFile(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader package %s: %w", path, err)
	}
	p, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

type writer struct {
	w   *bufio.Writer
	err error
}

func (w *writer) u32(v uint32) {
	if w.err != nil {
		return
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, w.err = w.w.Write(b[:])
}

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(b)
}

func (w *writer) str(s string) {
	w.bytes([]byte(s))
}

func (w *writer) variables(vs []Variable) {
	w.u32(uint32(len(vs)))
	for _, v := range vs {
		w.str(v.Name)
		w.u32(v.Location)
		w.u32(uint32(v.Type))
	}
}

type reader struct {
	r   *bufio.Reader
	err error
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.err = err
		return 0
	}
	return binary.LittleEndian.Uint32(b[:])
}

func (r *reader) count() int {
	n := r.u32()
	if n > maxChunk {
		r.err = fmt.Errorf("length %d out of range", n)
		return 0
	}
	return int(n)
}

func (r *reader) bytes() []byte {
	n := r.count()
	if r.err != nil {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = err
		return nil
	}
	return b
}

func (r *reader) str() string {
	return string(r.bytes())
}

func (r *reader) variables() []Variable {
	var vs []Variable
	for n := r.count(); n > 0 && r.err == nil; n-- {
		vs = append(vs, Variable{Name: r.str(), Location: r.u32(), Type: VariableType(r.u32())})
	}
	return vs
}
