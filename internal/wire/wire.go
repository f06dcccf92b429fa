// Package wire implements the binary form of routing updates and of the
// engine construction contract.
//
// A routing record is a 12-byte header {tag, numInputs, numOutputs},
// followed by numInputs*numOutputs float32 delays and then as many
// float32 gains, input-major, everything little-endian. A spec record is
// the tagged construction contract: {tag, numInputs, numOutputs,
// maxSamplesPerChannel, maxDelaySamples}. Routing automation files start
// with one spec record followed by routing records, one per processing
// block.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/pob31/WFS-DIY-sub001/internal/routing"
)

// Record tags.
const (
	TagSpec    uint32 = 0x57465330 // "WFS0"
	TagRouting uint32 = 0x57465331 // "WFS1"
)

// Wire limits.
const (
	// MaxDimension caps channel counts in decoded headers so a corrupt
	// record cannot demand a huge allocation.
	MaxDimension = 4096

	messageHeaderLen = 12
	specRecordLen    = 20
)

var (
	// ErrBadTag is returned when a record does not carry the expected tag.
	ErrBadTag = errors.New("wire: unrecognized record tag")
)

// Spec is the wire form of the engine construction contract.
type Spec struct {
	NumInputs            int
	NumOutputs           int
	MaxSamplesPerChannel int
	MaxDelaySamples      int
}

// EncodeMessage returns the binary form of m.
func EncodeMessage(m *routing.Message) ([]byte, error) {
	if err := checkDims(m.NumInputs, m.NumOutputs); err != nil {
		return nil, err
	}
	n := m.NumInputs * m.NumOutputs
	if len(m.Delays) != n || len(m.Gains) != n {
		return nil, fmt.Errorf("wire: message tables have %d/%d entries, want %d", len(m.Delays), len(m.Gains), n)
	}
	buf := make([]byte, 0, messageHeaderLen+8*n)
	return appendMessage(buf, m), nil
}

// appendMessage appends m's binary form to buf.
func appendMessage(buf []byte, m *routing.Message) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, TagRouting)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.NumInputs))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.NumOutputs))
	for _, d := range m.Delays {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(d))
	}
	for _, g := range m.Gains {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(g))
	}
	return buf
}

// DecodeMessage parses one routing record. The buffer must contain the
// record exactly, with no trailing bytes.
func DecodeMessage(buf []byte) (*routing.Message, error) {
	if len(buf) < messageHeaderLen {
		return nil, fmt.Errorf("wire: routing record truncated at %d bytes", len(buf))
	}
	if tag := binary.LittleEndian.Uint32(buf[0:4]); tag != TagRouting {
		return nil, fmt.Errorf("%w: 0x%08x", ErrBadTag, tag)
	}
	numIn := int(binary.LittleEndian.Uint32(buf[4:8]))
	numOut := int(binary.LittleEndian.Uint32(buf[8:12]))
	if err := checkDims(numIn, numOut); err != nil {
		return nil, err
	}
	n := numIn * numOut
	if want := messageHeaderLen + 8*n; len(buf) != want {
		return nil, fmt.Errorf("wire: routing record is %d bytes, want %d for %dx%d", len(buf), want, numIn, numOut)
	}
	m := routing.NewMessage(numIn, numOut)
	off := messageHeaderLen
	for i := 0; i < n; i++ {
		m.Delays[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	for i := 0; i < n; i++ {
		m.Gains[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	return m, nil
}

// EncodeSpec returns the binary form of s.
func EncodeSpec(s Spec) ([]byte, error) {
	if err := checkDims(s.NumInputs, s.NumOutputs); err != nil {
		return nil, err
	}
	if s.MaxSamplesPerChannel <= 0 || s.MaxDelaySamples <= 0 {
		return nil, fmt.Errorf("wire: spec limits must be positive, got block %d delay %d",
			s.MaxSamplesPerChannel, s.MaxDelaySamples)
	}
	buf := make([]byte, 0, specRecordLen)
	buf = binary.LittleEndian.AppendUint32(buf, TagSpec)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.NumInputs))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.NumOutputs))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.MaxSamplesPerChannel))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.MaxDelaySamples))
	return buf, nil
}

// DecodeSpec parses one spec record.
func DecodeSpec(buf []byte) (Spec, error) {
	if len(buf) != specRecordLen {
		return Spec{}, fmt.Errorf("wire: spec record is %d bytes, want %d", len(buf), specRecordLen)
	}
	if tag := binary.LittleEndian.Uint32(buf[0:4]); tag != TagSpec {
		return Spec{}, fmt.Errorf("%w: 0x%08x", ErrBadTag, tag)
	}
	s := Spec{
		NumInputs:            int(binary.LittleEndian.Uint32(buf[4:8])),
		NumOutputs:           int(binary.LittleEndian.Uint32(buf[8:12])),
		MaxSamplesPerChannel: int(binary.LittleEndian.Uint32(buf[12:16])),
		MaxDelaySamples:      int(binary.LittleEndian.Uint32(buf[16:20])),
	}
	if err := checkDims(s.NumInputs, s.NumOutputs); err != nil {
		return Spec{}, err
	}
	if s.MaxSamplesPerChannel <= 0 || s.MaxDelaySamples <= 0 {
		return Spec{}, fmt.Errorf("wire: spec limits must be positive, got block %d delay %d",
			s.MaxSamplesPerChannel, s.MaxDelaySamples)
	}
	return s, nil
}

// checkDims rejects channel counts outside [1, MaxDimension].
func checkDims(numIn, numOut int) error {
	if numIn < 1 || numIn > MaxDimension {
		return fmt.Errorf("wire: input count %d outside [1, %d]", numIn, MaxDimension)
	}
	if numOut < 1 || numOut > MaxDimension {
		return fmt.Errorf("wire: output count %d outside [1, %d]", numOut, MaxDimension)
	}
	return nil
}

// Writer writes a routing automation stream: one spec record, then one
// routing record per block.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteSpec writes the stream's spec record. Call it once, first.
func (w *Writer) WriteSpec(s Spec) error {
	buf, err := EncodeSpec(s)
	if err != nil {
		return err
	}
	_, err = w.w.Write(buf)
	return err
}

// WriteMessage writes one routing record.
func (w *Writer) WriteMessage(m *routing.Message) error {
	if err := checkDims(m.NumInputs, m.NumOutputs); err != nil {
		return err
	}
	n := m.NumInputs * m.NumOutputs
	if len(m.Delays) != n || len(m.Gains) != n {
		return fmt.Errorf("wire: message tables have %d/%d entries, want %d", len(m.Delays), len(m.Gains), n)
	}
	w.buf = appendMessage(w.buf[:0], m)
	_, err := w.w.Write(w.buf)
	return err
}

// Reader reads a routing automation stream.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader creates a Reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadSpec reads the stream's leading spec record.
func (r *Reader) ReadSpec() (Spec, error) {
	r.buf = grow(r.buf, specRecordLen)
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		return Spec{}, fmt.Errorf("wire: read spec record: %w", err)
	}
	return DecodeSpec(r.buf)
}

// ReadMessage reads the next routing record. It returns io.EOF at a
// clean end of stream and io.ErrUnexpectedEOF on a torn record.
func (r *Reader) ReadMessage() (*routing.Message, error) {
	var header [messageHeaderLen]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: read routing header: %w", err)
	}
	if tag := binary.LittleEndian.Uint32(header[0:4]); tag != TagRouting {
		return nil, fmt.Errorf("%w: 0x%08x", ErrBadTag, tag)
	}
	numIn := int(binary.LittleEndian.Uint32(header[4:8]))
	numOut := int(binary.LittleEndian.Uint32(header[8:12]))
	if err := checkDims(numIn, numOut); err != nil {
		return nil, err
	}
	n := numIn * numOut
	r.buf = grow(r.buf, messageHeaderLen+8*n)
	copy(r.buf, header[:])
	if _, err := io.ReadFull(r.r, r.buf[messageHeaderLen:]); err != nil {
		return nil, fmt.Errorf("wire: read routing payload: %w", err)
	}
	return DecodeMessage(r.buf)
}

// grow returns buf resized to n bytes, reallocating only when needed.
func grow(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}
