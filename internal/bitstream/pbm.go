package bitstream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// headerBits is the width of each dimension field in a transmitted bitmap.
const headerBits = 8

// MaxDimension is the largest column or row count a transmitted bitmap can carry.
const MaxDimension = 1<<headerBits - 1

var (
	ErrNotPBM       = errors.New("not a plain PBM (P1) bitmap")
	ErrTooLarge     = errors.New("bitmap too large to transmit")
	ErrShortHeader  = errors.New("bit sequence shorter than bitmap header")
	ErrInvalidScale = errors.New("invalid scale factor")
)

// Bitmap is a black and white image, one byte per pixel, row major.
type Bitmap struct {
	Columns int
	Rows    int
	Pixels  []byte
}

// ReadPBM parses a plain (P1) portable bitmap. Comments are skipped and
// pixels may be separated by whitespace or packed together.
func ReadPBM(r io.Reader) (*Bitmap, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pbm: %w", err)
	}

	if len(tokens) < 3 || tokens[0] != "P1" {
		return nil, ErrNotPBM
	}
	cols, err := strconv.Atoi(tokens[1])
	if err != nil || cols < 0 {
		return nil, fmt.Errorf("%w: bad column count %q", ErrNotPBM, tokens[1])
	}
	rows, err := strconv.Atoi(tokens[2])
	if err != nil || rows < 0 {
		return nil, fmt.Errorf("%w: bad row count %q", ErrNotPBM, tokens[2])
	}

	// Size the pixel slice from the body, not the header.
	var pixels []byte
	for _, tok := range tokens[3:] {
		for _, c := range tok {
			if c != '0' && c != '1' {
				return nil, fmt.Errorf("%w: pixel %q", ErrNotPBM, c)
			}
			pixels = append(pixels, byte(c-'0'))
		}
	}
	if !holds(cols, rows, len(pixels)) {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrNotPBM, len(pixels), cols, rows)
	}
	return &Bitmap{Columns: cols, Rows: rows, Pixels: pixels}, nil
}

// holds reports whether a cols x rows grid has exactly n cells, without
// overflowing on hostile headers.
func holds(cols, rows, n int) bool {
	if cols == 0 || rows == 0 {
		return n == 0
	}
	return rows <= n/cols && cols*rows == n
}

// WritePBM writes the bitmap in plain (P1) format, one image row per line.
func (b *Bitmap) WritePBM(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "P1\n%d %d\n", b.Columns, b.Rows)
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Columns; c++ {
			if c > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteByte('0' + b.pixel(r, c))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func (b *Bitmap) pixel(r, c int) byte {
	i := r*b.Columns + c
	if i >= len(b.Pixels) {
		return 0
	}
	return b.Pixels[i] & 1
}

// Bits serialises the bitmap for transmission: the column count and row count
// as 8-bit fields, then the pixels.
func (b *Bitmap) Bits() ([]byte, error) {
	if b.Columns > MaxDimension || b.Rows > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d, limit %d", ErrTooLarge, b.Columns, b.Rows, MaxDimension)
	}
	bits := make([]byte, 0, 2*headerBits+len(b.Pixels))
	bits = appendField(bits, b.Columns)
	bits = appendField(bits, b.Rows)
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Columns; c++ {
			bits = append(bits, b.pixel(r, c))
		}
	}
	return bits, nil
}

// BitmapFromBits rebuilds a bitmap from a received sequence. Pixel data that
// does not match the header's dimensions is truncated or filled with zeros.
func BitmapFromBits(bits []byte) (*Bitmap, error) {
	if len(bits) < 2*headerBits {
		return nil, fmt.Errorf("%w: %d bits", ErrShortHeader, len(bits))
	}
	b := &Bitmap{
		Columns: readField(bits[:headerBits]),
		Rows:    readField(bits[headerBits : 2*headerBits]),
	}
	b.Pixels = make([]byte, b.Columns*b.Rows)
	for i, bit := range bits[2*headerBits:] {
		if i >= len(b.Pixels) {
			break
		}
		b.Pixels[i] = bit & 1
	}
	return b, nil
}

// Scale enlarges the bitmap by repeating every pixel times times in both directions.
func (b *Bitmap) Scale(times int) (*Bitmap, error) {
	if times < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidScale, times)
	}
	out := &Bitmap{Columns: b.Columns * times, Rows: b.Rows * times}
	out.Pixels = make([]byte, 0, out.Columns*out.Rows)
	for r := 0; r < b.Rows; r++ {
		row := make([]byte, 0, out.Columns)
		for c := 0; c < b.Columns; c++ {
			for range times {
				row = append(row, b.pixel(r, c))
			}
		}
		for range times {
			out.Pixels = append(out.Pixels, row...)
		}
	}
	return out, nil
}

func appendField(bits []byte, v int) []byte {
	for j := headerBits - 1; j >= 0; j-- {
		bits = append(bits, byte(v>>uint(j))&1)
	}
	return bits
}

func readField(bits []byte) int {
	v := 0
	for _, bit := range bits {
		v = v<<1 | int(bit&1)
	}
	return v
}
