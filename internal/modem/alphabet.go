package modem

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
	"strconv"
	"strings"
)

// Order is the number of constellation points of a PSK scheme.
type Order int

const (
	BPSK  Order = 2  // 1 bit per symbol
	QPSK  Order = 4  // 2 bits per symbol
	PSK8  Order = 8  // 3 bits per symbol
	PSK16 Order = 16 // 4 bits per symbol
)

// Orders lists the supported modulation orders, smallest first.
var Orders = []Order{BPSK, QPSK, PSK8, PSK16}

// BitsPerSymbol returns the width of a bit group, or 0 for an unsupported order.
func (o Order) BitsPerSymbol() int {
	if !o.Valid() {
		return 0
	}
	return bits.Len(uint(o)) - 1
}

// Valid reports whether o is one of the supported orders.
func (o Order) Valid() bool {
	_, ok := phaseTables[o]
	return ok
}

// String returns the modulation name.
func (o Order) String() string {
	switch o {
	case BPSK:
		return "BPSK"
	case QPSK:
		return "QPSK"
	case PSK8:
		return "8PSK"
	case PSK16:
		return "16PSK"
	default:
		return "Unknown"
	}
}

// ParseOrder accepts the modulation name ("QPSK", "8-PSK", "psk16") or the point count ("8").
func ParseOrder(s string) (Order, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "")
	switch name {
	case "BPSK", "2PSK", "PSK2":
		return BPSK, nil
	case "QPSK", "4PSK", "PSK4":
		return QPSK, nil
	case "8PSK", "PSK8":
		return PSK8, nil
	case "16PSK", "PSK16":
		return PSK16, nil
	}
	if n, err := strconv.Atoi(name); err == nil && Order(n).Valid() {
		return Order(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOrder, s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Order) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOrder, int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Order) UnmarshalText(text []byte) error {
	parsed, err := ParseOrder(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// phaseTable describes a constellation as data: phase k sits at (2k+1)π/M + rotation
// and carries bit group groups[k].
type phaseTable struct {
	rotation float64
	groups   []int
}

// Gray-coded so that neighbouring decision regions differ in a single bit.
// BPSK is rotated onto {0, π} because the arc-cosine detector cannot tell
// phases that mirror each other about zero; bit 1 rides on phase 0.
var phaseTables = map[Order]phaseTable{
	BPSK:  {rotation: -math.Pi / 2, groups: []int{1, 0}},
	QPSK:  {groups: []int{0b00, 0b01, 0b11, 0b10}},
	PSK8:  {groups: []int{0, 1, 3, 2, 6, 7, 5, 4}},
	PSK16: {groups: []int{0, 1, 3, 2, 6, 7, 5, 4, 12, 13, 15, 14, 10, 11, 9, 8}},
}

// boundaryTolerance is measured in region widths.
const boundaryTolerance = 1e-9

// Alphabet maps bit groups to phases and phases back to bit groups.
type Alphabet struct {
	Order    Order
	width    int
	rotation float64
	phases   []float64 // nominal phase of region k, in [0, 2π)
	groups   []int     // region -> bit group
	regions  []int     // bit group -> region
}

// NewAlphabet builds the phase alphabet for the given order.
func NewAlphabet(order Order) (*Alphabet, error) {
	table, ok := phaseTables[order]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOrder, int(order))
	}

	m := int(order)
	a := &Alphabet{
		Order:    order,
		width:    order.BitsPerSymbol(),
		rotation: table.rotation,
		phases:   make([]float64, m),
		groups:   make([]int, m),
		regions:  make([]int, m),
	}
	for k := 0; k < m; k++ {
		a.phases[k] = wrapPhase(float64(2*k+1)*math.Pi/float64(m) + table.rotation)
		a.groups[k] = table.groups[k]
		a.regions[table.groups[k]] = k
	}
	return a, nil
}

// BitsPerSymbol returns the bit group width.
func (a *Alphabet) BitsPerSymbol() int {
	return a.width
}

// Phases returns the nominal phases in region order.
func (a *Alphabet) Phases() []float64 {
	out := make([]float64, len(a.phases))
	copy(out, a.phases)
	return out
}

// GroupAt returns the bit group carried by region k.
func (a *Alphabet) GroupAt(k int) int {
	return a.groups[k]
}

// Phase returns the nominal phase assigned to a bit group.
func (a *Alphabet) Phase(group int) float64 {
	return a.phases[a.regions[group&(len(a.regions)-1)]]
}

// Symbol returns the unit-circle point for a bit group.
func (a *Alphabet) Symbol(group int) complex128 {
	return cmplx.Rect(1, a.Phase(group))
}

// Region returns the index of the decision region containing phi.
// Regions are right-open: a phase on a boundary belongs to the region
// whose lower bound it is.
func (a *Alphabet) Region(phi float64) int {
	m := len(a.phases)
	x := (phi - a.rotation) / (2 * math.Pi / float64(m))
	if r := math.Round(x); math.Abs(x-r) < boundaryTolerance {
		x = r
	}
	k := int(math.Floor(x)) % m
	if k < 0 {
		k += m
	}
	return k
}

// Decide maps a measured phase to its bit group.
func (a *Alphabet) Decide(phi float64) int {
	return a.groups[a.Region(phi)]
}

// DecideSymbol maps a complex symbol estimate to its bit group.
func (a *Alphabet) DecideSymbol(z complex128) int {
	return a.Decide(cmplx.Phase(z))
}

// GroupOf packs a bit group, most significant bit first.
func (a *Alphabet) GroupOf(bits []byte) int {
	return bitsToIndex(bits)
}

// GroupBits unpacks a bit group into width bits.
func (a *Alphabet) GroupBits(group int) []byte {
	return indexToBits(group, a.width)
}

func wrapPhase(phi float64) float64 {
	phi = math.Mod(phi, 2*math.Pi)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	if phi >= 2*math.Pi {
		phi = 0
	}
	return phi
}

func bitsToIndex(bits []byte) int {
	idx := 0
	for _, b := range bits {
		idx = (idx << 1) | int(b&1)
	}
	return idx
}

func indexToBits(idx, numBits int) []byte {
	bits := make([]byte, numBits)
	for i := numBits - 1; i >= 0; i-- {
		bits[i] = byte(idx & 1)
		idx >>= 1
	}
	return bits
}
