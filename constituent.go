package tcd

import (
	"errors"
	"io"
)

// ConstituentTable holds the three bit-packed matrices that follow the
// lookup tables: each constituent's astronomical speed, and its
// equilibrium argument and node factor for every year the database covers.
type ConstituentTable struct {
	// Speed is in degrees per hour, one value per constituent.
	Speed []float64

	// Equilibrium[c][y] is the equilibrium argument in degrees for
	// constituent c in the y-th covered year.
	Equilibrium [][]float64

	// NodeFactor[c][y] is the dimensionless node factor for constituent c
	// in the y-th covered year.
	NodeFactor [][]float64
}

// loadConstituentTable seeks to lt.ConstituentDataOffset and reads the
// speed, equilibrium, and node-factor matrices in that fixed order. Each
// matrix is its own bit-packed section, byte-aligned at the end; v1 files
// additionally waste one full byte whenever a section's bit total happens
// to already be a multiple of 8.
func loadConstituentTable(src Source, h *HeaderParams, lt *LookupTables) (*ConstituentTable, error) {
	n_constituents, err := h.ConstituentCount()
	if err != nil {
		return nil, err
	}
	years, err := h.NumberOfYears()
	if err != nil {
		return nil, err
	}

	speed_bits, err := h.Bits("speed")
	if err != nil {
		return nil, err
	}
	eq_bits, err := h.Bits("equilibrium")
	if err != nil {
		return nil, err
	}
	node_bits, err := h.Bits("node")
	if err != nil {
		return nil, err
	}

	if _, err := src.Seek(lt.ConstituentDataOffset, io.SeekStart); err != nil {
		return nil, errors.Join(ErrIO, err)
	}

	bs, err := NewBitStream(src)
	if err != nil {
		return nil, err
	}

	v1 := h.MajorRev() < 2

	speed := make([]float64, n_constituents)
	for i := range speed {
		v, err := bs.ReadOffsetScaled(speed_bits, h.Offset("speed"), h.Scale("speed"))
		if err != nil {
			return nil, err
		}
		speed[i] = v
	}
	if err := alignSection(bs, int64(n_constituents)*int64(speed_bits), v1); err != nil {
		return nil, err
	}

	equilibrium, err := readYearMatrix(bs, n_constituents, years, eq_bits, h.Offset("equilibrium"), h.Scale("equilibrium"))
	if err != nil {
		return nil, err
	}
	if err := alignSection(bs, int64(n_constituents)*int64(years)*int64(eq_bits), v1); err != nil {
		return nil, err
	}

	node, err := readYearMatrix(bs, n_constituents, years, node_bits, h.Offset("node"), h.Scale("node"))
	if err != nil {
		return nil, err
	}
	if err := alignSection(bs, int64(n_constituents)*int64(years)*int64(node_bits), v1); err != nil {
		return nil, err
	}

	return &ConstituentTable{Speed: speed, Equilibrium: equilibrium, NodeFactor: node}, nil
}

func readYearMatrix(bs *BitStream, n_constituents, years int, bits uint, offset, scale float64) ([][]float64, error) {
	m := make([][]float64, n_constituents)
	for i := range m {
		m[i] = make([]float64, years)
		for y := 0; y < years; y++ {
			v, err := bs.ReadOffsetScaled(bits, offset, scale)
			if err != nil {
				return nil, err
			}
			m[i][y] = v
		}
	}
	return m, nil
}

// alignSection byte-aligns the stream after a section and, for v1 files,
// skips the extra wasted byte that appears whenever the section's bit
// total was already a multiple of 8.
func alignSection(bs *BitStream, total_bits int64, v1 bool) error {
	bs.Align()
	if v1 && total_bits%8 == 0 {
		if err := bs.Seek(bs.Pos() + 1); err != nil {
			return err
		}
	}
	return nil
}

// indexOfConstituent returns the index of name within names, or -1.
func indexOfConstituent(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
