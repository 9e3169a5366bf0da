package tcd

import (
	"bytes"
	"testing"
)

// fakeHeaderParams builds a minimal HeaderParams with exactly the keys
// loadConstituentTable needs, bypassing the ASCII parser.
func fakeHeaderParams(values map[string]any) *HeaderParams {
	return &HeaderParams{values: values}
}

func TestLoadConstituentTableV2(t *testing.T) {
	// 2 constituents, 1 year. speed_bits=16 scale=100 (so raw 100 -> 1.0
	// deg/hr); equilibrium_bits=8 scale=1; node_bits=8 scale=100.
	h := fakeHeaderParams(map[string]any{
		"constituents":      int64(2),
		"number_of_years":   int64(1),
		"major_rev":         int64(2),
		"speed_bits":        int64(16),
		"speed_scale":       100.0,
		"equilibrium_bits":  int64(8),
		"node_bits":         int64(8),
		"node_scale":        100.0,
	})

	// speed section: 2 * 16 bits = 32 bits = 4 bytes, already byte-aligned,
	// v2 so no wasted byte.
	speed := []byte{0x00, 0x64, 0x01, 0x2C} // 100, 300 -> /100 = 1.0, 3.0
	// equilibrium: 2 * 1 * 8 bits = 16 bits = 2 bytes
	eq := []byte{10, 20}
	// node: 2 * 1 * 8 bits = 16 bits = 2 bytes, scale 100
	node := []byte{50, 200} // /100 = 0.5, 2.0

	data := append(append(append([]byte{}, speed...), eq...), node...)

	lt := &LookupTables{ConstituentDataOffset: 0}
	ct, err := loadConstituentTable(bytes.NewReader(data), h, lt)
	if err != nil {
		t.Fatalf("loadConstituentTable: %v", err)
	}

	if len(ct.Speed) != 2 || ct.Speed[0] != 1.0 || ct.Speed[1] != 3.0 {
		t.Errorf("Speed = %v, want [1 3]", ct.Speed)
	}
	if ct.Equilibrium[0][0] != 10 || ct.Equilibrium[1][0] != 20 {
		t.Errorf("Equilibrium = %v, want [[10] [20]]", ct.Equilibrium)
	}
	if ct.NodeFactor[0][0] != 0.5 || ct.NodeFactor[1][0] != 2.0 {
		t.Errorf("NodeFactor = %v, want [[0.5] [2]]", ct.NodeFactor)
	}
}

func TestLoadConstituentTableV1WastesByte(t *testing.T) {
	// 1 constituent, 1 year, every section 8 bits (exact multiple of 8), so
	// v1 wastes one extra byte after each section.
	h := fakeHeaderParams(map[string]any{
		"constituents":      int64(1),
		"number_of_years":   int64(1),
		"major_rev":         int64(1),
		"speed_bits":        int64(8),
		"equilibrium_bits":  int64(8),
		"node_bits":         int64(8),
	})

	data := []byte{
		42,   // speed value
		0xFF, // wasted byte (v1 only)
		7,    // equilibrium value
		0xFF, // wasted byte (v1 only)
		3,    // node value
	}

	lt := &LookupTables{ConstituentDataOffset: 0}
	ct, err := loadConstituentTable(bytes.NewReader(data), h, lt)
	if err != nil {
		t.Fatalf("loadConstituentTable: %v", err)
	}

	if ct.Speed[0] != 42 {
		t.Errorf("Speed[0] = %v, want 42", ct.Speed[0])
	}
	if ct.Equilibrium[0][0] != 7 {
		t.Errorf("Equilibrium[0][0] = %v, want 7", ct.Equilibrium[0][0])
	}
	if ct.NodeFactor[0][0] != 3 {
		t.Errorf("NodeFactor[0][0] = %v, want 3", ct.NodeFactor[0][0])
	}
}

func TestIndexOfConstituent(t *testing.T) {
	names := []string{"M2", "S2", "K1"}
	if idx := indexOfConstituent(names, "K1"); idx != 2 {
		t.Errorf("indexOfConstituent(K1) = %d, want 2", idx)
	}
	if idx := indexOfConstituent(names, "O1"); idx != -1 {
		t.Errorf("indexOfConstituent(O1) = %d, want -1", idx)
	}
}
