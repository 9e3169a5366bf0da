package tcd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sentinelEnd = "__END__"

// LookupTables holds the fixed-size string tables that follow the ASCII
// header, plus the two byte offsets computed from them that every later
// stage seeks to directly.
type LookupTables struct {
	LevelUnits       []string
	DirectionUnits   []string
	Restrictions     []string
	Timezones        []string
	Countries        []string
	Datums           []string
	Legalese         []string
	ConstituentNames []string

	ChecksumPlaceholder [4]byte

	// ConstituentDataOffset is the first byte of the speed/equilibrium/node
	// bit-packed matrices, immediately following the constituent-name table.
	ConstituentDataOffset int64

	// StationRecordsOffset is the first byte of the first station record,
	// computed by adding the constituent matrices' byte budget to
	// ConstituentDataOffset.
	StationRecordsOffset int64
}

// loadLookupTables seeks to the first byte past the header's declared byte
// size and walks every table in the fixed order the format defines.
func loadLookupTables(src Source, h *HeaderParams) (*LookupTables, error) {
	header_size, err := h.HeaderByteSize()
	if err != nil {
		return nil, err
	}

	if _, err := src.Seek(int64(header_size), io.SeekStart); err != nil {
		return nil, errors.Join(ErrIO, err)
	}

	lt := &LookupTables{}

	if _, err := io.ReadFull(src, lt.ChecksumPlaceholder[:]); err != nil {
		return nil, errors.Join(ErrTruncated, err)
	}

	major_rev := h.MajorRev()

	// 1. level units (exact)
	level_count, err := h.RequireInt("level_unit_types")
	if err != nil {
		return nil, err
	}
	level_size, err := h.RequireInt("level_unit_size")
	if err != nil {
		return nil, err
	}
	if lt.LevelUnits, err = readExactTable(src, level_count, level_size); err != nil {
		return nil, err
	}

	// 2. direction units (exact)
	dir_count, err := h.RequireInt("direction_unit_types")
	if err != nil {
		return nil, err
	}
	dir_size, err := h.RequireInt("direction_unit_size")
	if err != nil {
		return nil, err
	}
	if lt.DirectionUnits, err = readExactTable(src, dir_count, dir_size); err != nil {
		return nil, err
	}

	// 3. restrictions (sentinel)
	if lt.Restrictions, err = readSentinelTableByBits(src, h, "restriction"); err != nil {
		return nil, err
	}

	// 4. pedigrees (v1 only; skipped entirely)
	if major_rev < 2 && h.Has("pedigree_bits") && h.Has("pedigree_size") {
		bits, err := h.RequireInt("pedigree_bits")
		if err != nil {
			return nil, err
		}
		size, err := h.RequireInt("pedigree_size")
		if err != nil {
			return nil, err
		}
		if err := skipBytes(src, (int64(1)<<uint(bits))*int64(size)); err != nil {
			return nil, err
		}
	}

	// 5. timezones (sentinel); leading ':' is stripped on surfacing.
	tz, err := readSentinelTableByBits(src, h, "tzfile")
	if err != nil {
		return nil, err
	}
	lt.Timezones = make([]string, len(tz))
	for i, s := range tz {
		lt.Timezones[i] = strings.TrimPrefix(s, ":")
	}

	// 6. countries (sentinel)
	if lt.Countries, err = readSentinelTableByBits(src, h, "country"); err != nil {
		return nil, err
	}

	// 7. datums (sentinel)
	if lt.Datums, err = readSentinelTableByBits(src, h, "datum"); err != nil {
		return nil, err
	}

	// 8. legalese (v2 only); if the size parameters are missing even though
	// major_rev >= 2, synthesize a one-element ["NULL"] vector so index 0
	// still resolves to a non-null value.
	if major_rev >= 2 {
		if h.Has("legalese_bits") && h.Has("legalese_size") {
			if lt.Legalese, err = readSentinelTableByBits(src, h, "legalese"); err != nil {
				return nil, err
			}
		} else {
			lt.Legalese = []string{"NULL"}
		}
	}

	// 9. constituent names (exact)
	n_constituents, err := h.ConstituentCount()
	if err != nil {
		return nil, err
	}
	const_size, err := h.RequireInt("constituent_size")
	if err != nil {
		return nil, err
	}
	if lt.ConstituentNames, err = readExactTable(src, n_constituents, const_size); err != nil {
		return nil, err
	}

	pos, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Join(ErrIO, err)
	}
	lt.ConstituentDataOffset = pos

	budget, err := constituentByteBudget(h, n_constituents, major_rev)
	if err != nil {
		return nil, err
	}
	lt.StationRecordsOffset = lt.ConstituentDataOffset + budget

	return lt, nil
}

// constituentByteBudget computes the rounded byte size of the three
// bit-packed constituent matrices (speed, equilibrium, node factor). v1
// rounds each section up with a "wasted byte" (bits/8 + 1); v2 rounds up to
// the nearest byte (ceil(bits/8)).
func constituentByteBudget(h *HeaderParams, n_constituents, major_rev int) (int64, error) {
	years, err := h.NumberOfYears()
	if err != nil {
		return 0, err
	}

	speed_bits, err := h.Bits("speed")
	if err != nil {
		return 0, err
	}
	eq_bits, err := h.Bits("equilibrium")
	if err != nil {
		return 0, err
	}
	node_bits, err := h.Bits("node")
	if err != nil {
		return 0, err
	}

	speed_total := int64(n_constituents) * int64(speed_bits)
	eq_total := int64(n_constituents) * int64(years) * int64(eq_bits)
	node_total := int64(n_constituents) * int64(years) * int64(node_bits)

	v1 := major_rev < 2

	return roundSectionBytes(speed_total, v1) + roundSectionBytes(eq_total, v1) + roundSectionBytes(node_total, v1), nil
}

func roundSectionBytes(total_bits int64, v1 bool) int64 {
	if v1 {
		return total_bits/8 + 1
	}
	return (total_bits + 7) / 8
}

// readSentinelTableByBits reads a sentinel-shaped table whose allocated size
// is 2^(<field>_bits) slots of <field>_size bytes each.
func readSentinelTableByBits(src Source, h *HeaderParams, field string) ([]string, error) {
	bits, err := h.Bits(field)
	if err != nil {
		return nil, err
	}
	size, err := h.RequireInt(field + "_size")
	if err != nil {
		return nil, err
	}

	return readSentinelTable(src, 1<<bits, size)
}

// readExactTable reads exactly count slots of slot_size bytes, decoding
// every slot.
func readExactTable(src Source, count, slot_size int) ([]string, error) {
	names := make([]string, 0, count)

	buf := make([]byte, slot_size)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(src, buf); err != nil {
			return nil, errors.Join(ErrTruncated, err)
		}
		names = append(names, decodeLatin1Slot(buf))
	}

	return names, nil
}

// readSentinelTable reads up to max slots of slot_size bytes, stopping
// collection at the first slot equal to "__END__" but always advancing the
// cursor past max*slot_size.
func readSentinelTable(src Source, max, slot_size int) ([]string, error) {
	names := make([]string, 0, max)

	buf := make([]byte, slot_size)
	stopped := false

	for i := 0; i < max; i++ {
		if _, err := io.ReadFull(src, buf); err != nil {
			return nil, errors.Join(ErrTruncated, err)
		}
		if stopped {
			continue
		}

		s := decodeLatin1Slot(buf)
		if s == sentinelEnd {
			stopped = true
			continue
		}
		names = append(names, s)
	}

	return names, nil
}

// skipBytes advances src by n bytes without decoding them.
func skipBytes(src Source, n int64) error {
	if n == 0 {
		return nil
	}
	if _, err := src.Seek(n, io.SeekCurrent); err != nil {
		return errors.Join(ErrIO, err)
	}
	return nil
}

// decodeLatin1Slot truncates at the first zero byte and transcodes the
// ISO-8859-1 bytes to UTF-8. Every byte 0x00..0xFF is a valid Latin-1 code
// point, so this never needs a replacement character.
func decodeLatin1Slot(buf []byte) string {
	idx := bytes.IndexByte(buf, 0)
	if idx < 0 {
		idx = len(buf)
	}

	var sb strings.Builder
	sb.Grow(idx)
	for _, b := range buf[:idx] {
		sb.WriteRune(rune(b))
	}

	return sb.String()
}

// nameOrFabricated returns names[idx] if in range, else a fabricated "Ci"
// name (1-based) for constituents whose name table is short or missing.
func nameOrFabricated(names []string, idx int) string {
	if idx >= 0 && idx < len(names) {
		return names[idx]
	}
	return fmt.Sprintf("C%d", idx+1)
}
