package tcd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	stgpsr "github.com/yuin/stagparser"
)

const headerTerminator = "[END OF ASCII HEADER DATA]"

var (
	header_line_re = regexp.MustCompile(`^\[(.+?)\]\s*=\s*(.*)$`)
	header_int_re  = regexp.MustCompile(`^[-+]?[0-9]+$`)
)

// requiredHeaderKeys declares, once, the header parameters that every TCD
// file must carry. The `tcd` struct tag is walked with stagparser the same
// way the teacher corpus drives its TileDB schema generation from struct
// tags (see spatialindex), rather than a hand-rolled chain of `if _, ok :=
// ...` checks repeated per key.
type requiredHeaderKeys struct {
	HeaderByteSize int `tcd:"key=header_byte_size,required=true"`
	NumberOfRecords int `tcd:"key=number_of_records,required=true"`
	Constituents    int `tcd:"key=constituents,required=true"`
	StartYear       int `tcd:"key=start_year,required=true"`
	NumberOfYears   int `tcd:"key=number_of_years,required=true"`
}

// HeaderParams is the parsed ASCII "[KEY] = VALUE" preamble of a TCD file.
// Every field width, scale, and offset used by the rest of the decoder
// comes from here; nothing downstream hard-codes a layout constant.
type HeaderParams struct {
	values map[string]any
}

// parseHeaderParams reads header lines from r until the terminator line, or
// until r is exhausted (an error either way, since the terminator is
// mandatory), then validates the required-key contract.
func parseHeaderParams(r io.Reader) (*HeaderParams, error) {
	values := make(map[string]any)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	terminated := false

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == headerTerminator {
			terminated = true
			break
		}

		m := header_line_re.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%w: malformed header line %q", ErrFormat, line)
		}

		key := normalizeHeaderKey(m[1])
		values[key] = parseHeaderValue(m[2])
	}

	if err := sc.Err(); err != nil {
		return nil, errors.Join(ErrIO, err)
	}
	if !terminated {
		return nil, fmt.Errorf("%w: missing %s", ErrFormat, headerTerminator)
	}

	h := &HeaderParams{values: values}
	if err := h.validateRequired(); err != nil {
		return nil, err
	}

	return h, nil
}

// normalizeHeaderKey lowercases a raw "[KEY]" and folds whitespace runs to
// a single underscore, e.g. "[START   YEAR]" -> "start_year".
func normalizeHeaderKey(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	return strings.Join(strings.Fields(lower), "_")
}

// parseHeaderValue applies the int/float/text classification rule: an
// optional sign followed only by digits is an integer; anything containing
// a decimal point that parses as a float is a float; everything else is
// kept as text.
func parseHeaderValue(raw string) any {
	v := strings.TrimSpace(raw)

	if header_int_re.MatchString(v) {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}

	if strings.Contains(v, ".") {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}

	return v
}

// validateRequired walks requiredHeaderKeys' `tcd` tags and fails with
// ErrFormat on the first declared-required key this header doesn't carry.
func (h *HeaderParams) validateRequired() error {
	defs, err := stgpsr.ParseStruct(&requiredHeaderKeys{}, "tcd")
	if err != nil {
		return errors.Join(ErrFormat, err)
	}

	for field_name, tags := range defs {
		by_name := make(map[string]stgpsr.Definition, len(tags))
		for _, d := range tags {
			by_name[d.Name()] = d
		}

		req, ok := by_name["required"]
		if !ok {
			continue
		}
		if val, _ := req.Attribute("required"); fmt.Sprint(val) != "true" {
			continue
		}

		key_def, ok := by_name["key"]
		if !ok {
			return fmt.Errorf("%w: field %s has no key tag", ErrFormat, field_name)
		}
		key_val, _ := key_def.Attribute("key")
		key := fmt.Sprint(key_val)

		if _, present := h.values[key]; !present {
			return fmt.Errorf("%w: missing required header key %q", ErrFormat, key)
		}
	}

	return nil
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// Has reports whether the header carries the given normalized key.
func (h *HeaderParams) Has(key string) bool {
	_, ok := h.values[key]
	return ok
}

// RequireInt returns the integer value of key, or ErrFormat if it is absent
// or not numeric.
func (h *HeaderParams) RequireInt(key string) (int, error) {
	v, ok := h.values[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing header key %q", ErrFormat, key)
	}
	n, ok := toInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: header key %q is not numeric", ErrFormat, key)
	}
	return int(n), nil
}

// IntOr returns the integer value of key, or def if absent/non-numeric.
func (h *HeaderParams) IntOr(key string, def int) int {
	n, err := h.RequireInt(key)
	if err != nil {
		return def
	}
	return n
}

// FloatOr returns the float value of key, or def if absent/non-numeric.
func (h *HeaderParams) FloatOr(key string, def float64) float64 {
	v, ok := h.values[key]
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return f
}

// StringOr returns the text value of key, or def if absent. Numeric values
// are stringified rather than treated as absent.
func (h *HeaderParams) StringOr(key string, def string) string {
	v, ok := h.values[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	}
	return def
}

// Bits returns the `<field>_bits` width declared for field, validated to
// fall within 1..32.
func (h *HeaderParams) Bits(field string) (uint, error) {
	n, err := h.RequireInt(field + "_bits")
	if err != nil {
		return 0, err
	}
	if n < 1 || n > 32 {
		return 0, fmt.Errorf("%w: %s_bits=%d out of range 1..32", ErrFormat, field, n)
	}
	return uint(n), nil
}

// Scale returns the `<field>_scale` divisor, defaulting to 1.0.
func (h *HeaderParams) Scale(field string) float64 {
	return h.FloatOr(field+"_scale", 1.0)
}

// Offset returns the `<field>_offset` addend, defaulting to 0.0.
func (h *HeaderParams) Offset(field string) float64 {
	return h.FloatOr(field+"_offset", 0.0)
}

// HeaderByteSize is the byte length of the ASCII header region, from the
// start of the file to the byte immediately preceding the checksum
// placeholder.
func (h *HeaderParams) HeaderByteSize() (int, error) {
	return h.RequireInt("header_byte_size")
}

// RecordCount is the number of station records in the file.
func (h *HeaderParams) RecordCount() (int, error) {
	return h.RequireInt("number_of_records")
}

// ConstituentCount is the number of harmonic constituents catalogued.
func (h *HeaderParams) ConstituentCount() (int, error) {
	return h.RequireInt("constituents")
}

// StartYear is the first calendar year covered by the equilibrium argument
// and node factor vectors.
func (h *HeaderParams) StartYear() (int, error) {
	return h.RequireInt("start_year")
}

// NumberOfYears is the length of the equilibrium argument and node factor
// vectors.
func (h *HeaderParams) NumberOfYears() (int, error) {
	return h.RequireInt("number_of_years")
}

// MajorRev is the major format revision. Absent is treated as 2: every
// required key this decoder validates already presumes the v2 layout, so a
// file passing validation without an explicit revision is assumed current.
func (h *HeaderParams) MajorRev() int {
	return h.IntOr("major_rev", 2)
}

// MinorRev is the minor format revision, defaulting to 0 when absent.
func (h *HeaderParams) MinorRev() int {
	return h.IntOr("minor_rev", 0)
}

// EndOfFileSize is the advertised size, in bytes, of the end-of-file
// marker region, defaulting to 0 when absent.
func (h *HeaderParams) EndOfFileSize() int {
	return h.IntOr("end_of_file", 0)
}

// LastModified is the free-text last-modified timestamp, if present.
func (h *HeaderParams) LastModified() string {
	return h.StringOr("last_modified", "")
}

// Version is the free-text format version string, if present.
func (h *HeaderParams) Version() string {
	return h.StringOr("version", "")
}
