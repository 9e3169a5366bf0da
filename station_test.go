package tcd

import (
	"bytes"
	"testing"
	"time"
)

// bitWriter packs values MSB-first into a byte slice, mirroring how
// BitStream reads them, so station-record fixtures can be built field by
// field instead of hand-computing raw bytes.
type bitWriter struct {
	bits []bool
}

func (w *bitWriter) writeUint(v uint32, n uint) {
	for i := int(n) - 1; i >= 0; i-- {
		w.bits = append(w.bits, (v>>uint(i))&1 == 1)
	}
}

func (w *bitWriter) writeInt(v int32, n uint) {
	w.writeUint(uint32(v)&((1<<n)-1), n)
}

func (w *bitWriter) writeCString(s string) {
	for _, c := range []byte(s) {
		w.writeUint(uint32(c), 8)
	}
	w.writeUint(0, 8)
}

func (w *bitWriter) bytes() []byte {
	n_bytes := (len(w.bits) + 7) / 8
	out := make([]byte, n_bytes)
	for i, b := range w.bits {
		if b {
			out[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return out
}

// stationTestHeader returns a HeaderParams carrying every *_bits/*_scale
// key decodeStationRecord and its helpers need, with small fixed widths.
func stationTestHeader() *HeaderParams {
	return fakeHeaderParams(map[string]any{
		"major_rev": int64(2),

		"record_size_bits": int64(16),
		"record_type_bits": int64(4),
		"latitude_bits":    int64(16),
		"latitude_scale":   100.0,
		"longitude_bits":   int64(16),
		"longitude_scale":  100.0,
		"tzfile_bits":      int64(4),
		"station_bits":     int64(8),

		"country_bits":         int64(4),
		"restriction_bits":     int64(4),
		"legalese_bits":        int64(4),
		"date_bits":            int64(32),
		"direction_unit_bits":  int64(4),
		"direction_bits":       int64(16),
		"level_unit_bits":      int64(4),

		"datum_offset_bits":     int64(16),
		"datum_offset_scale":    1000.0,
		"datum_bits":            int64(4),
		"time_bits":             int64(16),
		"months_on_station_bits": int64(8),
		"confidence_value_bits": int64(4),
		"constituent_bits":      int64(8),
		"amplitude_bits":        int64(16),
		"amplitude_scale":       1000.0,
		"epoch_bits":            int64(16),
		"epoch_scale":           100.0,

		"level_add_bits":      int64(16),
		"level_add_scale":     1000.0,
		"level_multiply_bits": int64(16),
		"level_multiply_scale": 1000.0,
	})
}

func emptyLookupTables() *LookupTables {
	return &LookupTables{}
}

func TestDecodeStationRecordReference(t *testing.T) {
	h := stationTestHeader()
	lt := emptyLookupTables()

	w := &bitWriter{}
	w.writeUint(999, 16) // record_size (returned as-is, not compared with the bytes written)
	w.writeUint(1, 4)    // record_type = reference
	w.writeInt(3781, 16) // latitude 37.81
	w.writeInt(-12241, 16)
	w.writeUint(0, 4) // timezone idx
	w.writeCString("Test Station")
	w.writeInt(-1, 8) // reference index: self

	// v2 metadata
	w.writeUint(0, 4)    // country idx
	w.writeCString("")  // source
	w.writeUint(0, 4)    // restriction idx
	w.writeCString("")  // comments
	w.writeCString("")  // notes
	w.writeUint(0, 4)    // legalese idx
	w.writeCString("")  // station id context
	w.writeCString("")  // station id
	w.writeUint(20200101, 32)
	w.writeCString("") // xfields
	w.writeUint(0, 4)  // direction unit idx
	w.writeUint(361, 16) // min direction: absent
	w.writeUint(361, 16) // max direction: absent
	w.writeUint(0, 4)    // level unit idx

	// reference body
	w.writeInt(500, 16) // datum offset raw -> 0.5
	w.writeUint(0, 4)   // datum idx
	w.writeInt(-530, 16) // zone offset, stored raw (not minutes-decoded)
	w.writeUint(0, 32)   // expiration date
	w.writeUint(0, 8)    // months on station
	w.writeUint(0, 32)   // last date on station
	w.writeUint(10, 4)   // confidence
	w.writeUint(2, 8)    // n_set = 2
	w.writeUint(0, 8)    // constituent idx 0
	w.writeUint(1234, 16)
	w.writeUint(4560, 16)
	w.writeUint(2, 8) // constituent idx 2
	w.writeUint(500, 16)
	w.writeUint(9000, 16)

	data := w.bytes()

	bs, err := NewBitStream(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	st, record_size, err := decodeStationRecord(bs, h, lt, 3)
	if err != nil {
		t.Fatalf("decodeStationRecord: %v", err)
	}
	if record_size != 999 {
		t.Errorf("record_size = %d, want 999", record_size)
	}

	if !st.IsReference() || st.IsSubordinate() {
		t.Errorf("expected reference station, got record_type=%d", st.RecordType)
	}
	if st.Latitude != 37.81 {
		t.Errorf("Latitude = %v, want 37.81", st.Latitude)
	}
	if st.Longitude != -122.41 {
		t.Errorf("Longitude = %v, want -122.41", st.Longitude)
	}
	if st.Name != "Test Station" {
		t.Errorf("Name = %q, want %q", st.Name, "Test Station")
	}
	if st.HasReferenceStation() {
		t.Errorf("expected no reference station (self)")
	}
	if st.HasMinDirection() || st.HasMaxDirection() {
		t.Errorf("expected min/max direction absent")
	}
	if st.DateImported != 20200101 {
		t.Errorf("DateImported = %d, want 20200101", st.DateImported)
	}

	rb := st.Reference
	if rb == nil {
		t.Fatal("Reference body is nil")
	}
	if rb.DatumOffset != 0.5 {
		t.Errorf("DatumOffset = %v, want 0.5", rb.DatumOffset)
	}
	if rb.ZoneOffset != -530 {
		t.Errorf("ZoneOffset = %d, want -530 (raw, not minutes-decoded)", rb.ZoneOffset)
	}
	if rb.Confidence != 10 {
		t.Errorf("Confidence = %d, want 10", rb.Confidence)
	}
	if len(rb.Amplitudes) != 3 || len(rb.Epochs) != 3 {
		t.Fatalf("Amplitudes/Epochs length = %d/%d, want 3/3", len(rb.Amplitudes), len(rb.Epochs))
	}
	if rb.Amplitudes[0] != 1.234 || rb.Amplitudes[1] != 0 || rb.Amplitudes[2] != 0.5 {
		t.Errorf("Amplitudes = %v, want [1.234 0 0.5]", rb.Amplitudes)
	}
	if rb.Epochs[0] != 45.6 || rb.Epochs[2] != 90.0 {
		t.Errorf("Epochs = %v, want [45.6 ? 90]", rb.Epochs)
	}
	if st.ActiveConstituents() != 2 {
		t.Errorf("ActiveConstituents = %d, want 2", st.ActiveConstituents())
	}
	if !st.IsTide() || st.IsCurrent() {
		t.Errorf("reference station must be tide, not current")
	}

	imported, ok := st.ImportedTime()
	if !ok || !imported.Equal(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ImportedTime = %v (ok=%v), want 2020-01-01 (true)", imported, ok)
	}
	if _, ok := st.ExpirationTime(); ok {
		t.Errorf("expected ExpirationTime absent (zero field)")
	}
}

func TestYYYYMMDDToTime(t *testing.T) {
	cases := []struct {
		name string
		in   int
		want time.Time
		ok   bool
	}{
		{"absent", 0, time.Time{}, false},
		{"valid", 20200101, time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), true},
		{"leap day valid", 20200229, time.Date(2020, time.February, 29, 0, 0, 0, 0, time.UTC), true},
		{"leap day invalid on non-leap year", 20210229, time.Time{}, false},
		{"month out of range", 20201301, time.Time{}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := yyyymmddToTime(c.in)
			if ok != c.ok {
				t.Fatalf("ok = %v, want %v", ok, c.ok)
			}
			if ok && !got.Equal(c.want) {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestDecodeStationRecordSubordinateSimple(t *testing.T) {
	h := stationTestHeader()
	lt := emptyLookupTables()

	w := &bitWriter{}
	w.writeUint(999, 16)
	w.writeUint(2, 4) // record_type = subordinate
	w.writeInt(0, 16)
	w.writeInt(0, 16)
	w.writeUint(0, 4)
	w.writeCString("Sub Station")
	w.writeInt(5, 8) // references station index 5

	// v2 metadata
	w.writeUint(0, 4)
	w.writeCString("")
	w.writeUint(0, 4)
	w.writeCString("")
	w.writeCString("")
	w.writeUint(0, 4)
	w.writeCString("")
	w.writeCString("")
	w.writeUint(0, 32)
	w.writeCString("")
	w.writeUint(0, 4)
	w.writeUint(361, 16) // min direction absent
	w.writeUint(361, 16) // max direction absent
	w.writeUint(0, 4)

	// subordinate body: simple (tide) station — equal min/max, no slack
	w.writeInt(30, 16)   // min time add raw -> 30 minutes
	w.writeInt(100, 16)  // min level add raw -> 0.1
	w.writeUint(0, 16)   // min level multiply raw 0 -> 1.0
	w.writeInt(30, 16)   // max time add (equal)
	w.writeInt(100, 16)  // max level add (equal)
	w.writeUint(0, 16)   // max level multiply (equal)
	w.writeInt(2560, 16) // flood begins: absent sentinel
	w.writeInt(2560, 16) // ebb begins: absent sentinel

	data := w.bytes()
	bs, err := NewBitStream(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	st, _, err := decodeStationRecord(bs, h, lt, 3)
	if err != nil {
		t.Fatalf("decodeStationRecord: %v", err)
	}

	if !st.IsSubordinate() {
		t.Fatalf("expected subordinate station")
	}
	if !st.HasReferenceStation() || st.ReferenceIndex != 5 {
		t.Errorf("ReferenceIndex = %d (has=%v), want 5 (true)", st.ReferenceIndex, st.HasReferenceStation())
	}

	sb := st.Subordinate
	if sb == nil {
		t.Fatal("Subordinate body is nil")
	}
	if sb.MinLevelMultiply != 1.0 || sb.MaxLevelMultiply != 1.0 {
		t.Errorf("level multiply = %v/%v, want 1.0/1.0 (raw 0 maps to 1.0)", sb.MinLevelMultiply, sb.MaxLevelMultiply)
	}
	if sb.HasFloodBegins || sb.HasEbbBegins {
		t.Errorf("expected flood/ebb begins absent")
	}

	if !st.IsSimple() {
		t.Errorf("expected IsSimple true for equal min/max with no direction/slack")
	}
	if !st.IsTide() || st.IsCurrent() {
		t.Errorf("simple subordinate must classify as tide, not current")
	}
}

func TestDecodeStationRecordSubordinateCurrent(t *testing.T) {
	h := stationTestHeader()
	lt := emptyLookupTables()

	w := &bitWriter{}
	w.writeUint(999, 16)
	w.writeUint(2, 4)
	w.writeInt(0, 16)
	w.writeInt(0, 16)
	w.writeUint(0, 4)
	w.writeCString("Current Station")
	w.writeInt(7, 8)

	w.writeUint(0, 4)
	w.writeCString("")
	w.writeUint(0, 4)
	w.writeCString("")
	w.writeCString("")
	w.writeUint(0, 4)
	w.writeCString("")
	w.writeCString("")
	w.writeUint(0, 32)
	w.writeCString("")
	w.writeUint(0, 4)
	w.writeUint(361, 16)
	w.writeUint(361, 16)
	w.writeUint(0, 4)

	w.writeInt(30, 16)
	w.writeInt(100, 16)
	w.writeUint(0, 16)
	w.writeInt(90, 16) // differs from min -> not simple
	w.writeInt(100, 16)
	w.writeUint(0, 16)
	w.writeInt(100, 16) // flood begins present: 0100 -> 60 minutes
	w.writeInt(2560, 16)

	data := w.bytes()
	bs, err := NewBitStream(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	st, _, err := decodeStationRecord(bs, h, lt, 3)
	if err != nil {
		t.Fatalf("decodeStationRecord: %v", err)
	}

	if st.IsSimple() {
		t.Errorf("expected IsSimple false (flood begins present, time adds differ)")
	}
	if !st.IsCurrent() || st.IsTide() {
		t.Errorf("expected current classification")
	}
	if !st.Subordinate.HasFloodBegins || st.Subordinate.FloodBeginsMinutes != 60 {
		t.Errorf("FloodBeginsMinutes = %d (has=%v), want 60 (true)", st.Subordinate.FloodBeginsMinutes, st.Subordinate.HasFloodBegins)
	}
}
