package tcd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

var daysInMonth = [...]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// yyyymmddToTime parses the decoder's integer date encoding (0 means
// absent), validating the day-of-month bound the same way the teacher's
// reference-time parser validates against julian.LeapYearGregorian.
func yyyymmddToTime(n int) (time.Time, bool) {
	if n == 0 {
		return time.Time{}, false
	}

	year := n / 10000
	month := (n / 100) % 100
	day := n % 100

	if month < 1 || month > 12 {
		return time.Time{}, false
	}

	max_day := daysInMonth[month-1]
	if month == 2 && julian.LeapYearGregorian(year) {
		max_day = 29
	}
	if day < 1 || day > max_day {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

const (
	recordTypeReference  = 1
	recordTypeSubordinate = 2

	nullReferenceIndex = -1
	nullDirection      = 361
	nullSlackOffset    = 2560
)

// ReferenceBody holds the fields only a reference-type station carries.
type ReferenceBody struct {
	DatumOffset      float64
	Datum            string

	// ZoneOffset is the raw signed HHMM encoding (e.g. -530 for UTC-05:30),
	// stored untouched: unlike the subordinate body's time fields, this one
	// is not run through decodeTimeOffset's minutes conversion.
	ZoneOffset       int
	ExpirationDate   int
	MonthsOnStation  int
	LastDateOnStation int
	Confidence       int

	// Amplitudes and Epochs are indexed exactly like the constituent
	// table: Amplitudes[i] and Epochs[i] correspond to ConstituentTable's
	// i-th constituent. Entries never explicitly listed on disk are 0.0.
	Amplitudes []float64
	Epochs     []float64
}

// SubordinateBody holds the fields only a subordinate-type station
// carries. FloodBeginsMinutes and EbbBeginsMinutes are meaningful only when
// HasFloodBegins/HasEbbBegins is true; a false flag means the on-disk value
// was the 2560 NULL_SLACK_OFFSET sentinel.
type SubordinateBody struct {
	MinTimeAddMinutes     int
	MinLevelAdd           float64
	MinLevelMultiply      float64
	MaxTimeAddMinutes     int
	MaxLevelAdd           float64
	MaxLevelMultiply      float64
	FloodBeginsMinutes    int
	HasFloodBegins        bool
	EbbBeginsMinutes      int
	HasEbbBegins          bool
}

// Station is one decoded TCD station record, either reference or
// subordinate. Exactly one of Reference/Subordinate is non-nil.
type Station struct {
	RecordSize int
	RecordType int

	Latitude  float64
	Longitude float64
	Timezone  string
	Name      string

	hasReferenceIndex bool
	ReferenceIndex    int

	Country         string
	Source          string
	Restriction     string
	Comments        string
	Notes           string
	Legalese        string
	StationIDContext string
	StationID       string
	DateImported    int
	Xfields         string

	DirectionUnits string
	hasMinDirection bool
	MinDirection    int
	hasMaxDirection bool
	MaxDirection    int
	LevelUnits     string

	Reference   *ReferenceBody
	Subordinate *SubordinateBody
}

// IsReference reports whether this is a reference-type station.
func (s *Station) IsReference() bool { return s.RecordType == recordTypeReference }

// IsSubordinate reports whether this is a subordinate-type station.
func (s *Station) IsSubordinate() bool { return s.RecordType == recordTypeSubordinate }

// HasReferenceStation reports whether ReferenceIndex points at another
// station rather than at itself (the -1 sentinel).
func (s *Station) HasReferenceStation() bool { return s.hasReferenceIndex }

// HasMinDirection reports whether MinDirection is present (not the 361
// NULL_DIRECTION sentinel).
func (s *Station) HasMinDirection() bool { return s.hasMinDirection }

// HasMaxDirection reports whether MaxDirection is present.
func (s *Station) HasMaxDirection() bool { return s.hasMaxDirection }

// IsSimple reports whether a subordinate station's min/max event pairs are
// all equal and it carries no direction or slack information — i.e. it is
// a tide station rather than a current station.
func (s *Station) IsSimple() bool {
	if !s.IsSubordinate() {
		return false
	}
	sub := s.Subordinate
	return sub.MaxTimeAddMinutes == sub.MinTimeAddMinutes &&
		sub.MaxLevelAdd == sub.MinLevelAdd &&
		sub.MaxLevelMultiply == sub.MinLevelMultiply &&
		!s.hasMinDirection && !s.hasMaxDirection &&
		!sub.HasFloodBegins && !sub.HasEbbBegins
}

// IsTide reports whether this station predicts tide (water level) rather
// than current (water velocity).
func (s *Station) IsTide() bool { return s.IsReference() || s.IsSimple() }

// IsCurrent reports whether this station predicts current.
func (s *Station) IsCurrent() bool { return s.IsSubordinate() && !s.IsSimple() }

// ActiveConstituents counts amplitudes strictly greater than zero. Only
// meaningful on reference stations; returns 0 for subordinates.
func (s *Station) ActiveConstituents() int {
	if s.Reference == nil {
		return 0
	}
	n := 0
	for _, a := range s.Reference.Amplitudes {
		if a > 0 {
			n++
		}
	}
	return n
}

// ImportedTime decodes DateImported, reporting false if the field is absent
// (zero) or not a valid calendar date.
func (s *Station) ImportedTime() (time.Time, bool) {
	return yyyymmddToTime(s.DateImported)
}

// ExpirationTime decodes the reference body's ExpirationDate. Reports false
// for subordinate stations or an absent/invalid date.
func (s *Station) ExpirationTime() (time.Time, bool) {
	if s.Reference == nil {
		return time.Time{}, false
	}
	return yyyymmddToTime(s.Reference.ExpirationDate)
}

// LastDateOnStationTime decodes the reference body's LastDateOnStation.
// Reports false for subordinate stations or an absent/invalid date.
func (s *Station) LastDateOnStationTime() (time.Time, bool) {
	if s.Reference == nil {
		return time.Time{}, false
	}
	return yyyymmddToTime(s.Reference.LastDateOnStation)
}

// decodeTimeOffset converts a signed ±HHMM integer (the low two decimal
// digits are minutes, the rest hours) into signed minutes.
func decodeTimeOffset(raw int32) int {
	if raw == 0 {
		return 0
	}
	sign := 1
	abs := int(raw)
	if abs < 0 {
		sign = -1
		abs = -abs
	}
	return sign * ((abs/100)*60 + abs%100)
}

// loadStations reads every station record starting at
// lt.StationRecordsOffset, in order, using record_size to skip to the next
// record regardless of how many bits this decoder actually consumed.
func loadStations(src Source, h *HeaderParams, lt *LookupTables) ([]*Station, error) {
	count, err := h.RecordCount()
	if err != nil {
		return nil, err
	}

	n_constituents, err := h.ConstituentCount()
	if err != nil {
		return nil, err
	}

	if _, err := src.Seek(lt.StationRecordsOffset, io.SeekStart); err != nil {
		return nil, errors.Join(ErrIO, err)
	}
	bs, err := NewBitStream(src)
	if err != nil {
		return nil, err
	}

	stations := make([]*Station, 0, count)
	pos := lt.StationRecordsOffset

	for i := 0; i < count; i++ {
		st, record_size, err := decodeStationRecord(bs, h, lt, n_constituents)
		if err != nil {
			return nil, err
		}

		pos += int64(record_size)
		if err := bs.Seek(pos); err != nil {
			return nil, err
		}

		stations = append(stations, st)
	}

	return stations, nil
}

func decodeStationRecord(bs *BitStream, h *HeaderParams, lt *LookupTables, n_constituents int) (*Station, int, error) {
	record_size_bits, err := h.Bits("record_size")
	if err != nil {
		return nil, 0, err
	}
	record_type_bits, err := h.Bits("record_type")
	if err != nil {
		return nil, 0, err
	}
	latitude_bits, err := h.Bits("latitude")
	if err != nil {
		return nil, 0, err
	}
	longitude_bits, err := h.Bits("longitude")
	if err != nil {
		return nil, 0, err
	}
	tzfile_bits, err := h.Bits("tzfile")
	if err != nil {
		return nil, 0, err
	}
	station_bits, err := h.Bits("station")
	if err != nil {
		return nil, 0, err
	}

	record_size, err := bs.ReadUint(record_size_bits)
	if err != nil {
		return nil, 0, err
	}
	record_type, err := bs.ReadUint(record_type_bits)
	if err != nil {
		return nil, 0, err
	}

	st := &Station{
		RecordSize: int(record_size),
		RecordType: int(record_type),
	}

	st.Latitude, err = bs.ReadScaledSigned(latitude_bits, h.Scale("latitude"))
	if err != nil {
		return nil, 0, err
	}
	st.Longitude, err = bs.ReadScaledSigned(longitude_bits, h.Scale("longitude"))
	if err != nil {
		return nil, 0, err
	}

	tz_idx, err := bs.ReadUint(tzfile_bits)
	if err != nil {
		return nil, 0, err
	}
	st.Timezone = nameOrFabricated(lt.Timezones, int(tz_idx))

	st.Name, err = bs.ReadCString()
	if err != nil {
		return nil, 0, err
	}

	ref_idx, err := bs.ReadInt(station_bits)
	if err != nil {
		return nil, 0, err
	}
	if ref_idx == nullReferenceIndex {
		st.hasReferenceIndex = false
	} else {
		st.hasReferenceIndex = true
		st.ReferenceIndex = int(ref_idx)
	}

	if h.MajorRev() >= 2 {
		if err := decodeV2Metadata(bs, h, lt, st); err != nil {
			return nil, 0, err
		}
	}

	switch st.RecordType {
	case recordTypeReference:
		if err := decodeReferenceBody(bs, h, lt, n_constituents, st); err != nil {
			return nil, 0, err
		}
	case recordTypeSubordinate:
		if err := decodeSubordinateBody(bs, h, st); err != nil {
			return nil, 0, err
		}
	default:
		return nil, 0, fmt.Errorf("%w: unknown record type %d", ErrFormat, st.RecordType)
	}

	return st, int(record_size), nil
}

func decodeV2Metadata(bs *BitStream, h *HeaderParams, lt *LookupTables, st *Station) error {
	country_bits, err := h.Bits("country")
	if err != nil {
		return err
	}
	restriction_bits, err := h.Bits("restriction")
	if err != nil {
		return err
	}
	legalese_bits, err := h.Bits("legalese")
	if err != nil {
		return err
	}
	date_bits, err := h.Bits("date")
	if err != nil {
		return err
	}
	direction_unit_bits, err := h.Bits("direction_unit")
	if err != nil {
		return err
	}
	direction_bits, err := h.Bits("direction")
	if err != nil {
		return err
	}
	level_unit_bits, err := h.Bits("level_unit")
	if err != nil {
		return err
	}

	country_idx, err := bs.ReadUint(country_bits)
	if err != nil {
		return err
	}
	st.Country = nameOrFabricated(lt.Countries, int(country_idx))

	if st.Source, err = bs.ReadCString(); err != nil {
		return err
	}

	restriction_idx, err := bs.ReadUint(restriction_bits)
	if err != nil {
		return err
	}
	st.Restriction = nameOrFabricated(lt.Restrictions, int(restriction_idx))

	if st.Comments, err = bs.ReadCString(); err != nil {
		return err
	}
	if st.Notes, err = bs.ReadCString(); err != nil {
		return err
	}

	legalese_idx, err := bs.ReadUint(legalese_bits)
	if err != nil {
		return err
	}
	st.Legalese = nameOrFabricated(lt.Legalese, int(legalese_idx))

	if st.StationIDContext, err = bs.ReadCString(); err != nil {
		return err
	}
	if st.StationID, err = bs.ReadCString(); err != nil {
		return err
	}

	date_imported, err := bs.ReadUint(date_bits)
	if err != nil {
		return err
	}
	st.DateImported = int(date_imported)

	if st.Xfields, err = bs.ReadCString(); err != nil {
		return err
	}

	direction_unit_idx, err := bs.ReadUint(direction_unit_bits)
	if err != nil {
		return err
	}
	st.DirectionUnits = nameOrFabricated(lt.DirectionUnits, int(direction_unit_idx))

	min_dir, err := bs.ReadUint(direction_bits)
	if err != nil {
		return err
	}
	if int(min_dir) == nullDirection {
		st.hasMinDirection = false
	} else {
		st.hasMinDirection = true
		st.MinDirection = int(min_dir)
	}

	max_dir, err := bs.ReadUint(direction_bits)
	if err != nil {
		return err
	}
	if int(max_dir) == nullDirection {
		st.hasMaxDirection = false
	} else {
		st.hasMaxDirection = true
		st.MaxDirection = int(max_dir)
	}

	level_unit_idx, err := bs.ReadUint(level_unit_bits)
	if err != nil {
		return err
	}
	st.LevelUnits = nameOrFabricated(lt.LevelUnits, int(level_unit_idx))

	return nil
}

func decodeReferenceBody(bs *BitStream, h *HeaderParams, lt *LookupTables, n_constituents int, st *Station) error {
	datum_offset_bits, err := h.Bits("datum_offset")
	if err != nil {
		return err
	}
	datum_bits, err := h.Bits("datum")
	if err != nil {
		return err
	}
	time_bits, err := h.Bits("time")
	if err != nil {
		return err
	}
	date_bits, err := h.Bits("date")
	if err != nil {
		return err
	}
	months_bits, err := h.Bits("months_on_station")
	if err != nil {
		return err
	}
	confidence_bits, err := h.Bits("confidence_value")
	if err != nil {
		return err
	}
	constituent_bits, err := h.Bits("constituent")
	if err != nil {
		return err
	}
	amplitude_bits, err := h.Bits("amplitude")
	if err != nil {
		return err
	}
	epoch_bits, err := h.Bits("epoch")
	if err != nil {
		return err
	}

	rb := &ReferenceBody{}

	if rb.DatumOffset, err = bs.ReadOffsetScaledSigned(datum_offset_bits, 0, h.Scale("datum_offset")); err != nil {
		return err
	}

	datum_idx, err := bs.ReadUint(datum_bits)
	if err != nil {
		return err
	}
	rb.Datum = nameOrFabricated(lt.Datums, int(datum_idx))

	zone_raw, err := bs.ReadInt(time_bits)
	if err != nil {
		return err
	}
	rb.ZoneOffset = int(zone_raw)

	exp, err := bs.ReadUint(date_bits)
	if err != nil {
		return err
	}
	rb.ExpirationDate = int(exp)

	months, err := bs.ReadUint(months_bits)
	if err != nil {
		return err
	}
	rb.MonthsOnStation = int(months)

	last_date, err := bs.ReadUint(date_bits)
	if err != nil {
		return err
	}
	rb.LastDateOnStation = int(last_date)

	confidence, err := bs.ReadUint(confidence_bits)
	if err != nil {
		return err
	}
	rb.Confidence = int(confidence)

	rb.Amplitudes = make([]float64, n_constituents)
	rb.Epochs = make([]float64, n_constituents)

	n_set, err := bs.ReadUint(constituent_bits)
	if err != nil {
		return err
	}

	for i := uint32(0); i < n_set; i++ {
		idx, err := bs.ReadUint(constituent_bits)
		if err != nil {
			return err
		}
		amp, err := bs.ReadOffsetScaled(amplitude_bits, 0, h.Scale("amplitude"))
		if err != nil {
			return err
		}
		epoch, err := bs.ReadOffsetScaled(epoch_bits, 0, h.Scale("epoch"))
		if err != nil {
			return err
		}
		if int(idx) < n_constituents {
			rb.Amplitudes[idx] = amp
			rb.Epochs[idx] = epoch
		}
	}

	st.Reference = rb

	return nil
}

func decodeSubordinateBody(bs *BitStream, h *HeaderParams, st *Station) error {
	time_bits, err := h.Bits("time")
	if err != nil {
		return err
	}
	level_add_bits, err := h.Bits("level_add")
	if err != nil {
		return err
	}
	level_multiply_bits, err := h.Bits("level_multiply")
	if err != nil {
		return err
	}

	sb := &SubordinateBody{}

	min_time, err := bs.ReadInt(time_bits)
	if err != nil {
		return err
	}
	sb.MinTimeAddMinutes = decodeTimeOffset(min_time)

	if sb.MinLevelAdd, err = bs.ReadScaledSigned(level_add_bits, h.Scale("level_add")); err != nil {
		return err
	}

	min_mult, err := bs.ReadUint(level_multiply_bits)
	if err != nil {
		return err
	}
	sb.MinLevelMultiply = levelMultiplyValue(min_mult, h.Scale("level_multiply"))

	max_time, err := bs.ReadInt(time_bits)
	if err != nil {
		return err
	}
	sb.MaxTimeAddMinutes = decodeTimeOffset(max_time)

	if sb.MaxLevelAdd, err = bs.ReadScaledSigned(level_add_bits, h.Scale("level_add")); err != nil {
		return err
	}

	max_mult, err := bs.ReadUint(level_multiply_bits)
	if err != nil {
		return err
	}
	sb.MaxLevelMultiply = levelMultiplyValue(max_mult, h.Scale("level_multiply"))

	flood, err := bs.ReadInt(time_bits)
	if err != nil {
		return err
	}
	if int(flood) == nullSlackOffset {
		sb.HasFloodBegins = false
	} else {
		sb.HasFloodBegins = true
		sb.FloodBeginsMinutes = decodeTimeOffset(flood)
	}

	ebb, err := bs.ReadInt(time_bits)
	if err != nil {
		return err
	}
	if int(ebb) == nullSlackOffset {
		sb.HasEbbBegins = false
	} else {
		sb.HasEbbBegins = true
		sb.EbbBeginsMinutes = decodeTimeOffset(ebb)
	}

	st.Subordinate = sb

	return nil
}

// levelMultiplyValue applies the "raw 0 means 1.0" rule for level-multiply
// fields.
func levelMultiplyValue(raw uint32, scale float64) float64 {
	if raw == 0 {
		return 1.0
	}
	return float64(raw) / scale
}
