package tcd

import (
	"errors"
	"io"
	"os"

	"github.com/samber/lo"
)

// Constituent is one harmonic constituent: its catalog name, angular
// speed, and per-year equilibrium argument / node factor vectors.
type Constituent struct {
	Index       int
	Name        string
	Speed       float64
	Equilibrium []float64
	NodeFactor  []float64
}

// Database is an opened TCD file. Header, lookup tables, and the
// constituent table are loaded eagerly at Open; the station vector is
// loaded lazily on first call to Stations and cached thereafter.
type Database struct {
	src    Source
	closer func() error

	header     *HeaderParams
	lookup     *LookupTables
	constituents *ConstituentTable

	stations       []Station
	stations_loaded bool
}

// Open reads a TCD file's header, lookup tables, and constituent table.
// The returned Database must be closed with Close.
func Open(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrIO, err)
	}

	db, err := openFromSource(f, f.Close)
	if err != nil {
		f.Close()
		return nil, err
	}

	return db, nil
}

// openFromSource builds a Database over an already-open Source, calling
// closer on Close. Exposed at package level (unexported) so tests can
// drive the facade over an in-memory buffer without touching the
// filesystem.
func openFromSource(src Source, closer func() error) (*Database, error) {
	header, err := parseHeaderParams(src)
	if err != nil {
		return nil, err
	}

	if header.MajorRev() < 2 {
		return nil, errors.Join(ErrFormat, errors.New("v1 TCD files are not supported; only the ASCII header and lookup tables are well-defined, station record layout differs"))
	}

	lookup, err := loadLookupTables(src, header)
	if err != nil {
		return nil, err
	}

	constituents, err := loadConstituentTable(src, header, lookup)
	if err != nil {
		return nil, err
	}

	return &Database{
		src:          src,
		closer:       closer,
		header:       header,
		lookup:       lookup,
		constituents: constituents,
	}, nil
}

// Close releases the underlying file source. Idempotent: safe to call via
// defer immediately after a successful Open even if the caller also calls
// it explicitly on an error path.
func (db *Database) Close() error {
	if db.closer == nil {
		return nil
	}
	err := db.closer()
	db.closer = nil
	return err
}

// Version is the header's free-text format version string.
func (db *Database) Version() string { return db.header.Version() }

// LastModified is the header's free-text last-modified string.
func (db *Database) LastModified() string { return db.header.LastModified() }

// StationCount is the number of station records declared by the header.
func (db *Database) StationCount() int {
	n, _ := db.header.RecordCount()
	return n
}

// ConstituentCount is the number of harmonic constituents catalogued.
func (db *Database) ConstituentCount() int {
	n, _ := db.header.ConstituentCount()
	return n
}

// StartYear is the first calendar year covered by the equilibrium/node
// factor vectors.
func (db *Database) StartYear() int {
	n, _ := db.header.StartYear()
	return n
}

// NumberOfYears is the length of the equilibrium/node factor vectors.
func (db *Database) NumberOfYears() int {
	n, _ := db.header.NumberOfYears()
	return n
}

// EndOfFileSize is the advertised end-of-file marker byte size.
func (db *Database) EndOfFileSize() int { return db.header.EndOfFileSize() }

// ChecksumPlaceholder is the 4 bytes immediately following the ASCII
// header. The format documents it as a checksum but neither this decoder
// nor the reference implementation verifies it; it is surfaced read-only.
func (db *Database) ChecksumPlaceholder() [4]byte { return db.lookup.ChecksumPlaceholder }

// Constituents returns every catalogued constituent, in table order.
func (db *Database) Constituents() []Constituent {
	out := make([]Constituent, len(db.constituents.Speed))
	for i := range out {
		out[i] = Constituent{
			Index:       i,
			Name:        nameOrFabricated(db.lookup.ConstituentNames, i),
			Speed:       db.constituents.Speed[i],
			Equilibrium: db.constituents.Equilibrium[i],
			NodeFactor:  db.constituents.NodeFactor[i],
		}
	}
	return out
}

// Constituent looks up a single constituent by its exact catalog name.
func (db *Database) Constituent(name string) (Constituent, bool) {
	idx := indexOfConstituent(db.lookup.ConstituentNames, name)
	if idx < 0 {
		return Constituent{}, false
	}
	return Constituent{
		Index:       idx,
		Name:        name,
		Speed:       db.constituents.Speed[idx],
		Equilibrium: db.constituents.Equilibrium[idx],
		NodeFactor:  db.constituents.NodeFactor[idx],
	}, true
}

// Stations returns every station, loading and caching the full vector on
// first call.
func (db *Database) Stations() ([]Station, error) {
	if db.stations_loaded {
		return db.stations, nil
	}

	stations, err := loadStations(db.src, db.header, db.lookup)
	if err != nil {
		return nil, err
	}

	out := make([]Station, len(stations))
	for i, s := range stations {
		out[i] = *s
	}

	db.stations = out
	db.stations_loaded = true

	return db.stations, nil
}

// EachStation decodes station records one at a time, calling fn after
// each. It stops early if fn returns false, and never touches the cache
// Stations populates. Not safe to run concurrently with itself on one
// Database.
func (db *Database) EachStation(fn func(Station) bool) error {
	count, err := db.header.RecordCount()
	if err != nil {
		return err
	}

	if _, err := db.src.Seek(db.lookup.StationRecordsOffset, io.SeekStart); err != nil {
		return errors.Join(ErrIO, err)
	}
	bs, err := NewBitStream(db.src)
	if err != nil {
		return err
	}

	n_constituents, err := db.header.ConstituentCount()
	if err != nil {
		return err
	}

	pos := db.lookup.StationRecordsOffset
	for i := 0; i < count; i++ {
		st, record_size, err := decodeStationRecord(bs, db.header, db.lookup, n_constituents)
		if err != nil {
			return err
		}

		if !fn(*st) {
			return nil
		}

		pos += int64(record_size)
		if err := bs.Seek(pos); err != nil {
			return err
		}
	}

	return nil
}

// StationByName returns the first station whose on-disk name exactly
// matches name, case-sensitively.
func (db *Database) StationByName(name string) (Station, bool) {
	var found Station
	ok := false

	db.EachStation(func(s Station) bool {
		if s.Name == name {
			found = s
			ok = true
			return false
		}
		return true
	})

	return found, ok
}

// ReferenceStations returns every reference-type station.
func (db *Database) ReferenceStations() ([]Station, error) {
	all, err := db.Stations()
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(s Station, _ int) bool { return s.IsReference() }), nil
}

// SubordinateStations returns every subordinate-type station.
func (db *Database) SubordinateStations() ([]Station, error) {
	all, err := db.Stations()
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(s Station, _ int) bool { return s.IsSubordinate() }), nil
}

// InferConstituents fills a reference station's missing semi-diurnal and
// diurnal constituents from M2/S2/K1/O1, mutating station in place. It
// reports whether inference was actually performed. Inferred epochs are not
// reduced modulo 360 and may fall outside [0, 360).
func (db *Database) InferConstituents(station *Station) bool {
	return InferConstituents(db.constituents, db.lookup.ConstituentNames, station)
}

// LevelUnits is table 1, in file order.
func (db *Database) LevelUnits() []string { return db.lookup.LevelUnits }

// DirectionUnits is table 2, in file order.
func (db *Database) DirectionUnits() []string { return db.lookup.DirectionUnits }

// Restrictions is table 3, in file order.
func (db *Database) Restrictions() []string { return db.lookup.Restrictions }

// Timezones is table 5, leading ':' stripped, in file order.
func (db *Database) Timezones() []string { return db.lookup.Timezones }

// Countries is table 6, in file order.
func (db *Database) Countries() []string { return db.lookup.Countries }

// Datums is table 7, in file order.
func (db *Database) Datums() []string { return db.lookup.Datums }

// Legalese is table 8, in file order.
func (db *Database) Legalese() []string { return db.lookup.Legalese }

// ConstituentNames is table 9, in file order.
func (db *Database) ConstituentNames() []string { return db.lookup.ConstituentNames }
