// Package spatialindex persists decoded stations into a TileDB sparse
// array keyed on longitude/latitude, and serves bounding-box range
// queries against it. The array schema is driven by struct tags on
// IndexedStation, following the same tiledb/filters tag mini-language the
// teacher's TileDB arrays use.
package spatialindex

import (
	"errors"
	"reflect"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	stgpsr "github.com/yuin/stagparser"

	"github.com/jpr5/tcd"
)

var (
	ErrCreateSchema = errors.New("spatialindex: error creating array schema")
	ErrCreateAttr   = errors.New("spatialindex: error creating attribute")
	ErrWrite        = errors.New("spatialindex: error writing array")
	ErrQuery        = errors.New("spatialindex: error querying array")
)

// IndexedStation is one row of the spatial index: a station's identity and
// location, dimensioned by longitude/latitude for range queries.
type IndexedStation struct {
	Longitude  float64 `tiledb:"dtype=float64,ftype=dim"`
	Latitude   float64 `tiledb:"dtype=float64,ftype=dim"`
	Name       string  `tiledb:"dtype=string,ftype=attr,var" filters:"zstd(level=16)"`
	Index      int32   `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	RecordType uint8   `tiledb:"dtype=uint8,ftype=attr" filters:"bysh"`
}

func fieldTdbDefs(t any) (map[string]map[string]stgpsr.Definition, error) {
	defs, err := stgpsr.ParseStruct(t, "tiledb")
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]stgpsr.Definition, len(defs))
	for field, ds := range defs {
		m := make(map[string]stgpsr.Definition, len(ds))
		for _, d := range ds {
			m[d.Name()] = d
		}
		out[field] = m
	}
	return out, nil
}

// createAttr builds one tiledb.Attribute from its dtype/var tags and
// attaches the filter pipeline named by its filters tag, then adds it to
// schema. Mirrors the teacher's CreateAttr, trimmed to the filter/dtype
// vocabulary IndexedStation actually uses.
func createAttr(ctx *tiledb.Context, schema *tiledb.ArraySchema, name string, tdb map[string]stgpsr.Definition, filter_defs []stgpsr.Definition) error {
	def, ok := tdb["dtype"]
	if !ok {
		return errors.Join(ErrCreateAttr, errors.New("dtype tag not found for "+name))
	}
	dtype, _ := def.Attribute("dtype")

	var tdb_dtype tiledb.Datatype
	switch dtype {
	case "int32":
		tdb_dtype = tiledb.TILEDB_INT32
	case "uint8":
		tdb_dtype = tiledb.TILEDB_UINT8
	case "float64":
		tdb_dtype = tiledb.TILEDB_FLOAT64
	case "string":
		tdb_dtype = tiledb.TILEDB_STRING_UTF8
	default:
		return errors.Join(ErrCreateAttr, errors.New("unsupported dtype "+dtype))
	}

	attr, err := tiledb.NewAttribute(ctx, name, tdb_dtype)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer attr.Free()

	if _, ok := tdb["var"]; ok {
		if err := attr.SetCellValNum(tiledb.TILEDB_VAR_NUM); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer filts.Free()

	for _, f := range filter_defs {
		switch f.Name() {
		case "zstd":
			level, _ := f.Attribute("level")
			filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
			if err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
			defer filt.Free()
			if v, ok := level.(int64); ok {
				if err := filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, int32(v)); err != nil {
					return errors.Join(ErrCreateAttr, err)
				}
			}
			if err := filts.AddFilter(filt); err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
		case "bysh":
			filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BYTESHUFFLE)
			if err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
			defer filt.Free()
			if err := filts.AddFilter(filt); err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
		}
	}

	if err := attr.SetFilterList(filts); err != nil {
		return errors.Join(ErrCreateAttr, err)
	}

	return schema.AddAttributes(attr)
}

// schema builds the sparse array schema for IndexedStation: longitude and
// latitude dimensions spanning the full valid coordinate range, plus its
// attribute fields.
func schema(ctx *tiledb.Context) (*tiledb.ArraySchema, error) {
	dom, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	defer dom.Free()

	lon_dim, err := tiledb.NewDimension(ctx, "Longitude", tiledb.TILEDB_FLOAT64, []float64{-180, 180}, float64(1))
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	defer lon_dim.Free()

	lat_dim, err := tiledb.NewDimension(ctx, "Latitude", tiledb.TILEDB_FLOAT64, []float64{-90, 90}, float64(1))
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	defer lat_dim.Free()

	if err := dom.AddDimensions(lon_dim, lat_dim); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	sch, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_SPARSE)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := sch.SetDomain(dom); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	var row IndexedStation
	tdb_defs, err := fieldTdbDefs(&row)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	filt_defs, _ := stgpsr.ParseStruct(&row, "filters")

	values := reflect.ValueOf(&row).Elem()
	types := values.Type()
	for i := 0; i < values.NumField(); i++ {
		name := types.Field(i).Name
		tdb := tdb_defs[name]
		if ftype, ok := tdb["ftype"]; ok {
			if v, _ := ftype.Attribute("ftype"); v == "dim" {
				continue
			}
		}
		if err := createAttr(ctx, sch, name, tdb, filt_defs[name]); err != nil {
			return nil, err
		}
	}

	return sch, nil
}

// stationsToRows flattens decoded stations into IndexedStation rows.
func stationsToRows(stations []tcd.Station) []IndexedStation {
	rows := make([]IndexedStation, len(stations))
	for i, s := range stations {
		rows[i] = IndexedStation{
			Longitude:  s.Longitude,
			Latitude:   s.Latitude,
			Name:       s.Name,
			Index:      int32(i),
			RecordType: uint8(s.RecordType),
		}
	}
	return rows
}

// BuildStationIndex creates a new sparse TileDB array at uri and writes one
// row per station. An existing array at uri is not replaced; the
// CreateArray error is returned wrapped in ErrWrite.
func BuildStationIndex(ctx *tiledb.Context, uri string, stations []tcd.Station) error {
	sch, err := schema(ctx)
	if err != nil {
		return err
	}
	defer sch.Free()

	if err := tiledb.CreateArray(ctx, uri, sch); err != nil {
		return errors.Join(ErrWrite, err)
	}

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return errors.Join(ErrWrite, err)
	}
	defer array.Free()

	if err := array.Open(tiledb.TILEDB_WRITE); err != nil {
		return errors.Join(ErrWrite, err)
	}
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(ErrWrite, err)
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return errors.Join(ErrWrite, err)
	}

	rows := stationsToRows(stations)
	n := len(rows)

	lons := make([]float64, n)
	lats := make([]float64, n)
	names := make([]byte, 0)
	name_offsets := make([]uint64, n)
	indices := make([]int32, n)
	types := make([]uint8, n)

	offset := uint64(0)
	for i, r := range rows {
		lons[i] = r.Longitude
		lats[i] = r.Latitude
		indices[i] = r.Index
		types[i] = r.RecordType
		name_offsets[i] = offset
		names = append(names, []byte(r.Name)...)
		offset += uint64(len(r.Name))
	}

	if _, err := query.SetDataBuffer("Longitude", lons); err != nil {
		return errors.Join(ErrWrite, err)
	}
	if _, err := query.SetDataBuffer("Latitude", lats); err != nil {
		return errors.Join(ErrWrite, err)
	}
	if _, err := query.SetDataBuffer("Index", indices); err != nil {
		return errors.Join(ErrWrite, err)
	}
	if _, err := query.SetDataBuffer("RecordType", types); err != nil {
		return errors.Join(ErrWrite, err)
	}
	if _, err := query.SetDataBuffer("Name", names); err != nil {
		return errors.Join(ErrWrite, err)
	}
	if _, err := query.SetOffsetsBuffer("Name", name_offsets); err != nil {
		return errors.Join(ErrWrite, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWrite, err)
	}

	return query.Finalize()
}

// QueryRange returns every indexed station whose longitude/latitude falls
// within the given bounding box, inclusive.
func QueryRange(ctx *tiledb.Context, uri string, lonMin, lonMax, latMin, latMax float64) ([]IndexedStation, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	defer array.Free()

	if err := array.Open(tiledb.TILEDB_READ); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	defer query.Free()

	subarray, err := array.NewSubarray()
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	defer subarray.Free()

	if err := subarray.AddRange(0, tiledb.MakeRange(lonMin, lonMax)); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	if err := subarray.AddRange(1, tiledb.MakeRange(latMin, latMax)); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	if err := query.SetSubarray(subarray); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}

	est, err := query.EstResultSize("Longitude")
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	n := int(est) / 8
	if n < 1 {
		n = 1
	}

	lons := make([]float64, n)
	lats := make([]float64, n)
	indices := make([]int32, n)
	types := make([]uint8, n)
	names := make([]byte, n*64)
	name_offsets := make([]uint64, n)

	if _, err := query.SetDataBuffer("Longitude", lons); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	if _, err := query.SetDataBuffer("Latitude", lats); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	if _, err := query.SetDataBuffer("Index", indices); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	if _, err := query.SetDataBuffer("RecordType", types); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	if _, err := query.SetDataBuffer("Name", names); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	if _, err := query.SetOffsetsBuffer("Name", name_offsets); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}

	if err := query.Submit(); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}

	result_els, err := query.ResultBufferElements()
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	count := int(result_els["Longitude"][1])

	out := make([]IndexedStation, count)
	for i := 0; i < count; i++ {
		start := name_offsets[i]
		end := uint64(len(names))
		if i+1 < count {
			end = name_offsets[i+1]
		}
		out[i] = IndexedStation{
			Longitude:  lons[i],
			Latitude:   lats[i],
			Name:       string(names[start:end]),
			Index:      indices[i],
			RecordType: types[i],
		}
	}

	return out, nil
}
