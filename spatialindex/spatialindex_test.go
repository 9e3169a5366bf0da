package spatialindex

import (
	"path/filepath"
	"testing"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/jpr5/tcd"
)

func TestBuildAndQueryStationIndex(t *testing.T) {
	config, err := tiledb.NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ctx.Free()

	uri := filepath.Join(t.TempDir(), "stations.tiledb")

	stations := []tcd.Station{
		{Name: "San Francisco", Longitude: -122.41, Latitude: 37.81, RecordType: 1},
		{Name: "London", Longitude: -0.12, Latitude: 51.5, RecordType: 2},
	}

	if err := BuildStationIndex(ctx, uri, stations); err != nil {
		t.Fatalf("BuildStationIndex: %v", err)
	}

	got, err := QueryRange(ctx, uri, -130, -120, 30, 40)
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(got) != 1 || got[0].Name != "San Francisco" {
		t.Errorf("QueryRange = %v, want only San Francisco", got)
	}
}
