package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	"github.com/jpr5/tcd"
)

// inspect opens a single TCD file and prints a summary of its header
// metadata, constituent count, and station counts.
func inspect(tcd_uri string) error {
	log.Println("Opening TCD:", tcd_uri)
	db, err := tcd.Open(tcd_uri)
	if err != nil {
		return err
	}
	defer db.Close()

	stations, err := db.Stations()
	if err != nil {
		return err
	}

	reference, subordinate := 0, 0
	for _, s := range stations {
		if s.IsReference() {
			reference++
		} else {
			subordinate++
		}
	}

	fmt.Printf("Version:          %s\n", db.Version())
	fmt.Printf("Last modified:    %s\n", db.LastModified())
	fmt.Printf("Constituents:     %d\n", db.ConstituentCount())
	fmt.Printf("Stations:         %d (%d reference, %d subordinate)\n", db.StationCount(), reference, subordinate)

	log.Println("Finished TCD:", tcd_uri)
	return nil
}

// findTCD recursively trawls uri (via TileDB's VFS abstraction, so either a
// local directory or an object store URI) for files matching pattern.
func findTCD(ctx *tiledb.Context, uri, pattern string) ([]string, error) {
	vfs, err := tiledb.NewVFS(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer vfs.Free()

	var walk func(string) ([]string, error)
	walk = func(dir string) ([]string, error) {
		dirs, files, err := vfs.List(dir)
		if err != nil {
			return nil, err
		}

		items := make([]string, 0)
		for _, file := range files {
			if match, _ := filepath.Match(pattern, filepath.Base(file)); match {
				items = append(items, file)
			}
		}
		for _, sub := range dirs {
			sub_items, err := walk(sub)
			if err != nil {
				return nil, err
			}
			items = append(items, sub_items...)
		}
		return items, nil
	}

	return walk(uri)
}

// batch inspects every file under uri matching glob, spreading the work
// across 2*NumCPU workers and stopping early on Ctrl+C.
func batch(uri, glob string) error {
	config, err := tiledb.NewConfig()
	if err != nil {
		return err
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return err
	}
	defer ctx.Free()

	log.Println("Searching uri:", uri)
	items, err := findTCD(ctx, uri, glob)
	if err != nil {
		return err
	}
	log.Println("Number of TCD files to process:", len(items))

	run_ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU() * 2
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(run_ctx))
	defer pool.StopAndWait()

	for _, name := range items {
		item_uri := name
		pool.Submit(func() {
			if err := inspect(item_uri); err != nil {
				log.Printf("error processing %s: %v", item_uri, err)
			}
		})
	}

	return nil
}

func main() {
	app := &cli.App{
		Name:  "tcdinfo",
		Usage: "inspect tidal constituent database files",
		Commands: []*cli.Command{
			{
				Name: "inspect",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Path to a TCD file.",
						Required: true,
					},
				},
				Action: func(cCtx *cli.Context) error {
					return inspect(cCtx.String("file"))
				},
			},
			{
				Name: "batch",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "uri",
						Usage:    "URI or pathname to a directory containing TCD files.",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "glob",
						Usage: "Filename pattern to match.",
						Value: "*.tcd",
					},
				},
				Action: func(cCtx *cli.Context) error {
					return batch(cCtx.String("uri"), cCtx.String("glob"))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
