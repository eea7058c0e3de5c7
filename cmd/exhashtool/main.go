// Command exhashtool is a command-line driver outside the index's own
// import graph: it wraps the exthash Facade and a recfile-backed primary
// record file with create-index/insert/search/remove/stats subcommands.
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"exthash/backend/binutil"
	"exthash/backend/exthash"
	"exthash/backend/recfile"
	"exthash/internal/applog"
)

const payloadSize = 64 // caller payload bytes after the record's 8-byte key and 1-byte tombstone

func main() {
	logger, ring := applog.New(os.Stderr, 256, slog.LevelInfo)

	app := &cli.App{
		Name:  "exhashtool",
		Usage: "drive a disk-resident extendible hash index over a fixed-length record file",
		Commands: []*cli.Command{
			newCreateIndexCmd(logger),
			newInsertCmd(logger),
			newSearchCmd(logger),
			newRemoveCmd(logger),
			newStatsCmd(logger),
			newInspectCmd(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		applog.DumpRecent(os.Stderr, ring)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func pathFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "record-file", Required: true, Usage: "path to the fixed-length primary record file"},
		&cli.StringFlag{Name: "hash-file", Required: true, Usage: "path to the .ehash bucket heap"},
		&cli.StringFlag{Name: "dir-file", Required: true, Usage: "path to the .ehashdir directory file"},
	}
}

// recordConfig returns the shared Config: an 8-byte little-endian integer
// key followed by a fixed payload, the composition cmd/exhashtool uses to
// demonstrate the Facade end to end.
func recordConfig(logger *slog.Logger) exthash.Config {
	project := func(record []byte) []byte { return recfile.Payload(record)[:8] }
	equal := func(a, b []byte) bool { return binary.LittleEndian.Uint64(a) == binary.LittleEndian.Uint64(b) }
	return exthash.NewConfig(1+8+payloadSize, project, equal, exthash.WithLogger(logger))
}

func newCreateIndexCmd(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "create-index",
		Usage: "scan a record file and build a fresh hash/directory file pair",
		Flags: pathFlags(),
		Action: func(c *cli.Context) error {
			rf, err := recfile.Open(c.String("record-file"), 8+payloadSize)
			if err != nil {
				return err
			}
			defer rf.Close()

			cfg := recordConfig(logger)
			ix, err := exthash.CreateIndex(c.String("hash-file"), c.String("dir-file"), cfg)
			if err != nil {
				return err
			}
			defer ix.Close()

			if err := ix.Build(recfile.NewCursor(rf)); err != nil {
				return err
			}
			logger.Info("index built", "record_file", c.String("record-file"))
			return nil
		},
	}
}

func newInsertCmd(logger *slog.Logger) *cli.Command {
	flags := append(pathFlags(),
		&cli.Uint64Flag{Name: "key", Required: true},
		&cli.StringFlag{Name: "value", Usage: "payload text, truncated/padded to the fixed payload size"},
	)
	return &cli.Command{
		Name:  "insert",
		Usage: "append a record to the primary file and insert it into the index",
		Flags: flags,
		Action: func(c *cli.Context) error {
			rf, err := recfile.Open(c.String("record-file"), 8+payloadSize)
			if err != nil {
				return err
			}
			defer rf.Close()

			cfg := recordConfig(logger)
			ix, err := exthash.OpenIndex(c.String("hash-file"), c.String("dir-file"), cfg)
			if err != nil {
				return err
			}
			defer ix.Close()

			payload := make([]byte, 8+payloadSize)
			binary.LittleEndian.PutUint64(payload[:8], c.Uint64("key"))
			copy(payload[8:], c.String("value"))

			ref, err := rf.Append(payload)
			if err != nil {
				return err
			}
			record, err := rf.ReadAt(ref)
			if err != nil {
				return err
			}
			if err := ix.Insert(record, ref); err != nil {
				return err
			}
			logger.Info("inserted", "key", c.Uint64("key"), "ref", ref)
			return nil
		},
	}
}

func newSearchCmd(logger *slog.Logger) *cli.Command {
	flags := append(pathFlags(), &cli.Uint64Flag{Name: "key", Required: true})
	return &cli.Command{
		Name:  "search",
		Usage: "look up a key and print every matching record's payload",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg := recordConfig(logger)
			ix, err := exthash.OpenIndex(c.String("hash-file"), c.String("dir-file"), cfg)
			if err != nil {
				return err
			}
			defer ix.Close()

			keyBuf := make([]byte, 8)
			binary.LittleEndian.PutUint64(keyBuf, c.Uint64("key"))

			matches, err := ix.Search(keyBuf)
			if err != nil {
				return err
			}
			for _, rec := range matches {
				fmt.Printf("%s\n", recfile.Payload(rec)[8:])
			}
			logger.Info("search complete", "key", c.Uint64("key"), "matches", len(matches))
			return nil
		},
	}
}

func newRemoveCmd(logger *slog.Logger) *cli.Command {
	flags := append(pathFlags(), &cli.Uint64Flag{Name: "key", Required: true})
	return &cli.Command{
		Name:  "remove",
		Usage: "remove every record matching a key",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg := recordConfig(logger)
			ix, err := exthash.OpenIndex(c.String("hash-file"), c.String("dir-file"), cfg)
			if err != nil {
				return err
			}
			defer ix.Close()

			keyBuf := make([]byte, 8)
			binary.LittleEndian.PutUint64(keyBuf, c.Uint64("key"))
			if err := ix.Remove(keyBuf); err != nil {
				return err
			}
			logger.Info("removed", "key", c.Uint64("key"))
			return nil
		},
	}
}

// newInspectCmd dumps one raw bucket block's header fields and record
// bytes, bypassing the Facade entirely — a low-level debugging aid
// built on binutil rather than re-deriving fixed-width reads inline.
func newInspectCmd(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "hex-dump one raw bucket block's size, records, and next fields",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "hash-file", Required: true},
			&cli.Int64Flag{Name: "offset", Required: true, Usage: "byte offset of the block, must be a multiple of --block-size"},
			&cli.Int64Flag{Name: "block-size", Value: exthash.DefaultBlockSize},
		},
		Action: func(c *cli.Context) error {
			f, err := os.Open(c.String("hash-file"))
			if err != nil {
				return err
			}
			defer f.Close()

			blockSize := c.Int64("block-size")
			buf := make([]byte, blockSize)
			if _, err := f.ReadAt(buf, c.Int64("offset")); err != nil {
				return err
			}

			size, err := binutil.ReadFixedNumber(bytes.NewReader(buf[0:8]), 8)
			if err != nil {
				return err
			}
			next, err := binutil.ReadFixedNumber(bytes.NewReader(buf[blockSize-8:blockSize]), 8)
			if err != nil {
				return err
			}

			fmt.Printf("[INSPECT] offset=%d size=%d next=%d\n", c.Int64("offset"), size, next)
			fmt.Printf("[INSPECT] records: %s\n", binutil.FormatBytes(buf[8:blockSize-8]))
			return nil
		},
	}
}

func newStatsCmd(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "print directory shape and load factor",
		Flags: pathFlags(),
		Action: func(c *cli.Context) error {
			cfg := recordConfig(logger)
			ix, err := exthash.OpenIndex(c.String("hash-file"), c.String("dir-file"), cfg)
			if err != nil {
				return err
			}
			defer ix.Close()

			st, err := ix.Stats()
			if err != nil {
				return err
			}
			fmt.Println(st.String())
			return nil
		},
	}
}
