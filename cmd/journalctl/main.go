// Command journalctl is a diagnostic entry point for a journal directory:
// it runs recovery and prints what was found, without opening the journal
// for writing.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"journalcore/internal/handle"
	"journalcore/internal/pageindex"
	"journalcore/internal/recovery"
)

var CLI struct {
	Recover RecoverCmd `cmd:"" help:"Recover a journal directory and print its checkpoint and generation range"`
	Dump    DumpCmd    `cmd:"" help:"Recover a journal directory and print its Page Index contents"`
}

// RecoverCmd runs recovery and prints the last valid checkpoint.
type RecoverCmd struct {
	Path string `arg:"" help:"Journal directory" type:"existingdir"`
	Base string `help:"Segment filename base" default:"journal"`
}

func (c *RecoverCmd) Run() error {
	registry := handle.New(4096)
	idx := pageindex.New()
	eng, err := recovery.Run(c.Path, c.Base, 4*1024*1024, registry, idx)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	fmt.Printf("journal: %s\n", c.Path)
	fmt.Printf("  generations: %d..%d\n", eng.FirstGeneration(), eng.CurrentGeneration())
	fmt.Printf("  page index entries: %d\n", idx.Len())

	if cp, ok := eng.LastValidCheckpoint(); ok {
		fmt.Printf("  last checkpoint: timestamp=%d wall_clock_millis=%d\n", cp.Timestamp, cp.WallClockMillis)
	} else {
		fmt.Println("  last checkpoint: none")
	}

	if addr, ok := eng.DirtyRecoveryFileAddress(); ok {
		fmt.Printf("  not cleanly closed: first bad record in %s at offset %s (timestamp %d)\n",
			addr.Segment, humanize.Bytes(uint64(addr.Offset)), addr.Timestamp)
	} else {
		fmt.Println("  cleanly closed")
	}

	return nil
}

// DumpCmd recovers a journal and prints its Page Index in (volume, page)
// order, marking gaps between non-consecutive page numbers within a volume.
type DumpCmd struct {
	Path string `arg:"" help:"Journal directory" type:"existingdir"`
	Base string `help:"Segment filename base" default:"journal"`
}

func (c *DumpCmd) Run() error {
	registry := handle.New(4096)
	idx := pageindex.New()
	if _, err := recovery.Run(c.Path, c.Base, 4*1024*1024, registry, idx); err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	entries := idx.Snapshot()
	if len(entries) == 0 {
		fmt.Println("page index is empty")
		return nil
	}

	var prevVolume string
	var prevPage int64
	havePrev := false

	for _, e := range entries {
		if havePrev && e.Key.Volume.Path == prevVolume && e.Key.Page > prevPage+1 {
			fmt.Printf("  ... gap: pages %d-%d missing\n", prevPage+1, e.Key.Page-1)
		}
		if !havePrev || e.Key.Volume.Path != prevVolume {
			fmt.Printf("%s\n", e.Key.Volume.Path)
		}
		fmt.Printf("  page %d  segment=%s offset=%s timestamp=%d\n",
			e.Key.Page, e.Value.Segment, humanize.Bytes(uint64(e.Value.Offset)), e.Value.Timestamp)
		prevVolume = e.Key.Volume.Path
		prevPage = e.Key.Page
		havePrev = true
	}
	fmt.Printf("\ntotal: %d page(s)\n", len(entries))
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("journalctl"),
		kong.Description("Diagnostic recovery and inspection for a journal directory"),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
