// Command pagecachectl is an interactive inspector for a page cache: it
// drives FetchPage/UnpinPage/FlushPage/NewPage/DeletePage against a buffer
// pool manager backed by a real data file, for manual exercising of the core
// without wiring up a full storage engine around it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/time/rate"

	"github.com/sushant-115/pagecached/internal/diskio"
	"github.com/sushant-115/pagecached/internal/pagecache"
	"github.com/sushant-115/pagecached/internal/pagecacheconfig"
	"github.com/sushant-115/pagecached/pkg/logger"
	"github.com/sushant-115/pagecached/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults baked in if omitted)")
	flag.Parse()

	cfg := pagecacheconfig.Defaults()
	if *configPath != "" {
		loaded, err := pagecacheconfig.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	diskOpts := []diskio.Option{diskio.WithLogger(log)}
	if cfg.WriteRateBytesPerSec > 0 {
		diskOpts = append(diskOpts, diskio.WithWriteLimiter(rate.NewLimiter(rate.Limit(cfg.WriteRateBytesPerSec), cfg.PageSize)))
	}

	create := false
	if _, statErr := os.Stat(cfg.DataFile); os.IsNotExist(statErr) {
		create = true
	}
	disk, err := diskio.Open(cfg.DataFile, cfg.PageSize, create, diskOpts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer disk.Close()

	pool := pagecache.NewBufferPoolManager(cfg.PoolSize, cfg.PageSize, cfg.BucketSize, disk,
		pagecache.WithLogger(log), pagecache.WithMeter(tel.Meter))

	rl, err := readline.New("pagecachectl> ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("pagecachectl: fetch <id> | unpin <id> <0|1> | flush <id> | new | delete <id> | quit")
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		runCommand(pool, strings.TrimSpace(line))
	}
}

func runCommand(pool *pagecache.BufferPoolManager, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "quit", "exit":
		os.Exit(0)

	case "fetch":
		id, err := parsePageID(fields)
		if err != nil {
			fmt.Println(err)
			return
		}
		frame, err := pool.FetchPage(id)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if frame == nil {
			fmt.Println("pool exhausted")
			return
		}
		fmt.Printf("fetched page %d, pin_count=%d dirty=%v\n", id, frame.PinCount(), frame.IsDirty())

	case "unpin":
		if len(fields) != 3 {
			fmt.Println("usage: unpin <id> <0|1>")
			return
		}
		id, err := parsePageID(fields)
		if err != nil {
			fmt.Println(err)
			return
		}
		dirty := fields[2] == "1"
		if !pool.UnpinPage(id, dirty) {
			fmt.Println("unpin refused: page not resident or already unpinned")
			return
		}
		fmt.Println("unpinned", id)

	case "flush":
		id, err := parsePageID(fields)
		if err != nil {
			fmt.Println(err)
			return
		}
		ok, err := pool.FlushPage(id)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("flushed:", ok)

	case "new":
		frame, id, err := pool.NewPage()
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if frame == nil {
			fmt.Println("pool exhausted")
			return
		}
		fmt.Println("new page id:", id)

	case "delete":
		id, err := parsePageID(fields)
		if err != nil {
			fmt.Println(err)
			return
		}
		ok, err := pool.DeletePage(id)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("deleted:", ok)

	default:
		fmt.Println("unknown command:", fields[0])
	}
}

func parsePageID(fields []string) (pagecache.PageID, error) {
	if len(fields) < 2 {
		return pagecache.InvalidPageID, fmt.Errorf("usage: %s <id>", fields[0])
	}
	n, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return pagecache.InvalidPageID, fmt.Errorf("invalid page id %q: %w", fields[1], err)
	}
	return pagecache.PageID(n), nil
}
