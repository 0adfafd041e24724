// Command lsmbench drives one workload against N independent engine
// instances concurrently, each in its own data directory. This mirrors
// the teacher's cmd/benchmark driver's intent (measure throughput and
// latency under load) while respecting spec §5: a single Engine is
// synchronous and not safe for concurrent access, so concurrency here
// comes from running separate instances side by side, never from
// sharing one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anchorkv/lsmkv"
	"github.com/anchorkv/lsmkv/internal/benchrun"
)

func main() {
	dir := flag.String("dir", "./lsmbench-data", "base directory; one subdirectory per instance")
	instances := flag.Int("instances", 4, "number of independent engine instances to run concurrently")
	duration := flag.Duration("duration", 10*time.Second, "duration per instance")
	numKeys := flag.Int("keys", 100000, "distinct key space per instance")
	valueSize := flag.Int("value-size", 100, "value size in bytes")
	writeRatio := flag.Float64("write-ratio", 0.5, "fraction of operations that are writes")
	dist := flag.String("distribution", "uniform", "key distribution: uniform or zipfian")
	flag.Parse()

	fmt.Println("lsmkv benchmark driver")
	fmt.Printf("instances=%d duration=%v keys=%d value_size=%d write_ratio=%.2f distribution=%s\n\n",
		*instances, *duration, *numKeys, *valueSize, *writeRatio, *dist)

	distribution := benchrun.DistUniform
	if *dist == "zipfian" {
		distribution = benchrun.DistZipfian
	}

	results := make([]benchrun.Result, *instances)
	errs := make([]error, *instances)

	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < *instances; i++ {
		i := i
		g.Go(func() error {
			instDir := filepath.Join(*dir, fmt.Sprintf("instance-%02d", i))
			e, err := lsmkv.Open(instDir, lsmkv.DefaultOptions())
			if err != nil {
				errs[i] = err
				return err
			}
			defer e.Close()

			res, err := benchrun.Run(e, benchrun.Config{
				NumKeys:      *numKeys,
				ValueSize:    *valueSize,
				Duration:     *duration,
				WriteRatio:   *writeRatio,
				Distribution: distribution,
				Seed:         int64(i) + 1,
			})
			results[i] = res
			errs[i] = err
			return err
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "benchmark failed: %v\n", err)
		os.Exit(1)
	}

	printResults(results)
}

func printResults(results []benchrun.Result) {
	var writeStats, readStats []benchrun.Stats
	var totalWrites, totalReads int64

	for i, r := range results {
		fmt.Printf("instance %02d: writes=%d reads=%d write_p99=%v read_p99=%v\n",
			i, r.WriteOps, r.ReadOps, r.WriteLat.P99, r.ReadLat.P99)
		writeStats = append(writeStats, r.WriteLat)
		readStats = append(readStats, r.ReadLat)
		totalWrites += r.WriteOps
		totalReads += r.ReadOps
	}

	mergedWrite := benchrun.Merge(writeStats)
	mergedRead := benchrun.Merge(readStats)

	fmt.Println()
	fmt.Printf("total writes: %d  total reads: %d\n", totalWrites, totalReads)
	fmt.Printf("write latency: mean=%v p50=%v p95=%v p99=%v\n", mergedWrite.Mean, mergedWrite.P50, mergedWrite.P95, mergedWrite.P99)
	fmt.Printf("read latency:  mean=%v p50=%v p95=%v p99=%v\n", mergedRead.Mean, mergedRead.P50, mergedRead.P95, mergedRead.P99)
}
