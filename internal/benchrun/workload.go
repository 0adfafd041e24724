package benchrun

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/anchorkv/lsmkv"
)

// Distribution selects which keys a worker touches, adapted from the
// teacher's KeyGenerator (uniform and zipfian kept; sequential and
// latest dropped as redundant for a single-instance workload driver).
type Distribution string

const (
	DistUniform Distribution = "uniform"
	DistZipfian Distribution = "zipfian"
)

// Config describes one workload run against one Engine instance.
type Config struct {
	NumKeys      int
	ValueSize    int
	Duration     time.Duration
	WriteRatio   float64 // fraction of ops that are writes, in [0,1]
	Distribution Distribution
	Seed         int64
}

// Result is the outcome of running a Config against one Engine.
type Result struct {
	WriteOps  int64
	ReadOps   int64
	ErrorOps  int64
	Duration  time.Duration
	WriteLat  Stats
	ReadLat   Stats
	EngineEnd lsmkv.Stats
}

// Run drives reads and writes against e for cfg.Duration on the calling
// goroutine. Since Engine is synchronous and not safe for concurrent
// use (spec §5), cmd/lsmbench gets concurrency by running one Run per
// Engine instance in its own goroutine, never by sharing an Engine.
func Run(e *lsmkv.Engine, cfg Config) (Result, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	var zipf *rand.Zipf
	if cfg.Distribution == DistZipfian {
		zipf = rand.NewZipf(rng, 1.1, 1, uint64(cfg.NumKeys))
	}

	nextKey := func() string {
		var n int
		if zipf != nil {
			n = int(zipf.Uint64())
		} else {
			n = rng.Intn(cfg.NumKeys)
		}
		return fmt.Sprintf("key:%010d", n)
	}

	value := make([]byte, cfg.ValueSize)
	rng.Read(value)

	var res Result
	var writeLat, readLat Histogram

	deadline := time.Now().Add(cfg.Duration)
	for time.Now().Before(deadline) {
		key := nextKey()
		if rng.Float64() < cfg.WriteRatio {
			start := time.Now()
			err := e.Set(key, value)
			elapsed := time.Since(start)
			if err != nil {
				res.ErrorOps++
				continue
			}
			writeLat.Record(elapsed)
			res.WriteOps++
		} else {
			start := time.Now()
			_, _, err := e.Get(key)
			elapsed := time.Since(start)
			if err != nil {
				res.ErrorOps++
				continue
			}
			readLat.Record(elapsed)
			res.ReadOps++
		}
	}

	res.Duration = cfg.Duration
	res.WriteLat = writeLat.Stats()
	res.ReadLat = readLat.Stats()
	res.EngineEnd = e.Stats()
	return res, nil
}
