// Package snowflake generates time-ordered 63-bit ids for chat messages.
//
// Layout, high to low: 41 bits of milliseconds since Epoch, datacenter bits,
// worker bits, sequence bits. Ids from one generator strictly increase.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01T00:00:00Z in milliseconds.
	Epoch int64 = 1704067200000

	DefaultDatacenterBits uint8 = 5
	DefaultWorkerBits     uint8 = 5
	DefaultSequenceBits   uint8 = 12
)

var (
	ErrInvalidWorkerID      = errors.New("worker ID exceeds maximum value")
	ErrInvalidDatacenterID  = errors.New("datacenter ID exceeds maximum value")
	ErrClockMovedBackwards  = errors.New("clock moved backwards")
	ErrInvalidBitAllocation = errors.New("invalid bit allocation: total bits must not exceed 22")
)

type Config struct {
	DatacenterID int64
	WorkerID     int64

	// Zero bit widths take the defaults.
	DatacenterBits uint8
	WorkerBits     uint8
	SequenceBits   uint8
}

// Generator hands out ids; it is safe for concurrent use.
type Generator struct {
	mu sync.Mutex

	datacenterID int64
	workerID     int64

	workerShift     uint8
	datacenterShift uint8
	timestampShift  uint8
	sequenceMask    int64

	sequence      int64
	lastTimestamp int64

	clock func() int64
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.DatacenterBits == 0 {
		cfg.DatacenterBits = DefaultDatacenterBits
	}
	if cfg.WorkerBits == 0 {
		cfg.WorkerBits = DefaultWorkerBits
	}
	if cfg.SequenceBits == 0 {
		cfg.SequenceBits = DefaultSequenceBits
	}
	if cfg.DatacenterBits+cfg.WorkerBits+cfg.SequenceBits > 22 {
		return nil, ErrInvalidBitAllocation
	}

	maxWorker := int64(-1) ^ (int64(-1) << cfg.WorkerBits)
	maxDatacenter := int64(-1) ^ (int64(-1) << cfg.DatacenterBits)
	if cfg.WorkerID < 0 || cfg.WorkerID > maxWorker {
		return nil, ErrInvalidWorkerID
	}
	if cfg.DatacenterID < 0 || cfg.DatacenterID > maxDatacenter {
		return nil, ErrInvalidDatacenterID
	}

	return &Generator{
		datacenterID:    cfg.DatacenterID,
		workerID:        cfg.WorkerID,
		workerShift:     cfg.SequenceBits,
		datacenterShift: cfg.SequenceBits + cfg.WorkerBits,
		timestampShift:  cfg.SequenceBits + cfg.WorkerBits + cfg.DatacenterBits,
		sequenceMask:    int64(-1) ^ (int64(-1) << cfg.SequenceBits),
		lastTimestamp:   -1,
		clock:           func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID returns the next id. A clock that steps back by more than a few
// milliseconds is reported as an error rather than waited out.
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.clock()
	if ts < g.lastTimestamp {
		if g.lastTimestamp-ts > 5 {
			return 0, ErrClockMovedBackwards
		}
		ts = g.waitUntil(g.lastTimestamp)
	}

	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & g.sequenceMask
		if g.sequence == 0 {
			ts = g.waitUntil(g.lastTimestamp + 1)
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = ts

	return (ts-Epoch)<<g.timestampShift |
		g.datacenterID<<g.datacenterShift |
		g.workerID<<g.workerShift |
		g.sequence, nil
}

func (g *Generator) waitUntil(ms int64) int64 {
	ts := g.clock()
	for ts < ms {
		time.Sleep(100 * time.Microsecond)
		ts = g.clock()
	}
	return ts
}

// Time returns the creation time encoded in id.
func (g *Generator) Time(id int64) time.Time {
	return time.UnixMilli(id>>g.timestampShift + Epoch)
}

// Parse splits id into its fields.
func (g *Generator) Parse(id int64) (timestamp, datacenterID, workerID, sequence int64) {
	sequence = id & g.sequenceMask
	workerID = (id >> g.workerShift) & (int64(-1) ^ (int64(-1) << (g.datacenterShift - g.workerShift)))
	datacenterID = (id >> g.datacenterShift) & (int64(-1) ^ (int64(-1) << (g.timestampShift - g.datacenterShift)))
	timestamp = id>>g.timestampShift + Epoch
	return
}
