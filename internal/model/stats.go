package model

import (
	"sort"
	"sync"
	"time"
)

// ShardStats is a snapshot of one gateway shard's connection history
type ShardStats struct {
	ShardID   int
	Restarts  int
	Connected bool
	ReadyAt   time.Time
}

// Stats holds process and gateway statistics.
//
// A single instance is created at startup and handed to whoever reads or
// writes it; all methods are safe for concurrent use.
type Stats struct {
	mu          sync.RWMutex
	started     time.Time
	numCPUs     int
	cpuPercent  float64
	memBytes    uint64
	totalShards int
	shards      map[int]*ShardStats
}

// NewStats creates a stats holder for a process started at the given time
func NewStats(started time.Time, numCPUs int) *Stats {
	if numCPUs <= 0 {
		numCPUs = 1
	}
	return &Stats{
		started: started,
		numCPUs: numCPUs,
		shards:  make(map[int]*ShardStats),
	}
}

// Started returns the process start time
func (s *Stats) Started() time.Time {
	return s.started
}

// SetProcessUsage stores the latest CPU percentage (summed over cores) and RSS
func (s *Stats) SetProcessUsage(cpuPercent float64, memBytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpuPercent = cpuPercent
	s.memBytes = memBytes
}

// CPUUsage returns CPU usage as a percentage of total machine capacity
func (s *Stats) CPUUsage() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cpuPercent / float64(s.numCPUs)
}

// MemUsage returns the resident set size in bytes
func (s *Stats) MemUsage() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memBytes
}

// SetTotalShards records the shard count reported by the gateway
func (s *Stats) SetTotalShards(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalShards = total
}

// TotalShards returns the shard count reported by the gateway
func (s *Stats) TotalShards() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalShards
}

// ShardConnected marks a shard as connected, creating it on first sight
func (s *Stats) ShardConnected(shardID int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shard, ok := s.shards[shardID]
	if !ok {
		s.shards[shardID] = &ShardStats{ShardID: shardID, Connected: true, ReadyAt: now}
		return
	}
	if !shard.Connected {
		shard.Connected = true
		shard.ReadyAt = now
	}
}

// ShardDisconnected marks a connected shard as disconnected and counts a restart
func (s *Stats) ShardDisconnected(shardID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shard, ok := s.shards[shardID]
	if !ok || !shard.Connected {
		return
	}
	shard.Connected = false
	shard.ReadyAt = time.Time{}
	shard.Restarts++
}

// ConnectedShards returns the number of connected shards
func (s *Stats) ConnectedShards() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, shard := range s.shards {
		if shard.Connected {
			count++
		}
	}
	return count
}

// Shard returns a copy of one shard's stats
func (s *Stats) Shard(shardID int) (ShardStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shard, ok := s.shards[shardID]
	if !ok {
		return ShardStats{}, false
	}
	return *shard, true
}

// Shards returns copies of all shard stats ordered by shard id
func (s *Stats) Shards() []ShardStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ShardStats, 0, len(s.shards))
	for _, shard := range s.shards {
		out = append(out, *shard)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShardID < out[j].ShardID })
	return out
}
