// Package store holds the current ProcessingRequest of every job.
package store

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

const defaultShards = 32

type shard struct {
	mu   sync.RWMutex
	jobs map[string]entity.ProcessingRequest
}

// ResultStore maps job IDs to their processing records. Keys are spread over
// shards, each with its own reader/writer lock, so writes to different jobs
// rarely contend. Records are copied in and out; callers never share memory
// with the store.
type ResultStore struct {
	shards []*shard
}

// New returns a store with n shards; n <= 0 uses the default.
func New(n int) *ResultStore {
	if n <= 0 {
		n = defaultShards
	}
	s := &ResultStore{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{jobs: make(map[string]entity.ProcessingRequest)}
	}
	return s
}

func (s *ResultStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Put inserts or replaces the record for id.
func (s *ResultStore) Put(id string, req entity.ProcessingRequest) {
	c := req.Clone()
	sh := s.shardFor(id)
	sh.mu.Lock()
	sh.jobs[id] = c
	sh.mu.Unlock()
}

// Get returns a copy of the record for id.
func (s *ResultStore) Get(id string) (entity.ProcessingRequest, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	req, ok := sh.jobs[id]
	sh.mu.RUnlock()
	if !ok {
		return entity.ProcessingRequest{}, false
	}
	return req.Clone(), true
}

// Len reports how many jobs are tracked.
func (s *ResultStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.jobs)
		sh.mu.RUnlock()
	}
	return n
}

// List returns copies of the records accepted by keep (all when keep is nil),
// oldest first. Each shard is read under its own lock, so the result is not a
// point-in-time snapshot across shards.
func (s *ResultStore) List(keep func(entity.ProcessingRequest) bool) []entity.ProcessingRequest {
	var out []entity.ProcessingRequest
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, req := range sh.jobs {
			if keep == nil || keep(req) {
				out = append(out, req.Clone())
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
