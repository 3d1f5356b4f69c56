// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package task

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/m3u8downloader/internal/logger"

	"github.com/lithammer/shortuuid/v4"
)

// Store keeps download tasks in memory
type Store interface {
	Add(source string) (*Task, error)
	Get(id string) (*Task, error)
	List(ids []string) []*Task
}

type store struct {
	logger logger.Logger
	tasks  map[string]*Task
	mu     sync.RWMutex
}

// NewStore creates a task store
func NewStore(log logger.Logger) Store {
	if log == nil {
		log = logger.Nop()
	}
	return &store{
		logger: log,
		tasks:  make(map[string]*Task),
	}
}

func (s *store) Add(source string) (*Task, error) {
	source = strings.TrimSpace(source)
	if len(source) == 0 {
		return nil, ErrEmptySource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	t := &Task{
		ID:        shortuuid.New(),
		Source:    source,
		CreatedAt: now.Unix(),
		logger:    s.logger,
		state:     StatePending,
		updatedAt: now.Unix(),
	}
	s.tasks[t.ID] = t
	s.logger.Debug("task %s created for %s", t.ID, source)

	return t, nil
}

func (s *store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns the tasks with the given ids, or all of them, oldest first.
func (s *store) List(ids []string) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if len(ids) > 0 {
			found := false
			for _, id := range ids {
				if t.ID == id {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}
