// Package rate provides a bounded-memory, per-key sliding window RPS
// estimator and a threshold guard built on it.
package rate

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type SlidingRPS struct {
	mu      sync.Mutex
	window  int // seconds
	cap     int // max keys retained
	items   map[string]*list.Element
	lru     *list.List // front = most recently used
	nowFunc func() int64
}

type rpsEntry struct {
	key      string
	startSec int64
	lastSec  int64
	buckets  []uint16 // one per second, tail = lastSec
}

// NewSlidingRPS creates a 10k-key estimator over a window of seconds.
func NewSlidingRPS(window int) *SlidingRPS {
	return NewSlidingRPSWithCapacity(window, 10000)
}

func NewSlidingRPSWithCapacity(window, capacity int) *SlidingRPS {
	if window <= 0 {
		window = 10
	}
	if capacity <= 0 {
		capacity = 10000
	}
	return &SlidingRPS{
		window:  window,
		cap:     capacity,
		items:   make(map[string]*list.Element, capacity/2),
		lru:     list.New(),
		nowFunc: func() int64 { return time.Now().Unix() },
	}
}

// Add records an event for key and returns the estimated RPS across the
// covered part of the window.
func (s *SlidingRPS) Add(key string) float64 {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.lru.Len(); n > s.cap*90/100 && n%100 == 0 {
		log.Warn().Int("entries", n).Int("capacity", s.cap).Msg("rate limiter approaching capacity")
	}

	if el, ok := s.items[key]; ok {
		en := el.Value.(*rpsEntry)
		s.advance(en, now)
		if en.buckets[s.window-1] < 65535 {
			en.buckets[s.window-1]++
		}
		s.lru.MoveToFront(el)
		return s.estimate(en, now)
	}

	if s.lru.Len() >= s.cap {
		if back := s.lru.Back(); back != nil {
			delete(s.items, back.Value.(*rpsEntry).key)
			s.lru.Remove(back)
		}
	}
	en := &rpsEntry{
		key:      key,
		startSec: now,
		lastSec:  now,
		buckets:  make([]uint16, s.window),
	}
	en.buckets[s.window-1] = 1
	s.items[key] = s.lru.PushFront(en)
	return s.estimate(en, now)
}

func (s *SlidingRPS) advance(en *rpsEntry, now int64) {
	if now <= en.lastSec {
		return
	}
	diff := now - en.lastSec
	if diff >= int64(s.window) {
		for i := range en.buckets {
			en.buckets[i] = 0
		}
		en.startSec = now
		en.lastSec = now
		return
	}
	shift := int(diff)
	copy(en.buckets, en.buckets[shift:])
	for i := s.window - shift; i < s.window; i++ {
		en.buckets[i] = 0
	}
	en.lastSec = now
}

func (s *SlidingRPS) estimate(en *rpsEntry, now int64) float64 {
	sum := 0
	for _, b := range en.buckets {
		sum += int(b)
	}
	span := int(now - en.startSec + 1)
	if span < 1 {
		span = 1
	}
	if span > s.window {
		span = s.window
	}
	return float64(sum) / float64(span)
}

// Guard rejects keys whose estimated RPS exceeds Limit. A zero Limit
// disables the guard.
type Guard struct {
	Limit float64
	rps   *SlidingRPS
}

func NewGuard(limit float64, window int) *Guard {
	return &Guard{Limit: limit, rps: NewSlidingRPS(window)}
}

// Allow records a hit for key and reports whether it stays within the limit.
func (g *Guard) Allow(key string) (bool, float64) {
	if g == nil || g.Limit <= 0 || key == "" {
		return true, 0
	}
	rps := g.rps.Add(key)
	return rps <= g.Limit, rps
}
