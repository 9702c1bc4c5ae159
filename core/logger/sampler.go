package logger

import (
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
)

// ratioSampler passes numerator out of every denominator events. Keyed events
// are decided by the key's hash, so one session's debug trail is kept or
// dropped as a whole; unkeyed events rotate through a counter.
type ratioSampler struct {
	mu          sync.Mutex
	numerator   int
	denominator int
	counter     int
}

func newRatioSampler(numerator, denominator int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set configures the ratio. A non-positive part disables sampling, so every
// event passes.
func (s *ratioSampler) Set(numerator, denominator int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter = 0
	if numerator <= 0 || denominator <= 0 {
		s.numerator, s.denominator = 0, 0
		return
	}
	s.numerator = min(numerator, denominator)
	s.denominator = denominator
}

// Allow reports whether an event for key passes sampling. key may be empty.
func (s *ratioSampler) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denominator <= 0 {
		return true
	}
	if key != "" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(key))
		return int(h.Sum32()%uint32(s.denominator)) < s.numerator
	}
	s.counter = s.counter%s.denominator + 1
	return s.counter <= s.numerator
}

// parseRatio reads "N/D" or a bare "D" meaning 1/D. Anything else yields 0, 0.
func parseRatio(v string) (int, int) {
	v = strings.TrimSpace(v)
	num, den, ok := strings.Cut(v, "/")
	if !ok {
		num, den = "1", v
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n <= 0 {
		return 0, 0
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil || d <= 0 {
		return 0, 0
	}
	return n, d
}
