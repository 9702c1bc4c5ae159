package logger

import (
	"context"
	"fmt"
	"testing"
)

func TestParseRatio(t *testing.T) {
	cases := map[string][2]int{
		"1/50":  {1, 50},
		" 3/4 ": {3, 4},
		"20":    {1, 20},
		"":      {0, 0},
		"0":     {0, 0},
		"x/5":   {0, 0},
		"2/-1":  {0, 0},
	}
	for in, want := range cases {
		if n, d := parseRatio(in); n != want[0] || d != want[1] {
			t.Fatalf("parseRatio(%q) = %d/%d, want %d/%d", in, n, d, want[0], want[1])
		}
	}
}

func TestRatioSamplerCounter(t *testing.T) {
	s := newRatioSampler(1, 3)
	var got []bool
	for i := 0; i < 6; i++ {
		got = append(got, s.Allow(""))
	}
	if fmt.Sprint(got) != "[true false false true false false]" {
		t.Fatalf("allow sequence = %v", got)
	}

	s.Set(0, 0)
	if !s.Allow("") || !s.Allow("k") {
		t.Fatalf("disabled sampler must pass everything")
	}
}

func TestRatioSamplerStablePerKey(t *testing.T) {
	s := newRatioSampler(1, 4)
	kept := 0
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("tg:%d", i)
		first := s.Allow(key)
		for j := 0; j < 5; j++ {
			if s.Allow(key) != first {
				t.Fatalf("%s: decision changed between calls", key)
			}
		}
		if first {
			kept++
		}
	}
	if kept == 0 || kept == 200 {
		t.Fatalf("kept %d of 200 keys", kept)
	}
}

func TestShouldSampleDebugUsesSession(t *testing.T) {
	debugSampler.Set(1, 1000)
	defer debugSampler.Set(1, 50)

	ctx := WithSession(context.Background(), "line:U1")
	first := ShouldSampleDebug(ctx)
	for i := 0; i < 10; i++ {
		if ShouldSampleDebug(ctx) != first {
			t.Fatalf("sampling changed within one session")
		}
	}
}
