package main

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	ok := Config{Capacity: 4, Concurrency: 20, Duration: time.Second}
	if err := ok.validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]Config{
		"capacity zero":         {Capacity: 0, Concurrency: 20, Duration: time.Second},
		"capacity above max":    {Capacity: 9, Concurrency: 20, Duration: time.Second},
		"no contention":         {Capacity: 4, Concurrency: 4, Duration: time.Second},
		"non-positive duration": {Capacity: 4, Concurrency: 20},
	}
	for name, cfg := range cases {
		if err := cfg.validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
