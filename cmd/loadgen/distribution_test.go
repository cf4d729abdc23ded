package main

import "testing"

func TestDistributeUniformSplitsEvenly(t *testing.T) {
	result := distributionUniform.distribute(100, 4)
	if len(result) != 4 {
		t.Fatalf("expected 4 streams, got %d", len(result))
	}
	for _, v := range result {
		if v != 25 {
			t.Errorf("expected 25 events per stream, got %d", v)
		}
	}
}

func TestDistributeLinearRampsUp(t *testing.T) {
	result := distributionLinear.distribute(100, 4)
	if len(result) == 0 {
		t.Fatal("expected at least one stream")
	}
	for i := 1; i < len(result); i++ {
		if result[i] < result[i-1] {
			t.Fatalf("expected non-decreasing stream event counts, got %v", result)
		}
	}
}

func TestDistributeLinearDropsZeroStreams(t *testing.T) {
	result := distributionLinear.distribute(1, 10)
	for _, v := range result {
		if v == 0 {
			t.Fatal("expected zero-event streams to be dropped")
		}
	}
}
