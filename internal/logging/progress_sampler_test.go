package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 5},
		{"default bucket size for negative", -1, 5},
		{"custom bucket size", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNilAlwaysLogs(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("transcribing", 50) {
		t.Error("nil sampler should always log")
	}
	s.Reset()
}

type sample struct {
	stage   string
	percent float64
	want    bool
}

func TestProgressSamplerSequences(t *testing.T) {
	tests := []struct {
		name    string
		bucket  float64
		samples []sample
	}{
		{
			name:   "buckets of five",
			bucket: 5,
			samples: []sample{
				{"transcribing", 0, true},
				{"transcribing", 3, false},
				{"transcribing", 5, true},
				{"transcribing", 7, false},
				{"transcribing", 10, true},
			},
		},
		{
			name:   "stage change resets buckets",
			bucket: 5,
			samples: []sample{
				{"extracting", 50, true},
				{"transcribing", 0, true},
				{"transcribing", 10, true},
				{"transcribing", 10, false},
			},
		},
		{
			name:   "stage whitespace ignored",
			bucket: 5,
			samples: []sample{
				{" extracting ", 0, true},
				{"extracting", 0, false},
			},
		},
		{
			name:   "unknown percent only logs on stage change",
			bucket: 5,
			samples: []sample{
				{"mixing", -1, true},
				{"mixing", -1, false},
			},
		},
		{
			name:   "values above 100 share the final bucket",
			bucket: 5,
			samples: []sample{
				{"transcribing", 95, true},
				{"transcribing", 100, true},
				{"transcribing", 105, false},
			},
		},
		{
			name:   "quarter buckets",
			bucket: 25,
			samples: []sample{
				{"transcribing", 0, true},
				{"transcribing", 20, false},
				{"transcribing", 25, true},
				{"transcribing", 49, false},
				{"transcribing", 50, true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucket)
			for i, smp := range tt.samples {
				if got := s.ShouldLog(smp.stage, smp.percent); got != smp.want {
					t.Fatalf("sample %d (%s %.1f): got %v, want %v", i, smp.stage, smp.percent, got, smp.want)
				}
			}
		})
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog("transcribing", 50)

	s.Reset()

	if s.lastStage != "" {
		t.Errorf("lastStage = %q, want empty after reset", s.lastStage)
	}
	if !s.ShouldLog("transcribing", 50) {
		t.Error("should log after reset")
	}
}
