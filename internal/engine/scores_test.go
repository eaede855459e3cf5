package engine

import "testing"

func intPtr(v int) *int { return &v }

func TestResolveScore(t *testing.T) {
	scores := map[string]int{"default": 50, "sqp-1-web": 80}

	tests := []struct {
		name             string
		instanceOverride *int
		templateOverride *int
		scoreSet         string
		trashScores      map[string]int
		want             int
	}{
		{
			name:             "instance override beats everything",
			instanceOverride: intPtr(1000),
			templateOverride: intPtr(500),
			scoreSet:         "sqp-1-web",
			trashScores:      scores,
			want:             1000,
		},
		{
			name:             "template override beats catalog",
			templateOverride: intPtr(500),
			scoreSet:         "sqp-1-web",
			trashScores:      scores,
			want:             500,
		},
		{
			name:        "score set entry",
			scoreSet:    "sqp-1-web",
			trashScores: scores,
			want:        80,
		},
		{
			name:        "unknown score set falls back to default",
			scoreSet:    "sqp-9-missing",
			trashScores: scores,
			want:        50,
		},
		{
			name:        "empty score set uses default",
			trashScores: scores,
			want:        50,
		},
		{
			name:        "no default entry resolves to zero",
			scoreSet:    "other",
			trashScores: map[string]int{"uhd": 120},
			want:        0,
		},
		{
			name: "nil score table resolves to zero",
			want: 0,
		},
		{
			name:             "zero override is still an override",
			templateOverride: intPtr(0),
			trashScores:      scores,
			want:             0,
		},
		{
			name:             "negative instance override",
			instanceOverride: intPtr(-10000),
			trashScores:      scores,
			want:             -10000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveScore(tt.instanceOverride, tt.templateOverride, tt.scoreSet, tt.trashScores)
			if got != tt.want {
				t.Errorf("ResolveScore() = %d, want %d", got, tt.want)
			}
		})
	}
}
