package quality

import (
	"testing"
	"time"

	"github.com/stackroom/rankd/internal/catalog"
)

var qualityNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestComputeQuality(t *testing.T) {
	tests := []struct {
		name string
		sig  catalog.UserSignals
		want int
	}{
		{
			name: "new account with no history is baseline",
			sig:  catalog.UserSignals{AccountCreatedAt: qualityNow},
			want: 50,
		},
		{
			name: "age bonus caps at 10",
			sig: catalog.UserSignals{
				AccountCreatedAt: qualityNow.AddDate(-5, 0, 0),
			},
			want: 60,
		},
		{
			name: "all bonuses capped",
			sig: catalog.UserSignals{
				AccountCreatedAt:  qualityNow.AddDate(-5, 0, 0),
				PublicCollections: 1000,
				UpvotesReceived:   100000,
				Cards:             5000,
				LiveComments:      9999,
			},
			want: 100, // 50+10+20+15+10+5 clamps to 100
		},
		{
			name: "reports subtract five each",
			sig: catalog.UserSignals{
				AccountCreatedAt: qualityNow,
				ResolvedReports:  3,
			},
			want: 35,
		},
		{
			name: "heavy reports clamp to zero",
			sig: catalog.UserSignals{
				AccountCreatedAt: qualityNow,
				ResolvedReports:  50,
			},
			want: 0,
		},
		{
			name: "partial bonuses round",
			sig: catalog.UserSignals{
				AccountCreatedAt:  qualityNow.AddDate(0, 0, -9), // +3
				PublicCollections: 2,                            // +4
				UpvotesReceived:   25,                           // +2.5
				Cards:             3,                            // +1.5
				LiveComments:      5,                            // +1
			},
			want: 62,
		},
		{
			name: "future-dated account treated as age zero",
			sig: catalog.UserSignals{
				AccountCreatedAt: qualityNow.AddDate(0, 0, 30),
			},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeQuality(tt.sig, qualityNow); got != tt.want {
				t.Errorf("ComputeQuality() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestComputeQuality_AlwaysBounded fuzzes magnitudes to confirm the
// score is clamped for arbitrary inputs.
func TestComputeQuality_AlwaysBounded(t *testing.T) {
	extremes := []catalog.UserSignals{
		{AccountCreatedAt: qualityNow.AddDate(-100, 0, 0), PublicCollections: 1 << 30, UpvotesReceived: 1 << 30, Cards: 1 << 30, LiveComments: 1 << 30},
		{AccountCreatedAt: qualityNow, ResolvedReports: 1 << 20},
		{AccountCreatedAt: qualityNow.AddDate(10, 0, 0), PublicCollections: -5, UpvotesReceived: -5},
	}
	for i, sig := range extremes {
		got := ComputeQuality(sig, qualityNow)
		if got < 0 || got > 100 {
			t.Errorf("case %d: ComputeQuality() = %d, want within [0,100]", i, got)
		}
	}
}
