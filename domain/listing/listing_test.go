package listing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokenmart/goapi/domain"
)

func TestStatusAt(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		listing *Listing
		want    Status
	}{
		{
			name:    "nil listing is nonexistent",
			listing: nil,
			want:    StatusNonexistent,
		},
		{
			name:    "zero start time is nonexistent",
			listing: &Listing{},
			want:    StatusNonexistent,
		},
		{
			name: "active before closing time",
			listing: &Listing{
				StartTime:   now.Add(-time.Hour),
				ClosingTime: now.Add(time.Hour),
			},
			want: StatusActive,
		},
		{
			name: "expired at exactly closing time",
			listing: &Listing{
				StartTime:   now.Add(-time.Hour),
				ClosingTime: now,
			},
			want: StatusExpired,
		},
		{
			name: "expired after closing time",
			listing: &Listing{
				StartTime:   now.Add(-2 * time.Hour),
				ClosingTime: now.Add(-time.Hour),
			},
			want: StatusExpired,
		},
		{
			name: "sold",
			listing: &Listing{
				StartTime:   now.Add(-time.Hour),
				ClosingTime: now.Add(time.Hour),
				Sold:        true,
			},
			want: StatusSold,
		},
		{
			name: "canceled",
			listing: &Listing{
				StartTime:   now.Add(-time.Hour),
				ClosingTime: now.Add(time.Hour),
				Canceled:    true,
			},
			want: StatusCanceled,
		},
		{
			// precedence: terminal flags win over the time bar
			name: "sold listing past closing time reports sold",
			listing: &Listing{
				StartTime:   now.Add(-2 * time.Hour),
				ClosingTime: now.Add(-time.Hour),
				Sold:        true,
			},
			want: StatusSold,
		},
		{
			name: "canceled listing past closing time reports canceled",
			listing: &Listing{
				StartTime:   now.Add(-2 * time.Hour),
				ClosingTime: now.Add(-time.Hour),
				Canceled:    true,
			},
			want: StatusCanceled,
		},
		{
			name: "sold wins over canceled",
			listing: &Listing{
				StartTime:   now.Add(-time.Hour),
				ClosingTime: now.Add(time.Hour),
				Sold:        true,
				Canceled:    true,
			},
			want: StatusSold,
		},
	}

	for _, c := range cases {
		req.Equal(c.want, c.listing.StatusAt(now), c.name)
	}
}

func TestStatusIsPureOverTime(t *testing.T) {
	req := require.New(t)

	l := &Listing{
		StartTime:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		ClosingTime: time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC),
	}

	req.Equal(StatusActive, l.StatusAt(l.ClosingTime.Add(-time.Second)))
	req.Equal(StatusExpired, l.StatusAt(l.ClosingTime))
	// re-deriving with the earlier instant still reports active: the
	// function depends only on its inputs, not on call order
	req.Equal(StatusActive, l.StatusAt(l.ClosingTime.Add(-time.Second)))
}

func TestFingerprint(t *testing.T) {
	req := require.New(t)

	l := &Listing{
		ChainId:       1,
		AssetContract: "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D",
		TokenId:       "42",
	}

	req.Equal("1:0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d:42", l.Fingerprint())
	req.Equal(l.Fingerprint(), Fingerprint(1, "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d", "42"))
	req.NotEqual(l.Fingerprint(), Fingerprint(1, domain.Address(l.AssetContract), "43"))
	req.NotEqual(l.Fingerprint(), Fingerprint(5, domain.Address(l.AssetContract), "42"))
}
