package matching

import (
	"testing"
	"time"

	"github.com/example/freight-matching/internal/models"
)

type fakeRatings map[string]float64

func (f fakeRatings) AverageOverall(ownerID string) float64 { return f[ownerID] }

func mkListing(id, owner string, price models.Money, dep time.Time) models.Listing {
	return models.Listing{ID: id, OwnerID: owner, AskingPrice: price, DepartureDate: dep}
}

func TestRankByPrice(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	in := []models.Listing{
		mkListing("c", "o1", 20000, day),
		mkListing("a", "o2", 12000, day),
		mkListing("b", "o3", 15000, day),
	}
	got := NewService(nil).Rank(in, SortByPrice)
	if got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("order = %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
	// input untouched
	if in[0].ID != "c" {
		t.Fatal("Rank must not mutate its input")
	}
}

func TestRankTiesBrokenByIDAscending(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	in := []models.Listing{
		mkListing("b", "o1", 15000, day),
		mkListing("a", "o2", 15000, day),
		mkListing("c", "o3", 15000, day),
	}
	for _, by := range []SortBy{SortByPrice, SortByRating, SortByDate} {
		got := NewService(nil).Rank(in, by)
		if got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
			t.Fatalf("%s: order = %s %s %s, want a b c", by, got[0].ID, got[1].ID, got[2].ID)
		}
	}
}

func TestRankByRatingPrefersBetterOwner(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	in := []models.Listing{
		mkListing("a", "meh", 10000, day),
		mkListing("b", "great", 20000, day),
	}
	svc := NewService(fakeRatings{"meh": 3.1, "great": 4.9})
	got := svc.Rank(in, SortByRating)
	if got[0].ID != "b" {
		t.Fatalf("first = %s, want b", got[0].ID)
	}
}

func TestRankByDateEarliestFirst(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	in := []models.Listing{
		mkListing("a", "o1", 10000, day.Add(48*time.Hour)),
		mkListing("b", "o2", 20000, day),
	}
	got := NewService(nil).Rank(in, SortByDate)
	if got[0].ID != "b" {
		t.Fatalf("first = %s, want b", got[0].ID)
	}
}

func TestRankUnknownKeyFallsBackToPrice(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	in := []models.Listing{
		mkListing("a", "o1", 20000, day),
		mkListing("b", "o2", 10000, day),
	}
	got := NewService(nil).Rank(in, SortBy("distance"))
	if got[0].ID != "b" {
		t.Fatalf("first = %s, want b", got[0].ID)
	}
}

func TestRankDeterministic(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	in := []models.Listing{
		mkListing("d", "o1", 15000, day),
		mkListing("b", "o2", 15000, day),
		mkListing("a", "o3", 12000, day),
		mkListing("c", "o4", 15000, day),
	}
	svc := NewService(nil)
	first := svc.Rank(in, SortByPrice)
	for i := 0; i < 10; i++ {
		again := svc.Rank(in, SortByPrice)
		for j := range first {
			if first[j].ID != again[j].ID {
				t.Fatalf("run %d diverged at %d", i, j)
			}
		}
	}
}
