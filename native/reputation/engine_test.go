package reputation

import (
	"errors"
	"strings"
	"testing"

	"hourbank/core/events"
)

func newTestEngine(height *uint64) (*Engine, *events.Buffer) {
	buf := &events.Buffer{}
	engine := NewEngine(newMemoryStore())
	engine.SetEmitter(buf)
	engine.SetHeightFunc(func() uint64 { return *height })
	return engine, buf
}

func TestAverageAcrossBookings(t *testing.T) {
	height := uint64(10)
	engine, buf := newTestEngine(&height)
	rater := testAccount("rater")
	rated := testAccount("x")

	if err := engine.AddRating(rater, rated, 1, 5, "great"); err != nil {
		t.Fatalf("first rating: %v", err)
	}
	if err := engine.AddRating(rater, rated, 2, 3, "ok"); err != nil {
		t.Fatalf("second rating: %v", err)
	}
	agg, ok, err := engine.Reputation(rated)
	if err != nil || !ok {
		t.Fatalf("reputation: ok=%v err=%v", ok, err)
	}
	if agg.TotalScore != 8 || agg.TotalRatings != 2 || agg.AverageRating() != 4 {
		t.Fatalf("unexpected aggregate: %+v avg=%d", agg, agg.AverageRating())
	}

	emitted := buf.Payloads()
	if len(emitted) != 2 || emitted[1].Type != EventTypeRated {
		t.Fatalf("unexpected events: %+v", emitted)
	}
	if emitted[1].Attributes["averageRating"] != "4" || emitted[1].Attributes["bookingId"] != "2" {
		t.Fatalf("unexpected attributes: %+v", emitted[1].Attributes)
	}
	if _, present := emitted[1].Attributes["comment"]; present {
		t.Fatalf("comment must not be emitted")
	}
}

func TestAverageTruncates(t *testing.T) {
	height := uint64(1)
	engine, _ := newTestEngine(&height)
	rated := testAccount("rated")

	scores := []uint64{5, 4, 4}
	for i, score := range scores {
		if err := engine.AddRating(testAccount(string(rune('a'+i))), rated, 1, score, "fine"); err != nil {
			t.Fatalf("rating %d: %v", i, err)
		}
	}
	agg, _, err := engine.Reputation(rated)
	if err != nil {
		t.Fatalf("reputation: %v", err)
	}
	if agg.AverageRating() != 4 {
		t.Fatalf("expected floor(13/3)=4, got %d", agg.AverageRating())
	}
}

func TestRatingValidationKinds(t *testing.T) {
	height := uint64(1)
	engine, buf := newTestEngine(&height)
	rater := testAccount("rater")
	rated := testAccount("rated")

	if err := engine.AddRating(rater, rated, 1, 0, "x"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("score 0: %v", err)
	}
	if err := engine.AddRating(rater, rated, 1, 6, "x"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("score 6: %v", err)
	}
	for _, score := range []uint64{256, 261, 1 << 40} {
		if err := engine.AddRating(rater, rated, 1, score, "x"); !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("score %d: %v", score, err)
		}
	}
	if err := engine.AddRating(rater, rated, 1, 3, ""); !errors.Is(err, ErrEmptyComment) {
		t.Fatalf("empty comment: %v", err)
	}
	if err := engine.AddRating(rater, rated, 1, 3, strings.Repeat("c", MaxCommentLength+1)); !errors.Is(err, ErrCommentLength) {
		t.Fatalf("long comment: %v", err)
	}
	if err := engine.AddRating(rater, rated, 0, 3, "x"); !errors.Is(err, ErrInvalidBookingID) {
		t.Fatalf("booking 0: %v", err)
	}
	if _, ok, err := engine.Reputation(rated); err != nil || ok {
		t.Fatalf("expected no aggregate, ok=%v err=%v", ok, err)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("failed ratings emitted events")
	}
}

func TestCommentAtMaxLengthAccepted(t *testing.T) {
	height := uint64(3)
	engine, buf := newTestEngine(&height)
	rater := testAccount("rater")
	rated := testAccount("rated")

	comment := strings.Repeat("c", MaxCommentLength)
	if err := engine.AddRating(rater, rated, 1, MaxScore, comment); err != nil {
		t.Fatalf("comment of %d bytes: %v", MaxCommentLength, err)
	}
	stored, ok, err := engine.Rating(rater, rated, 1)
	if err != nil || !ok {
		t.Fatalf("rating lookup: ok=%v err=%v", ok, err)
	}
	if stored.Comment != comment || stored.Score != MaxScore {
		t.Fatalf("unexpected stored rating: score=%d len=%d", stored.Score, len(stored.Comment))
	}
	agg, _, err := engine.Reputation(rated)
	if err != nil {
		t.Fatalf("reputation: %v", err)
	}
	if agg.TotalRatings != 1 || agg.TotalScore != MaxScore {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	if len(buf.Events()) != 1 {
		t.Fatalf("expected one event, got %d", len(buf.Events()))
	}
}

func TestRerateOverwritesAndDoubleCounts(t *testing.T) {
	height := uint64(5)
	engine, _ := newTestEngine(&height)
	rater := testAccount("rater")
	rated := testAccount("rated")

	if err := engine.AddRating(rater, rated, 9, 2, "slow"); err != nil {
		t.Fatalf("first: %v", err)
	}
	height = 6
	if err := engine.AddRating(rater, rated, 9, 5, "fixed it"); err != nil {
		t.Fatalf("second: %v", err)
	}
	rating, ok, err := engine.Rating(rater, rated, 9)
	if err != nil || !ok {
		t.Fatalf("rating: ok=%v err=%v", ok, err)
	}
	if rating.Score != 5 || rating.Comment != "fixed it" || rating.CreatedAt != 6 {
		t.Fatalf("expected overwritten record, got %+v", rating)
	}
	agg, _, err := engine.Reputation(rated)
	if err != nil {
		t.Fatalf("reputation: %v", err)
	}
	if agg.TotalRatings != 2 || agg.TotalScore != 7 {
		t.Fatalf("aggregate should count both submissions, got %+v", agg)
	}
}

func TestSelfRatingAndUnknownBooking(t *testing.T) {
	height := uint64(1)
	engine, _ := newTestEngine(&height)
	self := testAccount("self")

	if err := engine.AddRating(self, self, 987654, 5, "me"); err != nil {
		t.Fatalf("self rating: %v", err)
	}
	agg, ok, err := engine.Reputation(self)
	if err != nil || !ok || agg.TotalRatings != 1 {
		t.Fatalf("unexpected aggregate: %+v ok=%v err=%v", agg, ok, err)
	}
}

func TestMissingReads(t *testing.T) {
	height := uint64(1)
	engine, _ := newTestEngine(&height)

	if agg, ok, err := engine.Reputation(testAccount("nobody")); err != nil || ok || agg != nil {
		t.Fatalf("expected absent aggregate, got %+v ok=%v err=%v", agg, ok, err)
	}
	if r, ok, err := engine.Rating(testAccount("a"), testAccount("b"), 1); err != nil || ok || r != nil {
		t.Fatalf("expected absent rating, got %+v ok=%v err=%v", r, ok, err)
	}

	var nilEngine *Engine
	if err := nilEngine.AddRating(testAccount("a"), testAccount("b"), 1, 3, "x"); !errors.Is(err, errNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
}
