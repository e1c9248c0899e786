package textseg

import (
	"reflect"
	"strings"
	"testing"
)

func TestSegmentEmpty(t *testing.T) {
	if got := Segment("", 5); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := Segment("   \n  ", 5); got != nil {
		t.Fatalf("expected nil for whitespace input, got %v", got)
	}
}

func TestSegmentBasic(t *testing.T) {
	got := Segment("Hello world. How are you? Great!", 0)
	want := []string{"Hello world.", "How are you?", "Great!"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSegmentTerminatorAttached(t *testing.T) {
	got := Segment("一つ目。二つ目！三つ目？", 0)
	want := []string{"一つ目。", "二つ目！", "三つ目？"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSegmentConsecutiveTerminators(t *testing.T) {
	got := Segment("Really!? No way... Yes.", 0)
	want := []string{"Really!?", "No way...", "Yes."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSegmentMergesShortUnits(t *testing.T) {
	// Both clauses have 5 meaningful runes, below the threshold of 7, so the
	// second merges into the first.
	got := Segment("こんにちは。ありがとう。", 7)
	want := []string{"こんにちは。ありがとう。"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSegmentFirstShortUnitKept(t *testing.T) {
	got := Segment("Hi. This is a much longer sentence.", 5)
	want := []string{"Hi.", "This is a much longer sentence."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSegmentShortTailMergesBackward(t *testing.T) {
	got := Segment("This is a long opening sentence. Ok.", 5)
	want := []string{"This is a long opening sentence.Ok."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSegmentIdempotent(t *testing.T) {
	inputs := []string{
		"Hello world. How are you? Great!",
		"こんにちは。ありがとう。さようなら。",
		"One short. Ok. Another considerably longer clause here.",
	}
	for _, input := range inputs {
		for _, min := range []int{0, 3, 7} {
			first := Segment(input, min)
			rejoined := strings.Join(first, "")
			second := Segment(rejoined, min)
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("segmentation not idempotent for %q min=%d: %v vs %v", input, min, first, second)
			}
		}
	}
}

func TestMeaningfulLen(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"...!?", 0},
		{"abc 123", 6},
		{"こんにちは。", 5},
		{"日本語とEnglish", 11},
	}
	for _, tc := range cases {
		if got := MeaningfulLen(tc.in); got != tc.want {
			t.Fatalf("MeaningfulLen(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
