package vocab

import (
	"testing"

	"github.com/conorfennell/vocabreview/internal/domain"
)

func TestNormalize(t *testing.T) {
	e := domain.Entry{
		Word:        "  Serendipity \r\n",
		Translation: "Glücklicher   Zufall",
		Context:     "It was pure\r\nserendipity.",
	}
	expected := "serendipity\nglücklicher zufall\nit was pure serendipity."
	if got := Normalize(e); got != expected {
		t.Errorf("Expected normalized string to be %q, but got %q", expected, got)
	}
}

func TestHash(t *testing.T) {
	t.Run("is hex sha256", func(t *testing.T) {
		// sha256 of "q\na\nc"
		expected := "eb2456c1ee4f36305069dd0f63a30e92d5443129f5e8fd9a5ec490fbc4d4d8a2"
		if got := Hash(domain.Entry{Word: "Q", Translation: "A", Context: "C"}); got != expected {
			t.Errorf("Expected hash '%s', but got '%s'", expected, got)
		}
	})

	t.Run("ignores case and spacing", func(t *testing.T) {
		a := domain.Entry{Word: "  run ", Translation: "laufen"}
		b := domain.Entry{Word: "Run", Translation: "Laufen"}
		if Hash(a) != Hash(b) {
			t.Error("Expected hashes to match after normalization, but they were different.")
		}
	})

	t.Run("field boundaries matter", func(t *testing.T) {
		a := domain.Entry{Word: "ab", Translation: "c"}
		b := domain.Entry{Word: "a", Translation: "bc"}
		if Hash(a) == Hash(b) {
			t.Error("Expected different hashes for different field splits")
		}
	})
}
