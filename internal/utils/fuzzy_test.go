package utils

import (
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{
			name: "Identical",
			a:    "Keytruda",
			b:    "Keytruda",
			want: 100,
		},
		{
			name: "Case and trademark insensitive",
			a:    "KEYTRUDA®",
			b:    "keytruda",
			want: 100,
		},
		{
			name: "Single missing letter",
			a:    "Ketruda",
			b:    "Keytruda",
			want: 93,
		},
		{
			name: "Space insertion",
			a:    "SimponiAria",
			b:    "Simponi Aria",
			want: 100,
		},
		{
			name: "Missing word",
			a:    "Simponi",
			b:    "Simponi Aria",
			want: 78,
		},
		{
			name: "Token order",
			a:    "Aria Simponi",
			b:    "Simponi Aria",
			want: 100,
		},
		{
			name: "Both empty",
			a:    "",
			b:    "",
			want: 100,
		},
		{
			name: "One empty",
			a:    "",
			b:    "Humira",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("Similarity(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if sym := Similarity(tt.b, tt.a); sym != got {
				t.Errorf("Similarity not symmetric: (%q, %q) = %d vs %d", tt.a, tt.b, got, sym)
			}
		})
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{name: "Identical", a: "Keytruda", b: "Keytruda", want: 0},
		{name: "Case insensitive", a: "KEYTRUDA", b: "keytruda", want: 0},
		{name: "Single insertion", a: "Ketruda", b: "Keytruda", want: 1},
		{name: "Empty against name", a: "", b: "abc", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EditDistance(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	universe := []string{"Keytruda", "Humira", "Simponi Aria", "Stelara"}

	t.Run("Best match first", func(t *testing.T) {
		got := Match("Ketruda", universe, 3)
		if len(got) != 3 {
			t.Fatalf("Match() returned %d candidates, want 3", len(got))
		}
		if got[0].Name != "Keytruda" {
			t.Errorf("Match()[0].Name = %q, want %q", got[0].Name, "Keytruda")
		}
		if got[0].Confidence != 93 {
			t.Errorf("Match()[0].Confidence = %d, want 93", got[0].Confidence)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Confidence > got[i-1].Confidence {
				t.Errorf("Match() not sorted by confidence: %v", got)
			}
		}
	})

	t.Run("TopK truncation", func(t *testing.T) {
		got := Match("Keytruda", universe, 2)
		if len(got) != 2 {
			t.Errorf("Match() returned %d candidates, want 2", len(got))
		}
	})

	t.Run("Empty universe", func(t *testing.T) {
		got := Match("Keytruda", nil, 5)
		if len(got) != 0 {
			t.Errorf("Match() with empty universe returned %d candidates, want 0", len(got))
		}
	})

	t.Run("Lexical tie break", func(t *testing.T) {
		got := Match("abc", []string{"abce", "abcd"}, 2)
		if len(got) != 2 {
			t.Fatalf("Match() returned %d candidates, want 2", len(got))
		}
		if got[0].Name != "abcd" || got[1].Name != "abce" {
			t.Errorf("Match() tie order = [%s, %s], want [abcd, abce]", got[0].Name, got[1].Name)
		}
	})
}

func TestBestMatch(t *testing.T) {
	universe := []string{"Keytruda", "Humira", "Simponi Aria", "Stelara"}

	tests := []struct {
		name      string
		query     string
		threshold int
		wantName  string
		wantConf  int
		wantOK    bool
	}{
		{
			name:      "Exact match keeps original casing",
			query:     "keytruda",
			threshold: 70,
			wantName:  "Keytruda",
			wantConf:  100,
			wantOK:    true,
		},
		{
			name:      "Fuzzy match above threshold",
			query:     "Ketruda",
			threshold: 70,
			wantName:  "Keytruda",
			wantConf:  93,
			wantOK:    true,
		},
		{
			name:      "Below threshold",
			query:     "Xyzzy",
			threshold: 70,
			wantOK:    false,
		},
		{
			name:      "Empty query",
			query:     "",
			threshold: 70,
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, conf, ok := BestMatch(tt.query, universe, tt.threshold)
			if ok != tt.wantOK {
				t.Fatalf("BestMatch(%q) ok = %v, want %v", tt.query, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if name != tt.wantName || conf != tt.wantConf {
				t.Errorf("BestMatch(%q) = (%q, %d), want (%q, %d)", tt.query, name, conf, tt.wantName, tt.wantConf)
			}
		})
	}
}

func TestExtractDrugName(t *testing.T) {
	universe := []string{"Keytruda", "Humira", "Simponi Aria", "Stelara"}

	tests := []struct {
		name     string
		query    string
		wantName string
		wantConf int
		wantOK   bool
	}{
		{
			name:     "Exact word in query",
			query:    "Is Keytruda preferred?",
			wantName: "Keytruda",
			wantConf: 100,
			wantOK:   true,
		},
		{
			name:     "Misspelled name",
			query:    "Is Ketruda preferred?",
			wantName: "Keytruda",
			wantConf: 93,
			wantOK:   true,
		},
		{
			name:     "Multi-word name",
			query:    "What are alternatives to Simponi Aria?",
			wantName: "Simponi Aria",
			wantConf: 100,
			wantOK:   true,
		},
		{
			name:   "No drug in query",
			query:  "what is the weather",
			wantOK: false,
		},
		{
			name:   "Empty query",
			query:  "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, conf, ok := ExtractDrugName(tt.query, universe)
			if ok != tt.wantOK {
				t.Fatalf("ExtractDrugName(%q) ok = %v, want %v", tt.query, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if name != tt.wantName || conf != tt.wantConf {
				t.Errorf("ExtractDrugName(%q) = (%q, %d), want (%q, %d)", tt.query, name, conf, tt.wantName, tt.wantConf)
			}
		})
	}
}
