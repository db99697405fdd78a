package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeNameReplacesUnsafeRunes(t *testing.T) {
	cases := map[string]string{
		"report/2024.pdf":   "report_2024.pdf",
		`a\b:c<d>e"f|g?h*i`: "a_b_c_d_e_f_g_h_i",
		"plain name.txt":    "plain name.txt",
		"übersicht.csv":     "übersicht.csv",
		"":                  "",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeNameIdempotent(t *testing.T) {
	inputs := []string{"a/b/c", strings.Repeat("x:y", 80), "normal.txt"}
	for _, in := range inputs {
		once := SanitizeName(in)
		if twice := SanitizeName(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	long := strings.Repeat("ä", 250)
	got := SanitizeName(long)
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Fatalf("got %d runes, want 100", n)
	}
}

func TestSanitizeNameOutputCharset(t *testing.T) {
	got := SanitizeName(`x/\:y<>"z|?*`)
	for _, r := range `/\:<>"|?*` {
		if strings.ContainsRune(got, r) {
			t.Fatalf("unsafe rune %q survived in %q", r, got)
		}
	}
}
