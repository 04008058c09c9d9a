package textutil

import "testing"

func TestNormalizeTextCollapsesWhitespace(t *testing.T) {
	in := "  first   line\there \n\n  second\n paragraph  "
	want := "first line here\n\nsecond paragraph"
	if got := NormalizeText(in); got != want {
		t.Fatalf("NormalizeText = %q, want %q", got, want)
	}
}

func TestFingerprintStableAcrossWhitespaceAndCase(t *testing.T) {
	a := Fingerprint("Sermon-01.TXT", "In the  beginning")
	b := Fingerprint("sermon-01.txt", "In the beginning")
	if a != b {
		t.Fatalf("fingerprints differ: %s vs %s", a, b)
	}
	c := Fingerprint("sermon-01.txt", "In the end")
	if a == c {
		t.Fatal("different content must not collide")
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := map[string]string{
		"Grace Church / 2024": "grace_church___2024",
		"":                    "unknown",
		"___":                 "unknown",
		"lectures":            "lectures",
	}
	for in, want := range cases {
		if got := SanitizeToken(in); got != want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName(`a/b:c*d?e"f<g>h|i`); got != "a-b-c-defghi" {
		t.Fatalf("SanitizeFileName = %q", got)
	}
}
