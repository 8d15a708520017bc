package pathutil

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"media", "/media"},
		{"/media/", "/media"},
		{"/media//books", "/media/books"},
		{"\\media\\books", "/media/books"},
		{"/media/../etc", "/etc"},
		{"/a/./b", "/a/b"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestJoin(t *testing.T) {
	if got := Join("/media/", "books"); got != "/media/books" {
		t.Errorf("Join = %q", got)
	}
	if got := Join("/", "books"); got != "/books" {
		t.Errorf("Join at root = %q", got)
	}
}

func TestParent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/media", "/"},
		{"/media/books", "/media"},
		{"/media/books/", "/media"},
	}
	for _, c := range cases {
		if got := Parent(c.in); got != c.want {
			t.Errorf("Parent(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsDescendant(t *testing.T) {
	cases := []struct {
		ancestor, child string
		want            bool
	}{
		{"/", "/media", true},
		{"/", "/", false},
		{"/media", "/media/books", true},
		{"/media", "/media", false},
		{"/media", "/mediafiles", false},
		{"/media/books", "/media", false},
	}
	for _, c := range cases {
		if got := IsDescendant(c.ancestor, c.child); got != c.want {
			t.Errorf("IsDescendant(%q, %q) = %v, want %v", c.ancestor, c.child, got, c.want)
		}
	}
}

func TestValidateFilename(t *testing.T) {
	for _, name := range []string{"notes.txt", "a..b.txt", "with space.pdf"} {
		if err := ValidateFilename(name); err != nil {
			t.Errorf("ValidateFilename(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"", "..", "a/b", "a\\b", "nul\x00byte"} {
		if err := ValidateFilename(name); err == nil {
			t.Errorf("ValidateFilename(%q) = nil, want error", name)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"notes.txt", "notes.txt"},
		{"../../etc/passwd", "....etcpasswd"},
		{"@@@", "file"},
		{"报告 final.pdf", "final.pdf"},
	}
	for _, c := range cases {
		if got := SanitizeFilename(c.in); got != c.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}
	if got := SanitizeFilename(string(long)); len(got) != 100 {
		t.Errorf("SanitizeFilename long name length = %d, want 100", len(got))
	}
}

func TestScratchName(t *testing.T) {
	got := ScratchName("user|42", 1700000000, "report.pdf")
	want := "user42_1700000000_report.pdf"
	if got != want {
		t.Errorf("ScratchName = %q, want %q", got, want)
	}
}
