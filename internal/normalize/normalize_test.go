package normalize

import "testing"

func TestEmail(t *testing.T) {
	in := "  John.DOE@Example.COM  "
	want := "john.doe@example.com"
	got := Email(in)
	if got != want {
		t.Fatalf("Normalize.Email(%q) = %q, want %q", in, got, want)
	}
}

func TestUserIDKeepsCase(t *testing.T) {
	if got := UserID("  65aB01 "); got != "65aB01" {
		t.Fatalf("UserID = %q", got)
	}
}

func TestText(t *testing.T) {
	if got := Text(" \t\n "); got != "" {
		t.Fatalf("whitespace text should normalize to empty, got %q", got)
	}
	if got := Text("  hello "); got != "hello" {
		t.Fatalf("Text = %q", got)
	}
}

func TestSkills(t *testing.T) {
	got := Skills(" Go, guitar,, go ,Cooking ")
	want := []string{"Go", "guitar", "Cooking"}
	if len(got) != len(want) {
		t.Fatalf("Skills = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Skills[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if Skills("") != nil {
		t.Fatalf("empty list should be nil")
	}
}
