package cleaner

import "testing"

func TestCleanStripsNavigationLines(t *testing.T) {
	raw := "Main Navigation\nReal content line one.\nSign In\nReal content line two."
	res := Clean(raw, "https://example.test/a")

	if res.NavigationCount != 2 {
		t.Fatalf("expected 2 navigation lines dropped, got %d", res.NavigationCount)
	}
	if res.CleanedLines != 2 {
		t.Fatalf("expected 2 lines kept, got %d: %q", res.CleanedLines, res.Cleaned)
	}
}

func TestCleanDropsLinkOnlyLines(t *testing.T) {
	raw := "Intro paragraph.\n- [Read more](https://example.test/more)\nConclusion paragraph."
	res := Clean(raw, "")

	if res.CleanedLines != 2 {
		t.Fatalf("expected link-only line dropped, got lines=%d content=%q", res.CleanedLines, res.Cleaned)
	}
}

func TestCleanCollapsesNewlines(t *testing.T) {
	raw := "one\n\n\n\n\ntwo"
	res := Clean(raw, "")

	if got := res.Cleaned; got == raw {
		t.Fatalf("expected newline collapse to change content")
	}
}

func TestCleanIsCleanFlag(t *testing.T) {
	raw := "Body paragraph one.\nBody paragraph two.\nBody paragraph three."
	res := Clean(raw, "")
	if !res.IsClean {
		t.Fatalf("expected mostly-clean input to be marked clean: %+v", res)
	}

	mostlyNav := ""
	for i := 0; i < 20; i++ {
		mostlyNav += "Sign In\n"
	}
	mostlyNav += "One real line."
	res2 := Clean(mostlyNav, "")
	if res2.IsClean {
		t.Fatalf("expected heavily-navigation input to be marked not clean: %+v", res2)
	}
}
