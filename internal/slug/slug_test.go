package slug

import (
	"strings"
	"testing"
)

func TestFromPath_DropsExtensionAndKeepsHierarchy(t *testing.T) {
	got := FromPath("Projects/My Note.md")
	if strings.Contains(got, ".md") {
		t.Errorf("slug %q still has extension", got)
	}
	if strings.Count(got, "/") != 1 {
		t.Errorf("slug %q lost its directory", got)
	}
	if strings.ContainsAny(got, " ?#&%") {
		t.Errorf("slug %q is not URL safe", got)
	}
}

func TestFromPath_Deterministic(t *testing.T) {
	a := FromPath("a/Q&A #1?.md")
	b := FromPath("a/Q&A #1?.md")
	if a != b {
		t.Errorf("slug not deterministic: %q vs %q", a, b)
	}
	if strings.ContainsAny(a, "?#&") {
		t.Errorf("slug %q kept reserved characters", a)
	}
}

func TestFromPath_TrimsSlashes(t *testing.T) {
	if got := FromPath("/x/y.md/"); strings.HasPrefix(got, "/") || strings.HasSuffix(got, "/") {
		t.Errorf("slug = %q", got)
	}
}
