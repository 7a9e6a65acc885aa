package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func skipIfRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission denial is not enforced for root")
	}
}

func writeTree(t *testing.T, root string) {
	t.Helper()
	dirs := []string{"a", "a/b", "c"}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		"a/one.txt":   "one",
		"a/b/two.txt": "two",
		"c/three.txt": "three",
		".hidden":     "shh",
	}
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanOrderingParentsBeforeChildren(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	var order []string
	for e := range Scan(root, Options{}) {
		if e.Err != nil {
			t.Fatalf("unexpected scan error at %s: %v", e.RelPath, e.Err)
		}
		order = append(order, e.RelPath)
	}

	want := []string{"a", "a/b", "a/b/two.txt", "a/one.txt", "c", "c/three.txt"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("position %d: got %s, want %s (full: %v)", i, order[i], want[i], order)
		}
	}
}

func TestScanIncludeHidden(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	found := false
	for e := range Scan(root, Options{IncludeHidden: true}) {
		if e.RelPath == ".hidden" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected .hidden to be included when IncludeHidden is set")
	}
}

func TestScanIgnoreGlob(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	ig, err := NewGlobs([]string{"*.txt"})
	if err != nil {
		t.Fatal(err)
	}
	for e := range Scan(root, Options{Ignore: ig}) {
		if filepath.Ext(e.RelPath) == ".txt" {
			t.Fatalf("expected %s to be ignored", e.RelPath)
		}
	}
}

func TestScanUnreadableDirectoryEmitsErrorAndContinues(t *testing.T) {
	skipIfRoot(t)
	root := t.TempDir()
	writeTree(t, root)

	blocked := filepath.Join(root, "a", "b")
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(blocked, 0o755)

	var sawErr, sawSibling bool
	for e := range Scan(root, Options{}) {
		if e.RelPath == "a/b" && e.Err != nil {
			sawErr = true
		}
		if e.RelPath == "c/three.txt" {
			sawSibling = true
		}
	}
	if !sawErr {
		t.Error("expected an Error entry for the unreadable directory")
	}
	if !sawSibling {
		t.Error("expected scan to continue into sibling directories after an unreadable one")
	}
}
