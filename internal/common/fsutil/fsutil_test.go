package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	if got, _ := ExpandHome("~"); got != home {
		t.Fatalf("~ -> %q, want %q", got, home)
	}
	if got, _ := ExpandHome("~/models"); got != filepath.Join(home, "models") {
		t.Fatalf("~/models -> %q", got)
	}
	if got, _ := ExpandHome("/abs"); got != "/abs" {
		t.Fatalf("/abs -> %q", got)
	}
}

func TestLocalPath(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		in   string
		ok   bool
		want string
	}{
		{dir, true, dir},
		{"file://" + filepath.ToSlash(dir), true, dir},
		{"mlflow-artifacts:/1/abc/artifacts/model", false, ""},
		{"s3://bucket/model", false, ""},
		{"http://host/model", false, ""},
		{"", false, ""},
	}
	for _, c := range cases {
		got, ok, err := LocalPath(c.in)
		if err != nil {
			t.Fatalf("%q: %v", c.in, err)
		}
		if ok != c.ok || (c.ok && got != c.want) {
			t.Fatalf("LocalPath(%q) = %q,%v want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "f")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !IsDir(dir) || IsDir(f) || IsDir(filepath.Join(dir, "nope")) {
		t.Fatal("IsDir mismatch")
	}
}
