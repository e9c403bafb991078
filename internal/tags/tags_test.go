package tags_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"memalerts/internal/logging"
	"memalerts/internal/tags"
	"memalerts/internal/testsupport"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  #Funny  ": "funny",
		"CAT_VIDEO":  "cat video",
		"Ｃａｔ":        "cat",
		"Straße":     "strasse",
		"":           "",
	}
	for in, want := range cases {
		if got := tags.Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalizeMapsAliasesAndReportsUnmapped(t *testing.T) {
	vocab, err := tags.NewVocabulary(map[string][]string{
		"cats":  {"cat", "kitty"},
		"funny": {"lol", "humor"},
	})
	if err != nil {
		t.Fatalf("NewVocabulary: %v", err)
	}
	got := vocab.Canonicalize([]string{"Kitty", "LOL", "cat", "skibidi", "skibidi", "funny"}, 0)
	if !reflect.DeepEqual(got.Tags, []string{"cats", "funny"}) {
		t.Fatalf("unexpected tags %v", got.Tags)
	}
	if !reflect.DeepEqual(got.Unmapped, []string{"skibidi"}) {
		t.Fatalf("unexpected unmapped %v", got.Unmapped)
	}
}

func TestCanonicalizeCapsAndPassesThroughWithoutVocabulary(t *testing.T) {
	vocab, err := tags.LoadVocabulary(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadVocabulary: %v", err)
	}
	got := vocab.Canonicalize([]string{"B", "a", "b", "c"}, 2)
	if !reflect.DeepEqual(got.Tags, []string{"b", "a"}) || len(got.Unmapped) != 0 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestNewVocabularyRejectsConflictingAliases(t *testing.T) {
	_, err := tags.NewVocabulary(map[string][]string{
		"cats": {"pet"},
		"dogs": {"pet"},
	})
	if err == nil {
		t.Fatal("expected conflict error")
	}
}

func TestCanonicalizerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.yaml")
	testsupport.WriteFile(t, path, []byte("tags:\n  cats: [cat]\n"))

	c, err := tags.NewCanonicalizer(path, 0, logging.NewNop())
	if err != nil {
		t.Fatalf("NewCanonicalizer: %v", err)
	}
	if got := c.Canonicalize([]string{"dog"}); len(got.Unmapped) != 1 {
		t.Fatalf("expected dog unmapped before reload, got %+v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	testsupport.WriteFile(t, path, []byte("tags:\n  cats: [cat]\n  dogs: [dog, puppy]\n"))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.Canonicalize([]string{"puppy"}); len(got.Tags) == 1 && got.Tags[0] == "dogs" {
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch returned %v", err)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("vocabulary was not reloaded")
}
