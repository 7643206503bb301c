package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, src, "hello")

	if err := store.Upload(ctx, src, "gold/2024-03-01/file.txt"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	exists, err := store.Exists(ctx, "gold/2024-03-01/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("uploaded object not found")
	}

	dest := filepath.Join(t.TempDir(), "out.txt")
	if err := store.Download(ctx, "gold/2024-03-01/file.txt", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}
}

func TestLocalStorageDeleteMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "never/existed"); err != nil {
		t.Errorf("Delete of missing object: %v", err)
	}
}

func TestLocalStorageListObjects(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, src, "abc")
	for _, key := range []string{"gold/a.csv", "gold/b.csv", "silver/c.csv"} {
		if err := store.Upload(ctx, src, key); err != nil {
			t.Fatal(err)
		}
	}

	objs, err := store.ListObjects(ctx, "gold/")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 {
		t.Fatalf("got %d objects, want 2", len(objs))
	}
	if objs[0].Key != "gold/a.csv" || objs[1].Key != "gold/b.csv" {
		t.Errorf("keys = %v, want sorted gold objects", []string{objs[0].Key, objs[1].Key})
	}
	if objs[0].Size != 3 {
		t.Errorf("size = %d, want 3", objs[0].Size)
	}
	if objs[0].ETag == "" {
		t.Error("missing etag")
	}
}

func TestPublisherSkipsExistingObjects(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	tree := t.TempDir()
	writeFile(t, filepath.Join(tree, "2024", "03", "01", "a.sqlite"), "one")
	writeFile(t, filepath.Join(tree, "2024", "03", "01", "b.sqlite"), "two")

	pub := NewPublisher(store, "github-archive", slog.Default())

	res, err := pub.PublishTree(ctx, "bronze", tree)
	if err != nil {
		t.Fatalf("PublishTree: %v", err)
	}
	if res.Uploaded != 2 || res.Skipped != 0 {
		t.Errorf("first publish uploaded=%d skipped=%d, want 2/0", res.Uploaded, res.Skipped)
	}

	exists, err := store.Exists(ctx, "github-archive/bronze/2024/03/01/a.sqlite")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("published object missing from store")
	}

	res, err = pub.PublishTree(ctx, "bronze", tree)
	if err != nil {
		t.Fatalf("second PublishTree: %v", err)
	}
	if res.Uploaded != 0 || res.Skipped != 2 {
		t.Errorf("second publish uploaded=%d skipped=%d, want 0/2", res.Uploaded, res.Skipped)
	}
}

func TestPublisherMissingTree(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	pub := NewPublisher(store, "", slog.Default())

	res, err := pub.PublishTree(ctx, "gold", filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("PublishTree on missing dir: %v", err)
	}
	if res.Uploaded != 0 {
		t.Errorf("uploaded = %d, want 0", res.Uploaded)
	}
}
