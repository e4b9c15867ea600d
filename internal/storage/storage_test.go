package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"))
	require.NoError(t, err)
	return s
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"episode 1.srt":           "episode 1.srt",
		"../../etc/passwd":        "passwd",
		`C:\Users\me\guion.xlsx`:  "guion.xlsx",
		"dialogue;rm -rf *.xlsx":  "dialogue_rm -rf _.xlsx",
		"..":                      "file",
		"":                        "file",
		"Capítulo – final.docx":   "Capítulo _ final.docx",
		".hidden":                 "hidden",
	}
	for in, want := range tests {
		require.Equal(t, want, SanitizeName(in), "input %q", in)
	}

	long := strings.Repeat("a", 300) + ".srt"
	got := SanitizeName(long)
	require.Len(t, []rune(got), maxNameRunes)
	require.True(t, strings.HasSuffix(got, ".srt"))
}

func TestSaveUploadIsUnique(t *testing.T) {
	s := newStore(t)

	p1, err := s.SaveUpload("movie.srt", strings.NewReader("one"))
	require.NoError(t, err)
	p2, err := s.SaveUpload("movie.srt", strings.NewReader("two"))
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)
	require.Equal(t, s.UploadDir, filepath.Dir(p1))
	require.Equal(t, "movie.srt", DisplayName(p1))

	b, err := os.ReadFile(p2)
	require.NoError(t, err)
	require.Equal(t, "two", string(b))
}

func TestResolve(t *testing.T) {
	s := newStore(t)
	out := s.OutputPath("clean.srt")
	require.NoError(t, os.WriteFile(out, []byte("x"), 0o600))

	got, err := s.Resolve(filepath.Base(out))
	require.NoError(t, err)
	require.Equal(t, out, got)

	_, err = s.Resolve("../uploads/" + filepath.Base(out))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Resolve("missing.srt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupRemovesOnlyStaleFiles(t *testing.T) {
	s := newStore(t)
	stale, err := s.SaveUpload("old.xlsx", strings.NewReader("old"))
	require.NoError(t, err)
	fresh := s.OutputPath("new.srt")
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0o600))

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	n, err := s.Cleanup(time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoFileExists(t, stale)
	require.FileExists(t, fresh)
}

func TestDisplayNameWithoutPrefix(t *testing.T) {
	require.Equal(t, "plain.srt", DisplayName("/tmp/plain.srt"))
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	s := newStore(t)
	stale, err := s.SaveUpload("old.srt", strings.NewReader("old"))
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond, time.Minute)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
