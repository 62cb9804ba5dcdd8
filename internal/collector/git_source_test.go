package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/reqsite/internal/config"
)

// setupExportRepo initializes a local git repository holding export files and
// returns its path. Used in place of a remote exports repository.
func setupExportRepo(t *testing.T) (string, *git.Worktree) {
	t.Helper()

	repoDir := t.TempDir()
	repo, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)

	w, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, filepath.Join(repoDir, "hierarchy.yaml"), "modules: []\n")
	writeFile(t, filepath.Join(repoDir, "sys", "requirements.csv"), "ExternalID\n")
	_, err = w.Add(".")
	require.NoError(t, err)
	_, err = w.Commit("initial exports", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return repoDir, w
}

func TestCollect_GitSourceClonesAndStages(t *testing.T) {
	repoDir, _ := setupExportRepo(t)
	staging := t.TempDir()
	checkouts := t.TempDir()

	c := New(config.SourceConfig{Git: &config.GitSource{URL: repoDir}}, staging, checkouts)
	bundle, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, bundle.Files)
	require.FileExists(t, filepath.Join(staging, "hierarchy.yaml"))
	require.DirExists(t, filepath.Join(checkouts, "exports", ".git"))
}

func TestCollect_GitSourceReusesCheckout(t *testing.T) {
	repoDir, _ := setupExportRepo(t)
	staging := t.TempDir()
	checkouts := t.TempDir()

	cfg := config.SourceConfig{Git: &config.GitSource{URL: repoDir}}
	c := New(cfg, staging, checkouts)
	_, err := c.Collect(context.Background())
	require.NoError(t, err)

	// Second collect pulls instead of re-cloning; already-up-to-date is fine.
	marker := filepath.Join(checkouts, "exports", "marker")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))
	_, err = c.Collect(context.Background())
	require.NoError(t, err)
	require.FileExists(t, marker)
}

func TestCollect_GitSourceBadURLReturnsError(t *testing.T) {
	c := New(config.SourceConfig{Git: &config.GitSource{URL: filepath.Join(t.TempDir(), "no-such-repo")}}, t.TempDir(), t.TempDir())
	_, err := c.Collect(context.Background())
	require.Error(t, err)
}
