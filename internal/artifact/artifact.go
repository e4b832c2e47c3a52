// Package artifact bootstraps a local database from the newest GitHub Actions
// artifact that carries one.
package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/zulandar/jobvalidator/internal/config"
	"github.com/zulandar/jobvalidator/internal/logging"
)

// ErrNotFound is returned when the repository has no live artifact with the
// configured name, or the artifact holds no database file.
var ErrNotFound = errors.New("artifact: not found")

// maxArchiveBytes bounds the downloaded zip.
const maxArchiveBytes = 512 << 20

// Info describes the artifact that was downloaded.
type Info struct {
	ID        int64
	Name      string
	SizeBytes int64
	CreatedAt time.Time
	File      string
	Written   int64
}

// Fetcher downloads database artifacts from one repository.
type Fetcher struct {
	gh          *github.Client
	http        *http.Client
	owner, repo string
	name        string
	log         logrus.FieldLogger
}

// New returns a Fetcher authenticated with cfg.Token.
func New(ctx context.Context, cfg config.ArtifactConfig, logger logrus.FieldLogger) (*Fetcher, error) {
	if cfg.Token == "" {
		return nil, errors.New("artifact: github token is required (set GITHUB_TOKEN)")
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("artifact: owner and repo are required")
	}
	tc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	return newFetcher(github.NewClient(tc), &http.Client{Timeout: 5 * time.Minute}, cfg, logger), nil
}

func newFetcher(gh *github.Client, hc *http.Client, cfg config.ArtifactConfig, logger logrus.FieldLogger) *Fetcher {
	name := cfg.Name
	if name == "" {
		name = "jobs-database"
	}
	return &Fetcher{
		gh:    gh,
		http:  hc,
		owner: cfg.Owner,
		repo:  cfg.Repo,
		name:  name,
		log:   logging.OrDiscard(logger).WithField("module", "artifact"),
	}
}

// Latest returns the newest unexpired artifact with the configured name.
func (f *Fetcher) Latest(ctx context.Context) (*github.Artifact, error) {
	list, _, err := f.gh.Actions.ListArtifacts(ctx, f.owner, f.repo, &github.ListArtifactsOptions{
		Name:        github.Ptr(f.name),
		ListOptions: github.ListOptions{PerPage: 30},
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: list %s/%s: %w", f.owner, f.repo, err)
	}
	var latest *github.Artifact
	for _, a := range list.Artifacts {
		if a.GetExpired() || a.GetName() != f.name {
			continue
		}
		if latest == nil || a.GetCreatedAt().After(latest.GetCreatedAt().Time) {
			latest = a
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no %q artifact in %s/%s", ErrNotFound, f.name, f.owner, f.repo)
	}
	return latest, nil
}

// Download fetches the newest artifact and writes the first .db file in it
// to target, replacing any existing file.
func (f *Fetcher) Download(ctx context.Context, target string) (Info, error) {
	a, err := f.Latest(ctx)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		ID:        a.GetID(),
		Name:      a.GetName(),
		SizeBytes: a.GetSizeInBytes(),
		CreatedAt: a.GetCreatedAt().Time,
	}
	f.log.WithFields(logrus.Fields{"id": info.ID, "bytes": info.SizeBytes, "created_at": info.CreatedAt}).Info("found artifact")

	u, _, err := f.gh.Actions.DownloadArtifact(ctx, f.owner, f.repo, info.ID, 1)
	if err != nil {
		return info, fmt.Errorf("artifact: resolve download for %d: %w", info.ID, err)
	}
	archive, err := f.fetch(ctx, u.String())
	if err != nil {
		return info, err
	}
	info.File, info.Written, err = extractDB(archive, target)
	if err != nil {
		return info, err
	}
	f.log.WithFields(logrus.Fields{"file": info.File, "bytes": info.Written, "target": target}).Info("database restored from artifact")
	return info, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("artifact: build request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artifact: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artifact: download: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("artifact: download: %w", err)
	}
	if len(data) > maxArchiveBytes {
		return nil, fmt.Errorf("artifact: archive exceeds %d bytes", maxArchiveBytes)
	}
	return data, nil
}

// extractDB writes the first *.db entry of archive to target through a
// temporary file in the same directory.
func extractDB(archive []byte, target string) (string, int64, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", 0, fmt.Errorf("artifact: open zip: %w", err)
	}
	var entry *zip.File
	for _, zf := range zr.File {
		if !zf.FileInfo().IsDir() && strings.HasSuffix(zf.Name, ".db") {
			entry = zf
			break
		}
	}
	if entry == nil {
		return "", 0, fmt.Errorf("%w: archive has no .db file", ErrNotFound)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", 0, fmt.Errorf("artifact: create directory: %w", err)
	}
	src, err := entry.Open()
	if err != nil {
		return "", 0, fmt.Errorf("artifact: open %s: %w", entry.Name, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".artifact-*.db")
	if err != nil {
		return "", 0, fmt.Errorf("artifact: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, io.LimitReader(src, maxArchiveBytes))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("artifact: write %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", 0, fmt.Errorf("artifact: install %s: %w", target, err)
	}
	return entry.Name, n, nil
}

// Downloader is satisfied by *Fetcher.
type Downloader interface {
	Download(ctx context.Context, target string) (Info, error)
}

// EnsureDatabase downloads the database to path unless a non-empty file is
// already there. It reports whether a download happened.
func EnsureDatabase(ctx context.Context, d Downloader, path string) (bool, error) {
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		return false, nil
	}
	if _, err := d.Download(ctx, path); err != nil {
		return false, err
	}
	return true, nil
}
