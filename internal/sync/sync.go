// Package sync imports vocabulary from local directories and git
// repositories and keeps the store in line with them.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conorfennell/vocabreview/internal/domain"
	"github.com/conorfennell/vocabreview/internal/gitsource"
	"github.com/conorfennell/vocabreview/internal/parser"
	"github.com/conorfennell/vocabreview/internal/storage"
	"github.com/conorfennell/vocabreview/internal/vocab"
)

// ErrInvalidSource is returned for paths that are neither a directory inside
// the local root nor a recognizable git URL.
var ErrInvalidSource = errors.New("sync: invalid source")

// Report summarizes one source reconciliation.
type Report struct {
	SourceID int64 `json:"source_id"`
	Parsed   int   `json:"parsed"`
	Created  int   `json:"created"`
	Orphaned int   `json:"orphaned"`
	Errors   int   `json:"errors"`
}

// Syncer reconciles sources with the store. Concurrent RunSync calls share
// a single pass.
type Syncer struct {
	db        *storage.DB
	logger    *slog.Logger
	reposDir  string
	localRoot string
	lifetime  context.Context
	now       func() time.Time
	flight    singleflight.Group
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLocalRoot allows local sources below root. Without it only git
// sources can be added.
func WithLocalRoot(root string) Option {
	return func(s *Syncer) { s.localRoot = root }
}

// WithLifetime sets the context sync passes run under. A pass outlives the
// caller that started it, since other callers may be waiting on it.
func WithLifetime(ctx context.Context) Option {
	return func(s *Syncer) { s.lifetime = ctx }
}

// New creates a Syncer that checks out git sources below reposDir.
func New(db *storage.DB, logger *slog.Logger, reposDir string, opts ...Option) *Syncer {
	s := &Syncer{
		db:       db,
		logger:   logger,
		reposDir: reposDir,
		lifetime: context.Background(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SourceType classifies a path as a git URL or a local directory.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return domain.SourceGit
	}
	return domain.SourceLocal
}

// AddSource registers a source for the user. Adding a known path returns the
// existing source.
func (s *Syncer) AddSource(ctx context.Context, userID int64, path string) (domain.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.Source{}, fmt.Errorf("%w: empty path", ErrInvalidSource)
	}
	sourceType := SourceType(path)
	switch sourceType {
	case domain.SourceLocal:
		dir, err := s.resolveLocal(path)
		if err != nil {
			return domain.Source{}, fmt.Errorf("%w: %w", ErrInvalidSource, err)
		}
		path = dir
	case domain.SourceGit:
		if _, err := gitURLToLocalPath(s.reposDir, path); err != nil {
			return domain.Source{}, fmt.Errorf("%w: %w", ErrInvalidSource, err)
		}
	}

	existing, err := s.db.FindSourceByPath(ctx, userID, path)
	if err != nil {
		return domain.Source{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	id, err := s.db.InsertSource(ctx, userID, path, sourceType)
	if err != nil {
		return domain.Source{}, err
	}
	s.logger.Info("Source added", "user_id", userID, "source_id", id, "type", sourceType, "path", path)
	return domain.Source{ID: id, UserID: userID, Path: path, Type: sourceType}, nil
}

// resolveLocal maps path to a directory inside the local root. Relative
// paths are taken relative to the root; symlinks are followed before the
// containment check.
func (s *Syncer) resolveLocal(path string) (string, error) {
	if s.localRoot == "" {
		return "", errors.New("local sources are disabled")
	}
	root, err := filepath.Abs(s.localRoot)
	if err != nil {
		return "", err
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return "", fmt.Errorf("local root: %w", err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	dir, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, root)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return dir, nil
}

// RunSync iterates over all sources and reconciles them. A failing source is
// logged and skipped; the returned error only reports that at least one did.
// If ctx ends first RunSync returns early, but the pass itself keeps running
// under the Syncer's lifetime.
func (s *Syncer) RunSync(ctx context.Context) ([]Report, error) {
	ch := s.flight.DoChan("all", func() (any, error) {
		return s.runSync(s.lifetime)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		reports, _ := res.Val.([]Report)
		return reports, res.Err
	}
}

func (s *Syncer) runSync(ctx context.Context) ([]Report, error) {
	s.logger.Info("Starting sync process for all sources")
	sources, err := s.db.GetAllSources(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		s.logger.Info("No sources configured")
		return nil, nil
	}

	var (
		reports []Report
		errs    []error
	)
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.SyncSource(ctx, source)
		if err != nil {
			s.logger.Error("Failed to sync source", "source_id", source.ID, "path", source.Path, "error", err)
			errs = append(errs, fmt.Errorf("source %d: %w", source.ID, err))
			continue
		}
		reports = append(reports, report)
	}
	s.logger.Info("Sync process complete", "sources", len(sources), "failed", len(errs))
	return reports, errors.Join(errs...)
}

// SyncSource brings one source up to date: git sources are fetched first,
// then every markdown file is parsed and the store reconciled.
func (s *Syncer) SyncSource(ctx context.Context, source domain.Source) (Report, error) {
	s.logger.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

	dir := source.Path
	if source.Type == domain.SourceGit {
		localRepoPath, err := gitURLToLocalPath(s.reposDir, source.Path)
		if err != nil {
			return Report{}, err
		}
		if err := os.MkdirAll(filepath.Dir(localRepoPath), 0o755); err != nil {
			return Report{}, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(ctx, s.logger, source.Path, localRepoPath); err != nil {
			return Report{}, err
		}
		dir = localRepoPath
	}
	return s.reconcile(ctx, source, dir)
}

func (s *Syncer) reconcile(ctx context.Context, source domain.Source, dir string) (Report, error) {
	report := Report{SourceID: source.ID}
	var entries []domain.Entry

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileEntries, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Errors++
			s.logger.Warn("Failed to parse file", "path", path, "error", parseErr)
			return nil
		}
		entries = append(entries, fileEntries...)
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}
	report.Parsed = len(entries)

	now := s.now()
	err := s.db.WithTx(ctx, func(tx *storage.Queries) error {
		found := make(map[string]bool, len(entries))
		for _, e := range entries {
			e.Hash = vocab.Hash(e)
			found[e.Hash] = true
			sourceID := source.ID
			v := domain.Vocabulary{
				UserID:      source.UserID,
				Word:        e.Word,
				Translation: e.Translation,
				Context:     e.Context,
				Hash:        e.Hash,
				SourceID:    &sourceID,
			}
			created, err := tx.SaveVocabulary(ctx, &v, now)
			if err != nil {
				return err
			}
			if created {
				report.Created++
				s.logger.Debug("New vocabulary found", "hash", v.Hash, "word", v.Word)
			}
		}

		existing, err := tx.GetVocabularyBySourceID(ctx, source.ID)
		if err != nil {
			return err
		}
		for _, v := range existing {
			if found[v.Hash] {
				continue
			}
			deleted, err := tx.ReleaseVocabulary(ctx, v.ID, source.ID)
			if err != nil {
				return err
			}
			if !deleted {
				s.logger.Info("Vocabulary dropped by source, still kept", "hash", v.Hash, "word", v.Word)
				continue
			}
			s.logger.Info("Orphaned vocabulary, deleting", "hash", v.Hash, "word", v.Word)
			report.Orphaned++
		}
		return tx.UpdateSourceLastScanned(ctx, source.ID, now)
	})
	if err != nil {
		return report, err
	}

	s.logger.Info("Reconciliation complete",
		"path", dir,
		"parsed", report.Parsed,
		"created", report.Created,
		"orphaned_deleted", report.Orphaned,
		"errors", report.Errors,
	)
	return report, nil
}

// gitURLToLocalPath maps an https or scp-style git URL to a directory below
// baseDir, e.g. git@github.com:me/words.git -> baseDir/github.com/me/words.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	var host, repoPath string
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if !strings.Contains(repoURL, "@") {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		parts := strings.Split(repoURL, ":")
		if len(parts) != 2 {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		hostAndUser := strings.Split(parts[0], "@")
		if len(hostAndUser) != 2 {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		host, repoPath = hostAndUser[1], parts[1]
	} else {
		host, repoPath = parsedURL.Host, parsedURL.Path
	}

	repoPath = strings.TrimSuffix(strings.Trim(repoPath, "/"), ".git")
	if host == "" || repoPath == "" {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	local := filepath.Join(baseDir, host, repoPath)
	rel, err := filepath.Rel(baseDir, local)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("git URL %s escapes %s", repoURL, baseDir)
	}
	return local, nil
}
