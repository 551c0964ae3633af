package netlifycms

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/johntipper/blog/markdown"
	"github.com/johntipper/blog/plugins/novela"
)

// Publisher writes editor entries into the content tree and, with the git
// backend, commits each change.
type Publisher struct {
	postsDir string
	backend  Backend
	author   object.Signature
	now      func() time.Time
}

// NewPublisher creates a publisher writing into postsDir.
func NewPublisher(postsDir string, opts Options) *Publisher {
	return &Publisher{
		postsDir: postsDir,
		backend:  opts.Backend,
		author:   object.Signature{Name: opts.GitAuthorName, Email: opts.GitAuthorEmail},
		now:      time.Now,
	}
}

// File returns the path an entry is published to.
func (p *Publisher) File(slug string) string {
	return filepath.Join(p.postsDir, slug+".md")
}

// Render encodes e as a Markdown document with YAML frontmatter.
func Render(e Entry) ([]byte, error) {
	fm := novela.Frontmatter{
		Title:   e.Title,
		Author:  e.Author,
		Date:    e.Date,
		Slug:    e.Slug,
		Excerpt: e.Excerpt,
		Tags:    e.Tags,
	}
	body := strings.ReplaceAll(e.Body, "\r\n", "\n")
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return markdown.Join(fm, []byte("\n"+body))
}

// Publish writes e to the content tree.
func (p *Publisher) Publish(e Entry) error {
	data, err := Render(e)
	if err != nil {
		return fmt.Errorf("render %s: %w", e.Slug, err)
	}
	file := p.File(e.Slug)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return err
	}
	return p.commit(file, false, fmt.Sprintf("Publish %q", e.Title))
}

// Unpublish removes the published file of slug. A missing file is not an
// error and reports false.
func (p *Publisher) Unpublish(slug string) (bool, error) {
	file := p.File(slug)
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(file); err != nil {
		return false, err
	}
	return true, p.commit(file, true, fmt.Sprintf("Unpublish %s", slug))
}

// Read returns the published file of slug, or nil when it does not exist.
func (p *Publisher) Read(slug string) ([]byte, error) {
	data, err := os.ReadFile(p.File(slug))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Restore puts the published file of slug back to prev, as returned by Read
// before a change, and records the revert like any other edit.
func (p *Publisher) Restore(slug string, prev []byte) error {
	file := p.File(slug)
	message := fmt.Sprintf("Revert %s", slug)
	if prev == nil {
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return p.commit(file, true, message)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(file, prev, 0o644); err != nil {
		return err
	}
	return p.commit(file, false, message)
}

func (p *Publisher) commit(file string, removed bool, message string) error {
	if p.backend != BackendGit {
		return nil
	}
	repo, err := git.PlainOpenWithOptions(filepath.Dir(file), &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	root, err := filepath.EvalSymlinks(w.Filesystem.Root())
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)

	if removed {
		_, err = w.Remove(rel)
		if errors.Is(err, index.ErrEntryNotFound) {
			return nil
		}
	} else {
		_, err = w.Add(rel)
	}
	if err != nil {
		return fmt.Errorf("stage %s: %w", rel, err)
	}

	sig := p.author
	sig.When = p.now()
	_, err = w.Commit(message, &git.CommitOptions{Author: &sig})
	if err != nil && !errors.Is(err, git.ErrEmptyCommit) {
		return fmt.Errorf("commit %s: %w", rel, err)
	}
	return nil
}
