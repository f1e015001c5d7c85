package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/domain"
)

const artifactFetchers = 4

// ArtifactLoader turns program entries into descriptors, downloading remote
// artifacts into Dir and checking configured digests.
type ArtifactLoader struct {
	Dir    string
	Client *http.Client
	Logger primary.Logger
}

// Load resolves every program concurrently. Order follows programs.
func (l *ArtifactLoader) Load(ctx context.Context, programs []ProgramConfig) ([]domain.ProgramDescriptor, error) {
	out := make([]domain.ProgramDescriptor, len(programs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(artifactFetchers)
	for i, p := range programs {
		i, p := i, p
		g.Go(func() error {
			desc, err := l.resolve(ctx, p)
			if err != nil {
				return fmt.Errorf("program %s: %w", p.ProgramID, err)
			}
			out[i] = desc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *ArtifactLoader) resolve(ctx context.Context, p ProgramConfig) (domain.ProgramDescriptor, error) {
	kind, err := domain.ParseBackendKind(p.Backend)
	if err != nil {
		return domain.ProgramDescriptor{}, err
	}
	desc := domain.ProgramDescriptor{
		ID:       p.ProgramID,
		Backend:  kind,
		Engine:   p.Engine,
		Artifact: domain.Artifact{Path: p.Artifact, URL: p.ArtifactURL},
	}

	var want domain.Digest
	if p.ArtifactDigest != "" {
		if want, err = domain.ParseDigest(p.ArtifactDigest); err != nil {
			return desc, err
		}
	}

	switch {
	case p.ArtifactURL != "":
		desc.Artifact.Path, desc.Artifact.Digest, err = l.download(ctx, p.ProgramID, p.ArtifactURL)
	case p.Artifact != "":
		desc.Artifact.Digest, err = digestFile(p.Artifact)
	default:
		desc.Artifact.Digest = want
		return desc, nil
	}
	if err != nil {
		return desc, err
	}

	if !want.IsZero() && want != desc.Artifact.Digest {
		if p.ArtifactURL != "" {
			_ = os.Remove(desc.Artifact.Path)
		}
		return desc, fmt.Errorf("artifact digest mismatch: want %s, got %s", want, desc.Artifact.Digest)
	}
	l.Logger.Info("Artifact loaded",
		"programId", p.ProgramID,
		"path", desc.Artifact.Path,
		"digest", desc.Artifact.Digest.String())
	return desc, nil
}

func (l *ArtifactLoader) download(ctx context.Context, programID, url string) (string, domain.Digest, error) {
	var digest domain.Digest

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", digest, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", digest, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", digest, fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", digest, err
	}
	name := filepath.Join(l.Dir, filepath.Base(programID)+"-"+path.Base(req.URL.Path))
	f, err := os.Create(name)
	if err != nil {
		return "", digest, err
	}
	defer f.Close()

	h, _ := blake2b.New256(nil)
	if _, err := io.Copy(io.MultiWriter(f, h), resp.Body); err != nil {
		_ = os.Remove(name)
		return "", digest, fmt.Errorf("failed to download %s: %w", url, err)
	}
	if err := f.Sync(); err != nil {
		_ = os.Remove(name)
		return "", digest, err
	}
	copy(digest[:], h.Sum(nil))
	return name, digest, nil
}

func digestFile(name string) (domain.Digest, error) {
	var digest domain.Digest
	f, err := os.Open(name)
	if err != nil {
		return digest, fmt.Errorf("artifact: %w", err)
	}
	defer f.Close()

	h, _ := blake2b.New256(nil)
	if _, err := io.Copy(h, f); err != nil {
		return digest, err
	}
	copy(digest[:], h.Sum(nil))
	return digest, nil
}
