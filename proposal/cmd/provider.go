package main

import (
	"fmt"
	"os"

	"github.com/byte4ever/usulan/config"
	"github.com/byte4ever/usulan/host"
	"github.com/byte4ever/usulan/host/bitbucket"
	"github.com/byte4ever/usulan/host/github"
	"github.com/byte4ever/usulan/host/gitlab"
	"github.com/byte4ever/usulan/host/memory"
)

// newHost creates the host.Host named by cfg.Provider.
// Pattern: Factory -- selects platform implementation at
// runtime.
func newHost(cfg *config.Config) (host.Host, error) {
	const errCtx = "creating host"

	switch cfg.Provider {
	case config.ProviderGitHub:
		p, err := github.NewProvider(github.Config{
			RepoOwner:      cfg.GitHub.Owner,
			Repo:           cfg.GitHub.Repo,
			AccessToken:    cfg.GitHub.Token,
			EnterpriseHost: cfg.GitHub.EnterpriseHost,
			APIURL:         cfg.GitHub.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case config.ProviderGitLab:
		p, err := gitlab.NewProvider(gitlab.Config{
			Host:        cfg.GitLab.Host,
			Repo:        cfg.GitLab.Repo,
			AccessToken: cfg.GitLab.Token,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case config.ProviderBitbucket:
		p, err := bitbucket.NewProvider(bitbucket.Config{
			BaseURL:  cfg.Bitbucket.BaseURL,
			Project:  cfg.Bitbucket.Project,
			Repo:     cfg.Bitbucket.Repo,
			User:     cfg.Bitbucket.User,
			Password: cfg.Bitbucket.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case config.ProviderMemory:
		seed := []byte("[]\n")

		if cfg.Memory.Seed != "" {
			raw, err := os.ReadFile(cfg.Memory.Seed)
			if err != nil {
				return nil, fmt.Errorf(
					"%s: read seed: %w", errCtx, err,
				)
			}

			seed = raw
		}

		return memory.New(
			cfg.Memory.BaseURL,
			cfg.BaseBranch,
			map[string][]byte{cfg.DatasetPath: seed},
		), nil

	default:
		return nil, fmt.Errorf(
			"%s: unknown provider %q", errCtx, cfg.Provider,
		)
	}
}
