package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

// Profile holds the CLI flag for the assistant profile file
type Profile struct {
	path string
}

func (p *Profile) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "profile",
			Usage:       "Path to assistant profile TOML file (built-in defaults if empty)",
			Category:    "Profile",
			Destination: &p.path,
			Sources:     cli.EnvVars("SHIORI_PROFILE"),
		},
	}
}

// Configure loads the assistant profile. Missing fields fall back to the
// built-in defaults.
func (p *Profile) Configure() (*model.Profile, error) {
	if p.path == "" {
		return model.DefaultProfile(), nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read profile file", goerr.V("path", p.path))
	}

	var profile model.Profile
	if err := toml.Unmarshal(data, &profile); err != nil {
		return nil, goerr.Wrap(err, "failed to parse profile TOML", goerr.V("path", p.path))
	}

	if err := profile.Normalize(); err != nil {
		return nil, goerr.Wrap(err, "profile validation failed", goerr.V("path", p.path))
	}

	return &profile, nil
}
