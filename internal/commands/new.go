package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/mover/internal/config"
	"github.com/roach88/mover/internal/genesis"
	"github.com/roach88/mover/internal/runner"
)

// NewProject creates the configuration and directory layout and, unless
// NoGenesis is set, a genesis snapshot with the standard library and a
// funded developer account signed by the new developer key.
func NewProject(ctx context.Context, c New, env Env) (*NewResult, error) {
	logger := env.logger()

	cfg, err := config.Create(c.Name, c.Home)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Path()); err == nil {
		return nil, &config.Error{Path: cfg.Path(), Err: errors.New("project already exists")}
	}
	if err := cfg.Initialize(); err != nil {
		return nil, err
	}
	logger.Info("created project", "name", cfg.ProjectName, "home", cfg.Home)

	res := &NewResult{Name: cfg.ProjectName, Home: cfg.Home, Address: cfg.Address().String()}
	if c.NoGenesis {
		return res, nil
	}

	r, err := runner.New(ctx, cfg, env.runnerOptions()...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	mods := make([]genesis.PublishedModule, 0, len(r.Stdlib()))
	for _, m := range r.Stdlib() {
		mods = append(mods, genesis.PublishedModule{ID: m.ID(), Bytecode: m.Bytecode()})
	}
	ws, err := genesis.Baseline(mods, cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	kp, err := cfg.KeyPair()
	if err != nil {
		return nil, err
	}
	envelope, err := genesis.Sign(kp, cfg.State.SequenceNumber, ws)
	if err != nil {
		return nil, err
	}
	if err := genesis.Save(cfg.GenesisPath(), envelope); err != nil {
		return nil, err
	}
	logger.Info("wrote genesis", "path", cfg.GenesisPath(), "writes", len(ws))

	res.Genesis = cfg.GenesisPath()
	return res, nil
}
