// Package runner owns the per-invocation state of a command: the module
// library, the in-memory data store and the execution adapter.
//
// Module compilation mutates the library (each module becomes a dependency
// for the next). Script compilation never does. Publication and execution
// go through the store, which lives only as long as the Runner.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/compiler"
	"github.com/roach88/mover/internal/config"
	"github.com/roach88/mover/internal/execution"
	"github.com/roach88/mover/internal/genesis"
	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/stdlib"
	"github.com/roach88/mover/internal/store"
	"github.com/roach88/mover/internal/verifier"
	"github.com/roach88/mover/internal/vm"
)

// Artifact extensions written to the target directory.
const (
	BytecodeExt  = ".mv"
	SourceMapExt = ".mvsm"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Compiler turns sources into compiled units.
type Compiler interface {
	ReadHeader(src compiler.Source, sender account.Address) (*compiler.Header, error)
	CompileModule(ctx context.Context, src compiler.Source, sender account.Address, deps []*ir.CompiledModule) (*ir.CompiledModule, *ir.SourceMap, error)
	CompileScript(ctx context.Context, src compiler.Source, sender account.Address, deps []*ir.CompiledModule) (*ir.CompiledScript, *ir.SourceMap, error)
}

// Verifier checks compiled units.
type Verifier interface {
	VerifyModule(m *ir.CompiledModule) (*verifier.VerifiedModule, error)
	VerifyScript(s *ir.CompiledScript) (*verifier.VerifiedScript, error)
	VerifyModuleBytecode(data []byte) (*verifier.VerifiedModule, error)
}

// Runner compiles, publishes and executes for one command invocation.
// It is not safe for concurrent use.
type Runner struct {
	cfg      *config.Config
	compiler Compiler
	verifier Verifier
	library  *Library
	store    *store.Store
	adapter  *execution.Adapter
	logger   *slog.Logger

	vm      *vm.VM
	ids     execution.IDGenerator
	stdlib  []*verifier.VerifiedModule
	genesis ir.WriteSet // ops loaded by ApplyGenesis

	// sequence is the developer's current sequence number: the config's,
	// raised to the loaded snapshot's.
	sequence uint64
}

// Option configures a Runner.
type Option func(*Runner)

// WithCompiler replaces the default compiler.
func WithCompiler(c Compiler) Option {
	return func(r *Runner) {
		r.compiler = c
	}
}

// WithVerifier replaces the default verifier.
func WithVerifier(v Verifier) Option {
	return func(r *Runner) {
		r.verifier = v
	}
}

// WithVM replaces the default VM.
func WithVM(v *vm.VM) Option {
	return func(r *Runner) {
		r.vm = v
	}
}

// WithIDGenerator sets the transaction id source.
func WithIDGenerator(ids execution.IDGenerator) Option {
	return func(r *Runner) {
		r.ids = ids
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner for cfg. The library is seeded from the embedded
// standard library, the project's custom one, or nothing, per the compile
// options, and every seeded module is published to the store.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		compiler: compiler.New(),
		verifier: verifier.New(),
		library:  NewLibrary(),
		logger:   slog.Default(),
		sequence: cfg.State.SequenceNumber,
	}
	for _, opt := range opts {
		opt(r)
	}

	st, err := store.OpenMemory()
	if err != nil {
		return nil, err
	}
	r.store = st

	adapterOpts := []execution.Option{
		execution.WithGasBudget(cfg.Execution.GasBudget),
		execution.WithLogger(r.logger),
	}
	if cfg.Execution.ZeroCost {
		adapterOpts = append(adapterOpts, execution.WithZeroCost())
	}
	if r.vm != nil {
		adapterOpts = append(adapterOpts, execution.WithVM(r.vm))
	}
	if r.ids != nil {
		adapterOpts = append(adapterOpts, execution.WithIDGenerator(r.ids))
	}
	r.adapter = execution.NewAdapter(st, adapterOpts...)

	if err := r.seedStdlib(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runner) seedStdlib(ctx context.Context) error {
	var (
		srcs []compiler.Source
		err  error
	)
	switch {
	case r.cfg.Compile.SkipStdlib:
		r.logger.Debug("skipping standard library")
		return nil
	case r.cfg.Compile.CustomStdlib:
		srcs, err = stdlib.LoadDir(r.cfg.StdlibDir())
	default:
		srcs, err = stdlib.Sources()
	}
	if err != nil {
		return err
	}

	for _, src := range srcs {
		m, _, err := r.compiler.CompileModule(ctx, src, stdlib.Address, r.library.Compiled())
		if err != nil {
			return fmt.Errorf("standard library %s: %w", src.Name, err)
		}
		verified, err := r.verifier.VerifyModule(m)
		if err != nil {
			return fmt.Errorf("standard library %s: %w", src.Name, err)
		}
		if err := r.library.Add(verified); err != nil {
			return fmt.Errorf("standard library %s: %w", src.Name, err)
		}
		if err := r.PublishModule(ctx, verified); err != nil {
			return err
		}
		r.stdlib = append(r.stdlib, verified)
	}
	r.logger.Debug("standard library loaded", "modules", len(r.stdlib))
	return nil
}

// Config returns the project configuration.
func (r *Runner) Config() *config.Config { return r.cfg }

// Library returns the module library.
func (r *Runner) Library() *Library { return r.library }

// Store returns the data store.
func (r *Runner) Store() *store.Store { return r.store }

// Stdlib returns the standard library modules the Runner was seeded with.
func (r *Runner) Stdlib() []*verifier.VerifiedModule {
	return append([]*verifier.VerifiedModule(nil), r.stdlib...)
}

// Close releases the data store.
func (r *Runner) Close() error {
	return r.store.Close()
}

func readSource(path string) (compiler.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return compiler.Source{}, fmt.Errorf("read source: %w", err)
	}
	return compiler.Source{Name: path, Data: data}, nil
}

// ArtifactPath returns the target path for a source file's artifact.
func (r *Runner) ArtifactPath(source, ext string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(r.cfg.TargetDir(), stem+ext)
}

func (r *Runner) writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	r.logger.Debug("wrote artifact", "path", path, "bytes", len(data))
	return nil
}

// CompileModule compiles the module at path against the current library,
// writes its bytecode if configured, verifies it and appends it to the
// library.
func (r *Runner) CompileModule(ctx context.Context, path string) (*verifier.VerifiedModule, error) {
	src, err := readSource(path)
	if err != nil {
		return nil, err
	}
	r.logger.Info("compiling", "module", path)

	m, _, err := r.compiler.CompileModule(ctx, src, r.cfg.Address(), r.library.Compiled())
	if err != nil {
		return nil, err
	}

	if r.cfg.Compile.OutputMoveBytecode {
		data, err := m.Serialize()
		if err != nil {
			return nil, err
		}
		if err := r.writeArtifact(r.ArtifactPath(path, BytecodeExt), data); err != nil {
			return nil, err
		}
	}

	verified, err := r.verifier.VerifyModule(m)
	if err != nil {
		return nil, err
	}
	if err := r.library.Add(verified); err != nil {
		return nil, err
	}
	return verified, nil
}

// CompileScript compiles the script at path against the current library.
// The library is not modified. Source map and bytecode artifacts are
// written independently, per the compile options.
func (r *Runner) CompileScript(ctx context.Context, path string) (*verifier.VerifiedScript, error) {
	src, err := readSource(path)
	if err != nil {
		return nil, err
	}
	r.logger.Info("compiling", "script", path)

	s, sm, err := r.compiler.CompileScript(ctx, src, r.cfg.Address(), r.library.Compiled())
	if err != nil {
		return nil, err
	}

	if r.cfg.Compile.OutputSourceMap {
		data, err := sm.Marshal()
		if err != nil {
			return nil, err
		}
		if err := r.writeArtifact(r.ArtifactPath(path, SourceMapExt), data); err != nil {
			return nil, err
		}
	}
	if r.cfg.Compile.OutputMoveBytecode {
		data, err := s.Serialize()
		if err != nil {
			return nil, err
		}
		if err := r.writeArtifact(r.ArtifactPath(path, BytecodeExt), data); err != nil {
			return nil, err
		}
	}

	return r.verifier.VerifyScript(s)
}

// PublishModule writes m's bytecode to the store at its module path.
func (r *Runner) PublishModule(ctx context.Context, m *verifier.VerifiedModule) error {
	if err := r.store.AddModule(ctx, m.ID(), m.Bytecode()); err != nil {
		return err
	}
	r.logger.Debug("published", "module", m.ID().String(), "hash", m.Hash())
	return nil
}

// Built is a module compiled from a source file.
type Built struct {
	Source string
	Module *verifier.VerifiedModule
}

// BuildModules compiles and publishes every module under the module
// directory in lexical walk order. The first failure aborts. Ordering
// problems are logged as warnings first, since they explain the
// dependency error compilation will then report.
func (r *Runner) BuildModules(ctx context.Context) ([]Built, error) {
	paths, err := stdlib.Glob(r.cfg.ModuleDir())
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	r.warnDependencies(paths)

	built := make([]Built, 0, len(paths))
	for _, path := range paths {
		m, err := r.CompileModule(ctx, path)
		if err != nil {
			return nil, err
		}
		if err := r.PublishModule(ctx, m); err != nil {
			return nil, err
		}
		built = append(built, Built{Source: path, Module: m})
	}
	return built, nil
}

func (r *Runner) warnDependencies(paths []string) {
	units := make([]compiler.UnitHeader, 0, len(paths))
	for _, path := range paths {
		src, err := readSource(path)
		if err != nil {
			continue
		}
		// Unreadable headers are reported by compilation itself.
		h, err := r.compiler.ReadHeader(src, r.cfg.Address())
		if err != nil || h.Kind != ir.KindModule {
			continue
		}
		units = append(units, compiler.UnitHeader{File: path, Header: h})
	}
	for _, w := range compiler.AnalyzeDependencies(units) {
		r.logger.Warn(w.Message, "path", strings.Join(w.Path, " -> "))
	}
}

// ScriptPaths lists the sources under dir in lexical walk order.
func (r *Runner) ScriptPaths(dir string) ([]string, error) {
	paths, err := stdlib.Glob(dir)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return paths, nil
}

// LoadArtifacts adds the module bytecode found in the target directory to
// the library, skipping the file exclude and anything that is not a module.
// Modules already in the library are left alone.
func (r *Runner) LoadArtifacts(ctx context.Context, exclude string) error {
	entries, err := os.ReadDir(r.cfg.TargetDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(r.cfg.TargetDir(), e.Name())
		if e.IsDir() || filepath.Ext(path) != BytecodeExt || path == exclude {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load artifacts: %w", err)
		}
		if kind, err := ir.UnitKind(data); err != nil || kind != ir.KindModule {
			continue
		}
		m, err := r.verifier.VerifyModuleBytecode(data)
		if err != nil {
			return fmt.Errorf("load artifact %s: %w", path, err)
		}
		if _, ok := r.library.Get(m.ID()); ok {
			r.logger.Debug("artifact already in library", "module", m.ID().String(), "path", path)
			continue
		}
		if err := r.library.Add(m); err != nil {
			return err
		}
		r.logger.Debug("loaded artifact", "module", m.ID().String(), "path", path)
	}
	return nil
}

// ApplyGenesis applies the genesis snapshot to the store when the storage
// policy asks for it. A missing file is logged and skipped. The snapshot
// must be signed by the project's developer identity. Modules already
// published in the store are kept over the snapshot's copies. It reports
// whether a snapshot was applied.
func (r *Runner) ApplyGenesis(ctx context.Context) (bool, error) {
	if !r.cfg.Storage.LoadGenesis {
		return false, nil
	}
	path := r.cfg.GenesisPath()
	env, err := genesis.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("no genesis snapshot, starting from an empty state", "path", path)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if env.Sender != r.cfg.Address() {
		return false, &genesis.Error{
			Path: path,
			Err:  fmt.Errorf("signed by %s, not the developer account %s", env.Sender, r.cfg.Address()),
		}
	}
	ops, err := env.Ops()
	if err != nil {
		return false, &genesis.Error{Path: path, Err: err}
	}
	apply, err := r.withoutPublishedModules(ctx, ops)
	if err != nil {
		return false, err
	}
	if err := r.store.ApplyWriteSet(ctx, apply); err != nil {
		return false, err
	}
	r.genesis = ops
	r.sequence = max(r.sequence, env.SequenceNumber)
	r.logger.Info("applied genesis", "path", path, "writes", len(apply), "sequence_number", env.SequenceNumber)
	return true, nil
}

// withoutPublishedModules drops module writes whose path the store already
// holds. A snapshot copy that differs from the published module is logged.
func (r *Runner) withoutPublishedModules(ctx context.Context, ops ir.WriteSet) (ir.WriteSet, error) {
	out := make(ir.WriteSet, 0, len(ops))
	for _, op := range ops {
		if op.Kind != ir.WriteKindSet || !op.Path.IsModule() {
			out = append(out, op)
			continue
		}
		published, ok, err := r.store.Get(ctx, op.Path)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, op)
			continue
		}
		if !bytes.Equal(published, op.Value) {
			r.logger.Warn("genesis module differs from the published one, keeping the published module", "path", string(op.Path))
		}
	}
	return out, nil
}

// Execute runs script as the developer account. The store is not modified.
func (r *Runner) Execute(ctx context.Context, script *verifier.VerifiedScript, args []ir.Value, typeArgs []ir.Type) (*execution.Result, error) {
	return r.adapter.Execute(ctx, execution.Request{
		Script:         script.Bytecode(),
		Sender:         r.cfg.Address(),
		SequenceNumber: r.sequence,
		Args:           args,
		TypeArgs:       typeArgs,
	})
}

// ApplyWriteSet applies ws to the store.
func (r *Runner) ApplyWriteSet(ctx context.Context, ws ir.WriteSet) error {
	return r.store.ApplyWriteSet(ctx, ws)
}

// SaveGenesis merges ws into the genesis state and writes a re-signed
// snapshot with the next sequence number, when the storage policy asks for
// it. The new sequence number is written back to Move.toml. Without a
// loaded snapshot the base is the standard library.
func (r *Runner) SaveGenesis(ctx context.Context, ws ir.WriteSet) (bool, error) {
	if !r.cfg.Storage.SaveGenesis {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	base := r.genesis
	if base == nil {
		ops := make([]ir.WriteOp, 0, len(r.stdlib))
		for _, m := range r.stdlib {
			ops = append(ops, ir.WriteOp{Path: ir.ModulePath(m.ID()), Kind: ir.WriteKindSet, Value: m.Bytecode()})
		}
		base = ir.NewWriteSet(ops)
	}

	kp, err := r.cfg.KeyPair()
	if err != nil {
		return false, err
	}
	next := r.sequence + 1
	env, err := genesis.Sign(kp, next, genesis.Merge(base, ws))
	if err != nil {
		return false, err
	}
	if err := genesis.Save(r.cfg.GenesisPath(), env); err != nil {
		return false, err
	}
	r.sequence = next
	r.cfg.State.SequenceNumber = next
	if err := r.cfg.Save(); err != nil {
		return false, err
	}
	r.logger.Info("saved genesis", "path", r.cfg.GenesisPath(), "sequence_number", env.SequenceNumber)
	return true, nil
}
