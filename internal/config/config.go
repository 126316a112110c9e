// Package config manages a project's Move.toml: directory layout, compile
// options, the developer identity and the storage policy.
//
// Load always replaces the persisted home with the directory it was asked to
// load from, so a moved project never resolves paths against its old
// location. The only field changed after load is State.SequenceNumber, which
// the runner advances and saves when it writes a new genesis snapshot.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/roach88/mover/internal/account"
)

// FileName is the configuration file at the project home.
const FileName = "Move.toml"

// Default layout and policy values written by Create.
const (
	DefaultModuleDir   = "src/modules"
	DefaultScriptDir   = "src/scripts"
	DefaultTestDir     = "test"
	DefaultTargetDir   = "target"
	DefaultStdlibDir   = "src/stdlib"
	DefaultGenesisFile = "genesis.blob"
	DefaultGasBudget   = 1_000_000
	DefaultProjectName = "move-project"
	dirPerm            = 0o755
	filePerm           = 0o644
)

// Workspace holds the source and output directories, relative to home.
type Workspace struct {
	ModuleDir string `toml:"module_dir"`
	ScriptDir string `toml:"script_dir"`
	TestDir   string `toml:"test_dir"`
	TargetDir string `toml:"target_dir"`
}

// Compile holds compiler output and standard library options.
type Compile struct {
	OutputSourceMap    bool   `toml:"output_source_map"`
	OutputMoveBytecode bool   `toml:"output_move_bytecode"`
	SkipStdlib         bool   `toml:"skip_stdlib"`
	CustomStdlib       bool   `toml:"custom_stdlib"`
	CustomStdlibPath   string `toml:"custom_stdlib_path"`
}

// State is the developer transaction identity used as sender.
type State struct {
	Address        account.Address `toml:"address"`
	PublicKey      string          `toml:"public_key"`
	PrivateKey     string          `toml:"private_key"`
	SequenceNumber uint64          `toml:"sequence_number"`
}

// Storage controls genesis seeding and persistence.
type Storage struct {
	LoadGenesis bool   `toml:"load_genesis"`
	SaveGenesis bool   `toml:"save_genesis"`
	GenesisFile string `toml:"genesis_file"`
}

// Execution holds VM limits.
type Execution struct {
	GasBudget uint64 `toml:"gas_budget"`
	ZeroCost  bool   `toml:"zero_cost"`
}

// Config is the parsed contents of Move.toml.
type Config struct {
	ProjectName string    `toml:"project_name"`
	Home        string    `toml:"home"`
	Workspace   Workspace `toml:"workspace"`
	Compile     Compile   `toml:"compile"`
	State       State     `toml:"state"`
	Storage     Storage   `toml:"storage"`
	Execution   Execution `toml:"execution"`
}

// Error reports a configuration problem with the offending path.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Create builds a configuration with default layout and options and a fresh
// random identity. It does not touch the filesystem.
func Create(name, home string) (*Config, error) {
	if name == "" {
		name = DefaultProjectName
	}
	kp, err := account.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("create config: %w", err)
	}

	cfg := defaults()
	cfg.ProjectName = name
	cfg.Home = home
	cfg.State = State{
		Address:    kp.Address(),
		PublicKey:  kp.PublicKeyHex(),
		PrivateKey: kp.PrivateKeyHex(),
	}
	return cfg, nil
}

// defaults returns the layout and policy every Config starts from. Load
// decodes on top of it, so sections missing from Move.toml keep these values.
func defaults() *Config {
	return &Config{
		Workspace: Workspace{
			ModuleDir: DefaultModuleDir,
			ScriptDir: DefaultScriptDir,
			TestDir:   DefaultTestDir,
			TargetDir: DefaultTargetDir,
		},
		Compile: Compile{
			OutputSourceMap:    true,
			OutputMoveBytecode: true,
			CustomStdlibPath:   DefaultStdlibDir,
		},
		Storage: Storage{
			LoadGenesis: true,
			GenesisFile: DefaultGenesisFile,
		},
		Execution: Execution{
			GasBudget: DefaultGasBudget,
		},
	}
}

// Initialize creates home and every workspace directory, then writes
// Move.toml. A failure part way through leaves whatever was already created.
func (c *Config) Initialize() error {
	for _, dir := range []string{c.Home, c.ModuleDir(), c.ScriptDir(), c.TargetDir(), c.TestDir()} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return &Error{Path: dir, Err: err}
		}
	}
	return c.Save()
}

// Save writes the configuration to Move.toml under home.
func (c *Config) Save() error {
	path := c.Path()
	data, err := c.Marshal()
	if err != nil {
		return &Error{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return &Error{Path: path, Err: err}
	}
	return nil
}

// Marshal renders the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode toml: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads Move.toml under home. The returned Config's Home is always
// home, whatever the file says. Unknown keys are rejected; keys and sections
// the file leaves out keep their defaults.
func Load(home string) (*Config, error) {
	path := filepath.Join(home, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &Error{Path: path, Err: fmt.Errorf("not a project (no %s): %w", FileName, err)}
		}
		return nil, &Error{Path: path, Err: err}
	}

	cfg := defaults()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, &Error{Path: path, Err: describeDecodeError(err)}
	}
	if err := cfg.validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	cfg.Home = home
	return cfg, nil
}

func describeDecodeError(err error) error {
	var decErr *toml.DecodeError
	if errors.As(err, &decErr) {
		row, col := decErr.Position()
		return fmt.Errorf("line %d, column %d: %w", row, col, err)
	}
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		return fmt.Errorf("unknown keys:\n%s", strict.String())
	}
	return err
}

func (c *Config) validate() error {
	if c.ProjectName == "" {
		return errors.New("project_name is required")
	}
	dirs := []struct{ key, dir string }{
		{"workspace.module_dir", c.Workspace.ModuleDir},
		{"workspace.script_dir", c.Workspace.ScriptDir},
		{"workspace.test_dir", c.Workspace.TestDir},
		{"workspace.target_dir", c.Workspace.TargetDir},
	}
	for _, d := range dirs {
		if d.dir == "" {
			return fmt.Errorf("%s is required", d.key)
		}
		if filepath.IsAbs(d.dir) {
			return fmt.Errorf("%s must be relative to home, got %q", d.key, d.dir)
		}
	}
	if c.Storage.GenesisFile == "" && (c.Storage.LoadGenesis || c.Storage.SaveGenesis) {
		return errors.New("storage.genesis_file is required when genesis is loaded or saved")
	}
	if c.Execution.GasBudget == 0 && !c.Execution.ZeroCost {
		return errors.New("execution.gas_budget must be positive unless zero_cost is set")
	}
	if c.Compile.CustomStdlib && c.Compile.CustomStdlibPath == "" {
		return errors.New("compile.custom_stdlib_path is required when custom_stdlib is set")
	}
	return nil
}

// Path is the location of Move.toml.
func (c *Config) Path() string { return filepath.Join(c.Home, FileName) }

// ModuleDir is the absolute module source directory.
func (c *Config) ModuleDir() string { return filepath.Join(c.Home, c.Workspace.ModuleDir) }

// ScriptDir is the absolute script source directory.
func (c *Config) ScriptDir() string { return filepath.Join(c.Home, c.Workspace.ScriptDir) }

// TestDir is the absolute test script directory.
func (c *Config) TestDir() string { return filepath.Join(c.Home, c.Workspace.TestDir) }

// TargetDir is the absolute build output directory.
func (c *Config) TargetDir() string { return filepath.Join(c.Home, c.Workspace.TargetDir) }

// StdlibDir is the custom standard library source directory.
func (c *Config) StdlibDir() string { return filepath.Join(c.Home, c.Compile.CustomStdlibPath) }

// GenesisPath is the genesis snapshot file.
func (c *Config) GenesisPath() string { return filepath.Join(c.Home, c.Storage.GenesisFile) }

// Address returns the developer address used as sender.
func (c *Config) Address() account.Address {
	return c.State.Address
}

// KeyPair decodes the developer keypair and checks it matches the address.
func (c *Config) KeyPair() (*account.KeyPair, error) {
	kp, err := account.KeyPairFromHex(c.State.PrivateKey)
	if err != nil {
		return nil, &Error{Path: c.Path(), Err: fmt.Errorf("state.private_key: %w", err)}
	}
	if kp.Address() != c.State.Address {
		return nil, &Error{Path: c.Path(), Err: fmt.Errorf("state.address %s does not match private key", c.State.Address)}
	}
	return kp, nil
}
