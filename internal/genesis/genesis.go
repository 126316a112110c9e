// Package genesis reads and writes the signed genesis snapshot that seeds a
// project's data store before run and test.
//
// The file is a canonical JSON envelope holding a write set. The developer
// key signs the envelope with the signature field omitted, so any edit to
// the file is detected on load.
package genesis

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
	"github.com/roach88/mover/internal/stdlib"
)

// Domain separates genesis signatures from every other signed payload.
const Domain = "mover/genesis/v1"

// Version is the envelope format version.
const Version = 1

// InitialBalance is the developer's Account::Balance in a new project.
const InitialBalance = 1_000_000

const filePerm = 0o644

// ErrBadSignature is returned when the envelope signature does not verify.
var ErrBadSignature = errors.New("signature does not verify")

// Error reports a genesis file problem with the offending path.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("genesis %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Entry is one write-set op as stored in the envelope. Values are hex.
type Entry struct {
	Path  ir.AccessPath `json:"path"`
	Op    ir.WriteKind  `json:"op"`
	Value string        `json:"value,omitempty"`
}

// Envelope is the on-disk genesis snapshot.
type Envelope struct {
	Version        int             `json:"version"`
	Sender         account.Address `json:"sender"`
	SequenceNumber uint64          `json:"sequence_number"`
	WriteSet       []Entry         `json:"write_set"`
	PublicKey      string          `json:"public_key"`
	Signature      string          `json:"signature,omitempty"`
}

// Sign builds an envelope for ws and signs it with kp.
func Sign(kp *account.KeyPair, sequenceNumber uint64, ws ir.WriteSet) (*Envelope, error) {
	env := &Envelope{
		Version:        Version,
		Sender:         kp.Address(),
		SequenceNumber: sequenceNumber,
		WriteSet:       make([]Entry, 0, len(ws)),
		PublicKey:      kp.PublicKeyHex(),
	}
	for _, op := range ws {
		env.WriteSet = append(env.WriteSet, Entry{Path: op.Path, Op: op.Kind, Value: hex.EncodeToString(op.Value)})
	}

	payload, err := env.signingPayload()
	if err != nil {
		return nil, err
	}
	env.Signature = hex.EncodeToString(kp.Sign(Domain, payload))
	return env, nil
}

// signingPayload is the canonical encoding of the envelope without its
// signature.
func (e *Envelope) signingPayload() ([]byte, error) {
	unsigned := *e
	unsigned.Signature = ""
	data, err := ir.Canonicalize(unsigned)
	if err != nil {
		return nil, fmt.Errorf("encode genesis payload: %w", err)
	}
	return data, nil
}

// Verify checks the version, that the public key derives the sender and
// that the signature covers the rest of the envelope.
func (e *Envelope) Verify() error {
	if e.Version != Version {
		return fmt.Errorf("unsupported genesis version %d", e.Version)
	}
	pub, err := hex.DecodeString(e.PublicKey)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	if got := account.AddressFromPublicKey(pub); got != e.Sender {
		return fmt.Errorf("public key derives %s, sender is %s", got.ShortString(), e.Sender.ShortString())
	}
	sig, err := hex.DecodeString(e.Signature)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	payload, err := e.signingPayload()
	if err != nil {
		return err
	}
	if err := account.Verify(pub, Domain, payload, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// Ops decodes the envelope's write set.
func (e *Envelope) Ops() (ir.WriteSet, error) {
	ops := make([]ir.WriteOp, 0, len(e.WriteSet))
	for _, entry := range e.WriteSet {
		if _, _, _, err := entry.Path.Parse(); err != nil {
			return nil, err
		}
		op := ir.WriteOp{Path: entry.Path, Kind: entry.Op}
		switch entry.Op {
		case ir.WriteKindSet:
			value, err := hex.DecodeString(entry.Value)
			if err != nil {
				return nil, fmt.Errorf("value at %s: %w", entry.Path, err)
			}
			op.Value = value
		case ir.WriteKindDelete:
		default:
			return nil, fmt.Errorf("unknown op %q at %s", entry.Op, entry.Path)
		}
		ops = append(ops, op)
	}
	return ir.NewWriteSet(ops), nil
}

// Marshal renders the envelope as canonical JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	return ir.Canonicalize(e)
}

// Load reads and verifies the envelope at path. A missing file is an
// *Error wrapping os.ErrNotExist.
func Load(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if err := env.Verify(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if _, err := env.Ops(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return &env, nil
}

// Save writes the envelope to path.
func Save(path string, env *Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return &Error{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return &Error{Path: path, Err: err}
	}
	return nil
}

// PublishedModule is module bytecode at its module id.
type PublishedModule struct {
	ID       ir.ModuleID
	Bytecode []byte
}

// Baseline is the write set of a new project: the given modules plus an
// Account::Balance of InitialBalance for dev.
func Baseline(modules []PublishedModule, dev account.Address) (ir.WriteSet, error) {
	ops := make([]ir.WriteOp, 0, len(modules)+1)
	for _, m := range modules {
		ops = append(ops, ir.WriteOp{Path: ir.ModulePath(m.ID), Kind: ir.WriteKindSet, Value: m.Bytecode})
	}
	balance, err := ir.EncodeResource(ir.Fields{"value": ir.U64(InitialBalance)})
	if err != nil {
		return nil, err
	}
	ops = append(ops, ir.WriteOp{Path: ir.ResourcePath(dev, stdlib.BalanceTag), Kind: ir.WriteKindSet, Value: balance})
	return ir.NewWriteSet(ops), nil
}

// Merge applies delta on top of base and returns the resulting state as a
// write set of sets only. Deleted paths disappear.
func Merge(base, delta ir.WriteSet) ir.WriteSet {
	state := make(map[ir.AccessPath][]byte, len(base)+len(delta))
	for _, ws := range []ir.WriteSet{base, delta} {
		for _, op := range ws {
			if op.Kind == ir.WriteKindDelete {
				delete(state, op.Path)
				continue
			}
			state[op.Path] = op.Value
		}
	}
	ops := make([]ir.WriteOp, 0, len(state))
	for path, value := range state {
		ops = append(ops, ir.WriteOp{Path: path, Kind: ir.WriteKindSet, Value: value})
	}
	return ir.NewWriteSet(ops)
}
