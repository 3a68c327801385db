package core

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "hourbank/core/errors"
	"hourbank/core/events"
	"hourbank/core/state"
	"hourbank/core/types"
	"hourbank/crypto"
	"hourbank/native/booking"
	nativecommon "hourbank/native/common"
	"hourbank/native/ledger"
	"hourbank/native/reputation"
	"hourbank/observability"
	"hourbank/observability/logging"
	"hourbank/storage"
	"hourbank/storage/journal"
	"hourbank/storage/trie"
)

var (
	// ErrHeightRegression is returned when a lower height is supplied.
	ErrHeightRegression = errors.New("host: height must not decrease")
	// ErrBadNonce is returned when a transaction nonce does not match the
	// sender's next nonce. The transaction is rejected without side effects.
	ErrBadNonce = errors.New("host: unexpected nonce")
	// ErrGenesisApplied is returned when genesis runs against initialised
	// state.
	ErrGenesisApplied = errors.New("host: genesis already applied")
)

// Recorder receives every executed call and committed root. The replay
// journal implements it.
type Recorder interface {
	RecordGenesis(encoded []byte) error
	Append(entry journal.Entry) (uint64, error)
	RecordRoot(height uint64, root common.Hash) error
}

// GenesisConfig seeds the module singletons.
type GenesisConfig struct {
	LedgerOwner  [20]byte `json:"ledgerOwner"`
	BookingOwner [20]byte `json:"bookingOwner"`
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	TokenURI     string   `json:"tokenURI"`
}

// Host sequences calls into the native modules. It supplies the height and
// the caller identity, runs each call atomically against a working copy of the
// state trie and persists roots on Commit.
//
// All methods are safe for concurrent use; calls are serialised.
type Host struct {
	mu       sync.Mutex
	trie     *trie.Trie
	height   uint64
	pauses   nativecommon.PauseView
	emitter  events.Emitter
	recorder Recorder
	logger   *slog.Logger
	metrics  *observability.HostMetrics
}

// Option configures a Host.
type Option func(*Host)

// WithPauses installs the pause guard consulted before every call.
func WithPauses(p nativecommon.PauseView) Option { return func(h *Host) { h.pauses = p } }

// WithEmitter receives the events of committed calls.
func WithEmitter(e events.Emitter) Option { return func(h *Host) { h.emitter = e } }

// WithRecorder journals executed calls and committed roots.
func WithRecorder(r Recorder) Option { return func(h *Host) { h.recorder = r } }

func WithLogger(l *slog.Logger) Option { return func(h *Host) { h.logger = l } }

// WithMetrics overrides the metrics registry. Passing nil disables metrics.
func WithMetrics(m *observability.HostMetrics) Option { return func(h *Host) { h.metrics = m } }

// NewHost opens the state recorded as the chain head in db, or empty state
// when db is fresh.
func NewHost(db storage.Database, opts ...Option) (*Host, error) {
	if db == nil {
		return nil, fmt.Errorf("host: database required")
	}
	tr, height, err := trie.Open(db)
	if err != nil {
		return nil, fmt.Errorf("host: open state: %w", err)
	}
	if err := state.NewManager(tr).EnsureStateVersion(); err != nil {
		return nil, err
	}
	h := &Host{
		trie:    tr,
		height:  height,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: observability.Host(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.emitter == nil {
		h.emitter = events.NoopEmitter{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.metrics.SetHeight(h.height)
	return h, nil
}

// Initialized reports whether genesis has been applied.
func (h *Host) Initialized() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok, err := state.NewManager(h.trie).StateVersion()
	return ok, err
}

// Genesis initialises the ledger and booking singletons and stamps the state
// schema version.
func (h *Host) Genesis(cfg GenesisConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	working := h.trie.Copy()
	mgr := state.NewManager(working)
	if _, ok, err := mgr.StateVersion(); err != nil {
		return err
	} else if ok {
		return ErrGenesisApplied
	}
	led := ledger.NewEngine()
	led.SetState(mgr)
	if err := led.Initialize(ledger.Metadata{
		Name:     cfg.Name,
		Symbol:   cfg.Symbol,
		TokenURI: cfg.TokenURI,
		Owner:    cfg.LedgerOwner,
	}); err != nil {
		return err
	}
	bk := booking.NewEngine()
	bk.SetState(mgr)
	if err := bk.Initialize(cfg.BookingOwner); err != nil {
		return err
	}
	if err := mgr.SetStateVersion(state.StateVersion); err != nil {
		return err
	}
	if h.recorder != nil {
		encoded, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		if err := h.recorder.RecordGenesis(encoded); err != nil {
			return fmt.Errorf("host: journal genesis: %w", err)
		}
	}
	h.trie = working
	h.logger.Info("genesis applied",
		slog.String("ledgerOwner", crypto.FromArray(cfg.LedgerOwner).String()),
		slog.String("bookingOwner", crypto.FromArray(cfg.BookingOwner).String()))
	return nil
}

// Height returns the current logical height.
func (h *Host) Height() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.height
}

// AdvanceHeight moves the logical clock to height. Equal values are accepted.
func (h *Host) AdvanceHeight(height uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if height < h.height {
		return fmt.Errorf("%w: %d < %d", ErrHeightRegression, height, h.height)
	}
	h.height = height
	h.metrics.SetHeight(height)
	return nil
}

// execContext binds the engines of one call to a working copy of the state.
type execContext struct {
	caller     [20]byte
	height     uint64
	state      *state.Manager
	buffer     *events.Buffer
	ledger     *ledger.Engine
	bookings   *booking.Engine
	reputation *reputation.Engine
}

func newExecContext(mgr *state.Manager, caller [20]byte, height uint64) *execContext {
	buf := &events.Buffer{}
	heightFn := func() uint64 { return height }

	led := ledger.NewEngine()
	led.SetState(mgr)
	led.SetEmitter(buf)

	bk := booking.NewEngine()
	bk.SetState(mgr)
	bk.SetEmitter(buf)
	bk.SetHeightFunc(heightFn)

	rep := reputation.NewEngine(mgr)
	rep.SetEmitter(buf)
	rep.SetHeightFunc(heightFn)

	return &execContext{
		caller:     caller,
		height:     height,
		state:      mgr,
		buffer:     buf,
		ledger:     led,
		bookings:   bk,
		reputation: rep,
	}
}

// Execute runs call on behalf of caller. Operation failures are reported in
// the receipt and leave state untouched; the returned error is reserved for
// calls that could not be run at all (paused module, unknown method, malformed
// arguments, storage faults).
func (h *Host) Execute(caller [20]byte, call types.Call) (*types.Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.execute(caller, call, nil)
}

// ApplyTransaction verifies the signature of tx, checks and consumes the
// sender nonce and executes the call. The nonce is consumed even when the
// call fails, unless the journal refuses the entry.
func (h *Host) ApplyTransaction(tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("host: nil transaction")
	}
	from, err := tx.From()
	if err != nil {
		return nil, err
	}
	var caller [20]byte
	copy(caller[:], from)

	h.mu.Lock()
	defer h.mu.Unlock()

	expected, err := loadNonce(state.NewManager(h.trie), caller)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != expected {
		return nil, fmt.Errorf("%w: got %d want %d", ErrBadNonce, tx.Nonce, expected)
	}
	receipt, err := h.execute(caller, tx.Call, tx)
	if err != nil {
		return nil, err
	}
	if hash, err := tx.Hash(); err == nil {
		receipt.TxHash = "0x" + hex.EncodeToString(hash)
	}
	return receipt, nil
}

// execute must be called with h.mu held. When tx is non-nil its nonce is
// consumed on the adopted state whatever the call outcome.
func (h *Host) execute(caller [20]byte, call types.Call, tx *types.Transaction) (*types.Receipt, error) {
	start := time.Now()
	call = call.Normalize()
	if err := nativecommon.Guard(h.pauses, call.Module); err != nil {
		return nil, fmt.Errorf("%s: %w", call.Module, err)
	}
	op, err := resolve(call)
	if err != nil {
		return nil, err
	}

	receipt := &types.Receipt{
		Height: h.height,
		Caller: crypto.FromArray(caller).String(),
		Module: call.Module,
		Method: call.Method,
	}

	working := h.trie.Copy()
	ctx := newExecContext(state.NewManager(working), caller, h.height)
	if tx != nil {
		if err := bumpNonce(ctx.state, caller); err != nil {
			return nil, err
		}
	}
	result, opErr := op(ctx)
	if opErr != nil {
		kind := coreerrors.KindOf(opErr)
		if kind == nil {
			// Not an operation failure; nothing is adopted.
			h.logger.Error("call aborted",
				slog.String("module", call.Module),
				slog.String("method", call.Method),
				slog.Any("error", opErr))
			return nil, opErr
		}
		// Discard every mutation of the failed call. A signed transaction
		// still pays its nonce.
		if tx != nil {
			working = h.trie.Copy()
			if err := bumpNonce(state.NewManager(working), caller); err != nil {
				return nil, err
			}
		}
		receipt.Status = types.ReceiptFailed
		receipt.Kind = kind.Error()
		receipt.Error = opErr.Error()
		if code, ok := coreerrors.CodeOf(opErr); ok {
			receipt.Code = code
		}
		h.logger.Info("call failed",
			slog.String("module", call.Module),
			slog.String("method", call.Method),
			slog.Uint64("code", uint64(receipt.Code)),
			slog.String("kind", receipt.Kind),
			slog.String("caller", receipt.Caller))
		if err := h.journal(caller, call, tx); err != nil {
			return nil, err
		}
		if tx != nil {
			h.trie = working
		}
		h.metrics.ObserveCall(call.Module, call.Method, receipt.Kind, time.Since(start))
		return receipt, nil
	}

	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("host: encode result: %w", err)
		}
		receipt.Result = encoded
	}
	if err := h.journal(caller, call, tx); err != nil {
		return nil, err
	}
	h.trie = working
	receipt.Status = types.ReceiptSuccess
	receipt.Events = ctx.buffer.Payloads()
	for _, evt := range ctx.buffer.Events() {
		h.emitter.Emit(evt)
		observability.Events().RecordEvent(evt.EventType())
	}
	h.logger.Debug("call applied",
		slog.String("module", call.Module),
		slog.String("method", call.Method),
		slog.String("caller", receipt.Caller),
		slog.Uint64("height", h.height),
		logging.MaskArgs("args", call.Args))
	h.metrics.ObserveCall(call.Module, call.Method, "success", time.Since(start))
	return receipt, nil
}

// journal records the call before its state is adopted. A call the journal
// cannot hold is not applied, so replay always sees every adopted call.
func (h *Host) journal(caller [20]byte, call types.Call, tx *types.Transaction) error {
	if h.recorder == nil {
		return nil
	}
	entry := journal.Entry{Height: h.height, Caller: caller, Call: call, Tx: tx}
	if _, err := h.recorder.Append(entry); err != nil {
		h.logger.Error("journal append failed",
			slog.String("module", call.Module),
			slog.String("method", call.Method),
			slog.Any("error", err))
		return fmt.Errorf("host: journal call: %w", err)
	}
	return nil
}

// Commit persists the state at the current height and returns its root.
func (h *Host) Commit() (common.Hash, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commit()
}

// Seal commits the current height and advances to the next one in a single
// step, so no call can land between the recorded root and the new height.
func (h *Host) Seal() (uint64, common.Hash, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	root, err := h.commit()
	if err != nil {
		return 0, common.Hash{}, err
	}
	sealed := h.height
	h.height++
	if err := h.trie.MarkHead(h.height); err != nil {
		return 0, common.Hash{}, err
	}
	h.metrics.SetHeight(h.height)
	return sealed, root, nil
}

func (h *Host) commit() (common.Hash, error) {
	root, err := h.trie.Commit(h.height)
	if err != nil {
		return common.Hash{}, err
	}
	if h.recorder != nil {
		if err := h.recorder.RecordRoot(h.height, root); err != nil {
			return common.Hash{}, fmt.Errorf("host: journal root: %w", err)
		}
	}
	h.metrics.RecordCommit()
	return root, nil
}

// PendingRoot returns the root including uncommitted calls.
func (h *Host) PendingRoot() common.Hash {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trie.Hash()
}

// Views exposes read-only engines over the latest state.
type Views struct {
	Height     uint64
	Ledger     *ledger.Engine
	Bookings   *booking.Engine
	Reputation *reputation.Engine
}

// View runs fn against engines bound to a copy of the latest state, including
// calls not yet committed. Mutations made through the views are dropped.
func (h *Host) View(fn func(*Views) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ctx := newExecContext(state.NewManager(h.trie.Copy()), [20]byte{}, h.height)
	return fn(&Views{
		Height:     h.height,
		Ledger:     ctx.ledger,
		Bookings:   ctx.bookings,
		Reputation: ctx.reputation,
	})
}

// Nonce returns the next expected nonce for account.
func (h *Host) Nonce(account [20]byte) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return loadNonce(state.NewManager(h.trie), account)
}

func nonceKey(account [20]byte) []byte {
	return []byte(fmt.Sprintf("host/nonce/%x", account))
}

func loadNonce(mgr *state.Manager, account [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := mgr.KVGet(nonceKey(account), &nonce); err != nil {
		return 0, fmt.Errorf("host: load nonce: %w", err)
	}
	return nonce, nil
}

func bumpNonce(mgr *state.Manager, account [20]byte) error {
	nonce, err := loadNonce(mgr, account)
	if err != nil {
		return err
	}
	if err := mgr.KVPut(nonceKey(account), nonce+1); err != nil {
		return fmt.Errorf("host: store nonce: %w", err)
	}
	return nil
}
