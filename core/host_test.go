package core

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "hourbank/core/errors"
	"hourbank/core/events"
	"hourbank/core/types"
	"hourbank/crypto"
	"hourbank/native/booking"
	nativecommon "hourbank/native/common"
	"hourbank/native/ledger"
	"hourbank/storage"
	"hourbank/storage/journal"
)

func testAccount(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func bech(addr [20]byte) string { return crypto.FromArray(addr).String() }

var (
	owner     = testAccount(0x01)
	requester = testAccount(0x0A)
	provider  = testAccount(0x0B)
)

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) Emit(evt events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func newTestHost(t *testing.T, opts ...Option) *Host {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	opts = append([]Option{WithMetrics(nil)}, opts...)
	host, err := NewHost(db, opts...)
	require.NoError(t, err)
	require.NoError(t, host.Genesis(GenesisConfig{
		LedgerOwner:  owner,
		BookingOwner: owner,
		TokenURI:     ledger.DefaultTokenURI,
	}))
	return host
}

func mustCall(t *testing.T, module, method string, args interface{}) types.Call {
	t.Helper()
	call, err := types.NewCall(module, method, args)
	require.NoError(t, err)
	return call
}

func mustExecute(t *testing.T, h *Host, caller [20]byte, call types.Call) *types.Receipt {
	t.Helper()
	receipt, err := h.Execute(caller, call)
	require.NoError(t, err)
	return receipt
}

func TestGenesisOnce(t *testing.T) {
	host := newTestHost(t)
	ok, err := host.Initialized()
	require.NoError(t, err)
	require.True(t, ok)
	require.ErrorIs(t, host.Genesis(GenesisConfig{}), ErrGenesisApplied)

	require.NoError(t, host.View(func(v *Views) error {
		symbol, err := v.Ledger.Symbol()
		require.NoError(t, err)
		require.Equal(t, ledger.DefaultSymbol, symbol)
		next, err := v.Bookings.NextBookingID()
		require.NoError(t, err)
		require.Equal(t, uint64(1), next)
		return nil
	}))
}

func TestExecuteMintTransfer(t *testing.T) {
	sink := &collector{}
	host := newTestHost(t, WithEmitter(sink))
	w1, w2 := testAccount(0x11), testAccount(0x22)

	receipt := mustExecute(t, host, owner, mustCall(t, types.ModuleLedger, MethodMint, MintArgs{Amount: "1000", Recipient: bech(w1)}))
	require.True(t, receipt.Succeeded())
	require.Len(t, receipt.Events, 1)

	receipt = mustExecute(t, host, w1, mustCall(t, types.ModuleLedger, MethodTransfer, TransferArgs{
		Amount: "300", Sender: bech(w1), Recipient: "0x2222222222222222222222222222222222222222", Memo: "thanks",
	}))
	require.True(t, receipt.Succeeded())
	require.Equal(t, ledger.EventTypeTransferred, receipt.Events[0].Type)

	require.NoError(t, host.View(func(v *Views) error {
		b1, err := v.Ledger.BalanceOf(w1)
		require.NoError(t, err)
		b2, err := v.Ledger.BalanceOf(w2)
		require.NoError(t, err)
		supply, err := v.Ledger.TotalSupply()
		require.NoError(t, err)
		require.Equal(t, uint64(700), b1.Uint64())
		require.Equal(t, uint64(300), b2.Uint64())
		require.Equal(t, uint64(1000), supply.Uint64())
		return nil
	}))
	require.Len(t, sink.events, 2)
}

func TestFailedCallIsAtomic(t *testing.T) {
	sink := &collector{}
	host := newTestHost(t, WithEmitter(sink))
	before := host.PendingRoot()

	receipt := mustExecute(t, host, requester, mustCall(t, types.ModuleLedger, MethodMint, MintArgs{Amount: "5", Recipient: bech(requester)}))
	require.False(t, receipt.Succeeded())
	require.Equal(t, uint32(100), receipt.Code)
	require.Equal(t, coreerrors.ErrUnauthorized.Error(), receipt.Kind)
	require.Empty(t, receipt.Events)
	require.Equal(t, before, host.PendingRoot())
	require.Empty(t, sink.events)
}

func TestBookingLifecycleThroughHost(t *testing.T) {
	host := newTestHost(t)
	require.NoError(t, host.AdvanceHeight(10))

	receipt := mustExecute(t, host, requester, mustCall(t, types.ModuleBooking, MethodCreateBooking, CreateBookingArgs{
		Provider: bech(provider), SkillID: 1, Description: "desc", Credits: 100, Deadline: 1010,
	}))
	require.True(t, receipt.Succeeded())
	var created CreateBookingResult
	require.NoError(t, json.Unmarshal(receipt.Result, &created))
	require.Equal(t, uint64(1), created.ID)

	receipt = mustExecute(t, host, requester, mustCall(t, types.ModuleBooking, MethodAcceptBooking, BookingIDArgs{ID: 1}))
	require.False(t, receipt.Succeeded())
	require.Equal(t, uint32(400), receipt.Code)

	receipt = mustExecute(t, host, provider, mustCall(t, types.ModuleBooking, MethodAcceptBooking, BookingIDArgs{ID: 1}))
	require.True(t, receipt.Succeeded())

	require.NoError(t, host.AdvanceHeight(20))
	receipt = mustExecute(t, host, provider, mustCall(t, types.ModuleBooking, MethodCompleteBooking, CompleteBookingArgs{ID: 1, HoursWorked: 8}))
	require.True(t, receipt.Succeeded())

	receipt = mustExecute(t, host, requester, mustCall(t, types.ModuleBooking, MethodCancelBooking, BookingIDArgs{ID: 1}))
	require.Equal(t, uint32(402), receipt.Code)

	require.NoError(t, host.View(func(v *Views) error {
		b, ok, err := v.Bookings.Booking(1)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, booking.StatusCompleted, b.Status)
		require.Equal(t, &booking.Completion{At: 20, HoursWorked: 8}, b.Completion)
		require.Equal(t, uint64(10), b.CreatedAt)
		return nil
	}))

	receipt = mustExecute(t, host, requester, mustCall(t, types.ModuleReputation, MethodAddRating, AddRatingArgs{
		Rated: bech(provider), BookingID: 1, Score: 5, Comment: "great",
	}))
	require.True(t, receipt.Succeeded())
	require.NoError(t, host.View(func(v *Views) error {
		agg, ok, err := v.Reputation.Reputation(provider)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(5), agg.AverageRating())
		return nil
	}))
}

func TestExecuteRejectsBadCalls(t *testing.T) {
	host := newTestHost(t, WithPauses(nativecommon.Pauses{"reputation": true}))
	before := host.PendingRoot()

	_, err := host.Execute(owner, types.Call{Module: "ledger", Method: "explode"})
	require.ErrorIs(t, err, ErrUnknownMethod)

	_, err = host.Execute(owner, types.Call{Module: "ledger", Method: "mint", Args: json.RawMessage(`{"amount":"-1","recipient":"x"}`)})
	require.ErrorIs(t, err, ErrInvalidArgs)

	_, err = host.Execute(owner, types.Call{Module: "ledger", Method: "mint", Args: json.RawMessage(`{"amount":"1","recipient":"` + bech(owner) + `","extra":true}`)})
	require.ErrorIs(t, err, ErrInvalidArgs)

	_, err = host.Execute(owner, mustCall(t, types.ModuleReputation, MethodAddRating, AddRatingArgs{Rated: bech(provider), BookingID: 1, Score: 5, Comment: "x"}))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	require.Equal(t, before, host.PendingRoot())
}

func TestAddRatingScoreBeyondByteRange(t *testing.T) {
	host := newTestHost(t)
	before := host.PendingRoot()

	for _, score := range []uint64{0, 6, 256, 261} {
		receipt := mustExecute(t, host, requester, mustCall(t, types.ModuleReputation, MethodAddRating, AddRatingArgs{
			Rated: bech(provider), BookingID: 1, Score: score, Comment: "x",
		}))
		require.False(t, receipt.Succeeded(), "score %d", score)
		require.Equal(t, uint32(602), receipt.Code, "score %d", score)
		require.Equal(t, coreerrors.ErrInvalidRating.Error(), receipt.Kind, "score %d", score)
	}
	require.Equal(t, before, host.PendingRoot())
}

func TestMethodNamesAreCaseInsensitive(t *testing.T) {
	host := newTestHost(t)
	receipt := mustExecute(t, host, owner, types.Call{
		Module: " Ledger ",
		Method: "MINT",
		Args:   json.RawMessage(`{"amount":"7","recipient":"` + bech(owner) + `"}`),
	})
	require.True(t, receipt.Succeeded())
	require.Equal(t, "ledger", receipt.Module)
	require.Equal(t, "mint", receipt.Method)
}

func TestHeightIsMonotonic(t *testing.T) {
	host := newTestHost(t)
	require.NoError(t, host.AdvanceHeight(5))
	require.NoError(t, host.AdvanceHeight(5))
	require.ErrorIs(t, host.AdvanceHeight(4), ErrHeightRegression)
	require.Equal(t, uint64(5), host.Height())

	sealed, _, err := host.Seal()
	require.NoError(t, err)
	require.Equal(t, uint64(5), sealed)
	require.Equal(t, uint64(6), host.Height())
}

func signedTx(t *testing.T, key *crypto.PrivateKey, nonce uint64, call types.Call) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{Nonce: nonce, Call: call}
	require.NoError(t, tx.Sign(key.PrivateKey))
	return tx
}

func TestApplyTransactionNonces(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	signer := key.PubKey().Address().Array()
	host := newTestHost(t)

	call := mustCall(t, types.ModuleLedger, MethodMint, MintArgs{Amount: "1", Recipient: bech(signer)})

	_, err = host.ApplyTransaction(signedTx(t, key, 1, call))
	require.ErrorIs(t, err, ErrBadNonce)

	// The signer is not the owner: the call fails but the nonce is consumed.
	receipt, err := host.ApplyTransaction(signedTx(t, key, 0, call))
	require.NoError(t, err)
	require.False(t, receipt.Succeeded())
	require.NotEmpty(t, receipt.TxHash)
	require.Equal(t, bech(signer), receipt.Caller)
	nonce, err := host.Nonce(signer)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)

	_, err = host.ApplyTransaction(signedTx(t, key, 0, call))
	require.ErrorIs(t, err, ErrBadNonce)

	create := mustCall(t, types.ModuleBooking, MethodCreateBooking, CreateBookingArgs{Provider: bech(provider), Credits: 1, Deadline: 10})
	receipt, err = host.ApplyTransaction(signedTx(t, key, 1, create))
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	nonce, err = host.Nonce(signer)
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)

	// Tampering with the payload recovers a different signer, whose nonce does
	// not match.
	tampered := signedTx(t, key, 2, create)
	tampered.Call.Method = MethodCancelBooking
	_, err = host.ApplyTransaction(tampered)
	require.Error(t, err)
}

func TestCommitPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(filepath.Join(dir, "db"))
	require.NoError(t, err)

	host, err := NewHost(db, WithMetrics(nil))
	require.NoError(t, err)
	require.NoError(t, host.Genesis(GenesisConfig{LedgerOwner: owner, BookingOwner: owner}))
	mustExecute(t, host, owner, mustCall(t, types.ModuleLedger, MethodMint, MintArgs{Amount: "42", Recipient: bech(requester)}))
	require.NoError(t, host.AdvanceHeight(3))
	root, err := host.Commit()
	require.NoError(t, err)
	db.Close()

	db, err = storage.NewLevelDB(filepath.Join(dir, "db"))
	require.NoError(t, err)
	defer db.Close()
	reopened, err := NewHost(db, WithMetrics(nil))
	require.NoError(t, err)
	require.Equal(t, uint64(3), reopened.Height())
	require.Equal(t, root, reopened.PendingRoot())
	require.NoError(t, reopened.View(func(v *Views) error {
		bal, err := v.Ledger.BalanceOf(requester)
		require.NoError(t, err)
		require.Equal(t, uint64(42), bal.Uint64())
		return nil
	}))
	require.ErrorIs(t, reopened.Genesis(GenesisConfig{}), ErrGenesisApplied)
}

func TestReplayReproducesRoots(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	defer j.Close()

	host := newTestHost(t, WithRecorder(j))
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	signer := key.PubKey().Address().Array()

	mustExecute(t, host, owner, mustCall(t, types.ModuleLedger, MethodMint, MintArgs{Amount: "500", Recipient: bech(signer)}))
	_, _, err = host.Seal()
	require.NoError(t, err)

	_, err = host.ApplyTransaction(signedTx(t, key, 0, mustCall(t, types.ModuleLedger, MethodTransfer, TransferArgs{
		Amount: "200", Sender: bech(signer), Recipient: bech(provider),
	})))
	require.NoError(t, err)
	// A failed call still consumes the nonce and must replay identically.
	_, err = host.ApplyTransaction(signedTx(t, key, 1, mustCall(t, types.ModuleLedger, MethodBurn, BurnArgs{Amount: "1", Holder: bech(signer)})))
	require.NoError(t, err)
	_, sealedRoot, err := host.Seal()
	require.NoError(t, err)

	report, err := Replay(j, nil)
	require.NoError(t, err)
	require.Equal(t, 3, report.Entries)
	require.Equal(t, 2, report.VerifiedRoots)
	require.Equal(t, sealedRoot, report.Root)

	require.NoError(t, j.RecordRoot(0, [32]byte{0xde, 0xad}))
	_, err = Replay(j, nil)
	require.ErrorIs(t, err, ErrRootMismatch)
}

func TestSealResumesAtNextHeight(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	host, err := NewHost(db, WithMetrics(nil))
	require.NoError(t, err)
	require.NoError(t, host.Genesis(GenesisConfig{LedgerOwner: owner, BookingOwner: owner}))
	require.NoError(t, host.AdvanceHeight(7))
	sealed, root, err := host.Seal()
	require.NoError(t, err)
	require.Equal(t, uint64(7), sealed)

	reopened, err := NewHost(db, WithMetrics(nil))
	require.NoError(t, err)
	require.Equal(t, uint64(8), reopened.Height())
	require.Equal(t, root, reopened.PendingRoot())
}

type brokenRecorder struct {
	appendErr error
	rootErr   error
}

func (r *brokenRecorder) RecordGenesis([]byte) error { return nil }

func (r *brokenRecorder) Append(journal.Entry) (uint64, error) { return 0, r.appendErr }

func (r *brokenRecorder) RecordRoot(uint64, common.Hash) error { return r.rootErr }

func TestJournalFailureRejectsCall(t *testing.T) {
	diskFull := errors.New("disk full")
	sink := &collector{}
	host := newTestHost(t, WithEmitter(sink), WithRecorder(&brokenRecorder{appendErr: diskFull}))
	before := host.PendingRoot()

	_, err := host.Execute(owner, mustCall(t, types.ModuleLedger, MethodMint, MintArgs{Amount: "5", Recipient: bech(requester)}))
	require.ErrorIs(t, err, diskFull)
	require.Equal(t, before, host.PendingRoot())
	require.Empty(t, sink.events)

	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	signer := key.PubKey().Address().Array()
	// Neither a succeeding nor a failing transaction consumes its nonce.
	create := mustCall(t, types.ModuleBooking, MethodCreateBooking, CreateBookingArgs{Provider: bech(provider), Credits: 1, Deadline: 10})
	_, err = host.ApplyTransaction(signedTx(t, key, 0, create))
	require.ErrorIs(t, err, diskFull)
	mint := mustCall(t, types.ModuleLedger, MethodMint, MintArgs{Amount: "1", Recipient: bech(signer)})
	_, err = host.ApplyTransaction(signedTx(t, key, 0, mint))
	require.ErrorIs(t, err, diskFull)

	nonce, err := host.Nonce(signer)
	require.NoError(t, err)
	require.Zero(t, nonce)
	require.Equal(t, before, host.PendingRoot())
}

func TestJournalRootFailureFailsSeal(t *testing.T) {
	host := newTestHost(t, WithRecorder(&brokenRecorder{rootErr: errors.New("read-only journal")}))
	height := host.Height()

	_, _, err := host.Seal()
	require.Error(t, err)
	require.Equal(t, height, host.Height())
}
