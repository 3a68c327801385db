package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hourbank/config"
	"hourbank/core"
	"hourbank/core/types"
	"hourbank/crypto"
	"hourbank/storage"
	"hourbank/storage/journal"
)

func TestKeygenPrintsAddress(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"keygen"}, &out))
	require.Contains(t, out.String(), "address: hour1")
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run([]string{"-config", "x.toml"}, &out))
	require.Error(t, run([]string{"explode"}, &out))
	require.Error(t, run([]string{"replay"}, &out))
}

func TestGenesisFromConfigUsesOperatorFallback(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOURBANK_KEYSTORE_PASSPHRASE", "pass")
	cfg, err := config.Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	key, err := cfg.OperatorKey()
	require.NoError(t, err)

	explicit := crypto.FromArray([20]byte{0x07})
	cfg.Booking.Owner = explicit.String()

	genesis, err := genesisFromConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Array(), genesis.LedgerOwner)
	require.Equal(t, explicit.Array(), genesis.BookingOwner)
	require.Equal(t, "HTC", genesis.Symbol)
}

func TestReplayCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path, nil)
	require.NoError(t, err)

	db := storage.NewMemDB()
	defer db.Close()
	host, err := core.NewHost(db, core.WithRecorder(j), core.WithMetrics(nil))
	require.NoError(t, err)
	owner := [20]byte{0x01}
	require.NoError(t, host.Genesis(core.GenesisConfig{LedgerOwner: owner, BookingOwner: owner}))
	call, err := types.NewCall(types.ModuleLedger, core.MethodMint, core.MintArgs{Amount: "10", Recipient: crypto.FromArray(owner).String()})
	require.NoError(t, err)
	_, err = host.Execute(owner, call)
	require.NoError(t, err)
	_, _, err = host.Seal()
	require.NoError(t, err)
	require.NoError(t, j.Close())

	var out bytes.Buffer
	require.NoError(t, run([]string{"replay", "-journal", path}, &out))
	require.True(t, strings.HasPrefix(out.String(), "replayed 1 calls, verified 1 roots"), out.String())
}
