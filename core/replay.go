package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"hourbank/storage"
	"hourbank/storage/journal"
)

// ErrRootMismatch is returned when a replayed root differs from the journal.
var ErrRootMismatch = errors.New("replay: state root mismatch")

// ReplayReport summarises a replay run.
type ReplayReport struct {
	Entries       int
	VerifiedRoots int
	Height        uint64
	Root          common.Hash
}

// Replay re-executes every journaled call against fresh in-memory state and
// checks each recorded root. Calls after the last recorded root are applied
// but cannot be verified.
func Replay(j *journal.Journal, logger *slog.Logger) (*ReplayReport, error) {
	if j == nil {
		return nil, fmt.Errorf("replay: journal required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	encoded, err := j.Genesis()
	if err != nil {
		return nil, err
	}
	var genesis GenesisConfig
	if err := json.Unmarshal(encoded, &genesis); err != nil {
		return nil, fmt.Errorf("replay: decode genesis: %w", err)
	}
	roots, err := j.Roots()
	if err != nil {
		return nil, err
	}

	db := storage.NewMemDB()
	defer db.Close()
	host, err := NewHost(db, WithLogger(logger), WithMetrics(nil))
	if err != nil {
		return nil, err
	}
	if err := host.Genesis(genesis); err != nil {
		return nil, err
	}

	report := &ReplayReport{}
	next := 0
	// verifyUpTo commits and checks every recorded root strictly below height.
	verifyUpTo := func(height uint64) error {
		for next < len(roots) && roots[next].Height < height {
			want := roots[next]
			if err := host.AdvanceHeight(want.Height); err != nil {
				return err
			}
			got, err := host.Commit()
			if err != nil {
				return err
			}
			if got != want.Root {
				return fmt.Errorf("%w at height %d: replayed %s journaled %s", ErrRootMismatch, want.Height, got.Hex(), want.Root.Hex())
			}
			report.VerifiedRoots++
			next++
		}
		return nil
	}

	err = j.Entries(func(entry journal.Entry) error {
		if err := verifyUpTo(entry.Height); err != nil {
			return err
		}
		if err := host.AdvanceHeight(entry.Height); err != nil {
			return err
		}
		var err error
		if entry.Tx != nil {
			_, err = host.ApplyTransaction(entry.Tx)
		} else {
			_, err = host.Execute(entry.Caller, entry.Call)
		}
		if err != nil {
			return fmt.Errorf("replay: entry %d: %w", entry.Seq, err)
		}
		report.Entries++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(roots) > 0 {
		if err := verifyUpTo(roots[len(roots)-1].Height + 1); err != nil {
			return nil, err
		}
	}
	report.Height = host.Height()
	report.Root = host.PendingRoot()
	logger.Info("replay finished",
		slog.Int("entries", report.Entries),
		slog.Int("verifiedRoots", report.VerifiedRoots),
		slog.Uint64("height", report.Height))
	return report, nil
}
