package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/snapshot"
)

// BackupService exports and restores full-dataset snapshots.
type BackupService struct {
	DB     *sql.DB
	Ledger *LedgerService
	Dir    string
	Gzip   bool
	// Keep is how many files ExportToDir retains; zero keeps everything.
	Keep int
	Log  zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// RestoreReport summarizes a successful restore.
type RestoreReport struct {
	Counts snapshot.Counts
	Recalc []RecalcReport
}

const backupPrefix = "ledgerkeep-"

func (s *BackupService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Snapshot reads the whole dataset inside one transaction.
func (s *BackupService) Snapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	var d snapshot.Data
	err := repository.NewStore(s.DB).Tx(ctx, func(st *repository.Store) error {
		var err error
		if d.Accounts, err = st.Accounts.List(ctx); err != nil {
			return fmt.Errorf("accounts: %w", err)
		}
		if d.Transactions, err = st.Transactions.ListAll(ctx); err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		if d.Checkpoints, err = st.Checkpoints.ListAll(ctx); err != nil {
			return fmt.Errorf("checkpoints: %w", err)
		}
		if d.Budgets, err = st.Budgets.List(ctx); err != nil {
			return fmt.Errorf("budgets: %w", err)
		}
		if d.Goals, err = st.Goals.List(ctx); err != nil {
			return fmt.Errorf("goals: %w", err)
		}
		if d.Recurring, err = st.Recurring.List(ctx, repository.RecurringFilters{}); err != nil {
			return fmt.Errorf("recurring: %w", err)
		}
		if d.Settings, err = st.Settings.List(ctx); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return snapshot.SnapshotV1{}, fmt.Errorf("read dataset: %w", err)
	}
	return snapshot.Build(d, s.now()), nil
}

// Export writes a snapshot to w.
func (s *BackupService) Export(ctx context.Context, w io.Writer, gzip bool) (snapshot.Counts, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return snapshot.Counts{}, err
	}
	if err := snapshot.Encode(w, snap, gzip); err != nil {
		return snapshot.Counts{}, err
	}
	return *snap.Counts, nil
}

// ExportToDir writes a timestamped snapshot file into Dir, prunes old files beyond Keep and
// records the backup time. It returns the written path.
func (s *BackupService) ExportToDir(ctx context.Context) (string, error) {
	if s.Dir == "" {
		return "", fmt.Errorf("backup dir not configured")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	now := s.now()
	name := backupPrefix + now.UTC().Format("20060102-150405") + ".json"
	if s.Gzip {
		name += ".gz"
	}
	path := filepath.Join(s.Dir, name)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	counts, err := s.Export(ctx, f, s.Gzip)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize backup file: %w", err)
	}
	if err := repository.NewSettingRepo(s.DB).Set(ctx, repository.SettingLastBackupAt, now.UTC().Format(time.RFC3339)); err != nil {
		return path, err
	}
	pruned, err := s.prune()
	if err != nil {
		s.Log.Warn().Err(err).Msg("backup prune failed")
	}
	s.Log.Info().
		Str("path", path).
		Int("accounts", counts.Accounts).
		Int("transactions", counts.Transactions).
		Int("pruned", pruned).
		Msg("backup written")
	return path, nil
}

// Backups lists snapshot files in Dir, newest first.
func (s *BackupService) Backups() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, backupPrefix) {
			continue
		}
		if strings.HasSuffix(n, ".json") || strings.HasSuffix(n, ".json.gz") {
			names = append(names, n)
		}
	}
	// the timestamp in the name sorts lexically
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(s.Dir, n)
	}
	return out, nil
}

func (s *BackupService) prune() (int, error) {
	if s.Keep <= 0 {
		return 0, nil
	}
	files, err := s.Backups()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files[min(s.Keep, len(files)):] {
		if err := os.Remove(f); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RestoreReplace replaces every user row with the snapshot contents and recalculates every
// account, all inside one SQL transaction. The snapshot must come from a successful
// validation; a pre-restore backup is the caller's job.
func (s *BackupService) RestoreReplace(ctx context.Context, snap *snapshot.SnapshotV1) (RestoreReport, error) {
	if snap == nil {
		return RestoreReport{}, &RestoreError{Stage: "validate", Err: ErrNothingToRestore}
	}
	data, err := snap.Records()
	if err != nil {
		return RestoreReport{}, &RestoreError{Stage: "convert", Err: err}
	}

	var rep RestoreReport
	stage := "begin"
	err = repository.NewStore(s.DB).Tx(ctx, func(st *repository.Store) error {
		stage = "wipe"
		if err := st.WipeUserData(ctx); err != nil {
			return err
		}
		stage = "accounts"
		for _, a := range data.Accounts {
			if err := st.Accounts.Insert(ctx, a); err != nil {
				return fmt.Errorf("%s: %w", a.ID, err)
			}
		}
		stage = "transactions"
		for i, t := range data.Transactions {
			if i%s.Ledger.batchSize() == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := st.Transactions.Insert(ctx, t); err != nil {
				return fmt.Errorf("%s: %w", t.ID, err)
			}
		}
		stage = "checkpoints"
		for _, c := range data.Checkpoints {
			if err := st.Checkpoints.Insert(ctx, c); err != nil {
				return fmt.Errorf("%s: %w", c.ID, err)
			}
		}
		stage = "recurring"
		for _, r := range data.Recurring {
			if err := st.Recurring.Save(ctx, r); err != nil {
				return fmt.Errorf("%s: %w", r.ID, err)
			}
		}
		stage = "budgets"
		for _, b := range data.Budgets {
			if err := st.Budgets.Upsert(ctx, b); err != nil {
				return fmt.Errorf("%s: %w", b.ID, err)
			}
		}
		stage = "goals"
		for _, g := range data.Goals {
			if err := st.Goals.Upsert(ctx, g); err != nil {
				return fmt.Errorf("%s: %w", g.ID, err)
			}
		}
		stage = "settings"
		for _, kv := range data.Settings {
			if err := st.Settings.Set(ctx, kv.Key, kv.Value); err != nil {
				return fmt.Errorf("%s: %w", kv.Key, err)
			}
		}
		stage = "recalculate"
		reps, err := s.Ledger.recalculateAll(ctx, st)
		if err != nil {
			return err
		}
		rep.Recalc = reps
		return nil
	})
	if err != nil {
		s.Log.Error().Err(err).Str("stage", stage).Msg("restore rolled back")
		return RestoreReport{}, &RestoreError{Stage: stage, Err: err}
	}
	rep.Counts = snapshot.Counts{
		Accounts:           len(data.Accounts),
		Transactions:       len(data.Transactions),
		BalanceCheckpoints: len(data.Checkpoints),
		Budgets:            len(data.Budgets),
		Goals:              len(data.Goals),
		Recurring:          len(data.Recurring),
		Settings:           len(data.Settings),
	}
	s.Log.Info().
		Int("accounts", rep.Counts.Accounts).
		Int("transactions", rep.Counts.Transactions).
		Int("recurring", rep.Counts.Recurring).
		Msg("snapshot restored")
	return rep, nil
}
