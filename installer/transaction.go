package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v2"

	paxmodel "github.com/oreonproject/pax"
	"github.com/oreonproject/pax/internal/metrics"
	"github.com/oreonproject/pax/ownership"
)

// maxTransactions is how many transaction log entries are retained before
// the oldest are swept (spec.md §4.9: "50 most recent retention").
const maxTransactions = 50

func transactionsDir(metaDir string) string { return filepath.Join(metaDir, "transactions") }

func transactionPath(metaDir, id string) string {
	return filepath.Join(transactionsDir(metaDir), id+".yaml")
}

// appendTransaction writes tx to the transaction log and sweeps anything
// beyond [maxTransactions], oldest first.
func appendTransaction(metaDir string, tx paxmodel.Transaction) error {
	dir := transactionsDir(metaDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("installer: create transactions dir: %w", err)
	}
	b, err := yaml.Marshal(tx)
	if err != nil {
		return fmt.Errorf("installer: encode transaction: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tx-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), transactionPath(metaDir, tx.ID)); err != nil {
		return err
	}
	return sweepTransactions(metaDir)
}

func sweepTransactions(metaDir string) error {
	entries, err := os.ReadDir(transactionsDir(metaDir))
	if err != nil {
		return err
	}
	type withTime struct {
		name string
		mod  int64
	}
	var txs []withTime
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		txs = append(txs, withTime{name: e.Name(), mod: info.ModTime().UnixNano()})
	}
	if len(txs) <= maxTransactions {
		return nil
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].mod > txs[j].mod })
	for _, t := range txs[maxTransactions:] {
		os.Remove(filepath.Join(transactionsDir(metaDir), t.name))
	}
	return nil
}

// LoadTransaction reads one transaction by ID.
func LoadTransaction(metaDir, id string) (*paxmodel.Transaction, error) {
	b, err := os.ReadFile(transactionPath(metaDir, id))
	if err != nil {
		return nil, fmt.Errorf("installer: reading transaction %s: %w", id, err)
	}
	var tx paxmodel.Transaction
	if err := yaml.Unmarshal(b, &tx); err != nil {
		return nil, fmt.Errorf("installer: decoding transaction %s: %w", id, err)
	}
	return &tx, nil
}

// Rollback reverses every operation in transaction id, in reverse order,
// and marks it RolledBack. Calling Rollback again on an already-RolledBack
// transaction is a no-op that returns success without touching the
// filesystem again (spec.md §4.9, testable property 6: rollback
// idempotency).
func (i *Installer) Rollback(ctx context.Context, id string) (err error) {
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		metrics.TransactionOutcomes.WithLabelValues("rollback_" + outcome).Inc()
	}()

	tx, err := LoadTransaction(i.MetaDir, id)
	if err != nil {
		return err
	}
	if tx.Status == paxmodel.StatusRolledBack {
		return nil
	}

	for j := len(tx.Operations) - 1; j >= 0; j-- {
		if err := i.reverseOperation(ctx, tx.Operations[j]); err != nil {
			return &paxmodel.Error{Kind: paxmodel.ErrRollback, Op: "installer.Rollback", Message: fmt.Sprintf("transaction %s operation %d", id, j), Inner: err}
		}
	}

	tx.Status = paxmodel.StatusRolledBack
	return appendTransaction(i.MetaDir, *tx)
}

// reverseOperation undoes one [paxmodel.PackageOperation] per its Type: an
// Install is reversed by removing its files, a Remove or Purge by restoring
// from its backup. An Upgrade or Downgrade is reversed by removing the new
// version's files only; the old version is not reinstalled.
func (i *Installer) reverseOperation(ctx context.Context, op paxmodel.PackageOperation) error {
	switch op.Type {
	case paxmodel.TxInstall:
		return i.removeManifestFiles(op.Name)
	case paxmodel.TxUpgrade, paxmodel.TxDowngrade:
		// The new version's files are removed; the old manifest (if any)
		// was superseded at Record time and cannot be recovered without a
		// prior backup, so this degrades to a removal of the new version.
		return i.removeManifestFiles(op.Name)
	case paxmodel.TxRemove, paxmodel.TxPurge:
		return i.restoreFromBackup(op)
	default:
		return fmt.Errorf("installer: unknown transaction type %q", op.Type)
	}
}

func (i *Installer) removeManifestFiles(name string) error {
	m, err := ownership.LoadManifest(ownership.ManifestPath(i.manifestDir(), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, f := range m.Files {
		if !underCriticalDir(i.Root, f.Path) {
			os.Remove(f.Path)
		}
	}
	for _, s := range m.Symlinks {
		if !underCriticalDir(i.Root, s.Path) {
			os.Remove(s.Path)
		}
	}
	for j := len(m.Directories) - 1; j >= 0; j-- {
		d := m.Directories[j]
		if underCriticalDir(i.Root, d.Path) {
			continue
		}
		os.Remove(d.Path) // no-op if non-empty
	}
	return ownership.RemoveManifest(i.manifestDir(), name)
}

// restoreFromBackup restores a package removed by [Installer.Remove], using
// the manifest and file-content snapshot [snapshotManifest] wrote into
// op.BackupDir before deletion.
func (i *Installer) restoreFromBackup(op paxmodel.PackageOperation) error {
	if op.BackupDir == "" {
		return nil
	}
	m, err := ownership.LoadManifest(ownership.ManifestPath(op.BackupDir, op.Name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, d := range m.Directories {
		if err := os.MkdirAll(d.Path, os.FileMode(d.Permissions)); err != nil {
			return fmt.Errorf("installer: restore directory %s: %w", d.Path, err)
		}
	}
	for _, f := range m.Files {
		src := filepath.Join(op.BackupDir, "files", f.Path)
		if err := copyFile(src, f.Path, os.FileMode(f.Permissions)); err != nil {
			return fmt.Errorf("installer: restore file %s: %w", f.Path, err)
		}
	}
	for _, s := range m.Symlinks {
		if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
			return fmt.Errorf("installer: restore symlink %s: %w", s.Path, err)
		}
		os.Remove(s.Path)
		if err := os.Symlink(s.Target, s.Path); err != nil {
			return fmt.Errorf("installer: restore symlink %s: %w", s.Path, err)
		}
	}

	return ownership.SaveManifest(i.manifestDir(), m)
}
