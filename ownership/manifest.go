package ownership

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/oreonproject/pax"
)

// ManifestPath returns the canonical manifest path for pkgName under
// manifestDir.
func ManifestPath(manifestDir, pkgName string) string {
	return filepath.Join(manifestDir, pkgName+".yaml")
}

// LoadManifest reads and decodes a [pax.FileManifest] from path.
func LoadManifest(path string) (*pax.FileManifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ownership: reading manifest %s: %w", path, err)
	}
	var m pax.FileManifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("ownership: decoding manifest %s: %w", path, err)
	}
	return &m, nil
}

// SaveManifest writes m to manifestDir atomically (write-temp-then-rename,
// spec.md §4.7 step 7).
func SaveManifest(manifestDir string, m *pax.FileManifest) error {
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		return fmt.Errorf("ownership: creating %s: %w", manifestDir, err)
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("ownership: encoding manifest: %w", err)
	}
	path := ManifestPath(manifestDir, m.PackageName)
	tmp, err := os.CreateTemp(manifestDir, ".manifest-*.tmp")
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
	return os.Rename(tmp.Name(), path)
}

// RemoveManifest deletes pkgName's manifest file, if present.
func RemoveManifest(manifestDir, pkgName string) error {
	err := os.Remove(ManifestPath(manifestDir, pkgName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// maxBackupsPerFile is how many timestamped backups BackupAndOverwrite
// retains per original path before sweeping the oldest (spec.md §4.6:
// "retains only the 10 most recent backups").
const maxBackupsPerFile = 10

// BackupAndOverwrite moves the file at existingPath into
// "<backupDir>/<basename>_<unix_epoch>" and sweeps older backups for the
// same basename beyond [maxBackupsPerFile], implementing the
// --allow-overwrite policy of spec.md §4.6.
func BackupAndOverwrite(backupDir, existingPath string) (backupPath string, err error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("ownership: creating backup dir: %w", err)
	}
	base := filepath.Base(existingPath)
	backupPath = filepath.Join(backupDir, fmt.Sprintf("%s_%d", base, time.Now().Unix()))
	if err := os.Rename(existingPath, backupPath); err != nil {
		return "", fmt.Errorf("ownership: backing up %s: %w", existingPath, err)
	}
	if err := sweepBackups(backupDir, base); err != nil {
		return backupPath, err
	}
	return backupPath, nil
}

func sweepBackups(backupDir, base string) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return fmt.Errorf("ownership: reading backup dir: %w", err)
	}
	type candidate struct {
		name  string
		epoch int64
	}
	var matches []candidate
	prefix := base + "_"
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		epochStr := strings.TrimPrefix(e.Name(), prefix)
		epoch, err := strconv.ParseInt(epochStr, 10, 64)
		if err != nil {
			continue
		}
		matches = append(matches, candidate{name: e.Name(), epoch: epoch})
	}
	if len(matches) <= maxBackupsPerFile {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].epoch > matches[j].epoch })
	for _, c := range matches[maxBackupsPerFile:] {
		if err := os.Remove(filepath.Join(backupDir, c.name)); err != nil {
			return fmt.Errorf("ownership: sweeping backup %s: %w", c.name, err)
		}
	}
	return nil
}
