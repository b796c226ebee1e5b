// Package installer implements the transactional install/upgrade/remove
// pipeline of spec.md §4.7 as an explicit finite-state machine, modeled on
// quay/claircore's indexer controller (currentState field, stateToStateFunc
// dispatch table, run loop to a Terminal state).
package installer

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	paxmodel "github.com/oreonproject/pax"
	"github.com/oreonproject/pax/adapter"
	debadapter "github.com/oreonproject/pax/adapter/deb"
	paxadapter "github.com/oreonproject/pax/adapter/pax"
	rpmadapter "github.com/oreonproject/pax/adapter/rpm"
	tarballadapter "github.com/oreonproject/pax/adapter/tarball"
	"github.com/oreonproject/pax/internal/metrics"
	"github.com/oreonproject/pax/ownership"
)

// stateFunc implements the logic of one FSM step. Returning Terminal ends
// the installer in a non-error state; returning an error moves to
// InstallError and triggers rollback of this operation's placed files.
type stateFunc func(context.Context, *op) (State, error)

var stateToStateFunc = map[State]stateFunc{
	AcquireLock:    acquireLock,
	Fetch:          fetch,
	Extract:        extract,
	BuildManifest:  buildManifest,
	CheckConflicts: checkConflicts,
	PlaceFiles:     placeFiles,
	RunLdconfig:    runLdconfig,
	RunScriptlet:   runScriptlet,
	Record:         record,
	Commit:         commit,
}

// Request describes one package to install/upgrade/remove.
type Request struct {
	Name          string
	Version       string
	Kind          paxmodel.AdapterKind
	Origin        paxmodel.OriginKind
	DownloadURL   string
	Type          paxmodel.TransactionType
	OldVersion    string // set for upgrade/downgrade
	AllowOverwrite bool
}

// Installer runs transactional installs against root (empty for the host,
// non-empty when the live-image builder sets PAX_ROOT).
type Installer struct {
	Root     string // PAX_ROOT; "" means the live host
	MetaDir  string
	Client   *http.Client

	lock *fileLock
}

// New constructs an Installer rooted at root, with metadata under metaDir.
func New(root, metaDir string, client *http.Client) *Installer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Installer{Root: root, MetaDir: metaDir, Client: client}
}

// op carries one Request through the FSM, mirroring the "report" field
// claircore's Controller mutates at each stateFunc (controller.go).
type op struct {
	inst *Installer
	ctx  context.Context

	req Request

	fetchedPath string
	stageDir    string
	prospective *paxmodel.FileManifest
	conflicts   []ownership.Conflict
	txOp        paxmodel.PackageOperation
	placedRoot  string // root the files were actually placed under (inst.Root)

	currentState State
	err          error
}

// manifestDir returns where per-package FileManifests live.
func (i *Installer) manifestDir() string { return filepath.Join(i.MetaDir, "manifests") }

// backupDir returns where --allow-overwrite backups live.
func (i *Installer) backupDir() string { return filepath.Join(i.MetaDir, "backups") }

// Install runs the full FSM for req and appends the resulting operation to
// a new single-operation Transaction, recorded and committed.
func (i *Installer) Install(ctx context.Context, req Request) (err error) {
	start := time.Now()
	label := string(req.Type)
	defer func() {
		metrics.InstallDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.TransactionOutcomes.WithLabelValues(outcome).Inc()
	}()

	o := &op{inst: i, ctx: ctx, req: req, currentState: AcquireLock}
	ctx = zlog.ContextWithValues(ctx, "component", "installer.Install", "package", req.Name, "version", req.Version)

	for o.currentState != Terminal {
		sctx := zlog.ContextWithValues(ctx, "state", o.currentState.String())
		fn, ok := stateToStateFunc[o.currentState]
		if !ok {
			return fmt.Errorf("installer: no stateFunc for %s", o.currentState)
		}
		next, err := fn(sctx, o)
		if err != nil {
			zlog.Error(sctx).Err(err).Msg("install step failed, rolling back")
			if rerr := o.rollbackPlaced(sctx); rerr != nil {
				zlog.Error(sctx).Err(rerr).Msg("rollback of partially-placed files also failed")
			}
			return err
		}
		o.currentState = next
	}
	return nil
}

// adapterFor builds the package-format adapter for req, dispatching by
// [paxmodel.AdapterKind] (spec.md §4.3).
func adapterFor(req Request, path string) (adapter.Adapter, error) {
	switch req.Kind {
	case paxmodel.KindPAX:
		return paxadapter.New(path), nil
	case paxmodel.KindDEB:
		return debadapter.New(path), nil
	case paxmodel.KindRPM:
		return rpmadapter.New(path), nil
	case paxmodel.KindTarball:
		return tarballadapter.New(path, req.Name, req.Version), nil
	default:
		return nil, fmt.Errorf("installer: unknown adapter kind %q", req.Kind)
	}
}

func newTxID() string { return uuid.NewString() }
