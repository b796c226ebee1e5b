package builder

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime/trace"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/quay/zlog"
	"gopkg.in/yaml.v2"

	"github.com/oreonproject/pax/adapter"
	"github.com/oreonproject/pax/adapter/tarball"
)

const defaultBuildScript = "./configure --prefix=/usr && make -j$(nproc) && make install DESTDIR=$PAX_BUILD_ROOT"

// Build downloads r's source, verifies its hash, runs the build script
// against a scratch install root, and packages the result into a .pax
// archive under outDir. It returns the archive's path.
func Build(ctx context.Context, r *Recipe, client *http.Client, workDir, outDir string) (string, error) {
	defer trace.StartRegion(ctx, "builder.Build").End()

	buildDir, err := os.MkdirTemp(workDir, fmt.Sprintf("pax-build-%s-*", r.Name))
	if err != nil {
		return "", fmt.Errorf("builder: create build dir: %w", err)
	}
	defer os.RemoveAll(buildDir)

	zlog.Info(ctx).Str("package", r.Name).Str("source", r.SourceURL).Msg("downloading source")
	srcPath, err := downloadSource(ctx, client, r.SourceURL, buildDir)
	if err != nil {
		return "", err
	}

	sum, err := sha256File(srcPath)
	if err != nil {
		return "", fmt.Errorf("builder: hash source: %w", err)
	}
	if r.Hash != "" {
		want := strings.TrimPrefix(r.Hash, "sha256:")
		if !strings.EqualFold(want, sum) {
			return "", fmt.Errorf("builder: hash mismatch for %s: want %s, got %s", r.Name, want, sum)
		}
	}
	zlog.Debug(ctx).Str("sha256", sum).Msg("source hash")

	extractDir := filepath.Join(buildDir, "src")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", fmt.Errorf("builder: create extract dir: %w", err)
	}
	ta := tarball.New(srcPath, r.Name, r.Version)
	if _, err := ta.ExtractFiles(ctx, extractDir); err != nil {
		return "", fmt.Errorf("builder: extract source: %w", err)
	}

	buildRoot := filepath.Join(buildDir, "install")
	if err := os.MkdirAll(buildRoot, 0o755); err != nil {
		return "", fmt.Errorf("builder: create install root: %w", err)
	}

	script := r.Build
	if script == "" {
		script = defaultBuildScript
	}
	env := adapter.Env{Package: r.Name, Version: r.Version, BuildRoot: buildRoot}
	if err := runInDir(ctx, extractDir, script, env); err != nil {
		return "", fmt.Errorf("builder: build %s: %w", r.Name, err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("builder: create output dir: %w", err)
	}
	archivePath := filepath.Join(outDir, fmt.Sprintf("%s-%s.pax", r.Name, r.Version))
	if err := packageArchive(r, buildRoot, archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

// runInDir runs script with cwd set to dir, which [adapter.RunShell] does
// not support directly (it only sets environment), so the working
// directory change is expressed as a cd prefix in the shell fragment.
func runInDir(ctx context.Context, dir, script string, env adapter.Env) error {
	return adapter.RunShell(ctx, fmt.Sprintf("cd %q && { %s; }", dir, script), env)
}

func downloadSource(ctx context.Context, client *http.Client, url, dir string) (string, error) {
	name := filepath.Base(url)
	if name == "" || name == "." || name == "/" {
		name = "source.tar.gz"
	}
	dst := filepath.Join(dir, name)

	if strings.HasPrefix(url, "file://") {
		src, err := os.Open(strings.TrimPrefix(url, "file://"))
		if err != nil {
			return "", fmt.Errorf("builder: open local source: %w", err)
		}
		defer src.Close()
		out, err := os.Create(dst)
		if err != nil {
			return "", err
		}
		defer out.Close()
		if _, err := io.Copy(out, src); err != nil {
			return "", fmt.Errorf("builder: copy local source: %w", err)
		}
		return dst, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("builder: download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("builder: download source: unexpected status %s", resp.Status)
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("builder: write source: %w", err)
	}
	return dst, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// packageArchive writes root's contents plus r's .paxmeta into a
// zstd-compressed tar at dest, the inverse of what adapter/pax.Adapter
// reads back.
func packageArchive(r *Recipe, root, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("builder: create archive: %w", err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("builder: zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	meta, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("builder: marshal .paxmeta: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: ".paxmeta", Mode: 0o644, Size: int64(len(meta))}); err != nil {
		return err
	}
	if _, err := tw.Write(meta); err != nil {
		return err
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return tw.WriteHeader(&tar.Header{
				Name: rel, Typeflag: tar.TypeSymlink, Linkname: target,
				Mode: int64(info.Mode().Perm()),
			})
		case d.IsDir():
			return tw.WriteHeader(&tar.Header{
				Name: rel + "/", Typeflag: tar.TypeDir, Mode: int64(info.Mode().Perm()),
			})
		default:
			if err := tw.WriteHeader(&tar.Header{
				Name: rel, Typeflag: tar.TypeReg, Mode: int64(info.Mode().Perm()), Size: info.Size(),
			}); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(tw, f)
			return err
		}
	})
}
