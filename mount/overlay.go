package mount

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Overlay is an acquired, writable root layered over the real root. It
// owns a teardown stack unwound in reverse order of acquisition; Release
// is idempotent and safe to call after a partially failed acquisition.
type Overlay struct {
	// Root is the assembled overlay mount target.
	Root string
	// ScratchDir backs the overlay's upper and work directories. Space
	// consumed here is reclaimed on release.
	ScratchDir string

	mu       sync.Mutex
	released bool
	teardown []func() error
}

// OnRelease pushes a teardown step. Steps run in reverse push order.
func (o *Overlay) OnRelease(fn func() error) {
	o.mu.Lock()
	o.teardown = append(o.teardown, fn)
	o.mu.Unlock()
}

// Release unwinds the teardown stack. Every step runs even if an earlier
// one fails; the first error is returned. Calling Release again is a
// no-op.
func (o *Overlay) Release() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.released {
		return nil
	}
	o.released = true

	var firstErr error
	for i := len(o.teardown) - 1; i >= 0; i-- {
		if err := o.teardown[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.teardown = nil
	return firstErr
}

// Provisioner produces a writable, reclaimable overlay root for the
// staged stages.
type Provisioner interface {
	Acquire(ctx context.Context) (*Overlay, error)
}

// WithOverlay acquires an overlay, runs fn, and guarantees release before
// returning. When fn fails, its error wins over any release error; when
// fn succeeds, a release failure is surfaced so leaked mounts are not
// silent.
func WithOverlay(ctx context.Context, p Provisioner, fn func(*Overlay) error) (err error) {
	ovl, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		rerr := ovl.Release()
		if err == nil {
			err = rerr
		}
	}()
	return fn(ovl)
}

// OverlayProvisioner assembles a kernel overlayfs of the host root backed
// by a scratch directory.
type OverlayProvisioner struct {
	// Target is the directory the overlay is mounted on.
	Target string
	// ScratchDir hosts the upper and work directories.
	ScratchDir string
	// LowerDir is the read-only layer; defaults to the real root.
	LowerDir string

	// runCmd executes mount/umount; overridable for tests.
	runCmd func(ctx context.Context, argv []string) error
}

// NewOverlayProvisioner returns a provisioner mounting an overlay of the
// real root on target, backed by scratchDir.
func NewOverlayProvisioner(target, scratchDir string) *OverlayProvisioner {
	return &OverlayProvisioner{
		Target:     target,
		ScratchDir: scratchDir,
		LowerDir:   "/",
	}
}

// Acquire creates the scratch layout and mounts the overlay. On failure
// the returned error reflects the failing step; any partially acquired
// state is released before returning.
func (p *OverlayProvisioner) Acquire(ctx context.Context) (*Overlay, error) {
	upper := filepath.Join(p.ScratchDir, "upper")
	work := filepath.Join(p.ScratchDir, "work")

	ovl := &Overlay{Root: p.Target, ScratchDir: p.ScratchDir}

	for _, dir := range []string{upper, work, p.Target} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create overlay dir %s: %w", dir, err)
		}
	}
	ovl.OnRelease(func() error { return os.RemoveAll(p.ScratchDir) })

	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", p.LowerDir, upper, work)
	if err := p.run(ctx, []string{"mount", "-t", "overlay", "overlay", "-o", opts, p.Target}); err != nil {
		_ = ovl.Release()
		return nil, fmt.Errorf("mount overlay on %s: %w", p.Target, err)
	}
	ovl.OnRelease(func() error {
		return p.run(context.WithoutCancel(ctx), []string{"umount", p.Target})
	})

	return ovl, nil
}

func (p *OverlayProvisioner) run(ctx context.Context, argv []string) error {
	if p.runCmd != nil {
		return p.runCmd(ctx, argv)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", argv[0], err, string(out))
	}
	return nil
}
