// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/tabgrid/pkg/logging"
)

// unwritablePath returns a path that can never become a directory: it
// nests under a regular file, so MkdirAll fails even when the test runs
// as root (permission bits alone would not).
func unwritablePath(t *testing.T) string {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	return filepath.Join(blocker, "nested")
}

func newTestProvisioner(t *testing.T, opts ...ProvisionerOption) *Provisioner {
	t.Helper()
	logger := logging.New(logging.Config{Quiet: true})
	t.Cleanup(func() { logger.Close() })
	return NewProvisioner(logger, opts...)
}

func TestResolve_ExplicitRoot(t *testing.T) {
	t.Run("writable", func(t *testing.T) {
		want := filepath.Join(t.TempDir(), "results")
		p := newTestProvisioner(t)

		root, needsClean, err := p.Resolve(want)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if root != want {
			t.Errorf("root = %q, want %q", root, want)
		}
		if needsClean {
			t.Error("needsClean = true for an explicit root")
		}
	})

	t.Run("not writable is fatal", func(t *testing.T) {
		p := newTestProvisioner(t)

		_, _, err := p.Resolve(unwritablePath(t))
		if !errors.Is(err, ErrRootNotWritable) {
			t.Errorf("got %v, want ErrRootNotWritable", err)
		}
	})
}

func TestResolve_FallbackChain(t *testing.T) {
	t.Run("home default", func(t *testing.T) {
		home := t.TempDir()
		p := newTestProvisioner(t,
			WithHomeDir(func() (string, error) { return home, nil }))

		root, needsClean, err := p.Resolve("")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if want := filepath.Join(home, DefaultDirName); root != want {
			t.Errorf("root = %q, want %q", root, want)
		}
		if needsClean {
			t.Error("needsClean = true for the home default")
		}
	})

	t.Run("falls back to working directory", func(t *testing.T) {
		badHome := unwritablePath(t)
		cwd := t.TempDir()
		p := newTestProvisioner(t,
			WithHomeDir(func() (string, error) { return badHome, nil }),
			WithWorkDir(func() (string, error) { return cwd, nil }))

		root, needsClean, err := p.Resolve("")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if want := filepath.Join(cwd, DefaultDirName); root != want {
			t.Errorf("root = %q, want %q", root, want)
		}
		if needsClean {
			t.Error("needsClean = true for the working-directory fallback")
		}
	})

	t.Run("falls back to temporary directory", func(t *testing.T) {
		bad := unwritablePath(t)
		tmp := t.TempDir()
		p := newTestProvisioner(t,
			WithHomeDir(func() (string, error) { return bad, nil }),
			WithWorkDir(func() (string, error) { return bad, nil }),
			WithTempDir(func() (string, error) { return tmp, nil }))

		root, needsClean, err := p.Resolve("")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if root != tmp {
			t.Errorf("root = %q, want %q", root, tmp)
		}
		if !needsClean {
			t.Error("needsClean = false for a temporary root")
		}
	})

	t.Run("degrades to in-memory without error", func(t *testing.T) {
		bad := unwritablePath(t)
		p := newTestProvisioner(t,
			WithHomeDir(func() (string, error) { return bad, nil }),
			WithWorkDir(func() (string, error) { return bad, nil }),
			WithTempDir(func() (string, error) { return "", errors.New("no temp space") }))

		root, needsClean, err := p.Resolve("")
		if err != nil {
			t.Fatalf("Resolve returned an error in the degraded path: %v", err)
		}
		if root != "" {
			t.Errorf("root = %q, want empty (in-memory)", root)
		}
		if needsClean {
			t.Error("needsClean = true in in-memory mode")
		}
	})
}

func TestMaterialize(t *testing.T) {
	t.Run("creates the full tree", func(t *testing.T) {
		root := t.TempDir()
		p := newTestProvisioner(t)

		d := p.Materialize(root, false)
		if d.InMemory() {
			t.Fatal("layout degraded to in-memory for a writable root")
		}

		for _, dir := range []string{
			d.Inspection, d.Associations, d.Predictions,
			d.Selection, d.Tuning, d.Results,
		} {
			info, err := os.Stat(dir)
			if err != nil {
				t.Errorf("stat %s: %v", dir, err)
				continue
			}
			if !info.IsDir() {
				t.Errorf("%s is not a directory", dir)
			}
		}

		// the memo store owns memocache creation
		if _, err := os.Stat(d.MemoCache); !os.IsNotExist(err) {
			t.Errorf("memocache was pre-created: stat err = %v", err)
		}
	})

	t.Run("failure degrades the whole layout", func(t *testing.T) {
		p := newTestProvisioner(t)

		d := p.Materialize(unwritablePath(t), false)
		if !d.InMemory() {
			t.Error("layout not degraded to in-memory after a creation failure")
		}
		if d.Results != "" || d.Inspection != "" {
			t.Error("degraded layout still exposes subdirectory paths")
		}
	})

	t.Run("empty root stays in-memory", func(t *testing.T) {
		p := newTestProvisioner(t)
		if d := p.Materialize("", false); !d.InMemory() {
			t.Error("empty root did not produce an in-memory layout")
		}
	})
}

func TestProgramDirs_Cleanup(t *testing.T) {
	t.Run("removes temporary root", func(t *testing.T) {
		root := t.TempDir()
		d := &ProgramDirs{Root: root, NeedsClean: true}
		if err := d.Cleanup(); err != nil {
			t.Fatalf("Cleanup: %v", err)
		}
		if _, err := os.Stat(root); !os.IsNotExist(err) {
			t.Errorf("temporary root still exists: stat err = %v", err)
		}
	})

	t.Run("leaves durable root alone", func(t *testing.T) {
		root := t.TempDir()
		d := &ProgramDirs{Root: root, NeedsClean: false}
		if err := d.Cleanup(); err != nil {
			t.Fatalf("Cleanup: %v", err)
		}
		if _, err := os.Stat(root); err != nil {
			t.Errorf("durable root was removed: %v", err)
		}
	})

	t.Run("in-memory is a no-op", func(t *testing.T) {
		d := &ProgramDirs{}
		if err := d.Cleanup(); err != nil {
			t.Errorf("Cleanup: %v", err)
		}
	})
}

func TestProvision_EndToEnd(t *testing.T) {
	home := t.TempDir()
	p := newTestProvisioner(t,
		WithHomeDir(func() (string, error) { return home, nil }))

	d, err := p.Provision("")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if d.InMemory() {
		t.Fatal("provisioning degraded with a writable home")
	}
	if d.Root != filepath.Join(home, DefaultDirName) {
		t.Errorf("root = %q, want under %q", d.Root, home)
	}
	if _, err := os.Stat(d.Results); err != nil {
		t.Errorf("results dir missing: %v", err)
	}
}
