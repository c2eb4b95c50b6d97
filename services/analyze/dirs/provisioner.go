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
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/tabgrid/pkg/logging"
)

// DefaultDirName is the directory created under the home or working
// directory when no output root is requested.
const DefaultDirName = "tabgrid-outputs"

// ProgramDirs is the resolved output layout for one run.
//
// A zero Root means in-memory mode: no directory exists and persistence
// is a no-op. Callers must check InMemory before touching any path.
type ProgramDirs struct {
	Root string

	// MemoCache holds the memoization store. It is listed here but not
	// pre-created; the store owns its own directory lifecycle.
	MemoCache string

	Inspection   string
	Features     string
	Associations string
	Predictions  string
	Selection    string
	Tuning       string
	Results      string

	// NeedsClean marks a temporary root that should be deleted at
	// process exit.
	NeedsClean bool
}

// InMemory reports whether results are held in memory only.
func (d *ProgramDirs) InMemory() bool {
	return d.Root == ""
}

// Cleanup removes the root if it was provisioned as a temporary
// directory. Safe to call in all modes; a no-op unless NeedsClean.
func (d *ProgramDirs) Cleanup() error {
	if !d.NeedsClean || d.Root == "" {
		return nil
	}
	return os.RemoveAll(d.Root)
}

// ProvisionerOption is a functional option for configuring Provisioner.
type ProvisionerOption func(*Provisioner)

// Provisioner resolves a writable output root and materializes the
// fixed subdirectory tree beneath it.
//
// Thread Safety: Provisioner is immutable after construction. Provision
// is expected to be called once at startup, before the run loop.
type Provisioner struct {
	logger  *logging.Logger
	homeDir func() (string, error)
	workDir func() (string, error)
	tempDir func() (string, error)
}

// NewProvisioner creates a Provisioner using the real home, working,
// and temporary directory locations unless overridden by options.
func NewProvisioner(logger *logging.Logger, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		logger:  logger,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
		tempDir: func() (string, error) { return os.MkdirTemp("", "tabgrid_tmp") },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Default()
	}
	return p
}

// WithHomeDir overrides the home directory locator.
func WithHomeDir(fn func() (string, error)) ProvisionerOption {
	return func(p *Provisioner) { p.homeDir = fn }
}

// WithWorkDir overrides the working directory locator.
func WithWorkDir(fn func() (string, error)) ProvisionerOption {
	return func(p *Provisioner) { p.workDir = fn }
}

// WithTempDir overrides the temporary directory factory.
func WithTempDir(fn func() (string, error)) ProvisionerOption {
	return func(p *Provisioner) { p.tempDir = fn }
}

// Provision resolves the output root and materializes the subdirectory
// tree. This is the entrypoint most callers want; Resolve and
// Materialize are exposed separately for finer control.
func (p *Provisioner) Provision(requested string) (*ProgramDirs, error) {
	root, needsClean, err := p.Resolve(requested)
	if err != nil {
		return nil, err
	}
	return p.Materialize(root, needsClean), nil
}

// Resolve walks the fallback chain and returns the chosen root.
//
// Outputs:
//   - root: absolute path of the writable root, or "" for in-memory mode
//   - needsClean: true when root is a temporary directory the caller
//     must delete at exit
//   - err: non-nil only for an explicitly requested root that is not
//     writable
func (p *Provisioner) Resolve(requested string) (root string, needsClean bool, err error) {
	if requested != "" {
		if err := ensureWritable(requested); err != nil {
			return "", false, fmt.Errorf("%w: %s: %v", ErrRootNotWritable, requested, err)
		}
		return requested, false, nil
	}

	if home, err := p.homeDir(); err == nil {
		candidate := filepath.Join(home, DefaultDirName)
		if err := ensureWritable(candidate); err == nil {
			return candidate, false, nil
		}
		p.logger.Warn("home output location is not writable, trying working directory",
			"path", candidate)
	} else {
		p.logger.Warn("could not locate home directory, trying working directory",
			"error", err)
	}

	if cwd, err := p.workDir(); err == nil {
		candidate := filepath.Join(cwd, DefaultDirName)
		if err := ensureWritable(candidate); err == nil {
			return candidate, false, nil
		}
		p.logger.Warn("working-directory output location is not writable, trying a temporary directory",
			"path", candidate)
	} else {
		p.logger.Warn("could not determine working directory, trying a temporary directory",
			"error", err)
	}

	tmp, err := p.tempDir()
	if err == nil {
		if werr := ensureWritable(tmp); werr == nil {
			p.logger.Warn("no default output location was writable, created a temporary directory; "+
				"it will be deleted at exit", "path", tmp)
			return tmp, true, nil
		}
		err = fmt.Errorf("temporary directory %s is not writable", tmp)
	}
	p.logger.Warn("could not create a temporary directory, holding results in memory; "+
		"nothing will be persisted", "error", err)
	return "", false, nil
}

// Materialize creates the fixed subdirectory tree under root and
// returns the resulting layout.
//
// Behavior:
//   - an empty root returns the in-memory layout unchanged
//   - creation is idempotent; existing directories are reused
//   - any single creation failure degrades the whole layout to
//     in-memory mode, so callers never observe a partial tree
func (p *Provisioner) Materialize(root string, needsClean bool) *ProgramDirs {
	if root == "" {
		return &ProgramDirs{}
	}

	d := &ProgramDirs{
		Root:         root,
		MemoCache:    filepath.Join(root, "memocache"),
		Inspection:   filepath.Join(root, "inspection"),
		Features:     filepath.Join(root, "features"),
		Associations: filepath.Join(root, "features", "associations"),
		Predictions:  filepath.Join(root, "features", "predictions"),
		Selection:    filepath.Join(root, "selection"),
		Tuning:       filepath.Join(root, "tuning"),
		Results:      filepath.Join(root, "results"),
		NeedsClean:   needsClean,
	}

	// MemoCache is skipped: the memo store creates it on open.
	for _, dir := range []string{
		d.Inspection, d.Associations, d.Predictions,
		d.Selection, d.Tuning, d.Results,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			p.logger.Warn("could not create output directories, holding results in memory",
				"path", dir, "error", err)
			return &ProgramDirs{}
		}
	}
	return d
}

// ensureWritable creates the directory if needed and verifies writes
// succeed by creating and removing a probe file. A bare permission-bit
// check misreports on some filesystems and when running as root.
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".tabgrid-probe-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Remove(name)
}
