// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rundir manages the on-disk tree for a single run: its
// layout, input staging, and teardown of scratch space.
package rundir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
	"gopkg.in/yaml.v3"
)

// Dir is the directory tree for one run.
type Dir struct {
	Root string // base_dir/runs/<workflow_name>/<version>/<run_id>
}

// New computes the run directory path for the given identity. It does
// not touch the filesystem; call Create to materialize it.
func New(baseDir, workflowName, version, runID string) Dir {
	return Dir{Root: filepath.Join(baseDir, "runs", workflowName, version, runID)}
}

func (d Dir) Inputs() string { return filepath.Join(d.Root, "inputs") }
func (d Dir) Outputs() string { return filepath.Join(d.Root, "outputs") }
func (d Dir) Logs() string    { return filepath.Join(d.Root, "logs") }
func (d Dir) Tmp() string     { return filepath.Join(d.Root, "tmp") }

// WorkflowCopyPath is the path the validated definition is copied to.
func (d Dir) WorkflowCopyPath() string { return filepath.Join(d.Root, "workflow.yaml") }

// LogPath returns the per-step log path for the given step name.
func (d Dir) LogPath(step string) string {
	return filepath.Join(d.Logs(), step+".log")
}

// Create makes the run directory tree and writes a copy of def into
// workflow.yaml.
func Create(baseDir, workflowName, version, runID string, def *workflow.Definition) (Dir, error) {
	d := New(baseDir, workflowName, version, runID)

	for _, sub := range []string{d.Root, d.Inputs(), d.Outputs(), d.Logs(), d.Tmp()} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return Dir{}, fmt.Errorf("create run directory %s: %w", sub, err)
		}
	}

	encoded, err := yaml.Marshal(def)
	if err != nil {
		return Dir{}, fmt.Errorf("encode workflow copy: %w", err)
	}
	if err := os.WriteFile(d.WorkflowCopyPath(), encoded, 0o644); err != nil {
		return Dir{}, fmt.Errorf("write workflow copy: %w", err)
	}

	return d, nil
}

// StageInputs expands each declared input's glob pattern against
// workDir and materializes every match into inputs/<name>/..., preferring
// a symlink and falling back to a byte-wise copy when linking fails.
// Absolute paths are used as-is without glob expansion.
func (d Dir) StageInputs(workDir string, inputs map[string]workflow.InputDeclaration) error {
	for name, decl := range inputs {
		matches, err := resolveMatches(workDir, decl.Path)
		if err != nil {
			return &bioerrors.InputStagingError{Input: name, Path: decl.Path, Cause: err}
		}
		if len(matches) == 0 {
			return &bioerrors.InputStagingError{Input: name, Path: decl.Path, Cause: fmt.Errorf("no files matched")}
		}

		destDir := filepath.Join(d.Inputs(), name)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return &bioerrors.InputStagingError{Input: name, Path: decl.Path, Cause: err}
		}

		for _, src := range matches {
			dest := filepath.Join(destDir, filepath.Base(src))
			if err := materialize(src, dest); err != nil {
				return &bioerrors.InputStagingError{Input: name, Path: src, Cause: err}
			}
		}
	}
	return nil
}

// resolveMatches expands pattern against workDir via doublestar glob
// semantics, or returns the path unchanged if it is already absolute.
func resolveMatches(workDir, pattern string) ([]string, error) {
	if filepath.IsAbs(pattern) {
		if _, err := os.Stat(pattern); err != nil {
			return nil, err
		}
		return []string{pattern}, nil
	}

	fsys := os.DirFS(workDir)
	rel := filepath.ToSlash(pattern)
	matches, err := doublestar.Glob(fsys, rel)
	if err != nil {
		return nil, err
	}

	absolute := make([]string, len(matches))
	for i, m := range matches {
		absolute[i] = filepath.Join(workDir, m)
	}
	return absolute, nil
}

// materialize links src at dest, falling back to a byte-wise copy when
// the platform or filesystem does not support symlinks.
func materialize(src, dest string) error {
	if err := os.Symlink(src, dest); err == nil {
		return nil
	}
	return copyFile(src, dest)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}

// ExistingOutputs lists the relative paths currently present under
// outputs/, used by the step runner to compute a before/after diff.
func (d Dir) ExistingOutputs() (map[string]struct{}, error) {
	return listFiles(d.Outputs())
}

// NewOutputsSince returns the relative paths under outputs/ that are not
// present in before.
func (d Dir) NewOutputsSince(before map[string]struct{}) ([]string, error) {
	after, err := listFiles(d.Outputs())
	if err != nil {
		return nil, err
	}
	var produced []string
	for path := range after {
		if _, existed := before[path]; !existed {
			produced = append(produced, path)
		}
	}
	return produced, nil
}

func listFiles(root string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		found[rel] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// CleanTmp removes and recreates tmp/, discarding scratch space at run
// end.
func (d Dir) CleanTmp() error {
	if err := os.RemoveAll(d.Tmp()); err != nil {
		return err
	}
	return os.MkdirAll(d.Tmp(), 0o755)
}
