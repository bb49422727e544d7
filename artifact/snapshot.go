// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package artifact implements the Artifact Snapshotter & Validator:
// before/after filesystem diffs, pattern-based deliverable mapping,
// substance scoring, project-type inference, and context-aware
// validation against a phase contract.
package artifact

import (
	"io/fs"
	"path/filepath"
	"sort"

	maerr "maestro/platform/shared/errors"
)

// Snapshot is the set of relative file paths under a root directory at a
// point in time.
type Snapshot map[string]struct{}

// TakeSnapshot walks root and captures every regular file's path
// relative to root.
func TakeSnapshot(root string) (Snapshot, error) {
	snap := make(Snapshot)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if fs.ErrNotExist == err || isNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		snap[filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, maerr.Wrap(maerr.KindInternal, err, "failed to snapshot output directory")
	}

	return snap, nil
}

func isNotExist(err error) bool {
	type notExister interface{ IsNotExist() bool }
	if ne, ok := err.(notExister); ok {
		return ne.IsNotExist()
	}
	return false
}

// Diff returns the files present in post but not in pre: the set of
// files added by a persona's execution.
func Diff(pre, post Snapshot) []string {
	var added []string
	for f := range post {
		if _, existed := pre[f]; !existed {
			added = append(added, f)
		}
	}
	sort.Strings(added)
	return added
}
