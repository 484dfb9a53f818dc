// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

// Package config carries the resource caps and knobs an Updater is
// constructed with (spec.md §5): per-role byte limits, root-rotation and
// delegation-depth bounds, and the target-storage convention.
package config

import "github.com/rdimitrov/go-tuf-metadata-client/metadata"

// UpdaterConfig holds the tunables of a single Updater instance. Zero-value
// fields are never used directly; New populates the documented defaults.
type UpdaterConfig struct {
	// RootMaxLength bounds a single root.json fetch.
	RootMaxLength int64
	// TimestampMaxLength bounds a single timestamp.json fetch.
	TimestampMaxLength int64
	// SnapshotMaxLength bounds a single snapshot.json fetch when the
	// timestamp's meta entry does not supply a tighter length.
	SnapshotMaxLength int64
	// TargetsMaxLength bounds a single (possibly delegated) targets.json
	// fetch when the snapshot's meta entry does not supply a tighter length.
	TargetsMaxLength int64
	// MaxRootRotations bounds how many root versions may be walked forward
	// in a single refresh (spec.md §4.5 step 1).
	MaxRootRotations int64
	// MaxDelegations bounds the number of distinct roles the target
	// resolution walk may visit (spec.md §4.6).
	MaxDelegations int
	// PrefixTargetsWithHash controls whether, under consistent snapshots,
	// target download URLs are prefixed with the target's hex digest. Local
	// target filenames are never prefixed, whatever this is set to.
	PrefixTargetsWithHash bool
}

// New returns an UpdaterConfig populated with the resource-cap defaults of
// spec.md §5.
func New() *UpdaterConfig {
	return &UpdaterConfig{
		RootMaxLength:         metadata.DefaultRootMaxLength,
		TimestampMaxLength:    metadata.DefaultTimestampMaxLength,
		SnapshotMaxLength:     metadata.DefaultSnapshotMaxLength,
		TargetsMaxLength:      metadata.DefaultTargetsMaxLength,
		MaxRootRotations:      metadata.DefaultMaxRootRotations,
		MaxDelegations:        metadata.DefaultMaxDelegations,
		PrefixTargetsWithHash: true,
	}
}

// Validate rejects an UpdaterConfig with a non-positive cap or bound, which
// would otherwise make every fetch fail or every resolution walk return
// immediately.
func (c *UpdaterConfig) Validate() error {
	switch {
	case c.RootMaxLength <= 0:
		return metadata.ErrConfigInvalid{Field: "RootMaxLength", Reason: "must be positive"}
	case c.TimestampMaxLength <= 0:
		return metadata.ErrConfigInvalid{Field: "TimestampMaxLength", Reason: "must be positive"}
	case c.SnapshotMaxLength <= 0:
		return metadata.ErrConfigInvalid{Field: "SnapshotMaxLength", Reason: "must be positive"}
	case c.TargetsMaxLength <= 0:
		return metadata.ErrConfigInvalid{Field: "TargetsMaxLength", Reason: "must be positive"}
	case c.MaxRootRotations <= 0:
		return metadata.ErrConfigInvalid{Field: "MaxRootRotations", Reason: "must be positive"}
	case c.MaxDelegations <= 0:
		return metadata.ErrConfigInvalid{Field: "MaxDelegations", Reason: "must be positive"}
	}
	return nil
}
