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

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdimitrov/go-tuf-metadata-client/metadata"
	"github.com/rdimitrov/go-tuf-metadata-client/metadata/config"
)

func TestNewDefaults(t *testing.T) {
	cfg := config.New()
	require.NoError(t, cfg.Validate())
	assert.EqualValues(t, metadata.DefaultRootMaxLength, cfg.RootMaxLength)
	assert.EqualValues(t, metadata.DefaultTimestampMaxLength, cfg.TimestampMaxLength)
	assert.EqualValues(t, metadata.DefaultSnapshotMaxLength, cfg.SnapshotMaxLength)
	assert.EqualValues(t, metadata.DefaultTargetsMaxLength, cfg.TargetsMaxLength)
	assert.EqualValues(t, metadata.DefaultMaxRootRotations, cfg.MaxRootRotations)
	assert.EqualValues(t, metadata.DefaultMaxDelegations, cfg.MaxDelegations)
	assert.True(t, cfg.PrefixTargetsWithHash)
}

func TestValidateRejectsNonPositiveCaps(t *testing.T) {
	cases := []func(*config.UpdaterConfig){
		func(c *config.UpdaterConfig) { c.RootMaxLength = 0 },
		func(c *config.UpdaterConfig) { c.TimestampMaxLength = -1 },
		func(c *config.UpdaterConfig) { c.SnapshotMaxLength = 0 },
		func(c *config.UpdaterConfig) { c.TargetsMaxLength = 0 },
		func(c *config.UpdaterConfig) { c.MaxRootRotations = 0 },
		func(c *config.UpdaterConfig) { c.MaxDelegations = 0 },
	}
	for _, mutate := range cases {
		cfg := config.New()
		mutate(cfg)
		err := cfg.Validate()
		require.Error(t, err)
		var invalid metadata.ErrConfigInvalid
		assert.ErrorAs(t, err, &invalid)
	}
}
