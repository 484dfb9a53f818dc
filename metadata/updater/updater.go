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

package updater

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rdimitrov/go-tuf-metadata-client/metadata"
	"github.com/rdimitrov/go-tuf-metadata-client/metadata/config"
	"github.com/rdimitrov/go-tuf-metadata-client/metadata/fetcher"
	"github.com/rdimitrov/go-tuf-metadata-client/metadata/trustedmetadata"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"
)

// roleParentTuple names a role queued for the delegation walk together with
// the parent whose metadata authorizes it, and the chain of ancestor role
// names that led here. Ancestors lets the walk tell a true cycle (a role
// that delegates back to one of its own ancestors) apart from a harmless
// diamond, where two unrelated parents delegate to the same child role name
// - delegations form a DAG, not a tree, so the latter is expected and must
// not error.
type roleParentTuple struct {
	Role      string
	Parent    string
	Ancestors []string
}

// Updater provides an implementation of the TUF client workflow (ref.
// https://theupdateframework.github.io/specification/latest/#detailed-client-workflow).
// Updater provides an API to query available targets and to download them in
// a secure manner: all downloaded files are verified by signed metadata.
// High-level description of Updater functionality:
//   - Initializing an Updater loads and validates the trusted local root
//     metadata: this root metadata is used as the source of trust for all
//     other metadata.
//   - Refresh() can optionally be called to update and load all top-level
//     metadata as described in the specification, using both locally cached
//     metadata and metadata downloaded from the remote repository. If
//     refresh is not done explicitly, it will happen automatically during
//     the first target info lookup.
//   - Updater can be used to download targets. For each target:
//   - GetTargetInfo() is first used to find information about a specific
//     target. This will load new targets metadata as needed (from local
//     cache or remote repository).
//   - FindCachedTarget() can optionally be used to check if a target file
//     is already locally cached.
//   - DownloadTarget() downloads a target file and ensures it is verified
//     correct by the metadata.
type Updater struct {
	metadataDir     string
	metadataBaseUrl string
	targetDir       string
	targetBaseUrl   string
	trusted         *trustedmetadata.TrustedMetadata
	config          *config.UpdaterConfig
	fetcher         fetcher.Fetcher
	targetsGroup    singleflight.Group
}

// New creates a new Updater instance and loads trusted root metadata.
func New(metadataDir, metadataBaseUrl, targetDir, targetBaseUrl string, f fetcher.Fetcher) (*Updater, error) {
	if f == nil {
		f = fetcher.NewDefaultFetcher()
	}
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	updater := &Updater{
		metadataDir:     metadataDir,
		metadataBaseUrl: ensureTrailingSlash(metadataBaseUrl),
		targetDir:       targetDir,
		targetBaseUrl:   ensureTrailingSlash(targetBaseUrl),
		config:          cfg,
		fetcher:         f,
	}
	rootBytes, err := updater.loadLocalMetadata(metadata.ROOT)
	if err != nil {
		return nil, err
	}
	trustedMetadataSet, err := trustedmetadata.New(rootBytes)
	if err != nil {
		return nil, err
	}
	updater.trusted = trustedMetadataSet
	return updater, nil
}

// Config returns the resource caps and knobs this Updater was constructed
// with, so a caller can inspect or log them.
func (update *Updater) Config() *config.UpdaterConfig {
	return update.config
}

// Refresh refreshes top-level metadata.
// Downloads, verifies, and loads metadata for the top-level roles in the
// specified order (root -> timestamp -> snapshot -> targets), implementing
// all the checks required in the TUF client workflow.
// A Refresh() can be done only once during the lifetime of an Updater.
// If Refresh() has not been explicitly called before the first
// GetTargetInfo() call, it will be done implicitly at that time.
// The metadata for delegated roles is not updated by Refresh(): that happens
// on demand during GetTargetInfo(). However, if the repository uses
// consistent snapshots (ref.
// https://theupdateframework.github.io/specification/latest/#consistent-snapshots),
// then all metadata downloaded by the Updater will use the same consistent
// repository state.
func (update *Updater) Refresh(ctx context.Context) error {
	if err := update.loadRoot(ctx); err != nil {
		return err
	}
	if err := update.loadTimestamp(ctx); err != nil {
		return err
	}
	if err := update.loadSnapshot(ctx); err != nil {
		return err
	}
	if _, err := update.loadTargets(ctx, metadata.TARGETS, metadata.ROOT); err != nil {
		return err
	}
	return nil
}

// GetTargetInfo returns a metadata.TargetFiles instance with information for
// targetPath. The return value can be used as an argument to
// DownloadTarget() and FindCachedTarget().
// If Refresh() has not been called before calling GetTargetInfo(), the
// refresh will be done implicitly.
// As a side-effect this method downloads all the additional (delegated
// targets) metadata it needs to return the target information.
func (update *Updater) GetTargetInfo(ctx context.Context, targetPath string) (*metadata.TargetFiles, error) {
	if update.trusted.Targets[metadata.TARGETS] == nil {
		if err := update.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return update.preOrderDepthFirstWalk(ctx, targetPath)
}

// DownloadTarget downloads the target file specified by targetFile.
func (update *Updater) DownloadTarget(ctx context.Context, targetFile *metadata.TargetFiles, filePath, targetBaseURL string) (string, error) {
	var err error
	if filePath == "" {
		filePath, err = update.generateTargetFilePath(targetFile)
		if err != nil {
			return "", err
		}
	}
	if targetBaseURL == "" {
		if update.targetBaseUrl == "" {
			return "", metadata.ErrValue{Msg: "targetBaseURL must be set in either DownloadTarget() or the Updater struct"}
		}
		targetBaseURL = update.targetBaseUrl
	} else {
		targetBaseURL = ensureTrailingSlash(targetBaseURL)
	}

	targetFilePath := targetFile.Path
	consistentSnapshot := update.trusted.Root.Signed.ConsistentSnapshot
	if consistentSnapshot && update.config.PrefixTargetsWithHash {
		hashes := ""
		for _, v := range targetFile.Hashes {
			hashes = hex.EncodeToString(v)
			break
		}
		dirName, baseName, ok := strings.Cut(targetFilePath, "/")
		if !ok {
			dirName, baseName = "", targetFilePath
			targetFilePath = fmt.Sprintf("%s.%s", hashes, baseName)
		} else {
			targetFilePath = fmt.Sprintf("%s/%s.%s", dirName, hashes, baseName)
		}
	}

	fullURL := fmt.Sprintf("%s%s", targetBaseURL, targetFilePath)
	data, err := update.fetcher.DownloadFile(ctx, fullURL, targetFile.Length)
	if err != nil {
		return "", err
	}
	if err := targetFile.VerifyLengthHashes(data); err != nil {
		return "", err
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", err
	}
	log.Infof("Downloaded target %s\n", targetFile.Path)
	return filePath, nil
}

// FindCachedTarget checks whether a local file is an up-to-date target.
func (update *Updater) FindCachedTarget(targetFile *metadata.TargetFiles, filePath string) (string, error) {
	var err error
	targetFilePath := filePath
	if targetFilePath == "" {
		targetFilePath, err = update.generateTargetFilePath(targetFile)
		if err != nil {
			return "", err
		}
	}
	data, err := readFile(targetFilePath)
	if err != nil {
		return "", err
	}
	if err := targetFile.VerifyLengthHashes(data); err != nil {
		return "", err
	}
	return targetFilePath, nil
}

// loadTimestamp loads local and remote timestamp metadata.
func (update *Updater) loadTimestamp(ctx context.Context) error {
	data, err := update.loadLocalMetadata(metadata.TIMESTAMP)
	if err != nil {
		log.Debug("Local timestamp does not exist")
	} else {
		if _, err := update.trusted.UpdateTimestamp(data); err != nil {
			if errors.Is(err, metadata.ErrRepository{}) {
				log.Debug("Local timestamp is not valid")
			} else {
				return err
			}
		} else {
			log.Debug("Local timestamp is valid")
		}
	}

	data, err = update.downloadMetadata(ctx, metadata.TIMESTAMP, update.config.TimestampMaxLength, "")
	if err != nil {
		return err
	}
	if _, err := update.trusted.UpdateTimestamp(data); err != nil {
		var equalVersion metadata.ErrEqualVersionNumber
		if errors.As(err, &equalVersion) {
			return nil
		}
		return err
	}
	return update.persistMetadata(metadata.TIMESTAMP, data)
}

// loadSnapshot loads local (and if needed remote) snapshot metadata.
func (update *Updater) loadSnapshot(ctx context.Context) error {
	data, err := update.loadLocalMetadata(metadata.SNAPSHOT)
	if err == nil {
		if _, err := update.trusted.UpdateSnapshot(data, true); err != nil {
			if errors.Is(err, metadata.ErrRepository{}) {
				log.Debug("Local snapshot is not valid")
			} else {
				return err
			}
		} else {
			log.Debug("Local snapshot is valid: not downloading new one")
			return nil
		}
	} else {
		log.Debug("Local snapshot does not exist")
	}

	if update.trusted.Timestamp == nil {
		return metadata.ErrValue{Msg: "trusted timestamp not set"}
	}
	snapshotMeta := update.trusted.Timestamp.Signed.Meta[fmt.Sprintf("%s.json", metadata.SNAPSHOT)]
	length := update.config.SnapshotMaxLength
	if snapshotMeta.Length != 0 && snapshotMeta.Length < length {
		length = snapshotMeta.Length
	}
	version := ""
	if update.trusted.Root.Signed.ConsistentSnapshot {
		version = strconv.FormatInt(snapshotMeta.Version, 10)
	}
	data, err = update.downloadMetadata(ctx, metadata.SNAPSHOT, length, version)
	if err != nil {
		return err
	}
	if _, err := update.trusted.UpdateSnapshot(data, false); err != nil {
		return err
	}
	return update.persistMetadata(metadata.SNAPSHOT, data)
}

// loadTargets loads local (and if needed remote) metadata for roleName.
func (update *Updater) loadTargets(ctx context.Context, roleName, parentName string) (*metadata.Metadata[metadata.TargetsType], error) {
	if role, ok := update.trusted.Targets[roleName]; ok {
		return role, nil
	}

	// Collapse concurrent GetTargetInfo calls that need the same delegated
	// role within one refresh cycle into a single fetch-and-verify.
	v, err, _ := update.targetsGroup.Do(roleName, func() (interface{}, error) {
		return update.loadTargetsUncached(ctx, roleName, parentName)
	})
	if err != nil {
		return nil, err
	}
	return v.(*metadata.Metadata[metadata.TargetsType]), nil
}

func (update *Updater) loadTargetsUncached(ctx context.Context, roleName, parentName string) (*metadata.Metadata[metadata.TargetsType], error) {
	if role, ok := update.trusted.Targets[roleName]; ok {
		return role, nil
	}

	data, err := update.loadLocalMetadata(roleName)
	if err == nil {
		delegatedTargets, err := update.trusted.UpdateDelegatedTargets(data, roleName, parentName)
		if err != nil {
			if errors.Is(err, metadata.ErrRepository{}) {
				log.Debugf("Local %s is not valid\n", roleName)
			} else {
				return nil, err
			}
		} else {
			log.Debugf("Local %s is valid: not downloading new one\n", roleName)
			return delegatedTargets, nil
		}
	} else {
		log.Debugf("Local %s does not exist\n", roleName)
	}

	if update.trusted.Snapshot == nil {
		return nil, metadata.ErrValue{Msg: "trusted snapshot not set"}
	}
	metaInfo := update.trusted.Snapshot.Signed.Meta[fmt.Sprintf("%s.json", roleName)]
	length := update.config.TargetsMaxLength
	if metaInfo.Length != 0 && metaInfo.Length < length {
		length = metaInfo.Length
	}
	version := ""
	if update.trusted.Root.Signed.ConsistentSnapshot {
		version = strconv.FormatInt(metaInfo.Version, 10)
	}
	data, err = update.downloadMetadata(ctx, roleName, length, version)
	if err != nil {
		return nil, err
	}
	delegatedTargets, err := update.trusted.UpdateDelegatedTargets(data, roleName, parentName)
	if err != nil {
		return nil, err
	}
	if err := update.persistMetadata(roleName, data); err != nil {
		return nil, err
	}
	return delegatedTargets, nil
}

// loadRoot loads remote root metadata. Sequentially loads and persists on
// local disk every newer root metadata version available on the remote.
func (update *Updater) loadRoot(ctx context.Context) error {
	lowerBound := update.trusted.Root.Signed.Version + 1
	upperBound := lowerBound + update.config.MaxRootRotations

	for nextVersion := lowerBound; nextVersion < upperBound; nextVersion++ {
		data, err := update.downloadMetadata(ctx, metadata.ROOT, update.config.RootMaxLength, strconv.FormatInt(nextVersion, 10))
		if err != nil {
			var downloadErr *metadata.ErrDownloadHTTP
			if errors.As(err, &downloadErr) {
				if downloadErr.StatusCode != http.StatusNotFound && downloadErr.StatusCode != http.StatusForbidden {
					return err
				}
				break
			}
			return err
		}
		if _, err := update.trusted.UpdateRoot(data); err != nil {
			return err
		}
		if err := update.persistMetadata(metadata.ROOT, data); err != nil {
			return err
		}
	}

	if update.trusted.RootExpired() {
		return metadata.ErrExpiredMetadata{Role: metadata.ROOT, ExpiredAt: update.trusted.Root.Signed.Expires}
	}
	return nil
}

// preOrderDepthFirstWalk interrogates the tree of target delegations in
// order of appearance (which implicitly orders trustworthiness), and returns
// the matching target found in the most trusted role. Every role that
// matches the requested path is queued, not just the first; a non-terminating
// role lets the walk backtrack into sibling delegations, while a terminating
// one prunes them.
func (update *Updater) preOrderDepthFirstWalk(ctx context.Context, targetFilePath string) (*metadata.TargetFiles, error) {
	delegationsToVisit := []roleParentTuple{{
		Role:   metadata.TARGETS,
		Parent: metadata.ROOT,
	}}
	visitedRoleNames := map[string]bool{}

	for len(visitedRoleNames) <= update.config.MaxDelegations && len(delegationsToVisit) > 0 {
		delegation := delegationsToVisit[len(delegationsToVisit)-1]
		delegationsToVisit = delegationsToVisit[:len(delegationsToVisit)-1]

		if visitedRoleNames[delegation.Role] {
			log.Debugf("Skipping already-resolved role %s reached via another delegation\n", delegation.Role)
			continue
		}

		targets, err := update.loadTargets(ctx, delegation.Role, delegation.Parent)
		if err != nil {
			return nil, err
		}
		if target, ok := targets.Signed.Targets[targetFilePath]; ok {
			log.Debugf("Found target in role %s\n", delegation.Role)
			// Path is excluded from the wire format (it is the map key, not
			// a signed field), so it must be filled in here for
			// DownloadTarget/FindCachedTarget, which both read it off the
			// struct.
			target.Path = targetFilePath
			return &target, nil
		}

		visitedRoleNames[delegation.Role] = true

		if targets.Signed.Delegations == nil {
			continue
		}
		roles := targets.Signed.Delegations.GetRolesForTarget(targetFilePath)
		ancestors := append(append([]string{}, delegation.Ancestors...), delegation.Role)
		childRolesToVisit := make([]roleParentTuple, 0, len(roles))
		for _, child := range roles {
			if slices.Contains(ancestors, child.Name) {
				return nil, metadata.ErrDelegationLoop{Role: child.Name}
			}
			log.Debugf("Adding child role %s\n", child.Name)
			childRolesToVisit = append(childRolesToVisit, roleParentTuple{Role: child.Name, Parent: delegation.Role, Ancestors: ancestors})
			if child.Terminating {
				log.Debugf("Role %s is terminating: not backtracking to sibling delegations\n", child.Name)
				break
			}
		}
		// push childRolesToVisit in reverse order of appearance onto
		// delegationsToVisit; roles are popped from the end of the list, so
		// this preserves declared order as visitation order.
		reverseSlice(childRolesToVisit)
		delegationsToVisit = append(delegationsToVisit, childRolesToVisit...)
	}

	if len(delegationsToVisit) > 0 {
		return nil, metadata.ErrMaxDelegationsExceeded{Max: update.config.MaxDelegations}
	}
	return nil, metadata.ErrTargetNotFound{Path: targetFilePath}
}

// persistMetadata writes metadata to disk atomically to avoid data loss.
func (update *Updater) persistMetadata(roleName string, data []byte) error {
	fileName := filepath.Join(update.metadataDir, fmt.Sprintf("%s.json", url.QueryEscape(roleName)))
	file, err := os.CreateTemp(update.metadataDir, "tuf_tmp")
	if err != nil {
		return err
	}
	if err := os.WriteFile(file.Name(), data, 0644); err != nil {
		if errRemove := os.Remove(file.Name()); errRemove != nil {
			log.Debugf("Failed to delete temporary file: %s\n", file.Name())
		}
		return err
	}
	return os.Rename(file.Name(), fileName)
}

// downloadMetadata downloads a metadata file and returns it as bytes.
func (update *Updater) downloadMetadata(ctx context.Context, roleName string, length int64, version string) ([]byte, error) {
	urlPath := update.metadataBaseUrl
	if version == "" {
		urlPath = fmt.Sprintf("%s%s.json", urlPath, url.QueryEscape(roleName))
	} else {
		urlPath = fmt.Sprintf("%s%s.%s.json", urlPath, version, url.QueryEscape(roleName))
	}
	return update.fetcher.DownloadFile(ctx, urlPath, length)
}

// generateTargetFilePath generates a local path from TargetFiles.
func (update *Updater) generateTargetFilePath(tf *metadata.TargetFiles) (string, error) {
	if update.targetDir == "" {
		return "", metadata.ErrValue{Msg: "target_dir must be set if filepath is not given"}
	}
	return url.JoinPath(update.targetDir, url.QueryEscape(tf.Path))
}

// loadLocalMetadata reads a local <roleName>.json file and returns its bytes.
func (update *Updater) loadLocalMetadata(roleName string) ([]byte, error) {
	fileName := filepath.Join(update.metadataDir, fmt.Sprintf("%s.json", url.QueryEscape(roleName)))
	return readFile(fileName)
}

// ensureTrailingSlash ensures u ends with a slash.
func ensureTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

// reverseSlice reverses the elements of a generic slice in place.
func reverseSlice[S ~[]E, E any](s S) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// readFile reads the content of a file and returns its bytes.
func readFile(name string) ([]byte, error) {
	in, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return io.ReadAll(in)
}
