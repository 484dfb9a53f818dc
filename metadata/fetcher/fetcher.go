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

// Package fetcher defines how the updater retrieves remote metadata and
// target bytes, and ships a retrying, size-capped default implementation.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"

	"github.com/rdimitrov/go-tuf-metadata-client/metadata"
)

// Fetcher downloads a URL and returns its bytes, rejecting a response whose
// body would exceed maxLength. Implementations must not buffer past
// maxLength before failing. ctx cancellation must abort an in-flight
// download and any pending retry.
type Fetcher interface {
	DownloadFile(ctx context.Context, url string, maxLength int64) ([]byte, error)
}

// DefaultFetcher is the Fetcher used when an Updater is not given one of its
// own. It retries transient failures with exponential backoff and enforces
// maxLength by reading at most maxLength+1 bytes.
type DefaultFetcher struct {
	// Client is built lazily on first use if nil.
	Client *retryablehttp.Client
	// Timeout bounds a single attempt, not the whole retried sequence. Zero
	// means 15 seconds.
	Timeout time.Duration
	// RetryMax is the maximum number of retries after the first attempt.
	// Construct via NewDefaultFetcher for the conventional default of 3;
	// the zero value of DefaultFetcher means no retries.
	RetryMax int
}

// NewDefaultFetcher returns a DefaultFetcher with the conventional retry
// budget (3 retries, 200ms-2s exponential backoff).
func NewDefaultFetcher() *DefaultFetcher {
	return &DefaultFetcher{RetryMax: 3}
}

func (d *DefaultFetcher) client() *retryablehttp.Client {
	if d.Client != nil {
		return d.Client
	}
	c := retryablehttp.NewClient()
	c.HTTPClient = cleanhttp.DefaultPooledClient()
	c.Logger = nil
	c.RetryMax = d.RetryMax
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c.HTTPClient.Timeout = timeout
	d.Client = c
	return c
}

// DownloadFile fetches url, failing fast if the response declares (via
// Content-Length) or turns out to carry more than maxLength bytes. ctx
// cancellation aborts an in-flight attempt and any pending retry.
func (d *DefaultFetcher) DownloadFile(ctx context.Context, url string, maxLength int64) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &metadata.ErrFetchFailed{URL: url, Cause: err}
	}

	resp, err := d.client().Do(req)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, metadata.ErrCancelled{Msg: ctx.Err().Error()}
		default:
		}
		return nil, &metadata.ErrFetchFailed{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &metadata.ErrDownloadHTTP{StatusCode: resp.StatusCode, URL: url}
	}

	if resp.ContentLength > 0 && resp.ContentLength > maxLength {
		return nil, metadata.ErrOversizedResponse{Limit: maxLength}
	}

	// Read one byte past the cap so an oversized body is caught even when
	// Content-Length was absent or lied.
	limited := io.LimitReader(resp.Body, maxLength+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &metadata.ErrFetchFailed{URL: url, Cause: err}
	}
	if int64(len(data)) > maxLength {
		return nil, metadata.ErrOversizedResponse{Limit: maxLength}
	}

	log.Debugf("Downloaded %d bytes from %s\n", len(data), url)
	return data, nil
}
