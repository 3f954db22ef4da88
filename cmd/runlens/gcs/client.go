// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type Client struct {
	storageClient *storage.Client
	ProjectID     string
	BucketName    string
}

func NewClient(ctx context.Context, projectID, bucketName, saKeyPath string) (*Client, error) {
	if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", saKeyPath)
	}

	storageClient, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		ProjectID:     projectID,
		BucketName:    bucketName,
	}, nil
}

func (c *Client) UploadFile(ctx context.Context, localPath, objectPath string) error {
	return c.upload(ctx, localPath, objectPath, "application/octet-stream")
}

// ArchiveReport uploads a JSON analysis report under a dated object
// path (prefix/YYYY/MM/DD/name) and returns the gs:// location.
func (c *Client) ArchiveReport(ctx context.Context, localPath, prefix string) (string, error) {
	now := time.Now().UTC()
	objectPath := fmt.Sprintf("%s/%s/%s",
		prefix, now.Format("2006/01/02"), filepath.Base(localPath))
	if err := c.upload(ctx, localPath, objectPath, "application/json"); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", c.BucketName, objectPath), nil
}

func (c *Client) upload(ctx context.Context, localPath, objectPath, contentType string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer localFile.Close()

	// Get a writer for the GCS object
	obj := c.storageClient.Bucket(c.BucketName).Object(objectPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, localFile); err != nil {
		return fmt.Errorf("failed to copy local file %s to GCS object %s: %w", localPath, objectPath, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", objectPath, err)
	}
	return nil
}

func (c *Client) UploadDir(ctx context.Context, localDir, gcsPrefix string) error {
	return filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			gcsPath := filepath.Join(gcsPrefix, info.Name())
			return c.UploadFile(ctx, path, gcsPath)
		}
		return nil
	})
}
