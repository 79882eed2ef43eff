// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/streetwatch/streetwatch/internal/config"
)

const defaultURLExpiry = 24 * time.Hour

// S3Store keeps images in an S3 bucket under staging/ and public/
// prefixes. Promotion is a server-side CopyObject followed by a delete of
// the staged key; public URLs are presigned GETs.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	urlExpiry time.Duration
	publicURL string
}

// NewS3Store builds the client from the ambient AWS credential chain.
// S3Endpoint overrides the endpoint for MinIO or LocalStack deployments,
// which also need path-style addressing.
func NewS3Store(ctx context.Context, cfg config.BlobConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("blob s3_bucket is required for the s3 backend")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.S3Bucket,
		urlExpiry: expiry,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// SaveStaged uploads the image under the staging/ prefix.
func (s *S3Store) SaveStaged(ctx context.Context, filename string, r io.Reader) (string, error) {
	key := stagingDir + "/" + stagedName(filename)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("upload staged image: %w", err)
	}
	return key, nil
}

// Promote copies the staged object to the public/ prefix, verifies the
// copy exists, then deletes the staged original.
func (s *S3Store) Promote(ctx context.Context, stagedPath, key string) (string, string, error) {
	if stagedPath == "" {
		return "", "", ErrNoImage
	}

	storedPath, err := s.relocate(ctx, stagedPath, publicDir, key)
	if err != nil {
		return "", "", err
	}

	url, err := s.objectURL(ctx, storedPath)
	if err != nil {
		return storedPath, "", err
	}
	return storedPath, url, nil
}

// Quarantine copies the staged object under the denied/ prefix, which no
// URL is ever minted for.
func (s *S3Store) Quarantine(ctx context.Context, stagedPath, key string) (string, error) {
	if stagedPath == "" {
		return "", ErrNoImage
	}
	return s.relocate(ctx, stagedPath, deniedDir, key)
}

func (s *S3Store) relocate(ctx context.Context, stagedPath, destDir, key string) (string, error) {
	if err := CheckStagedPath(stagedPath); err != nil {
		return "", err
	}
	storedPath := destDir + "/" + storedName(stagedPath, key)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + stagedPath),
		Key:        aws.String(storedPath),
	})
	if err != nil {
		return "", fmt.Errorf("copy image: %w", err)
	}

	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storedPath),
	}); err != nil {
		return "", fmt.Errorf("verify copied image: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(stagedPath),
	}); err != nil {
		// The copy is in place; the orphaned staged object is cleaned up
		// by the retention sweep.
		return storedPath, fmt.Errorf("delete staged image: %w", err)
	}

	return storedPath, nil
}

// Discard deletes a staged object. S3 deletes are idempotent, so a
// missing key is not an error.
func (s *S3Store) Discard(ctx context.Context, stagedPath string) error {
	if stagedPath == "" {
		return nil
	}
	if err := CheckStagedPath(stagedPath); err != nil {
		return err
	}
	return s.deleteObject(ctx, stagedPath)
}

// Remove deletes a promoted public object.
func (s *S3Store) Remove(ctx context.Context, storedPath string) error {
	if storedPath == "" {
		return nil
	}
	return s.deleteObject(ctx, storedPath)
}

func (s *S3Store) deleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete image %s: %w", key, err)
	}
	return nil
}

// objectURL returns the public URL for a stored object: the configured
// CDN base when set, a presigned GET otherwise.
func (s *S3Store) objectURL(ctx context.Context, key string) (string, error) {
	if s.publicURL != "" {
		return s.publicURL + "/" + key, nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlExpiry))
	if err != nil {
		return "", fmt.Errorf("presign image url: %w", err)
	}
	return req.URL, nil
}
