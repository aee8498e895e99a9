// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/finchvox/finchvox/lib/clock"
	"github.com/finchvox/finchvox/lib/session"
)

const (
	// deleteBatchSize is the DeleteObjects per-request maximum.
	deleteBatchSize = 1000

	// manifestFetchConcurrency bounds parallel GetObject calls while
	// building a listing.
	manifestFetchConcurrency = 8

	// digestMetadataKey carries the hex BLAKE3 digest of each uploaded
	// object.
	digestMetadataKey = "blake3"
)

// S3Config locates the bucket and key prefix.
type S3Config struct {
	Bucket string
	Region string
	Prefix string

	// Endpoint selects an S3-compatible service (MinIO, R2, LocalStack).
	// Path-style addressing is used when set.
	Endpoint string
}

// objectAPI is the subset of *s3.Client the backend calls.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3 stores sessions in an S3 bucket under date-partitioned prefixes.
type S3 struct {
	client objectAPI
	config S3Config
	clock  clock.Clock
	logger *slog.Logger
}

// NewS3 builds an S3 backend from the default AWS credential chain.
func NewS3(ctx context.Context, config S3Config, clk clock.Clock, logger *slog.Logger) (*S3, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.Prefix == "" {
		config.Prefix = "sessions"
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(awsConfig, func(options *s3.Options) {
		if config.Endpoint != "" {
			options.BaseEndpoint = aws.String(config.Endpoint)
			options.UsePathStyle = true
		}
	})
	return newS3(client, config, clk, logger), nil
}

func newS3(client objectAPI, config S3Config, clk clock.Clock, logger *slog.Logger) *S3 {
	config.Prefix = strings.Trim(config.Prefix, "/")
	return &S3{client: client, config: config, clock: clk, logger: logger}
}

// Location returns the s3:// URL of the session root.
func (s *S3) Location() string {
	return "s3://" + s.config.Bucket + "/" + s.config.Prefix
}

// Config returns the backend's configuration.
func (s *S3) Config() S3Config { return s.config }

func (s *S3) rootPrefix() string { return s.config.Prefix + "/" }

// sessionPrefix returns "prefix/YYYY/MM/DD/<id>" for date in UTC.
func (s *S3) sessionPrefix(sessionID string, date time.Time) string {
	return s.config.Prefix + "/" + date.UTC().Format("2006/01/02") + "/" + sessionID
}

// eachKey calls fn for every object key under the root prefix.
func (s *S3) eachKey(ctx context.Context, fn func(key string) bool) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.rootPrefix()),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing s3://%s/%s: %w", s.config.Bucket, s.rootPrefix(), err)
		}
		for _, object := range page.Contents {
			if !fn(aws.ToString(object.Key)) {
				return nil
			}
		}
	}
	return nil
}

// findKey locates the object for file in whichever date partition
// holds the session.
func (s *S3) findKey(ctx context.Context, file SessionFile) (string, error) {
	suffix := "/" + file.SessionID + "/" + file.Name
	found := ""
	err := s.eachKey(ctx, func(key string) bool {
		if strings.HasSuffix(key, suffix) {
			found = key
			return false
		}
		return true
	})
	return found, err
}

// existingSessionPrefix finds the date partition already holding
// sessionID, or "" when the session has no objects.
func (s *S3) existingSessionPrefix(ctx context.Context, sessionID string) (string, error) {
	marker := "/" + sessionID + "/"
	found := ""
	err := s.eachKey(ctx, func(key string) bool {
		if index := strings.Index(key, marker); index >= 0 {
			found = key[:index+len(marker)-1]
			return false
		}
		return true
	})
	return found, err
}

// WriteFile stores content next to the session's existing objects, or
// under today's partition for a session not yet stored.
func (s *S3) WriteFile(ctx context.Context, file SessionFile, content []byte) error {
	if err := file.validate(); err != nil {
		return err
	}
	prefix, err := s.existingSessionPrefix(ctx, file.SessionID)
	if err != nil {
		return err
	}
	if prefix == "" {
		prefix = s.sessionPrefix(file.SessionID, s.clock.Now())
	}
	return s.put(ctx, prefix+"/"+file.Name, content)
}

func (s *S3) put(ctx context.Context, key string, content []byte) error {
	digest := blake3.Sum256(content)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		Metadata:      map[string]string{digestMetadataKey: hex.EncodeToString(digest[:])},
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", s.config.Bucket, key, err)
	}
	s.logger.Debug("uploaded object", "bucket", s.config.Bucket, "key", key, "bytes", len(content))
	return nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.config.Bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", s.config.Bucket, key, err)
	}
	defer output.Body.Close()
	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", s.config.Bucket, key, err)
	}
	return data, nil
}

func (s *S3) ReadFile(ctx context.Context, file SessionFile) ([]byte, error) {
	if err := file.validate(); err != nil {
		return nil, err
	}
	key, err := s.findKey(ctx, file)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%s: %w", file, ErrNotFound)
	}
	return s.get(ctx, key)
}

func (s *S3) FileExists(ctx context.Context, file SessionFile) (bool, error) {
	if err := file.validate(); err != nil {
		return false, err
	}
	key, err := s.findKey(ctx, file)
	return key != "", err
}

// commonPrefixes lists the immediate child prefixes of parent.
func (s *S3) commonPrefixes(ctx context.Context, parent string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.config.Bucket),
		Prefix:    aws.String(parent),
		Delimiter: aws.String("/"),
	})
	var prefixes []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.config.Bucket, parent, err)
		}
		for _, prefix := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(prefix.Prefix))
		}
	}
	return prefixes, nil
}

// datePrefixes returns every "prefix/YYYY/MM/DD/" partition, newest
// first.
func (s *S3) datePrefixes(ctx context.Context) ([]string, error) {
	var days []string
	years, err := s.commonPrefixes(ctx, s.rootPrefix())
	if err != nil {
		return nil, err
	}
	for _, year := range years {
		months, err := s.commonPrefixes(ctx, year)
		if err != nil {
			return nil, err
		}
		for _, month := range months {
			monthDays, err := s.commonPrefixes(ctx, month)
			if err != nil {
				return nil, err
			}
			days = append(days, monthDays...)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

// manifestsInPartition fetches the manifest of every session under one
// date partition concurrently. Sessions without a readable manifest are
// skipped.
func (s *S3) manifestsInPartition(ctx context.Context, day string) ([]session.Manifest, error) {
	sessionPrefixes, err := s.commonPrefixes(ctx, day)
	if err != nil {
		return nil, err
	}

	results := make([]*session.Manifest, len(sessionPrefixes))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(manifestFetchConcurrency)
	for i, sessionPrefix := range sessionPrefixes {
		group.Go(func() error {
			data, err := s.get(groupCtx, sessionPrefix+session.ManifestName)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			manifest, err := session.ParseManifest(data)
			if err != nil {
				s.logger.Warn("skipping invalid manifest", "key", sessionPrefix+session.ManifestName, "error", err)
				return nil
			}
			results[i] = &manifest
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	manifests := make([]session.Manifest, 0, len(results))
	for _, manifest := range results {
		if manifest != nil {
			manifests = append(manifests, *manifest)
		}
	}
	return manifests, nil
}

// ListSessions walks date partitions newest first until limit
// manifests have been collected.
func (s *S3) ListSessions(ctx context.Context, limit int) ([]session.Manifest, error) {
	limit = normalizeLimit(limit)
	days, err := s.datePrefixes(ctx)
	if err != nil {
		return nil, err
	}

	var manifests []session.Manifest
	for _, day := range days {
		if len(manifests) >= limit {
			break
		}
		partition, err := s.manifestsInPartition(ctx, day)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, partition...)
	}

	sortByStartDescending(manifests)
	if len(manifests) > limit {
		manifests = manifests[:limit]
	}
	return manifests, nil
}

func (s *S3) sessionKeys(ctx context.Context, sessionID string) ([]string, error) {
	marker := "/" + sessionID + "/"
	var keys []string
	err := s.eachKey(ctx, func(key string) bool {
		if strings.Contains(key, marker) {
			keys = append(keys, key)
		}
		return true
	})
	return keys, err
}

func (s *S3) DeleteSession(ctx context.Context, sessionID string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	keys, err := s.sessionKeys(ctx, sessionID)
	if err != nil {
		return err
	}

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}
		output, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.config.Bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("deleting objects of session %s: %w", sessionID, err)
		}
		if len(output.Errors) > 0 {
			first := output.Errors[0]
			return fmt.Errorf("deleting %s: %s (%d objects failed)",
				aws.ToString(first.Key), aws.ToString(first.Message), len(output.Errors))
		}
	}
	if len(keys) > 0 {
		s.logger.Info("deleted remote session", "session", session.ShortID(sessionID), "objects", len(keys))
	}
	return nil
}

// UploadSession copies every file under localDir. The date partition
// comes from the local manifest's start time when present.
func (s *S3) UploadSession(ctx context.Context, sessionID, localDir string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	if _, err := os.Stat(localDir); err != nil {
		return fmt.Errorf("local session directory: %w", err)
	}

	date := s.clock.Now()
	if manifest, err := session.ReadManifest(filepath.Join(localDir, session.ManifestName)); err == nil && manifest.StartTime != nil {
		seconds := *manifest.StartTime
		date = time.Unix(0, int64(seconds*1e9))
	}
	prefix := s.sessionPrefix(sessionID, date)

	uploaded := 0
	err := filepath.WalkDir(localDir, func(filePath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if filePath != localDir && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(localDir, filePath)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}
		if err := s.put(ctx, prefix+"/"+filepath.ToSlash(relative), content); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("uploading session %s: %w", sessionID, err)
	}
	s.logger.Info("uploaded session", "session", session.ShortID(sessionID), "prefix", prefix, "objects", uploaded)
	return nil
}

// SessionManifest searches every partition for the session's manifest.
func (s *S3) SessionManifest(ctx context.Context, sessionID string) (*session.Manifest, error) {
	data, err := s.ReadFile(ctx, SessionFile{SessionID: sessionID, Name: session.ManifestName})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	manifest, err := session.ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

// DownloadSession mirrors the session's objects into localDir.
func (s *S3) DownloadSession(ctx context.Context, sessionID, localDir string) (bool, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return false, err
	}
	keys, err := s.sessionKeys(ctx, sessionID)
	if err != nil {
		return false, err
	}

	marker := "/" + sessionID + "/"
	downloaded := false
	for _, key := range keys {
		_, relative, _ := strings.Cut(key[strings.Index(key, marker):], marker)
		relative = path.Clean(relative)
		if !filepath.IsLocal(filepath.FromSlash(relative)) {
			s.logger.Warn("skipping object outside session directory", "key", key)
			continue
		}
		data, err := s.get(ctx, key)
		if err != nil {
			return downloaded, err
		}
		target := filepath.Join(localDir, filepath.FromSlash(relative))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return downloaded, err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return downloaded, err
		}
		downloaded = true
	}
	return downloaded, nil
}
