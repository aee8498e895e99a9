// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/finchvox/finchvox/lib/clock"
	"github.com/finchvox/finchvox/lib/session"
	"github.com/finchvox/finchvox/lib/testutil"
)

// fakeBucket is an in-memory objectAPI for a single bucket.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string

	// pageSize bounds keys plus common prefixes per ListObjectsV2 page
	// so pagination is exercised.
	pageSize int

	headErr      error
	createErr    error
	createInputs []*s3.CreateBucketInput
	deleteCalls  int
	gets         int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
		pageSize: 3,
	}
}

func (f *fakeBucket) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(input.Key)
	f.objects[key] = data
	f.metadata[key] = input.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, ok := f.objects[aws.ToString(input.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(input.Prefix)
	delimiter := aws.ToString(input.Delimiter)

	// Entries are keys, or common prefixes marked by a trailing
	// delimiter, in lexical order.
	seen := make(map[string]bool)
	var entries []string
	for key := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry := key
		if delimiter != "" {
			if index := strings.Index(key[len(prefix):], delimiter); index >= 0 {
				entry = key[:len(prefix)+index+len(delimiter)]
			}
		}
		if !seen[entry] {
			seen[entry] = true
			entries = append(entries, entry)
		}
	}
	sort.Strings(entries)

	start := 0
	if token := aws.ToString(input.ContinuationToken); token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := min(start+f.pageSize, len(entries))

	output := &s3.ListObjectsV2Output{}
	for _, entry := range entries[start:end] {
		if delimiter != "" && strings.HasSuffix(entry, delimiter) && f.objects[entry] == nil {
			output.CommonPrefixes = append(output.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(entry)})
		} else {
			output.Contents = append(output.Contents, types.Object{Key: aws.String(entry)})
		}
	}
	if end < len(entries) {
		output.IsTruncated = aws.Bool(true)
		output.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return output, nil
}

func (f *fakeBucket) DeleteObjects(_ context.Context, input *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if len(input.Delete.Objects) > deleteBatchSize {
		return nil, errors.New("MalformedXML: too many keys")
	}
	for _, object := range input.Delete.Objects {
		delete(f.objects, aws.ToString(object.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeBucket) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeBucket) CreateBucket(_ context.Context, input *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createInputs = append(f.createInputs, input)
	return &s3.CreateBucketOutput{}, f.createErr
}

func (f *fakeBucket) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var testNow = time.Date(2026, 5, 9, 15, 30, 0, 0, time.UTC)

func newTestS3(bucket *fakeBucket) *S3 {
	return newS3(bucket, S3Config{Bucket: "voice", Region: "us-east-1", Prefix: "/sessions/"},
		clock.Fake(testNow), quietLogger())
}

func TestS3Location(t *testing.T) {
	backend := newTestS3(newFakeBucket())
	if got := backend.Location(); got != "s3://voice/sessions" {
		t.Errorf("Location = %q", got)
	}
}

func TestS3UploadUsesManifestDate(t *testing.T) {
	bucket := newFakeBucket()
	backend := newTestS3(bucket)

	dir := session.Open(t.TempDir(), sessionID(1))
	// 2023-11-14T22:13:20Z
	writeManifest(t, dir, 1700000000)
	testutil.WriteFile(t, dir.OpusPath(), []byte("opus-bytes"))
	testutil.WriteFile(t, filepath.Join(dir.Path, ".audio.removing", "chunk_0000.wav"), []byte("stale"))

	if err := backend.UploadSession(context.Background(), dir.ID, dir.Path); err != nil {
		t.Fatalf("UploadSession: %v", err)
	}

	prefix := "sessions/2023/11/14/" + dir.ID + "/"
	want := []string{prefix + session.OpusName, prefix + session.ManifestName}
	sort.Strings(want)
	got := bucket.keys()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	digest := bucket.metadata[prefix+session.OpusName][digestMetadataKey]
	if len(digest) != 64 {
		t.Errorf("blake3 metadata = %q, want 64 hex characters", digest)
	}
}

func TestS3UploadWithoutManifestUsesClock(t *testing.T) {
	bucket := newFakeBucket()
	backend := newTestS3(bucket)

	dir := session.Open(t.TempDir(), sessionID(1))
	testutil.WriteFile(t, dir.WAVPath(), []byte("RIFF"))
	if err := backend.UploadSession(context.Background(), dir.ID, dir.Path); err != nil {
		t.Fatalf("UploadSession: %v", err)
	}
	keys := bucket.keys()
	if len(keys) != 1 || keys[0] != "sessions/2026/05/09/"+dir.ID+"/"+session.WAVName {
		t.Errorf("keys = %v", keys)
	}
}

func TestS3UploadMissingDirectory(t *testing.T) {
	backend := newTestS3(newFakeBucket())
	err := backend.UploadSession(context.Background(), sessionID(1), filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("UploadSession succeeded for a missing directory")
	}
}

func TestS3WriteFileFollowsExistingPartition(t *testing.T) {
	bucket := newFakeBucket()
	backend := newTestS3(bucket)
	ctx := context.Background()
	id := sessionID(4)
	bucket.objects["sessions/2025/01/02/"+id+"/manifest.json"] = []byte("{}")

	if err := backend.WriteFile(ctx, SessionFile{SessionID: id, Name: "environment_x.json"}, []byte("{}")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, ok := bucket.objects["sessions/2025/01/02/"+id+"/environment_x.json"]; !ok {
		t.Errorf("keys = %v, want the file next to the existing manifest", bucket.keys())
	}

	other := sessionID(5)
	if err := backend.WriteFile(ctx, SessionFile{SessionID: other, Name: "a.json"}, []byte("{}")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, ok := bucket.objects["sessions/2026/05/09/"+other+"/a.json"]; !ok {
		t.Errorf("keys = %v, want today's partition for a new session", bucket.keys())
	}
}

func TestS3ReadFile(t *testing.T) {
	bucket := newFakeBucket()
	backend := newTestS3(bucket)
	ctx := context.Background()
	id := sessionID(9)
	for i := range 5 {
		bucket.objects["sessions/2024/02/0"+strconv.Itoa(i+1)+"/"+sessionID(100+i)+"/manifest.json"] = []byte("{}")
	}
	bucket.objects["sessions/2024/03/01/"+id+"/logs_"+id+".jsonl"] = []byte("line\n")

	data, err := backend.ReadFile(ctx, SessionFile{SessionID: id, Name: "logs_" + id + ".jsonl"})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "line\n" {
		t.Errorf("ReadFile = %q", data)
	}

	exists, err := backend.FileExists(ctx, SessionFile{SessionID: id, Name: "manifest.json"})
	if err != nil || exists {
		t.Errorf("FileExists(manifest) = %v, %v", exists, err)
	}
	_, err = backend.ReadFile(ctx, SessionFile{SessionID: id, Name: "manifest.json"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadFile(missing) error = %v, want ErrNotFound", err)
	}
}

func putManifest(t *testing.T, bucket *fakeBucket, day, id string, start float64) {
	t.Helper()
	manifest := session.Manifest{SessionID: id, StartTime: &start}
	data, err := manifest.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	bucket.objects["sessions/"+day+"/"+id+"/"+session.ManifestName] = data
}

func TestS3ListSessionsNewestFirst(t *testing.T) {
	bucket := newFakeBucket()
	backend := newTestS3(bucket)

	putManifest(t, bucket, "2025/12/31", sessionID(1), 100)
	putManifest(t, bucket, "2026/01/15", sessionID(2), 200)
	putManifest(t, bucket, "2026/01/15", sessionID(3), 250)
	putManifest(t, bucket, "2026/02/01", sessionID(4), 300)
	// A session still uploading has no manifest and is skipped.
	bucket.objects["sessions/2026/02/01/"+sessionID(5)+"/audio.opus"] = []byte("x")
	bucket.objects["sessions/2026/02/01/"+sessionID(6)+"/manifest.json"] = []byte("not json")

	manifests, err := backend.ListSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	var got []string
	for _, manifest := range manifests {
		got = append(got, manifest.SessionID)
	}
	want := []string{sessionID(4), sessionID(3), sessionID(2), sessionID(1)}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestS3ListSessionsStopsAtLimit(t *testing.T) {
	bucket := newFakeBucket()
	backend := newTestS3(bucket)

	putManifest(t, bucket, "2026/01/01", sessionID(1), 100)
	putManifest(t, bucket, "2026/01/02", sessionID(2), 200)
	putManifest(t, bucket, "2026/01/03", sessionID(3), 300)

	manifests, err := backend.ListSessions(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(manifests) != 1 || manifests[0].SessionID != sessionID(3) {
		t.Fatalf("ListSessions = %+v", manifests)
	}
	if bucket.gets != 1 {
		t.Errorf("GetObject calls = %d, want 1 (older partitions skipped)", bucket.gets)
	}
}

func TestS3ListSessionsEmptyBucket(t *testing.T) {
	backend := newTestS3(newFakeBucket())
	manifests, err := backend.ListSessions(context.Background(), 0)
	if err != nil || len(manifests) != 0 {
		t.Fatalf("ListSessions = %v, %v", manifests, err)
	}
}

func TestS3DeleteSessionBatches(t *testing.T) {
	bucket := newFakeBucket()
	bucket.pageSize = 1000
	backend := newTestS3(bucket)

	id := sessionID(1)
	for i := range 2500 {
		bucket.objects["sessions/2026/01/01/"+id+"/audio/chunk_"+strconv.Itoa(i)+".wav"] = []byte("x")
	}
	keep := "sessions/2026/01/01/" + sessionID(2) + "/manifest.json"
	bucket.objects[keep] = []byte("{}")

	if err := backend.DeleteSession(context.Background(), id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if bucket.deleteCalls != 3 {
		t.Errorf("DeleteObjects calls = %d, want 3", bucket.deleteCalls)
	}
	if keys := bucket.keys(); len(keys) != 1 || keys[0] != keep {
		t.Errorf("remaining keys = %v", keys)
	}
}

func TestS3DeleteMissingSession(t *testing.T) {
	bucket := newFakeBucket()
	backend := newTestS3(bucket)
	if err := backend.DeleteSession(context.Background(), sessionID(1)); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if bucket.deleteCalls != 0 {
		t.Errorf("DeleteObjects calls = %d, want 0", bucket.deleteCalls)
	}
}

func TestS3SessionManifest(t *testing.T) {
	bucket := newFakeBucket()
	backend := newTestS3(bucket)
	putManifest(t, bucket, "2026/01/01", sessionID(1), 42)

	manifest, err := backend.SessionManifest(context.Background(), sessionID(1))
	if err != nil || manifest == nil || manifest.StartSeconds() != 42 {
		t.Fatalf("SessionManifest = %+v, %v", manifest, err)
	}
	manifest, err = backend.SessionManifest(context.Background(), sessionID(2))
	if err != nil || manifest != nil {
		t.Fatalf("SessionManifest(missing) = %+v, %v", manifest, err)
	}
}

func TestS3DownloadSession(t *testing.T) {
	bucket := newFakeBucket()
	backend := newTestS3(bucket)
	id := sessionID(1)
	putManifest(t, bucket, "2026/01/01", id, 1)
	bucket.objects["sessions/2026/01/01/"+id+"/audio/chunk_0000.json"] = []byte("{}")

	target := t.TempDir()
	found, err := backend.DownloadSession(context.Background(), id, target)
	if err != nil || !found {
		t.Fatalf("DownloadSession = %v, %v", found, err)
	}
	testutil.RequireExists(t, filepath.Join(target, session.ManifestName))
	testutil.RequireExists(t, filepath.Join(target, "audio", "chunk_0000.json"))

	found, err = backend.DownloadSession(context.Background(), sessionID(2), t.TempDir())
	if err != nil || found {
		t.Fatalf("DownloadSession(missing) = %v, %v", found, err)
	}
}
