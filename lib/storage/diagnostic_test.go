// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/finchvox/finchvox/lib/clock"
)

func TestValidateReachableBucket(t *testing.T) {
	bucket := newFakeBucket()
	if err := newTestS3(bucket).Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(bucket.createInputs) != 0 {
		t.Error("CreateBucket called for an existing bucket")
	}
}

func TestValidateCreatesMissingBucket(t *testing.T) {
	tests := []struct {
		name       string
		region     string
		headErr    error
		constraint types.BucketLocationConstraint
	}{
		{"us-east-1 omits constraint", "us-east-1", &types.NotFound{}, ""},
		{"other region sets constraint", "eu-west-1", &smithy.GenericAPIError{Code: "NoSuchBucket"}, "eu-west-1"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bucket := newFakeBucket()
			bucket.headErr = test.headErr
			backend := newS3(bucket, S3Config{Bucket: "voice", Region: test.region, Prefix: "sessions"},
				clock.Fake(testNow), quietLogger())

			if err := backend.Validate(context.Background()); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if len(bucket.createInputs) != 1 {
				t.Fatalf("CreateBucket calls = %d, want 1", len(bucket.createInputs))
			}
			configuration := bucket.createInputs[0].CreateBucketConfiguration
			if test.constraint == "" {
				if configuration != nil {
					t.Errorf("CreateBucketConfiguration = %+v, want nil", configuration)
				}
				return
			}
			if configuration == nil || configuration.LocationConstraint != test.constraint {
				t.Errorf("CreateBucketConfiguration = %+v, want %s", configuration, test.constraint)
			}
		})
	}
}

func TestValidateBucketAlreadyOwned(t *testing.T) {
	bucket := newFakeBucket()
	bucket.headErr = &types.NotFound{}
	bucket.createErr = &types.BucketAlreadyOwnedByYou{}
	if err := newTestS3(bucket).Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateDiagnostics(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCause   string
		wantSummary string
	}{
		{
			name:        "bad credentials",
			err:         &smithy.GenericAPIError{Code: "InvalidAccessKeyId"},
			wantCause:   "credentials",
			wantSummary: "Cannot access S3 bucket s3://voice/sessions",
		},
		{
			name:      "access denied",
			err:       &smithy.GenericAPIError{Code: "AccessDenied"},
			wantCause: "lack permission",
		},
		{
			name:      "unreachable endpoint",
			err:       fmt.Errorf("operation error: %w", &net.OpError{Op: "dial", Err: errors.New("connection refused")}),
			wantCause: "could not be reached",
		},
		{
			name:      "credential chain empty",
			err:       errors.New("failed to retrieve credentials: no providers"),
			wantCause: "credentials",
		},
		{
			name:      "unclassified",
			err:       errors.New("boom"),
			wantCause: "Unexpected",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bucket := newFakeBucket()
			bucket.headErr = test.err
			err := newTestS3(bucket).Validate(context.Background())

			var diagnostic *DiagnosticError
			if !errors.As(err, &diagnostic) {
				t.Fatalf("Validate error = %v, want *DiagnosticError", err)
			}
			if !errors.Is(err, test.err) {
				t.Error("DiagnosticError does not wrap the S3 error")
			}
			if len(diagnostic.Causes) == 0 || !strings.Contains(diagnostic.Causes[0], test.wantCause) {
				t.Errorf("Causes = %q, want one containing %q", diagnostic.Causes, test.wantCause)
			}
			if len(diagnostic.Remediation) == 0 {
				t.Error("Remediation is empty")
			}
			if test.wantSummary != "" && diagnostic.Summary != test.wantSummary {
				t.Errorf("Summary = %q, want %q", diagnostic.Summary, test.wantSummary)
			}
		})
	}
}

func TestValidateCreateFailure(t *testing.T) {
	bucket := newFakeBucket()
	bucket.headErr = &types.NotFound{}
	bucket.createErr = &smithy.GenericAPIError{Code: "BucketAlreadyExists"}

	err := newTestS3(bucket).Validate(context.Background())
	var diagnostic *DiagnosticError
	if !errors.As(err, &diagnostic) {
		t.Fatalf("Validate error = %v, want *DiagnosticError", err)
	}
	if !strings.HasPrefix(diagnostic.Summary, "Cannot create S3 bucket") {
		t.Errorf("Summary = %q", diagnostic.Summary)
	}
	if !strings.Contains(diagnostic.Causes[0], "owned by another account") {
		t.Errorf("Causes = %q", diagnostic.Causes)
	}
}
