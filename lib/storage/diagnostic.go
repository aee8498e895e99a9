// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// DiagnosticError is a startup failure with enough context for an
// operator to fix it without reading logs.
type DiagnosticError struct {
	Summary     string
	Causes      []string
	Remediation []string
	Err         error
}

func (e *DiagnosticError) Error() string {
	if e.Err != nil {
		return e.Summary + ": " + e.Err.Error()
	}
	return e.Summary
}

func (e *DiagnosticError) Unwrap() error { return e.Err }

// Validate checks that the bucket is reachable, creating it when it
// does not exist. Failures are returned as *DiagnosticError.
func (s *S3) Validate(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.config.Bucket)})
	if err == nil {
		s.logger.Info("s3 bucket reachable", "location", s.Location())
		return nil
	}
	if !isMissingBucket(err) {
		return s.diagnose("Cannot access S3 bucket", err)
	}

	s.logger.Info("creating s3 bucket", "bucket", s.config.Bucket, "region", s.config.Region)
	input := &s3.CreateBucketInput{Bucket: aws.String(s.config.Bucket)}
	// us-east-1 rejects an explicit location constraint.
	if s.config.Region != "" && s.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.config.Region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return s.diagnose("Cannot create S3 bucket", err)
	}
	return nil
}

func isMissingBucket(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	switch apiErrorCode(err) {
	case "NotFound", "NoSuchBucket":
		return true
	}
	return httpStatus(err) == 404
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func httpStatus(err error) int {
	var responseErr *awshttp.ResponseError
	if errors.As(err, &responseErr) {
		return responseErr.HTTPStatusCode()
	}
	return 0
}

// failureClass groups S3 errors by what the operator has to change.
type failureClass int

const (
	failureUnknown failureClass = iota
	failureCredentials
	failurePermission
	failureNetwork
	failureBucketName
)

func classify(err error) failureClass {
	switch apiErrorCode(err) {
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken", "InvalidClientTokenId":
		return failureCredentials
	case "AccessDenied", "Forbidden", "AllAccessDisabled":
		return failurePermission
	case "InvalidBucketName", "BucketAlreadyExists":
		return failureBucketName
	}
	switch httpStatus(err) {
	case 401:
		return failureCredentials
	case 403:
		return failurePermission
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.Is(err, context.DeadlineExceeded) {
		return failureNetwork
	}
	message := err.Error()
	if strings.Contains(message, "failed to retrieve credentials") ||
		strings.Contains(message, "no EC2 IMDS role found") {
		return failureCredentials
	}
	return failureUnknown
}

func (s *S3) diagnose(summary string, err error) *DiagnosticError {
	diagnostic := &DiagnosticError{
		Summary: fmt.Sprintf("%s %s", summary, s.Location()),
		Err:     err,
	}
	switch classify(err) {
	case failureCredentials:
		diagnostic.Causes = []string{
			"No AWS credentials were found, or they are invalid or expired",
		}
		diagnostic.Remediation = []string{
			"Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or AWS_PROFILE",
			"Refresh temporary credentials (aws sso login)",
		}
	case failurePermission:
		diagnostic.Causes = []string{
			"The credentials lack permission on bucket " + s.config.Bucket,
		}
		diagnostic.Remediation = []string{
			"Grant s3:ListBucket, s3:GetObject, s3:PutObject and s3:DeleteObject",
			"Check the bucket policy and any SCPs on the account",
		}
	case failureNetwork:
		causes := []string{"The S3 endpoint could not be reached"}
		if s.config.Endpoint != "" {
			causes = append(causes, "Custom endpoint "+s.config.Endpoint+" is not responding")
		}
		diagnostic.Causes = causes
		diagnostic.Remediation = []string{
			"Check network connectivity and proxy settings",
			"Verify FINCHVOX_S3_ENDPOINT and FINCHVOX_S3_REGION",
		}
	case failureBucketName:
		diagnostic.Causes = []string{
			"Bucket name " + s.config.Bucket + " is invalid or owned by another account",
		}
		diagnostic.Remediation = []string{
			"Choose a different FINCHVOX_S3_BUCKET",
		}
	default:
		diagnostic.Causes = []string{"Unexpected error from S3"}
		diagnostic.Remediation = []string{
			"Run with --log-level=debug for the full request trace",
		}
	}
	return diagnostic
}
