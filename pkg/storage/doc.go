// Copyright © 2018 One Concern

// Package storage provides interface to handle the objects held by remote repositories.
//
// This package supports the following backends:
//   - local file system (file://)
//   - S3 (AWS, s3://)
//   - GCS (Google, gs://)
//   - HTTP servers (http://, https://)
package storage
