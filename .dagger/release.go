package main

import (
	"context"
	"fmt"

	"dagger/mnemo/internal/dagger"
)

// bucketCreds are the S3-compatible credentials used to publish binaries.
type bucketCreds struct {
	endpoint  *dagger.Secret
	bucket    *dagger.Secret
	accessKey *dagger.Secret
	secretKey *dagger.Secret
}

// publish mirrors artifacts into each prefix of the release bucket with the
// MinIO client.
func (t *Mnemo) publish(ctx context.Context, artifacts *dagger.Directory, creds bucketCreds, prefixes ...string) error {
	mc := dag.Container().
		From("minio/mc:latest").
		WithSecretVariable("MC_ENDPOINT", creds.endpoint).
		WithSecretVariable("MC_BUCKET", creds.bucket).
		WithSecretVariable("MC_ACCESS_KEY", creds.accessKey).
		WithSecretVariable("MC_SECRET_KEY", creds.secretKey).
		WithDirectory("/artifacts", artifacts).
		WithExec([]string{"sh", "-c", `mc alias set release "$MC_ENDPOINT" "$MC_ACCESS_KEY" "$MC_SECRET_KEY"`})

	for _, prefix := range prefixes {
		script := fmt.Sprintf(`mc mirror --overwrite /artifacts "release/$MC_BUCKET/%s"`, prefix)
		if _, err := mc.WithExec([]string{"sh", "-c", script}).Sync(ctx); err != nil {
			return fmt.Errorf("publishing artifacts to %s: %w", prefix, err)
		}
	}
	return nil
}

// Release builds versioned binaries and publishes them under the version
// and "latest".
func (t *Mnemo) Release(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	endpoint *dagger.Secret,
	bucket *dagger.Secret,
	accessKey *dagger.Secret,
	secretKey *dagger.Secret,
) (*dagger.Directory, error) {
	artifacts := t.BuildRelease(ctx, version, commit)
	creds := bucketCreds{endpoint: endpoint, bucket: bucket, accessKey: accessKey, secretKey: secretKey}
	return artifacts, t.publish(ctx, artifacts, creds, version, "latest")
}

// Nightly builds the current commit and publishes it under "nightly".
func (t *Mnemo) Nightly(
	ctx context.Context,

	// Git commit SHA
	commit string,

	endpoint *dagger.Secret,
	bucket *dagger.Secret,
	accessKey *dagger.Secret,
	secretKey *dagger.Secret,
) (*dagger.Directory, error) {
	artifacts := t.BuildRelease(ctx, "nightly", commit)
	creds := bucketCreds{endpoint: endpoint, bucket: bucket, accessKey: accessKey, secretKey: secretKey}
	return artifacts, t.publish(ctx, artifacts, creds, "nightly")
}
