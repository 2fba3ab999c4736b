// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader faz upload best-effort, fire-and-forget, dos snapshots
// rotacionados para um bucket configurado pelo operador — útil para
// frotas rodando este cliente sem supervisão. Um upload que falha é só
// logado e descartado: o snapshot continua no disco local, não há o que
// retomar.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Uploader monta um uploader para bucket/prefix em region. Quando
// accessKeyID/secretAccessKey vêm ambos preenchidos, são usados como
// credenciais estáticas; caso contrário vale a cadeia default da AWS
// (ambiente, shared config, IMDS).
func NewS3Uploader(ctx context.Context, bucket, prefix, region, accessKeyID, secretAccessKey string) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: loading AWS config: %w", err)
	}
	return &S3Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Upload envia o arquivo em localPath para s3://bucket/prefix/<basename>.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("diagnostics: opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	// Chave S3 sempre usa "/" independente do separador do SO.
	key := path.Join(u.prefix, filepath.Base(localPath))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("diagnostics: uploading %s to s3://%s/%s: %w", localPath, u.bucket, key, err)
	}
	return nil
}
