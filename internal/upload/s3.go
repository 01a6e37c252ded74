package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/starford/folio/internal/profile"
)

// objectPutter is the part of the S3 client the uploader uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads each artifact with the AWS SDK and retries transient failures.
// Invalidation goes through the CLI.
type S3 struct {
	client     objectPutter
	bucket     string
	invalidate *CLI
	logger     *slog.Logger
	maxRetries uint64
}

// NewS3 builds an SDK client from the profile's settings.
func NewS3(ctx context.Context, p profile.Profile, cli *CLI, logger *slog.Logger) (*S3, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(p.AWS.Region),
	}
	if p.AWS.AccessKey != "" && p.AWS.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(p.AWS.AccessKey, p.AWS.SecretKey, ""),
		))
	} else if p.AWS.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(p.AWS.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("upload: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if p.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(p.AWS.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3(client, p.AWS.Bucket, cli, logger), nil
}

func newS3(client objectPutter, bucket string, cli *CLI, logger *slog.Logger) *S3 {
	return &S3{client: client, bucket: bucket, invalidate: cli, logger: logger, maxRetries: 4}
}

type object struct {
	local string
	key   string
}

func (u *S3) Upload(ctx context.Context, p profile.Profile, req Request) (Result, error) {
	objects, err := u.plan(p, req)
	if err != nil {
		return Result{}, failed("%v", err)
	}

	var (
		res  Result
		errs *multierror.Error
		out  strings.Builder
	)
	for _, obj := range objects {
		if err := u.put(ctx, req, obj); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", obj.key, err))
			continue
		}
		res.Uploaded++
		fmt.Fprintf(&out, "upload: %s to s3://%s/%s\n", obj.local, u.bucket, obj.key)
	}
	if err := errs.ErrorOrNil(); err != nil {
		res.Output = out.String()
		return res, failed("%v", err)
	}

	if req.Invalidate && u.invalidate != nil {
		stdout, err := u.invalidate.Invalidate(ctx, p)
		out.WriteString(stdout)
		if err != nil {
			u.logger.Error("upload: invalidation failed", slog.String("error", err.Error()))
			fmt.Fprintf(&out, "invalidation failed: %v\n", err)
		} else {
			res.Invalidated = true
		}
	}
	res.Output = out.String()
	return res, nil
}

// plan maps local artifacts to object keys, mirroring the CLI layout.
func (u *S3) plan(p profile.Profile, req Request) ([]object, error) {
	var objects []object
	add := func(dir, keyDir string) error {
		files, err := req.FS.Files(dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			rel := strings.TrimPrefix(f, dir+"/")
			objects = append(objects, object{local: f, key: path.Join(p.AWS.Prefix, keyDir, rel)})
		}
		return nil
	}
	if err := add(req.StagedDir, "notes"); err != nil {
		return nil, err
	}
	if err := add(req.MappingDir, "static/mapping"); err != nil {
		return nil, err
	}
	if req.ContentIndex != "" && req.FS.Exists(req.ContentIndex) {
		objects = append(objects, object{local: req.ContentIndex, key: path.Join(p.AWS.Prefix, "static/content/contentIndex.json")})
	}
	return objects, nil
}

func (u *S3) put(ctx context.Context, req Request, obj object) error {
	data, err := req.FS.Read(obj.local)
	if err != nil {
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	op := func() error {
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(obj.key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType(obj.key)),
		})
		return err
	}
	notify := func(err error, wait time.Duration) {
		u.logger.Warn("upload: put retry", slog.String("key", obj.key), slog.Duration("wait", wait), slog.String("error", err.Error()))
	}
	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, u.maxRetries), ctx), notify)
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
