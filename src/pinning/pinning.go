package pinning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/eduverse-labs/eduverse/src/cid"
	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/google/uuid"
)

// CIDMetadataKey is the user-metadata key S3-compatible pinning services
// (Filebase and friends) use to report the content identifier of an object.
const CIDMetadataKey = "cid"

var ErrNotVideo = errors.New("file is not a video")

type UploadResult struct {
	CID  string
	Key  string
	Size int64
}

// OptimizeOptions are passed through to the dedicated gateway as query
// parameters. Zero values are omitted.
type OptimizeOptions struct {
	Width   int
	Quality int
	Format  string
}

func (o OptimizeOptions) query() string {
	q := url.Values{}
	if o.Width > 0 {
		q.Set("img-width", strconv.Itoa(o.Width))
	}
	if o.Quality > 0 {
		q.Set("img-quality", strconv.Itoa(o.Quality))
	}
	if o.Format != "" {
		q.Set("img-format", o.Format)
	}
	return q.Encode()
}

// S3Client talks to a pinning service through its S3-compatible API. Every
// object put into the bucket gets pinned, and the service reports the CID
// back as object metadata.
type S3Client struct {
	s3     *s3.Client
	bucket string

	dedicatedGateway string
	httpClient       *http.Client
}

func NewS3Client(ctx context.Context, cfg config.StorageConfig) (*S3Client, error) {
	var creds aws.CredentialsProvider = aws.AnonymousCredentials{}
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, oops.New(err, "failed to load storage client config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Client{
		s3:               client,
		bucket:           cfg.Bucket,
		dedicatedGateway: strings.TrimRight(cfg.DedicatedGateway, "/"),
		httpClient:       &http.Client{Timeout: 30 * time.Second},
	}, nil
}

var REIllegalFilenameChars = regexp.MustCompile(`[^\w\-.]`)

func SanitizeFilename(filename string) string {
	if filename == "" {
		return "unnamed"
	}
	return REIllegalFilenameChars.ReplaceAllString(filename, "_")
}

func ObjectKey(id, filename string) string {
	return fmt.Sprintf("%s/%s", id, SanitizeFilename(filename))
}

// UploadFile pins a single file and returns its content identifier.
func (c *S3Client) UploadFile(ctx context.Context, file models.LocalFile, meta map[string]string) (UploadResult, error) {
	log := logging.ExtractLogger(ctx)

	key := ObjectKey(uuid.New().String(), file.Name)

	upload := func() (int64, error) {
		f, err := os.Open(file.Path)
		if err != nil {
			return 0, oops.New(err, "failed to open %s", file.Path)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return 0, oops.New(err, "failed to stat %s", file.Path)
		}

		input := &s3.PutObjectInput{
			Bucket:        &c.bucket,
			Key:           &key,
			Body:          f,
			ContentLength: aws.Int64(info.Size()),
			Metadata:      meta,
		}
		if file.ContentType != "" {
			input.ContentType = aws.String(file.ContentType)
		}
		_, err = c.s3.PutObject(ctx, input)
		return info.Size(), err
	}

	size, err := upload()
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) && apiError.ErrorCode() == "NoSuchBucket" {
			log.Warn().Str("bucket", c.bucket).Msg("bucket missing, creating it")
			_, err := c.s3.CreateBucket(ctx, &s3.CreateBucketInput{
				Bucket: &c.bucket,
			})
			if err != nil {
				return UploadResult{}, oops.New(err, "failed to create bucket")
			}

			size, err = upload()
			if err != nil {
				return UploadResult{}, oops.New(err, "failed to upload %s", file.Name)
			}
		} else {
			return UploadResult{}, oops.New(err, "failed to upload %s", file.Name)
		}
	}

	head, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		return UploadResult{}, oops.New(err, "failed to read back %s", key)
	}
	contentID := head.Metadata[CIDMetadataKey]
	if contentID == "" {
		return UploadResult{}, oops.New(nil, "storage did not report a content identifier for %s", key)
	}
	if err := cid.Validate(contentID); err != nil {
		return UploadResult{}, err
	}

	log.Debug().Str("key", key).Str("cid", contentID).Int64("size", size).Msg("pinned file")
	return UploadResult{CID: contentID, Key: key, Size: size}, nil
}

// UploadVideo is UploadFile restricted to video content types.
func (c *S3Client) UploadVideo(ctx context.Context, file models.LocalFile, meta map[string]string) (UploadResult, error) {
	if !strings.HasPrefix(file.ContentType, "video/") {
		return UploadResult{}, oops.New(ErrNotVideo, "refusing to upload %s as video (content type %q)", file.Name, file.ContentType)
	}
	return c.UploadFile(ctx, file, meta)
}

// OptimizedURL returns the dedicated-gateway URL for a CID after checking
// that the gateway can actually serve it.
func (c *S3Client) OptimizedURL(ctx context.Context, contentID string, opts OptimizeOptions) (string, error) {
	if c.dedicatedGateway == "" {
		return "", oops.New(nil, "no dedicated gateway configured")
	}
	u := fmt.Sprintf("%s/ipfs/%s", c.dedicatedGateway, cid.Normalize(contentID))
	if q := opts.query(); q != "" {
		u += "?" + q
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return "", oops.New(err, "failed to create request")
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", oops.New(err, "dedicated gateway unreachable")
	}
	res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", oops.New(nil, "dedicated gateway returned %d for %s", res.StatusCode, contentID)
	}
	return u, nil
}
