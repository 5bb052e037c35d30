package serials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"

	"kilnline/internal/domain"
)

// S3Options configure fetching the table from object storage. Credentials
// come from the default AWS chain unless Credentials is set.
type S3Options struct {
	Region      string
	Endpoint    string
	PathStyle   bool
	Credentials aws.CredentialsProvider
	HTTPClient  *http.Client
}

// Load reads a serial table from a local YAML/JSON file or from an
// s3://bucket/key URL. An empty source yields an empty table.
func Load(ctx context.Context, source string, prefixes []string, opts S3Options) (*Table, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return NewTable(nil, prefixes), nil
	}
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "s3://") {
		data, err = fetchS3(ctx, source, opts)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("read serial table %s: %w", source, err)
	}
	records, err := Decode(data, filepath.Ext(source))
	if err != nil {
		return nil, fmt.Errorf("parse serial table %s: %w", source, err)
	}
	return NewTable(records, prefixes), nil
}

// Decode parses a table keyed by serial number. ext selects JSON for ".json";
// anything else is read as YAML.
func Decode(data []byte, ext string) (map[string]domain.SerialRecord, error) {
	out := map[string]domain.SerialRecord{}
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func splitS3URL(raw string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(raw, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 url %q", raw)
	}
	return bucket, key, nil
}

func fetchS3(ctx context.Context, source string, opts S3Options) ([]byte, error) {
	bucket, key, err := splitS3URL(source)
	if err != nil {
		return nil, err
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.Credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(opts.Credentials))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.HTTPClient != nil {
			o.HTTPClient = opts.HTTPClient
		}
	})
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
