// Package archive uploads rendered analysis reports to S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cropscope/internal/config"
	"github.com/TobiSchelling/cropscope/internal/database"
	"github.com/TobiSchelling/cropscope/internal/swot"
)

const contentType = "text/markdown; charset=utf-8"

// Store writes reports into a single bucket.
type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
	log       logrus.FieldLogger
}

// New connects to the configured endpoint and creates the bucket if it does
// not exist yet.
func New(ctx context.Context, cfg config.Archive, accessKey, secretKey string, log logrus.FieldLogger) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
		log.WithField("bucket", cfg.Bucket).Info("Created archive bucket")
	}

	return newStore(cli, cfg.Bucket, cfg.PublicURL, log), nil
}

func newStore(cli *minio.Client, bucket, publicURL string, log logrus.FieldLogger) *Store {
	return &Store{
		client:    cli,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		log:       log,
	}
}

// Archive uploads the markdown report for a and returns its URL.
func (s *Store) Archive(ctx context.Context, a *database.Analysis) (string, error) {
	key := ObjectKey(a)
	body := []byte(Report(a))

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	url := s.URL(key)
	s.log.WithFields(logrus.Fields{"id": a.ID, "url": url}).Info("Archived analysis report")
	return url, nil
}

// URL returns the address of key, preferring the configured public URL.
func (s *Store) URL(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	ep := s.client.EndpointURL()
	return fmt.Sprintf("%s://%s/%s/%s", ep.Scheme, ep.Host, s.bucket, key)
}

// ObjectKey places reports under analyses/YYYY/MM/.
func ObjectKey(a *database.Analysis) string {
	return fmt.Sprintf("analyses/%s/%s.md", a.CreatedAt.UTC().Format("2006/01"), a.ID)
}

// Report renders a stored analysis as a standalone markdown document.
func Report(a *database.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s in %s\n\n", titleCase(a.Commodity), a.Country)
	fmt.Fprintf(&b, "_Generated %s_\n\n", a.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))

	sections := swot.Sections{
		Strengths:     a.Strengths,
		Weaknesses:    a.Weaknesses,
		Opportunities: a.Opportunities,
		Threats:       a.Threats,
	}
	if sections.Empty() {
		b.WriteString(strings.TrimSpace(a.Narrative))
		b.WriteString("\n")
	} else {
		b.WriteString(sections.Markdown())
	}

	if len(a.PartialFailures) > 0 {
		fmt.Fprintf(&b, "\n> Data unavailable from: %s\n", strings.Join(a.PartialFailures, ", "))
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
