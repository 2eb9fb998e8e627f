package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/models"
)

// ArchiveConfig locates the bucket blocks are archived to. Endpoint is set for
// S3-compatible stores such as MinIO or R2.
type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Archiver writes each sealed block to object storage as CBOR.
type Archiver struct {
	client *s3.Client
	bucket string
	enc    cbor.EncMode
	dec    cbor.DecMode
	log    *logrus.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(cfg ArchiveConfig, log *logrus.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := s3.Options{
		Region:                     cfg.Region,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		))
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	enc, err := cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("archive: cbor encoder: %w", err)
	}

	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("archive: cbor decoder: %w", err)
	}

	return &Archiver{
		client: s3.New(opts),
		bucket: cfg.Bucket,
		enc:    enc,
		dec:    dec,
		log:    log,
	}, nil
}

// Name identifies the sink in logs and metrics.
func (a *Archiver) Name() string { return "s3_archive" }

// ObjectKey returns the key block n is archived under.
func ObjectKey(n uint64) string {
	return fmt.Sprintf("blocks/%d.cbor", n)
}

// numberTag wraps JSON number literals that do not fit an int64 so they are
// restored digit for digit on read.
const numberTag uint64 = 0x6a736f6e

// toCBOR rewrites json.Number detail values into CBOR-native forms.
func toCBOR(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		return cbor.Tag{Number: numberTag, Content: string(t)}
	case map[string]any:
		for k, e := range t {
			t[k] = toCBOR(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = toCBOR(e)
		}
		return t
	default:
		return v
	}
}

// fromCBOR reverses toCBOR on decoded details.
func fromCBOR(v any) any {
	switch t := v.(type) {
	case cbor.Tag:
		if s, ok := t.Content.(string); ok && t.Number == numberTag {
			return json.Number(s)
		}
		return v
	case map[string]any:
		for k, e := range t {
			t[k] = fromCBOR(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = fromCBOR(e)
		}
		return t
	default:
		return v
	}
}

// WriteBlock stores b under ObjectKey(b.BlockNumber).
func (a *Archiver) WriteBlock(ctx context.Context, b *models.Block) error {
	out := b.Clone()
	for i := range out.Events {
		toCBOR(out.Events[i].Details)
	}

	data, err := a.enc.Marshal(out)
	if err != nil {
		return fmt.Errorf("archive: encoding block %d: %w", b.BlockNumber, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(ObjectKey(b.BlockNumber)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/cbor"),
		Metadata: map[string]string{
			"block-hash": b.BlockHash,
		},
	})
	if err != nil {
		return fmt.Errorf("archive: uploading block %d: %w", b.BlockNumber, err)
	}

	a.log.WithFields(logrus.Fields{
		"block_number": b.BlockNumber,
		"bytes":        len(data),
	}).Debug("archive.block_written")

	return nil
}

// ReadBlock fetches and decodes archived block n.
func (a *Archiver) ReadBlock(ctx context.Context, n uint64) (*models.Block, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(ObjectKey(n)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("archived block %d: %w", n, models.ErrNotFound)
		}
		return nil, fmt.Errorf("archive: downloading block %d: %w", n, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: reading block %d: %w", n, err)
	}

	var b models.Block
	if err := a.dec.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("archive: decoding block %d: %w", n, err)
	}

	for i := range b.Events {
		if b.Events[i].Details == nil {
			b.Events[i].Details = map[string]any{}
		}
		fromCBOR(b.Events[i].Details)
	}

	return &b, nil
}
