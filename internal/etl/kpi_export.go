// Package etl moves daily KPI rows into the analytics warehouse: a
// scheduled parquet export to S3 and an Athena partition repair to make
// the new files queryable.
package etl

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	"shopsync/internal/store"
)

// kpiParquetRow matches the Glue table columns for the daily_kpis table.
// AOV is optional: a zero-conversion day exports NULL, not 0.
type kpiParquetRow struct {
	TenantID    string   `parquet:"name=tenant_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	MetricDate  string   `parquet:"name=metric_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Source      string   `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Revenue     float64  `parquet:"name=revenue, type=DOUBLE"`
	Conversions int64    `parquet:"name=conversions, type=INT64"`
	AOV         *float64 `parquet:"name=aov, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// KPIReader is the slice of the store the export needs.
type KPIReader interface {
	ListTenants(ctx context.Context, source string) ([]string, error)
	KPIRange(ctx context.Context, tenantID, source, from, to string) ([]store.DailyKPIRow, error)
}

// KPIExport writes one parquet file per (date, tenant) under
// dt=YYYY-MM-DD/tenant_id=<id>/, the partition layout the Glue table
// declares.
type KPIExport struct {
	store KPIReader
	s3    *s3.Client
	glue  *glue.Client
	log   *zap.Logger
}

func NewKPIExport(st KPIReader, awsCfg aws.Config, log *zap.Logger) *KPIExport {
	return &KPIExport{
		store: st,
		s3:    s3.NewFromConfig(awsCfg),
		glue:  glue.NewFromConfig(awsCfg),
		log:   log,
	}
}

// Handle is triggered by an EventBridge schedule. It exports the KPI rows
// for the last ETL_DAYS_BACK days (default 1, today included) for every
// connected tenant.
//
// Env:
// - ANALYTICS_BUCKET       target bucket; resolved from the Glue table
//                          location when unset
// - KPI_EXPORT_PREFIX      default "daily_kpis/"
// - ETL_DAYS_BACK          default "1", capped at 90
// - GLUE_DATABASE, GLUE_TABLE  used for location fallback
func (h *KPIExport) Handle(ctx context.Context, _ events.CloudWatchEvent) (map[string]any, error) {
	bucket, prefix, err := h.resolveTarget(ctx)
	if err != nil {
		return nil, err
	}

	daysBack := 1
	if v := strings.TrimSpace(os.Getenv("ETL_DAYS_BACK")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 90 {
			daysBack = n
		}
	}

	tenants, err := h.store.ListTenants(ctx, store.SourceShopify)
	if err != nil {
		return nil, err
	}
	if len(tenants) == 0 {
		return map[string]any{"ok": true, "written": 0, "reason": "no connected tenants"}, nil
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -(daysBack - 1)).Format("2006-01-02")
	to := now.Format("2006-01-02")

	written := 0
	for _, tenantID := range tenants {
		rows, err := h.store.KPIRange(ctx, tenantID, store.SourceShopify, from, to)
		if err != nil {
			return nil, fmt.Errorf("load kpis for tenant %s: %w", tenantID, err)
		}

		for _, row := range rows {
			key := fmt.Sprintf("%sdt=%s/tenant_id=%s/part-%s.parquet",
				prefix, row.Date, tenantID, randHex(8))

			if err := h.writeParquetRow(ctx, bucket, key, kpiParquetRow{
				TenantID:    row.TenantID,
				MetricDate:  row.Date,
				Source:      row.Source,
				Revenue:     row.Revenue,
				Conversions: int64(row.Conversions),
				AOV:         row.AOV,
			}); err != nil {
				return nil, fmt.Errorf("write parquet for tenant %s dt %s: %w", tenantID, row.Date, err)
			}
			written++
		}
	}

	h.log.Info("kpi export finished",
		zap.Int("tenants", len(tenants)),
		zap.Int("days_back", daysBack),
		zap.Int("written", written),
		zap.String("bucket", bucket))

	return map[string]any{
		"ok":        true,
		"tenants":   len(tenants),
		"days_back": daysBack,
		"written":   written,
		"bucket":    bucket,
		"prefix":    prefix,
	}, nil
}

// resolveTarget prefers explicit env config and falls back to the
// location registered on the Glue table, so the export and the catalog
// cannot drift apart silently.
func (h *KPIExport) resolveTarget(ctx context.Context) (bucket, prefix string, err error) {
	bucket = strings.TrimSpace(os.Getenv("ANALYTICS_BUCKET"))
	prefix = ensureTrailingSlash(strings.TrimSpace(os.Getenv("KPI_EXPORT_PREFIX")))

	if bucket != "" {
		if prefix == "" {
			prefix = "daily_kpis/"
		}
		return bucket, prefix, nil
	}

	db := strings.TrimSpace(os.Getenv("GLUE_DATABASE"))
	tbl := strings.TrimSpace(os.Getenv("GLUE_TABLE"))
	if db == "" || tbl == "" {
		return "", "", fmt.Errorf("missing env: set ANALYTICS_BUCKET or GLUE_DATABASE+GLUE_TABLE")
	}

	out, err := h.glue.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(db),
		Name:         aws.String(tbl),
	})
	if err != nil {
		return "", "", fmt.Errorf("glue GetTable %s.%s: %w", db, tbl, err)
	}
	location := aws.ToString(out.Table.StorageDescriptor.Location)

	bucket, prefix, err = splitS3Location(location)
	if err != nil {
		return "", "", fmt.Errorf("glue table %s.%s: %w", db, tbl, err)
	}
	return bucket, prefix, nil
}

func splitS3Location(location string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("location %q is not an s3 uri", location)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, ensureTrailingSlash(prefix), nil
}

func (h *KPIExport) writeParquetRow(ctx context.Context, bucket, key string, row kpiParquetRow) error {
	localPath := filepath.Join(os.TempDir(), "kpi_export_"+randHex(8)+".parquet")
	defer func() { _ = os.Remove(localPath) }()

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(kpiParquetRow), 1)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024

	if err := pw.Write(row); err != nil {
		_ = pw.WriteStop()
		_ = fw.Close()
		return fmt.Errorf("parquet write row: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read parquet tmp: %w", err)
	}

	_, err = h.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("s3 putobject: %w", err)
	}
	return nil
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
