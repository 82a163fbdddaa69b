// Package store is the DynamoDB persistence layer. A Store is built once
// at process start and passed by handle into every pipeline; all reads
// decode into typed rows and report shape mismatches as DecodeError.
package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"shopsync/internal/config"
)

// SourceShopify tags connections, KPI rows and bulk-sync job entries.
// Webhook-origin job entries use SourceShopifyWebhook so status reporting
// can tell the two paths apart.
const (
	SourceShopify        = "shopify"
	SourceShopifyWebhook = "shopify_webhook"
)

type Store struct {
	db     *dynamodb.Client
	tables config.Tables
}

func New(awsCfg aws.Config, tables config.Tables) *Store {
	return &Store{
		db:     dynamodb.NewFromConfig(awsCfg),
		tables: tables,
	}
}

// DecodeError reports a stored item that does not match the expected row
// shape. It is distinct from a persistence failure: the read succeeded but
// the data is malformed.
type DecodeError struct {
	Table string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode item from %s: %v", e.Table, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
