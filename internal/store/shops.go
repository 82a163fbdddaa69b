package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"shopsync/internal/faults"
)

// ShopProfile is the shop's own record as reported by the source, refreshed
// on every bulk sync.
type ShopProfile struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	TenantID   string `dynamodbav:"TenantID" json:"tenant_id"`
	ExternalID string `dynamodbav:"ExternalID" json:"external_id"`
	Domain     string `dynamodbav:"Domain" json:"domain"`
	Name       string `dynamodbav:"Name" json:"name"`
	Currency   string `dynamodbav:"Currency" json:"currency"`
}

func (s *Store) UpsertShop(ctx context.Context, profile ShopProfile) error {
	profile.PK = tenantPK(profile.TenantID)
	profile.SK = fmt.Sprintf("SHOP#%s", profile.ExternalID)

	av, err := attributevalue.MarshalMap(profile)
	if err != nil {
		return fmt.Errorf("%w: marshal shop %s: %v", faults.ErrPersistence, profile.ExternalID, err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Shops),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("%w: put shop %s: %v", faults.ErrPersistence, profile.ExternalID, err)
	}
	return nil
}
