package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"shopsync/internal/faults"
)

// OrderRow is the canonical internal representation of one Shopify order.
// Items key on the external order id alone; the upstream id space is
// assumed globally unique across tenants (same conflict key the analytics
// platform has always used). ProcessedAt is a YYYY-MM-DD calendar date,
// empty when the source order is unprocessed.
type OrderRow struct {
	PK string `dynamodbav:"PK" json:"-"`

	GSI1PK string `dynamodbav:"GSI1PK,omitempty" json:"-"`
	GSI1SK string `dynamodbav:"GSI1SK,omitempty" json:"-"`

	TenantID      string  `dynamodbav:"TenantID" json:"tenant_id"`
	OrderID       string  `dynamodbav:"OrderID" json:"order_id"`
	ProcessedAt   string  `dynamodbav:"ProcessedAt,omitempty" json:"processed_at,omitempty"`
	TotalPrice    float64 `dynamodbav:"TotalPrice" json:"total_price"`
	DiscountTotal float64 `dynamodbav:"DiscountTotal" json:"discount_total"`
	Currency      string  `dynamodbav:"Currency,omitempty" json:"currency,omitempty"`
	CustomerID    string  `dynamodbav:"CustomerID,omitempty" json:"customer_id,omitempty"`
	IsRefund      bool    `dynamodbav:"IsRefund" json:"is_refund"`
}

func orderPK(orderID string) string { return fmt.Sprintf("ORDER#%s", orderID) }

func orderDateGSI1PK(tenantID, date string) string {
	return fmt.Sprintf("TENANT#%s#DATE#%s", tenantID, date)
}

// withKeys fills the table keys. Orders without a processed date get no
// GSI1 entry: they are stored but never aggregated.
func (r OrderRow) withKeys() OrderRow {
	r.PK = orderPK(r.OrderID)
	if r.ProcessedAt != "" {
		r.GSI1PK = orderDateGSI1PK(r.TenantID, r.ProcessedAt)
		r.GSI1SK = r.OrderID
	} else {
		r.GSI1PK = ""
		r.GSI1SK = ""
	}
	return r
}

// UpsertOrder inserts or fully replaces the order row. PutItem is atomic,
// so concurrent redeliveries of the same order cannot interleave.
func (s *Store) UpsertOrder(ctx context.Context, row OrderRow) error {
	av, err := attributevalue.MarshalMap(row.withKeys())
	if err != nil {
		return fmt.Errorf("%w: marshal order %s: %v", faults.ErrPersistence, row.OrderID, err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Orders),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("%w: put order %s: %v", faults.ErrPersistence, row.OrderID, err)
	}
	return nil
}

func (s *Store) UpsertOrders(ctx context.Context, rows []OrderRow) error {
	for _, row := range rows {
		if err := s.UpsertOrder(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// OrdersForDate returns every stored order for the tenant on one calendar
// date. The webhook KPI recompute reads this full set rather than trusting
// the single incoming order.
func (s *Store) OrdersForDate(ctx context.Context, tenantID, date string) ([]OrderRow, error) {
	var rows []OrderRow

	var startKey map[string]types.AttributeValue
	for {
		out, err := s.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tables.Orders),
			IndexName:              aws.String("GSI1"),
			KeyConditionExpression: aws.String("GSI1PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: orderDateGSI1PK(tenantID, date)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: query orders for %s/%s: %v", faults.ErrPersistence, tenantID, date, err)
		}

		var page []OrderRow
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, &DecodeError{Table: s.tables.Orders, Err: err}
		}
		rows = append(rows, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return rows, nil
}
