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

// DailyKPIRow holds one day's aggregate metrics for one tenant and source.
// Spend, Clicks, Cos and Roas belong to other sources sharing this table;
// they stay nil here and are omitted from the item rather than zeroed.
type DailyKPIRow struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	TenantID    string   `dynamodbav:"TenantID" json:"tenant_id"`
	Date        string   `dynamodbav:"Date" json:"date"`
	Source      string   `dynamodbav:"Source" json:"source"`
	Revenue     float64  `dynamodbav:"Revenue" json:"revenue"`
	Conversions int      `dynamodbav:"Conversions" json:"conversions"`
	AOV         *float64 `dynamodbav:"AOV,omitempty" json:"aov"`
	Spend       *float64 `dynamodbav:"Spend,omitempty" json:"spend"`
	Clicks      *float64 `dynamodbav:"Clicks,omitempty" json:"clicks"`
	Cos         *float64 `dynamodbav:"Cos,omitempty" json:"cos"`
	Roas        *float64 `dynamodbav:"Roas,omitempty" json:"roas"`
}

func kpiSK(source, date string) string { return fmt.Sprintf("KPI#%s#%s", source, date) }

// UpsertKPIs fully replaces each (tenant, date, source) row. The replace
// is what makes racing recomputes converge: both write the value computed
// from their own full read, never an increment.
func (s *Store) UpsertKPIs(ctx context.Context, rows []DailyKPIRow) error {
	for _, row := range rows {
		row.PK = tenantPK(row.TenantID)
		row.SK = kpiSK(row.Source, row.Date)

		av, err := attributevalue.MarshalMap(row)
		if err != nil {
			return fmt.Errorf("%w: marshal kpi %s/%s: %v", faults.ErrPersistence, row.TenantID, row.Date, err)
		}

		_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tables.Kpis),
			Item:      av,
		})
		if err != nil {
			return fmt.Errorf("%w: put kpi %s/%s: %v", faults.ErrPersistence, row.TenantID, row.Date, err)
		}
	}
	return nil
}

// DeleteKPI removes the row for a date that no longer has any orders,
// rather than leaving a stale aggregate behind.
func (s *Store) DeleteKPI(ctx context.Context, tenantID, date, source string) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tables.Kpis),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: kpiSK(source, date)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: delete kpi %s/%s: %v", faults.ErrPersistence, tenantID, date, err)
	}
	return nil
}

// KPIRange returns the tenant's KPI rows with from <= date <= to. The date
// is the last segment of the sort key, so a key range covers it directly.
func (s *Store) KPIRange(ctx context.Context, tenantID, source, from, to string) ([]DailyKPIRow, error) {
	var rows []DailyKPIRow

	var startKey map[string]types.AttributeValue
	for {
		out, err := s.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tables.Kpis),
			KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":   &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
				":from": &types.AttributeValueMemberS{Value: kpiSK(source, from)},
				":to":   &types.AttributeValueMemberS{Value: kpiSK(source, to)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: query kpis for %s: %v", faults.ErrPersistence, tenantID, err)
		}

		var page []DailyKPIRow
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, &DecodeError{Table: s.tables.Kpis, Err: err}
		}
		rows = append(rows, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return rows, nil
}
