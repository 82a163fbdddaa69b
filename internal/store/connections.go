package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"shopsync/internal/faults"
)

const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusDisconnected = "disconnected"
	ConnectionStatusError        = "error"
)

// Connection is a tenant's authorized link to one order source. Written by
// the OAuth connect flow; read-only here. The key layout (one SK per
// source under the tenant PK) enforces at most one connection per
// (tenant, source).
type Connection struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`

	TenantID       string            `dynamodbav:"TenantID"`
	Source         string            `dynamodbav:"Source"`
	Status         string            `dynamodbav:"Status"`
	AccessTokenEnc string            `dynamodbav:"AccessTokenEnc"`
	Meta           map[string]string `dynamodbav:"Meta"`
}

// StoreDomain returns the shop domain recorded on the connection,
// preferring the canonical meta field over the legacy one.
func (c *Connection) StoreDomain() string {
	if d := c.Meta["store_domain"]; d != "" {
		return d
	}
	return c.Meta["shop"]
}

func tenantPK(tenantID string) string { return fmt.Sprintf("TENANT#%s", tenantID) }

// GetConnection loads the tenant's connection for the given source. Only a
// connected connection is returned; anything else is ErrTenantNotFound.
func (s *Store) GetConnection(ctx context.Context, tenantID, source string) (*Connection, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tables.Connections),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("SOURCE#%s", source)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get connection for tenant %s: %v", faults.ErrPersistence, tenantID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%w: no %s connection for tenant %s", faults.ErrTenantNotFound, source, tenantID)
	}

	var conn Connection
	if err := attributevalue.UnmarshalMap(out.Item, &conn); err != nil {
		return nil, &DecodeError{Table: s.tables.Connections, Err: err}
	}
	if conn.Status != ConnectionStatusConnected {
		return nil, fmt.Errorf("%w: tenant %s connection status is %q", faults.ErrTenantNotFound, tenantID, conn.Status)
	}
	return &conn, nil
}

// ListConnectedConnections returns every connected connection for the
// source, across all tenants. Backs webhook tenant resolution; the table
// is small (one item per installed shop) so a filtered scan is fine.
func (s *Store) ListConnectedConnections(ctx context.Context, source string) ([]Connection, error) {
	var conns []Connection

	var startKey map[string]types.AttributeValue
	for {
		out, err := s.db.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tables.Connections),
			ExclusiveStartKey: startKey,
			FilterExpression:  aws.String("#src = :src AND #st = :st"),
			ExpressionAttributeNames: map[string]string{
				"#src": "Source",
				"#st":  "Status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":src": &types.AttributeValueMemberS{Value: source},
				":st":  &types.AttributeValueMemberS{Value: ConnectionStatusConnected},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scan connections: %v", faults.ErrPersistence, err)
		}

		var page []Connection
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, &DecodeError{Table: s.tables.Connections, Err: err}
		}
		conns = append(conns, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return conns, nil
}

// ListTenants returns the distinct tenant ids that have a connected
// connection for the source. Used by the warehouse export.
func (s *Store) ListTenants(ctx context.Context, source string) ([]string, error) {
	conns, err := s.ListConnectedConnections(ctx, source)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	tenants := make([]string, 0, len(conns))
	for _, c := range conns {
		id := strings.TrimSpace(c.TenantID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		tenants = append(tenants, id)
	}
	return tenants, nil
}
