package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"shopsync/internal/faults"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobLogEntry is an audit record of one sync attempt. Bulk syncs create a
// running entry up front and finalize it; webhook attempts write a single
// already-finalized entry. Entries are never deleted.
type JobLogEntry struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"id"`

	TenantID   string    `dynamodbav:"TenantID" json:"tenant_id"`
	Source     string    `dynamodbav:"Source" json:"source"`
	Status     JobStatus `dynamodbav:"Status" json:"status"`
	StartedAt  string    `dynamodbav:"StartedAt" json:"started_at"`
	FinishedAt string    `dynamodbav:"FinishedAt,omitempty" json:"finished_at,omitempty"`
	Error      string    `dynamodbav:"Error,omitempty" json:"error,omitempty"`
}

func jobSK(now time.Time) string {
	return fmt.Sprintf("JOB#%s#%s", now.UTC().Format(time.RFC3339Nano), randHex(4))
}

// CreateRunningJob writes the running entry before any external call, so a
// crash mid-sync is still observable as a stuck running row. Returns the
// job id used to finalize it.
func (s *Store) CreateRunningJob(ctx context.Context, tenantID, source string) (string, error) {
	now := time.Now().UTC()
	entry := JobLogEntry{
		PK:        tenantPK(tenantID),
		SK:        jobSK(now),
		TenantID:  tenantID,
		Source:    source,
		Status:    JobStatusRunning,
		StartedAt: now.Format(time.RFC3339),
	}

	av, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return "", fmt.Errorf("%w: marshal job entry: %v", faults.ErrPersistence, err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Jobs),
		Item:      av,
	})
	if err != nil {
		return "", fmt.Errorf("%w: create job entry: %v", faults.ErrPersistence, err)
	}
	return entry.SK, nil
}

// FinishJob finalizes a running entry with the terminal status and an
// optional error message.
func (s *Store) FinishJob(ctx context.Context, tenantID, jobID string, status JobStatus, errMsg string) error {
	updateExpr := "SET #st = :st, FinishedAt = :f"
	exprNames := map[string]string{"#st": "Status"}
	exprVals := map[string]types.AttributeValue{
		":st": &types.AttributeValueMemberS{Value: string(status)},
		":f":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
	}
	if errMsg != "" {
		updateExpr += ", #err = :err"
		exprNames["#err"] = "Error"
		exprVals[":err"] = &types.AttributeValueMemberS{Value: errMsg}
	}

	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tables.Jobs),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:          aws.String(updateExpr),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprVals,
	})
	if err != nil {
		return fmt.Errorf("%w: finish job %s: %v", faults.ErrPersistence, jobID, err)
	}
	return nil
}

// RecordFinishedJob writes a single already-finalized entry. Webhook
// attempts use this exclusively (no running state to straddle); bulk syncs
// fall back to it when the running entry itself could not be created.
func (s *Store) RecordFinishedJob(ctx context.Context, tenantID, source string, status JobStatus, errMsg string) error {
	now := time.Now().UTC()
	entry := JobLogEntry{
		PK:         tenantPK(tenantID),
		SK:         jobSK(now),
		TenantID:   tenantID,
		Source:     source,
		Status:     status,
		StartedAt:  now.Format(time.RFC3339),
		FinishedAt: now.Format(time.RFC3339),
		Error:      errMsg,
	}

	av, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("%w: marshal finished job entry: %v", faults.ErrPersistence, err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Jobs),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("%w: record finished job: %v", faults.ErrPersistence, err)
	}
	return nil
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
