package etl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"go.uber.org/zap"
)

// RepairResult reports the outcome of one partition repair run.
type RepairResult struct {
	Ok        bool   `json:"ok"`
	QueryID   string `json:"query_id,omitempty"`
	State     string `json:"state,omitempty"`
	Database  string `json:"database,omitempty"`
	Table     string `json:"table,omitempty"`
	Workgroup string `json:"workgroup,omitempty"`
}

// PartitionRepair runs MSCK REPAIR TABLE against the warehouse table so
// Athena picks up the partitions the export wrote since the last run.
type PartitionRepair struct {
	athena *athena.Client
	log    *zap.Logger
}

func NewPartitionRepair(awsCfg aws.Config, log *zap.Logger) *PartitionRepair {
	return &PartitionRepair{
		athena: athena.NewFromConfig(awsCfg),
		log:    log,
	}
}

// Handle is triggered by an EventBridge schedule, after the export.
//
// Env:
// - ATHENA_DATABASE, ATHENA_TABLE  required
// - ATHENA_OUTPUT                  required, s3://bucket/prefix/
// - ATHENA_WORKGROUP               default "primary"
func (h *PartitionRepair) Handle(ctx context.Context) (RepairResult, error) {
	db := strings.TrimSpace(os.Getenv("ATHENA_DATABASE"))
	table := strings.TrimSpace(os.Getenv("ATHENA_TABLE"))
	workgroup := strings.TrimSpace(os.Getenv("ATHENA_WORKGROUP"))
	output := strings.TrimSpace(os.Getenv("ATHENA_OUTPUT"))

	if db == "" || table == "" || output == "" {
		return RepairResult{}, fmt.Errorf("missing env: ATHENA_DATABASE, ATHENA_TABLE, ATHENA_OUTPUT are required")
	}
	if !strings.HasPrefix(output, "s3://") {
		return RepairResult{}, fmt.Errorf("ATHENA_OUTPUT must start with s3://")
	}
	if workgroup == "" {
		workgroup = "primary"
	}

	startOut, err := h.athena.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(fmt.Sprintf("MSCK REPAIR TABLE %s;", table)),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(db),
		},
		WorkGroup: aws.String(workgroup),
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(output),
		},
	})
	if err != nil {
		return RepairResult{}, fmt.Errorf("StartQueryExecution: %w", err)
	}

	qid := aws.ToString(startOut.QueryExecutionId)
	h.log.Info("partition repair started",
		zap.String("query_id", qid),
		zap.String("database", db),
		zap.String("table", table))

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		st, err := h.athena.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return RepairResult{QueryID: qid}, fmt.Errorf("GetQueryExecution: %w", err)
		}

		state := string(st.QueryExecution.Status.State)
		switch state {
		case "SUCCEEDED":
			h.log.Info("partition repair succeeded", zap.String("query_id", qid))
			return RepairResult{
				Ok:        true,
				QueryID:   qid,
				State:     state,
				Database:  db,
				Table:     table,
				Workgroup: workgroup,
			}, nil
		case "FAILED", "CANCELLED":
			reason := ""
			if st.QueryExecution.Status.StateChangeReason != nil {
				reason = *st.QueryExecution.Status.StateChangeReason
			}
			return RepairResult{QueryID: qid, State: state}, fmt.Errorf("repair %s: %s", state, reason)
		}

		time.Sleep(2 * time.Second)
	}

	return RepairResult{QueryID: qid, State: "TIMEOUT"}, fmt.Errorf("repair timed out waiting for query %s", qid)
}
