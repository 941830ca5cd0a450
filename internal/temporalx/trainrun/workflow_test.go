package trainrun

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/askstack/askstack-backend/internal/domain"
)

func workflowInput() Input {
	return Input{
		JobID:          uuid.New(),
		AgentID:        uuid.New(),
		UserID:         uuid.New(),
		TotalSources:   2,
		MaxAttempts:    3,
		BackoffSeconds: 1,
		TimeoutSeconds: 60,
	}
}

func TestWorkflowRetriesThenSucceeds(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	attempts := 0
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in Input) (domain.TrainingJobResult, error) {
			attempts++
			if attempts < 3 {
				return domain.TrainingJobResult{}, errors.New("transient: pinecone 503")
			}
			return domain.TrainingJobResult{Success: true, ProcessedSources: in.TotalSources}, nil
		},
		activity.RegisterOptions{Name: ActivityRunPipeline},
	)
	recorded := false
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in Input, message string) error {
			recorded = true
			return nil
		},
		activity.RegisterOptions{Name: ActivityRecordFailure},
	)

	env.ExecuteWorkflow(Workflow, workflowInput())

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var res domain.TrainingJobResult
	if err := env.GetWorkflowResult(&res); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if !res.Success || res.ProcessedSources != 2 {
		t.Fatalf("result = %+v", res)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if recorded {
		t.Fatal("failure recorded on a successful run")
	}
}

func TestWorkflowExhaustsRetriesAndRecordsFailure(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	attempts := 0
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in Input) (domain.TrainingJobResult, error) {
			attempts++
			return domain.TrainingJobResult{}, errors.New("embeddings unavailable")
		},
		activity.RegisterOptions{Name: ActivityRunPipeline},
	)
	var recordedMessage string
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in Input, message string) error {
			recordedMessage = message
			return nil
		},
		activity.RegisterOptions{Name: ActivityRecordFailure},
	)

	env.ExecuteWorkflow(Workflow, workflowInput())

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if env.GetWorkflowError() == nil {
		t.Fatal("expected workflow to fail")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if recordedMessage == "" {
		t.Fatal("terminal failure was not recorded")
	}
	if !strings.Contains(recordedMessage, "embeddings unavailable") {
		t.Fatalf("recorded message = %q", recordedMessage)
	}
}

func TestWorkflowRejectsIncompleteInput(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	called := false
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in Input) (domain.TrainingJobResult, error) {
			called = true
			return domain.TrainingJobResult{}, nil
		},
		activity.RegisterOptions{Name: ActivityRunPipeline},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in Input, message string) error { return nil },
		activity.RegisterOptions{Name: ActivityRecordFailure},
	)

	env.ExecuteWorkflow(Workflow, Input{AgentID: uuid.New()})

	if env.GetWorkflowError() == nil {
		t.Fatal("expected validation error")
	}
	if called {
		t.Fatal("pipeline ran despite incomplete input")
	}
}
