package trainrun

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/askstack/askstack-backend/internal/domain"
)

// Workflow runs one training job. The pipeline activity carries the whole
// run; its retry policy is the job's retry policy, so a transient failure
// re-executes the entire pipeline with exponential backoff up to MaxAttempts.
// After the last attempt fails, the failure is stamped onto the job row and
// the workflow fails.
func Workflow(ctx workflow.Context, in Input) (domain.TrainingJobResult, error) {
	var out domain.TrainingJobResult
	if in.JobID == uuid.Nil || in.AgentID == uuid.Nil || in.UserID == uuid.Nil {
		return out, fmt.Errorf("trainrun: incomplete input")
	}

	maxAttempts := in.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	backoff := time.Duration(in.BackoffSeconds) * time.Second
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    backoff,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    int32(maxAttempts),
		},
	})

	runErr := workflow.ExecuteActivity(runCtx, ActivityRunPipeline, in).Get(runCtx, &out)
	if runErr == nil {
		return out, nil
	}

	// Retries are exhausted (or the error was non-retryable). Stamp the
	// terminal failure on the job row with a short, independent retry budget.
	failCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})
	if err := workflow.ExecuteActivity(failCtx, ActivityRecordFailure, in, runErr.Error()).Get(failCtx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("Failed to record terminal job failure", "job_id", in.JobID, "error", err)
	}
	return out, runErr
}
