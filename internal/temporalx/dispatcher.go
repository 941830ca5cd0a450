package temporalx

import (
	"context"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/logger"
	"github.com/askstack/askstack-backend/internal/services"
	"github.com/askstack/askstack-backend/internal/temporalx/trainrun"
)

// Dispatcher enqueues training runs onto the task queue. It implements
// services.TrainingQueue.
type Dispatcher struct {
	log    *logger.Logger
	tc     temporalsdkclient.Client
	cfg    Config
	policy QueuePolicy
}

func NewDispatcher(log *logger.Logger, tc temporalsdkclient.Client) (*Dispatcher, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	return &Dispatcher{
		log:    log,
		tc:     tc,
		cfg:    LoadConfig(),
		policy: LoadQueuePolicy(),
	}, nil
}

var _ services.TrainingQueue = (*Dispatcher)(nil)

// Dispatch starts the training workflow under the job's workflow ID. The ID
// carries the trigger timestamp, so duplicate rejection only bites if the
// same job row is dispatched twice.
func (d *Dispatcher) Dispatch(ctx context.Context, job *domain.TrainingJobRun, payload domain.TrainingJobPayload) error {
	if d == nil || d.tc == nil {
		return fmt.Errorf("training queue unavailable")
	}
	if job == nil {
		return fmt.Errorf("missing job")
	}

	in := trainrun.Input{
		JobID:        payload.JobID,
		AgentID:      payload.AgentID,
		UserID:       payload.UserID,
		TotalSources: payload.TotalSources,

		MaxAttempts:    d.policy.MaxAttempts,
		BackoffSeconds: d.policy.BackoffSeconds,
		TimeoutSeconds: d.policy.TimeoutSeconds,
	}

	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    job.WorkflowID,
		TaskQueue:             d.cfg.TaskQueue,
		StartDelay:            d.policy.StartDelay,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}

	run, err := d.tc.ExecuteWorkflow(ctx, opts, trainrun.WorkflowName, in)
	if err != nil {
		return fmt.Errorf("start training workflow: %w", err)
	}
	if d.log != nil {
		d.log.Info("Training workflow dispatched", "workflow_id", job.WorkflowID, "run_id", run.GetRunID(), "agent_id", payload.AgentID)
	}
	return nil
}
