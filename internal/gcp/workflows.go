package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowTrigger starts executions of the per-order orchestration workflow.
type WorkflowTrigger struct {
	client    *executions.Client
	projectID string
	location  string
	workflow  string
}

// NewWorkflowTrigger creates the executions client for the given workflow.
func NewWorkflowTrigger(ctx context.Context, projectID, location, workflow string) (*WorkflowTrigger, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowTrigger{
		client:    client,
		projectID: projectID,
		location:  location,
		workflow:  workflow,
	}, nil
}

// Trigger starts one execution with the given JSON-serializable argument and
// returns the execution name.
func (t *WorkflowTrigger) Trigger(ctx context.Context, argument any) (string, error) {
	payload, err := json.Marshal(argument)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow argument: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", t.projectID, t.location, t.workflow),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	exec, err := t.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create workflow execution: %w", err)
	}
	return exec.GetName(), nil
}

// Close releases the underlying client.
func (t *WorkflowTrigger) Close() error {
	return t.client.Close()
}
