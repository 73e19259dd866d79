package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"charterline/internal/domain"
	"charterline/internal/engine"
)

func registerAgentActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-agent-action",
		Method:        http.MethodPost,
		Path:          "/agent-actions",
		Summary:       "Request an agent action",
		Description:   "Denylisted and disallowed actions are rejected without leaving a record.",
		Tags:          []string{"agent-actions"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body RequestActionRequest `json:"body"`
	}) (*output[domain.AgentAction], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		a, err := e.RequestAction(ctx, input.Body.AgentID, domain.ActionType(input.Body.Action), input.Body.Input)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agent-actions",
		Method:      http.MethodGet,
		Path:        "/agent-actions",
		Summary:     "List agent actions",
		Tags:        []string{"agent-actions"},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,approved,rejected,completed"`
	}) (*output[[]domain.AgentAction], error) {
		items, err := e.ListActions(ctx, domain.ActionStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent-action",
		Method:      http.MethodGet,
		Path:        "/agent-actions/{id}",
		Summary:     "Get agent action",
		Tags:        []string{"agent-actions"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[domain.AgentAction], error) {
		a, err := e.GetAction(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-agent-action",
		Method:      http.MethodPost,
		Path:        "/agent-actions/{id}/approve",
		Summary:     "Approve a pending action",
		Tags:        []string{"agent-actions"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *idPath) (*output[domain.AgentAction], error) {
		a, err := e.ApproveAction(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-agent-action",
		Method:      http.MethodPost,
		Path:        "/agent-actions/{id}/reject",
		Summary:     "Reject a pending action",
		Tags:        []string{"agent-actions"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body *RejectActionRequest `json:"body,omitempty" required:"false"`
	}) (*output[domain.AgentAction], error) {
		reason := ""
		if input.Body != nil {
			reason = input.Body.Reason
		}
		a, err := e.RejectAction(ctx, input.ID, actorFromContext(ctx), reason)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-agent-action",
		Method:      http.MethodPost,
		Path:        "/agent-actions/{id}/complete",
		Summary:     "Mark an action completed",
		Tags:        []string{"agent-actions"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *idPath) (*output[domain.AgentAction], error) {
		a, err := e.CompleteAction(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})
}
