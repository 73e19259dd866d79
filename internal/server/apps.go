package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"charterline/internal/domain"
	"charterline/internal/engine"
	"charterline/internal/review"
)

func registerApps(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "intake-app",
		Method:        http.MethodPost,
		Path:          "/apps",
		Summary:       "Intake an app",
		Tags:          []string{"apps"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body IntakeAppRequest `json:"body"`
	}) (*output[domain.App], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		a, err := e.IntakeApp(ctx, engine.AppIntakeOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Scope:       input.Body.Scope,
			TargetUsers: input.Body.TargetUsers,
			Lifecycle:   input.Body.Lifecycle,
			RepoURL:     input.Body.RepoURL,
			Actor:       actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apps",
		Method:      http.MethodGet,
		Path:        "/apps",
		Summary:     "List apps",
		Tags:        []string{"apps"},
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.App], error) {
		items, err := e.ListApps(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-app",
		Method:      http.MethodGet,
		Path:        "/apps/active",
		Summary:     "The single active app",
		Tags:        []string{"apps"},
	}, func(ctx context.Context, _ *struct{}) (*output[ActiveAppResponse], error) {
		a, ok, err := e.ActiveApp(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := ActiveAppResponse{Active: ok}
		if ok {
			resp.App = &a
		}
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-app",
		Method:      http.MethodGet,
		Path:        "/apps/{id}",
		Summary:     "Get app",
		Tags:        []string{"apps"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[domain.App], error) {
		a, err := e.GetApp(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-app",
		Method:      http.MethodPatch,
		Path:        "/apps/{id}",
		Summary:     "Update app metadata",
		Tags:        []string{"apps"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body UpdateAppRequest `json:"body"`
	}) (*output[domain.App], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		a, err := e.UpdateApp(ctx, input.ID, input.Body.update(), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "launch-status",
		Method:      http.MethodGet,
		Path:        "/apps/{id}/launch-status",
		Summary:     "Derived launch approval and blockers",
		Tags:        []string{"apps"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[engine.LaunchStatus], error) {
		status, err := e.LaunchStatus(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(status), nil
	})

	registerAppTransition(api, "review-app", "/apps/{id}/review", "Run the agent review", e.RunAgentReview)
	registerAppTransition(api, "activate-app", "/apps/{id}/activate", "Make the app the active app", e.SetActive)
	registerAppTransition(api, "deactivate-app", "/apps/{id}/deactivate", "Deactivate the app", e.Deactivate)

	huma.Register(api, huma.Operation{
		OperationID: "decide-app",
		Method:      http.MethodPost,
		Path:        "/apps/{id}/decision",
		Summary:     "Approve, pause or kill an app",
		Tags:        []string{"apps"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body FounderDecisionRequest `json:"body"`
	}) (*output[domain.App], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		a, err := e.MakeFounderDecision(ctx, input.ID, input.Body.Decision, input.Body.Notes, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-flag",
		Method:      http.MethodPost,
		Path:        "/apps/{id}/flags/acknowledge",
		Summary:     "Acknowledge a review flag",
		Tags:        []string{"apps"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body AcknowledgeFlagRequest `json:"body"`
	}) (*output[domain.App], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		a, err := e.AcknowledgeFlag(ctx, input.ID, input.Body.ReviewType, input.Body.FlagID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-checklist-item",
		Method:      http.MethodPost,
		Path:        "/apps/{id}/checklist",
		Summary:     "Set a readiness checklist item",
		Tags:        []string{"apps"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body ChecklistItemRequest `json:"body"`
	}) (*output[domain.App], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		a, err := e.SetChecklistItem(ctx, input.ID, review.ChecklistItem(input.Body.Item), input.Body.Done, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-traffic-light",
		Method:      http.MethodPost,
		Path:        "/apps/{id}/traffic-light",
		Summary:     "Set the traffic light",
		Tags:        []string{"apps"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body TrafficLightRequest `json:"body"`
	}) (*output[domain.App], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		a, err := e.SetTrafficLight(ctx, input.ID, input.Body.Light, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})
}

func registerAppTransition(api huma.API, name, path, summary string, fn func(ctx context.Context, id, actor string) (domain.App, error)) {
	huma.Register(api, huma.Operation{
		OperationID: name,
		Method:      http.MethodPost,
		Path:        path,
		Summary:     summary,
		Tags:        []string{"apps"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *idPath) (*output[domain.App], error) {
		a, err := fn(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})
}
