package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"charterline/internal/domain"
	"charterline/internal/engine"
)

func registerEvaluations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-questionnaire",
		Method:        http.MethodPost,
		Path:          "/evaluations",
		Summary:       "Submit a questionnaire for scoring",
		Tags:          []string{"evaluations"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body SubmitQuestionnaireRequest `json:"body"`
	}) (*output[domain.Evaluation], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		ev, err := e.SubmitQuestionnaire(ctx, input.Body.ContributorID, input.Body.RoleAppliedFor, input.Body.Responses, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ev), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-evaluations",
		Method:      http.MethodGet,
		Path:        "/evaluations",
		Summary:     "List evaluations",
		Tags:        []string{"evaluations"},
	}, func(ctx context.Context, input *struct {
		ContributorID string `query:"contributor_id"`
	}) (*output[[]domain.Evaluation], error) {
		items, err := e.ListEvaluations(ctx, input.ContributorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-evaluation",
		Method:      http.MethodGet,
		Path:        "/evaluations/{id}",
		Summary:     "Get evaluation",
		Tags:        []string{"evaluations"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[domain.Evaluation], error) {
		ev, err := e.GetEvaluation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ev), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-score",
		Method:      http.MethodPost,
		Path:        "/evaluations/{id}/scores",
		Summary:     "Override a category score",
		Tags:        []string{"evaluations"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateScoreRequest `json:"body"`
	}) (*output[domain.Evaluation], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		ev, err := e.UpdateScore(ctx, input.ID, input.Body.Category, input.Body.Score, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ev), nil
	})

	registerTagOperation(api, "confirm-tag", "/evaluations/{id}/tags/confirm", "Confirm a suggested tag", e.ConfirmTag)
	registerTagOperation(api, "remove-tag", "/evaluations/{id}/tags/remove", "Remove a tag", e.RemoveTag)

	huma.Register(api, huma.Operation{
		OperationID: "decide-evaluation",
		Method:      http.MethodPost,
		Path:        "/evaluations/{id}/decision",
		Summary:     "Record the founder decision",
		Tags:        []string{"evaluations"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body DecideRequest `json:"body"`
	}) (*output[domain.Evaluation], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		ev, err := e.Decide(ctx, input.ID, engine.DecideOptions{
			Decision:                input.Body.Decision,
			Notes:                   input.Body.Notes,
			ConditionalRequirements: input.Body.ConditionalRequirements,
			Actor:                   actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ev), nil
	})
}

func registerTagOperation(api huma.API, name, path, summary string, fn func(ctx context.Context, id string, tag domain.Tag, actor string) (domain.Evaluation, error)) {
	huma.Register(api, huma.Operation{
		OperationID: name,
		Method:      http.MethodPost,
		Path:        path,
		Summary:     summary,
		Tags:        []string{"evaluations"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string     `path:"id"`
		Body TagRequest `json:"body"`
	}) (*output[domain.Evaluation], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		tag, err := domain.ParseTag(input.Body.Tag)
		if err != nil {
			return nil, handleError(err)
		}
		ev, err := fn(ctx, input.ID, tag, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ev), nil
	})
}
