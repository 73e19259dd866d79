package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"charterline/internal/domain"
	"charterline/internal/engine"
)

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

type idPath struct {
	ID string `path:"id"`
}

func registerContributors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-contributor",
		Method:        http.MethodPost,
		Path:          "/contributors",
		Summary:       "Create contributor",
		Tags:          []string{"contributors"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateContributorRequest `json:"body"`
	}) (*output[domain.Contributor], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		c, err := e.CreateContributor(ctx, engine.ContributorCreateOptions{
			LegalName:      input.Body.LegalName,
			Email:          input.Body.Email,
			RoleType:       input.Body.RoleType,
			EngagementType: input.Body.EngagementType,
			Actor:          actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contributors",
		Method:      http.MethodGet,
		Path:        "/contributors",
		Summary:     "List contributors",
		Tags:        []string{"contributors"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Stage string `query:"stage" enum:"intake,documents,signing,provisioning,ready,working,exit,archived"`
	}) (*output[[]domain.Contributor], error) {
		items, err := e.ListContributors(ctx, domain.Stage(input.Stage))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contributor",
		Method:      http.MethodGet,
		Path:        "/contributors/{id}",
		Summary:     "Get contributor",
		Tags:        []string{"contributors"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[domain.Contributor], error) {
		c, err := e.GetContributor(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contributor-agreements",
		Method:      http.MethodGet,
		Path:        "/contributors/{id}/agreements",
		Summary:     "List a contributor's agreements",
		Tags:        []string{"contributors"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[[]domain.Agreement], error) {
		if _, err := e.GetContributor(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListAgreements(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "can-proceed-to-agreements",
		Method:      http.MethodGet,
		Path:        "/contributors/{id}/can-proceed",
		Summary:     "Whether agreements may be sent",
		Tags:        []string{"contributors"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*output[CanProceedResponse], error) {
		ok, err := e.CanProceedToAgreements(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(CanProceedResponse{ContributorID: input.ID, CanProceed: ok}), nil
	})

	registerContributorTransition(api, "request-documents", "Request documents", e.RequestDocuments)
	registerContributorTransition(api, "start-work", "Start work", e.StartWork)
	registerContributorTransition(api, "archive", "Archive contributor", e.Archive)

	huma.Register(api, huma.Operation{
		OperationID: "send-agreements",
		Method:      http.MethodPost,
		Path:        "/contributors/{id}/send-agreements",
		Summary:     "Send NDA and IP assignment",
		Tags:        []string{"contributors"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *idPath) (*output[SendAgreementsResponse], error) {
		c, agreements, err := e.SendAgreements(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(SendAgreementsResponse{Contributor: c, Agreements: agreements}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sign-agreement",
		Method:      http.MethodPost,
		Path:        "/contributors/{id}/sign",
		Summary:     "Record an agreement signature",
		Tags:        []string{"contributors"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body SignAgreementRequest `json:"body"`
	}) (*output[domain.Contributor], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		c, err := e.SignAgreement(ctx, input.ID, input.Body.Type, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "provision-access",
		Method:      http.MethodPost,
		Path:        "/contributors/{id}/provision",
		Summary:     "Provision the first access tier",
		Tags:        []string{"contributors"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body TierRequest `json:"body"`
	}) (*output[domain.Contributor], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		c, err := e.ProvisionAccess(ctx, input.ID, input.Body.Tier, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-access-tier",
		Method:      http.MethodPost,
		Path:        "/contributors/{id}/tier",
		Summary:     "Change access tier",
		Tags:        []string{"contributors"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body TierRequest `json:"body"`
	}) (*output[domain.Contributor], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		c, err := e.ChangeAccessTier(ctx, input.ID, input.Body.Tier, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-access",
		Method:      http.MethodPost,
		Path:        "/contributors/{id}/revoke",
		Summary:     "Revoke agreements and access",
		Tags:        []string{"contributors"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body *RevokeRequest `json:"body,omitempty" required:"false"`
	}) (*output[domain.Contributor], error) {
		reason := ""
		if input.Body != nil {
			reason = input.Body.Reason
		}
		c, err := e.RevokeAccess(ctx, input.ID, reason, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})
}

// registerContributorTransition registers a body-less stage transition.
func registerContributorTransition(api huma.API, name, summary string, fn func(ctx context.Context, id, actor string) (domain.Contributor, error)) {
	huma.Register(api, huma.Operation{
		OperationID: name,
		Method:      http.MethodPost,
		Path:        "/contributors/{id}/" + name,
		Summary:     summary,
		Tags:        []string{"contributors"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *idPath) (*output[domain.Contributor], error) {
		c, err := fn(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})
}
