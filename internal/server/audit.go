package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"charterline/internal/domain"
	"charterline/internal/engine"
)

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit entries",
		Description: "Without a cursor the latest entries are returned newest first. With after set, entries past that sequence number are returned oldest first.",
		Tags:        []string{"audit"},
	}, func(ctx context.Context, input *struct {
		Limit int   `query:"limit" minimum:"0" maximum:"500"`
		After int64 `query:"after" minimum:"0"`
	}) (*output[AuditPage], error) {
		limit := normalizeLimit(input.Limit)
		var (
			items []domain.AuditLogEntry
			err   error
		)
		if input.After > 0 {
			items, err = e.Ledger.After(ctx, nil, input.After, limit)
		} else {
			items, err = e.AuditRecent(ctx, limit)
		}
		if err != nil {
			return nil, handleError(err)
		}
		page := AuditPage{Items: nonNilSlice(items)}
		if input.After > 0 && len(items) == limit {
			page.NextCursor = items[len(items)-1].Seq
		}
		return respond(page), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-audit",
		Method:      http.MethodGet,
		Path:        "/audit/verify",
		Summary:     "Verify the audit hash chain",
		Tags:        []string{"audit"},
	}, func(ctx context.Context, _ *struct{}) (*output[AuditVerifyResponse], error) {
		n, err := e.VerifyAudit(ctx)
		resp := AuditVerifyResponse{Valid: err == nil, Entries: n}
		if err != nil {
			if domain.Code(err) != "invariant_violation" {
				return nil, handleError(err)
			}
			resp.Error = err.Error()
		}
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-audit",
		Method:      http.MethodGet,
		Path:        "/audit/{entity_type}/{entity_id}",
		Summary:     "Audit trail of one entity",
		Tags:        []string{"audit"},
	}, func(ctx context.Context, input *struct {
		EntityType string `path:"entity_type" enum:"contributor,agreement,evaluation,app,agent_action,migration"`
		EntityID   string `path:"entity_id"`
	}) (*output[[]domain.AuditLogEntry], error) {
		items, err := e.AuditByEntity(ctx, input.EntityType, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-migrations",
		Method:      http.MethodPost,
		Path:        "/migrations",
		Summary:     "Run data normalization passes",
		Tags:        []string{"admin"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, _ *struct{}) (*output[MigrationsResponse], error) {
		applied, err := e.RunMigrations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(MigrationsResponse{Applied: nonNilSlice(applied)}), nil
	})
}
