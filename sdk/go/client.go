package charterlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal charterline HTTP API client. Actor is sent as
// X-Actor-ID on every request.
type Client struct {
	BaseURL    string
	Actor      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actor string) *Client {
	return &Client{
		BaseURL: baseURL,
		Actor:   actor,
		Timeout: 10 * time.Second,
	}
}

// Contributor represents the API contributor model (partial).
type Contributor struct {
	ID                 string `json:"id"`
	LegalName          string `json:"legal_name"`
	Email              string `json:"email"`
	RoleType           string `json:"role_type"`
	NDAStatus          string `json:"nda_status"`
	IPAssignmentStatus string `json:"ip_assignment_status"`
	AccessTier         int    `json:"access_tier"`
	AccessLevel        string `json:"access_level"`
	WorkflowStage      string `json:"workflow_stage"`
}

// Agreement is one NDA or IP assignment.
type Agreement struct {
	ID            string `json:"id"`
	ContributorID string `json:"contributor_id"`
	Type          string `json:"type"`
	Version       string `json:"version"`
	Status        string `json:"status"`
}

// Response answers one rubric category of a questionnaire.
type Response struct {
	Category string `json:"category"`
	Answer   string `json:"answer"`
	Rating   int    `json:"rating,omitempty"`
}

// Tag is a suggested or confirmed evaluation tag.
type Tag struct {
	Family             string `json:"family"`
	Value              string `json:"value"`
	AISuggested        bool   `json:"ai_suggested"`
	ConfirmedByFounder bool   `json:"confirmed_by_founder"`
}

// Evaluation represents the API evaluation model (partial).
type Evaluation struct {
	ID            string  `json:"id"`
	ContributorID string  `json:"contributor_id"`
	OverallScore  float64 `json:"overall_score"`
	Tags          []Tag   `json:"tags"`
	Decision      string  `json:"decision"`
	IsFinalized   bool    `json:"is_finalized"`
}

// App represents the API app model (partial).
type App struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	IsActive     bool   `json:"is_active"`
	TrafficLight string `json:"traffic_light"`
}

// LaunchStatus is the derived launch approval of an app.
type LaunchStatus struct {
	AppID          string   `json:"app_id"`
	LaunchApproved bool     `json:"launch_approved"`
	Blockers       []string `json:"blockers"`
}

// AgentAction is an action proposed by an agent.
type AgentAction struct {
	ID               string `json:"id"`
	AgentID          string `json:"agent_id"`
	Action           string `json:"action"`
	Status           string `json:"status"`
	RequiresApproval bool   `json:"requires_approval"`
}

// AuditEntry is one hash-chained audit log entry.
type AuditEntry struct {
	Seq        int64          `json:"seq"`
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor"`
	Timestamp  string         `json:"timestamp"`
	Details    map[string]any `json:"details,omitempty"`
	Hash       string         `json:"hash"`
}

// AuditPage wraps audit listings with a cursor.
type AuditPage struct {
	Items      []AuditEntry `json:"items"`
	NextCursor int64        `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is the error code from the
// response envelope when the server sent one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// CreateContributor registers a contributor at intake.
func (c *Client) CreateContributor(ctx context.Context, legalName, email, roleType string) (Contributor, error) {
	body := map[string]any{
		"legal_name": legalName,
		"email":      email,
		"role_type":  roleType,
	}
	var resp Contributor
	err := c.do(ctx, http.MethodPost, "contributors", body, &resp)
	return resp, err
}

// GetContributor fetches a contributor by id.
func (c *Client) GetContributor(ctx context.Context, id string) (Contributor, error) {
	var resp Contributor
	err := c.do(ctx, http.MethodGet, "contributors/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SendAgreements sends the NDA and IP assignment.
func (c *Client) SendAgreements(ctx context.Context, contributorID string) (Contributor, []Agreement, error) {
	var resp struct {
		Contributor Contributor `json:"contributor"`
		Agreements  []Agreement `json:"agreements"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("contributors/%s/send-agreements", url.PathEscape(contributorID)), nil, &resp)
	return resp.Contributor, resp.Agreements, err
}

// SignAgreement records a signature on "nda" or "ip_assignment".
func (c *Client) SignAgreement(ctx context.Context, contributorID, agreementType string) (Contributor, error) {
	var resp Contributor
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("contributors/%s/sign", url.PathEscape(contributorID)), map[string]any{"type": agreementType}, &resp)
	return resp, err
}

// ProvisionAccess grants the first access tier.
func (c *Client) ProvisionAccess(ctx context.Context, contributorID string, tier int) (Contributor, error) {
	var resp Contributor
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("contributors/%s/provision", url.PathEscape(contributorID)), map[string]any{"tier": tier}, &resp)
	return resp, err
}

// SubmitQuestionnaire scores a questionnaire into a new evaluation.
func (c *Client) SubmitQuestionnaire(ctx context.Context, contributorID, role string, responses []Response) (Evaluation, error) {
	body := map[string]any{
		"contributor_id":   contributorID,
		"role_applied_for": role,
		"responses":        responses,
	}
	var resp Evaluation
	err := c.do(ctx, http.MethodPost, "evaluations", body, &resp)
	return resp, err
}

// ConfirmTag confirms a tag such as "ready:sign".
func (c *Client) ConfirmTag(ctx context.Context, evaluationID, tag string) (Evaluation, error) {
	var resp Evaluation
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("evaluations/%s/tags/confirm", url.PathEscape(evaluationID)), map[string]any{"tag": tag}, &resp)
	return resp, err
}

// IntakeApp records a new app idea.
func (c *Client) IntakeApp(ctx context.Context, name, description, repoURL string) (App, error) {
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	if repoURL != "" {
		body["repo_url"] = repoURL
	}
	var resp App
	err := c.do(ctx, http.MethodPost, "apps", body, &resp)
	return resp, err
}

// LaunchStatus returns the derived launch approval of an app.
func (c *Client) LaunchStatus(ctx context.Context, appID string) (LaunchStatus, error) {
	var resp LaunchStatus
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("apps/%s/launch-status", url.PathEscape(appID)), nil, &resp)
	return resp, err
}

// RequestAction proposes an agent action.
func (c *Client) RequestAction(ctx context.Context, agentID, action string, input map[string]any) (AgentAction, error) {
	body := map[string]any{"agent_id": agentID, "action": action}
	if input != nil {
		body["input"] = input
	}
	var resp AgentAction
	err := c.do(ctx, http.MethodPost, "agent-actions", body, &resp)
	return resp, err
}

// ApproveAction approves a pending agent action as the client's actor.
func (c *Client) ApproveAction(ctx context.Context, id string) (AgentAction, error) {
	var resp AgentAction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("agent-actions/%s/approve", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Audit returns the latest entries, or entries after cursor when cursor > 0.
func (c *Client) Audit(ctx context.Context, limit int, cursor int64) (AuditPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor > 0 {
		q.Set("after", fmt.Sprint(cursor))
	}
	endpoint := "audit"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp AuditPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EntityAudit returns one entity's audit trail, newest first.
func (c *Client) EntityAudit(ctx context.Context, entityType, entityID string) ([]AuditEntry, error) {
	var resp []AuditEntry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("audit/%s/%s", url.PathEscape(entityType), url.PathEscape(entityID)), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Actor != "" {
		req.Header.Set("X-Actor-ID", c.Actor)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
