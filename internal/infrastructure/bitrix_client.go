package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
)

// APIError is an error reported by Bitrix itself in the response body.
type APIError struct {
	Method      string
	Code        string
	Description string
}

func (e *APIError) Error() string {
	msg := e.Description
	if msg == "" {
		msg = e.Code
	}
	return fmt.Sprintf("bitrix %s: %s", e.Method, msg)
}

// retryableError marks transport failures and 5xx answers.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

type BitrixTask struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Status      int    `json:"status"`
	ClosedDate  string `json:"closed_date,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
	Responsible int64  `json:"responsible_id,omitempty"`
}

type BitrixUser struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Email    string `json:"email"`
}

type DealStage struct {
	StatusID string `json:"status_id"`
	Name     string `json:"name"`
	Sort     int    `json:"sort"`
}

type DealPage struct {
	Deals []map[string]any `json:"deals"`
	Next  int              `json:"next,omitempty"` // 0 when there is no next page
	Total int              `json:"total"`
}

// BitrixClient talks to a Bitrix24 inbound webhook:
// POST {base}/{method}.json with a JSON body.
type BitrixClient struct {
	base        string
	domain      string
	httpClient  *http.Client
	maxAttempts int
	backoff     backoff.Backoff
}

func NewBitrixClient(webhookBase, domain string) *BitrixClient {
	return &BitrixClient{
		base:        strings.TrimRight(webhookBase, "/"),
		domain:      domain,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		maxAttempts: 3,
		backoff: backoff.Backoff{
			Min:    300 * time.Millisecond,
			Max:    3 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
}

// BitrixResponse is the common REST envelope.
type BitrixResponse struct {
	Result           json.RawMessage `json:"result"`
	Tasks            json.RawMessage `json:"tasks"`
	Next             int             `json:"next"`
	Total            int             `json:"total"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// Call invokes a REST method and returns the decoded envelope. Bitrix-level
// errors are returned as *APIError and never retried.
func (c *BitrixClient) Call(ctx context.Context, method string, params any) (*BitrixResponse, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}

	b := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		env, err := c.do(ctx, method, body)
		if err == nil {
			return env, nil
		}
		var retry retryableError
		if !errors.As(err, &retry) {
			return nil, err
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return nil, fmt.Errorf("bitrix %s failed after %d attempts: %w", method, c.maxAttempts, lastErr)
}

func (c *BitrixClient) do(ctx context.Context, method string, body []byte) (*BitrixResponse, error) {
	url := c.base + "/" + method + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retryableError{fmt.Errorf("bitrix %s: %w", method, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, retryableError{fmt.Errorf("bitrix %s: read body: %w", method, err)}
	}

	var env BitrixResponse
	decodeErr := json.Unmarshal(raw, &env)
	if decodeErr == nil && env.Error != "" {
		return nil, &APIError{Method: method, Code: env.Error, Description: env.ErrorDescription}
	}
	if resp.StatusCode >= 500 {
		return nil, retryableError{fmt.Errorf("bitrix %s: status %d", method, resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("bitrix %s: status %d", method, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("bitrix %s: decode response: %w", method, decodeErr)
	}
	return &env, nil
}

// ListTasks calls tasks.task.list. The list may come as a top-level "tasks",
// as result.tasks or as a bare result list, with camelCase or UPPER_CASE
// field names.
func (c *BitrixClient) ListTasks(ctx context.Context, filter map[string]any, selectFields []string) ([]BitrixTask, error) {
	env, err := c.Call(ctx, "tasks.task.list", map[string]any{"filter": filter, "select": selectFields})
	if err != nil {
		return nil, err
	}
	if !isEmptyJSON(env.Tasks) {
		return parseTasks(env.Tasks)
	}
	return parseTasks(env.Result)
}

func (c *BitrixClient) CompleteTask(ctx context.Context, taskID int64) error {
	_, err := c.Call(ctx, "tasks.task.complete", map[string]any{"taskId": taskID})
	return err
}

func (c *BitrixClient) AddComment(ctx context.Context, taskID int64, text string) error {
	_, err := c.Call(ctx, "tasks.task.commentitem.add", map[string]any{
		"taskId": taskID,
		"fields": map[string]any{"POST_MESSAGE": text},
	})
	return err
}

func (c *BitrixClient) SearchUserByEmail(ctx context.Context, email string) ([]BitrixUser, error) {
	env, err := c.Call(ctx, "user.search", map[string]any{"EMAIL": email})
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(env.Result, &rows); err != nil {
		return nil, fmt.Errorf("decode user.search: %w", err)
	}
	users := make([]BitrixUser, 0, len(rows))
	for _, r := range rows {
		users = append(users, BitrixUser{
			ID:       field64(r, "ID", "id"),
			Name:     fieldStr(r, "NAME", "name"),
			LastName: fieldStr(r, "LAST_NAME", "lastName"),
			Email:    fieldStr(r, "EMAIL", "email"),
		})
	}
	return users, nil
}

func (c *BitrixClient) ListDealStages(ctx context.Context, categoryID int64) ([]DealStage, error) {
	env, err := c.Call(ctx, "crm.dealcategory.stage.list", map[string]any{"id": categoryID})
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if !isEmptyJSON(env.Result) {
		if err := json.Unmarshal(env.Result, &rows); err != nil {
			return nil, fmt.Errorf("decode stages: %w", err)
		}
	}
	stages := make([]DealStage, 0, len(rows))
	for _, r := range rows {
		id := fieldStr(r, "STATUS_ID")
		if id == "" {
			id = fieldStr(r, "ID")
		}
		stages = append(stages, DealStage{StatusID: id, Name: fieldStr(r, "NAME"), Sort: int(field64(r, "SORT"))})
	}
	return stages, nil
}

// ListDeals returns one page of crm.deal.list, newest first unless order is given.
func (c *BitrixClient) ListDeals(ctx context.Context, filter map[string]any, selectFields []string, order map[string]string, start int) (*DealPage, error) {
	if order == nil {
		order = map[string]string{"ID": "DESC"}
	}
	env, err := c.Call(ctx, "crm.deal.list", map[string]any{
		"filter": filter,
		"select": selectFields,
		"order":  order,
		"start":  start,
	})
	if err != nil {
		return nil, err
	}
	page := &DealPage{Next: env.Next, Total: env.Total}
	if err := json.Unmarshal(env.Result, &page.Deals); err != nil {
		return nil, fmt.Errorf("decode deals: %w", err)
	}
	return page, nil
}

func (c *BitrixClient) MoveDealToStage(ctx context.Context, dealID int64, stageID string) error {
	_, err := c.Call(ctx, "crm.deal.update", map[string]any{
		"id":     dealID,
		"fields": map[string]any{"STAGE_ID": stageID},
	})
	return err
}

// CommentDeal adds a timeline comment. Portals that refuse timeline comments
// get the text written to the deal COMMENTS field instead.
func (c *BitrixClient) CommentDeal(ctx context.Context, dealID int64, text string) error {
	_, err := c.Call(ctx, "crm.timeline.comment.add", map[string]any{
		"fields": map[string]any{"ENTITY_TYPE": "deal", "ENTITY_ID": dealID, "COMMENT": text},
	})
	if err == nil || ctx.Err() != nil {
		return err
	}
	_, err = c.Call(ctx, "crm.deal.update", map[string]any{
		"id":     dealID,
		"fields": map[string]any{"COMMENTS": text},
	})
	return err
}

// TaskURL links to the task in the portal UI, or "" without B24_DOMAIN.
func (c *BitrixClient) TaskURL(taskID int64) string {
	if c.domain == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/company/personal/user/0/tasks/task/view/%d/", c.domain, taskID)
}

func isEmptyJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func parseTasks(result json.RawMessage) ([]BitrixTask, error) {
	if isEmptyJSON(result) {
		return nil, nil
	}

	var rows []map[string]any
	var wrapped struct {
		Tasks []map[string]any `json:"tasks"`
	}
	if err := json.Unmarshal(result, &wrapped); err == nil {
		rows = wrapped.Tasks
	} else if err := json.Unmarshal(result, &rows); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	tasks := make([]BitrixTask, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, BitrixTask{
			ID:          field64(r, "id", "ID"),
			Title:       fieldStr(r, "title", "TITLE"),
			Status:      int(field64(r, "status", "STATUS", "realStatus", "REAL_STATUS")),
			ClosedDate:  fieldStr(r, "closedDate", "CLOSED_DATE"),
			Deadline:    fieldStr(r, "deadline", "DEADLINE"),
			Responsible: field64(r, "responsibleId", "RESPONSIBLE_ID"),
		})
	}
	return tasks, nil
}

// field64 reads the first present key as an integer. Bitrix sends ids as
// strings or numbers depending on the method.
func field64(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

func fieldStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
