package dps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// RESTClient is the HTTP implementation of Client against the processing
// service's REST API.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRESTClient creates a client for the processing service at baseURL.
func NewRESTClient(baseURL string, logger *slog.Logger) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger.With("module", "dps_client"),
	}
}

// SubmitTask submits a task and returns the external task identifier.
func (c *RESTClient) SubmitTask(ctx context.Context, topology string, task *Task) (string, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return "", &ExternalTaskError{Op: "SubmitTask", Topology: topology, Err: err}
	}

	endpoint := fmt.Sprintf("%s/topologies/%s/tasks", c.baseURL, url.PathEscape(topology))

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &ExternalTaskError{Op: "SubmitTask", Topology: topology, Err: err}
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", &ExternalTaskError{Op: "SubmitTask", Topology: topology, Transient: true, Err: err}
	}

	defer c.closeBody(ctx, response.Body)

	err = c.checkStatus("SubmitTask", topology, "", response)
	if err != nil {
		return "", err
	}

	var submitted struct {
		TaskID string `json:"taskId"`
	}

	err = json.NewDecoder(response.Body).Decode(&submitted)
	if err != nil {
		return "", &ExternalTaskError{Op: "SubmitTask", Topology: topology, Err: err}
	}

	if submitted.TaskID == "" {
		return "", &ExternalTaskError{
			Op:       "SubmitTask",
			Topology: topology,
			Err:      fmt.Errorf("processing service returned no task id"),
		}
	}

	return submitted.TaskID, nil
}

// TaskProgress performs one progress poll.
func (c *RESTClient) TaskProgress(ctx context.Context, topology, externalTaskID string) (*TaskProgress, error) {
	endpoint := fmt.Sprintf("%s/topologies/%s/tasks/%s/progress",
		c.baseURL, url.PathEscape(topology), url.PathEscape(externalTaskID))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ExternalTaskError{Op: "TaskProgress", Topology: topology, ExternalTaskID: externalTaskID, Err: err}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &ExternalTaskError{
			Op:             "TaskProgress",
			Topology:       topology,
			ExternalTaskID: externalTaskID,
			Transient:      true,
			Err:            err,
		}
	}

	defer c.closeBody(ctx, response.Body)

	err = c.checkStatus("TaskProgress", topology, externalTaskID, response)
	if err != nil {
		return nil, err
	}

	var progress TaskProgress

	err = json.NewDecoder(response.Body).Decode(&progress)
	if err != nil {
		return nil, &ExternalTaskError{Op: "TaskProgress", Topology: topology, ExternalTaskID: externalTaskID, Err: err}
	}

	return &progress, nil
}

// KillTask requests cancellation of a task. A 404 or 410 response is
// treated as success: the task is already gone.
func (c *RESTClient) KillTask(ctx context.Context, topology, externalTaskID, reason string) error {
	endpoint := fmt.Sprintf("%s/topologies/%s/tasks/%s/kill?info=%s",
		c.baseURL, url.PathEscape(topology), url.PathEscape(externalTaskID), url.QueryEscape(reason))

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return &ExternalTaskError{Op: "KillTask", Topology: topology, ExternalTaskID: externalTaskID, Err: err}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return &ExternalTaskError{
			Op:             "KillTask",
			Topology:       topology,
			ExternalTaskID: externalTaskID,
			Transient:      true,
			Err:            err,
		}
	}

	defer c.closeBody(ctx, response.Body)

	if response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusGone {
		return nil
	}

	return c.checkStatus("KillTask", topology, externalTaskID, response)
}

func (c *RESTClient) checkStatus(op, topology, externalTaskID string, response *http.Response) error {
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))

	return &ExternalTaskError{
		Op:             op,
		Topology:       topology,
		ExternalTaskID: externalTaskID,
		StatusCode:     response.StatusCode,
		Transient:      response.StatusCode >= 500,
		Err:            fmt.Errorf("unexpected status %d: %s", response.StatusCode, strings.TrimSpace(string(body))),
	}
}

func (c *RESTClient) closeBody(ctx context.Context, body io.ReadCloser) {
	err := body.Close()
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to close response body", "error", err)
	}
}
