// Package queue consumes orchestration requests from a Redis list. It is
// the machine-facing alternative to the HTTP API: harvest pipelines push
// enqueue and cancel requests, the listener validates and applies them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/xeipuuv/gojsonschema"

	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/orchestration"
)

const (
	ActionEnqueue = "enqueue"
	ActionCancel  = "cancel"
)

const requestSchema = `{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["enqueue", "cancel"]},
		"datasetId": {"type": "string"},
		"workflowId": {"type": "string"},
		"priority": {"type": "integer"},
		"enforcedPredecessorType": {"type": "string"},
		"executionId": {"type": "string"},
		"cancelledBy": {"type": "string"}
	},
	"required": ["action"],
	"allOf": [
		{
			"if": {"properties": {"action": {"const": "enqueue"}}},
			"then": {"required": ["datasetId", "workflowId"]}
		},
		{
			"if": {"properties": {"action": {"const": "cancel"}}},
			"then": {"required": ["executionId", "cancelledBy"]}
		}
	]
}`

// Request is one message on the request queue.
type Request struct {
	Action                  string `json:"action"`
	DatasetID               string `json:"datasetId,omitempty"`
	WorkflowID              string `json:"workflowId,omitempty"`
	Priority                int    `json:"priority,omitempty"`
	EnforcedPredecessorType string `json:"enforcedPredecessorType,omitempty"`
	ExecutionID             string `json:"executionId,omitempty"`
	CancelledBy             string `json:"cancelledBy,omitempty"`
}

// Config carries the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

type Listener struct {
	service *orchestration.Service
	config  Config
	schema  *gojsonschema.Schema
	logger  *slog.Logger

	client redis.UniversalClient
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewListener(service *orchestration.Service, config Config, logger *slog.Logger) (*Listener, error) {
	if config.Queue == "" {
		return nil, errors.New("request queue name is required")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schema: %w", err)
	}

	return &Listener{
		service: service,
		config:  config,
		schema:  schema,
		stopCh:  make(chan struct{}),
		logger: logger.With(
			"module", "queue_listener",
			"queue", config.Queue,
		),
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	addr := l.config.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	l.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: l.config.Password,
		DB:       l.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := l.client.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	l.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", l.config.DB)

	l.wg.Add(1)

	go l.consume(ctx)

	return nil
}

func (l *Listener) consume(ctx context.Context) {
	defer l.wg.Done()

	l.logger.InfoContext(ctx, "Starting request consumer")

	for {
		select {
		case <-l.stopCh:
			l.logger.InfoContext(ctx, "Request consumer stopped")

			return
		case <-ctx.Done():
			l.logger.InfoContext(ctx, "Context cancelled, stopping request consumer")

			return
		default:
			err := l.processMessage(ctx)
			if err != nil {
				l.logger.ErrorContext(ctx, "Error processing request", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (l *Listener) processMessage(ctx context.Context) error {
	result, err := l.client.BLPop(ctx, 1*time.Second, l.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop request from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	request, err := l.parseRequest(message)
	if err != nil {
		// Malformed requests are dropped, not retried.
		l.logger.WarnContext(ctx, "Dropping invalid request", "error", err, "message", message)

		return nil
	}

	return l.apply(ctx, request)
}

func (l *Listener) parseRequest(message string) (*Request, error) {
	validation, err := l.schema.Validate(gojsonschema.NewStringLoader(message))
	if err != nil {
		return nil, fmt.Errorf("request is not valid JSON: %w", err)
	}

	if !validation.Valid() {
		return nil, fmt.Errorf("request failed schema validation: %v", validation.Errors())
	}

	var request Request

	err = json.Unmarshal([]byte(message), &request)
	if err != nil {
		return nil, err
	}

	return &request, nil
}

func (l *Listener) apply(ctx context.Context, request *Request) error {
	switch request.Action {
	case ActionEnqueue:
		execution, err := l.service.AddExecution(ctx,
			request.DatasetID,
			request.WorkflowID,
			models.PluginType(request.EnforcedPredecessorType),
			request.Priority,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue execution for dataset %s: %w", request.DatasetID, err)
		}

		l.logger.InfoContext(ctx, "Enqueued execution from request queue",
			"execution_id", execution.ID, "dataset_id", request.DatasetID)

		return nil
	case ActionCancel:
		err := l.service.CancelExecution(ctx, request.ExecutionID, request.CancelledBy)
		if err != nil {
			return fmt.Errorf("failed to cancel execution %s: %w", request.ExecutionID, err)
		}

		return nil
	default:
		return fmt.Errorf("unsupported action: %s", request.Action)
	}
}

func (l *Listener) Stop(ctx context.Context) error {
	l.logger.InfoContext(ctx, "Stopping queue listener")

	close(l.stopCh)
	l.wg.Wait()

	if l.client != nil {
		err := l.client.Close()
		if err != nil {
			l.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
