package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type StreamsConfig struct {
	Addr      string
	Password  string
	DB        int
	Stream    string
	DLQStream string
	Group     string
	Consumer  string
	Capacity  int
}

// StreamsQueue implements Producer+Consumer backed by Redis Streams.
type StreamsQueue struct {
	client    *redis.Client
	stream    string
	dlqStream string
	group     string
	consumer  string
	capacity  int64
	logger    zerolog.Logger
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig, logger zerolog.Logger) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "pipeline_tasks"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = "pipeline_tasks_dlq"
	}
	if cfg.Group == "" {
		cfg.Group = "pipeline_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "api-1"
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 256
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	queue := &StreamsQueue{
		client:    client,
		stream:    cfg.Stream,
		dlqStream: cfg.DLQStream,
		group:     cfg.Group,
		consumer:  cfg.Consumer,
		capacity:  int64(cfg.Capacity),
		logger:    logger,
	}
	if err := queue.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return queue, nil
}

// Client exposes the connection so other Redis backed stores can share it.
func (q *StreamsQueue) Client() *redis.Client {
	return q.client
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

// Enqueue rejects the message with ErrQueueFull once the stream holds
// capacity undelivered entries. Acked entries are deleted, so XLEN tracks
// the backlog.
func (q *StreamsQueue) Enqueue(ctx context.Context, message domain.TaskMessage) error {
	length, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		return fmt.Errorf("stream length: %w", err)
	}
	if length >= q.capacity {
		return ErrQueueFull
	}

	values, err := streamValues(message)
	if err != nil {
		return err
	}
	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: values}).Result(); err != nil {
		return fmt.Errorf("enqueue to stream: %w", err)
	}
	return nil
}

func (q *StreamsQueue) Consume(ctx context.Context, handler Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				message, parseErr := parseStreamMessage(item)
				if parseErr != nil {
					q.sendToDLQ(ctx, domain.TaskMessage{}, item, parseErr.Error())
					q.ackAndDelete(ctx, item.ID)
					continue
				}

				if handleErr := handler(ctx, message); handleErr != nil {
					q.sendToDLQ(ctx, message, item, handleErr.Error())
				}
				q.ackAndDelete(ctx, item.ID)
			}
		}
	}
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		q.logger.Error().Err(err).Str("stream_id", streamID).Msg("xack failed")
		return
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		q.logger.Error().Err(err).Str("stream_id", streamID).Msg("xdel failed")
	}
}

// sendToDLQ stores the task id and the reason only; the document bytes
// are not copied to the dead-letter stream.
func (q *StreamsQueue) sendToDLQ(
	ctx context.Context,
	message domain.TaskMessage,
	item redis.XMessage,
	errorMessage string,
) {
	values := map[string]any{
		"stream_id": item.ID,
		"task_id":   message.TaskID,
		"filename":  message.Context.FileName,
		"attempt":   message.Attempt,
		"error":     errorMessage,
		"moved_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream, Values: values}).Result(); err != nil {
		q.logger.Error().Err(err).Str("task_id", message.TaskID).Msg("send to dlq failed")
		return
	}
	q.logger.Warn().Str("task_id", message.TaskID).Str("error", errorMessage).Msg("stream queue moved message to DLQ")
}

func streamValues(message domain.TaskMessage) (map[string]any, error) {
	encoded, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encode task message: %w", err)
	}
	return map[string]any{
		"task_id":      message.TaskID,
		"message":      string(encoded),
		"attempt":      message.Attempt,
		"requested_at": message.RequestedAt.Format(time.RFC3339Nano),
	}, nil
}

func parseStreamMessage(item redis.XMessage) (domain.TaskMessage, error) {
	getString := func(key string) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	encoded, err := getString("message")
	if err != nil {
		return domain.TaskMessage{}, err
	}
	var message domain.TaskMessage
	if err := json.Unmarshal([]byte(encoded), &message); err != nil {
		return domain.TaskMessage{}, fmt.Errorf("invalid message: %w", err)
	}

	attemptString, err := getString("attempt")
	if err != nil {
		return domain.TaskMessage{}, err
	}
	attempt, err := strconv.Atoi(attemptString)
	if err != nil {
		return domain.TaskMessage{}, fmt.Errorf("invalid attempt: %w", err)
	}
	message.Attempt = attempt

	taskID, err := getString("task_id")
	if err != nil {
		return domain.TaskMessage{}, err
	}
	if message.TaskID != taskID {
		return domain.TaskMessage{}, fmt.Errorf("task id mismatch: %q != %q", message.TaskID, taskID)
	}

	return message, nil
}
