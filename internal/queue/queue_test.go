package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestLocalQueueRejectsWhenFull(t *testing.T) {
	q := NewLocalQueue(1, zerolog.Nop())
	ctx := context.Background()

	if err := q.Enqueue(ctx, domain.TaskMessage{TaskID: "a"}); err != nil {
		t.Fatalf("expected first enqueue to succeed, got %v", err)
	}
	if err := q.Enqueue(ctx, domain.TaskMessage{TaskID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected one queued message, got %d", q.Len())
	}
}

func TestLocalQueueFailedMessageGoesToDLQWithoutRetry(t *testing.T) {
	q := NewLocalQueue(4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan string, 4)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, message domain.TaskMessage) error {
			calls <- message.TaskID
			if message.TaskID == "bad" {
				return errors.New("boom")
			}
			return nil
		})
	}()

	_ = q.Enqueue(ctx, domain.TaskMessage{TaskID: "bad"})
	_ = q.Enqueue(ctx, domain.TaskMessage{TaskID: "good"})

	for _, want := range []string{"bad", "good"} {
		select {
		case got := <-calls:
			if got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	select {
	case extra := <-calls:
		t.Fatalf("expected no retry, got another call for %s", extra)
	case <-time.After(100 * time.Millisecond):
	}

	letters := q.DeadLetters()
	if len(letters) != 1 || letters[0].Message.TaskID != "bad" || letters[0].Error != "boom" {
		t.Fatalf("unexpected dead letters: %+v", letters)
	}
}

func TestLocalQueueConsumeStopsOnCancel(t *testing.T) {
	q := NewLocalQueue(1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Consume(ctx, func(context.Context, domain.TaskMessage) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStreamMessageRoundTrip(t *testing.T) {
	original := domain.TaskMessage{
		TaskID:      "task-1",
		Content:     []byte("%PDF-1.4"),
		Context:     domain.ProcessingContext{TaskID: "task-1", FileName: "edital.pdf", UASG: "986531"},
		Attempt:     0,
		RequestedAt: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC),
	}

	values, err := streamValues(original)
	if err != nil {
		t.Fatalf("stream values: %v", err)
	}
	// Redis hands values back as strings.
	values["attempt"] = "0"

	parsed, err := parseStreamMessage(redis.XMessage{ID: "1-0", Values: values})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.TaskID != "task-1" || string(parsed.Content) != "%PDF-1.4" || parsed.Context.UASG != "986531" {
		t.Fatalf("unexpected parsed message: %+v", parsed)
	}
}

func TestParseStreamMessageRejectsMismatch(t *testing.T) {
	values, _ := streamValues(domain.TaskMessage{TaskID: "a"})
	values["task_id"] = "b"
	values["attempt"] = "0"

	if _, err := parseStreamMessage(redis.XMessage{ID: "1-0", Values: values}); err == nil {
		t.Fatalf("expected mismatch error")
	}
	if _, err := parseStreamMessage(redis.XMessage{ID: "1-0", Values: map[string]any{}}); err == nil {
		t.Fatalf("expected missing field error")
	}
}
