// Package deadletter parks items whose persistence failed on an SQS queue.
// Parked messages are for inspection and manual replay; nothing in the
// pipeline consumes them.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"eventpipe/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Envelope is the message body written for every parked item.
type Envelope struct {
	Kind      string          `json:"kind"`
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RawText   string          `json:"raw_text,omitempty"`
	Error     string          `json:"error"`
	ErrorCode string          `json:"error_code,omitempty"`
	ParkedAt  time.Time       `json:"parked_at"`
}

// SQSDeadLetter sends one message per failed item to a single queue.
type SQSDeadLetter struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
	now      func() time.Time
}

func NewSQSDeadLetter(client SQSSender, queueURL string, logger types.Logger) *SQSDeadLetter {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &SQSDeadLetter{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Park sends the failed item with its cause. A payload that is not valid
// JSON is carried as text so the envelope itself always encodes.
func (d *SQSDeadLetter) Park(ctx context.Context, kind, id string, payload []byte, cause error) error {
	env := Envelope{
		Kind:      kind,
		ID:        id,
		ErrorCode: string(types.CodeOf(cause)),
		ParkedAt:  d.now().UTC(),
	}
	if cause != nil {
		env.Error = cause.Error()
	}
	if json.Valid(payload) {
		env.Payload = payload
	} else {
		env.RawText = string(payload)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("deadletter: failed to marshal envelope: %w", err)
	}

	attrs := map[string]sqsTypes.MessageAttributeValue{
		"kind": {
			DataType:    aws.String("String"),
			StringValue: aws.String(kind),
		},
	}
	if env.ErrorCode != "" {
		attrs["error_code"] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(env.ErrorCode),
		}
	}

	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(d.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("failed to park %s %s", kind, id), err)
	}

	d.logger.Info("item parked on dead-letter queue",
		"kind", kind,
		"event_id", id,
		"error_code", env.ErrorCode,
	)
	return nil
}
