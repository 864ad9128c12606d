package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/joseph-ayodele/docpipe/internal/common"
)

// NewSQSClient builds the service client, honoring an endpoint override for
// local stand-ins.
func NewSQSClient(awsCfg aws.Config, endpoint string) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// SQSQueue adapts one SQS queue to the Queue interface.
type SQSQueue struct {
	client            *sqs.Client
	url               string
	visibilityTimeout time.Duration
	logger            *slog.Logger
}

func NewSQSQueue(client *sqs.Client, url string, visibilityTimeout time.Duration, logger *slog.Logger) *SQSQueue {
	return &SQSQueue{
		client:            client,
		url:               url,
		visibilityTimeout: visibilityTimeout,
		logger:            logger,
	}
}

func (q *SQSQueue) URL() string {
	return q.url
}

func (q *SQSQueue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		q.logger.Error("queue send failed", "queue_url", q.url, "error", err)
		return fmt.Errorf("%w: send to %s: %v", common.ErrQueue, q.url, err)
	}
	return nil
}

// Receive long-polls for up to wait. The receive count rides along as a
// message attribute so handlers can see how close a delivery is to the
// dead-letter budget.
func (q *SQSQueue) Receive(ctx context.Context, maxMessages int32, wait time.Duration) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     int32(wait / time.Second),
		VisibilityTimeout:   int32(q.visibilityTimeout / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		q.logger.Error("queue receive failed", "queue_url", q.url, "error", err)
		return nil, fmt.Errorf("%w: receive from %s: %v", common.ErrQueue, q.url, err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		receiveCount := 1
		if raw, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(raw); err == nil {
				receiveCount = n
			}
		}
		messages = append(messages, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			ReceiveCount:  receiveCount,
		})
	}
	return messages, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		q.logger.Error("queue delete failed", "queue_url", q.url, "error", err)
		return fmt.Errorf("%w: delete from %s: %v", common.ErrQueue, q.url, err)
	}
	return nil
}
