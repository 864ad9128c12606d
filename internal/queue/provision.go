package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// ProvisionParams describes one main queue plus its dead-letter pair.
// MaxReceiveCount is the redrive budget: the broker moves a message to the
// DLQ after that many receives, the application never re-implements this.
type ProvisionParams struct {
	QueueName         string
	MaxReceiveCount   int
	VisibilityTimeout time.Duration
}

type redrivePolicy struct {
	DeadLetterTargetArn string `json:"deadLetterTargetArn"`
	MaxReceiveCount     int    `json:"maxReceiveCount"`
}

// EnsureQueueWithDLQ creates (or finds) "<name>-dlq" and "<name>", wiring the
// redrive policy between them. CreateQueue is idempotent for identical
// attributes, so this is safe to run on every deploy.
func EnsureQueueWithDLQ(ctx context.Context, client *sqs.Client, params ProvisionParams, logger *slog.Logger) (queueURL, dlqURL string, err error) {
	dlqName := params.QueueName + "-dlq"
	dlqOut, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(dlqName),
	})
	if err != nil {
		return "", "", fmt.Errorf("create dlq %s: %w", dlqName, err)
	}
	dlqURL = aws.ToString(dlqOut.QueueUrl)

	attrs, err := client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(dlqURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", "", fmt.Errorf("resolve dlq arn for %s: %w", dlqName, err)
	}
	dlqARN := attrs.Attributes[string(types.QueueAttributeNameQueueArn)]

	policy, err := json.Marshal(redrivePolicy{
		DeadLetterTargetArn: dlqARN,
		MaxReceiveCount:     params.MaxReceiveCount,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal redrive policy: %w", err)
	}

	mainOut, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(params.QueueName),
		Attributes: map[string]string{
			string(types.QueueAttributeNameRedrivePolicy):     string(policy),
			string(types.QueueAttributeNameVisibilityTimeout): strconv.Itoa(int(params.VisibilityTimeout / time.Second)),
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("create queue %s: %w", params.QueueName, err)
	}
	queueURL = aws.ToString(mainOut.QueueUrl)

	logger.Info("queue provisioned",
		"queue", params.QueueName, "queue_url", queueURL,
		"dlq_url", dlqURL, "max_receive_count", params.MaxReceiveCount)
	return queueURL, dlqURL, nil
}
