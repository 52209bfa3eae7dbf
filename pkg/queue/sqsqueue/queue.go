// Package sqsqueue implements queue.Queue over Amazon SQS. Visibility
// timeout must be configured >= the task timeout so a slow consumer never
// races a redelivery while it's still working.
package sqsqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dfsingest/dfsingest/pkg/queue"
)

// Config configures the SQS-backed queue.
type Config struct {
	QueueURL          string
	VisibilityTimeout time.Duration
}

// Queue is an SQS-backed implementation of queue.Queue.
type Queue struct {
	client            *sqs.Client
	queueURL          string
	visibilityTimeout int32
}

// NewFromConfig builds an SQS client from the default AWS credential chain.
func NewFromConfig(ctx context.Context, cfg Config) (*Queue, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg)
	return &Queue{
		client:            client,
		queueURL:          cfg.QueueURL,
		visibilityTimeout: int32(cfg.VisibilityTimeout.Seconds()),
	}, nil
}

func (q *Queue) Enqueue(ctx context.Context, task queue.ChunkWriteTask) error {
	data, err := queue.Marshal(task)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, pollTimeout time.Duration) (queue.Delivery, bool, error) {
	waitSeconds := int32(pollTimeout.Seconds())
	if waitSeconds > 20 {
		waitSeconds = 20 // SQS long-poll max
	}
	if waitSeconds < 0 {
		waitSeconds = 0
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages:  1,
		WaitTimeSeconds:      waitSeconds,
		VisibilityTimeout:    q.visibilityTimeout,
	})
	if err != nil {
		return queue.Delivery{}, false, fmt.Errorf("sqs receive message: %w", err)
	}
	if len(out.Messages) == 0 {
		return queue.Delivery{}, false, nil
	}

	msg := out.Messages[0]
	task, err := queue.Unmarshal([]byte(aws.ToString(msg.Body)))
	if err != nil {
		return queue.Delivery{}, false, err
	}

	return queue.Delivery{Task: task, AckHandle: aws.ToString(msg.ReceiptHandle)}, true, nil
}

func (q *Queue) Ack(ctx context.Context, delivery queue.Delivery) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(delivery.AckHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete message: %w", err)
	}
	return nil
}

func (q *Queue) Backend() string { return "sqs" }

var _ queue.Queue = (*Queue)(nil)
