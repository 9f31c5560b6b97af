package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// maxBatchSize is the SQS limit for receive and delete batches
const maxBatchSize = 10

type sqsAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// Config contains SQS client configuration
type Config struct {
	Name    string
	Region  string
	Profile string
}

// SQSQueue implements Queue on AWS SQS.
// The queue URL is looked up on first use so a missing queue fails a cycle, not startup.
type SQSQueue struct {
	client sqsAPI
	name   string

	mu  sync.Mutex
	url string
}

// NewSQSQueue loads the AWS configuration for the region and optional shared profile
func NewSQSQueue(ctx context.Context, cfg Config) (*SQSQueue, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load aws config: %w", ErrConnection, err)
	}

	return newSQSQueue(sqs.NewFromConfig(awsCfg), cfg.Name), nil
}

func newSQSQueue(client sqsAPI, name string) *SQSQueue {
	return &SQSQueue{client: client, name: name}
}

func (q *SQSQueue) queueURL(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.url != "" {
		return q.url, nil
	}

	out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(q.name),
	})
	if err != nil {
		return "", fmt.Errorf("%w: could not load queue %s: %w", ErrConnection, q.name, err)
	}

	q.url = aws.ToString(out.QueueUrl)
	return q.url, nil
}

// Receive fetches up to max messages (capped at 10). No wait time is sent, so the
// queue's ReceiveMessageWaitTimeSeconds attribute decides whether the call long-polls.
func (q *SQSQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	url, err := q.queueURL(ctx)
	if err != nil {
		return nil, err
	}

	if max <= 0 || max > maxBatchSize {
		max = maxBatchSize
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: int32(max),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: receive: %w", ErrConnection, err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		})
	}
	return messages, nil
}

// DeleteBatch deletes entries in chunks of 10. A transport error stops at the failing
// chunk; rejected entries are collected across all chunks.
func (q *SQSQueue) DeleteBatch(ctx context.Context, entries []DeleteEntry) error {
	if len(entries) == 0 {
		return nil
	}

	url, err := q.queueURL(ctx)
	if err != nil {
		return err
	}

	var failed []FailedEntry
	for start := 0; start < len(entries); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(entries) {
			end = len(entries)
		}

		batch := make([]types.DeleteMessageBatchRequestEntry, 0, end-start)
		for _, e := range entries[start:end] {
			batch = append(batch, types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(e.ID),
				ReceiptHandle: aws.String(e.ReceiptHandle),
			})
		}

		out, err := q.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(url),
			Entries:  batch,
		})
		if err != nil {
			return fmt.Errorf("%w: delete batch: %w", ErrConnection, err)
		}

		for _, f := range out.Failed {
			failed = append(failed, FailedEntry{
				ID:      aws.ToString(f.Id),
				Code:    aws.ToString(f.Code),
				Message: aws.ToString(f.Message),
			})
		}
	}

	if len(failed) > 0 {
		return &PartialFailureError{Failed: failed}
	}
	return nil
}
