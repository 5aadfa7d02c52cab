package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/go-redis/redis/v8"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

const (
	deduplicationTTL = time.Hour * 24 * 3
	longPollSeconds  = 20
	errorBackoff     = time.Second
)

// QueueAPI is the part of *sqs.Client the worker uses.
type QueueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// QueueMessageHandler 返回 deleteMsg=false 时消息留在队列中等待重新投递
type QueueMessageHandler func(ctx context.Context, msg *types.Message) (deleteMsg bool, err error)

type QueueWorker struct {
	queue     QueueAPI
	dedup     redis.Cmdable
	queueURL  string
	queueName string
	handler   QueueMessageHandler
	done      chan struct{}
}

// NewQueueWorker consumes queueURL one message at a time. dedup may be nil to skip deduplication.
func NewQueueWorker(queue QueueAPI, dedup redis.Cmdable, queueURL string, handler QueueMessageHandler) *QueueWorker {
	// 获取队列名称
	idx := strings.LastIndex(queueURL, "/")
	return &QueueWorker{
		queue:     queue,
		dedup:     dedup,
		queueURL:  queueURL,
		queueName: queueURL[idx+1:],
		handler:   handler,
	}
}

// Start runs the worker in the background until ctx is done.
func (w *QueueWorker) Start(ctx context.Context) {
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.Run(ctx)
	}()
}

// Stop waits for a started worker to finish the message in hand.
func (w *QueueWorker) Stop() {
	if w.done != nil {
		<-w.done
	}
}

// Run blocks until ctx is done.
func (w *QueueWorker) Run(ctx context.Context) {
	log.Infof("Blocking consume messages from queue %v...", w.queueName)
	defer log.Infof("Stopped to consume messages from queue %v...", w.queueName)
	for {
		if err := w.consumeOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return
			}
			log.Error(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
		}
	}
}

func (w *QueueWorker) consumeOnce(ctx context.Context) error {
	msg, err := w.receive(ctx)
	if err != nil || msg == nil {
		return err
	}
	// 尝试添加消息去重缓存，添加成功则表示新消息，否则按历史消息处理，直接从队列删除该消息
	cacheKey := fmt.Sprintf("%v_deduplication:%v", w.queueName, aws.ToString(msg.MessageId))
	if w.dedup != nil {
		set, err := w.dedup.SetNX(ctx, cacheKey, 1, deduplicationTTL).Result()
		if err != nil {
			return errors.WrapAndReport(err, "deduplicate queue message")
		}
		if !set {
			log.Debugf("duplicated message %v from queue %v", aws.ToString(msg.MessageId), w.queueName)
			return w.delete(ctx, msg)
		}
	}

	deleteMsg, err := w.handler(ctx, msg)
	if err != nil {
		log.Error(err)
	}
	if deleteMsg {
		return w.delete(ctx, msg)
	}
	// 移除消息去重，等待重新投递
	if w.dedup != nil {
		if err := w.dedup.Del(ctx, cacheKey).Err(); err != nil {
			return errors.WrapfAndReport(err, "delete queue %v message %v deduplication", w.queueName, aws.ToString(msg.MessageId))
		}
	}
	return nil
}

func (w *QueueWorker) receive(ctx context.Context) (*types.Message, error) {
	output, err := w.queue.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(w.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     longPollSeconds,
	})
	if err != nil {
		return nil, errors.WrapfAndReport(err, "query sqs message from %s", w.queueURL)
	}
	if len(output.Messages) == 0 {
		return nil, nil
	}
	return &output.Messages[0], nil
}

func (w *QueueWorker) delete(ctx context.Context, msg *types.Message) error {
	_, err := w.queue.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	return errors.WrapfAndReport(err, "delete sqs message from %s", w.queueURL)
}
