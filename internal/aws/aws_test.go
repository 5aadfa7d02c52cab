package aws

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-shell/internal/config"
	"moff.io/wallet-shell/internal/shell"
	"moff.io/wallet-shell/pkg/errors"
)

type fakeSSM map[string]string

func (f fakeSSM) GetParameterFromSSM(_ context.Context, name string) (*ssmtypes.Parameter, error) {
	v, ok := f[name]
	if !ok {
		return nil, errors.Errorf("parameter %v not found", name)
	}
	return &ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)}, nil
}

func TestResolveSecrets(t *testing.T) {
	conf := config.Default()
	conf.Postgres.Password = "ssm:/wallet-shell/postgres"
	conf.DingTalk.Secret = "ssm:/wallet-shell/dingtalk"
	conf.SentryDSN = "https://plain@sentry"

	err := ResolveSecrets(context.Background(), fakeSSM{
		"/wallet-shell/postgres": "pg-secret",
		"/wallet-shell/dingtalk": "SEC123",
	}, &conf)
	require.NoError(t, err)
	assert.Equal(t, "pg-secret", conf.Postgres.Password)
	assert.Equal(t, "SEC123", conf.DingTalk.Secret)
	assert.Equal(t, "https://plain@sentry", conf.SentryDSN)

	conf.LarkAlarmWebhook = "ssm:/missing"
	assert.Error(t, ResolveSecrets(context.Background(), fakeSSM{}, &conf))
}

type fakeObjectStore struct {
	key         string
	contentType string
	body        []byte
	deleted     []string
}

func (f *fakeObjectStore) DeleteFileFromS3(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeObjectStore) PutFileToS3(_ context.Context, key, contentType string, file io.Reader) error {
	body, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.key, f.contentType, f.body = key, contentType, body
	return nil
}

func (f *fakeObjectStore) GetS3PresignedAccessURL(_ context.Context, key string, expire time.Duration) (string, error) {
	return "https://bucket.s3/" + key + "?expires=" + expire.String(), nil
}

func TestQRUploader(t *testing.T) {
	store := &fakeObjectStore{}
	uploader := NewQRUploader(store, 5*time.Minute)
	url, err := uploader.Upload(context.Background(), []byte("png"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(store.key, "wallet-shell/pairing/"))
	assert.True(t, strings.HasSuffix(store.key, ".png"))
	assert.Equal(t, "image/png", store.contentType)
	assert.True(t, bytes.Equal([]byte("png"), store.body))
	assert.Equal(t, "https://bucket.s3/"+store.key+"?expires=5m0s", url)
	assert.Empty(t, store.deleted)

	first := store.key
	_, err = uploader.Upload(context.Background(), []byte("png2"))
	require.NoError(t, err)
	assert.NotEqual(t, first, store.key)
	assert.Equal(t, []string{first}, store.deleted)
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []types.Message
	deleted  []string
}

func (q *fakeQueue) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return &sqs.ReceiveMessageOutput{Messages: []types.Message{msg}}, nil
}

func (q *fakeQueue) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (q *fakeQueue) deletedHandles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

func (q *fakeQueue) push(id, body string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, types.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(body),
	})
}

type fakeSender struct {
	err    error
	single []string
	batch  []int
}

func (f *fakeSender) Send(_ context.Context, receiver, amount string) (*shell.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.single = append(f.single, receiver+":"+amount)
	return &shell.Receipt{BatchID: "1"}, nil
}

func (f *fakeSender) SendBatch(_ context.Context, _, _ string, count int) (*shell.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batch = append(f.batch, count)
	return &shell.Receipt{BatchID: "2"}, nil
}

func newWorker(t *testing.T, sender TransferSender) (*QueueWorker, *fakeQueue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := &fakeQueue{}
	w := NewQueueWorker(q, rdb, "https://sqs.eu-west-1.amazonaws.com/123/transfer-requests", TransferRequestHandler(sender))
	return w, q, mr
}

func TestTransferQueue(t *testing.T) {
	sender := &fakeSender{}
	w, q, mr := newWorker(t, sender)
	ctx := context.Background()
	assert.Equal(t, "transfer-requests", w.queueName)

	q.push("a", `{"receiver":"erd1x","amount":"0.5"}`)
	q.push("b", `{"receiver":"erd1x","amount":"1","count":3}`)
	q.push("a", `{"receiver":"erd1x","amount":"0.5"}`)
	q.push("c", `not json`)
	for i := 0; i < 4; i++ {
		require.NoError(t, w.consumeOnce(ctx))
	}
	require.NoError(t, w.consumeOnce(ctx))

	assert.Equal(t, []string{"erd1x:0.5"}, sender.single)
	assert.Equal(t, []int{3}, sender.batch)
	assert.Equal(t, []string{"rh-a", "rh-b", "rh-a", "rh-c"}, q.deleted)
	assert.True(t, mr.Exists("transfer-requests_deduplication:a"))
}

func TestTransferQueueKeepsRequestWhileDisconnected(t *testing.T) {
	sender := &fakeSender{err: shell.ErrNotConnected}
	w, q, mr := newWorker(t, sender)

	q.push("a", `{"receiver":"erd1x","amount":"0.5"}`)
	require.NoError(t, w.consumeOnce(context.Background()))
	assert.Empty(t, q.deleted)
	assert.False(t, mr.Exists("transfer-requests_deduplication:a"))

	sender.err = errors.Wrap(shell.ErrSessionChanged, "send")
	q.push("a", `{"receiver":"erd1x","amount":"0.5"}`)
	require.NoError(t, w.consumeOnce(context.Background()))
	assert.Equal(t, []string{"rh-a"}, q.deleted)
}

func TestQueueWorkerStartStop(t *testing.T) {
	sender := &fakeSender{}
	w, q, _ := newWorker(t, sender)
	q.push("a", `{"receiver":"erd1x","amount":"0.5"}`)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.Eventually(t, func() bool {
		return len(q.deletedHandles()) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, []string{"erd1x:0.5"}, sender.single)
}
