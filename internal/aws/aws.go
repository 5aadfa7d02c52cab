package aws

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

// Init loads the default credential chain for region. bucket may be empty when QR hosting is off.
func Init(ctx context.Context, region, bucket string) (*Clients, error) {
	if region == "" {
		return nil, errors.New("aws region not present")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws sdk config")
	}
	log.Infof("aws clients initialized for region %v", region)
	return &Clients{
		bucketName: bucket,
		region:     region,
		s3Client:   s3.NewFromConfig(cfg),
		ssmClient:  ssm.NewFromConfig(cfg),
		sqsClient:  sqs.NewFromConfig(cfg),
	}, nil
}

type Clients struct {
	bucketName string
	region     string
	s3Client   *s3.Client
	ssmClient  *ssm.Client
	sqsClient  *sqs.Client
}

func (s *Clients) GetParameterFromSSM(ctx context.Context, paramName string) (*ssmtypes.Parameter, error) {
	input := &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: true,
	}
	parameter, err := s.ssmClient.GetParameter(ctx, input)
	if err != nil {
		return nil, errors.WrapfAndReport(err, "query parameter %v from ssm", paramName)
	}
	return parameter.Parameter, nil
}

func (s *Clients) GetS3PresignedAccessURL(ctx context.Context, key string, expire time.Duration) (string, error) {
	request, err := s3.NewPresignClient(s.s3Client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expire))
	if err != nil {
		return "", errors.WithStackAndReport(err)
	}
	return request.URL, nil
}

func (s *Clients) PutFileToS3(ctx context.Context, key, contentType string, file io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   file,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := s.s3Client.PutObject(ctx, input)
	return errors.WrapAndReport(err, "put object to s3")
}

func (s *Clients) DeleteFileFromS3(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}
	_, err := s.s3Client.DeleteObject(ctx, input)
	return errors.WrapAndReport(err, "delete s3 object")
}

// Queue exposes the sqs client to the queue worker.
func (s *Clients) Queue() QueueAPI {
	return s.sqsClient
}
