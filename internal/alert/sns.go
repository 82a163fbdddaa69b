// Package alert publishes operator notifications over SNS.
package alert

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSPublisher sends messages to a pre-provisioned topic. Subscriptions
// (email, pager, whatever) are managed outside this service.
type SNSPublisher struct {
	client   *sns.Client
	topicARN string
}

func NewSNSPublisher(awsCfg aws.Config, topicARN string) *SNSPublisher {
	return &SNSPublisher{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: topicARN,
	}
}

func (p *SNSPublisher) Publish(ctx context.Context, subject, message string) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
