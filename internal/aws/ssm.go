package aws

import (
	"context"
	"strings"

	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"moff.io/wallet-shell/internal/config"
	"moff.io/wallet-shell/pkg/errors"
)

const ssmPrefix = "ssm:"

// ParameterGetter is satisfied by *Clients.
type ParameterGetter interface {
	GetParameterFromSSM(ctx context.Context, paramName string) (*ssmtypes.Parameter, error)
}

// ResolveSecrets replaces every secret written as ssm:<name> with the parameter value.
func ResolveSecrets(ctx context.Context, getter ParameterGetter, conf *config.Configuration) error {
	fields := []*string{
		&conf.RedisCredential.Password,
		&conf.Postgres.Password,
		&conf.SentryDSN,
		&conf.LarkAlarmWebhook,
		&conf.DingTalk.Webhook,
		&conf.DingTalk.Secret,
	}
	for _, field := range fields {
		if !strings.HasPrefix(*field, ssmPrefix) {
			continue
		}
		name := strings.TrimPrefix(*field, ssmPrefix)
		param, err := getter.GetParameterFromSSM(ctx, name)
		if err != nil {
			return err
		}
		if param == nil || param.Value == nil {
			return errors.Errorf("ssm parameter %v has no value", name)
		}
		*field = *param.Value
	}
	return nil
}
