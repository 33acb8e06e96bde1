package config

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// TelegramToken returns the bot token, read from SSM Parameter Store in prod.
func (c *Config) TelegramToken() string {
	if c.Log.Environment == "prod" && c.Telegram.SSMTokenName != "" {
		if token := getParameterStoreValue(c.Telegram.SSMTokenName, true); token != "" {
			return token
		}
	}
	return c.Telegram.Token
}

// getParameterStoreValue returns "" when the parameter cannot be read.
func getParameterStoreValue(parameterName string, decrypt bool) string {
	if parameterName == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return ""
	}

	client := ssm.NewFromConfig(cfg)

	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctx, input)
	if err != nil {
		return ""
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return ""
	}

	return *result.Parameter.Value
}
