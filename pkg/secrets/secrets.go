package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Load fetches a JSON secret from AWS Secrets Manager and returns it as
// a flat string map. Deployments that keep provider credentials (Twilio,
// Stripe, review platform API keys) out of the environment set
// SECRETS_NAME and let main overlay the result onto its env-derived
// config; when the variable is unset this code path is never taken.
func Load(ctx context.Context, secretName string) (map[string]string, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secret %s: %w", secretName, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string payload", secretName)
	}

	values := make(map[string]string)
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", secretName, err)
	}
	return values, nil
}

// Overlay returns the secret value for key if present, otherwise fallback.
func Overlay(values map[string]string, key, fallback string) string {
	if v, ok := values[key]; ok && v != "" {
		return v
	}
	return fallback
}
