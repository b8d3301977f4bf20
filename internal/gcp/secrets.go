package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// DBCredentials is the JSON shape of the database secret.
type DBCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	DBName   string `json:"dbname"`
	Port     string `json:"port"`
}

// DatabaseCredentials fetches and decodes the named secret. The secret name
// is a full resource name, e.g.
// "projects/<project>/secrets/<name>/versions/latest".
func DatabaseCredentials(ctx context.Context, secretName string) (*DBCredentials, error) {
	if secretName == "" {
		return nil, fmt.Errorf("secret name must be provided")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer client.Close()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret %s: %w", secretName, err)
	}

	var creds DBCredentials
	if err := json.Unmarshal(resp.Payload.Data, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode secret %s: %w", secretName, err)
	}
	if creds.Port == "" {
		creds.Port = "5432"
	}
	return &creds, nil
}
