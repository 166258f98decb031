package bootstrap

import (
	"context"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"

	"github.com/GregMSThompson/skiploss-console/internal/store"
)

// LoadSecret reads one secret value through a short-lived Secret Manager
// client.
func LoadSecret(ctx context.Context, projectID, secret string) (string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()
	return store.NewSecretsStore(client, projectID).GetSecret(ctx, secret)
}
