package store

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/skiploss-console/internal/errs"
)

// Secrets path
// projects/{project}/secrets/{secret}/versions/latest

type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

type secretsStore struct {
	client    secretAccessor
	projectID string
}

func NewSecretsStore(client secretAccessor, projectID string) *secretsStore {
	return &secretsStore{client: client, projectID: projectID}
}

// secretName accepts a bare secret id, a secret resource name, or a full
// version resource name. Bare ids and secret names resolve to the latest
// version.
func (s *secretsStore) secretName(secret string) string {
	switch {
	case strings.Contains(secret, "/versions/"):
		return secret
	case strings.HasPrefix(secret, "projects/"):
		return secret + "/versions/latest"
	default:
		return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, secret)
	}
}

func (s *secretsStore) GetSecret(ctx context.Context, secret string) (string, error) {
	name := s.secretName(secret)
	res, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if status.Code(err) == codes.NotFound {
		return "", errs.NewNotFoundError(fmt.Sprintf("secret %s not found", name))
	}
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(res.GetPayload().GetData())), nil
}
