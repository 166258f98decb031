package store

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/skiploss-console/internal/errs"
	"github.com/GregMSThompson/skiploss-console/pkg/helpers"
)

type stubAccessor struct {
	name string
	data string
	err  error
}

func (s *stubAccessor) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.name = req.GetName()
	if s.err != nil {
		return nil, s.err
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(s.data)},
	}, nil
}

func TestGetSecretResolvesNames(t *testing.T) {
	tests := []struct {
		secret string
		want   string
	}{
		{"chat-api-key", "projects/demo/secrets/chat-api-key/versions/latest"},
		{"projects/other/secrets/key", "projects/other/secrets/key/versions/latest"},
		{"projects/other/secrets/key/versions/3", "projects/other/secrets/key/versions/3"},
	}
	for _, tt := range tests {
		client := &stubAccessor{data: "s3cret\n"}
		s := NewSecretsStore(client, "demo")

		got, err := s.GetSecret(helpers.TestCtx(), tt.secret)
		if err != nil {
			t.Fatalf("GetSecret error: %v", err)
		}
		if got != "s3cret" {
			t.Fatalf("payload mismatch: %q", got)
		}
		if client.name != tt.want {
			t.Fatalf("name mismatch: got %s want %s", client.name, tt.want)
		}
	}
}

func TestGetSecretErrors(t *testing.T) {
	s := NewSecretsStore(&stubAccessor{err: status.Error(codes.NotFound, "missing")}, "demo")
	_, err := s.GetSecret(helpers.TestCtx(), "chat-api-key")
	var notFound *errs.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found error, got %v", err)
	}

	s = NewSecretsStore(&stubAccessor{err: status.Error(codes.PermissionDenied, "denied")}, "demo")
	if _, err := s.GetSecret(helpers.TestCtx(), "chat-api-key"); err == nil || errors.As(err, &notFound) {
		t.Fatalf("expected wrapped access error, got %v", err)
	}
}
