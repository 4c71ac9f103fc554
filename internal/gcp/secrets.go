package gcp

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretManager reads secret versions from Secret Manager.
type SecretManager struct {
	client    *secretmanager.Client
	projectID string
}

func NewSecretManager(ctx context.Context, projectID string) (*SecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &SecretManager{client: client, projectID: projectID}, nil
}

// Access returns the payload of name, which is either a bare secret id or a full
// resource name. A name without a version reads the latest one.
func (s *SecretManager) Access(ctx context.Context, name string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: SecretVersionName(s.projectID, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (s *SecretManager) Close() error {
	return s.client.Close()
}

// SecretVersionName expands name into projects/<p>/secrets/<s>/versions/<v>.
func SecretVersionName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "projects/") {
		name = fmt.Sprintf("projects/%s/secrets/%s", projectID, name)
	}
	if !strings.Contains(name, "/versions/") {
		name += "/versions/latest"
	}
	return name
}
