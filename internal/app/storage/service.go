/*
Package storage uploads chat attachments to the realtime service's S3-compatible
storage endpoint.

Uploads are authorized as the signed-in provider user: the access key is the project
ref, the secret is the anonymous key and the session token is the user's access token,
so bucket policies apply to the user rather than to a service account.
*/
package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	// ProjectURL is the realtime service base URL.
	ProjectURL string

	// AnonKey is the project's anonymous key.
	AnonKey string

	BucketName string
	Region     string
}

// Endpoint is the S3-compatible endpoint of the project.
func (c ServiceConfig) Endpoint() string {
	return strings.TrimRight(c.ProjectURL, "/") + "/storage/v1/s3"
}

// ProjectRef is the first label of the project host, used as the access key ID.
func (c ServiceConfig) ProjectRef() string {
	u, err := url.Parse(c.ProjectURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.SplitN(u.Hostname(), ".", 2)[0]
}

// PublicURL is where an uploaded object can be downloaded.
func (c ServiceConfig) PublicURL(key string) string {
	return strings.TrimRight(c.ProjectURL, "/") + "/storage/v1/object/public/" + c.BucketName + "/" + key
}

// TokenSource supplies the user's access token for each upload.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// Object is a file to upload.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploaded describes a stored object.
type Uploaded struct {
	Key string
	URL string
}

// StorageService defines the public interface for the file storage service.
type StorageService interface {
	// Upload stores the object and returns its download URL.
	Upload(ctx context.Context, obj Object) (Uploaded, error)

	// Delete removes the object with the given key.
	Delete(ctx context.Context, key string) error
}

// NewStorageService is the factory function for StorageService.
func NewStorageService(cfg ServiceConfig, tokens TokenSource) (StorageService, error) {
	// Currently, only S3 compatible implementations are supported.
	return newS3Client(cfg, tokens)
}
