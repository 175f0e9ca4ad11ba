package api

import (
	"context"
	"io"

	"multidrive/internal/model"
)

// Client defines the operations the aggregator needs from a single account's
// remote file store. internal/drive implements it against the Drive REST API;
// internal/memdrive implements it in memory for tests.
type Client interface {
	// AccountID returns the identifier of the account this client is bound to.
	AccountID() string

	// OwnerEmail returns the email address of the account owner.
	OwnerEmail(ctx context.Context) (string, error)

	// RootFolderID returns the canonical id of the account root.
	RootFolderID(ctx context.Context) (string, error)

	// GetNode fetches metadata for a single file or folder.
	GetNode(ctx context.Context, id string) (*model.Node, error)

	// ListChildren lists the direct children of a folder.
	ListChildren(ctx context.Context, parentID string) ([]*model.Node, error)

	// Download streams the full byte content of a file to w.
	Download(ctx context.Context, id string, w io.Writer) error

	// Upload creates a new file under parentID with the given name and MIME
	// type. meta carries timestamps to preserve on the created node; it may
	// be nil.
	Upload(ctx context.Context, parentID, name, mimeType string, meta *model.Node, r io.Reader) (*model.Node, error)

	// CreateFolder creates a folder under parentID.
	CreateFolder(ctx context.Context, parentID, name string) (*model.Node, error)

	// Delete permanently removes a file or folder.
	Delete(ctx context.Context, id string) error

	// GrantReader gives email read access to a node.
	GrantReader(ctx context.Context, nodeID, email string) error

	// GrantWriter gives email write access to a node.
	GrantWriter(ctx context.Context, nodeID, email string) error

	// Quota returns the account's storage quota numbers.
	Quota(ctx context.Context) (*model.QuotaInfo, error)
}
