package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"multidrive/internal/api"
	"multidrive/internal/logger"
	"multidrive/internal/model"
)

const (
	nodeFields = "id, name, mimeType, size, parents, createdTime, modifiedTime, thumbnailLink, webViewLink, owners"
	listFields = "nextPageToken, files(" + nodeFields + ")"

	// Per-account request budget, conservative against the Drive per-user
	// rate limits.
	requestsPerSecond = 5
	requestBurst      = 10
)

// Client implements api.Client against the Drive v3 REST API for a single
// account. All calls go through a per-account rate limiter.
type Client struct {
	service   *drive.Service
	accountID string
	email     string
	limiter   *rate.Limiter
}

// NewClient builds a Drive client from an account's token source.
func NewClient(ctx context.Context, ts oauth2.TokenSource, accountID string) (*Client, error) {
	service, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{
		service:   service,
		accountID: accountID,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}, nil
}

// AccountID returns the account this client is bound to.
func (c *Client) AccountID() string {
	return c.accountID
}

// Profile describes the authorized account as reported by the API.
type Profile struct {
	Email        string
	DisplayName  string
	AvatarURL    string
	PermissionID string
}

// FetchProfile returns the authorized user's identity.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	about, err := c.service.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return &Profile{
		Email:        about.User.EmailAddress,
		DisplayName:  about.User.DisplayName,
		AvatarURL:    about.User.PhotoLink,
		PermissionID: about.User.PermissionId,
	}, nil
}

// OwnerEmail returns the account owner's email address.
func (c *Client) OwnerEmail(ctx context.Context) (string, error) {
	if c.email != "" {
		return c.email, nil
	}
	profile, err := c.FetchProfile(ctx)
	if err != nil {
		return "", err
	}
	c.email = profile.Email
	return c.email, nil
}

// RootFolderID resolves the canonical id behind the "root" alias.
func (c *Client) RootFolderID(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	f, err := c.service.Files.Get("root").Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to resolve root folder: %w", err)
	}
	return f.Id, nil
}

// GetNode fetches metadata for a single node.
func (c *Client) GetNode(ctx context.Context, id string) (*model.Node, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	f, err := c.service.Files.Get(id).Fields(nodeFields).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("get metadata", err)
	}
	return toNode(f), nil
}

// ListChildren lists the direct, non-trashed children of a folder.
func (c *Client) ListChildren(ctx context.Context, parentID string) ([]*model.Node, error) {
	if parentID == "" {
		return nil, errors.New("parent folder ID is required")
	}

	query := fmt.Sprintf("'%s' in parents and trashed=false", parentID)

	var all []*model.Node
	pageToken := ""
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		call := c.service.Files.List().Q(query).Fields(listFields).PageSize(1000).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		fileList, err := call.Do()
		if err != nil {
			return nil, wrapAPIError("list children", err)
		}

		for _, f := range fileList.Files {
			n := toNode(f)
			if n.ParentID == "" {
				n.ParentID = parentID
			}
			all = append(all, n)
		}

		if fileList.NextPageToken == "" {
			break
		}
		pageToken = fileList.NextPageToken
	}

	return all, nil
}

// Download streams a file's content to w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return wrapAPIError("download", err)
	}
	defer resp.Body.Close()

	logger.InfoTagged([]string{"Drive", c.accountID}, "Download stream started for %s", id)
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	return nil
}

// Upload creates a file under parentID with the given name and MIME type,
// preserving created/modified timestamps from meta when present.
func (c *Client) Upload(ctx context.Context, parentID, name, mimeType string, meta *model.Node, r io.Reader) (*model.Node, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	file := &drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}
	if meta != nil {
		if !meta.ModifiedTime.IsZero() {
			file.ModifiedTime = meta.ModifiedTime.Format(time.RFC3339)
		}
		if !meta.CreatedTime.IsZero() {
			file.CreatedTime = meta.CreatedTime.Format(time.RFC3339)
		}
	}

	created, err := c.service.Files.Create(file).Media(r).Fields(nodeFields).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("upload", err)
	}
	return toNode(created), nil
}

// CreateFolder creates a folder under parentID.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (*model.Node, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	folder := &drive.File{
		Name:     name,
		MimeType: model.FolderMimeType,
		Parents:  []string{parentID},
	}

	created, err := c.service.Files.Create(folder).Fields(nodeFields).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("create folder", err)
	}
	return toNode(created), nil
}

// Delete permanently removes a node. Nodes the account cannot delete are
// trashed instead.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := c.service.Files.Delete(id).Context(ctx).Do()
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == 403 {
			logger.InfoTagged([]string{"Drive", c.accountID}, "Insufficient permissions to delete %s, trashing instead", id)
			_, updateErr := c.service.Files.Update(id, &drive.File{Trashed: true}).Context(ctx).Do()
			if updateErr != nil {
				return wrapAPIError("delete", updateErr)
			}
			return nil
		}
		return wrapAPIError("delete", err)
	}
	return nil
}

// GrantReader gives email read access to a node.
func (c *Client) GrantReader(ctx context.Context, nodeID, email string) error {
	return c.grant(ctx, nodeID, email, "reader")
}

// GrantWriter gives email write access to a node.
func (c *Client) GrantWriter(ctx context.Context, nodeID, email string) error {
	return c.grant(ctx, nodeID, email, "writer")
}

func (c *Client) grant(ctx context.Context, nodeID, email, role string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	permission := &drive.Permission{
		Type:         "user",
		Role:         role,
		EmailAddress: email,
	}
	_, err := c.service.Permissions.Create(nodeID, permission).SendNotificationEmail(false).Context(ctx).Do()
	if err != nil {
		return wrapAPIError("set permission", err)
	}

	logger.InfoTagged([]string{"Drive", c.accountID}, "Granted %s on %s to %s", role, nodeID, email)
	return nil
}

// Quota returns storage quota numbers for the account.
func (c *Client) Quota(ctx context.Context) (*model.QuotaInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	about, err := c.service.About.Get().Fields("storageQuota").Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("get quota", err)
	}

	quota := &model.QuotaInfo{
		Total: about.StorageQuota.Limit,
		Used:  about.StorageQuota.Usage,
	}
	if quota.Total > 0 {
		quota.Free = quota.Total - quota.Used
	}
	return quota, nil
}

// toNode converts a Drive API file into the tagged internal shape, rejecting
// nothing but normalizing the fields the rest of the system relies on.
func toNode(f *drive.File) *model.Node {
	n := &model.Node{
		ID:            f.Id,
		Name:          f.Name,
		MimeType:      f.MimeType,
		Size:          f.Size,
		CreatedTime:   parseTime(f.CreatedTime),
		ModifiedTime:  parseTime(f.ModifiedTime),
		ThumbnailLink: f.ThumbnailLink,
		WebViewLink:   f.WebViewLink,
	}
	if len(f.Parents) > 0 {
		n.ParentID = f.Parents[0]
	}
	if len(f.Owners) > 0 {
		n.OwnerEmail = f.Owners[0].EmailAddress
	}
	return n
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func wrapAPIError(step string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == 404 {
		return fmt.Errorf("%s: %w", step, api.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", step, err)
}
