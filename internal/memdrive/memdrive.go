// Package memdrive provides an in-memory implementation of api.Client.
// It backs the transfer, allocator and task tests with a deterministic
// stand-in for the remote Drive API.
package memdrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"multidrive/internal/api"
	"multidrive/internal/model"
)

// RootID is the fixed id of every in-memory account root.
const RootID = "root"

type memNode struct {
	node    model.Node
	content []byte
}

// Client is an in-memory api.Client for a single account.
type Client struct {
	mu        sync.Mutex
	accountID string
	email     string
	nodes     map[string]*memNode
	// Permissions maps node id to emails granted access, by role.
	Permissions map[string]map[string]string
	quota       model.QuotaInfo

	// FailOn makes the named operation return an error; used to exercise
	// partial-failure paths. Keys: get, list, download, upload, createFolder,
	// delete, grant, quota.
	FailOn map[string]error

	// Calls counts operations by the same keys as FailOn.
	Calls map[string]int
}

// New creates an empty in-memory account with the given id and owner email.
func New(accountID, email string) *Client {
	c := &Client{
		accountID:   accountID,
		email:       email,
		nodes:       make(map[string]*memNode),
		Permissions: make(map[string]map[string]string),
		FailOn:      make(map[string]error),
		Calls:       make(map[string]int),
	}
	c.nodes[RootID] = &memNode{node: model.Node{
		ID:       RootID,
		Name:     "My Drive",
		MimeType: model.FolderMimeType,
	}}
	return c
}

// SetQuota sets the quota numbers returned by Quota.
func (c *Client) SetQuota(total, used int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quota = model.QuotaInfo{Total: total, Used: used, Free: total - used}
}

// AddFolder inserts a folder under parentID and returns its id.
func (c *Client) AddFolder(parentID, name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.nodes[id] = &memNode{node: model.Node{
		ID:       id,
		Name:     name,
		MimeType: model.FolderMimeType,
		ParentID: parentID,
	}}
	return id
}

// AddFile inserts a file under parentID and returns its id.
func (c *Client) AddFile(parentID, name, mimeType string, content []byte) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.nodes[id] = &memNode{
		node: model.Node{
			ID:           id,
			Name:         name,
			MimeType:     mimeType,
			Size:         int64(len(content)),
			ParentID:     parentID,
			CreatedTime:  time.Now(),
			ModifiedTime: time.Now(),
			OwnerEmail:   c.email,
		},
		content: append([]byte(nil), content...),
	}
	return id
}

// Content returns a file's bytes, or nil if it does not exist.
func (c *Client) Content(id string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[id]; ok {
		return append([]byte(nil), n.content...)
	}
	return nil
}

// Exists reports whether a node id is present.
func (c *Client) Exists(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.nodes[id]
	return ok
}

// FindChild returns the direct child of parentID with the given name, or nil.
func (c *Client) FindChild(parentID, name string) *model.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.nodes {
		if n.node.ParentID == parentID && n.node.Name == name {
			copied := n.node
			return &copied
		}
	}
	return nil
}

func (c *Client) fail(op string) error {
	c.Calls[op]++
	if err, ok := c.FailOn[op]; ok {
		return err
	}
	return nil
}

func (c *Client) AccountID() string {
	return c.accountID
}

func (c *Client) OwnerEmail(ctx context.Context) (string, error) {
	return c.email, nil
}

func (c *Client) RootFolderID(ctx context.Context) (string, error) {
	return RootID, nil
}

func (c *Client) GetNode(ctx context.Context, id string) (*model.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("get"); err != nil {
		return nil, err
	}
	n, ok := c.nodes[id]
	if !ok {
		return nil, fmt.Errorf("get metadata: %w", api.ErrNotFound)
	}
	copied := n.node
	return &copied, nil
}

func (c *Client) ListChildren(ctx context.Context, parentID string) ([]*model.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("list"); err != nil {
		return nil, err
	}
	var children []*model.Node
	for _, n := range c.nodes {
		if n.node.ParentID == parentID {
			copied := n.node
			children = append(children, &copied)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

func (c *Client) Download(ctx context.Context, id string, w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("download"); err != nil {
		return err
	}
	n, ok := c.nodes[id]
	if !ok {
		return fmt.Errorf("download: %w", api.ErrNotFound)
	}
	_, err := io.Copy(w, bytes.NewReader(n.content))
	return err
}

func (c *Client) Upload(ctx context.Context, parentID, name, mimeType string, meta *model.Node, r io.Reader) (*model.Node, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("upload"); err != nil {
		return nil, err
	}

	node := model.Node{
		ID:           uuid.NewString(),
		Name:         name,
		MimeType:     mimeType,
		Size:         int64(len(content)),
		ParentID:     parentID,
		CreatedTime:  time.Now(),
		ModifiedTime: time.Now(),
		OwnerEmail:   c.email,
	}
	if meta != nil {
		if !meta.CreatedTime.IsZero() {
			node.CreatedTime = meta.CreatedTime
		}
		if !meta.ModifiedTime.IsZero() {
			node.ModifiedTime = meta.ModifiedTime
		}
	}

	c.nodes[node.ID] = &memNode{node: node, content: content}
	c.quota.Used += node.Size
	c.quota.Free = c.quota.Total - c.quota.Used

	copied := node
	return &copied, nil
}

func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (*model.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("createFolder"); err != nil {
		return nil, err
	}

	node := model.Node{
		ID:       uuid.NewString(),
		Name:     name,
		MimeType: model.FolderMimeType,
		ParentID: parentID,
	}
	c.nodes[node.ID] = &memNode{node: node}

	copied := node
	return &copied, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("delete"); err != nil {
		return err
	}
	n, ok := c.nodes[id]
	if !ok {
		return fmt.Errorf("delete: %w", api.ErrNotFound)
	}
	c.quota.Used -= n.node.Size
	c.quota.Free = c.quota.Total - c.quota.Used
	delete(c.nodes, id)
	return nil
}

func (c *Client) GrantReader(ctx context.Context, nodeID, email string) error {
	return c.grant(nodeID, email, "reader")
}

func (c *Client) GrantWriter(ctx context.Context, nodeID, email string) error {
	return c.grant(nodeID, email, "writer")
}

func (c *Client) grant(nodeID, email, role string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("grant"); err != nil {
		return err
	}
	if _, ok := c.nodes[nodeID]; !ok {
		return fmt.Errorf("set permission: %w", api.ErrNotFound)
	}
	if c.Permissions[nodeID] == nil {
		c.Permissions[nodeID] = make(map[string]string)
	}
	c.Permissions[nodeID][email] = role
	return nil
}

func (c *Client) Quota(ctx context.Context) (*model.QuotaInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail("quota"); err != nil {
		return nil, err
	}
	copied := c.quota
	return &copied, nil
}

var _ api.Client = (*Client)(nil)
