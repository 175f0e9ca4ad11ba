package model

import "time"

// FolderMimeType is the MIME sentinel Google Drive uses to mark a node as a
// folder. Everything else is a leaf file.
const FolderMimeType = "application/vnd.google-apps.folder"

// Role tags an account as the user-facing primary store or as overflow.
type Role string

const (
	RolePrimary Role = "primary"
	RoleBackup  Role = "backup"
)

// Status tracks the lifecycle of an account's credential.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
	StatusError   Status = "error"
)

// Account represents one connected Google Drive account.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`
	QuotaTotal   int64     `json:"quota_total"`
	QuotaUsed    int64     `json:"quota_used"`
	Role         Role      `json:"role"`
	// SharedFolderID is set for backup accounts only: the folder inside the
	// backup account that acts as its sole visible root from the aggregator.
	SharedFolderID string    `json:"shared_folder_id,omitempty"`
	Status         Status    `json:"status"`
	AddedAt        time.Time `json:"added_at"`
}

// FreeSpace returns total minus used. Quota reads may be stale.
func (a *Account) FreeSpace() int64 {
	return a.QuotaTotal - a.QuotaUsed
}

// Node represents a file or folder in a remote account. The ID is scoped to
// one account; ParentID is empty only for the account root.
type Node struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	MimeType      string    `json:"mime_type"`
	Size          int64     `json:"size"`
	ParentID      string    `json:"parent_id,omitempty"`
	CreatedTime   time.Time `json:"created_time"`
	ModifiedTime  time.Time `json:"modified_time"`
	ThumbnailLink string    `json:"thumbnail_link,omitempty"`
	WebViewLink   string    `json:"web_view_link,omitempty"`
	OwnerEmail    string    `json:"owner_email,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.MimeType == FolderMimeType
}

// QuotaInfo represents storage quota numbers for a single account.
type QuotaInfo struct {
	Total int64 `json:"total"`
	Used  int64 `json:"used"`
	Free  int64 `json:"free"`
}

// TransferIntent describes one orchestrated move. It is ephemeral and never
// persisted; it exists only for the duration of the move.
type TransferIntent struct {
	FileID          string
	SourceAccountID string
	TargetAccountID string
	TargetFolderID  string
	MaintainPath    bool
}
