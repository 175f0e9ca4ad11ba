package task

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"multidrive/internal/api"
	"multidrive/internal/logger"
	"multidrive/internal/model"
	"multidrive/internal/transfer"
)

// Browse lists the children of a folder. An empty folderID means the
// account's root. When the live listing succeeds it refreshes the local
// cache; when it fails the cached listing is returned with fromCache set.
func (r *Runner) Browse(ctx context.Context, accountID, folderID string) (nodes []*model.Node, fromCache bool, err error) {
	client, err := r.Client(ctx, accountID)
	if err != nil {
		return nil, false, err
	}

	if folderID == "" {
		folderID, err = client.RootFolderID(ctx)
		if err != nil {
			r.markReauth(accountID, err)
			return nil, false, err
		}
	}

	nodes, err = client.ListChildren(ctx, folderID)
	if err != nil {
		r.markReauth(accountID, err)
		logger.Warning("Live listing failed, falling back to cached metadata: %v", err)

		cached, cacheErr := r.db.CachedChildren(accountID, folderID)
		if cacheErr != nil {
			return nil, false, err
		}
		return cached, true, nil
	}

	if err := r.db.CacheNodes(accountID, folderID, nodes); err != nil {
		logger.Warning("Failed to refresh the metadata cache: %v", err)
	}
	return nodes, false, nil
}

// Upload stores a local file in the primary account. Before uploading it
// runs the low-space check so a nearly full primary gets relieved first. An
// empty folderID targets the primary's root.
func (r *Runner) Upload(ctx context.Context, folderID, localPath string) (*model.Node, error) {
	primary, err := r.db.GetPrimaryAccount()
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, errors.New("no primary account connected")
	}

	client, err := r.Client(ctx, primary.ID)
	if err != nil {
		return nil, err
	}

	if quota, err := client.Quota(ctx); err == nil {
		primary.QuotaTotal = quota.Total
		primary.QuotaUsed = quota.Used
		if err := r.db.UpdateAccountQuota(primary.ID, quota.Total, quota.Used); err != nil {
			return nil, err
		}
	} else {
		r.markReauth(primary.ID, err)
		logger.WarningTagged([]string{primary.Email}, "Quota refresh failed before upload: %v", err)
	}

	if r.safeMode {
		logger.DryRunTagged([]string{primary.Email}, "Would check free space and upload '%s'", localPath)
		return nil, nil
	}

	if err := r.alloc.CheckAndAutoRelieve(ctx, primary); err != nil {
		logger.WarningTagged([]string{primary.Email}, "Auto-relieve failed: %v", err)
	}
	r.persistQuotas(primary)

	if folderID == "" {
		folderID, err = client.RootFolderID(ctx)
		if err != nil {
			r.markReauth(primary.ID, err)
			return nil, err
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(localPath)
	if err := r.checkCollision(ctx, client, folderID, name); err != nil {
		return nil, err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	logger.InfoTagged([]string{primary.Email}, "Uploading '%s'...", name)
	node, err := client.Upload(ctx, folderID, name, mimeType, nil, f)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	return node, nil
}

// CreateFolder creates a folder after verifying no sibling carries the same
// name in any casing.
func (r *Runner) CreateFolder(ctx context.Context, accountID, parentID, name string) (*model.Node, error) {
	client, err := r.Client(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if parentID == "" {
		parentID, err = client.RootFolderID(ctx)
		if err != nil {
			r.markReauth(accountID, err)
			return nil, err
		}
	}

	if err := r.checkCollision(ctx, client, parentID, name); err != nil {
		return nil, err
	}

	if r.safeMode {
		logger.DryRun("Would create folder '%s'", name)
		return nil, nil
	}
	return client.CreateFolder(ctx, parentID, name)
}

// Delete removes a file or folder and drops it from the metadata cache.
func (r *Runner) Delete(ctx context.Context, accountID, nodeID string) error {
	client, err := r.Client(ctx, accountID)
	if err != nil {
		return err
	}

	if r.safeMode {
		logger.DryRun("Would delete node %s", nodeID)
		return nil
	}

	if err := client.Delete(ctx, nodeID); err != nil {
		r.markReauth(accountID, err)
		return err
	}
	return r.db.RemoveCachedNode(accountID, nodeID)
}

// MoveFiles relocates the given files from one account to another, one at a
// time. When the target is a backup account the files land below its shared
// folder; otherwise they land below the target's root.
func (r *Runner) MoveFiles(ctx context.Context, fileIDs []string, sourceAccountID, targetAccountID string, maintainPath bool, onProgress transfer.ProgressFunc) error {
	target, err := r.db.GetAccount(targetAccountID)
	if err != nil {
		return err
	}

	var targetFolderID string
	if target.Role == model.RoleBackup {
		primary, err := r.db.GetPrimaryAccount()
		if err != nil {
			return err
		}
		if primary == nil {
			return errors.New("no primary account connected")
		}
		if err := r.ensureSharedFolder(ctx, target, primary); err != nil {
			return err
		}
		targetFolderID = target.SharedFolderID
	} else {
		client, err := r.Client(ctx, targetAccountID)
		if err != nil {
			return err
		}
		targetFolderID, err = client.RootFolderID(ctx)
		if err != nil {
			r.markReauth(targetAccountID, err)
			return err
		}
	}

	if r.safeMode {
		logger.DryRun("Would move %d file(s) to %s", len(fileIDs), target.Email)
		return nil
	}
	return r.orch.MoveFilesInBatch(ctx, fileIDs, sourceAccountID, targetAccountID, targetFolderID, maintainPath, onProgress)
}

// Relieve refreshes the primary's quota and runs the low-space check,
// offloading the largest files when free space is below the threshold.
func (r *Runner) Relieve(ctx context.Context) error {
	primary, err := r.db.GetPrimaryAccount()
	if err != nil {
		return err
	}
	if primary == nil {
		return errors.New("no primary account connected")
	}

	client, err := r.Client(ctx, primary.ID)
	if err != nil {
		return err
	}
	quota, err := client.Quota(ctx)
	if err != nil {
		r.markReauth(primary.ID, err)
		return fmt.Errorf("failed to fetch primary quota: %w", err)
	}
	primary.QuotaTotal = quota.Total
	primary.QuotaUsed = quota.Used
	if err := r.db.UpdateAccountQuota(primary.ID, quota.Total, quota.Used); err != nil {
		return err
	}

	if r.safeMode {
		logger.DryRunTagged([]string{primary.Email}, "Would relieve the primary account if free space is below the threshold")
		return nil
	}

	if err := r.alloc.CheckAndAutoRelieve(ctx, primary); err != nil {
		return err
	}
	r.persistQuotas(primary)
	return nil
}

// persistQuotas writes back the primary's in-memory quota numbers after a
// relieve pass. Backup numbers are left to the next live quota refresh.
func (r *Runner) persistQuotas(primary *model.Account) {
	if err := r.db.UpdateAccountQuota(primary.ID, primary.QuotaTotal, primary.QuotaUsed); err != nil {
		logger.Error("Failed to persist primary quota: %v", err)
	}
}

// checkCollision rejects a name already present among the folder's children
// in any casing.
func (r *Runner) checkCollision(ctx context.Context, client api.Client, parentID, name string) error {
	children, err := client.ListChildren(ctx, parentID)
	if err != nil {
		return fmt.Errorf("failed to list destination folder: %w", err)
	}
	for _, child := range children {
		if strings.EqualFold(child.Name, name) {
			return fmt.Errorf("%q: %w", name, api.ErrNameConflict)
		}
	}
	return nil
}
