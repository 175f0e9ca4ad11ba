package transfer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"multidrive/internal/api"
	"multidrive/internal/logger"
	"multidrive/internal/model"
)

// ClientFactory returns a ready client for an account, acquiring a valid
// credential first. It fails with api.ErrReauthRequired when the account's
// token can no longer be refreshed.
type ClientFactory func(ctx context.Context, accountID string) (api.Client, error)

// Orchestrator performs cross-account moves: recreate the folder path if
// asked, check for a name collision, stream the content from the source
// account into the target account, then delete the source copy. There are
// no automatic retries and no rollback; the delete is the last step.
type Orchestrator struct {
	Clients ClientFactory

	// ShareBackWithSource grants the source account's owner read access on
	// the uploaded copy, so the original owner retains visibility.
	ShareBackWithSource bool

	// OnMoved, when set, is called once a move has fully completed with the
	// source account and file id, so callers can invalidate cached metadata.
	OnMoved func(sourceAccountID, fileID string)
}

// NewOrchestrator builds an Orchestrator over the given client factory.
func NewOrchestrator(clients ClientFactory) *Orchestrator {
	return &Orchestrator{Clients: clients}
}

// MoveFile relocates a single file between accounts.
//
// The collision check and the upload are not atomic: two concurrent moves of
// equally named files into the same folder can both pass the check and both
// upload. Batch moves run strictly sequentially so the race only exists
// across independent user actions.
func (o *Orchestrator) MoveFile(ctx context.Context, intent model.TransferIntent) error {
	src, err := o.Clients(ctx, intent.SourceAccountID)
	if err != nil {
		return fmt.Errorf("source account %s: %w", intent.SourceAccountID, err)
	}
	dst, err := o.Clients(ctx, intent.TargetAccountID)
	if err != nil {
		return fmt.Errorf("target account %s: %w", intent.TargetAccountID, err)
	}

	meta, err := src.GetNode(ctx, intent.FileID)
	if err != nil {
		return fmt.Errorf("fetch source metadata: %w", err)
	}
	if meta.IsFolder() {
		return fmt.Errorf("node %s is a folder; only files can be moved", intent.FileID)
	}

	destFolderID := intent.TargetFolderID
	if intent.MaintainPath && meta.ParentID != "" {
		destFolderID, err = ResolveDestinationFolder(ctx, src, dst, meta.ParentID, intent.TargetFolderID)
		if err != nil {
			return fmt.Errorf("recreate folder path: %w", err)
		}
	}

	if err := checkCollision(ctx, dst, destFolderID, meta.Name); err != nil {
		return err
	}

	// Stream the content straight from source to target; large files never
	// sit in memory. A download failure closes the pipe and aborts the
	// upload before a node is created.
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(src.Download(ctx, intent.FileID, pw))
	}()

	uploaded, err := dst.Upload(ctx, destFolderID, meta.Name, meta.MimeType, meta, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("upload to target: %w", err)
	}

	if o.ShareBackWithSource {
		ownerEmail, err := src.OwnerEmail(ctx)
		if err == nil {
			err = dst.GrantReader(ctx, uploaded.ID, ownerEmail)
		}
		if err != nil {
			// The copy is still owned by the target account; the move
			// itself has succeeded.
			logger.WarningTagged([]string{"Transfer", dst.AccountID()}, "Failed to share %s back with source owner: %v", uploaded.Name, err)
		}
	}

	if err := src.Delete(ctx, intent.FileID); err != nil {
		return fmt.Errorf("%w: %v", api.ErrSourceNotDeleted, err)
	}

	if o.OnMoved != nil {
		o.OnMoved(intent.SourceAccountID, intent.FileID)
	}

	logger.InfoTagged([]string{"Transfer", src.AccountID()}, "Moved %s (%d bytes) to account %s", meta.Name, meta.Size, dst.AccountID())
	return nil
}

// checkCollision fails with api.ErrNameConflict when the destination folder
// already contains a node with the same name, compared case-insensitively.
func checkCollision(ctx context.Context, dst api.Client, folderID, name string) error {
	children, err := dst.ListChildren(ctx, folderID)
	if err != nil {
		return fmt.Errorf("check destination for collisions: %w", err)
	}
	for _, child := range children {
		if strings.EqualFold(child.Name, name) {
			return fmt.Errorf("%q: %w", name, api.ErrNameConflict)
		}
	}
	return nil
}

// ProgressFunc is invoked after every attempted file of a batch with the
// number of files attempted so far and the batch total.
type ProgressFunc func(completed, total int)

// MoveFilesInBatch moves the given files in input order, one fully completing
// before the next begins. Per-file failures are logged and do not abort the
// batch; the returned error only reports the aggregate failure count.
func (o *Orchestrator) MoveFilesInBatch(ctx context.Context, fileIDs []string, sourceAccountID, targetAccountID, targetFolderID string, maintainPath bool, onProgress ProgressFunc) error {
	total := len(fileIDs)
	failed := 0

	for i, fileID := range fileIDs {
		err := o.MoveFile(ctx, model.TransferIntent{
			FileID:          fileID,
			SourceAccountID: sourceAccountID,
			TargetAccountID: targetAccountID,
			TargetFolderID:  targetFolderID,
			MaintainPath:    maintainPath,
		})
		if err != nil {
			failed++
			logger.WarningTagged([]string{"Transfer", sourceAccountID}, "Failed to move %s: %v", fileID, err)
		}

		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to move", failed, total)
	}
	return nil
}
