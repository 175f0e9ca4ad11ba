// Package allocator decides where relocated files land and watches the
// primary account for low-space conditions.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"multidrive/internal/api"
	"multidrive/internal/logger"
	"multidrive/internal/model"
	"multidrive/internal/transfer"
)

// ErrNoBackupAvailable is returned when no connected backup account is
// active and has free space left.
var ErrNoBackupAvailable = errors.New("no backup account with free space available")

const (
	// lowSpaceFraction is the free-space ratio below which the primary
	// account is considered full enough to relieve automatically.
	lowSpaceFraction = 0.10

	// relieveBatchSize caps how many files a single auto-relieve pass moves.
	relieveBatchSize = 5
)

// SelectBestBackupAccount picks the active backup account with the most free
// space. Ties are broken uniformly at random so equally sized accounts fill
// evenly over time.
func SelectBestBackupAccount(candidates []*model.Account) (*model.Account, error) {
	var best []*model.Account
	var bestFree int64

	for _, acc := range candidates {
		if acc.Role != model.RoleBackup || acc.Status != model.StatusActive {
			continue
		}
		free := acc.FreeSpace()
		if free <= 0 {
			continue
		}
		switch {
		case free > bestFree:
			best = best[:0]
			best = append(best, acc)
			bestFree = free
		case free == bestFree:
			best = append(best, acc)
		}
	}

	if len(best) == 0 {
		return nil, ErrNoBackupAvailable
	}
	return best[rand.Intn(len(best))], nil
}

// FileMover executes a single relocation. Satisfied by transfer.Orchestrator.
type FileMover interface {
	MoveFile(ctx context.Context, intent model.TransferIntent) error
}

// Allocator runs space checks against the primary account and offloads the
// largest files to backup accounts when space runs low.
type Allocator struct {
	Clients transfer.ClientFactory
	Backups func(ctx context.Context) ([]*model.Account, error)
	Mover   FileMover
}

// NewAllocator builds an Allocator from its three collaborators.
func NewAllocator(clients transfer.ClientFactory, backups func(ctx context.Context) ([]*model.Account, error), mover FileMover) *Allocator {
	return &Allocator{Clients: clients, Backups: backups, Mover: mover}
}

// CheckAndAutoRelieve inspects the primary account's quota and, when free
// space has dropped below the threshold, moves its largest files to backup
// accounts with the original folder paths recreated. Individual move failures
// are logged and skipped; the pass itself only fails when it cannot even
// enumerate candidates.
func (a *Allocator) CheckAndAutoRelieve(ctx context.Context, primary *model.Account) error {
	if primary.QuotaTotal <= 0 {
		return nil
	}
	free := primary.FreeSpace()
	if float64(free) >= lowSpaceFraction*float64(primary.QuotaTotal) {
		return nil
	}

	logger.WarningTagged([]string{primary.Email}, "Primary account is low on space (%d bytes free). Starting auto-relieve...", free)

	client, err := a.Clients(ctx, primary.ID)
	if err != nil {
		return fmt.Errorf("primary account client: %w", err)
	}
	rootID, err := client.RootFolderID(ctx)
	if err != nil {
		return fmt.Errorf("primary root folder: %w", err)
	}

	files, err := largestFiles(ctx, client, rootID, relieveBatchSize)
	if err != nil {
		return fmt.Errorf("enumerate primary files: %w", err)
	}
	if len(files) == 0 {
		logger.InfoTagged([]string{primary.Email}, "No movable files found, skipping auto-relieve.")
		return nil
	}

	backups, err := a.Backups(ctx)
	if err != nil {
		return fmt.Errorf("list backup accounts: %w", err)
	}

	for _, f := range files {
		// Re-select per file so quota updates from earlier moves are
		// reflected in the choice.
		target, err := SelectBestBackupAccount(backups)
		if err != nil {
			logger.Warning("Auto-relieve stopped: %v", err)
			return nil
		}

		logger.InfoTagged([]string{primary.Email}, "Moving '%s' (%d bytes) to %s...", f.Name, f.Size, target.Email)
		err = a.Mover.MoveFile(ctx, model.TransferIntent{
			FileID:          f.ID,
			SourceAccountID: primary.ID,
			TargetAccountID: target.ID,
			TargetFolderID:  target.SharedFolderID,
			MaintainPath:    true,
		})
		if err != nil {
			logger.ErrorTagged([]string{primary.Email}, "Auto-relieve move of '%s' failed: %v", f.Name, err)
			continue
		}

		target.QuotaUsed += f.Size
		primary.QuotaUsed -= f.Size
	}

	return nil
}

// largestFiles walks the full hierarchy below rootID and returns the n
// largest regular files, biggest first.
func largestFiles(ctx context.Context, client api.Client, rootID string, n int) ([]*model.Node, error) {
	var files []*model.Node
	queue := []string{rootID}

	for len(queue) > 0 {
		folderID := queue[0]
		queue = queue[1:]

		children, err := client.ListChildren(ctx, folderID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if child.IsFolder() {
				queue = append(queue, child.ID)
				continue
			}
			files = append(files, child)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Size > files[j].Size })
	if len(files) > n {
		files = files[:n]
	}
	return files, nil
}
