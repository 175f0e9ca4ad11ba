package transfer

import (
	"context"
	"fmt"

	"multidrive/internal/api"
	"multidrive/internal/logger"
)

// maxPathDepth bounds the ancestor walk. The remote hierarchy is assumed
// acyclic, but a pathological response must not loop forever.
const maxPathDepth = 100

// ResolveDestinationFolder recreates the ancestor path of sourceFolderID
// under targetRootID in the target account and returns the leaf folder id.
// Folders already present (exact name match) are reused, missing ones are
// created, so resolving twice against an unchanged target returns the same
// id. Any failure aborts the resolution; no partial path is ever returned.
func ResolveDestinationFolder(ctx context.Context, src, dst api.Client, sourceFolderID, targetRootID string) (string, error) {
	rootID, err := src.RootFolderID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve source root: %w", err)
	}

	if sourceFolderID == "" || sourceFolderID == rootID {
		return targetRootID, nil
	}

	names, err := ancestorNames(ctx, src, sourceFolderID, rootID)
	if err != nil {
		return "", err
	}

	return materializePath(ctx, dst, targetRootID, names)
}

// ancestorNames walks from folderID up to the account root and returns the
// folder names in root-to-leaf order. The root itself is not included.
func ancestorNames(ctx context.Context, src api.Client, folderID, rootID string) ([]string, error) {
	var names []string
	current := folderID

	for depth := 0; ; depth++ {
		if depth >= maxPathDepth {
			return nil, fmt.Errorf("ancestor walk exceeded %d levels at folder %s", maxPathDepth, current)
		}

		node, err := src.GetNode(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("walk ancestors of %s: %w", folderID, err)
		}

		names = append([]string{node.Name}, names...)

		if node.ParentID == "" || node.ParentID == rootID {
			return names, nil
		}
		current = node.ParentID
	}
}

// materializePath descends from rootID through names, creating each missing
// folder, and returns the final leaf folder id.
func materializePath(ctx context.Context, dst api.Client, rootID string, names []string) (string, error) {
	current := rootID

	for _, name := range names {
		children, err := dst.ListChildren(ctx, current)
		if err != nil {
			return "", fmt.Errorf("list destination folder %s: %w", current, err)
		}

		found := ""
		for _, child := range children {
			if child.IsFolder() && child.Name == name {
				found = child.ID
				break
			}
		}

		if found != "" {
			current = found
			continue
		}

		logger.InfoTagged([]string{"Transfer", dst.AccountID()}, "Creating folder '%s'...", name)
		folder, err := dst.CreateFolder(ctx, current, name)
		if err != nil {
			return "", fmt.Errorf("create destination folder %q: %w", name, err)
		}
		current = folder.ID
	}

	return current, nil
}
