package task

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"multidrive/internal/api"
	"multidrive/internal/config"
	"multidrive/internal/database"
	"multidrive/internal/drive"
	"multidrive/internal/memdrive"
	"multidrive/internal/model"
)

func newTestRunner(t *testing.T, safeMode bool) *Runner {
	t.Helper()

	key := bytes.Repeat([]byte("k"), 32)
	db, err := database.Open(filepath.Join(t.TempDir(), database.DBFileName), key)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{GoogleClient: config.ClientCredentials{ID: "id", Secret: "secret"}}
	return NewRunner(cfg, db, safeMode)
}

func addTestAccount(t *testing.T, r *Runner, id, email string, role model.Role, drive *memdrive.Client) *model.Account {
	t.Helper()

	acct := &model.Account{
		ID:           id,
		Email:        email,
		DisplayName:  email,
		RefreshToken: "token-" + id,
		Role:         role,
		Status:       model.StatusActive,
		QuotaTotal:   1000,
		AddedAt:      time.Now().UTC(),
	}
	if err := r.db.UpsertAccount(acct); err != nil {
		t.Fatalf("Failed to store account: %v", err)
	}
	r.clients[id] = drive
	return acct
}

func TestBrowseFallsBackToCachedMetadata(t *testing.T) {
	r := newTestRunner(t, false)
	drive := memdrive.New("primary", "owner@example.com")
	addTestAccount(t, r, "primary", "owner@example.com", model.RolePrimary, drive)

	drive.AddFile(memdrive.RootID, "notes.txt", "text/plain", []byte("hello"))
	drive.AddFolder(memdrive.RootID, "Docs")

	nodes, fromCache, err := r.Browse(context.Background(), "primary", "")
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}
	if fromCache {
		t.Error("Expected a live listing on the first browse")
	}
	if len(nodes) != 2 {
		t.Fatalf("Expected 2 children, got %d", len(nodes))
	}

	drive.FailOn["list"] = errors.New("network unreachable")

	nodes, fromCache, err = r.Browse(context.Background(), "primary", memdrive.RootID)
	if err != nil {
		t.Fatalf("Expected the cache fallback to succeed, got %v", err)
	}
	if !fromCache {
		t.Error("Expected the listing to come from the cache")
	}
	if len(nodes) != 2 {
		t.Errorf("Expected 2 cached children, got %d", len(nodes))
	}
}

func TestCreateFolderRejectsCaseInsensitiveSibling(t *testing.T) {
	r := newTestRunner(t, false)
	drive := memdrive.New("primary", "owner@example.com")
	addTestAccount(t, r, "primary", "owner@example.com", model.RolePrimary, drive)

	drive.AddFolder(memdrive.RootID, "Photos")

	if _, err := r.CreateFolder(context.Background(), "primary", "", "photos"); !errors.Is(err, api.ErrNameConflict) {
		t.Errorf("Expected ErrNameConflict, got %v", err)
	}

	node, err := r.CreateFolder(context.Background(), "primary", "", "Videos")
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	if node == nil || node.Name != "Videos" {
		t.Error("Expected the new folder back")
	}
}

func TestDeleteRemovesCachedNode(t *testing.T) {
	r := newTestRunner(t, false)
	drive := memdrive.New("primary", "owner@example.com")
	addTestAccount(t, r, "primary", "owner@example.com", model.RolePrimary, drive)

	fileID := drive.AddFile(memdrive.RootID, "notes.txt", "text/plain", []byte("hello"))
	if _, _, err := r.Browse(context.Background(), "primary", memdrive.RootID); err != nil {
		t.Fatal(err)
	}

	if err := r.Delete(context.Background(), "primary", fileID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if drive.Exists(fileID) {
		t.Error("Expected the file to be gone from the drive")
	}

	cached, err := r.db.CachedChildren("primary", memdrive.RootID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 0 {
		t.Error("Expected the cache entry to be dropped")
	}
}

func TestSafeModeSkipsDeletion(t *testing.T) {
	r := newTestRunner(t, true)
	drive := memdrive.New("primary", "owner@example.com")
	addTestAccount(t, r, "primary", "owner@example.com", model.RolePrimary, drive)

	fileID := drive.AddFile(memdrive.RootID, "notes.txt", "text/plain", []byte("hello"))
	if err := r.Delete(context.Background(), "primary", fileID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !drive.Exists(fileID) {
		t.Error("Expected safe mode to leave the file in place")
	}
}

func TestMoveFilesLandInSharedFolder(t *testing.T) {
	r := newTestRunner(t, false)

	primaryDrive := memdrive.New("primary", "owner@example.com")
	backupDrive := memdrive.New("backup", "backup@example.com")

	addTestAccount(t, r, "primary", "owner@example.com", model.RolePrimary, primaryDrive)
	backupAcct := addTestAccount(t, r, "backup", "backup@example.com", model.RoleBackup, backupDrive)

	shared := backupDrive.AddFolder(memdrive.RootID, SharedFolderName)
	if err := r.db.SetSharedFolder(backupAcct.ID, shared); err != nil {
		t.Fatal(err)
	}

	docs := primaryDrive.AddFolder(memdrive.RootID, "Docs")
	fileID := primaryDrive.AddFile(docs, "report.pdf", "application/pdf", []byte("content"))

	err := r.MoveFiles(context.Background(), []string{fileID}, "primary", "backup", true, nil)
	if err != nil {
		t.Fatalf("MoveFiles failed: %v", err)
	}

	recreated := backupDrive.FindChild(shared, "Docs")
	if recreated == nil {
		t.Fatal("Expected 'Docs' recreated below the shared folder")
	}
	if backupDrive.FindChild(recreated.ID, "report.pdf") == nil {
		t.Error("Expected the file inside the recreated folder")
	}
	if primaryDrive.Exists(fileID) {
		t.Error("Expected the source file to be deleted")
	}
}

func TestRemoveAccountGuardsPrimary(t *testing.T) {
	r := newTestRunner(t, false)

	addTestAccount(t, r, "primary", "owner@example.com", model.RolePrimary, memdrive.New("primary", "owner@example.com"))
	addTestAccount(t, r, "backup", "backup@example.com", model.RoleBackup, memdrive.New("backup", "backup@example.com"))

	if err := r.RemoveAccount(context.Background(), "primary"); err == nil {
		t.Error("Expected removal of the primary to be refused while backups remain")
	}

	if err := r.RemoveAccount(context.Background(), "backup"); err != nil {
		t.Fatalf("Failed to remove backup account: %v", err)
	}
	if err := r.RemoveAccount(context.Background(), "primary"); err != nil {
		t.Errorf("Expected the primary to be removable once alone, got %v", err)
	}
}

func TestEnsureSharedFoldersAdoptsExistingFolder(t *testing.T) {
	r := newTestRunner(t, false)

	primaryDrive := memdrive.New("primary", "owner@example.com")
	backupDrive := memdrive.New("backup", "backup@example.com")

	addTestAccount(t, r, "primary", "owner@example.com", model.RolePrimary, primaryDrive)
	addTestAccount(t, r, "backup", "backup@example.com", model.RoleBackup, backupDrive)

	// The folder survives on the drive while the local record has no id,
	// as happens after a remove and re-add of the account.
	existing := backupDrive.AddFolder(memdrive.RootID, SharedFolderName)

	if err := r.EnsureSharedFolders(context.Background()); err != nil {
		t.Fatalf("EnsureSharedFolders failed: %v", err)
	}

	children, err := backupDrive.ListChildren(context.Background(), memdrive.RootID)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, child := range children {
		if child.IsFolder() && child.Name == SharedFolderName {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly one %q folder after reconnect, got %d", SharedFolderName, count)
	}

	acct, err := r.db.GetAccount("backup")
	if err != nil {
		t.Fatal(err)
	}
	if acct.SharedFolderID != existing {
		t.Errorf("Expected the existing folder %s to be adopted, got %s", existing, acct.SharedFolderID)
	}
}

func TestReconnectKeepsIdentityAndClearsExpiry(t *testing.T) {
	r := newTestRunner(t, false)

	acct := addTestAccount(t, r, "backup", "backup@example.com", model.RoleBackup, memdrive.New("backup", "backup@example.com"))
	if err := r.db.SetSharedFolder(acct.ID, "shared-1"); err != nil {
		t.Fatal(err)
	}
	if err := r.db.UpdateAccountStatus(acct.ID, model.StatusExpired); err != nil {
		t.Fatal(err)
	}

	profile := &drive.Profile{Email: "backup@example.com", DisplayName: "Backup User"}
	got, reconnected, err := r.saveConnectedAccount("fresh-id", "new-token", profile, &model.QuotaInfo{Total: 2000, Used: 100})
	if err != nil {
		t.Fatalf("saveConnectedAccount failed: %v", err)
	}
	if !reconnected {
		t.Fatal("Expected the matching email to reconnect, not register")
	}
	if got.ID != "backup" {
		t.Errorf("Expected the stored id to survive, got %s", got.ID)
	}

	stored, err := r.db.GetAccount("backup")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != model.StatusActive {
		t.Errorf("Expected status active after reconnect, got %s", stored.Status)
	}
	if stored.RefreshToken != "new-token" {
		t.Error("Expected the refresh token to be replaced")
	}
	if stored.Role != model.RoleBackup {
		t.Errorf("Expected the backup role to survive, got %s", stored.Role)
	}
	if stored.SharedFolderID != "shared-1" {
		t.Errorf("Expected the shared folder record to survive, got %q", stored.SharedFolderID)
	}
	if stored.QuotaTotal != 2000 || stored.QuotaUsed != 100 {
		t.Errorf("Expected fresh quota numbers, got %d/%d", stored.QuotaUsed, stored.QuotaTotal)
	}
}

func TestMoveFilesDropSourceCacheEntry(t *testing.T) {
	r := newTestRunner(t, false)

	primaryDrive := memdrive.New("primary", "owner@example.com")
	backupDrive := memdrive.New("backup", "backup@example.com")

	addTestAccount(t, r, "primary", "owner@example.com", model.RolePrimary, primaryDrive)
	backupAcct := addTestAccount(t, r, "backup", "backup@example.com", model.RoleBackup, backupDrive)

	shared := backupDrive.AddFolder(memdrive.RootID, SharedFolderName)
	if err := r.db.SetSharedFolder(backupAcct.ID, shared); err != nil {
		t.Fatal(err)
	}

	fileID := primaryDrive.AddFile(memdrive.RootID, "report.pdf", "application/pdf", []byte("content"))
	keptID := primaryDrive.AddFile(memdrive.RootID, "keep.txt", "text/plain", []byte("keep"))

	if _, _, err := r.Browse(context.Background(), "primary", memdrive.RootID); err != nil {
		t.Fatal(err)
	}

	if err := r.MoveFiles(context.Background(), []string{fileID}, "primary", "backup", false, nil); err != nil {
		t.Fatalf("MoveFiles failed: %v", err)
	}

	cached, err := r.db.CachedChildren("primary", memdrive.RootID)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range cached {
		if n.ID == fileID {
			t.Error("Expected the moved file to be dropped from the cache")
		}
	}
	found := false
	for _, n := range cached {
		if n.ID == keptID {
			found = true
		}
	}
	if !found {
		t.Error("Expected the untouched file to stay cached")
	}
}

func TestUploadRelievesLowSpacePrimaryFirst(t *testing.T) {
	r := newTestRunner(t, false)

	primaryDrive := memdrive.New("primary", "owner@example.com")
	backupDrive := memdrive.New("backup", "backup@example.com")

	addTestAccount(t, r, "primary", "owner@example.com", model.RolePrimary, primaryDrive)
	backupAcct := addTestAccount(t, r, "backup", "backup@example.com", model.RoleBackup, backupDrive)
	backupAcct.QuotaTotal = 10000
	if err := r.db.UpdateAccountQuota(backupAcct.ID, 10000, 0); err != nil {
		t.Fatal(err)
	}

	shared := backupDrive.AddFolder(memdrive.RootID, SharedFolderName)
	if err := r.db.SetSharedFolder(backupAcct.ID, shared); err != nil {
		t.Fatal(err)
	}

	big := primaryDrive.AddFile(memdrive.RootID, "big.bin", "application/octet-stream", make([]byte, 95))
	primaryDrive.SetQuota(100, 95)

	local := filepath.Join(t.TempDir(), "fresh.txt")
	if err := os.WriteFile(local, []byte("fresh data"), 0o644); err != nil {
		t.Fatal(err)
	}

	node, err := r.Upload(context.Background(), "", local)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if node == nil || node.Name != "fresh.txt" {
		t.Fatal("Expected the uploaded node back")
	}

	if primaryDrive.Exists(big) {
		t.Error("Expected the big file to be offloaded before the upload")
	}
	if backupDrive.FindChild(shared, "big.bin") == nil {
		t.Error("Expected the big file below the backup's shared folder")
	}
	if primaryDrive.FindChild(memdrive.RootID, "fresh.txt") == nil {
		t.Error("Expected the fresh file in the primary root")
	}
}
