package transfer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"multidrive/internal/api"
	"multidrive/internal/memdrive"
	"multidrive/internal/model"
)

func pairFactory(src, dst *memdrive.Client) ClientFactory {
	return clientFactory(map[string]api.Client{
		src.AccountID(): src,
		dst.AccountID(): dst,
	})
}

func TestMoveFileIntoTargetFolder(t *testing.T) {
	src := memdrive.New("primary", "owner@example.com")
	dst := memdrive.New("backup", "backup@example.com")

	docs := src.AddFolder(memdrive.RootID, "Docs")
	content := []byte("quarterly numbers")
	fileID := src.AddFile(docs, "report.pdf", "application/pdf", content)

	target := dst.AddFolder(memdrive.RootID, "multidrive-shared")

	o := NewOrchestrator(pairFactory(src, dst))
	err := o.MoveFile(context.Background(), model.TransferIntent{
		FileID:          fileID,
		SourceAccountID: "primary",
		TargetAccountID: "backup",
		TargetFolderID:  target,
	})
	if err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}

	moved := dst.FindChild(target, "report.pdf")
	if moved == nil {
		t.Fatal("Expected the file in the target folder")
	}
	if moved.MimeType != "application/pdf" {
		t.Errorf("Expected MIME type to survive, got %s", moved.MimeType)
	}
	if !bytes.Equal(dst.Content(moved.ID), content) {
		t.Error("Expected the copied bytes to match the original")
	}
	if src.Exists(fileID) {
		t.Error("Expected the source file to be deleted")
	}
}

func TestMoveFileMaintainsPath(t *testing.T) {
	src := memdrive.New("primary", "owner@example.com")
	dst := memdrive.New("backup", "backup@example.com")

	docs := src.AddFolder(memdrive.RootID, "Docs")
	src.AddFile(docs, "a.txt", "text/plain", bytes.Repeat([]byte("a"), 10))
	src.AddFile(docs, "b.txt", "text/plain", bytes.Repeat([]byte("b"), 5))
	fileC := src.AddFile(docs, "c.bin", "application/octet-stream", bytes.Repeat([]byte("c"), 50))

	sharedRoot := dst.AddFolder(memdrive.RootID, "multidrive-shared")

	o := NewOrchestrator(pairFactory(src, dst))
	err := o.MoveFile(context.Background(), model.TransferIntent{
		FileID:          fileC,
		SourceAccountID: "primary",
		TargetAccountID: "backup",
		TargetFolderID:  sharedRoot,
		MaintainPath:    true,
	})
	if err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}

	recreated := dst.FindChild(sharedRoot, "Docs")
	if recreated == nil {
		t.Fatal("Expected a 'Docs' folder under the shared root")
	}
	if dst.FindChild(recreated.ID, "c.bin") == nil {
		t.Error("Expected c.bin inside the recreated 'Docs' folder")
	}
	if src.Exists(fileC) {
		t.Error("Expected c.bin removed from the source")
	}
	if src.FindChild(docs, "a.txt") == nil || src.FindChild(docs, "b.txt") == nil {
		t.Error("Expected the untouched siblings to remain in place")
	}
}

func TestMoveFileRejectsFolders(t *testing.T) {
	src := memdrive.New("primary", "owner@example.com")
	dst := memdrive.New("backup", "backup@example.com")

	docs := src.AddFolder(memdrive.RootID, "Docs")
	target := dst.AddFolder(memdrive.RootID, "multidrive-shared")

	o := NewOrchestrator(pairFactory(src, dst))
	err := o.MoveFile(context.Background(), model.TransferIntent{
		FileID:          docs,
		SourceAccountID: "primary",
		TargetAccountID: "backup",
		TargetFolderID:  target,
	})
	if err == nil {
		t.Fatal("Expected moving a folder to be rejected")
	}
	if !src.Exists(docs) {
		t.Error("Expected the source folder to be untouched")
	}
}

func TestMoveFileCollisionAbortsCleanly(t *testing.T) {
	src := memdrive.New("primary", "owner@example.com")
	dst := memdrive.New("backup", "backup@example.com")

	fileID := src.AddFile(memdrive.RootID, "report.pdf", "application/pdf", []byte("new"))

	target := dst.AddFolder(memdrive.RootID, "multidrive-shared")
	existing := dst.AddFile(target, "Report.PDF", "application/pdf", []byte("old"))

	o := NewOrchestrator(pairFactory(src, dst))
	err := o.MoveFile(context.Background(), model.TransferIntent{
		FileID:          fileID,
		SourceAccountID: "primary",
		TargetAccountID: "backup",
		TargetFolderID:  target,
	})
	if !errors.Is(err, api.ErrNameConflict) {
		t.Fatalf("Expected ErrNameConflict, got %v", err)
	}

	if !src.Exists(fileID) {
		t.Error("Expected the source file to be untouched after a collision")
	}
	children, err := dst.ListChildren(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 {
		t.Errorf("Expected the target to hold only the pre-existing file, got %d children", len(children))
	}
	if !bytes.Equal(dst.Content(existing), []byte("old")) {
		t.Error("Expected the pre-existing file's bytes to be untouched")
	}
}

func TestMoveFileSharesBackWithSource(t *testing.T) {
	src := memdrive.New("primary", "owner@example.com")
	dst := memdrive.New("backup", "backup@example.com")

	fileID := src.AddFile(memdrive.RootID, "notes.txt", "text/plain", []byte("hello"))
	target := dst.AddFolder(memdrive.RootID, "multidrive-shared")

	o := NewOrchestrator(pairFactory(src, dst))
	o.ShareBackWithSource = true

	err := o.MoveFile(context.Background(), model.TransferIntent{
		FileID:          fileID,
		SourceAccountID: "primary",
		TargetAccountID: "backup",
		TargetFolderID:  target,
	})
	if err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}

	moved := dst.FindChild(target, "notes.txt")
	if moved == nil {
		t.Fatal("Expected the moved file in the target")
	}
	if dst.Permissions[moved.ID]["owner@example.com"] != "reader" {
		t.Error("Expected the source owner to be granted read access on the copy")
	}
}

func TestMoveFileDownloadFailureLeavesTargetClean(t *testing.T) {
	src := memdrive.New("primary", "owner@example.com")
	dst := memdrive.New("backup", "backup@example.com")

	fileID := src.AddFile(memdrive.RootID, "notes.txt", "text/plain", []byte("hello"))
	target := dst.AddFolder(memdrive.RootID, "multidrive-shared")

	src.FailOn["download"] = errors.New("read timeout")

	o := NewOrchestrator(pairFactory(src, dst))
	err := o.MoveFile(context.Background(), model.TransferIntent{
		FileID:          fileID,
		SourceAccountID: "primary",
		TargetAccountID: "backup",
		TargetFolderID:  target,
	})
	if err == nil {
		t.Fatal("Expected the move to fail when the download does")
	}

	if !src.Exists(fileID) {
		t.Error("Expected the source file to be untouched")
	}
	children, err := dst.ListChildren(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 0 {
		t.Error("Expected no node created in the target")
	}
}

func TestMoveFileReportsCompletedMovesOnly(t *testing.T) {
	src := memdrive.New("primary", "owner@example.com")
	dst := memdrive.New("backup", "backup@example.com")

	fileID := src.AddFile(memdrive.RootID, "notes.txt", "text/plain", []byte("hello"))
	blocked := src.AddFile(memdrive.RootID, "report.pdf", "application/pdf", []byte("new"))

	target := dst.AddFolder(memdrive.RootID, "multidrive-shared")
	dst.AddFile(target, "report.pdf", "application/pdf", []byte("old"))

	var moved [][2]string
	o := NewOrchestrator(pairFactory(src, dst))
	o.OnMoved = func(sourceAccountID, movedFileID string) {
		moved = append(moved, [2]string{sourceAccountID, movedFileID})
	}

	err := o.MoveFile(context.Background(), model.TransferIntent{
		FileID:          fileID,
		SourceAccountID: "primary",
		TargetAccountID: "backup",
		TargetFolderID:  target,
	})
	if err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}

	err = o.MoveFile(context.Background(), model.TransferIntent{
		FileID:          blocked,
		SourceAccountID: "primary",
		TargetAccountID: "backup",
		TargetFolderID:  target,
	})
	if !errors.Is(err, api.ErrNameConflict) {
		t.Fatalf("Expected ErrNameConflict, got %v", err)
	}

	if len(moved) != 1 {
		t.Fatalf("Expected one completion callback, got %d", len(moved))
	}
	if moved[0] != [2]string{"primary", fileID} {
		t.Errorf("Expected callback for the moved file, got %v", moved[0])
	}
}

func TestMoveFileDeleteFailureKeepsBothCopies(t *testing.T) {
	src := memdrive.New("primary", "owner@example.com")
	dst := memdrive.New("backup", "backup@example.com")

	fileID := src.AddFile(memdrive.RootID, "notes.txt", "text/plain", []byte("hello"))
	target := dst.AddFolder(memdrive.RootID, "multidrive-shared")

	src.FailOn["delete"] = errors.New("insufficient permissions")

	o := NewOrchestrator(pairFactory(src, dst))
	err := o.MoveFile(context.Background(), model.TransferIntent{
		FileID:          fileID,
		SourceAccountID: "primary",
		TargetAccountID: "backup",
		TargetFolderID:  target,
	})
	if !errors.Is(err, api.ErrSourceNotDeleted) {
		t.Fatalf("Expected ErrSourceNotDeleted, got %v", err)
	}

	if !src.Exists(fileID) {
		t.Error("Expected the source copy to remain")
	}
	if dst.FindChild(target, "notes.txt") == nil {
		t.Error("Expected the uploaded copy to remain")
	}
}

func TestMoveFilesInBatchContinuesPastFailures(t *testing.T) {
	src := memdrive.New("primary", "owner@example.com")
	dst := memdrive.New("backup", "backup@example.com")

	f1 := src.AddFile(memdrive.RootID, "one.txt", "text/plain", []byte("1"))
	f2 := src.AddFile(memdrive.RootID, "two.txt", "text/plain", []byte("2"))
	f3 := src.AddFile(memdrive.RootID, "three.txt", "text/plain", []byte("3"))

	target := dst.AddFolder(memdrive.RootID, "multidrive-shared")
	dst.AddFile(target, "two.txt", "text/plain", []byte("collision"))

	var progress [][2]int
	o := NewOrchestrator(pairFactory(src, dst))
	err := o.MoveFilesInBatch(context.Background(), []string{f1, f2, f3}, "primary", "backup", target, false, func(completed, total int) {
		progress = append(progress, [2]int{completed, total})
	})
	if err == nil {
		t.Fatal("Expected an aggregate error when one file fails")
	}

	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(progress) != len(want) {
		t.Fatalf("Expected %d progress calls, got %d", len(want), len(progress))
	}
	for i, p := range progress {
		if p != want[i] {
			t.Errorf("Progress call %d: expected %v, got %v", i, want[i], p)
		}
	}

	if src.Exists(f1) || src.Exists(f3) {
		t.Error("Expected the non-colliding files to be moved")
	}
	if !src.Exists(f2) {
		t.Error("Expected the colliding file to stay in the source")
	}
	if dst.FindChild(target, "one.txt") == nil || dst.FindChild(target, "three.txt") == nil {
		t.Error("Expected both successful files in the target")
	}
}
