// Package task orchestrates the high level operations behind each CLI
// command, tying together the config, database, Drive clients, transfer
// orchestrator and storage allocator.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"multidrive/internal/allocator"
	"multidrive/internal/api"
	"multidrive/internal/auth"
	"multidrive/internal/config"
	"multidrive/internal/database"
	"multidrive/internal/drive"
	"multidrive/internal/logger"
	"multidrive/internal/model"
	"multidrive/internal/transfer"
)

// SharedFolderName is the folder created in every backup account's root.
// Relocated files land below it, with the grant making them reachable from
// the primary account.
const SharedFolderName = "multidrive-shared"

// Runner handles task orchestration
type Runner struct {
	config   *config.Config
	db       *database.DB
	safeMode bool

	mu      sync.Mutex
	clients map[string]api.Client

	orch  *transfer.Orchestrator
	alloc *allocator.Allocator
}

// NewRunner creates a new task runner
func NewRunner(cfg *config.Config, db *database.DB, safeMode bool) *Runner {
	r := &Runner{
		config:   cfg,
		db:       db,
		safeMode: safeMode,
		clients:  make(map[string]api.Client),
	}

	factory := func(ctx context.Context, accountID string) (api.Client, error) {
		return r.Client(ctx, accountID)
	}
	r.orch = transfer.NewOrchestrator(factory)
	r.orch.ShareBackWithSource = true
	r.orch.OnMoved = func(sourceAccountID, fileID string) {
		if err := r.db.RemoveCachedNode(sourceAccountID, fileID); err != nil {
			logger.Warning("Failed to drop moved file %s from the cache: %v", fileID, err)
		}
	}
	r.alloc = allocator.NewAllocator(factory, r.backupAccounts, r.orch)
	return r
}

// Client returns a Drive client for the account, creating and caching it on
// first use.
func (r *Runner) Client(ctx context.Context, accountID string) (api.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, exists := r.clients[accountID]; exists {
		return client, nil
	}

	acct, err := r.db.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	conf := auth.OAuthConfig(r.config.GoogleClient.ID, r.config.GoogleClient.Secret)
	ts := auth.NewTokenSource(conf, acct.RefreshToken)

	client, err := drive.NewClient(ctx, ts, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", acct.Email, err)
	}

	r.clients[accountID] = client
	return client, nil
}

// markReauth flags the account as expired when err indicates the refresh
// token no longer works.
func (r *Runner) markReauth(accountID string, err error) {
	if !errors.Is(err, api.ErrReauthRequired) {
		return
	}
	if dbErr := r.db.UpdateAccountStatus(accountID, model.StatusExpired); dbErr != nil {
		logger.Error("Failed to flag account %s for re-auth: %v", accountID, dbErr)
		return
	}
	logger.Warning("Account %s needs to be re-authorized.", accountID)

	r.mu.Lock()
	delete(r.clients, accountID)
	r.mu.Unlock()
}

func (r *Runner) backupAccounts(ctx context.Context) ([]*model.Account, error) {
	return r.db.ListAccountsByRole(model.RoleBackup)
}

// Accounts lists all connected accounts.
func (r *Runner) Accounts() ([]*model.Account, error) {
	return r.db.ListAccounts()
}

// AddAccount walks the user through the OAuth consent flow and registers the
// resulting account. The first account becomes the primary; every later one
// joins as a backup with its shared folder created up front. Consenting with
// an already connected account reconnects it in place, refreshing its token
// and returning its status to active.
func (r *Runner) AddAccount(ctx context.Context) (*model.Account, error) {
	conf := auth.OAuthConfig(r.config.GoogleClient.ID, r.config.GoogleClient.Secret)

	refreshToken, err := auth.PerformOAuthFlow(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}

	id := uuid.New().String()
	client, err := drive.NewClient(ctx, auth.NewTokenSource(conf, refreshToken), id)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	profile, err := client.FetchProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	quota, err := client.Quota(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quota: %w", err)
	}

	acct, reconnected, err := r.saveConnectedAccount(id, refreshToken, profile, quota)
	if err != nil {
		return nil, err
	}

	if acct.ID != id {
		// The consent flow matched an existing account; rebind the client
		// to its stored id.
		client, err = drive.NewClient(ctx, auth.NewTokenSource(conf, refreshToken), acct.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
	}

	r.mu.Lock()
	r.clients[acct.ID] = client
	r.mu.Unlock()

	if reconnected {
		logger.InfoTagged([]string{acct.Email}, "Reconnected %s account.", acct.Role)
	} else {
		logger.InfoTagged([]string{acct.Email}, "Connected as %s account.", acct.Role)
	}

	if acct.Role == model.RoleBackup {
		primary, err := r.db.GetPrimaryAccount()
		if err != nil {
			return nil, err
		}
		if primary != nil {
			if err := r.ensureSharedFolder(ctx, acct, primary); err != nil {
				logger.WarningTagged([]string{acct.Email}, "Shared folder setup failed: %v", err)
			}
		}
	}
	return acct, nil
}

// saveConnectedAccount persists the outcome of a consent flow. A profile
// email matching an existing account reconnects that account in place: the
// stored id, role, shared folder and added-at stamp survive, the token is
// replaced and the status returns to active. Anything else registers a new
// account, the first one as the primary.
func (r *Runner) saveConnectedAccount(id, refreshToken string, profile *drive.Profile, quota *model.QuotaInfo) (*model.Account, bool, error) {
	existing, err := r.db.ListAccounts()
	if err != nil {
		return nil, false, err
	}

	for _, acct := range existing {
		if acct.Email != profile.Email {
			continue
		}
		acct.RefreshToken = refreshToken
		acct.Status = model.StatusActive
		acct.DisplayName = profile.DisplayName
		acct.AvatarURL = profile.AvatarURL
		acct.QuotaTotal = quota.Total
		acct.QuotaUsed = quota.Used
		if err := r.db.UpsertAccount(acct); err != nil {
			return nil, false, err
		}
		return acct, true, nil
	}

	primary, err := r.db.GetPrimaryAccount()
	if err != nil {
		return nil, false, err
	}

	role := model.RoleBackup
	if primary == nil {
		role = model.RolePrimary
	}

	acct := &model.Account{
		ID:           id,
		Email:        profile.Email,
		DisplayName:  profile.DisplayName,
		AvatarURL:    profile.AvatarURL,
		RefreshToken: refreshToken,
		Role:         role,
		Status:       model.StatusActive,
		QuotaTotal:   quota.Total,
		QuotaUsed:    quota.Used,
		AddedAt:      time.Now().UTC(),
	}
	if err := r.db.UpsertAccount(acct); err != nil {
		return nil, false, err
	}
	return acct, false, nil
}

// RemoveAccount disconnects an account and drops its cached metadata. The
// primary cannot be removed while backup accounts are still connected.
func (r *Runner) RemoveAccount(ctx context.Context, accountID string) error {
	acct, err := r.db.GetAccount(accountID)
	if err != nil {
		return err
	}

	if acct.Role == model.RolePrimary {
		backups, err := r.db.ListAccountsByRole(model.RoleBackup)
		if err != nil {
			return err
		}
		if len(backups) > 0 {
			return fmt.Errorf("cannot remove the primary account while %d backup account(s) remain", len(backups))
		}
	}

	if r.safeMode {
		logger.DryRunTagged([]string{acct.Email}, "Would disconnect account and forget its cached metadata")
		return nil
	}

	if err := r.db.DeleteAccount(accountID); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.clients, accountID)
	r.mu.Unlock()

	logger.InfoTagged([]string{acct.Email}, "Account disconnected.")
	return nil
}

// CheckTokens validates the stored refresh token of every account and
// updates its status accordingly.
func (r *Runner) CheckTokens() error {
	accounts, err := r.db.ListAccounts()
	if err != nil {
		return err
	}

	conf := auth.OAuthConfig(r.config.GoogleClient.ID, r.config.GoogleClient.Secret)
	for _, acct := range accounts {
		status := model.StatusActive
		if err := auth.Validate(conf, acct.RefreshToken); err != nil {
			logger.WarningTagged([]string{acct.Email}, "Token check failed: %v", err)
			status = model.StatusExpired
		} else {
			logger.InfoTagged([]string{acct.Email}, "Token is valid.")
		}

		if acct.Status != status {
			if err := r.db.UpdateAccountStatus(acct.ID, status); err != nil {
				return err
			}
		}
	}
	return nil
}

// EnsureSharedFolders makes sure every backup account has its shared folder
// created and writable by the primary account.
func (r *Runner) EnsureSharedFolders(ctx context.Context) error {
	primary, err := r.db.GetPrimaryAccount()
	if err != nil {
		return err
	}
	if primary == nil {
		return errors.New("no primary account connected")
	}

	backups, err := r.db.ListAccountsByRole(model.RoleBackup)
	if err != nil {
		return err
	}

	for _, acct := range backups {
		if err := r.ensureSharedFolder(ctx, acct, primary); err != nil {
			logger.ErrorTagged([]string{acct.Email}, "Shared folder setup failed: %v", err)
		}
	}
	return nil
}

// ensureSharedFolder makes sure the backup account has exactly one shared
// folder: a valid stored id wins, then an existing folder of the same name
// is adopted, and only then is a new one created and shared with the
// primary account.
func (r *Runner) ensureSharedFolder(ctx context.Context, acct, primary *model.Account) error {
	client, err := r.Client(ctx, acct.ID)
	if err != nil {
		return err
	}

	if acct.SharedFolderID != "" {
		if _, err := client.GetNode(ctx, acct.SharedFolderID); err == nil {
			return nil
		} else if !errors.Is(err, api.ErrNotFound) {
			r.markReauth(acct.ID, err)
			return err
		}
		logger.WarningTagged([]string{acct.Email}, "Shared folder is gone, recreating it.")
	}

	rootID, err := client.RootFolderID(ctx)
	if err != nil {
		r.markReauth(acct.ID, err)
		return err
	}

	// A reconnected account may already carry the folder from an earlier
	// connection; adopt it instead of creating a duplicate.
	children, err := client.ListChildren(ctx, rootID)
	if err != nil {
		r.markReauth(acct.ID, err)
		return err
	}
	for _, child := range children {
		if child.IsFolder() && strings.EqualFold(child.Name, SharedFolderName) {
			if err := r.db.SetSharedFolder(acct.ID, child.ID); err != nil {
				return err
			}
			acct.SharedFolderID = child.ID
			logger.InfoTagged([]string{acct.Email}, "Adopted existing '%s' folder.", child.Name)
			return nil
		}
	}

	if r.safeMode {
		logger.DryRunTagged([]string{acct.Email}, "Would create '%s' and share it with %s", SharedFolderName, primary.Email)
		return nil
	}

	folder, err := client.CreateFolder(ctx, rootID, SharedFolderName)
	if err != nil {
		return fmt.Errorf("failed to create shared folder: %w", err)
	}
	if err := client.GrantWriter(ctx, folder.ID, primary.Email); err != nil {
		return fmt.Errorf("failed to share folder with %s: %w", primary.Email, err)
	}
	if err := r.db.SetSharedFolder(acct.ID, folder.ID); err != nil {
		return err
	}
	acct.SharedFolderID = folder.ID

	logger.InfoTagged([]string{acct.Email}, "Created '%s' and shared it with %s", SharedFolderName, primary.Email)
	return nil
}

// QuotaSummary aggregates the storage picture across all accounts.
type QuotaSummary struct {
	Accounts []*model.Account
	Total    int64
	Used     int64
	Free     int64
}

// RefreshQuotas pulls fresh quota numbers for every account, persists them
// and returns the aggregated view. Accounts that cannot be reached keep
// their last known numbers.
func (r *Runner) RefreshQuotas(ctx context.Context) (*QuotaSummary, error) {
	accounts, err := r.db.ListAccounts()
	if err != nil {
		return nil, err
	}

	summary := &QuotaSummary{Accounts: accounts}
	for _, acct := range accounts {
		client, err := r.Client(ctx, acct.ID)
		if err != nil {
			logger.WarningTagged([]string{acct.Email}, "Unreachable, using cached quota: %v", err)
		} else if quota, err := client.Quota(ctx); err != nil {
			r.markReauth(acct.ID, err)
			logger.WarningTagged([]string{acct.Email}, "Quota refresh failed, using cached numbers: %v", err)
		} else {
			acct.QuotaTotal = quota.Total
			acct.QuotaUsed = quota.Used
			if err := r.db.UpdateAccountQuota(acct.ID, quota.Total, quota.Used); err != nil {
				return nil, err
			}
		}

		summary.Total += acct.QuotaTotal
		summary.Used += acct.QuotaUsed
	}
	summary.Free = summary.Total - summary.Used
	return summary, nil
}
