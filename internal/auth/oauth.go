package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"multidrive/internal/logger"
)

const (
	// RedirectURL is the local callback endpoint for the OAuth flow.
	RedirectURL = "http://localhost:8080/callback"

	// Google OAuth scopes
	DriveScope = "https://www.googleapis.com/auth/drive"
	EmailScope = "https://www.googleapis.com/auth/userinfo.email"
)

// OAuthConfig builds the oauth2 configuration for Google Drive access.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  RedirectURL,
		Scopes:       []string{DriveScope, EmailScope},
		Endpoint:     google.Endpoint,
	}
}

// PerformOAuthFlow runs the browser authorization flow with a transient local
// callback server and returns the refresh token for the authorized account.
func PerformOAuthFlow(ctx context.Context, config *oauth2.Config) (string, error) {
	state := uuid.NewString()
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	logger.Info("Please visit this URL to authorize the application:")
	logger.Info("%s", authURL)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	server := &http.Server{Addr: ":8080", Handler: mux}

	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errChan <- fmt.Errorf("state mismatch")
			fmt.Fprint(w, "Error: state mismatch. You can close this window.")
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			fmt.Fprint(w, "Error: no authorization code received. You can close this window.")
			return
		}

		codeChan <- code
		fmt.Fprint(w, "Authorization successful! You can close this window and return to the terminal.")
	})

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		server.Shutdown(ctx)
		return "", err
	case <-time.After(5 * time.Minute):
		server.Shutdown(ctx)
		return "", fmt.Errorf("OAuth flow timed out after 5 minutes")
	case <-ctx.Done():
		server.Shutdown(context.Background())
		return "", ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if token.RefreshToken == "" {
		return "", fmt.Errorf("no refresh token received (revoke prior access and try again)")
	}

	return token.RefreshToken, nil
}
