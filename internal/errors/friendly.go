package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides actionable error messages for end users
type UserFriendlyError struct {
	Message    string // User-facing message explaining what went wrong
	Suggestion string // Actionable steps to fix the issue
	DocsLink   string // Optional link to documentation
	Details    error  // Original error for debugging/logs
}

func (e *UserFriendlyError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString("How to fix:\n")
		sb.WriteString(e.Suggestion)
	}

	if e.DocsLink != "" {
		sb.WriteString("\n\n")
		sb.WriteString("Documentation: ")
		sb.WriteString(e.DocsLink)
	}

	return sb.String()
}

func (e *UserFriendlyError) Unwrap() error {
	return e.Details
}

// NewFriendlyError creates a user-friendly error
func NewFriendlyError(message, suggestion string) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    message,
		Suggestion: suggestion,
	}
}

// WithDetails adds the underlying error details
func (e *UserFriendlyError) WithDetails(err error) *UserFriendlyError {
	e.Details = err
	return e
}

// WithDocs adds a documentation link
func (e *UserFriendlyError) WithDocs(link string) *UserFriendlyError {
	e.DocsLink = link
	return e
}

// ConfigNotFound is returned when no config file exists at path.
func ConfigNotFound(path string, err error) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    fmt.Sprintf("Config file not found: %s", path),
		Suggestion: "Create one with at least:\n  version: 1\n  general:\n    data_root: ~/.local/share/modshelf\n  library:\n    roots: [~/ComfyUI/models/loras]\nOr point MODSHELF_CONFIG at an existing file",
		DocsLink:   "https://github.com/jxwalker/modshelf#configuration",
		Details:    err,
	}
}

// DatabaseError returns database-related errors with recovery suggestions
func DatabaseError(err error) *UserFriendlyError {
	msg := "Database error"
	suggestion := "Re-run 'modshelf scan' to rebuild the library index"

	if err != nil {
		errStr := err.Error()

		if strings.Contains(errStr, "locked") {
			msg = "Database is locked by another process"
			suggestion = "Close other modshelf instances and try again"
		}

		if strings.Contains(errStr, "corrupt") || strings.Contains(errStr, "malformed") {
			msg = "Database is corrupted"
			suggestion = "Move state.db out of data_root and run 'modshelf scan' to rebuild it"
		}
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}

// PathError returns file/directory path related errors
func PathError(path string, err error) *UserFriendlyError {
	msg := fmt.Sprintf("Path error: %s", path)
	suggestion := "Check that the path exists and you have permission to access it"

	if err != nil {
		errStr := err.Error()

		if strings.Contains(errStr, "permission denied") {
			msg = fmt.Sprintf("Permission denied: %s", path)
			suggestion = fmt.Sprintf("Ensure you have read permission:\n  chmod u+r %s", path)
		}

		if strings.Contains(errStr, "no such file or directory") {
			msg = fmt.Sprintf("Directory does not exist: %s", path)
			suggestion = "Fix library.roots in your config or create the directory"
		}
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}

// AlreadyRunning is returned when another browser session holds the lock.
func AlreadyRunning(pid int, lockPath string, err error) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    fmt.Sprintf("modshelf is already open in another terminal (PID %d)", pid),
		Suggestion: fmt.Sprintf("Quit the other session first. If that process is gone, delete the lock:\n  rm %s", lockPath),
		Details:    err,
	}
}

// CivitAIAuth is returned when CivitAI rejects the configured API key.
func CivitAIAuth(tokenEnv string, err error) *UserFriendlyError {
	if tokenEnv == "" {
		tokenEnv = "CIVITAI_TOKEN"
	}
	return &UserFriendlyError{
		Message:    "CivitAI rejected the request (401/403)",
		Suggestion: fmt.Sprintf("Check the API key in %s:\n  export %s=...\nKeys are created at https://civitai.com/user/account", tokenEnv, tokenEnv),
		Details:    err,
	}
}
