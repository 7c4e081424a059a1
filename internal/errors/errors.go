// Package errors provides centralized error definitions and error handling utilities
// for the partvault codebase. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// The package provides domain-specific errors matching the failure taxonomy of the
// coordination core:
//   - SyncError: failures synchronizing the local working copy with the remote
//   - PublishError: failures committing/pushing a changeset (contention, timeout)
//   - ConflictError: optimistic-lock violations on record writes
//   - LockError: check-out/check-in state machine violations
//   - RevisionError: part revision business-rule violations
//   - PermissionError: role or ownership violations
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewSyncError("fetch failed", errors.ErrRemoteUnreachable).WithRemote("origin")
//	err := errors.NewLockError("checkout rejected", errors.ErrAlreadyLocked).
//		WithFilename("bracket.dwg").WithHolder("alice")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrAlreadyLocked) { ... }
//
//	var conflictErr *errors.ConflictError
//	if errors.As(err, &conflictErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors (sync failures, publish contention/timeouts) that
//     may succeed after re-synchronizing and retrying
//   - UserFacing: errors safe to display to users, carrying enough context (current
//     holder, expected vs. found version, current revision) for a corrective retry
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Synchronization sentinel errors
var (
	// ErrRemoteUnreachable indicates the remote repository could not be contacted.
	ErrRemoteUnreachable = New("remote repository unreachable")
	// ErrHistoryDiverged indicates local and remote histories cannot be reconciled
	// automatically.
	ErrHistoryDiverged = New("local and remote histories diverged")
)

// Publish sentinel errors
var (
	// ErrPublishRejected indicates the remote advanced past the last synchronized
	// state; the caller must re-synchronize and retry.
	ErrPublishRejected = New("publish rejected: remote has advanced")
	// ErrPublishTimeout indicates the publish critical section could not be
	// acquired within the configured timeout.
	ErrPublishTimeout = New("publish timed out waiting for critical section")
)

// Record conflict sentinel errors
var (
	// ErrVersionMismatch indicates an optimistic-concurrency check failed.
	ErrVersionMismatch = New("record version mismatch")
	// ErrRetriesExhausted indicates a logical write was retried up to its bound
	// without succeeding.
	ErrRetriesExhausted = New("retries exhausted")
	// ErrRecordDeleted indicates the target record has been soft-deleted.
	ErrRecordDeleted = New("record is deleted")
)

// Lock sentinel errors
var (
	// ErrAlreadyLocked indicates the file is checked out by another identity.
	ErrAlreadyLocked = New("file already checked out")
	// ErrNotHolder indicates the caller does not hold the lock on the file.
	ErrNotHolder = New("caller does not hold the lock")
	// ErrNotLocked indicates the file has no active lock.
	ErrNotLocked = New("file is not checked out")
)

// Revision sentinel errors
var (
	// ErrNotMonotonic indicates a proposed revision does not strictly exceed the
	// part's current revision.
	ErrNotMonotonic = New("revision does not advance")
	// ErrInvalidRevision indicates a revision string is not a valid revision letter
	// sequence.
	ErrInvalidRevision = New("invalid revision")
)

// General sentinel errors
var (
	// ErrPermissionDenied indicates the caller's role does not permit the action.
	ErrPermissionDenied = New("permission denied")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// VaultError is the base interface for all partvault errors.
// It extends the standard error interface with methods for classification.
type VaultError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed after re-synchronizing and retrying.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// prefixed renders "<prefix> [k=v, ...]: message: cause".
func (e *baseError) prefixed(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// SyncError
// -----------------------------------------------------------------------------

// SyncError represents a failure synchronizing the working copy with the remote.
//
// Example:
//
//	err := errors.NewSyncError("fetch failed", errors.ErrRemoteUnreachable).
//		WithRemote("origin").WithGitOutput(out)
type SyncError struct {
	baseError
	Remote    string
	GitOutput string
}

// NewSyncError creates a new SyncError. Sync failures are transient by default.
func NewSyncError(message string, cause error) *SyncError {
	return &SyncError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithRemote adds the remote name to the error context.
func (e *SyncError) WithRemote(remote string) *SyncError {
	e.Remote = remote
	return e
}

// WithGitOutput attaches captured git output to the error context.
func (e *SyncError) WithGitOutput(output string) *SyncError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// WithRetryable sets whether the error is retryable. History divergence, for
// example, will not resolve on its own and should not be retried blindly.
func (e *SyncError) WithRetryable(r bool) *SyncError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *SyncError) Error() string {
	var parts []string
	if e.Remote != "" {
		parts = append(parts, fmt.Sprintf("remote=%s", e.Remote))
	}
	return e.prefixed("sync error", parts)
}

// Is checks if this error matches the target.
func (e *SyncError) Is(target error) bool {
	if _, ok := target.(*SyncError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// PublishError
// -----------------------------------------------------------------------------

// PublishError represents a failure committing or pushing a changeset.
type PublishError struct {
	baseError
	Operation string
	GitOutput string
}

// NewPublishError creates a new PublishError. Publish failures (contention,
// timeout) are transient by default.
func NewPublishError(message string, cause error) *PublishError {
	return &PublishError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithOperation records which git operation failed (stage, commit, push).
func (e *PublishError) WithOperation(op string) *PublishError {
	e.Operation = op
	return e
}

// WithGitOutput attaches captured git output to the error context.
func (e *PublishError) WithGitOutput(output string) *PublishError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *PublishError) Error() string {
	var parts []string
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	return e.prefixed("publish error", parts)
}

// Is checks if this error matches the target.
func (e *PublishError) Is(target error) bool {
	if _, ok := target.(*PublishError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ConflictError
// -----------------------------------------------------------------------------

// ConflictError represents an optimistic-concurrency violation on a record write.
// ExpectedVersion and CurrentVersion give the caller enough context to refresh
// and retry with current data.
type ConflictError struct {
	baseError
	Key             string
	ExpectedVersion int
	CurrentVersion  int
}

// NewConflictError creates a new ConflictError. Conflicts are surfaced to the
// caller rather than retried blindly: the second writer must refresh first.
func NewConflictError(message string, cause error) *ConflictError {
	return &ConflictError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithKey adds the record key to the error context.
func (e *ConflictError) WithKey(key string) *ConflictError {
	e.Key = key
	return e
}

// WithVersions records the expected and found record versions.
func (e *ConflictError) WithVersions(expected, current int) *ConflictError {
	e.ExpectedVersion = expected
	e.CurrentVersion = current
	return e
}

// Error returns the formatted error message.
func (e *ConflictError) Error() string {
	var parts []string
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.Key))
	}
	if e.ExpectedVersion != 0 || e.CurrentVersion != 0 {
		parts = append(parts, fmt.Sprintf("expected=%d", e.ExpectedVersion))
		parts = append(parts, fmt.Sprintf("found=%d", e.CurrentVersion))
	}
	return e.prefixed("conflict error", parts)
}

// Is checks if this error matches the target.
func (e *ConflictError) Is(target error) bool {
	if _, ok := target.(*ConflictError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// LockError
// -----------------------------------------------------------------------------

// LockError represents a check-out/check-in state machine violation.
// Holder identifies the current lock holder so the presentation layer can
// report who to ask.
type LockError struct {
	baseError
	Filename string
	Holder   string
}

// NewLockError creates a new LockError.
func NewLockError(message string, cause error) *LockError {
	return &LockError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithFilename adds the target filename to the error context.
func (e *LockError) WithFilename(filename string) *LockError {
	e.Filename = filename
	return e
}

// WithHolder records the current lock holder.
func (e *LockError) WithHolder(holder string) *LockError {
	e.Holder = holder
	return e
}

// Error returns the formatted error message.
func (e *LockError) Error() string {
	var parts []string
	if e.Filename != "" {
		parts = append(parts, fmt.Sprintf("file=%s", e.Filename))
	}
	if e.Holder != "" {
		parts = append(parts, fmt.Sprintf("holder=%s", e.Holder))
	}
	return e.prefixed("lock error", parts)
}

// Is checks if this error matches the target.
func (e *LockError) Is(target error) bool {
	if _, ok := target.(*LockError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// RevisionError
// -----------------------------------------------------------------------------

// RevisionError represents a part revision business-rule violation.
type RevisionError struct {
	baseError
	PartNumber  string
	CurrentRev  string
	ProposedRev string
}

// NewRevisionError creates a new RevisionError.
func NewRevisionError(message string, cause error) *RevisionError {
	return &RevisionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithPart adds the part number to the error context.
func (e *RevisionError) WithPart(partNumber string) *RevisionError {
	e.PartNumber = partNumber
	return e
}

// WithRevisions records the current and proposed revisions.
func (e *RevisionError) WithRevisions(current, proposed string) *RevisionError {
	e.CurrentRev = current
	e.ProposedRev = proposed
	return e
}

// Error returns the formatted error message.
func (e *RevisionError) Error() string {
	var parts []string
	if e.PartNumber != "" {
		parts = append(parts, fmt.Sprintf("part=%s", e.PartNumber))
	}
	if e.CurrentRev != "" {
		parts = append(parts, fmt.Sprintf("current=%s", e.CurrentRev))
	}
	if e.ProposedRev != "" {
		parts = append(parts, fmt.Sprintf("proposed=%s", e.ProposedRev))
	}
	return e.prefixed("revision error", parts)
}

// Is checks if this error matches the target.
func (e *RevisionError) Is(target error) bool {
	if _, ok := target.(*RevisionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// PermissionError
// -----------------------------------------------------------------------------

// PermissionError represents a role or ownership violation.
type PermissionError struct {
	baseError
	Actor  string
	Role   string
	Action string
}

// NewPermissionError creates a new PermissionError.
func NewPermissionError(message string, cause error) *PermissionError {
	return &PermissionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithActor adds the acting identity to the error context.
func (e *PermissionError) WithActor(actor, role string) *PermissionError {
	e.Actor = actor
	e.Role = role
	return e
}

// WithAction records the attempted action.
func (e *PermissionError) WithAction(action string) *PermissionError {
	e.Action = action
	return e
}

// Error returns the formatted error message.
func (e *PermissionError) Error() string {
	var parts []string
	if e.Actor != "" {
		parts = append(parts, fmt.Sprintf("actor=%s", e.Actor))
	}
	if e.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", e.Role))
	}
	if e.Action != "" {
		parts = append(parts, fmt.Sprintf("action=%s", e.Action))
	}
	return e.prefixed("permission error", parts)
}

// Is checks if this error matches the target.
func (e *PermissionError) Is(target error) bool {
	if _, ok := target.(*PermissionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient and the operation may
// succeed after re-synchronizing and retrying. Sentinel errors for sync and
// publish contention are retryable even when not wrapped in a typed error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ve VaultError
	if errors.As(err, &ve) {
		return ve.IsRetryable()
	}

	return errors.Is(err, ErrRemoteUnreachable) ||
		errors.Is(err, ErrPublishRejected) ||
		errors.Is(err, ErrPublishTimeout)
}

// IsUserFacing returns true if the error message is safe to display to users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var ve VaultError
	if errors.As(err, &ve) {
		return ve.IsUserFacing()
	}
	return false
}

// IsConflict returns true if the error is an optimistic-concurrency violation.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce) || errors.Is(err, ErrVersionMismatch)
}

// GetSeverity returns the severity of the error, or SeverityError if the
// error carries no classification.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var ve VaultError
	if errors.As(err, &ve) {
		return ve.Severity()
	}
	return SeverityError
}
