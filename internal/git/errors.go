package git

import (
	"errors"
	"fmt"
)

// Code identifies the failing operation in a form the mobile client can
// switch on.
type Code string

const (
	CodeInit               Code = "GIT_INIT_ERROR"
	CodeAlreadyInitialized Code = "GIT_ALREADY_INITIALIZED"
	CodeClone              Code = "GIT_CLONE_ERROR"
	CodeDirectoryNotEmpty  Code = "DIRECTORY_NOT_EMPTY"
	CodeStatus             Code = "GIT_STATUS_ERROR"
	CodeAdd                Code = "GIT_ADD_ERROR"
	CodeCommit             Code = "GIT_COMMIT_ERROR"
	CodePush               Code = "GIT_PUSH_ERROR"
	CodePull               Code = "GIT_PULL_ERROR"
	CodeFetch              Code = "GIT_FETCH_ERROR"
	CodeBranches           Code = "GIT_BRANCHES_ERROR"
	CodeCurrentBranch      Code = "GIT_CURRENT_BRANCH_ERROR"
	CodeCheckout           Code = "GIT_CHECKOUT_ERROR"
	CodeCreateBranch       Code = "GIT_CREATE_BRANCH_ERROR"
	CodeDeleteBranch       Code = "GIT_DELETE_BRANCH_ERROR"
	CodeWorktree           Code = "GIT_WORKTREE_ERROR"
	CodeInfo               Code = "GIT_INFO_ERROR"
	CodeDiff               Code = "GIT_DIFF_ERROR"
)

// Error is returned by every Service method.
type Error struct {
	Op      string
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("git %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code carried by err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var gitErr *Error
	if errors.As(err, &gitErr) {
		return gitErr.Code
	}
	return ""
}

func wrap(op string, code Code, err error) error {
	if err == nil {
		return nil
	}
	var gitErr *Error
	if errors.As(err, &gitErr) {
		return err
	}
	return &Error{Op: op, Code: code, Message: err.Error(), Err: err}
}
