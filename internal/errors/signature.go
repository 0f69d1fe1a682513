package errors

import "fmt"

// SignatureError represents a signed-envelope verification failure:
// BadSignature or OriginMismatch.
type SignatureError struct {
	Base Error
	Repo string
	Name string
}

func (e *SignatureError) Error() string { return e.Base.Error() }
func (e *SignatureError) Unwrap() error { return e.Base.Cause }
func (e *SignatureError) Is(t error) bool {
	s, ok := t.(*SignatureError)
	return ok && e.Base.Code == s.Base.Code
}

// NewBadSignatureError reports BadSignature: the envelope's signature
// does not verify against the repository's configured public key.
func NewBadSignatureError(repo string, cause error) *SignatureError {
	return &SignatureError{
		Base: Error{
			Category: CategorySignature,
			Code:     CodeBadSignature,
			Message:  fmt.Sprintf("signature verification failed for repository %q", repo),
			Cause:    cause,
		},
		Repo: repo,
	}
}

// NewOriginMismatchError reports OriginMismatch: the decoded payload's
// repository/name do not match what was requested.
func NewOriginMismatchError(wantRepo, wantName, gotRepo, gotName string) *SignatureError {
	return &SignatureError{
		Base: Error{
			Category: CategorySignature,
			Code:     CodeOriginMismatch,
			Message: fmt.Sprintf("payload origin %s/%s does not match requested %s/%s",
				gotRepo, gotName, wantRepo, wantName),
		},
		Repo: wantRepo,
		Name: wantName,
	}
}
