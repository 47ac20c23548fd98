// Package authmode holds the multi-modal authentication registry and the
// verification-mode selector: which strategy verifies a credential, and
// whether verification happens on the device or centrally.
package authmode

import (
	"context"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// Request is what a strategy needs to verify one presentation. Biometric
// feature matching itself happens on edge hardware; backend strategies
// check grant validity and time windows against the directory.
type Request struct {
	SubjectID  string
	AreaID     string
	DeviceID   string
	Method     types.MethodCode
	Credential string
	Category   types.SubjectCategory
}

// Strategy verifies one authentication modality.
type Strategy interface {
	Authenticate(ctx context.Context, req Request) (types.VerificationResult, error)
	Supports(code types.MethodCode) bool
}

// CredentialDirectory is the external collaborator that knows whether a
// subject's credential for a given modality is currently valid (grant
// exists, time window not expired, not revoked).
type CredentialDirectory interface {
	ValidateCredential(ctx context.Context, subjectID string, method types.MethodCode, credential string) (types.VerificationResult, error)
}

// AllowAllDirectory accepts every credential. Dev stand-in until a real
// directory is attached.
type AllowAllDirectory struct{}

func (AllowAllDirectory) ValidateCredential(_ context.Context, subjectID string, _ types.MethodCode, _ string) (types.VerificationResult, error) {
	return types.VerificationResult{OK: true, PassID: "dev-" + subjectID}, nil
}
