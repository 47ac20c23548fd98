package authmode

import (
	"context"
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// Registry maps an authentication-method code to its strategy. It is
// populated once at process start and read-only afterwards, so lookups
// need no locking. A code with no registered strategy is not an error
// here — it surfaces as an unsupported-method denial at dispatch time.
type Registry struct {
	strategies map[types.MethodCode]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[types.MethodCode]Strategy)}
}

func (r *Registry) Register(code types.MethodCode, s Strategy) {
	r.strategies[code] = s
}

func (r *Registry) Lookup(code types.MethodCode) (Strategy, bool) {
	s, ok := r.strategies[code]
	return s, ok
}

// NewDefaultRegistry registers a directory-backed strategy for each of
// the nine supported modalities.
func NewDefaultRegistry(dir CredentialDirectory) *Registry {
	r := NewRegistry()
	for _, code := range types.Methods() {
		r.Register(code, &directoryStrategy{code: code, dir: dir})
	}
	return r
}

// directoryStrategy delegates validity checking to the credential
// directory. One instance per method code; the code only scopes which
// credential namespace the directory consults.
type directoryStrategy struct {
	code types.MethodCode
	dir  CredentialDirectory
}

func (s *directoryStrategy) Supports(code types.MethodCode) bool {
	return code == s.code
}

func (s *directoryStrategy) Authenticate(ctx context.Context, req Request) (types.VerificationResult, error) {
	if req.SubjectID == "" {
		return types.VerificationResult{OK: false, Reason: "missing subject"}, nil
	}
	res, err := s.dir.ValidateCredential(ctx, req.SubjectID, s.code, req.Credential)
	if err != nil {
		return types.VerificationResult{}, fmt.Errorf("%s verification: %w", s.code.Name(), err)
	}
	return res, nil
}
