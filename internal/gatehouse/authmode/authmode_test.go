package authmode_test

import (
	"context"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/authmode"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
)

// fakeDirectory approves every credential it has a grant entry for.
type fakeDirectory struct {
	grants map[string]bool // subjectID -> valid
}

func (d *fakeDirectory) ValidateCredential(_ context.Context, subjectID string, _ types.MethodCode, _ string) (types.VerificationResult, error) {
	if d.grants[subjectID] {
		return types.VerificationResult{OK: true, PassID: "pass-" + subjectID}, nil
	}
	return types.VerificationResult{OK: false, Reason: "no valid grant"}, nil
}

func TestDefaultRegistry_CoversAllNineMethods(t *testing.T) {
	reg := authmode.NewDefaultRegistry(&fakeDirectory{})

	for _, code := range types.Methods() {
		s, ok := reg.Lookup(code)
		if !ok {
			t.Fatalf("no strategy registered for code %d (%s)", code, code.Name())
		}
		if !s.Supports(code) {
			t.Errorf("strategy for %s does not report support for its own code", code.Name())
		}
	}
}

func TestLookup_Face11ResolvesFaceStrategy(t *testing.T) {
	reg := authmode.NewDefaultRegistry(&fakeDirectory{grants: map[string]bool{"U1": true}})

	s, ok := reg.Lookup(types.MethodCode(11))
	if !ok {
		t.Fatal("code 11 should resolve to the face strategy")
	}

	res, err := s.Authenticate(context.Background(), authmode.Request{
		SubjectID: "U1",
		Method:    types.MethodFace,
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !res.OK {
		t.Error("expected successful verification for granted subject")
	}
}

func TestLookup_UnregisteredCodeIsMissing(t *testing.T) {
	reg := authmode.NewDefaultRegistry(&fakeDirectory{})

	if _, ok := reg.Lookup(types.MethodCode(99)); ok {
		t.Error("code 99 should not resolve to any strategy")
	}
}

func TestAuthenticate_DeniedWithoutGrant(t *testing.T) {
	reg := authmode.NewDefaultRegistry(&fakeDirectory{})

	s, _ := reg.Lookup(types.MethodCard)
	res, err := s.Authenticate(context.Background(), authmode.Request{SubjectID: "U2"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.OK {
		t.Error("expected denial without a grant")
	}
	if res.Reason == "" {
		t.Error("denial should carry a reason")
	}
}

func TestSelectMode(t *testing.T) {
	cases := []struct {
		category types.SubjectCategory
		want     authmode.Mode
	}{
		{types.SubjectTemporary, authmode.ModeBackend},
		{types.SubjectRecurring, authmode.ModeEdge},
		{"", authmode.ModeBackend}, // unclassified treated as temporary
	}
	for _, c := range cases {
		if got := authmode.SelectMode(c.category); got != c.want {
			t.Errorf("SelectMode(%q) = %q, want %q", c.category, got, c.want)
		}
	}
}
