package bridge

import (
	"testing"
	"time"
)

func TestSessionIssueAndVerify(t *testing.T) {
	s := newSessionStore(time.Minute)
	token, _ := s.Issue()
	if !s.Verify(token) {
		t.Fatal("expected freshly issued token to verify")
	}
}

func TestSessionVerifyRejectsUnknownToken(t *testing.T) {
	s := newSessionStore(time.Minute)
	if s.Verify("not-a-real-token") {
		t.Fatal("expected unknown token to fail verification")
	}
}

func TestSessionVerifyRejectsExpiredToken(t *testing.T) {
	s := newSessionStore(-time.Second)
	token, _ := s.Issue()
	if s.Verify(token) {
		t.Fatal("expected already-expired token to fail verification")
	}
}

func TestSessionPoisonedLockHardRejects(t *testing.T) {
	s := newSessionStore(time.Minute)
	token, _ := s.Issue()
	s.poisoned = true
	if s.Verify(token) {
		t.Fatal("expected a poisoned session store to reject every token")
	}
}
