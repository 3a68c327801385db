package passphrase

import (
	"errors"
	"io"
	"testing"
)

func stubSource(env map[string]string, terminal bool, secret string, readErr error) *Source {
	s := NewSource("HOURBANK_TEST_PASS")
	s.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.isTerminal = func() bool { return terminal }
	reads := 0
	s.readSecret = func() ([]byte, error) {
		reads++
		if reads > 1 {
			return nil, errors.New("prompted twice")
		}
		return []byte(secret), readErr
	}
	s.out = io.Discard
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := stubSource(map[string]string{"HOURBANK_TEST_PASS": "hunter2"}, true, "ignored", nil)
	got, err := s.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	s := stubSource(map[string]string{"HOURBANK_TEST_PASS": "  "}, true, "ignored", nil)
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error for blank passphrase")
	}
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	s := stubSource(nil, true, "typed", nil)
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		if err != nil || got != "typed" {
			t.Fatalf("call %d: unexpected result %q, %v", i, got, err)
		}
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	s := stubSource(nil, false, "", nil)
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error without terminal")
	}
}
