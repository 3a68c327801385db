package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves the operator keystore passphrase from an environment
// variable or by prompting on the terminal. The first result, success or
// failure, is cached.
type Source struct {
	envVar string
	prompt string

	lookupEnv  func(string) (string, bool)
	isTerminal func() bool
	readSecret func() ([]byte, error)
	out        io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource returns a source that checks envVar before prompting.
func NewSource(envVar string) *Source {
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		prompt:     "Enter operator keystore passphrase: ",
		lookupEnv:  os.LookupEnv,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		readSecret: func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) },
		out:        os.Stderr,
	}
}

// Get returns the cached passphrase or resolves it on first use. An
// environment value is used verbatim; whitespace-only passphrases are
// rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		if !s.isTerminal() {
			if s.envVar != "" {
				s.err = fmt.Errorf("operator keystore passphrase required; set %s or run interactively", s.envVar)
			} else {
				s.err = errors.New("operator keystore passphrase required and no terminal available")
			}
			return
		}

		fmt.Fprint(s.out, s.prompt)
		secret, err := s.readSecret()
		fmt.Fprintln(s.out)
		if err != nil {
			s.err = fmt.Errorf("read passphrase: %w", err)
			return
		}
		if strings.TrimSpace(string(secret)) == "" {
			s.err = errors.New("operator keystore passphrase cannot be empty")
			return
		}
		s.value = string(secret)
	})
	return s.value, s.err
}
