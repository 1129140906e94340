// Package credentials reads wallet secrets from the credentials directory,
// prompting for and optionally saving any that are missing.
package credentials

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"

	"github.com/berth-dev/nftbatch/internal/fsx"
)

// File names inside the credentials directory, without the .txt suffix.
const (
	NamePassword       = "password"
	NameRecoveryPhrase = "recovery_phrase"
	NamePrivateKey     = "private_key"
	NameCaptchaKey     = "2captcha_key"
)

// Credentials are the wallet secrets for one run. They are never logged.
type Credentials struct {
	Password       string
	RecoveryPhrase string
	PrivateKey     string
	CaptchaKey     string
}

// String never reveals the secrets.
func (c Credentials) String() string {
	return fmt.Sprintf("credentials{password:%t recovery_phrase:%t private_key:%t}",
		c.Password != "", c.RecoveryPhrase != "", c.PrivateKey != "")
}

// Address derives the wallet address from the private key.
func (c Credentials) Address() (common.Address, error) {
	return Address(c.PrivateKey)
}

// Store reads credential files from Dir and falls back to prompting on a
// terminal when Interactive is set.
type Store struct {
	Dir         string
	Interactive bool
	In          io.Reader
	Out         io.Writer
	// ReadSecret reads a line without echo. Defaults to the terminal on
	// stdin.
	ReadSecret func() (string, error)

	lines *bufio.Reader
}

// NewStore returns a store over dir using the process's stdin and stdout.
func NewStore(dir string) *Store {
	return &Store{
		Dir:         dir,
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
		In:          os.Stdin,
		Out:         os.Stdout,
	}
}

// Path returns the file backing name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.Dir, name+".txt")
}

// Get returns the credential stored under name, asking for it when the
// file is missing or empty.
func (s *Store) Get(name, prompt string, secret bool) (string, error) {
	return s.get(name, prompt, secret, false)
}

// GetOptional is Get for credentials that may be left blank.
func (s *Store) GetOptional(name, prompt string, secret bool) (string, error) {
	return s.get(name, prompt, secret, true)
}

func (s *Store) get(name, prompt string, secret, optional bool) (string, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if v := strings.TrimSpace(string(data)); v != "" {
		return v, nil
	}
	if !s.Interactive {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("%s is empty or missing and no terminal is attached to ask for it", path)
	}

	fmt.Fprintf(s.out(), "%s: ", prompt)
	var value string
	if secret {
		value, err = s.readSecret()
		fmt.Fprintln(s.out())
	} else {
		value, err = s.readLine()
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("%s is required", name)
	}

	fmt.Fprintf(s.out(), "Save it to %s for next time? [y/N] ", path)
	answer, err := s.readLine()
	if err == nil && strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
		if err := s.save(path, value); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save %s: %v\n", path, err)
		}
	}
	return value, nil
}

// Need says which optional secrets a run requires.
type Need struct {
	// RecoveryPhrase is required to import the wallet into a fresh browser
	// profile. An existing profile only needs the password.
	RecoveryPhrase bool
	CaptchaKey     bool
}

// Load collects the secrets a wallet login needs. The private key is
// always optional and the recovery phrase is optional unless need asks
// for it; either must be valid when present.
func (s *Store) Load(need Need) (Credentials, error) {
	var c Credentials
	var err error

	if c.Password, err = s.Get(NamePassword, "Wallet password", true); err != nil {
		return Credentials{}, err
	}
	if need.RecoveryPhrase {
		c.RecoveryPhrase, err = s.Get(NameRecoveryPhrase, "Recovery phrase", true)
	} else {
		c.RecoveryPhrase, err = s.GetOptional(NameRecoveryPhrase, "Recovery phrase (Enter to skip)", true)
	}
	if err != nil {
		return Credentials{}, err
	}
	if c.RecoveryPhrase != "" {
		if err := ValidateRecoveryPhrase(c.RecoveryPhrase); err != nil {
			return Credentials{}, err
		}
	}
	if c.PrivateKey, err = s.GetOptional(NamePrivateKey, "Private key (Enter to skip)", true); err != nil {
		return Credentials{}, err
	}
	if c.PrivateKey != "" {
		if _, err := Address(c.PrivateKey); err != nil {
			return Credentials{}, err
		}
	}
	if need.CaptchaKey {
		if c.CaptchaKey, err = s.Get(NameCaptchaKey, "2Captcha API key", true); err != nil {
			return Credentials{}, err
		}
	}
	return c, nil
}

func (s *Store) save(path, value string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return fsx.WriteFileAtomic(path, []byte(value+"\n"), 0600)
}

func (s *Store) out() io.Writer {
	if s.Out == nil {
		return io.Discard
	}
	return s.Out
}

func (s *Store) readLine() (string, error) {
	if s.lines == nil {
		in := s.In
		if in == nil {
			in = os.Stdin
		}
		s.lines = bufio.NewReader(in)
	}
	line, err := s.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Store) readSecret() (string, error) {
	if s.ReadSecret != nil {
		return s.ReadSecret()
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return s.readLine()
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Address derives the address for a hex private key, with or without 0x.
func Address(privateKey string) (common.Address, error) {
	hexKey := strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")
	if hexKey == "" {
		return common.Address{}, fmt.Errorf("private key missing")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// ValidateRecoveryPhrase checks the phrase has a BIP-39 word count.
func ValidateRecoveryPhrase(phrase string) error {
	switch n := len(strings.Fields(phrase)); n {
	case 12, 15, 18, 21, 24:
		return nil
	default:
		return fmt.Errorf("recovery phrase has %d words, want 12, 15, 18, 21 or 24", n)
	}
}
