package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/petal-labs/anthropic-go/cli/keystore"
	"github.com/petal-labs/anthropic-go/core"
	"github.com/petal-labs/anthropic-go/providers/anthropic"
)

// keyName is the keystore entry holding the API key.
const keyName = anthropic.ProviderName

func isTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// resolveAPIKey returns the key from config or environment, then the
// keystore, then an interactive prompt when stdin is a terminal.
func (a *App) resolveAPIKey() (core.Secret, error) {
	if !a.cfg.APIKey.IsEmpty() {
		return a.cfg.APIKey, nil
	}

	ks, err := a.newKeystore()
	if err != nil {
		return core.Secret{}, exitWithCode(ExitValidation, fmt.Errorf("failed to open keystore: %w", err))
	}
	key, err := ks.Get(keyName)
	if err == nil {
		a.logger.Debug("using API key from keystore")
		return key, nil
	}
	if !keystore.IsNotFound(err) {
		return core.Secret{}, exitWithCode(ExitValidation, fmt.Errorf("failed to read keystore: %w", err))
	}

	if f, ok := a.stdin.(*os.File); ok && a.isTerminal(int(f.Fd())) {
		return a.readKey(fmt.Sprintf("Enter %s API key: ", keyName))
	}
	return core.Secret{}, exitWithCode(ExitValidation, fmt.Errorf(
		"no API key: set %s, add api_key to the config file, or run 'anthropic-go keys set'",
		anthropic.DefaultAPIKeyEnvVar))
}

// readKey prompts on stderr and reads a key without echo when stdin is a
// terminal, or one line otherwise.
func (a *App) readKey(prompt string) (core.Secret, error) {
	fmt.Fprint(a.stderr, prompt)

	var value string
	if f, ok := a.stdin.(*os.File); ok && a.isTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr) // Newline after hidden input
		if err != nil {
			return core.Secret{}, fmt.Errorf("failed to read key: %w", err)
		}
		value = string(b)
	} else {
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && line == "" {
			return core.Secret{}, fmt.Errorf("failed to read key: %w", err)
		}
		value = line
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return core.Secret{}, errors.New("API key cannot be empty")
	}
	return core.NewSecret(value), nil
}
