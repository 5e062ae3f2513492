package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"
)

func promptStreamingToken() (string, error) {
	var (
		stdin  = os.Stdin
		stdout = os.Stdout
	)

	if !isatty.IsTerminal(stdin.Fd()) || !isatty.IsTerminal(stdout.Fd()) {
		return "", syscall.ENOTTY
	}

	var token string
	prompt := &survey.Password{ //nolint:exhaustruct
		Message: "Enter Tidal streaming token:",
	}
	askOpts := []survey.AskOpt{
		survey.WithValidator(survey.Required),
		survey.WithHideCharacter('*'),
		survey.WithStdio(stdin, stdout, stdout),
		survey.WithShowCursor(true),
	}
	if err := survey.AskOne(prompt, &token, askOpts...); nil != err {
		return "", fmt.Errorf("failed to ask for streaming token: %v", err)
	}

	return strings.TrimSpace(token), nil
}
