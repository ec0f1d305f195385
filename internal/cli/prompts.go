package cli

import (
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

// promptMessage reads one chat line. Empty input is allowed; the caller skips it.
func promptMessage(user string) (string, error) {
	var line string
	prompt := &survey.Input{
		Message: user + ":",
		Help:    "输入问题后回车。/help 查看命令，/exit 退出。",
	}
	if err := survey.AskOne(prompt, &line); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptConfirm asks a yes/no question defaulting to no.
func promptConfirm(message string) (bool, error) {
	var ok bool
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	err := survey.AskOne(prompt, &ok)
	return ok, err
}
