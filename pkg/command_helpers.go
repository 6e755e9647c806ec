package pkg

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
)

// PerformCommand performs a command line command, echoing and returning its output
func PerformCommand(ctx context.Context, cmdArgs ...string) (string, error) {
	Log.Debugf("== `%s`", strings.Join(cmdArgs, " "))

	cmd := exec.CommandContext(ctx, cmdArgs[0], cmdArgs[1:]...)
	cmdReader, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}

	var output strings.Builder

	err = cmd.Start()
	if err != nil {
		return "", err
	}

	scanner := bufio.NewScanner(cmdReader)
	for scanner.Scan() {
		chunk := scanner.Text()
		Log.Debug(chunk)
		output.WriteString(chunk + "\n")
	}

	err = cmd.Wait()
	if err != nil {
		return "", err
	}

	return output.String(), nil
}

// IsBinaryInstalled checks whether a binary can be found in PATH
func IsBinaryInstalled(binaryName string) bool {
	_, err := exec.LookPath(binaryName)
	return err == nil
}

// LastLines returns the last n non-empty lines of output, joined by newlines
func LastLines(output string, n int) string {
	lines := make([]string, 0)
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lastLines(lines, n)
}

func lastLines(lines []string, n int) string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
