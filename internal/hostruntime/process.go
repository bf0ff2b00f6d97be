package hostruntime

import (
	"bytes"
	"encoding/json"
	"os/exec"

	"github.com/cli/safeexec"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

type spawnResult struct {
	Status int    `json:"status"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// registerProcess binds host://process's single export, spawn. The
// executable is resolved through safeexec.LookPath rather than
// exec.LookPath, which on some platforms can resolve a relative name
// from the current directory — safeexec only considers PATH. Arguments
// travel in as a JSON array, the result out as a JSON document.
func (b *Backend) registerProcess(rt core.JSRuntime, state *core.RunState, el *loop) error {
	if err := rt.RegisterFunc("__process_spawn", func(name, argsJSON string) (string, error) {
		var args []string
		if argsJSON != "" {
			if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
				return "", err
			}
		}
		path, err := safeexec.LookPath(name)
		if err != nil {
			return "", err
		}
		cmd := exec.Command(path, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		runErr := cmd.Run()

		status := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*exec.ExitError); ok {
				status = exitErr.ExitCode()
			} else {
				return "", runErr
			}
		}
		out, err := json.Marshal(spawnResult{Status: status, Stdout: stdout.String(), Stderr: stderr.String()})
		return string(out), err
	}); err != nil {
		return err
	}

	name := hostexports.GlobalBindingName("host://process", "spawn")
	js := `
globalThis.` + name + ` = function(cmd, args) {
	return JSON.parse(__process_spawn(cmd, JSON.stringify(args || [])));
};
`
	return rt.Eval(js)
}
