package hostruntime

import (
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/spf13/afero"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

// registerFS binds host://fs's ten exports against the same afero.Fs the
// Fetcher reads file:// modules from, so a bundle's filesystem writes and
// its own module graph agree on one root. Everything crosses the Go/JS
// boundary as strings: booleans as 0/1, listings and stat results as
// JSON, binary file contents as base64.
func (b *Backend) registerFS(rt core.JSRuntime, state *core.RunState, el *loop) error {
	fns := map[string]any{
		"__fs_readFile": func(path string) (string, error) {
			data, err := afero.ReadFile(b.fs, path)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
		"__fs_readFileBinary": func(path string) (string, error) {
			data, err := afero.ReadFile(b.fs, path)
			if err != nil {
				return "", err
			}
			return base64.StdEncoding.EncodeToString(data), nil
		},
		"__fs_writeFile": func(path, contents string) (int, error) {
			return 0, afero.WriteFile(b.fs, path, []byte(contents), 0o644)
		},
		"__fs_writeFileBinary": func(path, b64 string) (int, error) {
			data, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return 0, err
			}
			return 0, afero.WriteFile(b.fs, path, data, 0o644)
		},
		"__fs_isFile": func(path string) int {
			info, err := b.fs.Stat(path)
			return boolInt(err == nil && !info.IsDir())
		},
		"__fs_exists": func(path string) int {
			ok, err := afero.Exists(b.fs, path)
			return boolInt(err == nil && ok)
		},
		"__fs_lstat": func(path string) (string, error) {
			info, err := b.fs.Stat(path)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(map[string]any{
				"size":    info.Size(),
				"isDir":   info.IsDir(),
				"modTime": info.ModTime().UnixMilli(),
			})
			return string(out), err
		},
		"__fs_mkdir": func(path string) (int, error) {
			return 0, b.fs.MkdirAll(path, 0o755)
		},
		"__fs_readdir": func(path string) (string, error) {
			entries, err := afero.ReadDir(b.fs, path)
			if err != nil {
				return "", err
			}
			names := make([]string, len(entries))
			for i, e := range entries {
				names[i] = e.Name()
			}
			out, err := json.Marshal(names)
			return string(out), err
		},
		"__fs_tmpdir": func() string {
			return os.TempDir()
		},
	}
	for name, fn := range fns {
		if err := rt.RegisterFunc(name, fn); err != nil {
			return err
		}
	}

	g := func(export string) string {
		return "globalThis." + hostexports.GlobalBindingName("host://fs", export)
	}

	js := g("readFile") + ` = __fs_readFile;
` + g("writeFile") + ` = function(path, contents) { __fs_writeFile(path, contents); };
` + g("isFile") + ` = function(path) { return !!__fs_isFile(path); };
` + g("exists") + ` = function(path) { return !!__fs_exists(path); };
` + g("lstat") + ` = function(path) { return JSON.parse(__fs_lstat(path)); };
` + g("mkdir") + ` = function(path) { __fs_mkdir(path); };
` + g("readdir") + ` = function(path) { return JSON.parse(__fs_readdir(path)); };
` + g("tmpdir") + ` = __fs_tmpdir;
` + g("readFileBinary") + ` = function(path) {
	var bin = atob(__fs_readFileBinary(path));
	var out = new Uint8Array(bin.length);
	for (var i = 0; i < bin.length; i++) { out[i] = bin.charCodeAt(i); }
	return out;
};
` + g("writeFileBinary") + ` = function(path, bytes) {
	var bin = '';
	for (var i = 0; i < bytes.length; i++) { bin += String.fromCharCode(bytes[i]); }
	__fs_writeFileBinary(path, btoa(bin));
};
`
	return rt.Eval(js)
}

// boolInt bridges Go bools into QuickJS, whose function marshaling has no
// bool return type.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
