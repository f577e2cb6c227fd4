package dump

import (
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
)

// ResolvePath resolves a dump path the way the provisioner expects it:
// absolute paths are returned as-is, relative paths are looked up beside the
// running executable first and in the working directory second. When the
// file exists in neither place the path beside the executable is returned,
// so the read error names the primary location.
func ResolvePath(name string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "locate executable")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return resolvePath(name, filepath.Dir(exe))
}

func resolvePath(name, exeDir string) (string, error) {
	if name == "" {
		return "", errors.New("dump path is empty")
	}
	if filepath.IsAbs(name) {
		return name, nil
	}

	beside := filepath.Join(exeDir, name)
	if Exists(beside) {
		return beside, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "get working directory")
	}
	if local := filepath.Join(cwd, name); Exists(local) {
		return local, nil
	}

	return beside, nil
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
